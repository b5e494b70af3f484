package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vnkhanh/dating-server/models"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/realtime"
)

type DateService struct {
	db     *gorm.DB
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewDateService(d Deps) *DateService {
	d = d.withDefaults()
	return &DateService{db: d.DB, hub: d.Hub, logger: d.Logger}
}

type DateInput struct {
	Title       string    `validate:"required,max=120"`
	Details     *string   `validate:"omitempty,max=4000"`
	Location    string    `validate:"max=255"`
	ScheduledAt time.Time `validate:"required"`
	Category    string    `validate:"max=50"`
	Photos      []string  `validate:"max=10,dive,url"`
}

type DateFilter struct {
	Category  string
	ExcludeID uint // hides the caller's own postings
	Limit     int
}

// Create posts a new open date. Only male profiles host.
func (s *DateService) Create(ctx context.Context, hostID uint, in DateInput) (*models.DatePosting, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var host models.User
	if err := s.db.WithContext(ctx).First(&host, hostID).Error; err != nil {
		return nil, lookupErr("users.get", err, apperrors.ErrUserNotFound)
	}
	if !host.IsHostRole() {
		return nil, apperrors.ErrHostOnlyMale
	}

	date := &models.DatePosting{
		HostID:      hostID,
		Title:       in.Title,
		Details:     in.Details,
		Location:    strings.TrimSpace(in.Location),
		ScheduledAt: in.ScheduledAt,
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Photos:      in.Photos,
		Status:      models.DateStatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(date).Error; err != nil {
		return nil, apperrors.ErrStore("dates.insert", err)
	}
	s.hub.Publish(realtime.OpenDatesTopic)
	s.logger.Info("date created", "date_id", date.ID, "host_id", hostID)
	return date, nil
}

func (s *DateService) Get(ctx context.Context, id uint) (*models.DatePosting, error) {
	var date models.DatePosting
	if err := s.db.WithContext(ctx).Preload("Host").First(&date, id).Error; err != nil {
		return nil, lookupErr("dates.get", err, apperrors.ErrDateNotFound)
	}
	return &date, nil
}

// ListOpen returns open postings, newest first.
func (s *DateService) ListOpen(ctx context.Context, f DateFilter) ([]models.DatePosting, error) {
	q := s.db.WithContext(ctx).Preload("Host").Where("status = ?", models.DateStatusOpen)
	if f.Category != "" {
		q = q.Where("category = ?", strings.ToLower(f.Category))
	}
	if f.ExcludeID != 0 {
		q = q.Where("host_id <> ?", f.ExcludeID)
	}
	out := []models.DatePosting{}
	if err := q.Order("created_at DESC, id DESC").Limit(clampLimit(f.Limit, 50, 200)).Find(&out).Error; err != nil {
		return nil, apperrors.ErrStore("dates.list_open", err)
	}
	return out, nil
}

func (s *DateService) SubscribeOpen(f DateFilter, fn Snapshot[[]models.DatePosting]) *realtime.Subscription {
	return s.hub.Subscribe(realtime.OpenDatesTopic, func() {
		fn(s.ListOpen(background(), f))
	})
}

func (s *DateService) ListByHost(ctx context.Context, hostID uint) ([]models.DatePosting, error) {
	out := []models.DatePosting{}
	err := s.db.WithContext(ctx).Where("host_id = ?", hostID).Order("created_at DESC, id DESC").Find(&out).Error
	if err != nil {
		return nil, apperrors.ErrStore("dates.by_host", err)
	}
	return out, nil
}

// Close stops a posting from taking new requests. Existing requests keep
// their state.
func (s *DateService) Close(ctx context.Context, hostID, dateID uint) (*models.DatePosting, error) {
	var date models.DatePosting
	if err := s.db.WithContext(ctx).First(&date, dateID).Error; err != nil {
		return nil, lookupErr("dates.get", err, apperrors.ErrDateNotFound)
	}
	if date.HostID != hostID {
		return nil, apperrors.ErrNotDateHost
	}
	if date.Status == models.DateStatusClosed {
		return &date, nil
	}
	date.Status = models.DateStatusClosed
	if err := s.db.WithContext(ctx).Model(&date).Update("status", models.DateStatusClosed).Error; err != nil {
		return nil, apperrors.ErrStore("dates.close", err)
	}
	s.hub.Publish(realtime.OpenDatesTopic)
	return &date, nil
}
