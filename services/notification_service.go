package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/vnkhanh/dating-server/models"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/realtime"
	"gorm.io/gorm"
)

// Notifier receives lifecycle events addressed to a user.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

type NotificationService struct {
	db     *gorm.DB
	hub    *realtime.Hub
	logger *slog.Logger
	now    func() time.Time
}

func NewNotificationService(d Deps) *NotificationService {
	d = d.withDefaults()
	return &NotificationService{db: d.DB, hub: d.Hub, logger: d.Logger, now: d.Now}
}

// Notify stores an inbox entry and wakes the user's notification streams.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return apperrors.ErrStore("notifications.insert", err)
	}
	s.hub.Publish(realtime.NotificationsTopic(n.UserID))
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	out := []models.Notification{}
	err := q.Order("created_at DESC, id DESC").Limit(clampLimit(limit, 50, 200)).Find(&out).Error
	if err != nil {
		return nil, apperrors.ErrStore("notifications.list", err)
	}
	return out, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if res.Error != nil {
		return apperrors.ErrStore("notifications.mark_read", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotificationMissing
	}
	s.hub.Publish(realtime.NotificationsTopic(userID))
	return nil
}

func (s *NotificationService) Subscribe(userID uint, fn Snapshot[[]models.Notification]) *realtime.Subscription {
	return s.hub.Subscribe(realtime.NotificationsTopic(userID), func() {
		fn(s.List(background(), userID, false, 0))
	})
}

// notifyBestEffort is used after a commit; the write it reports on already
// succeeded, so a failed inbox insert is only logged.
func notifyBestEffort(ctx context.Context, n Notifier, log *slog.Logger, note *models.Notification) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, note); err != nil {
		log.Warn("notification not stored", "type", note.Type, "user_id", note.UserID, "err", err)
	}
}
