package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vnkhanh/dating-server/models"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/realtime"
	"github.com/vnkhanh/dating-server/utils"
)

// ProfileService is the read side of the profile directory plus self edits.
type ProfileService struct {
	db  *gorm.DB
	hub *realtime.Hub
}

func NewProfileService(d Deps) *ProfileService {
	d = d.withDefaults()
	return &ProfileService{db: d.DB, hub: d.Hub}
}

type ProfileFilter struct {
	Gender    string
	ExcludeID uint
	Limit     int
}

func (s *ProfileService) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, lookupErr("users.get", err, apperrors.ErrUserNotFound)
	}
	return &u, nil
}

// Query returns profiles newest first.
func (s *ProfileService) Query(ctx context.Context, f ProfileFilter) ([]models.User, error) {
	if f.Gender != "" && f.Gender != models.GenderMale && f.Gender != models.GenderFemale {
		return nil, apperrors.ErrInvalidGender
	}
	q := s.db.WithContext(ctx).Model(&models.User{})
	if f.Gender != "" {
		q = q.Where("gender = ?", f.Gender)
	}
	if f.ExcludeID != 0 {
		q = q.Where("id <> ?", f.ExcludeID)
	}
	out := []models.User{}
	if err := q.Order("created_at DESC, id DESC").Limit(clampLimit(f.Limit, 50, 200)).Find(&out).Error; err != nil {
		return nil, apperrors.ErrStore("users.query", err)
	}
	return out, nil
}

func (s *ProfileService) Subscribe(f ProfileFilter, fn Snapshot[[]models.User]) *realtime.Subscription {
	return s.hub.Subscribe(realtime.ProfilesTopic, func() {
		fn(s.Query(background(), f))
	})
}

type ProfilePatch struct {
	DisplayName *string
	Gender      *string
	Bio         utils.NullableString
	Location    utils.NullableString
	BirthDate   *time.Time
	Photos      *[]string
}

func (s *ProfileService) Update(ctx context.Context, userID uint, p ProfilePatch) (*models.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.DisplayName != nil {
		name := strings.TrimSpace(*p.DisplayName)
		if name == "" {
			return nil, apperrors.InvalidArg("display name cannot be empty")
		}
		u.DisplayName = name
	}
	if p.Gender != nil {
		if *p.Gender != models.GenderMale && *p.Gender != models.GenderFemale {
			return nil, apperrors.ErrInvalidGender
		}
		// Gender decides which side of the product a user is on; it is set once.
		if u.Gender != "" && u.Gender != *p.Gender {
			return nil, apperrors.FailedPrecondition("gender cannot be changed")
		}
		u.Gender = *p.Gender
	}
	if p.Bio.Set {
		u.Bio = p.Bio.Trimmed()
	}
	if p.Location.Set {
		u.Location = p.Location.Trimmed()
	}
	if p.BirthDate != nil {
		u.BirthDate = p.BirthDate
	}
	if p.Photos != nil {
		u.Photos = *p.Photos
	}
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return nil, apperrors.ErrStore("users.update", err)
	}
	s.hub.Publish(realtime.ProfilesTopic)
	return u, nil
}
