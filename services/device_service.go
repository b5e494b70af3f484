package services

import (
	"context"

	"github.com/vnkhanh/dating-server/models"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceService stores push tokens. Delivery is handled elsewhere.
type DeviceService struct {
	db *gorm.DB
}

func NewDeviceService(d Deps) *DeviceService {
	return &DeviceService{db: d.DB}
}

type RegisterDeviceInput struct {
	UserID   uint   `validate:"required"`
	Token    string `validate:"required,max=255"`
	Platform string `validate:"omitempty,oneof=ios android web"`
}

// Register upserts on token so a device moving between accounts follows
// the latest login.
func (s *DeviceService) Register(ctx context.Context, in RegisterDeviceInput) (*models.DeviceToken, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	tok := &models.DeviceToken{UserID: in.UserID, Token: in.Token, Platform: in.Platform}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
	}).Create(tok).Error
	if err != nil {
		return nil, apperrors.ErrStore("devices.upsert", err)
	}
	return tok, nil
}

func (s *DeviceService) Unregister(ctx context.Context, userID uint, token string) error {
	err := s.db.WithContext(ctx).Where("user_id = ? AND token = ?", userID, token).Delete(&models.DeviceToken{}).Error
	if err != nil {
		return apperrors.ErrStore("devices.delete", err)
	}
	return nil
}

func (s *DeviceService) Tokens(ctx context.Context, userID uint) ([]string, error) {
	tokens := []string{}
	err := s.db.WithContext(ctx).Model(&models.DeviceToken{}).Where("user_id = ?", userID).Pluck("token", &tokens).Error
	if err != nil {
		return nil, apperrors.ErrStore("devices.list", err)
	}
	return tokens, nil
}
