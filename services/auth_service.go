package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/api/idtoken"
	"gorm.io/gorm"

	"github.com/vnkhanh/dating-server/models"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/realtime"
	"github.com/vnkhanh/dating-server/utils"
)

// GoogleVerifier checks a Google ID token; idtoken.Validate satisfies it.
type GoogleVerifier func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

type AuthService struct {
	db             *gorm.DB
	hub            *realtime.Hub
	logger         *slog.Logger
	tokens         *utils.TokenIssuer
	googleClientID string
	verifyGoogle   GoogleVerifier
}

func NewAuthService(d Deps, tokens *utils.TokenIssuer, googleClientID string) *AuthService {
	d = d.withDefaults()
	return &AuthService{
		db:             d.DB,
		hub:            d.Hub,
		logger:         d.Logger,
		tokens:         tokens,
		googleClientID: googleClientID,
		verifyGoogle:   idtoken.Validate,
	}
}

// WithGoogleVerifier replaces the token verifier, for tests.
func (s *AuthService) WithGoogleVerifier(v GoogleVerifier) *AuthService {
	s.verifyGoogle = v
	return s
}

type RegisterInput struct {
	Email       string `validate:"required,email,max=100"`
	Password    string `validate:"required,min=6"`
	DisplayName string `validate:"required,max=100"`
	Gender      string `validate:"required,oneof=male female"`
}

type AuthResult struct {
	Token     string       `json:"access_token"`
	ExpiresIn int          `json:"expires_in"`
	TokenType string       `json:"token_type"`
	User      *models.User `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, apperrors.ErrStore("users.count", err)
	}
	if count > 0 {
		return nil, apperrors.ErrEmailTaken
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "cannot hash password", err)
	}
	u := &models.User{
		Email:        in.Email,
		PasswordHash: hash,
		DisplayName:  in.DisplayName,
		Gender:       in.Gender,
	}
	err = s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperrors.ErrEmailTaken
	}
	if err != nil {
		return nil, apperrors.ErrStore("users.insert", err)
	}
	s.hub.Publish(realtime.ProfilesTopic)
	s.logger.Info("user registered", "user_id", u.ID, "gender", u.Gender)
	return s.issue(u)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.ErrStore("users.by_email", err)
	}
	if !utils.CheckPassword(u.PasswordHash, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return s.issue(&u)
}

// LoginWithGoogle signs in, creating the account on first use. Gender is
// left empty until the user completes the profile.
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (*AuthResult, error) {
	if s.googleClientID == "" {
		return nil, apperrors.ErrGoogleUnavailable
	}
	payload, err := s.verifyGoogle(ctx, idToken, s.googleClientID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid google token", err)
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, apperrors.Unauthorized("google token has no email")
	}
	email = strings.ToLower(email)

	var u models.User
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		name, _ := payload.Claims["name"].(string)
		if name == "" {
			name = strings.Split(email, "@")[0]
		}
		u = models.User{Email: email, DisplayName: name}
		if pic, ok := payload.Claims["picture"].(string); ok && pic != "" {
			u.Photos = []string{pic}
		}
		if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, apperrors.ErrStore("users.insert", err)
		}
		s.hub.Publish(realtime.ProfilesTopic)
	default:
		return nil, apperrors.ErrStore("users.by_email", err)
	}
	return s.issue(&u)
}

func (s *AuthService) issue(u *models.User) (*AuthResult, error) {
	tok, err := s.tokens.GenerateToken(u.ID, u.Gender)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "cannot issue token", err)
	}
	return &AuthResult{
		Token:     tok,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
		TokenType: "Bearer",
		User:      u,
	}, nil
}
