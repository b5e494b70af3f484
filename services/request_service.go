package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vnkhanh/dating-server/models"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/realtime"
)

const (
	RoleHost      = "host"
	RoleRequester = "requester"
)

// RequestService owns JoinRequest creation and transitions.
//
// Transitions are compare-and-swap updates guarded by status = pending, so
// concurrent accept/reject calls on one request cannot both win. Accept
// creates the chat and flips the request in one transaction.
type RequestService struct {
	db       *gorm.DB
	hub      *realtime.Hub
	logger   *slog.Logger
	now      func() time.Time
	notifier Notifier
}

func NewRequestService(d Deps, notifier Notifier) *RequestService {
	d = d.withDefaults()
	return &RequestService{db: d.DB, hub: d.Hub, logger: d.Logger, now: d.Now, notifier: notifier}
}

type SendRequestInput struct {
	DateID      uint   `validate:"required"`
	HostID      uint   // optional; checked against the date when set
	RequesterID uint   `validate:"required"`
	Message     string `validate:"max=500"`
}

func (s *RequestService) Send(ctx context.Context, in SendRequestInput) (*models.JoinRequest, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.HostID != 0 && in.HostID == in.RequesterID {
		return nil, apperrors.ErrSelfRequest
	}

	var req models.JoinRequest
	var date models.DatePosting
	var requester models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&requester, in.RequesterID).Error; err != nil {
			return lookupErr("users.get", err, apperrors.ErrUserNotFound)
		}
		if err := tx.First(&date, in.DateID).Error; err != nil {
			return lookupErr("dates.get", err, apperrors.ErrDateNotFound)
		}
		if in.HostID != 0 && in.HostID != date.HostID {
			return apperrors.ErrHostMismatch
		}
		if date.HostID == in.RequesterID {
			return apperrors.ErrSelfRequest
		}
		if date.Status != models.DateStatusOpen {
			return apperrors.ErrDateClosed
		}
		if requester.Gender != models.GenderFemale {
			return apperrors.ErrRequesterOnlyFemale
		}

		// One live request per (date, requester); asking again after a
		// rejection is allowed. The count gives the common case a clean
		// error, idx_request_live settles concurrent sends.
		var live int64
		err := tx.Model(&models.JoinRequest{}).
			Where("date_id = ? AND requester_id = ? AND status IN ?", in.DateID, in.RequesterID,
				[]string{models.RequestPending, models.RequestAccepted}).
			Count(&live).Error
		if err != nil {
			return apperrors.ErrStore("requests.count_live", err)
		}
		if live > 0 {
			return apperrors.ErrDuplicateRequest
		}

		req = models.JoinRequest{
			DateID:      date.ID,
			HostID:      date.HostID,
			RequesterID: in.RequesterID,
			Status:      models.RequestPending,
			Message:     in.Message,
		}
		return insertRequest(tx, &req)
	})
	if err != nil {
		return nil, txErr("requests.send", err)
	}

	s.publish(&req)
	s.logger.Info("request sent", "request_id", req.ID, "date_id", req.DateID, "requester_id", req.RequesterID)
	notifyBestEffort(ctx, s.notifier, s.logger, &models.Notification{
		UserID:  req.HostID,
		Type:    models.NotifyRequestReceived,
		Title:   "New request",
		Body:    fmt.Sprintf("%s wants to join \"%s\"", requester.DisplayName, date.Title),
		RefType: "request",
		RefID:   req.ID,
	})
	return &req, nil
}

// Accept materialises the chat and marks the request accepted atomically.
func (s *RequestService) Accept(ctx context.Context, hostID, requestID uint) (*models.JoinRequest, error) {
	var req models.JoinRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.loadForResponse(tx, hostID, requestID, &req); err != nil {
			return err
		}

		chat, err := createChannel(tx, req.HostID, req.RequesterID, req.DateID, req.ID)
		if errors.Is(err, apperrors.ErrChatExists) {
			// A concurrent accept got there first.
			return apperrors.ErrRequestNotPending
		}
		if err != nil {
			return err
		}

		now := s.now()
		res := tx.Model(&models.JoinRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestPending).
			Updates(map[string]any{
				"status":       models.RequestAccepted,
				"chat_id":      chat.ID,
				"responded_at": now,
			})
		if res.Error != nil {
			return apperrors.ErrStore("requests.accept", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost a race with another response; roll the chat back.
			return apperrors.ErrRequestNotPending
		}
		req.Status = models.RequestAccepted
		req.ChatID = &chat.ID
		req.RespondedAt = &now
		return nil
	})
	if err != nil {
		return nil, txErr("requests.accept", err)
	}

	s.publish(&req)
	s.hub.Publish(realtime.ChatsTopic(req.HostID), realtime.ChatsTopic(req.RequesterID))
	s.logger.Info("request accepted", "request_id", req.ID, "chat_id", *req.ChatID)
	notifyBestEffort(ctx, s.notifier, s.logger, &models.Notification{
		UserID:  req.RequesterID,
		Type:    models.NotifyRequestAccepted,
		Title:   "Request accepted",
		Body:    "Your request was accepted. Say hi!",
		RefType: "chat",
		RefID:   *req.ChatID,
	})
	return &req, nil
}

func (s *RequestService) Reject(ctx context.Context, hostID, requestID uint) (*models.JoinRequest, error) {
	var req models.JoinRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.loadForResponse(tx, hostID, requestID, &req); err != nil {
			return err
		}
		now := s.now()
		res := tx.Model(&models.JoinRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestPending).
			Updates(map[string]any{"status": models.RequestRejected, "responded_at": now})
		if res.Error != nil {
			return apperrors.ErrStore("requests.reject", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrRequestNotPending
		}
		req.Status = models.RequestRejected
		req.RespondedAt = &now
		return nil
	})
	if err != nil {
		return nil, txErr("requests.reject", err)
	}

	s.publish(&req)
	s.logger.Info("request rejected", "request_id", req.ID)
	notifyBestEffort(ctx, s.notifier, s.logger, &models.Notification{
		UserID:  req.RequesterID,
		Type:    models.NotifyRequestRejected,
		Title:   "Request declined",
		Body:    "Your request was declined.",
		RefType: "request",
		RefID:   req.ID,
	})
	return &req, nil
}

// UpdateStatus accepts only the two legal transitions and routes to them.
func (s *RequestService) UpdateStatus(ctx context.Context, actorID, requestID uint, status string) (*models.JoinRequest, error) {
	switch status {
	case models.RequestAccepted:
		return s.Accept(ctx, actorID, requestID)
	case models.RequestRejected:
		return s.Reject(ctx, actorID, requestID)
	default:
		return nil, apperrors.ErrInvalidStatus
	}
}

// Withdraw deletes a requester's own pending request.
func (s *RequestService) Withdraw(ctx context.Context, requesterID, requestID uint) error {
	var req models.JoinRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&req, requestID).Error; err != nil {
			return lookupErr("requests.get", err, apperrors.ErrRequestNotFound)
		}
		if req.RequesterID != requesterID {
			return apperrors.ErrNotRequestOwner
		}
		res := tx.Where("id = ? AND status = ?", req.ID, models.RequestPending).Delete(&models.JoinRequest{})
		if res.Error != nil {
			return apperrors.ErrStore("requests.delete", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrRequestNotPending
		}
		return nil
	})
	if err != nil {
		return txErr("requests.withdraw", err)
	}
	s.publish(&req)
	return nil
}

func (s *RequestService) Get(ctx context.Context, actorID, requestID uint) (*models.JoinRequest, error) {
	var req models.JoinRequest
	if err := s.db.WithContext(ctx).First(&req, requestID).Error; err != nil {
		return nil, lookupErr("requests.get", err, apperrors.ErrRequestNotFound)
	}
	if !req.IsParticipant(actorID) {
		return nil, apperrors.ErrNotRequestMember
	}
	return &req, nil
}

// List returns the principal's requests in the given role, newest first.
func (s *RequestService) List(ctx context.Context, principalID uint, role string) ([]models.JoinRequest, error) {
	column, err := roleColumn(role)
	if err != nil {
		return nil, err
	}
	out := []models.JoinRequest{}
	err = s.db.WithContext(ctx).Where(column+" = ?", principalID).Order("created_at DESC, id DESC").Find(&out).Error
	if err != nil {
		return nil, apperrors.ErrStore("requests.list", err)
	}
	return out, nil
}

// Subscribe delivers List's result now and after every change that touches
// the principal in that role.
func (s *RequestService) Subscribe(principalID uint, role string, fn Snapshot[[]models.JoinRequest]) (*realtime.Subscription, error) {
	if _, err := roleColumn(role); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(realtime.RequestsTopic(role, principalID), func() {
		fn(s.List(background(), principalID, role))
	}), nil
}

func insertRequest(tx *gorm.DB, req *models.JoinRequest) error {
	err := tx.Create(req).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.ErrDuplicateRequest
	}
	if err != nil {
		return apperrors.ErrStore("requests.insert", err)
	}
	return nil
}

// loadForResponse reads the request a host is about to answer. On Postgres
// the row stays locked until the transaction ends, so a second response
// waits and then sees the new status.
func (s *RequestService) loadForResponse(tx *gorm.DB, hostID, requestID uint, req *models.JoinRequest) error {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(req, requestID).Error; err != nil {
		return lookupErr("requests.get", err, apperrors.ErrRequestNotFound)
	}
	if req.HostID != hostID {
		return apperrors.ErrNotRequestHost
	}
	if req.Status != models.RequestPending {
		return apperrors.ErrRequestNotPending
	}
	return nil
}

func (s *RequestService) publish(req *models.JoinRequest) {
	s.hub.Publish(
		realtime.RequestsTopic(RoleHost, req.HostID),
		realtime.RequestsTopic(RoleRequester, req.RequesterID),
	)
}

func roleColumn(role string) (string, error) {
	switch role {
	case RoleHost:
		return "host_id", nil
	case RoleRequester:
		return "requester_id", nil
	default:
		return "", apperrors.ErrInvalidRole
	}
}
