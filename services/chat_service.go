package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/vnkhanh/dating-server/models"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/realtime"
)

const (
	DefaultMessagePage = 50
	MaxMessagePage     = 200
	DefaultTypingTTL   = 6 * time.Second
)

type ChatService struct {
	db        *gorm.DB
	hub       *realtime.Hub
	logger    *slog.Logger
	now       func() time.Time
	typing    TypingStore
	typingTTL time.Duration
	notifier  Notifier
}

func NewChatService(d Deps, typing TypingStore, typingTTL time.Duration, notifier Notifier) *ChatService {
	d = d.withDefaults()
	if typing == nil {
		typing = NewDBTypingStore(d.DB)
	}
	if typingTTL <= 0 {
		typingTTL = DefaultTypingTTL
	}
	return &ChatService{
		db:        d.DB,
		hub:       d.Hub,
		logger:    d.Logger,
		now:       d.Now,
		typing:    typing,
		typingTTL: typingTTL,
		notifier:  notifier,
	}
}

// createChannel inserts a chat for an accepted request. The unique index on
// request_id keeps it to one chat per request.
func createChannel(tx *gorm.DB, hostID, requesterID, dateID, requestID uint) (*models.ChatChannel, error) {
	chat := &models.ChatChannel{
		HostID:      hostID,
		RequesterID: requesterID,
		DateID:      dateID,
		RequestID:   requestID,
	}
	err := tx.Create(chat).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperrors.ErrChatExists
	}
	if err != nil {
		return nil, apperrors.ErrStore("chats.insert", err)
	}
	return chat, nil
}

// CreateChannel creates a chat outside of request acceptance.
func (s *ChatService) CreateChannel(ctx context.Context, hostID, requesterID, dateID, requestID uint) (*models.ChatChannel, error) {
	if hostID == 0 || requesterID == 0 || hostID == requesterID {
		return nil, apperrors.InvalidArg("a chat needs two distinct participants")
	}
	chat, err := createChannel(s.db.WithContext(ctx), hostID, requesterID, dateID, requestID)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(realtime.ChatsTopic(hostID), realtime.ChatsTopic(requesterID))
	return chat, nil
}

// Channel loads a chat the viewer participates in.
func (s *ChatService) Channel(ctx context.Context, chatID, viewerID uint) (*models.ChatChannel, error) {
	var chat models.ChatChannel
	if err := s.db.WithContext(ctx).First(&chat, chatID).Error; err != nil {
		return nil, lookupErr("chats.get", err, apperrors.ErrChatNotFound)
	}
	if !chat.IsParticipant(viewerID) {
		return nil, apperrors.ErrNotChatMember
	}
	return &chat, nil
}

func (s *ChatService) ListChannels(ctx context.Context, userID uint) ([]models.ChatChannel, error) {
	out := []models.ChatChannel{}
	err := s.db.WithContext(ctx).
		Where("host_id = ? OR requester_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, apperrors.ErrStore("chats.list", err)
	}
	return out, nil
}

func (s *ChatService) SubscribeChannels(userID uint, fn Snapshot[[]models.ChatChannel]) *realtime.Subscription {
	return s.hub.Subscribe(realtime.ChatsTopic(userID), func() {
		fn(s.ListChannels(background(), userID))
	})
}

// SendMessage appends text to the chat. The message id is the server's
// ordering key.
func (s *ChatService) SendMessage(ctx context.Context, chatID, senderID uint, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	chat, err := s.Channel(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{ChatID: chat.ID, SenderID: senderID, Text: text}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, apperrors.ErrStore("messages.insert", err)
	}
	s.hub.Publish(realtime.MessagesTopic(chat.ID))

	// Sending ends typing.
	if err := s.typing.Set(ctx, models.TypingState{ChatID: chat.ID, UserID: senderID, UpdatedAt: s.now()}); err != nil {
		s.logger.Warn("typing not cleared", "chat_id", chat.ID, "user_id", senderID, "err", err)
	} else {
		s.hub.Publish(realtime.TypingTopic(chat.ID))
	}

	peer := chat.Peer(senderID)
	if !s.isOnline(ctx, peer) {
		notifyBestEffort(ctx, s.notifier, s.logger, &models.Notification{
			UserID:  peer,
			Type:    models.NotifyMessageReceived,
			Title:   "New message",
			Body:    preview(text, 80),
			RefType: "chat",
			RefID:   chat.ID,
		})
	}
	return msg, nil
}

type MessagePage struct {
	BeforeID uint // only messages with a smaller id; 0 starts at the newest
	Limit    int
}

// ListMessages returns one page, newest first.
func (s *ChatService) ListMessages(ctx context.Context, chatID, viewerID uint, page MessagePage) ([]models.Message, error) {
	if _, err := s.Channel(ctx, chatID, viewerID); err != nil {
		return nil, err
	}
	return s.messages(ctx, chatID, page)
}

func (s *ChatService) messages(ctx context.Context, chatID uint, page MessagePage) ([]models.Message, error) {
	q := s.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if page.BeforeID != 0 {
		q = q.Where("id < ?", page.BeforeID)
	}
	out := []models.Message{}
	err := q.Order("id DESC").Limit(clampLimit(page.Limit, DefaultMessagePage, MaxMessagePage)).Find(&out).Error
	if err != nil {
		return nil, apperrors.ErrStore("messages.list", err)
	}
	return out, nil
}

// SubscribeMessages streams the newest window of the chat.
func (s *ChatService) SubscribeMessages(ctx context.Context, chatID, viewerID uint, limit int, fn Snapshot[[]models.Message]) (*realtime.Subscription, error) {
	if _, err := s.Channel(ctx, chatID, viewerID); err != nil {
		return nil, err
	}
	page := MessagePage{Limit: limit}
	return s.hub.Subscribe(realtime.MessagesTopic(chatID), func() {
		fn(s.messages(background(), chatID, page))
	}), nil
}

// SetTyping records the caller's typing flag, last write wins.
func (s *ChatService) SetTyping(ctx context.Context, chatID, userID uint, isTyping bool, displayName string) error {
	chat, err := s.Channel(ctx, chatID, userID)
	if err != nil {
		return err
	}
	state := models.TypingState{
		ChatID:      chat.ID,
		UserID:      userID,
		IsTyping:    isTyping,
		DisplayName: displayName,
		UpdatedAt:   s.now(),
	}
	if err := s.typing.Set(ctx, state); err != nil {
		return err
	}
	s.hub.Publish(realtime.TypingTopic(chat.ID))
	return nil
}

// ListTyping returns who else is typing. Entries older than the TTL count
// as stopped.
func (s *ChatService) ListTyping(ctx context.Context, chatID, viewerID uint) ([]models.TypingState, error) {
	chat, err := s.Channel(ctx, chatID, viewerID)
	if err != nil {
		return nil, err
	}
	return s.activeTypers(ctx, chat, viewerID)
}

func (s *ChatService) activeTypers(ctx context.Context, chat *models.ChatChannel, viewerID uint) ([]models.TypingState, error) {
	all, err := s.typing.Active(ctx, chat, s.now().Add(-s.typingTTL))
	if err != nil {
		return nil, err
	}
	out := make([]models.TypingState, 0, len(all))
	for _, st := range all {
		if st.UserID != viewerID {
			out = append(out, st)
		}
	}
	return out, nil
}

// SubscribeTyping re-evaluates when the oldest visible entry would expire,
// so a typer who went quiet disappears without another write.
func (s *ChatService) SubscribeTyping(ctx context.Context, chatID, viewerID uint, fn Snapshot[[]models.TypingState]) (*realtime.Subscription, error) {
	chat, err := s.Channel(ctx, chatID, viewerID)
	if err != nil {
		return nil, err
	}
	return s.hub.SubscribeHandle(realtime.TypingTopic(chat.ID), func(sub *realtime.Subscription) {
		typers, err := s.activeTypers(background(), chat, viewerID)
		fn(typers, err)
		if err != nil || len(typers) == 0 {
			return
		}
		oldest := typers[0].UpdatedAt
		for _, st := range typers[1:] {
			if st.UpdatedAt.Before(oldest) {
				oldest = st.UpdatedAt
			}
		}
		sub.NotifyAfter(oldest.Add(s.typingTTL).Sub(s.now()) + 10*time.Millisecond)
	}), nil
}

func (s *ChatService) isOnline(ctx context.Context, userID uint) bool {
	var rec models.PresenceRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&rec).Error
	return err == nil && rec.State == models.PresenceOnline
}

func preview(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= n {
		return string(r)
	}
	return fmt.Sprintf("%s…", string(r[:n]))
}
