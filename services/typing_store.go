package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vnkhanh/dating-server/models"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
)

// TypingStore keeps the ephemeral typing flags of a chat.
type TypingStore interface {
	Set(ctx context.Context, state models.TypingState) error
	// Active returns entries of chat with IsTyping set and UpdatedAt after since.
	Active(ctx context.Context, chat *models.ChatChannel, since time.Time) ([]models.TypingState, error)
}

// DBTypingStore keeps typing rows in the typing_states table and relies on
// readers to ignore stale rows.
type DBTypingStore struct {
	db *gorm.DB
}

func NewDBTypingStore(db *gorm.DB) *DBTypingStore {
	return &DBTypingStore{db: db}
}

func (s *DBTypingStore) Set(ctx context.Context, state models.TypingState) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_typing", "display_name", "updated_at"}),
	}).Create(&state).Error
	if err != nil {
		return apperrors.ErrStore("typing.upsert", err)
	}
	return nil
}

func (s *DBTypingStore) Active(ctx context.Context, chat *models.ChatChannel, since time.Time) ([]models.TypingState, error) {
	out := []models.TypingState{}
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND is_typing = ? AND updated_at > ?", chat.ID, true, since).
		Order("user_id").
		Find(&out).Error
	if err != nil {
		return nil, apperrors.ErrStore("typing.active", err)
	}
	return out, nil
}

// RedisTypingStore keeps one key per (chat, user) that expires after ttl.
type RedisTypingStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTypingStore(rdb *redis.Client, ttl time.Duration) *RedisTypingStore {
	return &RedisTypingStore{rdb: rdb, ttl: ttl}
}

func typingKey(chatID, userID uint) string {
	return fmt.Sprintf("typing:chat:%d:user:%d", chatID, userID)
}

func (s *RedisTypingStore) Set(ctx context.Context, state models.TypingState) error {
	key := typingKey(state.ChatID, state.UserID)
	if !state.IsTyping {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return apperrors.ErrStore("typing.del", err)
		}
		return nil
	}
	b, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "encode typing state", err)
	}
	if err := s.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
		return apperrors.ErrStore("typing.set", err)
	}
	return nil
}

// Active reads the two participants' keys; a chat never has more.
func (s *RedisTypingStore) Active(ctx context.Context, chat *models.ChatChannel, since time.Time) ([]models.TypingState, error) {
	vals, err := s.rdb.MGet(ctx, typingKey(chat.ID, chat.HostID), typingKey(chat.ID, chat.RequesterID)).Result()
	if err != nil {
		return nil, apperrors.ErrStore("typing.mget", err)
	}
	out := []models.TypingState{}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var st models.TypingState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			continue
		}
		if st.IsTyping && st.UpdatedAt.After(since) {
			out = append(out, st)
		}
	}
	return out, nil
}
