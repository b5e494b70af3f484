package models

import "time"

const (
	NotifyRequestReceived = "request_received"
	NotifyRequestAccepted = "request_accepted"
	NotifyRequestRejected = "request_rejected"
	NotifyMessageReceived = "message_received"
)

type Notification struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index" json:"user_id"`

	Type  string `gorm:"size:32;index" json:"type"`
	Title string `gorm:"size:100" json:"title"`
	Body  string `gorm:"size:500" json:"body"`

	// Reference data
	RefType string `gorm:"size:32" json:"ref_type"` // request, chat, date
	RefID   uint   `json:"ref_id"`

	IsRead    bool       `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}

// DeviceToken associates a push delivery token with a principal.
type DeviceToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"size:255;uniqueIndex;not null" json:"token"`
	Platform  string    `gorm:"size:20" json:"platform"` // ios | android | web
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All lists every table for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&DatePosting{},
		&JoinRequest{},
		&ChatChannel{},
		&Message{},
		&TypingState{},
		&PresenceRecord{},
		&Notification{},
		&DeviceToken{},
	}
}
