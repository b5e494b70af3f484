package models

import "time"

// ChatChannel is created when a request is accepted.
type ChatChannel struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	HostID      uint      `gorm:"column:host_id;not null;index" json:"host_id"`
	RequesterID uint      `gorm:"column:requester_id;not null;index" json:"requester_id"`
	DateID      uint      `gorm:"column:date_id;not null" json:"date_id"`
	RequestID   uint      `gorm:"column:request_id;not null;uniqueIndex" json:"request_id"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ChatChannel) TableName() string {
	return "chats"
}

func (c ChatChannel) IsParticipant(userID uint) bool {
	return c.HostID == userID || c.RequesterID == userID
}

// Peer returns the other participant.
func (c ChatChannel) Peer(userID uint) uint {
	if c.HostID == userID {
		return c.RequesterID
	}
	return c.HostID
}

type Message struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ChatID    uint      `gorm:"column:chat_id;not null;index" json:"chat_id"`
	SenderID  uint      `gorm:"column:sender_id;not null" json:"sender_id"`
	Text      string    `gorm:"column:text;type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

type TypingState struct {
	ChatID      uint      `gorm:"column:chat_id;primaryKey;autoIncrement:false" json:"chat_id"`
	UserID      uint      `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"user_id"`
	IsTyping    bool      `gorm:"column:is_typing" json:"is_typing"`
	DisplayName string    `gorm:"column:display_name;size:100" json:"display_name"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

func (TypingState) TableName() string {
	return "typing_states"
}
