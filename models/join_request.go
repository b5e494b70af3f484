package models

import "time"

const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// JoinRequest asks a host to let the requester join a date.
// ChatID is set exactly when Status is accepted. idx_request_live allows one
// pending or accepted request per (date, requester); rejected rows stay out
// of it so a rejected requester may ask again.
type JoinRequest struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	DateID      uint       `gorm:"not null;index:idx_request_date_requester;uniqueIndex:idx_request_live,where:status <> 'rejected'" json:"date_id"`
	HostID      uint       `gorm:"not null;index" json:"host_id"`
	RequesterID uint       `gorm:"not null;index;index:idx_request_date_requester;uniqueIndex:idx_request_live,where:status <> 'rejected'" json:"requester_id"`
	Status      string     `gorm:"size:20;not null;default:'pending';index" json:"status"` // pending | accepted | rejected
	ChatID      *uint      `json:"chat_id"`
	Message     string     `gorm:"size:500" json:"message"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;<-:create" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	RespondedAt *time.Time `json:"responded_at"`
}

func (JoinRequest) TableName() string {
	return "requests"
}

func (r JoinRequest) IsParticipant(userID uint) bool {
	return r.HostID == userID || r.RequesterID == userID
}
