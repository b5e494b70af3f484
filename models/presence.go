package models

import "time"

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

type PresenceRecord struct {
	UserID      uint      `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"user_id"`
	State       string    `gorm:"column:state;size:10;not null" json:"state"` // online | offline
	LastChanged time.Time `gorm:"column:last_changed" json:"last_changed"`
}

func (PresenceRecord) TableName() string {
	return "presence"
}
