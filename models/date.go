package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	DateStatusOpen   = "open"
	DateStatusClosed = "closed"
)

type DatePosting struct {
	ID          uint                        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	HostID      uint                        `gorm:"column:host_id;not null;index" json:"host_id"`
	Title       string                      `gorm:"column:title;size:120;not null" json:"title"`
	Details     *string                     `gorm:"column:details;type:text" json:"details"`
	Location    string                      `gorm:"column:location;size:255" json:"location"`
	ScheduledAt time.Time                   `gorm:"column:scheduled_at" json:"scheduled_at"`
	Category    string                      `gorm:"column:category;size:50;index" json:"category"`
	Photos      datatypes.JSONSlice[string] `gorm:"column:photos" json:"photos"`
	Status      string                      `gorm:"column:status;size:20;default:'open';index" json:"status"` // open | closed
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Host *User `gorm:"foreignKey:HostID" json:"host,omitempty"`
}

func (DatePosting) TableName() string {
	return "dates"
}
