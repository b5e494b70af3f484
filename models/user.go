package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// User is the principal. Women request, men host.
type User struct {
	ID           uint                        `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string                      `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string                      `gorm:"size:255" json:"-"`
	DisplayName  string                      `gorm:"size:100;not null" json:"display_name"`
	Gender       string                      `gorm:"size:10;index" json:"gender"` // male | female
	Bio          *string                     `gorm:"type:text" json:"bio"`
	Location     *string                     `gorm:"size:255" json:"location"`
	BirthDate    *time.Time                  `json:"birth_date"`
	Photos       datatypes.JSONSlice[string] `json:"photos"`
	IsAdmin      bool                        `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt    time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u User) IsHostRole() bool { return u.Gender == GenderMale }
