package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the local reader record. XP and Level are denormalised progression
// state: they are always written together, never one without the other.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Username string `gorm:"index;not null" json:"username"`
	Email    string `gorm:"index" json:"email,omitempty"`

	// Core progression
	XP    int64 `json:"xp" gorm:"not null;default:0;check:xp >= 0"`
	Level int   `json:"level" gorm:"not null;default:1;check:level >= 1"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
