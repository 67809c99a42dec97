package models

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationLevelUp             NotificationType = "LEVEL_UP"
	NotificationRequestAccepted     NotificationType = "REQUEST_ACCEPTED"
	NotificationRequestRejected     NotificationType = "REQUEST_REJECTED"
	NotificationMembershipRequested NotificationType = "MEMBERSHIP_REQUESTED"
)

// Notification is created only by the notification sink. Read toggling is
// the only mutation after creation.
type Notification struct {
	ID        string           `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string           `gorm:"type:uuid;not null;index" json:"user_id"`
	Type      NotificationType `gorm:"type:varchar(32);not null;index" json:"type"`
	Title     string           `gorm:"size:120;not null" json:"title"`
	Message   string           `gorm:"size:500" json:"message"`
	Payload   json.RawMessage  `gorm:"type:jsonb" json:"payload,omitempty"`
	Read      bool             `gorm:"not null;default:false;index" json:"read"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// LevelUpPayload is stored as the payload of LEVEL_UP notifications.
type LevelUpPayload struct {
	OldLevel   int        `json:"old_level"`
	NewLevel   int        `json:"new_level"`
	XPGained   int64      `json:"xp_gained"`
	XPTotal    int64      `json:"xp_total"`
	ActionKind ActionKind `json:"action_kind"`
}

// MembershipPayload is stored as the payload of membership notifications.
type MembershipPayload struct {
	RequestID string `json:"request_id"`
	ClubID    string `json:"club_id"`
	ClubName  string `json:"club_name"`
	UserID    string `json:"user_id,omitempty"`
}
