package models

import "time"

// Club is a reading group. The owner gets an OWNER membership at creation time.
type Club struct {
	ID          string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
	CoverURL    string `gorm:"type:text" json:"cover_url,omitempty"`
	OwnerID     string `gorm:"type:uuid;index;not null" json:"owner_id"`

	Members []ClubMembership `json:"members,omitempty" gorm:"foreignKey:ClubID"`

	Timestamps
}

type ClubRole string

const (
	ClubRoleOwner     ClubRole = "OWNER"
	ClubRoleModerator ClubRole = "MODERATOR"
	ClubRoleReader    ClubRole = "READER"
)

// CanManage reports whether the role may resolve join requests and change books.
func (r ClubRole) CanManage() bool {
	return r == ClubRoleOwner || r == ClubRoleModerator
}

// ClubMembership associates a user to a club. One row per (club, user).
type ClubMembership struct {
	ID       string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ClubID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_club_user,priority:1" json:"club_id"`
	UserID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_club_user,priority:2;index" json:"user_id"`
	Role     ClubRole  `gorm:"type:varchar(16);not null;default:'READER'" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
