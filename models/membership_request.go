package models

import "time"

type RequestState string

const (
	RequestPending  RequestState = "pending"
	RequestAccepted RequestState = "accepted"
	RequestRejected RequestState = "rejected"
)

// MembershipRequest is a user's request to join a club. Terminal once it
// leaves pending; a further attempt needs a new request. At most one request
// per club and user is pending at a time.
type MembershipRequest struct {
	ID         string       `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ClubID     string       `gorm:"type:uuid;not null;index:idx_request_club_user,priority:1;uniqueIndex:idx_request_pending,priority:1,where:state = 'pending'" json:"club_id"`
	UserID     string       `gorm:"type:uuid;not null;index:idx_request_club_user,priority:2;uniqueIndex:idx_request_pending,priority:2,where:state = 'pending'" json:"user_id"`
	State      RequestState `gorm:"type:varchar(16);not null;default:'pending';index" json:"state"`
	ResolvedBy *string      `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
}
