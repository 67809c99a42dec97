package services

import (
	"context"
	"time"

	"book-club-system/models"
)

// Store is the persistence boundary of the service layer. Lookups of missing
// rows return an apperrors NotFound error.
type Store interface {
	ProgressStore
	ClubStore
	NotificationStore

	// WithinTx runs fn inside a single transaction. A non-nil error from fn
	// rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// ProgressStore covers users' xp/level state and the XP ledger.
type ProgressStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	// LockUsers loads the given users ordered by id, holding row locks until
	// the enclosing transaction ends. Unknown ids are skipped.
	LockUsers(ctx context.Context, userIDs []string) ([]models.User, error)
	// CompareAndSetProgress writes xp and level only when the stored xp still
	// equals expectedXP. It reports whether the row was updated.
	CompareAndSetProgress(ctx context.Context, userID string, expectedXP, xp int64, level int, leveledUpAt *time.Time) (bool, error)
	SetProgress(ctx context.Context, userID string, xp int64, level int, leveledUpAt *time.Time) error
	AppendXPEvents(ctx context.Context, events []models.XPEvent) error
	ListXPEvents(ctx context.Context, userID string, offset, limit int) ([]models.XPEvent, int64, error)
}

// ClubStore covers clubs, memberships, join requests and reading lists.
type ClubStore interface {
	CreateClub(ctx context.Context, club *models.Club) error
	GetClub(ctx context.Context, clubID string) (*models.Club, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdateClubCover(ctx context.Context, clubID, coverURL string) error

	ListMembers(ctx context.Context, clubID string) ([]models.ClubMembership, error)
	GetMembership(ctx context.Context, clubID, userID string) (*models.ClubMembership, error)
	// CreateMembership fails with a Conflict error when the pair already exists.
	CreateMembership(ctx context.Context, membership *models.ClubMembership) error
	UpdateMemberRole(ctx context.Context, clubID, userID string, role models.ClubRole) error

	CreateRequest(ctx context.Context, req *models.MembershipRequest) error
	GetRequest(ctx context.Context, requestID string) (*models.MembershipRequest, error)
	FindPendingRequest(ctx context.Context, clubID, userID string) (*models.MembershipRequest, error)
	ListPendingRequests(ctx context.Context, clubID string) ([]models.MembershipRequest, error)
	// ResolveRequest moves a pending request into state. It reports false when
	// the request was no longer pending.
	ResolveRequest(ctx context.Context, requestID string, state models.RequestState, resolvedBy string, at time.Time) (bool, error)

	CreateBook(ctx context.Context, book *models.Book) error
	GetBook(ctx context.Context, bookID string) (*models.Book, error)
	FindBookByTitle(ctx context.Context, clubID, normalizedTitle string) (*models.Book, error)
	// UpdateBookStatus changes status only when the stored status equals from.
	UpdateBookStatus(ctx context.Context, bookID string, from, to models.BookStatus) (bool, error)
}

// NotificationStore covers stored notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error)
	PurgeReadNotifications(ctx context.Context, readBefore time.Time) (int64, error)
}
