package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"book-club-system/apperrors"
	"book-club-system/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
// Transactions are serialised against each other and keep an undo journal,
// so a rollback reverts only the rows the transaction itself wrote.
type MemoryStore struct {
	*memoryDB

	// journal is nil outside a transaction.
	journal *memoryJournal
}

type memoryDB struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	users         map[string]models.User
	clubs         map[string]models.Club
	memberships   map[string]models.ClubMembership
	requests      map[string]models.MembershipRequest
	books         map[string]models.Book
	notifications map[string]models.Notification
	xpEvents      []models.XPEvent

	// OnWrite, when set, runs before every write and may fail it.
	// The op names match the Store method names.
	OnWrite func(op string) error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memoryDB: &memoryDB{
		users:         make(map[string]models.User),
		clubs:         make(map[string]models.Club),
		memberships:   make(map[string]models.ClubMembership),
		requests:      make(map[string]models.MembershipRequest),
		books:         make(map[string]models.Book),
		notifications: make(map[string]models.Notification),
	}}
}

// memoryJournal holds undo steps, applied newest first on rollback.
// Steps are pushed and run with mu held.
type memoryJournal struct {
	steps []func()
}

func (j *memoryJournal) rollback() {
	for i := len(j.steps) - 1; i >= 0; i-- {
		j.steps[i]()
	}
	j.steps = nil
}

// remember records how to restore m[key] to its current state. Callers hold mu.
func remember[V any](s *MemoryStore, m map[string]V, key string) {
	if s.journal == nil {
		return
	}
	prev, existed := m[key]
	s.journal.steps = append(s.journal.steps, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

func (s *MemoryStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	if s.journal != nil {
		return fn(s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &MemoryStore{memoryDB: s.memoryDB, journal: &memoryJournal{}}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		tx.journal.rollback()
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) checkWrite(op string) error {
	if s.OnWrite != nil {
		return s.OnWrite(op)
	}
	return nil
}

// --- progress ---

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, apperrors.NewNotFoundError("user not found")
	}
	return &u, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	if err := s.checkWrite("CreateUser"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Level < 1 {
		user.Level = 1
	}
	if _, exists := s.users[user.ID]; exists {
		return apperrors.NewConflictError("user already exists")
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	remember(s, s.users, user.ID)
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) LockUsers(_ context.Context, userIDs []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CompareAndSetProgress(_ context.Context, userID string, expectedXP, xp int64, level int, leveledUpAt *time.Time) (bool, error) {
	if err := s.checkWrite("CompareAndSetProgress"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.XP != expectedXP {
		return false, nil
	}
	remember(s, s.users, userID)
	s.users[userID] = withProgress(u, xp, level, leveledUpAt)
	return true, nil
}

func (s *MemoryStore) SetProgress(_ context.Context, userID string, xp int64, level int, leveledUpAt *time.Time) error {
	if err := s.checkWrite("SetProgress"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return apperrors.NewNotFoundError("user not found")
	}
	remember(s, s.users, userID)
	s.users[userID] = withProgress(u, xp, level, leveledUpAt)
	return nil
}

func withProgress(u models.User, xp int64, level int, leveledUpAt *time.Time) models.User {
	u.XP = xp
	u.Level = level
	if leveledUpAt != nil {
		t := *leveledUpAt
		u.LastLevelUpAt = &t
	}
	u.UpdatedAt = time.Now()
	return u
}

func (s *MemoryStore) AppendXPEvents(_ context.Context, events []models.XPEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := s.checkWrite("AppendXPEvents"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	added := make(map[string]struct{}, len(events))
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
		if events[i].CreatedAt.IsZero() {
			events[i].CreatedAt = now
		}
		added[events[i].ID] = struct{}{}
		s.xpEvents = append(s.xpEvents, events[i])
	}
	if s.journal != nil {
		s.journal.steps = append(s.journal.steps, func() {
			kept := s.xpEvents[:0]
			for _, e := range s.xpEvents {
				if _, ok := added[e.ID]; !ok {
					kept = append(kept, e)
				}
			}
			s.xpEvents = kept
		})
	}
	return nil
}

func (s *MemoryStore) ListXPEvents(_ context.Context, userID string, offset, limit int) ([]models.XPEvent, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var mine []models.XPEvent
	// newest first; the ledger is append-only so reverse order is creation order
	for i := len(s.xpEvents) - 1; i >= 0; i-- {
		if s.xpEvents[i].UserID == userID {
			mine = append(mine, s.xpEvents[i])
		}
	}
	total := int64(len(mine))
	if offset >= len(mine) {
		return []models.XPEvent{}, total, nil
	}
	end := offset + limit
	if end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], total, nil
}

// --- clubs ---

func (s *MemoryStore) CreateClub(_ context.Context, club *models.Club) error {
	if err := s.checkWrite("CreateClub"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clubs {
		if c.Slug == club.Slug {
			return apperrors.NewConflictError("club slug already taken")
		}
	}
	if club.ID == "" {
		club.ID = uuid.NewString()
	}
	now := time.Now()
	club.CreatedAt, club.UpdatedAt = now, now
	stored := *club
	stored.Members = nil
	remember(s, s.clubs, club.ID)
	s.clubs[club.ID] = stored
	return nil
}

func (s *MemoryStore) GetClub(_ context.Context, clubID string) (*models.Club, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clubs[clubID]
	if !ok {
		return nil, apperrors.NewNotFoundError("club not found")
	}
	return &c, nil
}

func (s *MemoryStore) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clubs {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UpdateClubCover(_ context.Context, clubID, coverURL string) error {
	if err := s.checkWrite("UpdateClubCover"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clubs[clubID]
	if !ok {
		return apperrors.NewNotFoundError("club not found")
	}
	c.CoverURL = coverURL
	c.UpdatedAt = time.Now()
	remember(s, s.clubs, clubID)
	s.clubs[clubID] = c
	return nil
}

func (s *MemoryStore) ListMembers(_ context.Context, clubID string) ([]models.ClubMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ClubMembership
	for _, m := range s.memberships {
		if m.ClubID == clubID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetMembership(_ context.Context, clubID, userID string) (*models.ClubMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.ClubID == clubID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, apperrors.NewNotFoundError("membership not found")
}

func (s *MemoryStore) CreateMembership(_ context.Context, membership *models.ClubMembership) error {
	if err := s.checkWrite("CreateMembership"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.ClubID == membership.ClubID && m.UserID == membership.UserID {
			return apperrors.NewConflictError("user is already a member of this club").WithCode(apperrors.CodeAlreadyMember)
		}
	}
	if membership.ID == "" {
		membership.ID = uuid.NewString()
	}
	if membership.JoinedAt.IsZero() {
		membership.JoinedAt = time.Now()
	}
	remember(s, s.memberships, membership.ID)
	s.memberships[membership.ID] = *membership
	return nil
}

func (s *MemoryStore) UpdateMemberRole(_ context.Context, clubID, userID string, role models.ClubRole) error {
	if err := s.checkWrite("UpdateMemberRole"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memberships {
		if m.ClubID == clubID && m.UserID == userID {
			m.Role = role
			remember(s, s.memberships, id)
			s.memberships[id] = m
			return nil
		}
	}
	return apperrors.NewNotFoundError("membership not found")
}

func (s *MemoryStore) CreateRequest(_ context.Context, req *models.MembershipRequest) error {
	if err := s.checkWrite("CreateRequest"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.State == models.RequestPending {
		for _, r := range s.requests {
			if r.ClubID == req.ClubID && r.UserID == req.UserID && r.State == models.RequestPending {
				return apperrors.NewConflictError("a join request is already pending").WithCode(apperrors.CodeAlreadyRequested)
			}
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	remember(s, s.requests, req.ID)
	s.requests[req.ID] = *req
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, requestID string) (*models.MembershipRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, apperrors.NewNotFoundError("membership request not found")
	}
	return &r, nil
}

func (s *MemoryStore) FindPendingRequest(_ context.Context, clubID, userID string) (*models.MembershipRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.ClubID == clubID && r.UserID == userID && r.State == models.RequestPending {
			return &r, nil
		}
	}
	return nil, apperrors.NewNotFoundError("membership request not found")
}

func (s *MemoryStore) ListPendingRequests(_ context.Context, clubID string) ([]models.MembershipRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MembershipRequest
	for _, r := range s.requests {
		if r.ClubID == clubID && r.State == models.RequestPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ResolveRequest(_ context.Context, requestID string, state models.RequestState, resolvedBy string, at time.Time) (bool, error) {
	if err := s.checkWrite("ResolveRequest"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok || r.State != models.RequestPending {
		return false, nil
	}
	by := resolvedBy
	r.State = state
	r.ResolvedBy = &by
	r.ResolvedAt = &at
	remember(s, s.requests, requestID)
	s.requests[requestID] = r
	return true, nil
}

func (s *MemoryStore) CreateBook(_ context.Context, book *models.Book) error {
	if err := s.checkWrite("CreateBook"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if book.Status == "" {
		book.Status = models.BookStatusPending
	}
	now := time.Now()
	book.CreatedAt, book.UpdatedAt = now, now
	remember(s, s.books, book.ID)
	s.books[book.ID] = *book
	return nil
}

func (s *MemoryStore) GetBook(_ context.Context, bookID string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookID]
	if !ok {
		return nil, apperrors.NewNotFoundError("book not found")
	}
	return &b, nil
}

func (s *MemoryStore) FindBookByTitle(_ context.Context, clubID, normalizedTitle string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.books {
		if b.ClubID == clubID && b.NormalizedTitle == normalizedTitle {
			return &b, nil
		}
	}
	return nil, apperrors.NewNotFoundError("book not found")
}

func (s *MemoryStore) UpdateBookStatus(_ context.Context, bookID string, from, to models.BookStatus) (bool, error) {
	if err := s.checkWrite("UpdateBookStatus"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	remember(s, s.books, bookID)
	s.books[bookID] = b
	return true, nil
}

// --- notifications ---

func (s *MemoryStore) CreateNotification(_ context.Context, n *models.Notification) error {
	if err := s.checkWrite("CreateNotification"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	remember(s, s.notifications, n.ID)
	s.notifications[n.ID] = *n
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, userID, notificationID string, at time.Time) error {
	if err := s.checkWrite("MarkNotificationRead"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[notificationID]
	if !ok || n.UserID != userID {
		return apperrors.NewNotFoundError("notification not found")
	}
	n.Read = true
	n.ReadAt = &at
	remember(s, s.notifications, notificationID)
	s.notifications[notificationID] = n
	return nil
}

func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int64, error) {
	if err := s.checkWrite("MarkAllNotificationsRead"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			n.ReadAt = &at
			remember(s, s.notifications, id)
			s.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) PurgeReadNotifications(_ context.Context, readBefore time.Time) (int64, error) {
	if err := s.checkWrite("PurgeReadNotifications"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, n := range s.notifications {
		if n.Read && n.ReadAt != nil && n.ReadAt.Before(readBefore) {
			remember(s, s.notifications, id)
			delete(s.notifications, id)
			count++
		}
	}
	return count, nil
}
