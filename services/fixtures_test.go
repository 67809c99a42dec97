package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"book-club-system/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// recordingDispatcher keeps every dispatched notification in memory.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (d *recordingDispatcher) Dispatch(n models.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
}

func (d *recordingDispatcher) all() []models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Notification(nil), d.sent...)
}

func (d *recordingDispatcher) ofType(kind models.NotificationType) []models.Notification {
	var out []models.Notification
	for _, n := range d.all() {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

type panickingDispatcher struct{}

func (panickingDispatcher) Dispatch(models.Notification) { panic("dispatcher down") }

type fixture struct {
	ctx         context.Context
	store       *MemoryStore
	dispatcher  *recordingDispatcher
	progression *ProgressionService
	bulk        *BulkAwardService
	memberships *MembershipService
	clubs       *ClubService
	books       *BookService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRewards(t, DefaultRewards())
}

func newFixtureWithRewards(t *testing.T, rewards RewardTable) *fixture {
	t.Helper()
	store := NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	levels := NewLevelCalculator(DefaultLevelThreshold)
	log := zerolog.Nop()

	progression := NewProgressionService(store, rewards, levels, dispatcher, log)
	bulk := NewBulkAwardService(store, rewards, levels, dispatcher, log)
	return &fixture{
		ctx:         context.Background(),
		store:       store,
		dispatcher:  dispatcher,
		progression: progression,
		bulk:        bulk,
		memberships: NewMembershipService(store, progression, dispatcher, log),
		clubs:       NewClubService(store, progression, nil, log),
		books:       NewBookService(store, progression, bulk, log),
	}
}

func (f *fixture) seedUser(t *testing.T, id string, xp int64, level int) {
	t.Helper()
	require.NoError(t, f.store.CreateUser(f.ctx, &models.User{ID: id, Username: id, XP: xp, Level: level}))
}

// seedClub creates a club owned by owner with readers as READER members.
// Users must already exist.
func (f *fixture) seedClub(t *testing.T, id, owner string, readers ...string) *models.Club {
	t.Helper()
	club := &models.Club{ID: id, Name: "Club " + id, Slug: id, OwnerID: owner}
	require.NoError(t, f.store.CreateClub(f.ctx, club))
	require.NoError(t, f.store.CreateMembership(f.ctx, &models.ClubMembership{ClubID: id, UserID: owner, Role: models.ClubRoleOwner}))
	for _, r := range readers {
		require.NoError(t, f.store.CreateMembership(f.ctx, &models.ClubMembership{ClubID: id, UserID: r, Role: models.ClubRoleReader}))
	}
	return club
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := f.store.GetUser(f.ctx, id)
	require.NoError(t, err)
	return u
}

func (f *fixture) events(t *testing.T, userID string) []models.XPEvent {
	t.Helper()
	events, _, err := f.store.ListXPEvents(f.ctx, userID, 0, 100)
	require.NoError(t, err)
	return events
}

func levelUpPayload(t *testing.T, n models.Notification) models.LevelUpPayload {
	t.Helper()
	var p models.LevelUpPayload
	require.NoError(t, json.Unmarshal(n.Payload, &p))
	return p
}

// failOn returns an OnWrite hook failing the nth write of op.
func failOn(op string, nth int, err error) func(string) error {
	var mu sync.Mutex
	seen := 0
	return func(got string) error {
		if got != op {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen == nth {
			return err
		}
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}
