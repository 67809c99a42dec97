package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"book-club-system/apperrors"
	"book-club-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreNestedTxJoinsOuter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "ana", Username: "ana", Level: 1}))

	boom := errors.New("outer failed")
	err := store.WithinTx(ctx, func(tx Store) error {
		if err := tx.WithinTx(ctx, func(inner Store) error {
			return inner.SetProgress(ctx, "ana", 50, 1, nil)
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := store.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Zero(t, u.XP, "inner writes roll back with the outer transaction")
}

func TestMemoryStoreMembershipUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := &models.ClubMembership{ClubID: "c", UserID: "u", Role: models.ClubRoleReader}
	require.NoError(t, store.CreateMembership(ctx, m))

	err := store.CreateMembership(ctx, &models.ClubMembership{ClubID: "c", UserID: "u", Role: models.ClubRoleReader})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, apperrors.CodeAlreadyMember, apperrors.CodeOf(err))
}

func TestMemoryStoreResolveRequestOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := &models.MembershipRequest{ClubID: "c", UserID: "u", State: models.RequestPending}
	require.NoError(t, store.CreateRequest(ctx, req))

	ok, err := store.ResolveRequest(ctx, req.ID, models.RequestAccepted, "owner", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ResolveRequest(ctx, req.ID, models.RequestRejected, "owner", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.FindPendingRequest(ctx, "c", "u")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStoreBookStatusCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	book := &models.Book{ClubID: "c", Title: "Rayuela", NormalizedTitle: "rayuela"}
	require.NoError(t, store.CreateBook(ctx, book))
	assert.Equal(t, models.BookStatusPending, book.Status)

	ok, err := store.UpdateBookStatus(ctx, book.ID, models.BookStatusReading, models.BookStatusRead)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.UpdateBookStatus(ctx, book.ID, models.BookStatusPending, models.BookStatusReading)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := store.FindBookByTitle(ctx, "c", "rayuela")
	require.NoError(t, err)
	assert.Equal(t, models.BookStatusReading, found.Status)
}

func TestMemoryStoreRollbackKeepsWritesMadeOutsideTx(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "ana", Username: "ana", Level: 1}))
	require.NoError(t, store.CreateClub(ctx, &models.Club{ID: "c1", Name: "Club", Slug: "club", OwnerID: "ana"}))

	boom := errors.New("bulk award failed")
	err := store.WithinTx(ctx, func(tx Store) error {
		require.NoError(t, tx.SetProgress(ctx, "ana", 120, 1, nil))
		require.NoError(t, tx.AppendXPEvents(ctx, []models.XPEvent{{UserID: "ana", Action: models.ActionCompleteBook, Amount: 120}}))
		require.NoError(t, tx.CreateUser(ctx, &models.User{ID: "tmp", Username: "tmp", Level: 1}))

		// concurrent writers that are not part of the transaction
		require.NoError(t, store.CreateNotification(ctx, &models.Notification{UserID: "beto", Type: models.NotificationLevelUp, Title: "Nivel 2"}))
		require.NoError(t, store.CreateUser(ctx, &models.User{ID: "beto", Username: "beto", Level: 1}))
		require.NoError(t, store.UpdateClubCover(ctx, "c1", "https://cdn.test/cover.png"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	ana, err := store.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Zero(t, ana.XP)
	_, total, err := store.ListXPEvents(ctx, "ana", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	_, err = store.GetUser(ctx, "tmp")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	notes, err := store.ListNotifications(ctx, "beto", false, 10)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
	_, err = store.GetUser(ctx, "beto")
	assert.NoError(t, err)
	club, err := store.GetClub(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/cover.png", club.CoverURL)
}

func TestMemoryStoreRollbackRestoresDeletedRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	read := time.Now().Add(-48 * time.Hour)
	n := &models.Notification{UserID: "ana", Type: models.NotificationLevelUp, Title: "Nivel 2", Read: true, ReadAt: &read}
	require.NoError(t, store.CreateNotification(ctx, n))

	boom := errors.New("abort")
	err := store.WithinTx(ctx, func(tx Store) error {
		purged, err := tx.PurgeReadNotifications(ctx, time.Now())
		require.NoError(t, err)
		assert.EqualValues(t, 1, purged)
		return boom
	})
	require.ErrorIs(t, err, boom)

	notes, err := store.ListNotifications(ctx, "ana", false, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, n.ID, notes[0].ID)
}

func TestMemoryStoreSinglePendingRequest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	first := &models.MembershipRequest{ClubID: "c", UserID: "u", State: models.RequestPending}
	require.NoError(t, store.CreateRequest(ctx, first))

	err := store.CreateRequest(ctx, &models.MembershipRequest{ClubID: "c", UserID: "u", State: models.RequestPending})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, apperrors.CodeAlreadyRequested, apperrors.CodeOf(err))

	ok, err := store.ResolveRequest(ctx, first.ID, models.RequestRejected, "owner", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, store.CreateRequest(ctx, &models.MembershipRequest{ClubID: "c", UserID: "u", State: models.RequestPending}))
}
