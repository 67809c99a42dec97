package services

import (
	"context"
	"errors"
	"testing"

	"book-club-system/apperrors"
	"book-club-system/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMembershipFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.seedUser(t, "owner", 0, 1)
	f.seedUser(t, "mod", 0, 1)
	f.seedUser(t, "reader", 0, 1)
	f.seedUser(t, "newbie", 0, 1)
	f.seedClub(t, "club-1", "owner", "reader")
	require.NoError(t, f.store.CreateMembership(f.ctx, &models.ClubMembership{ClubID: "club-1", UserID: "mod", Role: models.ClubRoleModerator}))
	return f
}

func TestRequestCreatesPendingAndNotifiesOwner(t *testing.T) {
	f := newMembershipFixture(t)

	req, err := f.memberships.Request(f.ctx, "club-1", "newbie")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.State)
	assert.NotEmpty(t, req.ID)

	sent := f.dispatcher.ofType(models.NotificationMembershipRequested)
	require.Len(t, sent, 1)
	assert.Equal(t, "owner", sent[0].UserID)
}

func TestRequestConflicts(t *testing.T) {
	f := newMembershipFixture(t)

	_, err := f.memberships.Request(f.ctx, "club-1", "reader")
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, apperrors.CodeAlreadyMember, apperrors.CodeOf(err))

	_, err = f.memberships.Request(f.ctx, "club-1", "newbie")
	require.NoError(t, err)
	_, err = f.memberships.Request(f.ctx, "club-1", "newbie")
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, apperrors.CodeAlreadyRequested, apperrors.CodeOf(err))

	_, err = f.memberships.Request(f.ctx, "missing", "newbie")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAcceptCreatesReaderMembership(t *testing.T) {
	f := newMembershipFixture(t)
	req, err := f.memberships.Request(f.ctx, "club-1", "newbie")
	require.NoError(t, err)

	m, err := f.memberships.Accept(f.ctx, req.ID, "mod")
	require.NoError(t, err)
	assert.Equal(t, models.ClubRoleReader, m.Role)
	assert.Equal(t, "newbie", m.UserID)

	stored, err := f.store.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, stored.State)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, "mod", *stored.ResolvedBy)

	accepted := f.dispatcher.ofType(models.NotificationRequestAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, "newbie", accepted[0].UserID)

	assert.Equal(t, int64(20), f.user(t, "newbie").XP)
}

func TestAcceptTwiceIsConflict(t *testing.T) {
	f := newMembershipFixture(t)
	req, err := f.memberships.Request(f.ctx, "club-1", "newbie")
	require.NoError(t, err)

	_, err = f.memberships.Accept(f.ctx, req.ID, "owner")
	require.NoError(t, err)

	_, err = f.memberships.Accept(f.ctx, req.ID, "owner")
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, apperrors.CodeRequestResolved, apperrors.CodeOf(err))

	members, err := f.store.ListMembers(f.ctx, "club-1")
	require.NoError(t, err)
	count := 0
	for _, m := range members {
		if m.UserID == "newbie" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(20), f.user(t, "newbie").XP, "join xp is granted once")
}

func TestOnlyManagersResolveRequests(t *testing.T) {
	f := newMembershipFixture(t)
	req, err := f.memberships.Request(f.ctx, "club-1", "newbie")
	require.NoError(t, err)

	_, err = f.memberships.Accept(f.ctx, req.ID, "reader")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.memberships.Reject(f.ctx, req.ID, "stranger")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.memberships.ListPending(f.ctx, "club-1", "reader")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	stored, err := f.store.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.State)

	pending, err := f.memberships.ListPending(f.ctx, "club-1", "owner")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRejectAllowsRequestingAgain(t *testing.T) {
	f := newMembershipFixture(t)
	req, err := f.memberships.Request(f.ctx, "club-1", "newbie")
	require.NoError(t, err)

	rejected, err := f.memberships.Reject(f.ctx, req.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.State)
	assert.Len(t, f.dispatcher.ofType(models.NotificationRequestRejected), 1)

	_, err = f.memberships.Accept(f.ctx, req.ID, "owner")
	require.ErrorIs(t, err, apperrors.ErrConflict)

	again, err := f.memberships.Request(f.ctx, "club-1", "newbie")
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)
	assert.Zero(t, f.user(t, "newbie").XP)
}

func TestAcceptWhenAlreadyMember(t *testing.T) {
	f := newMembershipFixture(t)
	req, err := f.memberships.Request(f.ctx, "club-1", "newbie")
	require.NoError(t, err)
	require.NoError(t, f.store.CreateMembership(f.ctx, &models.ClubMembership{ClubID: "club-1", UserID: "newbie", Role: models.ClubRoleReader}))

	_, err = f.memberships.Accept(f.ctx, req.ID, "owner")
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, apperrors.CodeAlreadyMember, apperrors.CodeOf(err))

	stored, err := f.store.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, stored.State)
	assert.Empty(t, f.dispatcher.ofType(models.NotificationRequestAccepted))
}

type failingAwarder struct{}

func (failingAwarder) Award(context.Context, string, models.ActionKind) (*AwardResult, error) {
	return nil, errors.New("progress store down")
}

func TestAcceptSucceedsWhenJoinAwardFails(t *testing.T) {
	f := newMembershipFixture(t)
	svc := NewMembershipService(f.store, failingAwarder{}, f.dispatcher, zerolog.Nop())
	req, err := svc.Request(f.ctx, "club-1", "newbie")
	require.NoError(t, err)

	m, err := svc.Accept(f.ctx, req.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, "newbie", m.UserID)

	_, err = f.store.GetMembership(f.ctx, "club-1", "newbie")
	assert.NoError(t, err)
}

func TestResolveUnknownRequest(t *testing.T) {
	f := newMembershipFixture(t)

	_, err := f.memberships.Accept(f.ctx, "nope", "owner")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
