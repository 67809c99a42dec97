package services

import (
	"context"
	"errors"
	"time"

	"book-club-system/apperrors"
	"book-club-system/models"

	"github.com/rs/zerolog"
)

// MembershipService runs the join-request lifecycle:
// pending -> accepted | rejected, both terminal.
type MembershipService struct {
	Store       Store
	Progression Awarder
	Notifier    NotificationDispatcher
	Log         zerolog.Logger
}

func NewMembershipService(store Store, progression Awarder, notifier NotificationDispatcher, log zerolog.Logger) *MembershipService {
	return &MembershipService{
		Store:       store,
		Progression: progression,
		Notifier:    notifier,
		Log:         log,
	}
}

// Request opens a pending join request from userID to clubID.
func (s *MembershipService) Request(ctx context.Context, clubID, userID string) (*models.MembershipRequest, error) {
	var (
		club *models.Club
		req  *models.MembershipRequest
	)
	err := s.Store.WithinTx(ctx, func(tx Store) error {
		var err error
		if club, err = tx.GetClub(ctx, clubID); err != nil {
			return err
		}

		if _, err := tx.GetMembership(ctx, clubID, userID); err == nil {
			return apperrors.NewConflictError("user is already a member of this club").WithCode(apperrors.CodeAlreadyMember)
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		if _, err := tx.FindPendingRequest(ctx, clubID, userID); err == nil {
			return apperrors.NewConflictError("a join request is already pending").WithCode(apperrors.CodeAlreadyRequested)
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		req = &models.MembershipRequest{
			ClubID:    clubID,
			UserID:    userID,
			State:     models.RequestPending,
			CreatedAt: time.Now(),
		}
		return tx.CreateRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().Str("club_id", clubID).Str("user_id", userID).Str("request_id", req.ID).Msg("join request created")
	dispatch(s.Log, s.Notifier, membershipNotification(club.OwnerID, models.NotificationMembershipRequested, req, club))
	return req, nil
}

// ListPending returns the club's pending requests to an owner or moderator.
func (s *MembershipService) ListPending(ctx context.Context, clubID, actorID string) ([]models.MembershipRequest, error) {
	if _, err := s.Store.GetClub(ctx, clubID); err != nil {
		return nil, err
	}
	if err := requireManager(ctx, s.Store, clubID, actorID); err != nil {
		return nil, err
	}
	return s.Store.ListPendingRequests(ctx, clubID)
}

// Accept resolves a pending request and makes the requester a READER.
// When the requester already became a member the request is still resolved
// but the call reports Conflict ALREADY_MEMBER.
func (s *MembershipService) Accept(ctx context.Context, requestID, actorID string) (*models.ClubMembership, error) {
	var (
		club          *models.Club
		req           *models.MembershipRequest
		membership    *models.ClubMembership
		alreadyMember bool
	)
	err := s.Store.WithinTx(ctx, func(tx Store) error {
		var err error
		if req, club, err = s.resolve(ctx, tx, requestID, actorID, models.RequestAccepted); err != nil {
			return err
		}

		if _, err := tx.GetMembership(ctx, req.ClubID, req.UserID); err == nil {
			alreadyMember = true
			return nil
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		membership = &models.ClubMembership{
			ClubID:   req.ClubID,
			UserID:   req.UserID,
			Role:     models.ClubRoleReader,
			JoinedAt: time.Now(),
		}
		return tx.CreateMembership(ctx, membership)
	})
	if err != nil {
		return nil, err
	}
	if alreadyMember {
		return nil, apperrors.NewConflictError("user is already a member of this club").WithCode(apperrors.CodeAlreadyMember)
	}

	s.Log.Info().
		Str("club_id", req.ClubID).
		Str("user_id", req.UserID).
		Str("request_id", req.ID).
		Str("resolved_by", actorID).
		Msg("join request accepted")

	dispatch(s.Log, s.Notifier, membershipNotification(req.UserID, models.NotificationRequestAccepted, req, club))
	if s.Progression != nil {
		if _, err := s.Progression.Award(ctx, req.UserID, models.ActionJoinClub); err != nil {
			s.Log.Error().Err(err).Str("user_id", req.UserID).Str("club_id", req.ClubID).Msg("join xp award failed")
		}
	}
	return membership, nil
}

// Reject resolves a pending request as rejected.
func (s *MembershipService) Reject(ctx context.Context, requestID, actorID string) (*models.MembershipRequest, error) {
	var (
		club *models.Club
		req  *models.MembershipRequest
	)
	err := s.Store.WithinTx(ctx, func(tx Store) error {
		var err error
		req, club, err = s.resolve(ctx, tx, requestID, actorID, models.RequestRejected)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("club_id", req.ClubID).
		Str("user_id", req.UserID).
		Str("request_id", req.ID).
		Str("resolved_by", actorID).
		Msg("join request rejected")

	dispatch(s.Log, s.Notifier, membershipNotification(req.UserID, models.NotificationRequestRejected, req, club))
	return req, nil
}

// resolve authorises actorID and moves the request out of pending.
func (s *MembershipService) resolve(ctx context.Context, tx Store, requestID, actorID string, state models.RequestState) (*models.MembershipRequest, *models.Club, error) {
	req, err := tx.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	club, err := tx.GetClub(ctx, req.ClubID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireManager(ctx, tx, req.ClubID, actorID); err != nil {
		return nil, nil, err
	}
	if req.State != models.RequestPending {
		return nil, nil, apperrors.NewConflictError("join request was already resolved").WithCode(apperrors.CodeRequestResolved)
	}

	now := time.Now()
	ok, err := tx.ResolveRequest(ctx, req.ID, state, actorID, now)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, apperrors.NewConflictError("join request was already resolved").WithCode(apperrors.CodeRequestResolved)
	}

	by := actorID
	req.State = state
	req.ResolvedBy = &by
	req.ResolvedAt = &now
	return req, club, nil
}

// requireManager fails with Forbidden unless userID is an OWNER or
// MODERATOR of clubID.
func requireManager(ctx context.Context, store ClubStore, clubID, userID string) error {
	m, err := store.GetMembership(ctx, clubID, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NewForbiddenError("only club owners and moderators can do this")
	}
	if err != nil {
		return err
	}
	if !m.Role.CanManage() {
		return apperrors.NewForbiddenError("only club owners and moderators can do this")
	}
	return nil
}
