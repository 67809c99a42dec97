package services

import (
	"context"
	"errors"
	"time"

	"book-club-system/apperrors"
	"book-club-system/metrics"
	"book-club-system/models"

	"github.com/rs/zerolog"
)

// BookReadEvent is raised when a club's book moves to leido.
type BookReadEvent struct {
	ClubID string
	BookID string
}

// BulkAwardResult is the outcome of a club-wide grant. Members holds one
// entry per credited user, in user id order.
type BulkAwardResult struct {
	ClubID   string            `json:"club_id"`
	Action   models.ActionKind `json:"action"`
	XPGained int64             `json:"xp_gained"`
	Members  []AwardResult     `json:"members"`
}

// LevelUps returns the members whose level increased.
func (r *BulkAwardResult) LevelUps() []AwardResult {
	var out []AwardResult
	for _, m := range r.Members {
		if m.LevelUp {
			out = append(out, m)
		}
	}
	return out
}

// ClubAwarder credits every member of a club inside a caller-owned
// transaction and follows up once that transaction has committed.
type ClubAwarder interface {
	OnBookRead(ctx context.Context, tx Store, ev BookReadEvent) (*BulkAwardResult, error)
	AfterCommit(result *BulkAwardResult)
}

// BulkAwardService applies one action's reward to all members of a club as a
// single unit of work. Level-up notifications go out only after commit.
type BulkAwardService struct {
	Store    Store
	Rewards  RewardTable
	Levels   LevelCalculator
	Notifier NotificationDispatcher
	Log      zerolog.Logger
}

var _ ClubAwarder = (*BulkAwardService)(nil)

func NewBulkAwardService(store Store, rewards RewardTable, levels LevelCalculator, notifier NotificationDispatcher, log zerolog.Logger) *BulkAwardService {
	return &BulkAwardService{
		Store:    store,
		Rewards:  rewards,
		Levels:   levels,
		Notifier: notifier,
		Log:      log,
	}
}

// AwardToAllMembers credits every current member of clubID in its own
// transaction. Persistence failures are reported as TransactionFailure and
// leave no member credited.
func (s *BulkAwardService) AwardToAllMembers(ctx context.Context, clubID string, action models.ActionKind) (*BulkAwardResult, error) {
	var result *BulkAwardResult
	err := s.Store.WithinTx(ctx, func(tx Store) error {
		var err error
		result, err = s.ApplyInTx(ctx, tx, clubID, action)
		return err
	})
	if err != nil {
		metrics.RecordBulkAward(false)
		s.Log.Error().Err(err).Str("club_id", clubID).Str("action", string(action)).Msg("club xp award rolled back")
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, apperrors.NewTransactionError(err)
	}

	s.AfterCommit(result)
	return result, nil
}

// OnBookRead credits COMPLETAR_LIBRO to the club of ev.
func (s *BulkAwardService) OnBookRead(ctx context.Context, tx Store, ev BookReadEvent) (*BulkAwardResult, error) {
	return s.ApplyInTx(ctx, tx, ev.ClubID, models.ActionCompleteBook)
}

// ApplyInTx does the writes of a club-wide grant through tx. The caller owns
// the transaction and must call AfterCommit once it commits.
func (s *BulkAwardService) ApplyInTx(ctx context.Context, tx Store, clubID string, action models.ActionKind) (*BulkAwardResult, error) {
	if _, err := tx.GetClub(ctx, clubID); err != nil {
		return nil, err
	}

	result := &BulkAwardResult{ClubID: clubID, Action: action, XPGained: s.Rewards.For(action)}
	if result.XPGained == 0 {
		return result, nil
	}

	members, err := tx.ListMembers(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := tx.LockUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(users) < len(ids) {
		s.Log.Warn().Str("club_id", clubID).
			Int("members", len(ids)).
			Int("users", len(users)).
			Msg("club has members without a user record, skipping them")
	}

	now := time.Now()
	events := make([]models.XPEvent, 0, len(users))
	for _, u := range users {
		newXP, newLevel := s.Levels.Compute(u.XP, u.Level, result.XPGained)
		var leveledUpAt *time.Time
		if newLevel > u.Level {
			leveledUpAt = &now
		}
		if err := tx.SetProgress(ctx, u.ID, newXP, newLevel, leveledUpAt); err != nil {
			return nil, err
		}

		club := clubID
		events = append(events, models.XPEvent{
			UserID:     u.ID,
			Action:     action,
			Amount:     result.XPGained,
			XPAfter:    newXP,
			LevelAfter: newLevel,
			ClubID:     &club,
		})
		result.Members = append(result.Members, AwardResult{
			UserID:   u.ID,
			Action:   action,
			LevelUp:  newLevel > u.Level,
			OldLevel: u.Level,
			NewLevel: newLevel,
			XPGained: result.XPGained,
			XPTotal:  newXP,
		})
	}

	if err := tx.AppendXPEvents(ctx, events); err != nil {
		return nil, err
	}
	return result, nil
}

// AfterCommit records metrics and dispatches one LEVEL_UP notification per
// member who levelled up. Each dispatch is independent of the others.
func (s *BulkAwardService) AfterCommit(result *BulkAwardResult) {
	if result == nil {
		return
	}
	metrics.RecordBulkAward(true)
	if len(result.Members) == 0 {
		return
	}

	metrics.RecordXPAwarded(string(result.Action), result.XPGained*int64(len(result.Members)))
	s.Log.Info().
		Str("club_id", result.ClubID).
		Str("action", string(result.Action)).
		Int("members", len(result.Members)).
		Int64("xp_each", result.XPGained).
		Msg("club xp awarded")

	for _, m := range result.LevelUps() {
		metrics.RecordLevelUp()
		dispatch(s.Log, s.Notifier, levelUpNotification(m.UserID, m))
	}
}
