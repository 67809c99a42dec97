package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"book-club-system/apperrors"
	"book-club-system/metrics"
	"book-club-system/models"

	"github.com/rs/zerolog"
)

// maxAwardAttempts bounds the compare-and-swap retries of a single award.
const maxAwardAttempts = 3

// AwardResult describes one user's XP grant.
type AwardResult struct {
	UserID   string            `json:"user_id"`
	Action   models.ActionKind `json:"action"`
	LevelUp  bool              `json:"level_up"`
	OldLevel int               `json:"old_level"`
	NewLevel int               `json:"new_level"`
	XPGained int64             `json:"xp_gained"`
	XPTotal  int64             `json:"xp_total"`
}

// Awarder grants XP to a single user.
type Awarder interface {
	Award(ctx context.Context, userID string, action models.ActionKind) (*AwardResult, error)
}

// Progress is the read model behind GET /user/progress.
type Progress struct {
	UserID        string     `json:"user_id"`
	XP            int64      `json:"xp"`
	Level         int        `json:"level"`
	NextLevelAt   int64      `json:"next_level_at"`
	Remaining     int64      `json:"remaining"`
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`
}

// History is one page of a user's XP ledger.
type History struct {
	Events     []models.XPEvent `json:"events"`
	Page       int              `json:"page"`
	Size       int              `json:"size"`
	TotalItems int64            `json:"total_items"`
	TotalPages int              `json:"total_pages"`
}

type ProgressionService struct {
	Store    Store
	Rewards  RewardTable
	Levels   LevelCalculator
	Notifier NotificationDispatcher
	Log      zerolog.Logger
}

func NewProgressionService(store Store, rewards RewardTable, levels LevelCalculator, notifier NotificationDispatcher, log zerolog.Logger) *ProgressionService {
	return &ProgressionService{
		Store:    store,
		Rewards:  rewards,
		Levels:   levels,
		Notifier: notifier,
		Log:      log,
	}
}

// Award grants the table reward for action to userID.
func (s *ProgressionService) Award(ctx context.Context, userID string, action models.ActionKind) (*AwardResult, error) {
	return s.award(ctx, userID, action, s.Rewards.For(action))
}

// AwardAmount grants an explicit amount, bypassing the reward table.
func (s *ProgressionService) AwardAmount(ctx context.Context, userID string, action models.ActionKind, amount int64) (*AwardResult, error) {
	if amount < 0 {
		return nil, apperrors.NewBadRequestError("xp amount must not be negative")
	}
	return s.award(ctx, userID, action, amount)
}

func (s *ProgressionService) award(ctx context.Context, userID string, action models.ActionKind, amount int64) (*AwardResult, error) {
	if amount == 0 {
		// Observable no-op: the user must exist, nothing is written.
		user, err := s.Store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &AwardResult{
			UserID:   userID,
			Action:   action,
			OldLevel: user.Level,
			NewLevel: user.Level,
			XPTotal:  user.XP,
		}, nil
	}

	for attempt := 1; attempt <= maxAwardAttempts; attempt++ {
		var result *AwardResult
		err := s.Store.WithinTx(ctx, func(tx Store) error {
			user, err := tx.GetUser(ctx, userID)
			if err != nil {
				return err
			}

			newXP, newLevel := s.Levels.Compute(user.XP, user.Level, amount)
			var leveledUpAt *time.Time
			if newLevel > user.Level {
				now := time.Now()
				leveledUpAt = &now
			}

			swapped, err := tx.CompareAndSetProgress(ctx, userID, user.XP, newXP, newLevel, leveledUpAt)
			if err != nil || !swapped {
				return err
			}

			if err := tx.AppendXPEvents(ctx, []models.XPEvent{{
				UserID:     userID,
				Action:     action,
				Amount:     amount,
				XPAfter:    newXP,
				LevelAfter: newLevel,
			}}); err != nil {
				return err
			}

			result = &AwardResult{
				UserID:   userID,
				Action:   action,
				LevelUp:  newLevel > user.Level,
				OldLevel: user.Level,
				NewLevel: newLevel,
				XPGained: amount,
				XPTotal:  newXP,
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("award xp to %s: %w", userID, err)
		}
		if result != nil {
			s.afterAward(*result)
			return result, nil
		}

		s.Log.Debug().Str("user_id", userID).Int("attempt", attempt).Msg("xp changed concurrently, retrying award")
	}

	return nil, apperrors.NewConflictError("user progress changed concurrently").WithCode(apperrors.CodeConcurrentUpdate)
}

// afterAward runs once the grant is committed.
func (s *ProgressionService) afterAward(r AwardResult) {
	metrics.RecordXPAwarded(string(r.Action), r.XPGained)
	s.Log.Info().
		Str("user_id", r.UserID).
		Str("action", string(r.Action)).
		Int64("xp_gained", r.XPGained).
		Int64("xp_total", r.XPTotal).
		Int("level", r.NewLevel).
		Msg("xp awarded")

	if !r.LevelUp {
		return
	}
	metrics.RecordLevelUp()
	s.Log.Info().
		Str("user_id", r.UserID).
		Int("old_level", r.OldLevel).
		Int("new_level", r.NewLevel).
		Msg("level up")
	dispatch(s.Log, s.Notifier, levelUpNotification(r.UserID, r))
}

// EnsureUser returns the user, creating a level 1 record on first sight.
func (s *ProgressionService) EnsureUser(ctx context.Context, userID, username string) (*models.User, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if username == "" {
		username = userID
	}
	user = &models.User{ID: userID, Username: username, Level: 1}
	err = s.Store.CreateUser(ctx, user)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return nil, err
	}

	// Either another request created the row first, or the gateway username
	// is already taken by a different id. Fall back to the id as username.
	existing, getErr := s.Store.GetUser(ctx, userID)
	if getErr == nil || !errors.Is(getErr, apperrors.ErrNotFound) || username == userID {
		return existing, getErr
	}
	s.Log.Warn().Str("user_id", userID).Str("username", username).Msg("username taken, using user id")
	user = &models.User{ID: userID, Username: userID, Level: 1}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return s.Store.GetUser(ctx, userID)
		}
		return nil, err
	}
	return user, nil
}

// GetProgress returns the user's current progression.
func (s *ProgressionService) GetProgress(ctx context.Context, userID string) (*Progress, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := s.Levels.NextLevelAt(user.Level)
	return &Progress{
		UserID:        user.ID,
		XP:            user.XP,
		Level:         user.Level,
		NextLevelAt:   next,
		Remaining:     next - user.XP,
		LastLevelUpAt: user.LastLevelUpAt,
	}, nil
}

// GetUserHistory returns a page of the user's XP ledger, newest first.
func (s *ProgressionService) GetUserHistory(ctx context.Context, userID string, page, size int) (*History, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	events, total, err := s.Store.ListXPEvents(ctx, userID, offset, size)
	if err != nil {
		return nil, err
	}

	return &History{
		Events:     events,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}
