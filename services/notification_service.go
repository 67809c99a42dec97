package services

import (
	"context"
	"encoding/json"
	"time"

	"book-club-system/apperrors"
	"book-club-system/models"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NotificationDispatcher hands a notification off for delivery without
// waiting for it. Implementations must never block the caller.
type NotificationDispatcher interface {
	Dispatch(n models.Notification)
}

// Publisher pushes a stored notification to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification) error
}

const defaultNotificationLimit = 50

// NotificationService is the notification sink: it persists a notification
// and then publishes it. Only persistence failures are reported.
type NotificationService struct {
	Store     NotificationStore
	Publisher Publisher
	Log       zerolog.Logger
}

func NewNotificationService(store NotificationStore, publisher Publisher, log zerolog.Logger) *NotificationService {
	return &NotificationService{Store: store, Publisher: publisher, Log: log}
}

// Notify stores n and publishes it.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	if n.UserID == "" || n.Type == "" || n.Title == "" {
		return apperrors.NewBadRequestError("notification requires user, type and title")
	}
	if err := s.Store.CreateNotification(ctx, n); err != nil {
		return err
	}

	if s.Publisher != nil {
		if err := s.Publisher.Publish(ctx, n); err != nil {
			s.Log.Warn().Err(err).
				Str("user_id", n.UserID).
				Str("notification_id", n.ID).
				Msg("notification stored but not published")
		}
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	return s.Store.ListNotifications(ctx, userID, unreadOnly, limit)
}

// ListSince returns the user's unread notifications created after since,
// oldest first.
func (s *NotificationService) ListSince(ctx context.Context, userID string, since time.Time) ([]models.Notification, error) {
	unread, err := s.Store.ListNotifications(ctx, userID, true, 200)
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(unread))
	for i := len(unread) - 1; i >= 0; i-- {
		if unread[i].CreatedAt.After(since) {
			out = append(out, unread[i])
		}
	}
	return out, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.Store.MarkNotificationRead(ctx, userID, notificationID, time.Now())
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.Store.MarkAllNotificationsRead(ctx, userID, time.Now())
}

// PurgeRead deletes notifications read more than retention ago.
func (s *NotificationService) PurgeRead(ctx context.Context, retention time.Duration) (int64, error) {
	return s.Store.PurgeReadNotifications(ctx, time.Now().Add(-retention))
}

var (
	esPrinter = message.NewPrinter(language.Spanish)
	esTitle   = cases.Title(language.Spanish)
)

func mustPayload(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func levelUpNotification(userID string, r AwardResult) models.Notification {
	return models.Notification{
		UserID:  userID,
		Type:    models.NotificationLevelUp,
		Title:   esPrinter.Sprintf("¡Subiste al nivel %d!", r.NewLevel),
		Message: esPrinter.Sprintf("Ganaste %d XP y ya acumulas %d XP en total.", r.XPGained, r.XPTotal),
		Payload: mustPayload(models.LevelUpPayload{
			OldLevel:   r.OldLevel,
			NewLevel:   r.NewLevel,
			XPGained:   r.XPGained,
			XPTotal:    r.XPTotal,
			ActionKind: r.Action,
		}),
	}
}

func membershipNotification(recipient string, kind models.NotificationType, req *models.MembershipRequest, club *models.Club) models.Notification {
	clubName := esTitle.String(club.Name)

	var title, msg string
	switch kind {
	case models.NotificationRequestAccepted:
		title = "Solicitud aceptada"
		msg = esPrinter.Sprintf("Ya eres miembro de %s.", clubName)
	case models.NotificationRequestRejected:
		title = "Solicitud rechazada"
		msg = esPrinter.Sprintf("Tu solicitud para unirte a %s fue rechazada.", clubName)
	default:
		title = "Nueva solicitud de ingreso"
		msg = esPrinter.Sprintf("Un lector quiere unirse a %s.", clubName)
	}

	return models.Notification{
		UserID:  recipient,
		Type:    kind,
		Title:   title,
		Message: msg,
		Payload: mustPayload(models.MembershipPayload{
			RequestID: req.ID,
			ClubID:    club.ID,
			ClubName:  club.Name,
			UserID:    req.UserID,
		}),
	}
}

// dispatch hands n to d, logging instead of propagating any failure.
func dispatch(log zerolog.Logger, d NotificationDispatcher, n models.Notification) {
	if d == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).
				Str("user_id", n.UserID).
				Str("type", string(n.Type)).
				Msg("notification dispatch panicked")
		}
	}()
	d.Dispatch(n)
}
