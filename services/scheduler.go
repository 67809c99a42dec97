package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartNotificationCleanup purges notifications that were read more than
// retention ago, once every interval. Shut the returned scheduler down on exit.
func (s *NotificationService) StartNotificationCleanup(ctx context.Context, interval, retention time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			purged, err := s.PurgeRead(ctx, retention)
			if err != nil {
				s.Log.Error().Err(err).Msg("notification cleanup failed")
				return
			}
			if purged > 0 {
				s.Log.Info().Int64("purged", purged).Msg("purged read notifications")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
