package spotlight

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// tickInterval runs the periodic auto-off check roughly twice a second.
const tickInterval = 500 * time.Millisecond

// StartTicker schedules Tick to run at tickInterval using gocron, which
// (unlike robfig/cron's minute-granularity expressions) supports a plain
// sub-second duration job. Returns the running scheduler so the caller
// can Shutdown() it.
func (c *Controller) StartTicker() (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(tickInterval),
		gocron.NewTask(c.Tick),
	)
	if err != nil {
		return nil, err
	}

	scheduler.Start()
	log.Info().Dur("interval", tickInterval).Msg("spotlight: auto-off ticker started")
	return scheduler, nil
}
