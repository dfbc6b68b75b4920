package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"zenmode/internal/events"
	"zenmode/internal/locking"
	"zenmode/internal/modules/orders"
)

// ExpirySweepJob transitions open orders whose expiry has passed. Reads
// already expire orders lazily; the sweep keeps listings clean even for
// orders nobody looks at.
type ExpirySweepJob struct {
	log    zerolog.Logger
	locks  *locking.Manager
	repo   *orders.Repository
	events *events.Manager
}

// NewExpirySweepJob creates a new expiry sweep job
func NewExpirySweepJob(repo *orders.Repository, locks *locking.Manager, eventManager *events.Manager, log zerolog.Logger) *ExpirySweepJob {
	return &ExpirySweepJob{
		log:    log.With().Str("job", "expiry_sweep").Logger(),
		locks:  locks,
		repo:   repo,
		events: eventManager,
	}
}

// Name returns the job name
func (j *ExpirySweepJob) Name() string {
	return "expiry_sweep"
}

// Run executes the sweep
func (j *ExpirySweepJob) Run() error {
	if err := j.locks.TryAcquire("expiry_sweep"); err != nil {
		j.log.Warn().Err(err).Msg("Expiry sweep already running")
		return nil
	}
	defer j.locks.Release("expiry_sweep")

	expired, err := j.repo.ExpireStale(time.Now())
	if err != nil {
		return err
	}

	if expired > 0 {
		j.log.Info().Int64("expired", expired).Msg("Swept expired orders")
		if j.events != nil {
			j.events.Emit(events.OrderExpired, "expiry_sweep", map[string]interface{}{
				"count": expired,
			})
		}
	}
	return nil
}
