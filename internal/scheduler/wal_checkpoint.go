package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"zenmode/internal/database"
	"zenmode/internal/locking"
)

// WALCheckpointJob periodically checkpoints the SQLite write-ahead log and
// verifies database integrity, keeping the WAL file from growing unbounded
// on a long-running host.
type WALCheckpointJob struct {
	log   zerolog.Logger
	locks *locking.Manager
	db    *database.DB
}

// NewWALCheckpointJob creates a new WAL checkpoint job
func NewWALCheckpointJob(db *database.DB, locks *locking.Manager, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		log:   log.With().Str("job", "wal_checkpoint").Logger(),
		locks: locks,
		db:    db,
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run executes the checkpoint
func (j *WALCheckpointJob) Run() error {
	if err := j.locks.TryAcquire("wal_checkpoint"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint already running")
		return nil
	}
	defer j.locks.Release("wal_checkpoint")

	start := time.Now()
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := j.db.HealthCheck(ctx); err != nil {
		return err
	}

	j.log.Debug().Dur("duration", time.Since(start)).Msg("WAL checkpoint completed")
	return nil
}
