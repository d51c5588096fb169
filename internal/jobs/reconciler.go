package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultReconcileInterval = time.Minute

// Reconciler corrects persisted session status that no longer matches the
// clients this process holds.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// StatusReconcilerJob periodically runs a Reconciler
type StatusReconcilerJob struct {
	target   Reconciler
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewStatusReconcilerJob creates a new reconciler job
func NewStatusReconcilerJob(target Reconciler, interval time.Duration, logger zerolog.Logger) *StatusReconcilerJob {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &StatusReconcilerJob{
		target:   target,
		interval: interval,
		log:      logger.With().Str("component", "reconciler").Logger(),
	}
}

// Start begins the schedule
func (j *StatusReconcilerJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		j.log.Warn().Msg("reconciler already running")
		return
	}
	j.running = true
	j.stop = make(chan struct{})
	j.done = make(chan struct{})

	go j.loop(j.stop, j.done)
	j.log.Info().Dur("interval", j.interval).Msg("status reconciler started")
}

// Stop halts the schedule and waits for an in-flight run to finish
func (j *StatusReconcilerJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stop)
	done := j.done
	j.mu.Unlock()

	<-done
	j.log.Info().Msg("status reconciler stopped")
}

func (j *StatusReconcilerJob) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			j.RunOnce(stop)
		}
	}
}

// RunOnce performs a single reconciliation. It is cancelled if stop closes.
func (j *StatusReconcilerJob) RunOnce(stop <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	fixed, err := j.target.Reconcile(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("status reconciliation failed")
		return
	}
	if fixed > 0 {
		j.log.Info().Int("sessions", fixed).Msg("reconciled session status")
	}
}
