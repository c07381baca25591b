package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/imposter-server-go/internal/config"
	"github.com/openclaw/imposter-server-go/internal/service"
)

// Sweeper is the maintenance surface of the game service.
type Sweeper interface {
	ExpirePhases(ctx context.Context) (int, error)
	CleanupInactive(ctx context.Context) (*service.CleanupInactiveResult, error)
	Cleanup(ctx context.Context) (int, error)
}

// SweepJob periodically advances expired phases nobody is polling, drops
// players whose heartbeats stopped and deletes finished sessions. Reads and
// writes already expire phases lazily; the job only makes it happen sooner.
type SweepJob struct {
	sweeper  Sweeper
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewSweepJob(sweeper Sweeper, interval time.Duration) *SweepJob {
	return &SweepJob{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("sweep job started")
}

// Stop waits for an in-flight sweep to finish.
func (j *SweepJob) Stop() {
	close(j.done)
	j.wg.Wait()
	log.Info().Msg("sweep job stopped")
}

func (j *SweepJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), config.SweepTimeout)
	defer cancel()

	j.runStep(ctx, "expired phases", j.sweeper.ExpirePhases)
	j.runStep(ctx, "inactive players", func(ctx context.Context) (int, error) {
		res, err := j.sweeper.CleanupInactive(ctx)
		if err != nil {
			return 0, err
		}
		if res.SessionsEnded > 0 {
			log.Info().Int("count", res.SessionsEnded).Msg("ended abandoned sessions")
		}
		return res.PlayersRemoved, nil
	})
	j.runStep(ctx, "sessions", j.sweeper.Cleanup)
}

func (j *SweepJob) runStep(ctx context.Context, name string, fn func(context.Context) (int, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to sweep %s", name)
	} else if count > 0 {
		log.Info().Int("count", count).Msgf("swept %s", name)
	}
}
