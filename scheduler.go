package notifykit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notifykit/notifykit/logger"
)

// sweep is one recurring background job.
type sweep struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
}

// scheduler drives the recurring background sweeps. Each sweep runs on
// its own ticker until Stop; a sweep with a non-positive interval never
// runs.
type scheduler struct {
	sweeps []sweep
	logger *slog.Logger

	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
}

func newScheduler(logger *slog.Logger, sweeps ...sweep) *scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &scheduler{
		sweeps: sweeps,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the sweep loops. Calling Start twice is a no-op.
func (s *scheduler) Start(ctx context.Context) {
	if s.started.Swap(true) {
		return
	}
	for _, sw := range s.sweeps {
		if sw.interval <= 0 || sw.run == nil {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, sw)
	}
}

func (s *scheduler) loop(ctx context.Context, sw sweep) {
	defer s.wg.Done()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx, sw)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runSweep isolates sweep panics so one bad pass cannot kill the loop.
func (s *scheduler) runSweep(ctx context.Context, sw sweep) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("background sweep panicked",
				logger.Component("scheduler"),
				slog.String("sweep", sw.name),
				slog.Any("panic", r))
		}
	}()
	sw.run(ctx)
}

// Stop terminates the loops and waits for in-flight sweeps to finish.
func (s *scheduler) Stop() {
	if !s.started.Load() || s.stopped.Swap(true) {
		return
	}
	close(s.done)
	s.wg.Wait()
}
