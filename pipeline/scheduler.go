package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Runner is one schedulable job.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler runs a Runner on a cron spec. A tick that fires while the
// previous run is still going is skipped, so runs never overlap.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	logger *slog.Logger
}

// NewScheduler validates spec (standard five-field syntax or descriptors
// such as "@every 30m") and prepares the scheduler.
func NewScheduler(spec string, r Runner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{log: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s := &Scheduler{cron: c, runner: r, spec: spec, logger: logger}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("pipeline: cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Run schedules the job and blocks until ctx is done, then waits for an
// in-flight run to finish. With runNow the first run starts immediately.
func (s *Scheduler) Run(ctx context.Context, runNow bool) error {
	job := func() {
		if err := s.runner.Run(ctx); err != nil {
			s.logger.Error("pipeline: scheduled run failed", "error", err)
		}
	}
	id, err := s.cron.AddFunc(s.spec, job)
	if err != nil {
		return fmt.Errorf("pipeline: schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("pipeline: scheduler started", "spec", s.spec, "next", s.cron.Entry(id).Next)

	var wg sync.WaitGroup
	if runNow {
		// Through the wrapped job so the overlap guard applies.
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.cron.Entry(id).WrappedJob.Run()
		}()
	}

	<-ctx.Done()
	s.logger.Info("pipeline: scheduler stopping")
	<-s.cron.Stop().Done()
	wg.Wait()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
