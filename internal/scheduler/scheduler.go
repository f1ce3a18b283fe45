// Package scheduler drives the pipeline on an interval or on demand, retrying
// failed runs under an explicit policy and reporting each finished run.
package scheduler

import (
	"context"
	"errors"
	"time"

	"jobs-etl/internal/config"
	"jobs-etl/internal/errs"
	"jobs-etl/internal/pipeline"
	"jobs-etl/internal/pkg/logging"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// RetryPolicy controls how often a failed run is attempted again.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	// RetryOnRecordFailures also retries runs whose only problem was
	// per-record load failures. Records are not deduplicated, so a retry
	// appends the successful records again.
	RetryOnRecordFailures bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: 15 * time.Minute}
}

func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:            cfg.MaxRetries,
		Delay:                 cfg.RetryDelay,
		RetryOnRecordFailures: cfg.RetryOnRecordFailures,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(retries)),
		ctx,
	)
}

type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

var errRecordFailures = errors.New("records failed to load")

type Options struct {
	Policy   RetryPolicy
	Interval time.Duration
}

type Scheduler struct {
	runner    Runner
	lock      Locker
	reporters []Reporter
	opts      Options
	logger    *logging.Logger

	trigger chan struct{}
	now     func() time.Time
}

func New(runner Runner, lock Locker, opts Options, logger *logging.Logger, reporters ...Reporter) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	return &Scheduler{
		runner:    runner,
		lock:      lock,
		reporters: reporters,
		opts:      opts,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		now:       time.Now,
	}
}

// RunOnce runs the pipeline under the run lock, retrying per the policy, and
// reports the final attempt. It returns ErrRunInProgress without running when
// the lock is held.
func (s *Scheduler) RunOnce(ctx context.Context) (RunReport, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return RunReport{}, err
	}
	defer release()
	return s.run(ctx, uuid.New()), nil
}

// Launch takes the run lock and runs the pipeline in the background. The
// returned id identifies the run in its report.
func (s *Scheduler) Launch(ctx context.Context) (uuid.UUID, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	go func() {
		defer release()
		s.run(context.WithoutCancel(ctx), id)
	}()
	return id, nil
}

// Trigger asks Start to run as soon as possible. It reports false if a
// trigger is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start runs the pipeline every Interval and on Trigger until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.opts.Interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
		case <-s.trigger:
		}

		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Warn("scheduled run skipped", "error", err)
		}
	}
}

func (s *Scheduler) acquire(ctx context.Context) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	return s.lock.Acquire(ctx)
}

func (s *Scheduler) run(ctx context.Context, id uuid.UUID) RunReport {
	rep := RunReport{ID: id, Status: StatusRunning, StartedAt: s.now()}
	s.report(ctx, rep)

	log := s.logger.With("pipeline", "etl", "scheduled_run", id.String())

	var last pipeline.Result
	op := func() error {
		rep.Attempts++
		res, err := s.runner.Run(ctx)
		last = res
		if err != nil {
			if errs.Is(err, errs.TypeUnknownColumn) || errs.Is(err, errs.TypeMalformedSource) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(res.Report.Failures) > 0 && s.opts.Policy.RetryOnRecordFailures {
			return errRecordFailures
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("run attempt failed, retrying",
			"attempt", rep.Attempts,
			"retry_in", wait.String(),
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, s.opts.Policy.backOff(ctx), notify)

	rep.FinishedAt = s.now()
	rep.Result = &last
	switch {
	case err != nil && !errors.Is(err, errRecordFailures):
		rep.Status = StatusFailed
		rep.Error = err.Error()
	case last.Succeeded():
		rep.Status = StatusSucceeded
	default:
		rep.Status = StatusPartial
	}

	log.Info("scheduled run finished",
		"status", string(rep.Status),
		"attempts", rep.Attempts,
		"loaded", last.Report.Loaded,
		"failed_indices", last.FailedIndices(),
	)
	s.report(ctx, rep)
	return rep
}

func (s *Scheduler) report(ctx context.Context, rep RunReport) {
	for _, r := range s.reporters {
		if err := r.ReportRun(ctx, rep); err != nil {
			s.logger.Warn("report run", "status", string(rep.Status), "error", err)
		}
	}
}
