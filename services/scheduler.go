package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job names accepted by Scheduler.RunNow.
const (
	JobMonthlyMetrics  = "monthly-metrics"
	JobAbsenceSweep    = "absence-sweep"
	JobBadges          = "badges"
	JobActivityFlush   = "activity-flush"
	JobActivityArchive = "activity-archive"
)

// ArchiveAfterDays is how old activity must be before the weekly archive picks it up.
const ArchiveAfterDays = 90

type scheduledJob struct {
	name    string
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

// Scheduler runs the recurring background jobs.
type Scheduler struct {
	cron    *cron.Cron
	jobs    []scheduledJob
	running atomic.Bool
	now     func() time.Time
}

func NewScheduler(metrics *MetricsService, attendance *AttendanceService, achievements *AchievementService, activity *ActivityService) *Scheduler {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	s := &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		now:  time.Now,
	}
	s.jobs = []scheduledJob{
		{JobMonthlyMetrics, "0 1 1 * *", 10 * time.Minute, func(ctx context.Context) error {
			n, err := metrics.ComputePrevious(ctx)
			if err != nil {
				return err
			}
			logrus.WithField("teachers", n).Info("Computed monthly performance metrics")
			return nil
		}},
		{JobAbsenceSweep, "30 23 * * 1-5", 5 * time.Minute, func(ctx context.Context) error {
			n, err := attendance.SweepAbsences(ctx, s.now())
			if err != nil {
				return err
			}
			logrus.WithField("marked", n).Info("Marked missing check-ins absent")
			return nil
		}},
		{JobBadges, "0 2 * * *", 10 * time.Minute, func(ctx context.Context) error {
			n, err := achievements.EvaluateAll(ctx)
			if err != nil {
				return err
			}
			logrus.WithField("awarded", n).Info("Evaluated automatic badges")
			return achievements.RefreshAllRankings(ctx)
		}},
		{JobActivityFlush, "@hourly", 5 * time.Minute, func(ctx context.Context) error {
			_, err := activity.Flush(ctx)
			return err
		}},
		{JobActivityArchive, "0 3 * * 0", 15 * time.Minute, func(ctx context.Context) error {
			_, err := activity.Archive(ctx, ArchiveAfterDays)
			return err
		}},
	}
	return s
}

func (s *Scheduler) wrap(job scheduledJob) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), job.timeout)
		defer cancel()
		start := time.Now()
		if err := job.run(ctx); err != nil {
			logrus.WithError(err).WithField("job", job.name).Error("Scheduled job failed")
			return
		}
		logrus.WithFields(logrus.Fields{"job": job.name, "duration": time.Since(start).String()}).Debug("Scheduled job finished")
	}
}

// Start registers every job and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.running.Load() {
		return nil
	}
	for _, job := range s.jobs {
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job)); err != nil {
			return errors.Wrapf(err, "scheduling %s", job.name)
		}
	}
	s.cron.Start()
	s.running.Store(true)
	logrus.WithField("jobs", len(s.jobs)).Info("Scheduler started")
	return nil
}

// Stop halts the loop and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	if !s.running.Swap(false) {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		logrus.Warn("Scheduler stop timed out with jobs still running")
	}
}

func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// RunNow executes one job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.name == name {
			return job.run(ctx)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

// Jobs lists job names with their cron specs.
func (s *Scheduler) Jobs() map[string]string {
	out := make(map[string]string, len(s.jobs))
	for _, job := range s.jobs {
		out[job.name] = job.spec
	}
	return out
}
