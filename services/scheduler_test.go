package services

import (
	"context"
	"testing"
	"time"

	"schoolpulse_go/models"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(e *testEnv) *Scheduler {
	return NewScheduler(
		NewMetricsService(e.db),
		NewAttendanceService(e.db, e.notify, e.cfg),
		NewAchievementService(e.db, e.notify),
		NewActivityService(e.db, nil, e.store),
	)
}

func TestSchedulerSpecsParse(t *testing.T) {
	s := newScheduler(newEnv(t))
	jobs := s.Jobs()
	assert.Len(t, jobs, 5)
	for name, spec := range jobs {
		_, err := cron.ParseStandard(spec)
		assert.NoError(t, err, name)
	}
}

func TestSchedulerRunNow(t *testing.T) {
	e := newEnv(t)
	head := e.principal(t, "head@school.org")
	teacher := e.teacher(t, head, "Ann Lee", "ann@school.org", "Science")

	s := newScheduler(e)
	s.now = fixedClock(time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, s.RunNow(ctx, JobAbsenceSweep))
	var rec models.AttendanceRecord
	require.NoError(t, e.db.Where("teacher_id = ? AND date = ?", teacher.ID, "2026-03-04").First(&rec).Error)
	assert.Equal(t, models.AttendanceAbsent, rec.Status)

	require.NoError(t, s.RunNow(ctx, JobBadges))
	require.NoError(t, s.RunNow(ctx, JobActivityFlush))
	require.NoError(t, s.RunNow(ctx, JobActivityArchive))
	require.NoError(t, s.RunNow(ctx, JobMonthlyMetrics))
	assert.Error(t, s.RunNow(ctx, "nope"))
}

func TestSchedulerStartStop(t *testing.T) {
	s := newScheduler(newEnv(t))
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.Running())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.False(t, s.Running())
	s.Stop(ctx)
}
