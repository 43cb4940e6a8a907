package services

import (
	"context"
	"testing"
	"time"

	"schoolpulse_go/models"
	"schoolpulse_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(hour, min int) time.Time {
	return time.Date(2025, 3, 10, hour, min, 0, 0, time.UTC)
}

func TestAttendanceRate(t *testing.T) {
	tests := []struct {
		present, late, half, total int
		want                       float64
	}{
		{0, 0, 0, 0, 0},
		{10, 0, 0, 10, 100},
		{2, 1, 1, 5, 70},
		{1, 0, 0, 3, 33.3},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, AttendanceRate(tc.present, tc.late, tc.half, tc.total))
	}
}

func TestCheckInAndOut(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	ben := e.teacher(t, p, "Ben Stone", "ben@hill.school", "Mathematics")
	svc := NewAttendanceService(e.db, e.notify, e.cfg)
	ctx := context.Background()

	svc.now = fixedClock(day(8, 40))
	rec, err := svc.CheckIn(ctx, ana.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, rec.Status)
	assert.Equal(t, "2025-03-10", rec.Date)

	_, err = svc.CheckIn(ctx, ana.UserID)
	assert.ErrorIs(t, err, ErrConflict)

	svc.now = fixedClock(day(9, 0))
	rec, err = svc.CheckIn(ctx, ben.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceLate, rec.Status)

	svc.now = fixedClock(day(15, 0))
	rec, err = svc.CheckOut(ctx, ana.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, rec.Status)
	_, err = svc.CheckOut(ctx, ana.UserID)
	assert.ErrorIs(t, err, ErrConflict)

	svc.now = fixedClock(day(11, 0))
	rec, err = svc.CheckOut(ctx, ben.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceHalfDay, rec.Status)
	assert.Equal(t, 50.0, e.reloadTeacher(t, ben.ID).Stats.AttendanceRate)
	assert.Equal(t, 100.0, e.reloadTeacher(t, ana.ID).Stats.AttendanceRate)

	svc.now = fixedClock(day(8, 0).AddDate(0, 0, 1))
	_, err = svc.CheckOut(ctx, ana.UserID)
	var re *RequestError
	assert.ErrorAs(t, err, &re)
}

func TestLateHalfDayStaysLate(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	svc := NewAttendanceService(e.db, e.notify, e.cfg)
	ctx := context.Background()

	svc.now = fixedClock(day(9, 30))
	rec, err := svc.CheckIn(ctx, ana.UserID)
	require.NoError(t, err)
	assert.True(t, rec.Late)

	svc.now = fixedClock(day(11, 0))
	rec, err = svc.CheckOut(ctx, ana.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceHalfDay, rec.Status)
	assert.True(t, rec.Late)

	svc.now = fixedClock(day(8, 30).AddDate(0, 0, 1))
	_, err = svc.CheckIn(ctx, ana.UserID)
	require.NoError(t, err)

	metrics := NewMetricsService(e.db)
	_, err = metrics.ComputeMonth(ctx, p.SchoolID, 2025, time.March)
	require.NoError(t, err)
	snaps, err := metrics.Mine(ctx, ana.UserID, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 50.0, snaps[0].Metrics.PunctualityScore)
}

func TestMarkAttendanceAndSummary(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	other := e.principal(t, "head@lake.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	svc := NewAttendanceService(e.db, e.notify, e.cfg)
	svc.now = fixedClock(day(10, 0))
	ctx := context.Background()

	for date, status := range map[string]string{
		"2025-03-03": models.AttendancePresent,
		"2025-03-04": models.AttendanceLate,
		"2025-03-05": models.AttendanceAbsent,
		"2025-03-06": models.AttendanceHalfDay,
	} {
		_, err := svc.Mark(ctx, p, MarkInput{TeacherID: ana.ID, Date: date, Status: status})
		require.NoError(t, err)
	}

	// Re-marking a day replaces the record.
	rec, err := svc.Mark(ctx, p, MarkInput{TeacherID: ana.ID, Date: "2025-03-05", Status: models.AttendancePresent, Notes: "doctor's note"})
	require.NoError(t, err)
	assert.NotNil(t, rec.CheckIn)
	assert.Equal(t, p.ID, rec.MarkedBy)

	var count int64
	require.NoError(t, e.db.Model(&models.AttendanceRecord{}).Where("teacher_id = ?", ana.ID).Count(&count).Error)
	assert.EqualValues(t, 4, count)

	sum, err := svc.Summary(ctx, ana.UserID, DateRange{})
	require.NoError(t, err)
	assert.Equal(t, AttendanceSummary{Present: 2, Late: 1, HalfDay: 1, Total: 4, Rate: 87.5}, *sum)
	assert.Equal(t, 87.5, e.reloadTeacher(t, ana.ID).Stats.AttendanceRate)

	hist, err := svc.History(ctx, ana.UserID, DateRange{From: "2025-03-04", To: "2025-03-05"})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2025-03-05", hist[0].Date)

	_, err = svc.History(ctx, ana.UserID, DateRange{From: "March"})
	var re *RequestError
	assert.ErrorAs(t, err, &re)

	_, err = svc.Mark(ctx, other, MarkInput{TeacherID: ana.ID, Date: "2025-03-07", Status: models.AttendancePresent})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Mark(ctx, p, MarkInput{TeacherID: ana.ID, Date: "2025-03-07", Status: "holiday"})
	ve, ok := utils.AsValidationErrors(err)
	require.True(t, ok)
	assert.Equal(t, "Status must be present, absent, late or half-day", ve.Fields["status"])
}

func TestSchoolDayAndSweep(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	ben := e.teacher(t, p, "Ben Stone", "ben@hill.school", "Mathematics")
	svc := NewAttendanceService(e.db, e.notify, e.cfg)
	svc.now = fixedClock(day(8, 30))
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, ana.UserID)
	require.NoError(t, err)

	entries, err := svc.SchoolDay(ctx, p.SchoolID, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Ana Lopez", entries[0].TeacherName)
	assert.NotNil(t, entries[0].Record)
	assert.Nil(t, entries[1].Record)

	marked, err := svc.SweepAbsences(ctx, day(23, 30))
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	assert.Equal(t, 0.0, e.reloadTeacher(t, ben.ID).Stats.AttendanceRate)

	marked, err = svc.SweepAbsences(ctx, day(23, 30))
	require.NoError(t, err)
	assert.Zero(t, marked)
}
