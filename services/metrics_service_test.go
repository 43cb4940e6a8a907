package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"schoolpulse_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallScore(t *testing.T) {
	tests := []struct {
		name string
		in   models.MonthlyMetrics
		want float64
	}{
		{"empty", models.MonthlyMetrics{}, 0},
		{"perfect", models.MonthlyMetrics{AttendanceRate: 100, PunctualityScore: 100, StudentFeedbackAvg: 5, PeerFeedbackAvg: 5, TrainingHours: 12}, 100},
		{"only peer feedback counts", models.MonthlyMetrics{PeerFeedbackAvg: 4}, 24},
		{"training saturates", models.MonthlyMetrics{TrainingHours: 50}, 20},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OverallScore(tc.in))
		})
	}
}

func TestPreviousMonth(t *testing.T) {
	y, m := PreviousMonth(time.Date(2025, time.January, 1, 1, 0, 0, 0, time.UTC))
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.December, m)

	y, m = PreviousMonth(time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.February, m)
}

func TestComputeMonth(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	ctx := context.Background()
	now := time.Now().UTC()
	prefix := fmt.Sprintf("%04d-%02d-", now.Year(), now.Month())
	checkIn := now

	for i, status := range []string{models.AttendancePresent, models.AttendanceLate, models.AttendanceAbsent, models.AttendanceHalfDay} {
		rec := models.AttendanceRecord{TeacherID: ana.ID, SchoolID: p.SchoolID, Date: fmt.Sprintf("%s%02d", prefix, i+1), Status: status, Late: status == models.AttendanceLate}
		if status != models.AttendanceAbsent {
			rec.CheckIn = &checkIn
		}
		require.NoError(t, e.db.Create(&rec).Error)
	}

	fb := NewFeedbackService(e.db, e.notify)
	_, err := fb.Create(ctx, p, FeedbackInput{TeacherID: ana.ID, FromRole: models.FeedbackFromStudent, Type: models.FeedbackGeneral, Rating: 4, Categories: goodCategories()})
	require.NoError(t, err)
	_, err = fb.Create(ctx, p, FeedbackInput{TeacherID: ana.ID, Type: models.FeedbackPerformance, Rating: 5, Categories: goodCategories()})
	require.NoError(t, err)

	training := NewTrainingService(e.db, e.notify)
	tr, err := training.Create(ctx, p, TrainingInput{Title: "Differentiation", Duration: 3, SkillLevel: models.SkillIntermediate})
	require.NoError(t, err)
	enr, err := training.Enroll(ctx, ana.UserID, tr.ID)
	require.NoError(t, err)
	_, err = training.UpdateProgress(ctx, ana.UserID, enr.ID, ProgressInput{Progress: 100})
	require.NoError(t, err)

	_, err = NewLessonPlanService(e.db, e.store, e.cfg).Create(ctx, ana.UserID, planInput("Photosynthesis"))
	require.NoError(t, err)

	svc := NewMetricsService(e.db)
	for i := 0; i < 2; i++ {
		n, err := svc.ComputeMonth(ctx, p.SchoolID, now.Year(), now.Month())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	snaps, err := svc.Mine(ctx, ana.UserID, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1, "recomputing replaces the snapshot")
	got := snaps[0]
	assert.Equal(t, models.MonthlyMetrics{
		AttendanceRate:     62.5,
		PunctualityScore:   66.7,
		StudentFeedbackAvg: 4,
		PeerFeedbackAvg:    5,
		TrainingHours:      3,
		LessonsCompleted:   1,
	}, got.Metrics)
	assert.Equal(t, 65.1, got.OverallScore)

	other := e.principal(t, "head@lake.school")
	_, err = svc.ForSchoolTeacher(ctx, other.SchoolID, ana.ID, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ComputeMonth(ctx, "", 2025, 13)
	var re *RequestError
	assert.ErrorAs(t, err, &re)
}
