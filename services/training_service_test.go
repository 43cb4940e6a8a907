package services

import (
	"context"
	"sync"
	"testing"

	"schoolpulse_go/models"
	"schoolpulse_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainingCRUD(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	other := e.principal(t, "head@lake.school")
	svc := NewTrainingService(e.db, e.notify)
	ctx := context.Background()

	_, err := svc.Create(ctx, p, TrainingInput{Title: "AI", Duration: 0, SkillLevel: "expert"})
	ve, ok := utils.AsValidationErrors(err)
	require.True(t, ok)
	assert.Equal(t, "Title must be at least 3 characters", ve.Fields["title"])
	assert.Equal(t, "Duration must be at least 1 hour", ve.Fields["duration"])
	assert.Equal(t, "Skill level must be beginner, intermediate or advanced", ve.Fields["skill_level"])

	tr, err := svc.Create(ctx, p, TrainingInput{Title: " Classroom Tech ", Duration: 6, SkillLevel: models.SkillBeginner})
	require.NoError(t, err)
	assert.Equal(t, "Classroom Tech", tr.Title)
	assert.Equal(t, p.SchoolID, tr.SchoolID)

	_, err = svc.Update(ctx, other, tr.ID, TrainingInput{Title: "Hijack", Duration: 1, SkillLevel: models.SkillAdvanced})
	assert.ErrorIs(t, err, ErrNotFound)

	tr, err = svc.Update(ctx, p, tr.ID, TrainingInput{Title: "Classroom Tech II", Duration: 8, SkillLevel: models.SkillIntermediate})
	require.NoError(t, err)
	assert.Equal(t, 8, tr.Duration)

	list, err := svc.List(ctx, p.SchoolID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, p, tr.ID))
	list, err = svc.List(ctx, p.SchoolID, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEnrollAndComplete(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	svc := NewTrainingService(e.db, e.notify)
	ctx := context.Background()

	tr, err := svc.Create(ctx, p, TrainingInput{Title: "Assessment Design", Duration: 4, SkillLevel: models.SkillBeginner})
	require.NoError(t, err)

	avail, err := svc.ListAvailable(ctx, ana.UserID)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Nil(t, avail[0].Enrollment)

	enr, err := svc.Enroll(ctx, ana.UserID, tr.ID)
	require.NoError(t, err)
	assert.Zero(t, enr.Progress)

	_, err = svc.Enroll(ctx, ana.UserID, tr.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.UpdateProgress(ctx, ana.UserID, enr.ID, ProgressInput{Progress: 140})
	_, ok := utils.AsValidationErrors(err)
	assert.True(t, ok)

	enr, err = svc.UpdateProgress(ctx, ana.UserID, enr.ID, ProgressInput{Progress: 60})
	require.NoError(t, err)
	assert.Nil(t, enr.CompletedAt)

	enr, err = svc.UpdateProgress(ctx, ana.UserID, enr.ID, ProgressInput{Progress: 100})
	require.NoError(t, err)
	require.NotNil(t, enr.CompletedAt)

	// Completing twice does not award twice.
	_, err = svc.UpdateProgress(ctx, ana.UserID, enr.ID, ProgressInput{Progress: 100})
	require.NoError(t, err)

	stats := e.reloadTeacher(t, ana.ID).Stats
	assert.Equal(t, 1, stats.TrainingCompleted)
	assert.Equal(t, CompletionPoints, stats.Points)

	mine, err := svc.MyEnrollments(ctx, ana.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Training)
	assert.Equal(t, "Assessment Design", mine[0].Training.Title)

	avail, err = svc.ListAvailable(ctx, ana.UserID)
	require.NoError(t, err)
	require.NotNil(t, avail[0].Enrollment)
	assert.Equal(t, 100, avail[0].Enrollment.Progress)
}

func TestConcurrentCompletionCountsOnce(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	svc := NewTrainingService(e.db, e.notify)
	ctx := context.Background()

	tr, err := svc.Create(ctx, p, TrainingInput{Title: "Reading Workshop", Duration: 3, SkillLevel: models.SkillBeginner})
	require.NoError(t, err)
	enr, err := svc.Enroll(ctx, ana.UserID, tr.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.UpdateProgress(ctx, ana.UserID, enr.ID, ProgressInput{Progress: 100})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	stats := e.reloadTeacher(t, ana.ID).Stats
	assert.Equal(t, 1, stats.TrainingCompleted)
	assert.Equal(t, CompletionPoints, stats.Points)

	// Progress on a completed enrollment is ignored.
	got, err := svc.UpdateProgress(ctx, ana.UserID, enr.ID, ProgressInput{Progress: 40})
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.CompletedAt)
}

func TestEnrollmentIsPrivate(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	ben := e.teacher(t, p, "Ben Stone", "ben@hill.school", "Science")
	svc := NewTrainingService(e.db, e.notify)
	ctx := context.Background()

	tr, err := svc.Create(ctx, p, TrainingInput{Title: "Safeguarding", Duration: 2, SkillLevel: models.SkillBeginner})
	require.NoError(t, err)
	enr, err := svc.Enroll(ctx, ana.UserID, tr.ID)
	require.NoError(t, err)

	_, err = svc.UpdateProgress(ctx, ben.UserID, enr.ID, ProgressInput{Progress: 100})
	assert.ErrorIs(t, err, ErrNotFound)
}
