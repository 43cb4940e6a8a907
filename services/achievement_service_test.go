package services

import (
	"context"
	"testing"

	"schoolpulse_go/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwardBadgeIsIdempotent(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	svc := NewAchievementService(e.db, e.notify)
	ctx := context.Background()

	tb, created, err := svc.Award(ctx, p, ana.ID, "mentor")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Mentor", tb.Badge.Name)

	_, created, err = svc.Award(ctx, p, ana.ID, "mentor")
	require.NoError(t, err)
	assert.False(t, created)

	stats := e.reloadTeacher(t, ana.ID).Stats
	assert.Equal(t, 80, stats.Points)
	assert.Equal(t, 1, stats.BadgesEarned)

	_, _, err = svc.Award(ctx, p, ana.ID, "no-such-badge")
	var re *RequestError
	assert.ErrorAs(t, err, &re)

	other := e.principal(t, "head@lake.school")
	_, _, err = svc.Award(ctx, other, ana.ID, "mentor")
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := svc.MyAchievements(ctx, ana.UserID)
	require.NoError(t, err)
	assert.Equal(t, 80, mine.TotalPoints)
	assert.Equal(t, 1, mine.BadgesEarned)
	earned := 0
	for _, b := range mine.Badges {
		if b.Earned {
			earned++
			assert.Equal(t, "mentor", b.Code)
			assert.NotNil(t, b.EarnedAt)
		}
	}
	assert.Equal(t, 1, earned)
}

func TestEvaluateBadges(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	ana := e.teacher(t, p, "Ana Lopez", "ana@hill.school", "Science")
	svc := NewAchievementService(e.db, e.notify)
	ctx := context.Background()

	earned, err := svc.EvaluateBadges(ctx, ana.ID)
	require.NoError(t, err)
	assert.Empty(t, earned)

	fb := NewFeedbackService(e.db, e.notify)
	for i := 0; i < 3; i++ {
		_, err := fb.Create(ctx, p, FeedbackInput{TeacherID: ana.ID, Type: models.FeedbackPerformance, Rating: 5, Categories: goodCategories()})
		require.NoError(t, err)
	}
	training := NewTrainingService(e.db, e.notify)
	tr, err := training.Create(ctx, p, TrainingInput{Title: "Reading Strategies", Duration: 3, SkillLevel: models.SkillBeginner})
	require.NoError(t, err)
	enr, err := training.Enroll(ctx, ana.UserID, tr.ID)
	require.NoError(t, err)
	_, err = training.UpdateProgress(ctx, ana.UserID, enr.ID, ProgressInput{Progress: 100})
	require.NoError(t, err)

	earned, err = svc.EvaluateBadges(ctx, ana.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{BadgeLifelongLearner, BadgeTopRated}, earned)

	earned, err = svc.EvaluateBadges(ctx, ana.ID)
	require.NoError(t, err)
	assert.Empty(t, earned)

	stats := e.reloadTeacher(t, ana.ID).Stats
	assert.Equal(t, CompletionPoints+25+120, stats.Points)
}

func TestLeaderboardDenseRanking(t *testing.T) {
	e := newEnv(t)
	p := e.principal(t, "head@hill.school")
	svc := NewAchievementService(e.db, e.notify)
	ctx := context.Background()

	points := map[string]int{"Cara": 100, "Ana": 100, "Ben": 40, "Dan": 0}
	for name, pts := range points {
		tch := e.teacher(t, p, name+" Teacher", name+"@hill.school", "Science")
		require.NoError(t, e.db.Model(&models.Teacher{}).Where("id = ?", tch.ID).Update("stats_points", pts).Error)
	}

	board, err := svc.Leaderboard(ctx, p.SchoolID, 0)
	require.NoError(t, err)
	type row struct {
		Rank   int
		Name   string
		Points int
	}
	var got []row
	for _, e := range board {
		got = append(got, row{e.Rank, e.Name, e.Points})
	}
	want := []row{
		{1, "Ana Teacher", 100},
		{1, "Cara Teacher", 100},
		{2, "Ben Teacher", 40},
		{3, "Dan Teacher", 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("leaderboard mismatch (-want +got):\n%s", diff)
	}

	top, err := svc.Leaderboard(ctx, p.SchoolID, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	require.NoError(t, svc.RefreshAllRankings(ctx))
	var ben models.Teacher
	require.NoError(t, e.db.Where("personal_full_name = ?", "Ben Teacher").First(&ben).Error)
	require.NotNil(t, ben.Stats.Ranking)
	assert.Equal(t, 2, *ben.Stats.Ranking)
}
