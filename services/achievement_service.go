package services

import (
	"context"
	"fmt"
	"time"

	"schoolpulse_go/models"
	"schoolpulse_go/services/notifications"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Badges awarded automatically by EvaluateBadges.
const (
	BadgePerfectAttendance = "perfect-attendance"
	BadgeTrainingChampion  = "training-champion"
	BadgeLifelongLearner   = "lifelong-learner"
	BadgeTopRated          = "top-rated"
)

type AchievementService struct {
	db     *gorm.DB
	notify *notifications.Service
	now    func() time.Time
}

func NewAchievementService(db *gorm.DB, notify *notifications.Service) *AchievementService {
	return &AchievementService{db: db, notify: notify, now: time.Now}
}

// Catalog lists every badge.
func (s *AchievementService) Catalog(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	err := s.db.WithContext(ctx).Order("category, points DESC").Find(&badges).Error
	return badges, err
}

// Award gives a badge to a teacher of the principal's school. Awarding a
// badge the teacher already holds returns the existing award.
func (s *AchievementService) Award(ctx context.Context, principal *models.User, teacherID, code string) (*models.TeacherBadge, bool, error) {
	teacher, err := findTeacher(ctx, s.db, principal.SchoolID, teacherID)
	if err != nil {
		return nil, false, err
	}
	return s.award(ctx, teacher, code)
}

func (s *AchievementService) award(ctx context.Context, teacher *models.Teacher, code string) (*models.TeacherBadge, bool, error) {
	var badge models.Badge
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&badge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, badRequest(fmt.Sprintf("Unknown badge %q", code))
		}
		return nil, false, err
	}

	var tb models.TeacherBadge
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("teacher_id = ? AND badge_id = ?", teacher.ID, badge.ID).First(&tb).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		tb = models.TeacherBadge{
			TeacherID: teacher.ID,
			BadgeID:   badge.ID,
			EarnedAt:  s.now(),
			SchoolID:  teacher.SchoolID,
		}
		if err := tx.Create(&tb).Error; err != nil {
			return err
		}
		created = true
		return tx.Model(&models.Teacher{}).Where("id = ?", teacher.ID).Updates(map[string]interface{}{
			"stats_points":        gorm.Expr("stats_points + ?", badge.Points),
			"stats_badges_earned": gorm.Expr("stats_badges_earned + ?", 1),
		}).Error
	})
	if err != nil {
		return nil, false, err
	}
	tb.Badge = &badge

	if created {
		s.notify.NotifyAsync([]string{teacher.UserID}, notifications.Notice{
			Title:     "Badge earned: " + badge.Name,
			Message:   fmt.Sprintf("%s (+%d points)", badge.Description, badge.Points),
			Type:      notifications.TypeSuccess,
			ActionURL: "/teacher/achievements",
			SchoolID:  teacher.SchoolID,
		})
	}
	return &tb, created, nil
}

// EvaluateBadges awards the automatic badges a teacher now qualifies for
// and returns the codes newly earned.
func (s *AchievementService) EvaluateBadges(ctx context.Context, teacherID string) ([]string, error) {
	var teacher models.Teacher
	if err := s.db.WithContext(ctx).First(&teacher, "id = ?", teacherID).Error; err != nil {
		return nil, notFound(err)
	}

	var records, completed, feedback int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.AttendanceRecord{}).Where("teacher_id = ?", teacher.ID).Count(&records).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.TrainingEnrollment{}).Where("teacher_id = ? AND completed_at IS NOT NULL", teacher.ID).Count(&completed).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Feedback{}).Where("teacher_id = ?", teacher.ID).Count(&feedback).Error; err != nil {
		return nil, err
	}

	var due []string
	if teacher.Stats.AttendanceRate >= 100 && records >= 20 {
		due = append(due, BadgePerfectAttendance)
	}
	if completed >= 1 {
		due = append(due, BadgeLifelongLearner)
	}
	if completed >= 5 {
		due = append(due, BadgeTrainingChampion)
	}
	if teacher.Stats.PerformanceScore >= 90 && feedback >= 3 {
		due = append(due, BadgeTopRated)
	}

	var earned []string
	for _, code := range due {
		_, created, err := s.award(ctx, &teacher, code)
		if err != nil {
			return earned, err
		}
		if created {
			earned = append(earned, code)
		}
	}
	return earned, nil
}

// EvaluateAll runs EvaluateBadges for every teacher.
func (s *AchievementService) EvaluateAll(ctx context.Context) (int, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Teacher{}).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		earned, err := s.EvaluateBadges(ctx, id)
		if err != nil {
			logrus.WithError(err).WithField("teacher_id", id).Error("Badge evaluation failed")
			continue
		}
		total += len(earned)
	}
	return total, nil
}

// EarnedBadge is a catalog entry from one teacher's point of view.
type EarnedBadge struct {
	models.Badge
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at"`
}

type Achievements struct {
	Badges       []EarnedBadge `json:"badges"`
	TotalPoints  int           `json:"total_points"`
	BadgesEarned int           `json:"badges_earned"`
	Ranking      *int          `json:"ranking"`
}

func (s *AchievementService) MyAchievements(ctx context.Context, userID string) (*Achievements, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	var held []models.TeacherBadge
	if err := s.db.WithContext(ctx).Where("teacher_id = ?", teacher.ID).Find(&held).Error; err != nil {
		return nil, err
	}
	earnedAt := make(map[string]time.Time, len(held))
	for _, tb := range held {
		earnedAt[tb.BadgeID] = tb.EarnedAt
	}

	out := &Achievements{
		Badges:       make([]EarnedBadge, 0, len(catalog)),
		TotalPoints:  teacher.Stats.Points,
		BadgesEarned: len(held),
		Ranking:      teacher.Stats.Ranking,
	}
	for _, b := range catalog {
		eb := EarnedBadge{Badge: b}
		if at, ok := earnedAt[b.ID]; ok {
			at := at
			eb.Earned = true
			eb.EarnedAt = &at
		}
		out.Badges = append(out.Badges, eb)
	}
	return out, nil
}

type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	TeacherID    string `json:"teacher_id"`
	Name         string `json:"name"`
	Department   string `json:"department"`
	Points       int    `json:"points"`
	BadgesEarned int    `json:"badges_earned"`
}

// Leaderboard ranks the school's teachers by points. Equal points share a
// rank and the next distinct score takes the following rank.
func (s *AchievementService) Leaderboard(ctx context.Context, schoolID string, limit int) ([]LeaderboardEntry, error) {
	var teachers []models.Teacher
	if err := s.db.WithContext(ctx).Where("school_id = ?", schoolID).
		Order("stats_points DESC, personal_full_name ASC").Find(&teachers).Error; err != nil {
		return nil, err
	}
	entries := rank(teachers)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func rank(sorted []models.Teacher) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(sorted))
	r := 0
	for i, t := range sorted {
		if i == 0 || t.Stats.Points != sorted[i-1].Stats.Points {
			r++
		}
		entries = append(entries, LeaderboardEntry{
			Rank:         r,
			TeacherID:    t.ID,
			Name:         t.Personal.FullName,
			Department:   t.Professional.Department,
			Points:       t.Stats.Points,
			BadgesEarned: t.Stats.BadgesEarned,
		})
	}
	return entries
}

// RefreshRankings stores each teacher's leaderboard rank.
func (s *AchievementService) RefreshRankings(ctx context.Context, schoolID string) error {
	entries, err := s.Leaderboard(ctx, schoolID, 0)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := tx.Model(&models.Teacher{}).Where("id = ?", e.TeacherID).Update("stats_ranking", e.Rank).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RefreshAllRankings refreshes every school that has teachers.
func (s *AchievementService) RefreshAllRankings(ctx context.Context) error {
	var schools []string
	if err := s.db.WithContext(ctx).Model(&models.Teacher{}).Distinct("school_id").Pluck("school_id", &schools).Error; err != nil {
		return err
	}
	for _, id := range schools {
		if err := s.RefreshRankings(ctx, id); err != nil {
			return errors.Wrapf(err, "refreshing rankings of %s", id)
		}
	}
	return nil
}
