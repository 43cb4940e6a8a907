package services

import (
	"context"
	"time"

	"schoolpulse_go/models"
	"schoolpulse_go/services/notifications"
	"schoolpulse_go/utils"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ActiveWindow is how recently a teacher must have signed in to count as active.
const ActiveWindow = 7 * 24 * time.Hour

type DashboardService struct {
	db       *gorm.DB
	notify   *notifications.Service
	training *TrainingService
	feedback *FeedbackService
	now      func() time.Time
}

func NewDashboardService(db *gorm.DB, notify *notifications.Service, training *TrainingService, feedback *FeedbackService) *DashboardService {
	return &DashboardService{db: db, notify: notify, training: training, feedback: feedback, now: time.Now}
}

type PrincipalDashboard struct {
	TotalTeachers      int64            `json:"total_teachers"`
	ActiveTeachers     int64            `json:"active_teachers"`
	AveragePerformance float64          `json:"average_performance"`
	MonthlyGrowth      float64          `json:"monthly_growth"`
	RecentTeachers     []models.Teacher `json:"recent_teachers"`
}

// Principal gathers the headline numbers of the principal dashboard.
func (s *DashboardService) Principal(ctx context.Context, schoolID string) (*PrincipalDashboard, error) {
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := &PrincipalDashboard{RecentTeachers: []models.Teacher{}}
	var startCount int64

	teachers := func(ctx context.Context) *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Teacher{}).Where("school_id = ?", schoolID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return teachers(gctx).Count(&out.TotalTeachers).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.User{}).
			Where("school_id = ? AND role = ? AND last_login >= ?", schoolID, models.RoleTeacher, now.Add(-ActiveWindow)).
			Count(&out.ActiveTeachers).Error
	})
	g.Go(func() error {
		var row struct{ Avg float64 }
		if err := teachers(gctx).Select("COALESCE(AVG(stats_performance_score), 0) AS avg").
			Where("stats_performance_score > 0").Scan(&row).Error; err != nil {
			return err
		}
		out.AveragePerformance = utils.Round1(row.Avg)
		return nil
	})
	g.Go(func() error {
		return teachers(gctx).Where("created_at < ?", monthStart).Count(&startCount).Error
	})
	g.Go(func() error {
		return teachers(gctx).Preload("User").Order("created_at DESC").Limit(5).Find(&out.RecentTeachers).Error
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if startCount > 0 {
		out.MonthlyGrowth = utils.Round1(float64(out.TotalTeachers-startCount) / float64(startCount) * 100)
	}
	return out, nil
}

type TeacherDashboard struct {
	Teacher        *models.Teacher     `json:"teacher"`
	Stats          models.TeacherStats `json:"stats"`
	RecentFeedback []models.Feedback   `json:"recent_feedback"`
	Trainings      []models.Training   `json:"trainings"`
	UnreadCount    int64               `json:"unread_notifications"`
}

// Teacher loads the teacher dashboard. A visit from a verified account is
// stamped as the last login.
func (s *DashboardService) Teacher(ctx context.Context, userID string) (*TeacherDashboard, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND email_verified = ?", userID, true).
		Update("last_login", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 && teacher.User != nil {
		teacher.User.LastLogin = &now
	}

	out := &TeacherDashboard{Teacher: teacher, Stats: teacher.Stats}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fb, err := s.feedback.forTeacher(gctx, teacher.ID, 3)
		out.RecentFeedback = fb
		return err
	})
	g.Go(func() error {
		tr, err := s.training.List(gctx, teacher.SchoolID, 3)
		out.Trainings = tr
		return err
	})
	g.Go(func() error {
		n, err := s.notify.UnreadCount(gctx, userID)
		out.UnreadCount = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
