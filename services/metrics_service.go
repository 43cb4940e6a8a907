package services

import (
	"context"
	"math"
	"time"

	"schoolpulse_go/models"
	"schoolpulse_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MetricsService computes the monthly performance snapshot of each teacher.
type MetricsService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMetricsService(db *gorm.DB) *MetricsService {
	return &MetricsService{db: db, now: time.Now}
}

// OverallScore weighs attendance 30%, punctuality 20%, feedback 30% and
// training hours 20%. Training saturates at 10 hours.
func OverallScore(m models.MonthlyMetrics) float64 {
	var sum float64
	var n int
	for _, avg := range []float64{m.StudentFeedbackAvg, m.PeerFeedbackAvg} {
		if avg > 0 {
			sum += avg
			n++
		}
	}
	feedback := 0.0
	if n > 0 {
		feedback = sum / float64(n) * 20
	}
	training := math.Min(m.TrainingHours*10, 100)
	return utils.Round1(0.3*m.AttendanceRate + 0.2*m.PunctualityScore + 0.3*feedback + 0.2*training)
}

// PreviousMonth returns the month before the one containing t.
func PreviousMonth(t time.Time) (int, time.Month) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, -1, 0)
	return first.Year(), first.Month()
}

// ComputeMonth stores metrics for every teacher, or the teachers of
// schoolID when it is not empty. It returns how many snapshots were written.
func (s *MetricsService) ComputeMonth(ctx context.Context, schoolID string, year int, month time.Month) (int, error) {
	if month < time.January || month > time.December {
		return 0, badRequest("Month must be between 1 and 12")
	}
	q := s.db.WithContext(ctx).Model(&models.Teacher{})
	if schoolID != "" {
		q = q.Where("school_id = ?", schoolID)
	}
	var teachers []models.Teacher
	if err := q.Find(&teachers).Error; err != nil {
		return 0, err
	}

	written := 0
	for i := range teachers {
		if _, err := s.computeTeacher(ctx, &teachers[i], year, month); err != nil {
			logrus.WithError(err).WithField("teacher_id", teachers[i].ID).Error("Failed to compute monthly metrics")
			continue
		}
		written++
	}
	return written, nil
}

func (s *MetricsService) computeTeacher(ctx context.Context, teacher *models.Teacher, year int, month time.Month) (*models.PerformanceMetrics, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	db := s.db.WithContext(ctx)

	var m models.MonthlyMetrics

	attendance := db.Model(&models.AttendanceRecord{}).
		Where("teacher_id = ? AND date >= ? AND date < ?", teacher.ID, from.Format(utils.DateLayout), to.Format(utils.DateLayout))
	sum, err := attendanceSummary(attendance.Session(&gorm.Session{}))
	if err != nil {
		return nil, errors.Wrap(err, "attendance")
	}
	m.AttendanceRate = sum.Rate

	var checkIns, onTime int64
	if err := attendance.Session(&gorm.Session{}).Where("check_in IS NOT NULL").Count(&checkIns).Error; err != nil {
		return nil, errors.Wrap(err, "check-ins")
	}
	if err := attendance.Session(&gorm.Session{}).Where("check_in IS NOT NULL AND late = ?", false).Count(&onTime).Error; err != nil {
		return nil, errors.Wrap(err, "punctuality")
	}
	if checkIns > 0 {
		m.PunctualityScore = utils.Round1(float64(onTime) / float64(checkIns) * 100)
	}

	feedbackAvg := func(roles ...string) (float64, error) {
		var row struct{ Avg float64 }
		err := db.Model(&models.Feedback{}).Select("COALESCE(AVG(rating), 0) AS avg").
			Where("teacher_id = ? AND from_role IN ? AND created_at >= ? AND created_at < ?", teacher.ID, roles, from, to).
			Scan(&row).Error
		return utils.Round1(row.Avg), err
	}
	if m.StudentFeedbackAvg, err = feedbackAvg(models.FeedbackFromStudent); err != nil {
		return nil, errors.Wrap(err, "student feedback")
	}
	if m.PeerFeedbackAvg, err = feedbackAvg(models.FeedbackFromTeacher, models.FeedbackFromPrincipal); err != nil {
		return nil, errors.Wrap(err, "peer feedback")
	}

	var enrollments []models.TrainingEnrollment
	if err := db.Preload("Training", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
		Where("teacher_id = ? AND completed_at >= ? AND completed_at < ?", teacher.ID, from, to).
		Find(&enrollments).Error; err != nil {
		return nil, errors.Wrap(err, "training")
	}
	for _, e := range enrollments {
		if e.Training != nil {
			m.TrainingHours += float64(e.Training.Duration)
		}
	}

	lessons, err := countCreated(db, teacher.ID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "lesson plans")
	}
	m.LessonsCompleted = int(lessons)

	snapshot := &models.PerformanceMetrics{
		TeacherID:    teacher.ID,
		Month:        int(month),
		Year:         year,
		Metrics:      m,
		OverallScore: OverallScore(m),
		SchoolID:     teacher.SchoolID,
	}
	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "teacher_id"}, {Name: "month"}, {Name: "year"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"metric_attendance_rate", "metric_punctuality_score", "metric_student_feedback_avg",
			"metric_peer_feedback_avg", "metric_training_hours", "metric_lessons_completed",
			"overall_score", "school_id", "updated_at",
		}),
	}).Create(snapshot).Error
	if err != nil {
		return nil, errors.Wrap(err, "saving metrics")
	}
	return snapshot, nil
}

// ComputePrevious computes last month's metrics, the monthly job.
func (s *MetricsService) ComputePrevious(ctx context.Context) (int, error) {
	year, month := PreviousMonth(s.now())
	return s.ComputeMonth(ctx, "", year, month)
}

// ForTeacher returns the teacher's snapshots, newest first.
func (s *MetricsService) ForTeacher(ctx context.Context, teacherID string, limit int) ([]models.PerformanceMetrics, error) {
	q := s.db.WithContext(ctx).Where("teacher_id = ?", teacherID).Order("year DESC, month DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.PerformanceMetrics
	err := q.Find(&out).Error
	return out, err
}

// ForSchoolTeacher checks that the teacher belongs to schoolID first.
func (s *MetricsService) ForSchoolTeacher(ctx context.Context, schoolID, teacherID string, limit int) ([]models.PerformanceMetrics, error) {
	if _, err := findTeacher(ctx, s.db, schoolID, teacherID); err != nil {
		return nil, err
	}
	return s.ForTeacher(ctx, teacherID, limit)
}

// Mine returns the signed in teacher's snapshots.
func (s *MetricsService) Mine(ctx context.Context, userID string, limit int) ([]models.PerformanceMetrics, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return s.ForTeacher(ctx, teacher.ID, limit)
}
