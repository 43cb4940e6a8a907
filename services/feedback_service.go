package services

import (
	"context"
	"fmt"
	"strings"

	"schoolpulse_go/models"
	"schoolpulse_go/services/notifications"
	"schoolpulse_go/utils"

	"gorm.io/gorm"
)

type FeedbackService struct {
	db     *gorm.DB
	notify *notifications.Service
}

func NewFeedbackService(db *gorm.DB, notify *notifications.Service) *FeedbackService {
	return &FeedbackService{db: db, notify: notify}
}

type CategoryInput struct {
	Teaching      int `json:"teaching" validate:"min=1,max=5" msg:"Ratings must be between 1 and 5"`
	Communication int `json:"communication" validate:"min=1,max=5" msg:"Ratings must be between 1 and 5"`
	Punctuality   int `json:"punctuality" validate:"min=1,max=5" msg:"Ratings must be between 1 and 5"`
	Teamwork      int `json:"teamwork" validate:"min=1,max=5" msg:"Ratings must be between 1 and 5"`
}

// FeedbackInput is entered by a principal. FromRole records who the
// feedback came from when the principal enters student or peer reviews.
type FeedbackInput struct {
	TeacherID  string        `json:"teacher_id" validate:"required" msg:"Select a teacher"`
	FromRole   string        `json:"from_role" validate:"omitempty,oneof=principal teacher student"`
	Type       string        `json:"type" validate:"required,oneof=performance behavior skills general" msg:"Type must be performance, behavior, skills or general"`
	Rating     int           `json:"rating" validate:"min=1,max=5" msg:"Rating must be between 1 and 5"`
	Comment    string        `json:"comment" validate:"max=2000"`
	Categories CategoryInput `json:"categories"`
}

// Create stores feedback for a teacher of the principal's school and
// refreshes the teacher's performance score.
func (s *FeedbackService) Create(ctx context.Context, principal *models.User, in FeedbackInput) (*models.Feedback, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	teacher, err := findTeacher(ctx, s.db, principal.SchoolID, in.TeacherID)
	if err != nil {
		return nil, err
	}
	if in.FromRole == "" {
		in.FromRole = models.FeedbackFromPrincipal
	}

	fb := &models.Feedback{
		TeacherID:  teacher.ID,
		FromUserID: principal.ID,
		FromRole:   in.FromRole,
		Type:       in.Type,
		Rating:     in.Rating,
		Comment:    in.Comment,
		Categories: models.FeedbackCategories{
			Teaching:      in.Categories.Teaching,
			Communication: in.Categories.Communication,
			Punctuality:   in.Categories.Punctuality,
			Teamwork:      in.Categories.Teamwork,
		},
		SchoolID: teacher.SchoolID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(fb).Error; err != nil {
			return err
		}
		return recomputePerformanceScore(tx, teacher.ID)
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyAsync([]string{teacher.UserID}, notifications.Notice{
		Title:     "New feedback received",
		Message:   fmt.Sprintf("You received %s feedback rated %d/5.", in.Type, in.Rating),
		Type:      notifications.TypeInfo,
		ActionURL: "/teacher/dashboard",
		SchoolID:  teacher.SchoolID,
	})
	return fb, nil
}

// recomputePerformanceScore sets the score to the mean rating scaled to 100.
func recomputePerformanceScore(tx *gorm.DB, teacherID string) error {
	var avg struct{ Avg float64 }
	if err := tx.Model(&models.Feedback{}).Select("COALESCE(AVG(rating), 0) AS avg").
		Where("teacher_id = ?", teacherID).Scan(&avg).Error; err != nil {
		return err
	}
	return tx.Model(&models.Teacher{}).Where("id = ?", teacherID).
		Update("stats_performance_score", utils.Round1(avg.Avg*20)).Error
}

// ListMine returns the signed in teacher's feedback, newest first.
func (s *FeedbackService) ListMine(ctx context.Context, userID string, limit int) ([]models.Feedback, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return s.forTeacher(ctx, teacher.ID, limit)
}

func (s *FeedbackService) forTeacher(ctx context.Context, teacherID string, limit int) ([]models.Feedback, error) {
	q := s.db.WithContext(ctx).Where("teacher_id = ?", teacherID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Feedback
	err := q.Find(&out).Error
	return out, err
}

// Acknowledge marks the teacher's own feedback as seen.
func (s *FeedbackService) Acknowledge(ctx context.Context, userID, id string) (*models.Feedback, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	var fb models.Feedback
	if err := s.db.WithContext(ctx).Where("id = ? AND teacher_id = ?", id, teacher.ID).First(&fb).Error; err != nil {
		return nil, notFound(err)
	}
	if err := s.db.WithContext(ctx).Model(&fb).Update("acknowledged", true).Error; err != nil {
		return nil, err
	}
	fb.Acknowledged = true
	return &fb, nil
}

// ListForSchool returns the school's feedback, optionally for one teacher.
func (s *FeedbackService) ListForSchool(ctx context.Context, schoolID, teacherID string, limit int) ([]models.Feedback, error) {
	q := s.db.WithContext(ctx).Where("school_id = ?", schoolID).Order("created_at DESC")
	if teacherID != "" {
		q = q.Where("teacher_id = ?", teacherID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Feedback
	err := q.Find(&out).Error
	return out, err
}
