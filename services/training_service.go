package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schoolpulse_go/models"
	"schoolpulse_go/services/notifications"
	"schoolpulse_go/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CompletionPoints are added to a teacher's score for each finished training.
const CompletionPoints = 50

type TrainingService struct {
	db     *gorm.DB
	notify *notifications.Service
	now    func() time.Time
}

func NewTrainingService(db *gorm.DB, notify *notifications.Service) *TrainingService {
	return &TrainingService{db: db, notify: notify, now: time.Now}
}

type TrainingInput struct {
	Title       string `json:"title" validate:"required,min=3" msg:"Title must be at least 3 characters"`
	Description string `json:"description"`
	Duration    int    `json:"duration" validate:"min=1" msg:"Duration must be at least 1 hour"`
	Department  string `json:"department"`
	SkillLevel  string `json:"skill_level" validate:"required,oneof=beginner intermediate advanced" msg:"Skill level must be beginner, intermediate or advanced"`
}

func (in *TrainingInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Department = strings.TrimSpace(in.Department)
}

// Create publishes a training and tells the school's teachers about it.
func (s *TrainingService) Create(ctx context.Context, principal *models.User, in TrainingInput) (*models.Training, error) {
	in.normalize()
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	training := &models.Training{
		Title:       in.Title,
		Description: in.Description,
		Duration:    in.Duration,
		Department:  in.Department,
		SkillLevel:  in.SkillLevel,
		CreatedBy:   principal.ID,
		SchoolID:    principal.SchoolID,
	}
	if err := s.db.WithContext(ctx).Create(training).Error; err != nil {
		return nil, err
	}

	var userIDs []string
	if err := s.db.WithContext(ctx).Model(&models.Teacher{}).Where("school_id = ?", principal.SchoolID).Pluck("user_id", &userIDs).Error; err == nil && len(userIDs) > 0 {
		s.notify.NotifyAsync(userIDs, notifications.Notice{
			Title:     "New training available",
			Message:   training.Title,
			Type:      notifications.TypeInfo,
			ActionURL: "/teacher/training",
			SchoolID:  principal.SchoolID,
		})
	}
	return training, nil
}

func (s *TrainingService) find(ctx context.Context, schoolID, id string) (*models.Training, error) {
	var training models.Training
	if err := s.db.WithContext(ctx).Where("id = ? AND school_id = ?", id, schoolID).First(&training).Error; err != nil {
		return nil, notFound(err)
	}
	return &training, nil
}

func (s *TrainingService) Update(ctx context.Context, principal *models.User, id string, in TrainingInput) (*models.Training, error) {
	in.normalize()
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	training, err := s.find(ctx, principal.SchoolID, id)
	if err != nil {
		return nil, err
	}
	training.Title = in.Title
	training.Description = in.Description
	training.Duration = in.Duration
	training.Department = in.Department
	training.SkillLevel = in.SkillLevel
	if err := s.db.WithContext(ctx).Save(training).Error; err != nil {
		return nil, err
	}
	return training, nil
}

// Delete removes a training. Completed enrollments keep counting toward stats.
func (s *TrainingService) Delete(ctx context.Context, principal *models.User, id string) error {
	training, err := s.find(ctx, principal.SchoolID, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(training).Error
}

// List returns the school's trainings, newest first. limit <= 0 means all.
func (s *TrainingService) List(ctx context.Context, schoolID string, limit int) ([]models.Training, error) {
	q := s.db.WithContext(ctx).Where("school_id = ?", schoolID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var trainings []models.Training
	err := q.Find(&trainings).Error
	return trainings, err
}

// AvailableTraining is a training with the viewer's enrollment, if any.
type AvailableTraining struct {
	models.Training
	Enrollment *models.TrainingEnrollment `json:"enrollment"`
}

func (s *TrainingService) ListAvailable(ctx context.Context, userID string) ([]AvailableTraining, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	trainings, err := s.List(ctx, teacher.SchoolID, 0)
	if err != nil {
		return nil, err
	}
	var enrollments []models.TrainingEnrollment
	if err := s.db.WithContext(ctx).Where("teacher_id = ?", teacher.ID).Find(&enrollments).Error; err != nil {
		return nil, err
	}
	byTraining := make(map[string]*models.TrainingEnrollment, len(enrollments))
	for i := range enrollments {
		byTraining[enrollments[i].TrainingID] = &enrollments[i]
	}
	out := make([]AvailableTraining, 0, len(trainings))
	for _, t := range trainings {
		out = append(out, AvailableTraining{Training: t, Enrollment: byTraining[t.ID]})
	}
	return out, nil
}

func (s *TrainingService) Enroll(ctx context.Context, userID, trainingID string) (*models.TrainingEnrollment, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	training, err := s.find(ctx, teacher.SchoolID, trainingID)
	if err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.TrainingEnrollment{}).
		Where("teacher_id = ? AND training_id = ?", teacher.ID, training.ID).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, errors.Wrap(ErrConflict, "already enrolled")
	}

	enrollment := &models.TrainingEnrollment{
		TeacherID:  teacher.ID,
		TrainingID: training.ID,
		SchoolID:   teacher.SchoolID,
		EnrolledAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(enrollment).Error; err != nil {
		return nil, err
	}
	enrollment.Training = training
	return enrollment, nil
}

type ProgressInput struct {
	Progress int `json:"progress" validate:"min=0,max=100" msg:"Progress must be between 0 and 100"`
}

// UpdateProgress records progress on the teacher's own enrollment. The first
// time it reaches 100 the training counts as completed.
func (s *TrainingService) UpdateProgress(ctx context.Context, userID, enrollmentID string, in ProgressInput) (*models.TrainingEnrollment, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	var enrollment models.TrainingEnrollment
	if err := s.db.WithContext(ctx).Preload("Training").
		Where("id = ? AND teacher_id = ?", enrollmentID, teacher.ID).First(&enrollment).Error; err != nil {
		return nil, notFound(err)
	}
	if enrollment.CompletedAt != nil {
		return &enrollment, nil
	}

	completed := in.Progress == 100
	updates := map[string]interface{}{"progress": in.Progress}
	var now time.Time
	if completed {
		now = s.now()
		updates["completed_at"] = now
	}
	stale := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Only an open enrollment moves, so concurrent completions count once.
		res := tx.Model(&models.TrainingEnrollment{}).
			Where("id = ? AND completed_at IS NULL", enrollment.ID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			stale = true
			return nil
		}
		if !completed {
			return nil
		}
		return tx.Model(&models.Teacher{}).Where("id = ?", teacher.ID).Updates(map[string]interface{}{
			"stats_training_completed": gorm.Expr("stats_training_completed + ?", 1),
			"stats_points":             gorm.Expr("stats_points + ?", CompletionPoints),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	if stale {
		if err := s.db.WithContext(ctx).Preload("Training").First(&enrollment, "id = ?", enrollment.ID).Error; err != nil {
			return nil, err
		}
		return &enrollment, nil
	}
	enrollment.Progress = in.Progress
	if completed {
		enrollment.CompletedAt = &now
	}

	if completed {
		title := "a training"
		if enrollment.Training != nil {
			title = enrollment.Training.Title
		}
		s.notify.NotifyAsync([]string{teacher.UserID}, notifications.Notice{
			Title:     "Training completed",
			Message:   fmt.Sprintf("You completed %s and earned %d points.", title, CompletionPoints),
			Type:      notifications.TypeSuccess,
			ActionURL: "/teacher/achievements",
			SchoolID:  teacher.SchoolID,
		})
	}
	return &enrollment, nil
}

// MyEnrollments lists the teacher's enrollments with their trainings.
func (s *TrainingService) MyEnrollments(ctx context.Context, userID string) ([]models.TrainingEnrollment, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	var enrollments []models.TrainingEnrollment
	err = s.db.WithContext(ctx).Preload("Training").
		Where("teacher_id = ?", teacher.ID).Order("enrolled_at DESC").Find(&enrollments).Error
	return enrollments, err
}
