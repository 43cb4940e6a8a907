package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schoolpulse_go/config"
	"schoolpulse_go/models"
	"schoolpulse_go/storage"
	"schoolpulse_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LessonPlanService is the teacher's lesson plan library.
type LessonPlanService struct {
	db    *gorm.DB
	store storage.FileStore
	cfg   *config.Config
	now   func() time.Time
}

func NewLessonPlanService(db *gorm.DB, store storage.FileStore, cfg *config.Config) *LessonPlanService {
	return &LessonPlanService{db: db, store: store, cfg: cfg, now: time.Now}
}

type LessonPlanInput struct {
	Title      string   `json:"title" validate:"required,min=3" msg:"Title must be at least 3 characters"`
	Subject    string   `json:"subject" validate:"notblank" msg:"Subject is required"`
	GradeLevel string   `json:"grade_level" validate:"notblank" msg:"Grade level is required"`
	Duration   int      `json:"duration" validate:"min=1" msg:"Duration must be at least 1 minute"`
	Objectives []string `json:"objectives"`
	Materials  []string `json:"materials"`
	Activities []string `json:"activities"`
	Assessment string   `json:"assessment"`
}

func (in *LessonPlanInput) apply(p *models.LessonPlan) {
	p.Title = strings.TrimSpace(in.Title)
	p.Subject = strings.TrimSpace(in.Subject)
	p.GradeLevel = strings.TrimSpace(in.GradeLevel)
	p.Duration = in.Duration
	p.Objectives = cleanList(in.Objectives)
	p.Materials = cleanList(in.Materials)
	p.Activities = cleanList(in.Activities)
	p.Assessment = strings.TrimSpace(in.Assessment)
}

func (s *LessonPlanService) Create(ctx context.Context, userID string, in LessonPlanInput) (*models.LessonPlan, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	plan := &models.LessonPlan{
		TeacherID: teacher.ID,
		SchoolID:  teacher.SchoolID,
		FileURLs:  models.StringList{},
	}
	in.apply(plan)
	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

// own loads a plan authored by the signed in teacher.
func (s *LessonPlanService) own(ctx context.Context, userID, id string) (*models.LessonPlan, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	var plan models.LessonPlan
	if err := s.db.WithContext(ctx).Where("id = ? AND teacher_id = ?", id, teacher.ID).First(&plan).Error; err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

// Get returns a plan the teacher wrote, or one shared within their school.
func (s *LessonPlanService) Get(ctx context.Context, userID, id string) (*models.LessonPlan, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	var plan models.LessonPlan
	err = s.db.WithContext(ctx).
		Where("id = ?", id).
		Where(s.db.Where("teacher_id = ?", teacher.ID).Or(map[string]interface{}{"shared": true, "school_id": teacher.SchoolID})).
		First(&plan).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

func (s *LessonPlanService) Update(ctx context.Context, userID, id string, in LessonPlanInput) (*models.LessonPlan, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	plan, err := s.own(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	in.apply(plan)
	if err := s.db.WithContext(ctx).Model(plan).
		Select("title", "subject", "grade_level", "duration", "objectives", "materials", "activities", "assessment").
		Updates(plan).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

// Delete removes the plan and its attachments.
func (s *LessonPlanService) Delete(ctx context.Context, userID, id string) error {
	plan, err := s.own(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(plan).Error; err != nil {
		return err
	}
	for _, u := range plan.FileURLs {
		if err := s.store.Delete(ctx, u); err != nil {
			logrus.WithError(err).WithField("url", u).Warn("Failed to delete lesson plan attachment")
		}
	}
	return nil
}

// ListMine returns the teacher's plans, newest first.
func (s *LessonPlanService) ListMine(ctx context.Context, userID string) ([]models.LessonPlan, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	var plans []models.LessonPlan
	err = s.db.WithContext(ctx).Where("teacher_id = ?", teacher.ID).Order("created_at DESC").Find(&plans).Error
	return plans, err
}

// ListShared returns plans shared by the teachers of the viewer's school.
func (s *LessonPlanService) ListShared(ctx context.Context, userID string) ([]models.LessonPlan, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	var plans []models.LessonPlan
	err = s.db.WithContext(ctx).
		Where(map[string]interface{}{"school_id": teacher.SchoolID, "shared": true}).
		Order("updated_at DESC").Find(&plans).Error
	return plans, err
}

func (s *LessonPlanService) SetShared(ctx context.Context, userID, id string, shared bool) (*models.LessonPlan, error) {
	plan, err := s.own(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(plan).Update("shared", shared).Error; err != nil {
		return nil, err
	}
	plan.Shared = shared
	return plan, nil
}

// AddAttachment uploads a file and appends its URL to the plan.
func (s *LessonPlanService) AddAttachment(ctx context.Context, userID, id, filename string, data []byte) (*models.LessonPlan, error) {
	plan, err := s.own(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !utils.IsValidFileExtension(filename, strings.Split(s.cfg.AllowedExtensions, ",")) {
		return nil, badRequest("File type is not allowed")
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, badRequest(fmt.Sprintf("File is larger than %d MB", s.cfg.MaxFileSize/(1024*1024)))
	}

	ext := storage.Extension(filename)
	url, err := s.store.Put(ctx, storage.ObjectKey("lesson-plans", plan.TeacherID, ext, s.now()), storage.ContentType(ext), data)
	if err != nil {
		return nil, err
	}
	plan.FileURLs = append(plan.FileURLs, url)
	if err := s.db.WithContext(ctx).Model(plan).Update("file_urls", plan.FileURLs).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

// countCreated is the number of plans a teacher created in [from, to).
func countCreated(db *gorm.DB, teacherID string, from, to time.Time) (int64, error) {
	var n int64
	err := db.Model(&models.LessonPlan{}).
		Where("teacher_id = ? AND created_at >= ? AND created_at < ?", teacherID, from, to).
		Count(&n).Error
	return n, err
}
