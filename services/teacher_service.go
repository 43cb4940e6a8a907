package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"schoolpulse_go/config"
	"schoolpulse_go/models"
	"schoolpulse_go/services/email"
	"schoolpulse_go/services/notifications"
	"schoolpulse_go/storage"
	"schoolpulse_go/utils"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// TeacherService manages teacher accounts for principals and the teachers'
// own profile.
type TeacherService struct {
	db     *gorm.DB
	auth   *AuthService
	notify *notifications.Service
	store  storage.FileStore
	cfg    *config.Config
}

func NewTeacherService(db *gorm.DB, auth *AuthService, notify *notifications.Service, store storage.FileStore, cfg *config.Config) *TeacherService {
	return &TeacherService{db: db, auth: auth, notify: notify, store: store, cfg: cfg}
}

// TeacherInput is the principal's "add teacher" form.
type TeacherInput struct {
	FullName       string   `json:"full_name" validate:"required,min=2" msg:"Full name must be at least 2 characters"`
	Email          string   `json:"email" validate:"required,email" msg:"Invalid email address"`
	Phone          string   `json:"phone"`
	DateOfBirth    string   `json:"date_of_birth" validate:"date"`
	Address        string   `json:"address"`
	EmployeeID     string   `json:"employee_id" validate:"notblank" msg:"Employee ID is required"`
	Department     string   `json:"department" validate:"notblank" msg:"Department is required"`
	Subjects       []string `json:"subjects" validate:"min=1,dive,notblank" msg:"Select at least one subject"`
	GradeLevels    []string `json:"grade_levels" validate:"min=1,dive,notblank" msg:"Select at least one grade level"`
	JoiningDate    string   `json:"joining_date" validate:"required,date"`
	Qualifications []string `json:"qualifications"`
}

// ProfileInput is the editable part of a teacher profile. Saving it replaces
// the whole profile, so omitted fields are cleared.
type ProfileInput struct {
	FullName       string   `json:"full_name" validate:"required,min=2" msg:"Full name must be at least 2 characters"`
	Phone          string   `json:"phone"`
	DateOfBirth    string   `json:"date_of_birth" validate:"date"`
	Address        string   `json:"address"`
	EmployeeID     string   `json:"employee_id"`
	Department     string   `json:"department"`
	Subjects       []string `json:"subjects" validate:"dive,notblank" msg:"Subjects can't be blank"`
	GradeLevels    []string `json:"grade_levels" validate:"dive,notblank" msg:"Grade levels can't be blank"`
	JoiningDate    string   `json:"joining_date" validate:"date"`
	Qualifications []string `json:"qualifications"`
}

// CreatedTeacher is returned once so the principal can hand over the
// temporary password.
type CreatedTeacher struct {
	Teacher      *models.Teacher
	TempPassword string
}

type TeacherQuery struct {
	Search     string
	Department string
	Page       int
	Limit      int
}

// Create adds a teacher account to the principal's school.
func (s *TeacherService) Create(ctx context.Context, principal *models.User, in TeacherInput) (*CreatedTeacher, error) {
	in.Email = utils.NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if err := s.auth.ensureEmailFree(ctx, in.Email); err != nil {
		return nil, err
	}
	dob, _ := utils.ParseOptionalDate(in.DateOfBirth)
	joined, _ := utils.ParseOptionalDate(in.JoiningDate)

	temp, err := utils.GenerateTempPassword()
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(temp)
	if err != nil {
		return nil, errors.Wrap(err, "hashing password")
	}

	user := &models.User{
		Email:     in.Email,
		Password:  hash,
		Role:      models.RoleTeacher,
		SchoolID:  principal.SchoolID,
		Status:    models.StatusActive,
		CreatedBy: principal.ID,
	}
	user.ID = uuid.NewString()
	teacher := &models.Teacher{
		UserID:   user.ID,
		SchoolID: principal.SchoolID,
		Personal: models.PersonalInfo{
			FullName:    in.FullName,
			Email:       in.Email,
			Phone:       strings.TrimSpace(in.Phone),
			DateOfBirth: dob,
			Address:     strings.TrimSpace(in.Address),
		},
		Professional: models.ProfessionalInfo{
			EmployeeID:     strings.TrimSpace(in.EmployeeID),
			Department:     strings.TrimSpace(in.Department),
			Subjects:       cleanList(in.Subjects),
			GradeLevels:    cleanList(in.GradeLevels),
			JoiningDate:    joined,
			Qualifications: cleanList(in.Qualifications),
		},
		CreatedBy: principal.ID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := purgeDeletedAccount(tx, user.Email); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(teacher).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating teacher account")
	}
	teacher.User = user

	schoolName := s.schoolName(ctx, principal.SchoolID)
	invite := &email.InviteData{Name: in.FullName, Email: in.Email, TempPassword: temp, SchoolName: schoolName}
	if err := s.auth.sendResetLink(ctx, user, email.TemplateTeacherInvite, "Your "+schoolName+" teacher account", invite); err != nil {
		logrus.WithError(err).WithField("teacher_id", teacher.ID).Warn("Failed to send teacher invitation")
	}
	s.notify.NotifyAsync([]string{user.ID}, notifications.Notice{
		Title:     "Welcome to " + schoolName,
		Message:   "Your teacher account is ready. Complete your profile to get started.",
		Type:      notifications.TypeSuccess,
		ActionURL: "/teacher/profile",
		SchoolID:  principal.SchoolID,
	})

	return &CreatedTeacher{Teacher: teacher, TempPassword: temp}, nil
}

func (s *TeacherService) schoolName(ctx context.Context, schoolID string) string {
	var school models.School
	if err := s.db.WithContext(ctx).Select("name").First(&school, "id = ?", schoolID).Error; err != nil || school.Name == "" {
		return "your school"
	}
	return school.Name
}

func cleanList(in []string) models.StringList {
	out := models.StringList{}
	for _, v := range in {
		out, _ = utils.AppendUnique(out, v)
	}
	return out
}

// List returns a page of the school's teachers, newest first. Search
// matches name, email or department case-insensitively.
func (s *TeacherService) List(ctx context.Context, schoolID string, q TeacherQuery) ([]models.Teacher, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Teacher{}).Where("school_id = ?", schoolID)
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		like := "%" + term + "%"
		query = query.Where(
			"LOWER(personal_full_name) LIKE ? OR LOWER(personal_email) LIKE ? OR LOWER(professional_department) LIKE ?",
			like, like, like,
		)
	}
	if q.Department != "" {
		query = query.Where("professional_department = ?", q.Department)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	var teachers []models.Teacher
	err := query.Preload("User").Order("created_at DESC").
		Offset((q.Page - 1) * q.Limit).Limit(q.Limit).
		Find(&teachers).Error
	return teachers, total, err
}

// findTeacher loads a teacher of schoolID.
func findTeacher(ctx context.Context, db *gorm.DB, schoolID, id string) (*models.Teacher, error) {
	var t models.Teacher
	if err := db.WithContext(ctx).Preload("User").Where("id = ? AND school_id = ?", id, schoolID).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// teacherForUser loads the teacher profile of a signed in teacher.
func teacherForUser(ctx context.Context, db *gorm.DB, userID string) (*models.Teacher, error) {
	var t models.Teacher
	if err := db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *TeacherService) Get(ctx context.Context, schoolID, id string) (*models.Teacher, error) {
	return findTeacher(ctx, s.db, schoolID, id)
}

func checkAccountStatus(status string) error {
	if status != "" && status != models.StatusActive && status != models.StatusDisabled {
		ve := &utils.ValidationErrors{}
		ve.Add("status", "Must be one of: active disabled")
		return ve
	}
	return nil
}

// Update replaces a teacher's profile and optionally sets the account status.
// Use SetStatus to change the status alone.
func (s *TeacherService) Update(ctx context.Context, principal *models.User, id string, in ProfileInput, status string) (*models.Teacher, error) {
	if err := checkAccountStatus(status); err != nil {
		return nil, err
	}
	teacher, err := findTeacher(ctx, s.db, principal.SchoolID, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyProfile(ctx, teacher, in); err != nil {
		return nil, err
	}
	if err := s.applyStatus(ctx, teacher, status); err != nil {
		return nil, err
	}
	return teacher, nil
}

// SetStatus enables or disables a teacher account without touching the profile.
func (s *TeacherService) SetStatus(ctx context.Context, principal *models.User, id, status string) (*models.Teacher, error) {
	if status == "" {
		ve := &utils.ValidationErrors{}
		ve.Add("status", "Status is required")
		return nil, ve
	}
	if err := checkAccountStatus(status); err != nil {
		return nil, err
	}
	teacher, err := findTeacher(ctx, s.db, principal.SchoolID, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyStatus(ctx, teacher, status); err != nil {
		return nil, err
	}
	return teacher, nil
}

func (s *TeacherService) applyStatus(ctx context.Context, teacher *models.Teacher, status string) error {
	if status == "" || teacher.User == nil || teacher.User.Status == status {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(teacher.User).Update("status", status).Error; err != nil {
		return err
	}
	teacher.User.Status = status
	return nil
}

func (s *TeacherService) applyProfile(ctx context.Context, teacher *models.Teacher, in ProfileInput) error {
	in.FullName = strings.TrimSpace(in.FullName)
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}
	dob, _ := utils.ParseOptionalDate(in.DateOfBirth)
	joined, _ := utils.ParseOptionalDate(in.JoiningDate)

	teacher.Personal.FullName = in.FullName
	teacher.Personal.Phone = strings.TrimSpace(in.Phone)
	teacher.Personal.Address = strings.TrimSpace(in.Address)
	teacher.Personal.DateOfBirth = dob
	teacher.Professional.EmployeeID = strings.TrimSpace(in.EmployeeID)
	teacher.Professional.Department = strings.TrimSpace(in.Department)
	teacher.Professional.Subjects = cleanList(in.Subjects)
	teacher.Professional.GradeLevels = cleanList(in.GradeLevels)
	teacher.Professional.JoiningDate = joined
	teacher.Professional.Qualifications = cleanList(in.Qualifications)

	return s.db.WithContext(ctx).Model(teacher).Select(
		"personal_full_name", "personal_phone", "personal_address", "personal_date_of_birth",
		"professional_employee_id", "professional_department", "professional_subjects",
		"professional_grade_levels", "professional_joining_date", "professional_qualifications",
	).Updates(teacher).Error
}

// Delete soft-deletes the teacher profile and account.
func (s *TeacherService) Delete(ctx context.Context, principal *models.User, id string) error {
	teacher, err := findTeacher(ctx, s.db, principal.SchoolID, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Teacher{}, "id = ?", teacher.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", teacher.UserID).Error
	})
}

// ResendInvite emails the teacher a fresh password link.
func (s *TeacherService) ResendInvite(ctx context.Context, principal *models.User, id string) error {
	teacher, err := findTeacher(ctx, s.db, principal.SchoolID, id)
	if err != nil {
		return err
	}
	if teacher.User == nil {
		return ErrNotFound
	}
	return s.auth.sendResetLink(ctx, teacher.User, email.TemplatePasswordReset, "Set your password", nil)
}

// ImportedRow is a teacher created from a spreadsheet row.
type ImportedRow struct {
	Row          int    `json:"row"`
	TeacherID    string `json:"teacher_id"`
	Email        string `json:"email"`
	TempPassword string `json:"temp_password"`
}

// RowError explains why a spreadsheet row was skipped.
type RowError struct {
	Row     int    `json:"row"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created []ImportedRow `json:"created"`
	Errors  []RowError    `json:"errors"`
}

// ImportColumns is the expected header row of a teacher import workbook.
var ImportColumns = []string{"full_name", "email", "employee_id", "department", "subjects", "grade_levels", "joining_date", "phone"}

// Import creates one teacher per row of the workbook's first sheet.
func (s *TeacherService) Import(ctx context.Context, principal *models.User, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, badRequest("Could not read the spreadsheet")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, badRequest("The spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, "reading rows")
	}
	if len(rows) == 0 {
		return nil, badRequest("The spreadsheet is empty")
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"full_name", "email"} {
		if _, ok := col[required]; !ok {
			return nil, badRequest(fmt.Sprintf("Missing column %q. Expected: %s", required, strings.Join(ImportColumns, ", ")))
		}
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	result := &ImportResult{Created: []ImportedRow{}, Errors: []RowError{}}
	for n, row := range rows[1:] {
		line := n + 2
		in := TeacherInput{
			FullName:    cell(row, "full_name"),
			Email:       cell(row, "email"),
			EmployeeID:  cell(row, "employee_id"),
			Department:  cell(row, "department"),
			Subjects:    utils.SplitList(cell(row, "subjects")),
			GradeLevels: utils.SplitList(cell(row, "grade_levels")),
			JoiningDate: cell(row, "joining_date"),
			Phone:       cell(row, "phone"),
		}
		if in.FullName == "" && in.Email == "" {
			continue
		}
		created, err := s.Create(ctx, principal, in)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: line, Email: in.Email, Message: importErrorMessage(err)})
			continue
		}
		result.Created = append(result.Created, ImportedRow{
			Row: line, TeacherID: created.Teacher.ID, Email: in.Email, TempPassword: created.TempPassword,
		})
	}
	return result, nil
}

func importErrorMessage(err error) string {
	if ve, ok := utils.AsValidationErrors(err); ok {
		keys := make([]string, 0, len(ve.Fields))
		for k := range ve.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+ve.Fields[k])
		}
		return strings.Join(parts, "; ")
	}
	return utils.AuthErrorMessage(err, utils.FlowCreateTeacher)
}

func (s *TeacherService) GetOwnProfile(ctx context.Context, userID string) (*models.Teacher, error) {
	return teacherForUser(ctx, s.db, userID)
}

func (s *TeacherService) UpdateOwnProfile(ctx context.Context, userID string, in ProfileInput) (*models.Teacher, error) {
	teacher, err := teacherForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if err := s.applyProfile(ctx, teacher, in); err != nil {
		return nil, err
	}
	return teacher, nil
}

// UploadAvatar stores a resized picture and points the account at it.
func (s *TeacherService) UploadAvatar(ctx context.Context, user *models.User, data []byte) (string, error) {
	img, err := storage.PrepareAvatar(data)
	if err != nil {
		return "", badRequest("The file is not a supported image")
	}
	url, err := s.store.Put(ctx, storage.ObjectKey("avatars", user.ID, "jpg", s.auth.now()), "image/jpeg", img)
	if err != nil {
		return "", err
	}
	if user.Avatar != "" {
		if err := s.store.Delete(ctx, user.Avatar); err != nil {
			logrus.WithError(err).Debug("Failed to delete previous avatar")
		}
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Update("avatar", url).Error; err != nil {
		return "", err
	}
	user.Avatar = url
	return url, nil
}
