package services

import (
	"context"
	"strings"
	"time"

	"schoolpulse_go/models"
	"schoolpulse_go/utils"

	"gorm.io/gorm"
)

// SchoolService edits the principal's school and its curated lists.
type SchoolService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSchoolService(db *gorm.DB) *SchoolService {
	return &SchoolService{db: db, now: time.Now}
}

// LineLinkCodeTTL bounds how long a LINE link code can be redeemed.
const LineLinkCodeTTL = 30 * time.Minute

// SettingsView is what the settings page shows.
type SettingsView struct {
	SchoolID       string            `json:"school_id"`
	SchoolName     string            `json:"school_name"`
	Address        string            `json:"address"`
	Departments    models.StringList `json:"departments"`
	GradeLevels    models.StringList `json:"grade_levels"`
	Subjects       models.StringList `json:"subjects"`
	PrincipalName  string            `json:"principal_name"`
	PrincipalEmail string            `json:"principal_email"`
	PrincipalPhone string            `json:"principal_phone"`
	LineLinked     bool              `json:"line_linked"`
}

type SettingsInput struct {
	SchoolName    string   `json:"school_name" validate:"required,min=2" msg:"School name must be at least 2 characters"`
	Address       string   `json:"address"`
	PrincipalName string   `json:"principal_name" validate:"required,min=2" msg:"Name must be at least 2 characters"`
	Phone         string   `json:"phone"`
	Departments   []string `json:"departments"`
	GradeLevels   []string `json:"grade_levels"`
	Subjects      []string `json:"subjects"`
}

// Setting lists that can be edited one value at a time.
const (
	ListDepartments = "departments"
	ListSubjects    = "subjects"
	ListGradeLevels = "grade-levels"
)

func (s *SchoolService) load(ctx context.Context, principal *models.User) (*models.School, *models.Principal, error) {
	var school models.School
	if err := s.db.WithContext(ctx).First(&school, "id = ?", principal.SchoolID).Error; err != nil {
		return nil, nil, notFound(err)
	}
	var profile models.Principal
	if err := s.db.WithContext(ctx).First(&profile, "user_id = ?", principal.ID).Error; err != nil {
		return nil, nil, notFound(err)
	}
	return &school, &profile, nil
}

func (s *SchoolService) GetSettings(ctx context.Context, principal *models.User) (*SettingsView, error) {
	school, profile, err := s.load(ctx, principal)
	if err != nil {
		return nil, err
	}
	return settingsView(school, profile, principal), nil
}

func settingsView(school *models.School, profile *models.Principal, principal *models.User) *SettingsView {
	return &SettingsView{
		SchoolID:       school.ID,
		SchoolName:     school.Name,
		Address:        school.Address,
		Departments:    nonNil(school.Settings.Departments),
		GradeLevels:    nonNil(school.Settings.GradeLevels),
		Subjects:       nonNil(school.Settings.Subjects),
		PrincipalName:  profile.Name,
		PrincipalEmail: principal.Email,
		PrincipalPhone: profile.Phone,
		LineLinked:     school.LineGroupID != "",
	}
}

func nonNil(l models.StringList) models.StringList {
	if l == nil {
		return models.StringList{}
	}
	return l
}

// UpdateSettings saves the school and the principal profile together.
func (s *SchoolService) UpdateSettings(ctx context.Context, principal *models.User, in SettingsInput) (*SettingsView, error) {
	in.SchoolName = strings.TrimSpace(in.SchoolName)
	in.PrincipalName = strings.TrimSpace(in.PrincipalName)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	school, profile, err := s.load(ctx, principal)
	if err != nil {
		return nil, err
	}

	school.Name = in.SchoolName
	school.Address = strings.TrimSpace(in.Address)
	if in.Departments != nil {
		school.Settings.Departments = cleanList(in.Departments)
	}
	if in.GradeLevels != nil {
		school.Settings.GradeLevels = cleanList(in.GradeLevels)
	}
	if in.Subjects != nil {
		school.Settings.Subjects = cleanList(in.Subjects)
	}
	profile.Name = in.PrincipalName
	profile.Phone = strings.TrimSpace(in.Phone)
	profile.SchoolName = in.SchoolName

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(school).Select("name", "address", "settings_departments", "settings_grade_levels", "settings_subjects").
			Updates(school).Error; err != nil {
			return err
		}
		return tx.Model(profile).Select("name", "phone", "school_name").Updates(profile).Error
	})
	if err != nil {
		return nil, err
	}
	return settingsView(school, profile, principal), nil
}

// AddListValue appends value to one of the school's lists. Blank and
// duplicate values leave the list unchanged.
func (s *SchoolService) AddListValue(ctx context.Context, principal *models.User, list, value string) (models.StringList, error) {
	return s.editList(ctx, principal, list, func(l []string) ([]string, bool) {
		return utils.AppendUnique(l, value)
	})
}

// RemoveListValue drops value from one of the school's lists.
func (s *SchoolService) RemoveListValue(ctx context.Context, principal *models.User, list, value string) (models.StringList, error) {
	return s.editList(ctx, principal, list, func(l []string) ([]string, bool) {
		return utils.RemoveValue(l, value)
	})
}

func (s *SchoolService) editList(ctx context.Context, principal *models.User, list string, edit func([]string) ([]string, bool)) (models.StringList, error) {
	column, ok := map[string]string{
		ListDepartments: "settings_departments",
		ListSubjects:    "settings_subjects",
		ListGradeLevels: "settings_grade_levels",
	}[list]
	if !ok {
		return nil, ErrNotFound
	}

	var out models.StringList
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var school models.School
		if err := tx.First(&school, "id = ?", principal.SchoolID).Error; err != nil {
			return notFound(err)
		}
		target := map[string]*models.StringList{
			ListDepartments: &school.Settings.Departments,
			ListSubjects:    &school.Settings.Subjects,
			ListGradeLevels: &school.Settings.GradeLevels,
		}[list]

		next, changed := edit(*target)
		out = models.StringList(next)
		if !changed {
			out = nonNil(*target)
			return nil
		}
		return tx.Model(&school).Update(column, out).Error
	})
	return out, err
}

// LineLinkCode is shown once to the principal, who posts Command in the
// LINE group to link it.
type LineLinkCode struct {
	Code      string    `json:"code"`
	Command   string    `json:"command"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateLineLinkCode issues a one-time code for linking a LINE group. A new
// code replaces any unredeemed one.
func (s *SchoolService) CreateLineLinkCode(ctx context.Context, principal *models.User) (*LineLinkCode, error) {
	code, err := utils.GenerateRandomString(12)
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(LineLinkCodeTTL)
	res := s.db.WithContext(ctx).Model(&models.School{}).Where("id = ?", principal.SchoolID).
		Updates(map[string]interface{}{
			"line_link_code_hash":    utils.HashToken(code),
			"line_link_code_expires": expires,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &LineLinkCode{Code: code, Command: "link " + code, ExpiresAt: expires}, nil
}

// LinkLineGroup redeems a link code posted by lineUserID in groupID. The
// code is consumed, so a school's link only changes with a fresh code.
func (s *SchoolService) LinkLineGroup(ctx context.Context, code, groupID, lineUserID string) (*models.School, error) {
	code = strings.TrimSpace(code)
	if code == "" || groupID == "" || lineUserID == "" {
		return nil, ErrNotFound
	}
	hash := utils.HashToken(code)

	var school models.School
	err := s.db.WithContext(ctx).
		Where("line_link_code_hash = ? AND line_link_code_expires > ?", hash, s.now()).
		First(&school).Error
	if err != nil {
		return nil, notFound(err)
	}

	res := s.db.WithContext(ctx).Model(&models.School{}).
		Where("id = ? AND line_link_code_hash = ?", school.ID, hash).
		Updates(map[string]interface{}{
			"line_group_id":          groupID,
			"line_linked_by":         lineUserID,
			"line_link_code_hash":    "",
			"line_link_code_expires": nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		// redeemed concurrently
		return nil, ErrNotFound
	}
	school.LineGroupID = groupID
	school.LineLinkedBy = lineUserID
	return &school, nil
}

// UnlinkLineGroup lets the LINE user who linked groupID detach it.
func (s *SchoolService) UnlinkLineGroup(ctx context.Context, groupID, lineUserID string) error {
	var school models.School
	if err := s.db.WithContext(ctx).First(&school, "line_group_id = ?", groupID).Error; err != nil {
		return notFound(err)
	}
	if lineUserID == "" || school.LineLinkedBy != lineUserID {
		return ErrForbidden
	}
	return clearLine(s.db.WithContext(ctx).Where("id = ?", school.ID))
}

// ForgetLineGroup clears groupID after the bot has been removed from it.
func (s *SchoolService) ForgetLineGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return nil
	}
	return clearLine(s.db.WithContext(ctx).Where("line_group_id = ?", groupID))
}

// UnlinkSchoolLine detaches whatever group the principal's school is linked to.
func (s *SchoolService) UnlinkSchoolLine(ctx context.Context, principal *models.User) error {
	return clearLine(s.db.WithContext(ctx).Where("id = ?", principal.SchoolID))
}

func clearLine(scope *gorm.DB) error {
	return scope.Model(&models.School{}).Updates(map[string]interface{}{
		"line_group_id":  "",
		"line_linked_by": "",
	}).Error
}
