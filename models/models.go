package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Roles
const (
	RolePrincipal = "principal"
	RoleTeacher   = "teacher"
)

// Account statuses
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// StringList is a JSON encoded list of strings stored in a single column.
type StringList = datatypes.JSONSlice[string]

// Base model with common fields
type BaseModel struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns a UUID when the caller did not choose an ID.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// User is the account record shared by principals and teachers.
type User struct {
	BaseModel
	Email         string     `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Password      string     `json:"-" gorm:"size:255;not null"`
	Role          string     `json:"role" gorm:"size:20;not null;index"`
	SchoolID      string     `json:"school_id" gorm:"size:64;index"`
	EmailVerified bool       `json:"email_verified" gorm:"default:false"`
	LastLogin     *time.Time `json:"last_login"`
	Status        string     `json:"status" gorm:"size:20;not null;default:'active'"`
	Avatar        string     `json:"avatar" gorm:"size:500"`
	CreatedBy     string     `json:"created_by,omitempty" gorm:"size:36"`

	VerificationTokenHash string     `json:"-" gorm:"size:64;index"`
	VerificationExpiresAt *time.Time `json:"-"`
	ResetTokenHash        string     `json:"-" gorm:"size:64;index"`
	ResetExpiresAt        *time.Time `json:"-"`

	// Relationships
	Principal *Principal `json:"principal,omitempty" gorm:"foreignKey:UserID"`
	Teacher   *Teacher   `json:"teacher,omitempty" gorm:"foreignKey:UserID"`
}

// IsPrincipal reports whether the user holds the principal role.
func (u *User) IsPrincipal() bool { return u != nil && u.Role == RolePrincipal }

// IsTeacher reports whether the user holds the teacher role.
func (u *User) IsTeacher() bool { return u != nil && u.Role == RoleTeacher }

// Principal profile
type Principal struct {
	BaseModel
	UserID     string `json:"user_id" gorm:"size:36;not null;uniqueIndex"`
	Name       string `json:"name" gorm:"size:255;not null"`
	Phone      string `json:"phone" gorm:"size:50"`
	SchoolName string `json:"school_name" gorm:"size:255"`
}

// PersonalInfo of a teacher
type PersonalInfo struct {
	FullName    string     `json:"full_name" gorm:"size:255;not null"`
	Email       string     `json:"email" gorm:"size:255;index"`
	Phone       string     `json:"phone" gorm:"size:50"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Address     string     `json:"address" gorm:"size:500"`
}

// ProfessionalInfo of a teacher
type ProfessionalInfo struct {
	EmployeeID     string     `json:"employee_id" gorm:"size:100"`
	Department     string     `json:"department" gorm:"size:255;index"`
	Subjects       StringList `json:"subjects"`
	GradeLevels    StringList `json:"grade_levels"`
	JoiningDate    *time.Time `json:"joining_date"`
	Qualifications StringList `json:"qualifications"`
}

// TeacherStats are denormalised counters maintained by the services.
type TeacherStats struct {
	AttendanceRate    float64 `json:"attendance_rate" gorm:"default:0"`
	PerformanceScore  float64 `json:"performance_score" gorm:"default:0"`
	TrainingCompleted int     `json:"training_completed" gorm:"default:0"`
	BadgesEarned      int     `json:"badges_earned" gorm:"default:0"`
	Points            int     `json:"points" gorm:"default:0"`
	Ranking           *int    `json:"ranking"`
}

// Teacher profile
type Teacher struct {
	BaseModel
	UserID       string           `json:"user_id" gorm:"size:36;not null;uniqueIndex"`
	SchoolID     string           `json:"school_id" gorm:"size:64;not null;index"`
	Personal     PersonalInfo     `json:"personal_info" gorm:"embedded;embeddedPrefix:personal_"`
	Professional ProfessionalInfo `json:"professional_info" gorm:"embedded;embeddedPrefix:professional_"`
	Stats        TeacherStats     `json:"stats" gorm:"embedded;embeddedPrefix:stats_"`
	CreatedBy    string           `json:"created_by" gorm:"size:36"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// SchoolSettings holds the lists a principal curates for the school.
type SchoolSettings struct {
	Departments StringList `json:"departments"`
	GradeLevels StringList `json:"grade_levels"`
	Subjects    StringList `json:"subjects"`
}

// School is keyed by SchoolIDFor(principal user id).
type School struct {
	ID          string         `json:"id" gorm:"primaryKey;size:64"`
	Name        string         `json:"name" gorm:"size:255;not null"`
	Address     string         `json:"address" gorm:"size:500"`
	PrincipalID string         `json:"principal_id" gorm:"size:36;not null;index"`
	Settings    SchoolSettings `json:"settings" gorm:"embedded;embeddedPrefix:settings_"`
	LineGroupID string         `json:"line_group_id,omitempty" gorm:"size:100;index"`
	// LineLinkedBy is the LINE user that linked the group.
	LineLinkedBy        string     `json:"-" gorm:"size:100"`
	LineLinkCodeHash    string     `json:"-" gorm:"size:64;index"`
	LineLinkCodeExpires *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SchoolIDFor derives the school identifier owned by a principal.
func SchoolIDFor(principalUserID string) string {
	return "school_" + principalUserID
}

// Attendance statuses
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
	AttendanceHalfDay = "half-day"
)

// ValidAttendanceStatus reports whether s is a known attendance status.
func ValidAttendanceStatus(s string) bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceHalfDay:
		return true
	}
	return false
}

// AttendanceRecord is one day of attendance for a teacher. Date is YYYY-MM-DD.
type AttendanceRecord struct {
	BaseModel
	TeacherID string     `json:"teacher_id" gorm:"size:36;not null;uniqueIndex:idx_attendance_teacher_date"`
	SchoolID  string     `json:"school_id" gorm:"size:64;not null;index"`
	Date      string     `json:"date" gorm:"size:10;not null;uniqueIndex:idx_attendance_teacher_date;index"`
	CheckIn   *time.Time `json:"check_in"`
	CheckOut  *time.Time `json:"check_out"`
	Status    string     `json:"status" gorm:"size:20;not null"`
	// Late survives a later half-day status so punctuality still sees it.
	Late     bool   `json:"late" gorm:"not null;default:false"`
	Notes    string `json:"notes" gorm:"type:text"`
	MarkedBy string `json:"marked_by,omitempty" gorm:"size:36"`
}

// Training skill levels
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
)

// Training is a course offered to the teachers of a school.
type Training struct {
	BaseModel
	Title       string `json:"title" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`
	Duration    int    `json:"duration"` // hours
	Department  string `json:"department" gorm:"size:255"`
	SkillLevel  string `json:"skill_level" gorm:"size:20"`
	CreatedBy   string `json:"created_by" gorm:"size:36"`
	SchoolID    string `json:"school_id" gorm:"size:64;not null;index"`
}

// TrainingEnrollment tracks a teacher's progress through a training.
type TrainingEnrollment struct {
	BaseModel
	TeacherID      string     `json:"teacher_id" gorm:"size:36;not null;uniqueIndex:idx_enrollment_teacher_training"`
	TrainingID     string     `json:"training_id" gorm:"size:36;not null;uniqueIndex:idx_enrollment_teacher_training"`
	SchoolID       string     `json:"school_id" gorm:"size:64;index"`
	EnrolledAt     time.Time  `json:"enrolled_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Progress       int        `json:"progress" gorm:"default:0"`
	CertificateURL string     `json:"certificate_url" gorm:"size:500"`

	Training *Training `json:"training,omitempty" gorm:"foreignKey:TrainingID"`
}

// Feedback origins and types
const (
	FeedbackFromPrincipal = "principal"
	FeedbackFromTeacher   = "teacher"
	FeedbackFromStudent   = "student"

	FeedbackPerformance = "performance"
	FeedbackBehavior    = "behavior"
	FeedbackSkills      = "skills"
	FeedbackGeneral     = "general"
)

// FeedbackCategories are 1-5 sub-ratings.
type FeedbackCategories struct {
	Teaching      int `json:"teaching"`
	Communication int `json:"communication"`
	Punctuality   int `json:"punctuality"`
	Teamwork      int `json:"teamwork"`
}

// Feedback left for a teacher.
type Feedback struct {
	BaseModel
	TeacherID    string             `json:"teacher_id" gorm:"size:36;not null;index"`
	FromUserID   string             `json:"from_user_id" gorm:"size:36"`
	FromRole     string             `json:"from_role" gorm:"size:20;not null"`
	Type         string             `json:"type" gorm:"size:20;not null"`
	Rating       int                `json:"rating" gorm:"not null"`
	Comment      string             `json:"comment" gorm:"type:text"`
	Categories   FeedbackCategories `json:"categories" gorm:"embedded;embeddedPrefix:category_"`
	Acknowledged bool               `json:"acknowledged" gorm:"default:false"`
	SchoolID     string             `json:"school_id" gorm:"size:64;index"`
}

// LessonPlan authored by a teacher.
type LessonPlan struct {
	BaseModel
	TeacherID  string     `json:"teacher_id" gorm:"size:36;not null;index"`
	Title      string     `json:"title" gorm:"size:255;not null"`
	Subject    string     `json:"subject" gorm:"size:255"`
	GradeLevel string     `json:"grade_level" gorm:"size:100"`
	Duration   int        `json:"duration"` // minutes
	Objectives StringList `json:"objectives"`
	Materials  StringList `json:"materials"`
	Activities StringList `json:"activities"`
	Assessment string     `json:"assessment" gorm:"type:text"`
	FileURLs   StringList `json:"file_urls"`
	Shared     bool       `json:"shared" gorm:"default:false"`
	SchoolID   string     `json:"school_id" gorm:"size:64;index"`
}

// Badge categories
const (
	BadgeAttendance  = "attendance"
	BadgePerformance = "performance"
	BadgeTraining    = "training"
	BadgeLeadership  = "leadership"
)

// Badge is an entry of the achievement catalog.
type Badge struct {
	BaseModel
	Code        string `json:"code" gorm:"size:100;not null;uniqueIndex"`
	Name        string `json:"name" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`
	IconURL     string `json:"icon_url" gorm:"size:500"`
	Category    string `json:"category" gorm:"size:20"`
	Criteria    string `json:"criteria" gorm:"type:text"`
	Points      int    `json:"points"`
}

// TeacherBadge records an earned badge.
type TeacherBadge struct {
	BaseModel
	TeacherID string    `json:"teacher_id" gorm:"size:36;not null;uniqueIndex:idx_teacher_badge"`
	BadgeID   string    `json:"badge_id" gorm:"size:36;not null;uniqueIndex:idx_teacher_badge"`
	EarnedAt  time.Time `json:"earned_at"`
	SchoolID  string    `json:"school_id" gorm:"size:64;index"`

	Badge *Badge `json:"badge,omitempty" gorm:"foreignKey:BadgeID"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID    string     `json:"user_id" gorm:"size:36;not null;index"`
	Title     string     `json:"title" gorm:"size:255;not null"`
	Message   string     `json:"message" gorm:"type:text;not null"`
	Type      string     `json:"type" gorm:"size:20;not null"` // info, success, warning, error
	Read      bool       `json:"read" gorm:"default:false"`
	ReadAt    *time.Time `json:"read_at"`
	ActionURL string     `json:"action_url" gorm:"size:500"`
	Channels  StringList `json:"channels"`
}

// MonthlyMetrics are the inputs of a teacher's overall score.
type MonthlyMetrics struct {
	AttendanceRate     float64 `json:"attendance_rate"`
	PunctualityScore   float64 `json:"punctuality_score"`
	StudentFeedbackAvg float64 `json:"student_feedback_avg"`
	PeerFeedbackAvg    float64 `json:"peer_feedback_avg"`
	TrainingHours      float64 `json:"training_hours"`
	LessonsCompleted   int     `json:"lessons_completed"`
}

// PerformanceMetrics is a monthly snapshot per teacher.
type PerformanceMetrics struct {
	BaseModel
	TeacherID    string         `json:"teacher_id" gorm:"size:36;not null;uniqueIndex:idx_metrics_period"`
	Month        int            `json:"month" gorm:"not null;uniqueIndex:idx_metrics_period"`
	Year         int            `json:"year" gorm:"not null;uniqueIndex:idx_metrics_period"`
	Metrics      MonthlyMetrics `json:"metrics" gorm:"embedded;embeddedPrefix:metric_"`
	OverallScore float64        `json:"overall_score"`
	SchoolID     string         `json:"school_id" gorm:"size:64;index"`
}

// ActivityLog model
type ActivityLog struct {
	BaseModel
	UserID     string         `json:"user_id" gorm:"size:36;index"`
	SchoolID   string         `json:"school_id" gorm:"size:64;index"`
	Action     string         `json:"action" gorm:"size:100;not null"`
	Resource   string         `json:"resource" gorm:"size:100;not null"`
	ResourceID string         `json:"resource_id" gorm:"size:64"`
	Details    datatypes.JSON `json:"details"`
	IPAddress  string         `json:"ip_address" gorm:"size:45"`
	UserAgent  string         `json:"user_agent" gorm:"size:500"`
}

// LogArchive records an activity log archive uploaded to object storage.
type LogArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	StorageKey  string    `json:"storage_key" gorm:"size:500;not null"`
	EndDate     time.Time `json:"end_date"`
	RecordCount int       `json:"record_count"`
	FileSize    int64     `json:"file_size"`
	Status      string    `json:"status" gorm:"size:20"`
}

// All lists every model handled by AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Principal{},
		&Teacher{},
		&School{},
		&AttendanceRecord{},
		&Training{},
		&TrainingEnrollment{},
		&Feedback{},
		&LessonPlan{},
		&Badge{},
		&TeacherBadge{},
		&Notification{},
		&PerformanceMetrics{},
		&ActivityLog{},
		&LogArchive{},
	}
}
