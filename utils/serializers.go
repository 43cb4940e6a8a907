package utils

import (
	"time"

	"schoolpulse_go/models"
)

// UserDTO is the public view of an account together with its role profile.
type UserDTO struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	SchoolID      string     `json:"school_id"`
	EmailVerified bool       `json:"email_verified"`
	LastLogin     *time.Time `json:"last_login"`
	Status        string     `json:"status"`
	Avatar        string     `json:"avatar,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	Name       string             `json:"name,omitempty"`
	Phone      string             `json:"phone,omitempty"`
	SchoolName string             `json:"school_name,omitempty"`
	Teacher    *TeacherProfileDTO `json:"teacher,omitempty"`
}

// TeacherProfileDTO flattens the teacher profile for clients.
type TeacherProfileDTO struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	SchoolID         string              `json:"school_id"`
	PersonalInfo     PersonalInfoDTO     `json:"personal_info"`
	ProfessionalInfo ProfessionalInfoDTO `json:"professional_info"`
	Stats            models.TeacherStats `json:"stats"`
	CreatedBy        string              `json:"created_by"`
	CreatedAt        time.Time           `json:"created_at"`
	LastLogin        *time.Time          `json:"last_login,omitempty"`
	Status           string              `json:"status,omitempty"`
	Avatar           string              `json:"avatar,omitempty"`
}

// PersonalInfoDTO renders dates as YYYY-MM-DD.
type PersonalInfoDTO struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Address     string `json:"address"`
}

// ProfessionalInfoDTO renders dates as YYYY-MM-DD.
type ProfessionalInfoDTO struct {
	EmployeeID     string   `json:"employee_id"`
	Department     string   `json:"department"`
	Subjects       []string `json:"subjects"`
	GradeLevels    []string `json:"grade_levels"`
	JoiningDate    string   `json:"joining_date,omitempty"`
	Qualifications []string `json:"qualifications"`
}

// ToUserDTO converts a user with optional preloaded profiles.
func ToUserDTO(u *models.User) UserDTO {
	dto := UserDTO{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		SchoolID:      u.SchoolID,
		EmailVerified: u.EmailVerified,
		LastLogin:     u.LastLogin,
		Status:        u.Status,
		Avatar:        u.Avatar,
		CreatedAt:     u.CreatedAt,
	}
	if u.Principal != nil {
		dto.Name = u.Principal.Name
		dto.Phone = u.Principal.Phone
		dto.SchoolName = u.Principal.SchoolName
	}
	if u.Teacher != nil {
		t := ToTeacherDTO(u.Teacher)
		dto.Name = u.Teacher.Personal.FullName
		dto.Phone = u.Teacher.Personal.Phone
		dto.Teacher = &t
	}
	return dto
}

// ToTeacherDTO converts a teacher profile; account fields are filled when User is preloaded.
func ToTeacherDTO(t *models.Teacher) TeacherProfileDTO {
	dto := TeacherProfileDTO{
		ID:       t.ID,
		UserID:   t.UserID,
		SchoolID: t.SchoolID,
		PersonalInfo: PersonalInfoDTO{
			FullName:    t.Personal.FullName,
			Email:       t.Personal.Email,
			Phone:       t.Personal.Phone,
			DateOfBirth: FormatOptionalDate(t.Personal.DateOfBirth),
			Address:     t.Personal.Address,
		},
		ProfessionalInfo: ProfessionalInfoDTO{
			EmployeeID:     t.Professional.EmployeeID,
			Department:     t.Professional.Department,
			Subjects:       nonNil(t.Professional.Subjects),
			GradeLevels:    nonNil(t.Professional.GradeLevels),
			JoiningDate:    FormatOptionalDate(t.Professional.JoiningDate),
			Qualifications: nonNil(t.Professional.Qualifications),
		},
		Stats:     t.Stats,
		CreatedBy: t.CreatedBy,
		CreatedAt: t.CreatedAt,
	}
	if t.User != nil {
		dto.LastLogin = t.User.LastLogin
		dto.Status = t.User.Status
		dto.Avatar = t.User.Avatar
	}
	return dto
}

// ToTeacherDTOs converts a slice.
func ToTeacherDTOs(teachers []models.Teacher) []TeacherProfileDTO {
	out := make([]TeacherProfileDTO, 0, len(teachers))
	for i := range teachers {
		out = append(out, ToTeacherDTO(&teachers[i]))
	}
	return out
}

// NotificationDTO is the payload pushed over websockets and returned by the API.
type NotificationDTO struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at"`
	ActionURL string     `json:"action_url,omitempty"`
	Channels  []string   `json:"channels"`
	CreatedAt time.Time  `json:"created_at"`
}

// ToNotificationDTO converts a notification.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		ActionURL: n.ActionURL,
		Channels:  nonNil(n.Channels),
		CreatedAt: n.CreatedAt,
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
