package utils

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		flow string
		want string
	}{
		{"login user not found", NewAuthError(CodeUserNotFound), FlowLogin, "No account found with this email address."},
		{"login wrong password", NewAuthError(CodeWrongPassword), FlowLogin, "Incorrect password. Please try again."},
		{"login invalid credentials", NewAuthError(CodeInvalidLoginCredentials), FlowLogin, "Invalid email or password. Please check your credentials."},
		{"login throttled", NewAuthError(CodeTooManyRequests), FlowLogin, "Too many failed attempts. Please try again later."},
		{"login disabled", NewAuthError(CodeUserDisabled), FlowLogin, "This account has been disabled."},
		{"login unknown", errors.New("connection reset"), FlowLogin, "Login failed. Please try again."},
		{"login wrapped", fmt.Errorf("signing in: %w", NewAuthError(CodeUserDisabled)), FlowLogin, "This account has been disabled."},
		{"reset user not found", NewAuthError(CodeUserNotFound), FlowPasswordReset, "No account found with this email address."},
		{"reset throttled", NewAuthError(CodeTooManyRequests), FlowPasswordReset, "Too many reset requests. Please try again later."},
		{"reset unknown", errors.New("smtp down"), FlowPasswordReset, "Failed to send reset email. Please try again."},
		{"verification throttled", NewAuthError(CodeTooManyRequests), FlowVerification, "Too many requests. Please wait before requesting another email."},
		{"verification unknown", nil, FlowVerification, "Failed to send verification email. Please try again."},
		{"teacher duplicate", NewAuthError(CodeEmailAlreadyInUse), FlowCreateTeacher, "This email is already registered"},
		{"teacher invalid email", NewAuthError(CodeInvalidEmail), FlowCreateTeacher, "Invalid email address"},
		{"teacher weak password", NewAuthError(CodeWeakPassword), FlowCreateTeacher, "Password is too weak"},
		{"teacher unknown", errors.New("boom"), FlowCreateTeacher, "Failed to create teacher account"},
		{"register duplicate", NewAuthError(CodeEmailAlreadyInUse), FlowRegister, "This email is already registered"},
		{"reset link expired", NewAuthError(CodeInvalidActionCode), FlowResetConfirm, "This link is invalid or has expired."},
		{"unknown flow", errors.New("x"), "other", "Something went wrong. Please try again."},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AuthErrorMessage(tc.err, tc.flow))
		})
	}
}

func TestAuthCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewAuthError(CodeWeakPassword))
	assert.Equal(t, CodeWeakPassword, AuthCode(err))
	assert.Equal(t, "", AuthCode(errors.New("plain")))
}

func TestRoleMismatchMessage(t *testing.T) {
	assert.Equal(t, "This account is not a principal account. Please use the teacher login.", RoleMismatchMessage("principal"))
	assert.Equal(t, "This account is not a teacher account. Please use the principal login.", RoleMismatchMessage("teacher"))
}

func TestLoginNotice(t *testing.T) {
	assert.Contains(t, LoginNotice("verification-sent"), "Verification email sent")
	assert.Equal(t, "Please verify your email address before accessing your dashboard.", LoginNotice("verify-email"))
	assert.Equal(t, "", LoginNotice("nope"))
}

func TestGuardRedirect(t *testing.T) {
	tests := []struct {
		name     string
		subject  *GuardSubject
		expected string
		redirect string
		allowed  bool
	}{
		{"no session", nil, "principal", PathLogin, false},
		{"teacher on principal dashboard", &GuardSubject{Role: "teacher", EmailVerified: true}, "principal", PathTeacherDashboard, false},
		{"principal on teacher dashboard", &GuardSubject{Role: "principal", EmailVerified: true}, "teacher", PathPrincipalDashboard, false},
		{"unknown role", &GuardSubject{Role: "janitor"}, "teacher", PathLogin, false},
		{"unverified principal", &GuardSubject{Role: "principal"}, "principal", PathLoginVerifyEmail, false},
		{"unverified teacher", &GuardSubject{Role: "teacher"}, "teacher", PathLoginVerifyEmail, false},
		{"unverified any role", &GuardSubject{Role: "teacher"}, "", PathLoginVerifyEmail, false},
		{"verified principal", &GuardSubject{Role: "principal", EmailVerified: true}, "principal", "", true},
		{"verified teacher", &GuardSubject{Role: "teacher", EmailVerified: true}, "teacher", "", true},
		{"any role", &GuardSubject{Role: "teacher", EmailVerified: true}, "", "", true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			redirect, allowed := GuardRedirect(tc.subject, tc.expected)
			assert.Equal(t, tc.redirect, redirect)
			assert.Equal(t, tc.allowed, allowed)
		})
	}
}

type signup struct {
	Name            string   `json:"name" validate:"required,min=2" msg:"Name must be at least 2 characters"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required,min=6"`
	ConfirmPassword string   `json:"confirm_password" validate:"eqfield=Password" msg:"Passwords don't match"`
	Joined          string   `json:"joined" validate:"date"`
	Tags            []string `json:"tags" validate:"min=1"`
}

func TestValidateStruct(t *testing.T) {
	err := ValidateStruct(&signup{
		Name:            "A",
		Email:           "not-an-email",
		Password:        "123",
		ConfirmPassword: "456",
		Joined:          "01/02/2024",
	})
	ve, ok := AsValidationErrors(err)
	require.True(t, ok)
	assert.Equal(t, "Name must be at least 2 characters", ve.Fields["name"])
	assert.Equal(t, "Invalid email address", ve.Fields["email"])
	assert.Equal(t, "Must be at least 6 characters", ve.Fields["password"])
	assert.Equal(t, "Passwords don't match", ve.Fields["confirm_password"])
	assert.Equal(t, "Use the YYYY-MM-DD format", ve.Fields["joined"])
	assert.Equal(t, "Select at least 1", ve.Fields["tags"])
	assert.True(t, strings.HasPrefix(ve.Error(), "validation failed: "))

	assert.NoError(t, ValidateStruct(&signup{
		Name: "Ann", Email: "ann@example.com", Password: "secret1", ConfirmPassword: "secret1", Joined: "2024-01-02", Tags: []string{"x"},
	}))
}

func TestGenerateTempPassword(t *testing.T) {
	for i := 0; i < 20; i++ {
		p, err := GenerateTempPassword()
		require.NoError(t, err)
		require.Len(t, p, 8)
		for _, r := range p {
			assert.True(t, strings.ContainsRune(base36, r), "unexpected rune %q", r)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword("secret1", hash))
	assert.Error(t, CheckPassword("secret2", hash))
}

func TestListHelpers(t *testing.T) {
	list := []string{"Math"}
	list, added := AppendUnique(list, "  Science ")
	assert.True(t, added)
	list, added = AppendUnique(list, "Math")
	assert.False(t, added)
	_, added = AppendUnique(list, "   ")
	assert.False(t, added)
	assert.Equal(t, []string{"Math", "Science"}, list)

	list, removed := RemoveValue(list, "Math")
	assert.True(t, removed)
	assert.Equal(t, []string{"Science"}, list)
	_, removed = RemoveValue(list, "Art")
	assert.False(t, removed)

	assert.Equal(t, []string{"Math", "Physics", "Art"}, SplitList("Math; Physics,, Art ;"))
}

func TestMiscHelpers(t *testing.T) {
	assert.Equal(t, "jane@school.org", NormalizeEmail("  Jane@School.ORG "))
	assert.Equal(t, 83.3, Round1(83.333))
	assert.Equal(t, "Jane", FirstName("Jane Doe", "Teacher"))
	assert.Equal(t, "Teacher", FirstName("  ", "Teacher"))
	assert.Len(t, HashToken("abc"), 64)
	assert.True(t, IsValidFileExtension("plan.PDF", []string{"pdf", "docx"}))
	assert.False(t, IsValidFileExtension("plan", []string{"pdf"}))

	d, err := ParseOptionalDate("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", FormatOptionalDate(d))
	d, err = ParseOptionalDate("")
	require.NoError(t, err)
	assert.Nil(t, d)
	_, err = ParseOptionalDate("05/03/2024")
	assert.Error(t, err)

	s, err := GenerateRandomString(10)
	require.NoError(t, err)
	assert.Len(t, s, 10)
}
