package utils

import (
	"errors"
	"strings"
)

// Authentication error codes.
const (
	CodeUserNotFound            = "auth/user-not-found"
	CodeWrongPassword           = "auth/wrong-password"
	CodeInvalidLoginCredentials = "auth/invalid-login-credentials"
	CodeTooManyRequests         = "auth/too-many-requests"
	CodeUserDisabled            = "auth/user-disabled"
	CodeEmailAlreadyInUse       = "auth/email-already-in-use"
	CodeInvalidEmail            = "auth/invalid-email"
	CodeWeakPassword            = "auth/weak-password"
	CodeInvalidActionCode       = "auth/invalid-action-code"
	CodeRoleMismatch            = "auth/role-mismatch"
)

// AuthError carries a machine readable code. Handlers turn it into a user
// facing message with AuthErrorMessage.
type AuthError struct {
	Code string
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Code }

// NewAuthError builds an AuthError for code.
func NewAuthError(code string) *AuthError { return &AuthError{Code: code} }

// AuthCode extracts the code of an AuthError in err's chain, or "".
func AuthCode(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Flows whose failures are reported to users.
const (
	FlowLogin         = "login"
	FlowPasswordReset = "password-reset"
	FlowVerification  = "verification"
	FlowRegister      = "register"
	FlowCreateTeacher = "create-teacher"
	FlowResetConfirm  = "reset-confirm"
	FlowVerifyConfirm = "verify-confirm"
)

type codeMessage struct {
	fragment string
	message  string
}

// Order matters: the first fragment contained in the error text wins.
var flowMessages = map[string][]codeMessage{
	FlowLogin: {
		{"user-not-found", "No account found with this email address."},
		{"wrong-password", "Incorrect password. Please try again."},
		{"invalid-login-credentials", "Invalid email or password. Please check your credentials."},
		{"too-many-requests", "Too many failed attempts. Please try again later."},
		{"user-disabled", "This account has been disabled."},
	},
	FlowPasswordReset: {
		{"user-not-found", "No account found with this email address."},
		{"too-many-requests", "Too many reset requests. Please try again later."},
	},
	FlowVerification: {
		{"too-many-requests", "Too many requests. Please wait before requesting another email."},
	},
	FlowRegister: {
		{"email-already-in-use", "This email is already registered"},
		{"invalid-email", "Invalid email address"},
		{"weak-password", "Password is too weak"},
	},
	FlowCreateTeacher: {
		{"email-already-in-use", "This email is already registered"},
		{"invalid-email", "Invalid email address"},
		{"weak-password", "Password is too weak"},
	},
	FlowResetConfirm: {
		{"invalid-action-code", "This link is invalid or has expired."},
		{"weak-password", "Password is too weak"},
	},
	FlowVerifyConfirm: {
		{"invalid-action-code", "This verification link is invalid or has expired."},
	},
}

var flowDefaults = map[string]string{
	FlowLogin:         "Login failed. Please try again.",
	FlowPasswordReset: "Failed to send reset email. Please try again.",
	FlowVerification:  "Failed to send verification email. Please try again.",
	FlowRegister:      "Registration failed. Please try again.",
	FlowCreateTeacher: "Failed to create teacher account",
	FlowResetConfirm:  "Failed to reset password. Please try again.",
	FlowVerifyConfirm: "Failed to verify email. Please try again.",
}

// AuthErrorMessage maps an error to the static message shown for flow by
// looking for known code fragments in the error text.
func AuthErrorMessage(err error, flow string) string {
	text := ""
	if err != nil {
		text = err.Error()
	}
	for _, cm := range flowMessages[flow] {
		if strings.Contains(text, cm.fragment) {
			return cm.message
		}
	}
	if msg, ok := flowDefaults[flow]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}

// RoleMismatchMessage is shown when an account signs in through the other role's login.
func RoleMismatchMessage(expectedRole string) string {
	if expectedRole == "principal" {
		return "This account is not a principal account. Please use the teacher login."
	}
	return "This account is not a teacher account. Please use the principal login."
}

// LoginNotice resolves the banner shown on the login page for a ?message= value.
func LoginNotice(message string) string {
	switch message {
	case "verification-sent":
		return "Verification email sent! Please check your email and verify your account before logging in."
	case "verify-email":
		return "Please verify your email address before accessing your dashboard."
	case "role-mismatch":
		return "Please use the correct login page for your account type."
	}
	return ""
}
