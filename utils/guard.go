package utils

// Client routes used in redirect hints.
const (
	PathLogin              = "/login"
	PathLoginVerifyEmail   = "/login?message=verify-email"
	PathLoginVerification  = "/login?message=verification-sent"
	PathVerifyEmail        = "/verify-email"
	PathPrincipalDashboard = "/principal/dashboard"
	PathTeacherDashboard   = "/teacher/dashboard"
)

// GuardSubject is the part of a session the dashboard guard looks at.
type GuardSubject struct {
	Role          string
	EmailVerified bool
}

// DashboardPath is the landing page for a role.
func DashboardPath(role string) string {
	switch role {
	case "principal":
		return PathPrincipalDashboard
	case "teacher":
		return PathTeacherDashboard
	}
	return PathLogin
}

// GuardRedirect decides whether subject may open a dashboard for expectedRole.
// It returns the redirect target when access is refused.
func GuardRedirect(subject *GuardSubject, expectedRole string) (string, bool) {
	if subject == nil {
		return PathLogin, false
	}
	if expectedRole != "" && subject.Role != expectedRole {
		return DashboardPath(subject.Role), false
	}
	if !subject.EmailVerified {
		return PathLoginVerifyEmail, false
	}
	return "", true
}
