package controllers

import (
	"time"

	"schoolpulse_go/middleware"
	"schoolpulse_go/services"
	"schoolpulse_go/utils"

	"github.com/gofiber/fiber/v2"
)

type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

// Register creates a principal account and school, then asks for email verification.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	user, err := ac.auth.Register(c.UserContext(), req)
	if err != nil {
		return failAuth(c, err, utils.FlowRegister)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  utils.LoginNotice("verification-sent"),
		"user":     utils.ToUserDTO(user),
		"redirect": utils.PathLoginVerification,
	})
}

// Login authenticates a user and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req services.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	result, err := ac.auth.Login(c.UserContext(), req)
	if err != nil {
		if utils.AuthCode(err) == utils.CodeRoleMismatch {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":    utils.RoleMismatchMessage(req.Role),
				"code":     utils.CodeRoleMismatch,
				"redirect": utils.PathLogin,
			})
		}
		return failAuth(c, err, utils.FlowLogin)
	}

	token, err := middleware.GenerateToken(result.User)
	if err != nil {
		return fail(c, err, "login")
	}
	c.Locals("user", result.User)
	middleware.LogActivity(c, "LOGIN", "auth", result.User.ID, nil)

	return c.JSON(fiber.Map{
		"message":        "Login successful",
		"token":          token,
		"user":           utils.ToUserDTO(result.User),
		"email_verified": result.EmailVerified,
		"redirect":       result.Redirect,
	})
}

// Logout revokes the presented token.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}
	token, _ := c.Locals("token").(string)
	expires := time.Now()
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if err := ac.auth.Logout(c.UserContext(), token, expires); err != nil {
		return fail(c, err, "logout")
	}
	middleware.LogActivity(c, "LOGOUT", "auth", claims.UserID, nil)
	return c.JSON(fiber.Map{"message": "Logged out successfully", "redirect": utils.PathLogin})
}

func (ac *AuthController) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	if err := ac.auth.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return failAuth(c, err, utils.FlowPasswordReset)
	}
	return c.JSON(fiber.Map{"message": "Password reset email sent. Please check your inbox."})
}

func (ac *AuthController) ResetPassword(c *fiber.Ctx) error {
	var req services.ResetPasswordInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	if err := ac.auth.ResetPassword(c.UserContext(), req); err != nil {
		return failAuth(c, err, utils.FlowResetConfirm)
	}
	return c.JSON(fiber.Map{"message": "Password updated. You can now sign in.", "redirect": utils.PathLogin})
}

func (ac *AuthController) VerifyEmail(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	user, err := ac.auth.VerifyEmail(c.UserContext(), req.Token)
	if err != nil {
		return failAuth(c, err, utils.FlowVerifyConfirm)
	}
	return c.JSON(fiber.Map{
		"message":  "Email verified successfully",
		"user":     utils.ToUserDTO(user),
		"redirect": utils.PathLogin,
	})
}

// ResendVerification emails a fresh verification link to the signed in user.
func (ac *AuthController) ResendVerification(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return c.JSON(fiber.Map{"message": "Email already verified", "redirect": utils.DashboardPath(user.Role)})
	}
	if err := ac.auth.SendVerificationEmail(c.UserContext(), user); err != nil {
		return failAuth(c, err, utils.FlowVerification)
	}
	return c.JSON(fiber.Map{"message": "Verification email sent"})
}

// VerificationStatus re-reads the account so a client polling after clicking the link sees the change.
func (ac *AuthController) VerificationStatus(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	state, err := ac.auth.CheckEmailVerification(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "User")
	}
	return c.JSON(fiber.Map{"email_verified": state.EmailVerified, "redirect": state.Redirect})
}

// Session returns the dashboard guard decision for ?role=.
func (ac *AuthController) Session(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	state, err := ac.auth.Session(c.UserContext(), user.ID, c.Query("role"))
	if err != nil {
		return fail(c, err, "User")
	}
	return c.JSON(fiber.Map{
		"user":           utils.ToUserDTO(state.User),
		"email_verified": state.EmailVerified,
		"allowed":        state.Allowed,
		"redirect":       state.Redirect,
	})
}

func (ac *AuthController) Me(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": utils.ToUserDTO(user)})
}

func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.ChangePasswordInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	if err := ac.auth.ChangePassword(c.UserContext(), user.ID, req); err != nil {
		return failAuth(c, err, utils.FlowLogin)
	}
	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}
