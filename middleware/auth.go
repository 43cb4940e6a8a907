package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"schoolpulse_go/config"
	"schoolpulse_go/database"
	"schoolpulse_go/models"
	"schoolpulse_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

var errInvalidClaims = errors.New("invalid token claims")

type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	SchoolID string `json:"school_id"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		SchoolID: user.SchoolID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(config.AppConfig.JWTExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ParseToken validates a signed token and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidClaims
	}
	return claims, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader || tokenString == "" {
		return "", false
	}
	return tokenString, true
}

// IsTokenRevoked checks the logout blacklist. Without Redis nothing is revoked.
func IsTokenRevoked(ctx context.Context, tokenString string) bool {
	rc := database.GetRedisClient()
	if rc == nil {
		return false
	}
	n, err := rc.Exists(ctx, utils.BlacklistKey(tokenString)).Result()
	return err == nil && n > 0
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":    msg,
		"redirect": utils.PathLogin,
	})
}

// JWTMiddleware validates JWT tokens
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := BearerToken(c)
		if !ok {
			if c.Get("Authorization") == "" {
				return unauthorized(c, "Missing authorization header")
			}
			return unauthorized(c, "Invalid authorization header format")
		}

		claims, err := ParseToken(tokenString)
		if err != nil {
			return unauthorized(c, "Invalid token")
		}

		if IsTokenRevoked(c.UserContext(), tokenString) {
			return unauthorized(c, "Token has been revoked")
		}

		// Verify user still exists and is active
		var user models.User
		if err := database.DB.Preload("Principal").Preload("Teacher").
			Where("id = ? AND status = ?", claims.UserID, models.StatusActive).
			First(&user).Error; err != nil {
			return unauthorized(c, "User not found or inactive")
		}

		c.Locals("user", &user)
		c.Locals("claims", claims)
		c.Locals("token", tokenString)

		return c.Next()
	}
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := GetCurrentUser(c)
		if err != nil {
			return unauthorized(c, "Missing user claims")
		}

		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":    "Insufficient permissions",
			"redirect": utils.DashboardPath(user.Role),
		})
	}
}

// RequireDashboard applies the dashboard guard for role. Refusals carry the
// page the client should navigate to.
func RequireDashboard(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var subject *utils.GuardSubject
		if user, err := GetCurrentUser(c); err == nil {
			subject = &utils.GuardSubject{Role: user.Role, EmailVerified: user.EmailVerified}
		}

		redirect, allowed := utils.GuardRedirect(subject, role)
		if allowed {
			return c.Next()
		}

		switch {
		case subject == nil:
			return unauthorized(c, "Authentication required")
		case redirect == utils.PathLoginVerifyEmail:
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":    utils.LoginNotice("verify-email"),
				"redirect": redirect,
			})
		default:
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":    utils.LoginNotice("role-mismatch"),
				"redirect": redirect,
			})
		}
	}
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok || user == nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found in context")
	}
	return user, nil
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}
