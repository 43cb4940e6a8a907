package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"schoolpulse_go/config"
	"schoolpulse_go/models"
	"schoolpulse_go/services/email"
	"schoolpulse_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthService owns every change to a user's session state: accounts,
// passwords, verification and one-time tokens.
type AuthService struct {
	db     *gorm.DB
	redis  *redis.Client
	mailer email.Sender
	cfg    *config.Config
	now    func() time.Time
}

func NewAuthService(db *gorm.DB, rc *redis.Client, mailer email.Sender, cfg *config.Config) *AuthService {
	return &AuthService{db: db, redis: rc, mailer: mailer, cfg: cfg, now: time.Now}
}

type RegisterInput struct {
	Name            string `json:"name" validate:"required,min=2" msg:"Name must be at least 2 characters"`
	Email           string `json:"email" validate:"required,email" msg:"Invalid email address"`
	Password        string `json:"password" validate:"required,min=6" msg:"Password must be at least 6 characters"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password" msg:"Passwords don't match"`
	SchoolName      string `json:"school_name" validate:"required,min=2" msg:"School name must be at least 2 characters"`
	Phone           string `json:"phone"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email" msg:"Invalid email address"`
	Password string `json:"password" validate:"required" msg:"Password is required"`
	// Role is the login page the user came through, if any.
	Role string `json:"role" validate:"omitempty,oneof=principal teacher"`
}

type ResetPasswordInput struct {
	Token           string `json:"token" validate:"required" msg:"Reset token is required"`
	Password        string `json:"password" validate:"required,min=6" msg:"Password must be at least 6 characters"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password" msg:"Passwords don't match"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required" msg:"Current password is required"`
	NewPassword     string `json:"new_password" validate:"required,min=6" msg:"Password must be at least 6 characters"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword" msg:"Passwords don't match"`
}

// LoginResult is a successful sign in. Profile is loaded only for verified accounts.
type LoginResult struct {
	User          *models.User
	EmailVerified bool
	Redirect      string
}

// SessionState mirrors the signed in user for the client.
type SessionState struct {
	User          *models.User
	EmailVerified bool
	Allowed       bool
	Redirect      string
}

// Register creates a principal account together with its school.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = utils.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.SchoolName = strings.TrimSpace(in.SchoolName)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, in.Email); err != nil {
		return nil, err
	}

	defaults, err := config.LoadDefaults()
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hashing password")
	}

	user := &models.User{
		Email:    in.Email,
		Password: hash,
		Role:     models.RolePrincipal,
		Status:   models.StatusActive,
	}
	user.ID = uuid.NewString()
	user.SchoolID = models.SchoolIDFor(user.ID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := purgeDeletedAccount(tx, user.Email); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		principal := &models.Principal{UserID: user.ID, Name: in.Name, Phone: strings.TrimSpace(in.Phone), SchoolName: in.SchoolName}
		if err := tx.Create(principal).Error; err != nil {
			return err
		}
		user.Principal = principal
		return tx.Create(&models.School{
			ID:          user.SchoolID,
			Name:        in.SchoolName,
			PrincipalID: user.ID,
			Settings: models.SchoolSettings{
				Departments: defaults.School.Departments,
				GradeLevels: defaults.School.GradeLevels,
				Subjects:    defaults.School.Subjects,
			},
		}).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating principal account")
	}

	if err := s.SendVerificationEmail(ctx, user); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to send verification email after registration")
	}
	return user, nil
}

func (s *AuthService) ensureEmailFree(ctx context.Context, address string) error {
	if _, err := mail.ParseAddress(address); err != nil {
		return utils.NewAuthError(utils.CodeInvalidEmail)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", address).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.NewAuthError(utils.CodeEmailAlreadyInUse)
	}
	return nil
}

// purgeDeletedAccount frees an address still held by a soft-deleted account
// so the unique index accepts it again.
func purgeDeletedAccount(tx *gorm.DB, address string) error {
	return tx.Unscoped().Where("email = ? AND deleted_at IS NOT NULL", address).Delete(&models.User{}).Error
}

func attemptsKey(address string) string { return "login:attempts:" + address }

// Login checks credentials. Unknown accounts and wrong passwords are
// reported the same way.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = utils.NormalizeEmail(in.Email)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if s.lockedOut(ctx, in.Email) {
		return nil, utils.NewAuthError(utils.CodeTooManyRequests)
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", in.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordFailure(ctx, in.Email)
			return nil, utils.NewAuthError(utils.CodeInvalidLoginCredentials)
		}
		return nil, err
	}
	if err := utils.CheckPassword(in.Password, user.Password); err != nil {
		s.recordFailure(ctx, in.Email)
		return nil, utils.NewAuthError(utils.CodeInvalidLoginCredentials)
	}
	if user.Status != models.StatusActive {
		return nil, utils.NewAuthError(utils.CodeUserDisabled)
	}
	s.clearFailures(ctx, in.Email)

	if in.Role != "" && in.Role != user.Role {
		return nil, utils.NewAuthError(utils.CodeRoleMismatch)
	}

	result := &LoginResult{User: &user, EmailVerified: user.EmailVerified}
	if user.EmailVerified {
		now := s.now().UTC()
		if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
			return nil, err
		}
		loaded, err := s.loadUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		result.User = loaded
	}

	if !user.EmailVerified {
		result.Redirect = utils.PathVerifyEmail
	} else {
		result.Redirect = utils.DashboardPath(user.Role)
	}
	return result, nil
}

func (s *AuthService) lockedOut(ctx context.Context, address string) bool {
	if s.redis == nil || s.cfg.LoginMaxAttempts <= 0 {
		return false
	}
	n, err := s.redis.Get(ctx, attemptsKey(address)).Int()
	return err == nil && n >= s.cfg.LoginMaxAttempts
}

func (s *AuthService) recordFailure(ctx context.Context, address string) {
	if s.redis == nil {
		return
	}
	key := attemptsKey(address)
	pipe := s.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.cfg.LoginLockWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to record login attempt")
	}
}

func (s *AuthService) clearFailures(ctx context.Context, address string) {
	if s.redis != nil {
		s.redis.Del(ctx, attemptsKey(address))
	}
}

// Logout revokes token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string, expiresAt time.Time) error {
	if s.redis == nil {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, utils.BlacklistKey(token), "1", ttl).Err()
}

// RequestPasswordReset emails a one-time reset link.
func (s *AuthService) RequestPasswordReset(ctx context.Context, address string) error {
	address = utils.NormalizeEmail(address)
	if _, err := mail.ParseAddress(address); err != nil {
		return utils.NewAuthError(utils.CodeInvalidEmail)
	}
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", address).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewAuthError(utils.CodeUserNotFound)
		}
		return err
	}
	return s.sendResetLink(ctx, &user, email.TemplatePasswordReset, "Reset your password", nil)
}

// sendResetLink stores a fresh reset token and mails it using template.
// invite is set for new teacher accounts.
func (s *AuthService) sendResetLink(ctx context.Context, user *models.User, template, subject string, invite *email.InviteData) error {
	token, err := utils.GenerateRandomString(48)
	if err != nil {
		return err
	}
	expires := s.now().UTC().Add(s.cfg.PasswordResetTTL)
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"reset_token_hash": utils.HashToken(token),
		"reset_expires_at": expires,
	}).Error; err != nil {
		return err
	}

	link := s.cfg.FrontendBaseURL + "/reset-password?token=" + token
	name := s.displayName(ctx, user)
	msg := &email.Message{
		To:       mail.Address{Name: name, Address: user.Email},
		Subject:  subject,
		Template: template,
		Data:     email.LinkData{Name: name, Link: link, ExpiresIn: describeTTL(s.cfg.PasswordResetTTL)},
	}
	if invite != nil {
		invite.Link = link
		msg.Data = *invite
	}
	return s.mailer.Send(ctx, msg)
}

// ResetPassword consumes a reset token. Following the emailed link proves
// ownership of the address, so the email counts as verified afterwards.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if len(in.Password) < 6 && in.Password != "" {
		return utils.NewAuthError(utils.CodeWeakPassword)
	}
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("reset_token_hash = ?", utils.HashToken(in.Token)).First(&user).Error
	if err != nil || user.ResetExpiresAt == nil || s.now().After(*user.ResetExpiresAt) {
		return utils.NewAuthError(utils.CodeInvalidActionCode)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"password":         hash,
		"reset_token_hash": "",
		"reset_expires_at": nil,
		"email_verified":   true,
	}).Error
}

func cooldownKey(userID string) string { return "verify:cooldown:" + userID }

// SendVerificationEmail mails a verification link unless the address is
// already verified. Resends are throttled per user.
func (s *AuthService) SendVerificationEmail(ctx context.Context, user *models.User) error {
	var fresh models.User
	if err := s.db.WithContext(ctx).First(&fresh, "id = ?", user.ID).Error; err != nil {
		return notFound(err)
	}
	if fresh.EmailVerified {
		return nil
	}
	if !s.acquireCooldown(ctx, &fresh) {
		return utils.NewAuthError(utils.CodeTooManyRequests)
	}

	token, err := utils.GenerateRandomString(48)
	if err != nil {
		return err
	}
	expires := s.now().UTC().Add(s.cfg.VerificationTTL)
	if err := s.db.WithContext(ctx).Model(&fresh).Updates(map[string]interface{}{
		"verification_token_hash": utils.HashToken(token),
		"verification_expires_at": expires,
	}).Error; err != nil {
		return err
	}

	name := s.displayName(ctx, &fresh)
	return s.mailer.Send(ctx, &email.Message{
		To:       mail.Address{Name: name, Address: fresh.Email},
		Subject:  "Verify your email address",
		Template: email.TemplateVerifyEmail,
		Data: email.LinkData{
			Name:      name,
			Link:      s.cfg.FrontendBaseURL + "/verify-email?token=" + token,
			ExpiresIn: describeTTL(s.cfg.VerificationTTL),
		},
	})
}

// acquireCooldown uses a Redis key when available. Without Redis the last
// send time is derived from the stored token expiry.
func (s *AuthService) acquireCooldown(ctx context.Context, user *models.User) bool {
	cooldown := s.cfg.VerificationResendCooldown
	if cooldown <= 0 {
		return true
	}
	if s.redis != nil {
		ok, err := s.redis.SetNX(ctx, cooldownKey(user.ID), "1", cooldown).Result()
		if err == nil {
			return ok
		}
	}
	if user.VerificationExpiresAt == nil {
		return true
	}
	sentAt := user.VerificationExpiresAt.Add(-s.cfg.VerificationTTL)
	return !s.now().Before(sentAt.Add(cooldown))
}

// VerifyEmail consumes a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, utils.NewAuthError(utils.CodeInvalidActionCode)
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("verification_token_hash = ?", utils.HashToken(token)).First(&user).Error
	if err != nil || user.VerificationExpiresAt == nil || s.now().After(*user.VerificationExpiresAt) {
		return nil, utils.NewAuthError(utils.CodeInvalidActionCode)
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"email_verified":          true,
		"verification_token_hash": "",
		"verification_expires_at": nil,
	}).Error; err != nil {
		return nil, err
	}
	return s.loadUser(ctx, user.ID)
}

// CheckEmailVerification re-reads the account from the store.
func (s *AuthService) CheckEmailVerification(ctx context.Context, userID string) (*SessionState, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	state := &SessionState{User: user, EmailVerified: user.EmailVerified}
	if user.EmailVerified {
		state.Redirect = utils.DashboardPath(user.Role)
	} else {
		state.Redirect = utils.PathVerifyEmail
	}
	return state, nil
}

// Session returns the signed in user with the dashboard guard decision for expectedRole.
func (s *AuthService) Session(ctx context.Context, userID, expectedRole string) (*SessionState, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	state := &SessionState{User: user, EmailVerified: user.EmailVerified}
	if expectedRole == "" {
		expectedRole = user.Role
	}
	state.Redirect, state.Allowed = utils.GuardRedirect(&utils.GuardSubject{Role: user.Role, EmailVerified: user.EmailVerified}, expectedRole)
	return state, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return notFound(err)
	}
	if err := utils.CheckPassword(in.CurrentPassword, user.Password); err != nil {
		return utils.NewAuthError(utils.CodeWrongPassword)
	}
	hash, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&user).Update("password", hash).Error
}

// SetPassword is the administrative reset used by the CLI.
func (s *AuthService) SetPassword(ctx context.Context, address, password string) error {
	if len(password) < 6 {
		return utils.NewAuthError(utils.CodeWeakPassword)
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", utils.NormalizeEmail(address)).Update("password", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NewAuthError(utils.CodeUserNotFound)
	}
	return nil
}

func (s *AuthService) loadUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Principal").Preload("Teacher").First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *AuthService) displayName(ctx context.Context, user *models.User) string {
	switch {
	case user.Principal != nil && user.Principal.Name != "":
		return user.Principal.Name
	case user.Teacher != nil && user.Teacher.Personal.FullName != "":
		return user.Teacher.Personal.FullName
	}
	if loaded, err := s.loadUser(ctx, user.ID); err == nil {
		if loaded.Principal != nil && loaded.Principal.Name != "" {
			return loaded.Principal.Name
		}
		if loaded.Teacher != nil && loaded.Teacher.Personal.FullName != "" {
			return loaded.Teacher.Personal.FullName
		}
	}
	return strings.SplitN(user.Email, "@", 2)[0]
}

func describeTTL(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	}
	return plural(int(d/time.Second), "second")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
