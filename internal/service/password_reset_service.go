package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	"github.com/noah-isme/pre-enrollment-api/pkg/config"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type enrollmentTokenReader interface {
	FindByToken(ctx context.Context, token string) (*models.PreEnrollment, error)
}

type resetAttemptStore interface {
	GetOrCreate(ctx context.Context, token string) (*models.PasswordResetAttempt, error)
	Increment(ctx context.Context, token string, ts time.Time) error
	List(ctx context.Context) ([]models.PasswordResetAttempt, error)
}

type passwordUpdater interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// ResetPasswordRequest recovers access using an enrollment token instead of
// email. The token doubles as proof of ownership for students without a
// reachable inbox.
type ResetPasswordRequest struct {
	Token     string `json:"token" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// ResetPasswordResponse carries the generated password back to the caller.
type ResetPasswordResponse struct {
	Email             string `json:"email"`
	NewPassword       string `json:"new_password"`
	AttemptsRemaining int    `json:"attempts_remaining"`
}

// PasswordResetService resets a student's password against their enrollment
// token, with a hard cap on attempts per token.
type PasswordResetService struct {
	enrollments enrollmentTokenReader
	attempts    resetAttemptStore
	users       passwordUpdater
	audit       actionLogger
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         config.PasswordResetConfig
}

// NewPasswordResetService constructs the service.
func NewPasswordResetService(enrollments enrollmentTokenReader, attempts resetAttemptStore, users passwordUpdater, audit actionLogger, validate *validator.Validate, logger *zap.Logger, cfg config.PasswordResetConfig) *PasswordResetService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	return &PasswordResetService{
		enrollments: enrollments,
		attempts:    attempts,
		users:       users,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// Reset exchanges a valid enrollment token for a freshly generated password.
// The counter is incremented before the password is changed, so a failure
// later in the flow still consumes an attempt.
func (s *PasswordResetService) Reset(ctx context.Context, req ResetPasswordRequest) (*ResetPasswordResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}

	token := strings.ToUpper(strings.TrimSpace(req.Token))
	if !models.TokenPattern.MatchString(token) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment token format")
	}

	enrollment, err := s.enrollments.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up token")
	}

	attempt, err := s.attempts.GetOrCreate(ctx, token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reset attempts")
	}
	if attempt.Attempts >= s.cfg.MaxAttempts {
		return nil, appErrors.Clone(appErrors.ErrResetLimitReached,
			fmt.Sprintf("password reset limit of %d attempts reached for this token, contact the secretary", s.cfg.MaxAttempts))
	}

	now := time.Now().UTC()
	if err := s.attempts.Increment(ctx, token, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record reset attempt")
	}
	remaining := s.cfg.MaxAttempts - attempt.Attempts - 1

	user, err := s.users.FindByID(ctx, enrollment.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account for this token no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}

	newPassword, err := generatePassword()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash), now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.users.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions after password reset", zap.Error(err))
	}

	s.recordAudit(ctx, user.ID, token, req)

	s.logger.Info("password reset by enrollment token",
		zap.String("token", token),
		zap.Int("attempts_remaining", remaining))

	return &ResetPasswordResponse{
		Email:             user.Email,
		NewPassword:       newPassword,
		AttemptsRemaining: remaining,
	}, nil
}

// ListAttempts returns all reset attempt counters for the staff panel.
func (s *PasswordResetService) ListAttempts(ctx context.Context) ([]models.PasswordResetAttempt, error) {
	attempts, err := s.attempts.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reset attempts")
	}
	return attempts, nil
}

func (s *PasswordResetService) recordAudit(ctx context.Context, userID, token string, req ResetPasswordRequest) {
	if s.audit == nil {
		return
	}
	entry := &models.ActionLog{
		Action:    models.ActionPasswordReset,
		UserID:    &userID,
		Token:     &token,
		Details:   fmt.Sprintf("password reset using enrollment token %s", token),
		IPAddress: optional(req.IP),
		UserAgent: optional(req.UserAgent),
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record password reset audit", zap.Error(err))
	}
}

func generatePassword() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
