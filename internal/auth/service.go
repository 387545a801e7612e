package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"profile-service/internal/observability"
)

const (
	defaultAccessTTL       = 24 * time.Hour
	defaultKeepLoggedInTTL = 365 * 24 * time.Hour
	defaultRefreshTTL      = 90 * 24 * time.Hour
	defaultMaxAttempts     = 5
	defaultLockWindow      = 30 * time.Minute
	defaultResetTokenTTL   = time.Hour

	passwordHashCost = 12
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidAccessToken  = errors.New("invalid access token")
)

type ErrLoginLocked struct {
	Until time.Time
}

func (e ErrLoginLocked) Error() string {
	return "login temporarily locked"
}

// Store is the credential store contract the service runs against. The
// Postgres Repository implements it; tests use an in-memory fake.
type Store interface {
	Create(ctx context.Context, userID, passwordHash string) error
	GetByUserID(ctx context.Context, userID string) (Account, error)
	RecordFailedAttempt(ctx context.Context, userID string, maxAttempts int, lockWindow time.Duration, now time.Time) (ThrottleState, error)
	ResetThrottle(ctx context.Context, userID string) error
	RecordSuccess(ctx context.Context, userID string, keepLoggedIn bool, now time.Time) error
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
	SetResetToken(ctx context.Context, userID, rawToken string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, rawToken, newPasswordHash string, now time.Time) (string, error)
}

type Service struct {
	store           Store
	tokens          *TokenIssuer
	logger          *observability.Logger
	accessTTL       time.Duration
	keepLoggedInTTL time.Duration
	maxAttempts     int
	lockWindow      time.Duration
	resetTokenTTL   time.Duration

	// Injectable so lockout expiry is testable with a simulated clock.
	now func() time.Time
}

func NewService(store Store, tokens *TokenIssuer, logger *observability.Logger) *Service {
	return &Service{
		store:           store,
		tokens:          tokens,
		logger:          logger,
		accessTTL:       defaultAccessTTL,
		keepLoggedInTTL: defaultKeepLoggedInTTL,
		maxAttempts:     defaultMaxAttempts,
		lockWindow:      defaultLockWindow,
		resetTokenTTL:   defaultResetTokenTTL,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockWindow, accessTTL, keepLoggedInTTL time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockWindow > 0 {
		s.lockWindow = lockWindow
	}
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if keepLoggedInTTL > 0 {
		s.keepLoggedInTTL = keepLoggedInTTL
	}
}

// AccessTTL reports the access-token lifetime for the given tier.
func (s *Service) AccessTTL(keepLoggedIn bool) time.Duration {
	if keepLoggedIn {
		return s.keepLoggedInTTL
	}
	return s.accessTTL
}

func (s *Service) Register(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.Create(ctx, userID, string(hash))
}

// Login runs the throttle state machine around credential verification:
// an active lock rejects the attempt before the hash is checked, an expired
// lock resets the counter, a failed verify increments it (locking at the
// threshold), and a successful verify clears it.
func (s *Service) Login(ctx context.Context, userID, password string, keepLoggedIn bool) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	now := s.now()

	account, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	if account.LockUntil != nil {
		if now.Before(*account.LockUntil) {
			return Session{}, ErrLoginLocked{Until: *account.LockUntil}
		}
		// Lock has lapsed; the attempt proceeds as if fresh.
		if err := s.store.ResetThrottle(ctx, userID); err != nil {
			return Session{}, err
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		if _, regErr := s.store.RecordFailedAttempt(ctx, userID, s.maxAttempts, s.lockWindow, now); regErr != nil && !errors.Is(regErr, sql.ErrNoRows) {
			return Session{}, regErr
		}
		return Session{}, ErrInvalidCredentials
	}

	if err := s.store.RecordSuccess(ctx, userID, keepLoggedIn, now); err != nil {
		return Session{}, err
	}

	access, err := s.tokens.IssueAccess(userID, s.AccessTTL(keepLoggedIn))
	if err != nil {
		return Session{}, err
	}
	refresh, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return Session{}, err
	}

	return Session{
		AccessToken:  access,
		RefreshToken: refresh,
		Identity: Identity{
			UserID:       userID,
			KeepLoggedIn: keepLoggedIn,
			LastLogin:    &now,
		},
	}, nil
}

// Refresh mints a new access token from a refresh carrier. The refresh token
// itself is not rotated; it stays valid until its natural expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, Identity, error) {
	userID, err := s.tokens.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", Identity{}, ErrInvalidRefreshToken
	}

	account, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", Identity{}, ErrInvalidRefreshToken
		}
		return "", Identity{}, err
	}

	access, err := s.tokens.IssueAccess(userID, s.AccessTTL(account.KeepLoggedIn))
	if err != nil {
		return "", Identity{}, err
	}

	return access, account.Identity(), nil
}

// Verify resolves an access carrier to its account identity.
func (s *Service) Verify(ctx context.Context, accessToken string) (Identity, error) {
	userID, err := s.tokens.Verify(accessToken, TokenTypeAccess)
	if err != nil {
		return Identity{}, ErrInvalidAccessToken
	}

	account, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrInvalidAccessToken
		}
		return Identity{}, err
	}

	return account.Identity(), nil
}

// ForgotPassword issues a time-boxed single-use reset token when an account
// matches the email, and reports nothing either way so callers cannot probe
// which addresses exist. The raw token is returned for delivery; only its
// digest is persisted. Delivery itself is a log event, there is no mailer.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", nil
	}

	userID, err := s.store.FindUserIDByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	rawToken, err := randomToken(32)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	expiresAt := s.now().Add(s.resetTokenTTL)
	if err := s.store.SetResetToken(ctx, userID, rawToken, expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	if s.logger != nil {
		s.logger.Info("password_reset_issued", map[string]any{
			"user_id":    userID,
			"expires_at": expiresAt.Format(time.RFC3339),
		})
	}

	return rawToken, nil
}

func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrInvalidResetToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), passwordHashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	userID, err := s.store.ConsumeResetToken(ctx, rawToken, string(hash), s.now())
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("password_reset_completed", map[string]any{"user_id": userID})
	}

	return nil
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
