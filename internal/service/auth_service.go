package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"picturecoupon/internal/config"
	"picturecoupon/internal/ids"
	"picturecoupon/internal/models"
	"picturecoupon/internal/repository"
	"picturecoupon/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserSuspended      = errors.New("user suspended")
	ErrEmailTaken         = errors.New("email already registered")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
)

const (
	maxFailedLogins   = 5
	failedLoginWindow = 15 * time.Minute
)

type userAccounts interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
}

type sessionStore interface {
	Create(ctx context.Context, session models.Session) error
	CountByUser(ctx context.Context, userID int64) (int, error)
	DeleteOldestSessions(ctx context.Context, userID int64, keepLatest int) error
	FindByRefreshHash(ctx context.Context, userID int64, refreshHash []byte) (models.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByDevice(ctx context.Context, userID int64, deviceID string) error
}

// AuthService signs users in. cache may be nil, which disables the
// failed-login throttle.
type AuthService struct {
	users    userAccounts
	sessions sessionStore
	cache    *redis.Client
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users userAccounts,
	sessions sessionStore,
	cache *redis.Client,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		cache:    cache,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
	DeviceID     string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" || input.Password == "" {
		return AuthResult{}, fmt.Errorf("email and password required")
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.Create(ctx, models.User{
		Email:        input.Email,
		PasswordHash: passwordHash,
		DisplayName:  input.DisplayName,
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Int64("user_id", user.ID).Msg("user registered")

	_, tokens, err := s.createSession(ctx, user, ids.New(), "New Device", "", "")
	return tokens, err
}

type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if s.failedLogins(ctx, input.Email) >= maxFailedLogins {
		return AuthResult{}, ErrTooManyAttempts
	}

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.recordFailedLogin(ctx, input.Email)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if !user.IsActive() {
		return AuthResult{}, ErrUserSuspended
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		s.recordFailedLogin(ctx, input.Email)
		return AuthResult{}, ErrInvalidCredentials
	}
	s.clearFailedLogins(ctx, input.Email)

	deviceID := input.DeviceID
	if deviceID == "" {
		deviceID = ids.New()
	}
	deviceName := input.DeviceName
	if deviceName == "" {
		deviceName = "Unknown Device"
	}

	_, tokens, err := s.createSession(ctx, user, deviceID, deviceName, input.IPAddress, input.UserAgent)
	if err != nil {
		return AuthResult{}, err
	}
	return tokens, nil
}

func failedLoginKey(email string) string {
	return "auth:failed:" + email
}

// failedLogins reads the attempt counter. Redis problems never block a login.
func (s *AuthService) failedLogins(ctx context.Context, email string) int {
	if s.cache == nil {
		return 0
	}
	count, err := s.cache.Get(ctx, failedLoginKey(email)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("read failed login counter")
	}
	return count
}

func (s *AuthService) recordFailedLogin(ctx context.Context, email string) {
	if s.cache == nil {
		return
	}
	key := failedLoginKey(email)
	pipe := s.cache.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, failedLoginWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("record failed login")
	}
}

func (s *AuthService) clearFailedLogins(ctx context.Context, email string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, failedLoginKey(email)).Err(); err != nil {
		s.log.Warn().Err(err).Msg("clear failed logins")
	}
}

func (s *AuthService) createSession(
	ctx context.Context,
	user models.User,
	deviceID string,
	deviceName string,
	ipAddress string,
	userAgent string,
) (models.Session, AuthResult, error) {
	refreshToken, refreshHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return models.Session{}, AuthResult{}, err
	}

	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		DeviceID:         deviceID,
		DeviceName:       deviceName,
		RefreshTokenHash: refreshHash,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.cfg.Security.JWTRefreshTTL),
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		session.ID,
		deviceID,
		string(user.Role),
		nil,
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return models.Session{}, AuthResult{}, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return models.Session{}, AuthResult{}, err
	}

	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("enforce session limit failed")
	}

	return session, AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		DeviceID:     deviceID,
	}, nil
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID int64) error {
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= s.cfg.Security.MaxSessions {
		return nil
	}

	return s.sessions.DeleteOldestSessions(ctx, userID, s.cfg.Security.MaxSessions)
}

type RefreshInput struct {
	UserID       int64
	RefreshToken string
	DeviceID     string
}

func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (AuthResult, error) {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if !user.IsActive() {
		return AuthResult{}, ErrUserSuspended
	}

	refreshHash := security.HashRefreshToken(input.RefreshToken)
	session, err := s.sessions.FindByRefreshHash(ctx, input.UserID, refreshHash)
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	if session.DeviceID != input.DeviceID {
		return AuthResult{}, ErrInvalidCredentials
	}

	if session.Expired(time.Now()) {
		_ = s.sessions.DeleteByID(ctx, session.ID)
		return AuthResult{}, ErrInvalidCredentials
	}

	refreshToken, newHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, err
	}

	session.RefreshTokenHash = newHash
	session.ExpiresAt = time.Now().Add(s.cfg.Security.JWTRefreshTTL)

	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, err
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		session.ID,
		session.DeviceID,
		string(user.Role),
		nil,
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		DeviceID:     session.DeviceID,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID int64, deviceID string) error {
	return s.sessions.DeleteByDevice(ctx, userID, deviceID)
}
