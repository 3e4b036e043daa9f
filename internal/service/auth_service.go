package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperrors "focusfriends/backend/internal/errors"
	"focusfriends/backend/internal/logging"
	"focusfriends/backend/internal/model"
	"focusfriends/backend/internal/repository"
)

type AuthService struct {
	userRepo    *repository.UserRepository
	profileRepo *repository.ProfileRepository
	prefsRepo   *repository.PreferenceRepository
	jwtSecret   []byte
	tokenTTL    time.Duration
	defaultDur  time.Duration
}

func NewAuthService(
	userRepo *repository.UserRepository,
	profileRepo *repository.ProfileRepository,
	prefsRepo *repository.PreferenceRepository,
	jwtSecret string,
	tokenTTL time.Duration,
	defaultDuration time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		prefsRepo:   prefsRepo,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		defaultDur:  defaultDuration,
	}
}

type AuthResult struct {
	Token   string        `json:"token"`
	User    model.User    `json:"user"`
	Profile model.Profile `json:"profile"`
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

func (s *AuthService) Register(ctx context.Context, email, username, password string) (*AuthResult, *apperrors.APIError) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedEmail == "" {
		return nil, apperrors.BadRequest("invalid_email", "email is required")
	}
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 3 || n > 32 {
		return nil, apperrors.BadRequest("invalid_username", "username must be 3 to 32 characters")
	}
	if len(password) < 6 {
		return nil, apperrors.BadRequest("invalid_password", "password must be at least 6 characters")
	}

	_, err := s.userRepo.GetByEmail(ctx, normalizedEmail)
	if err == nil {
		return nil, apperrors.Conflict("email_exists", "email already registered", nil)
	}
	if err != repository.ErrNotFound {
		return nil, s.backendError(ctx, err, "failed to query user")
	}

	passwordHashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal("failed to secure password")
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        normalizedEmail,
		PasswordHash: string(passwordHashBytes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := model.Profile{
		ID:            user.ID,
		Username:      username,
		CurrentStatus: string(model.PresenceIdle),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.userRepo.CreateWithProfile(ctx, &user, &profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			if strings.Contains(err.Error(), "username") {
				return nil, apperrors.Conflict("username_taken", "username already taken", nil)
			}
			return nil, apperrors.Conflict("email_exists", "email already registered", nil)
		}
		return nil, s.backendError(ctx, err, "failed to create user")
	}

	durationSeconds := int(s.defaultDur / time.Second)
	if durationSeconds <= 0 {
		durationSeconds = model.DefaultFocusDurationSeconds
	}
	prefs := model.TimerPreferences{
		UserID:          user.ID,
		DurationSeconds: durationSeconds,
		RecentSubjects:  append([]string(nil), model.DefaultRecentSubjects...),
		UpdatedAt:       now,
	}
	if err := s.prefsRepo.Upsert(ctx, &prefs); err != nil {
		return nil, s.backendError(ctx, err, "failed to initialize user state")
	}

	token, apiErr := s.issueToken(user)
	if apiErr != nil {
		return nil, apiErr
	}

	user.PasswordHash = ""
	return &AuthResult{
		Token:   token,
		User:    user,
		Profile: profile,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, *apperrors.APIError) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedEmail == "" || password == "" {
		return nil, apperrors.BadRequest("invalid_credentials", "email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, normalizedEmail)
	if err == repository.ErrNotFound {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to query user")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	profile, err := s.profileRepo.GetByID(ctx, user.ID)
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to load profile")
	}

	token, apiErr := s.issueToken(*user)
	if apiErr != nil {
		return nil, apiErr
	}

	user.PasswordHash = ""
	return &AuthResult{
		Token:   token,
		User:    *user,
		Profile: *profile,
	}, nil
}

type MeView struct {
	User    model.User    `json:"user"`
	Profile model.Profile `json:"profile"`
}

func (s *AuthService) Me(ctx context.Context, userID string) (*MeView, *apperrors.APIError) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err == repository.ErrNotFound {
		return nil, apperrors.Unauthorized("account no longer exists")
	}
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to query user")
	}
	profile, err := s.profileRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to load profile")
	}

	user.PasswordHash = ""
	return &MeView{User: *user, Profile: *profile}, nil
}

func (s *AuthService) ParseToken(tokenString string) (string, *apperrors.APIError) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", apperrors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", apperrors.Unauthorized("invalid token")
	}

	if claims.Subject == "" {
		return "", apperrors.Unauthorized("invalid token subject")
	}

	return claims.Subject, nil
}

func (s *AuthService) issueToken(user model.User) (string, *apperrors.APIError) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", apperrors.Internal("failed to sign token")
	}
	return signed, nil
}

// backendError maps a storage outage to 503 and anything else to 500.
func (s *AuthService) backendError(ctx context.Context, err error, message string) *apperrors.APIError {
	if IsUnavailable(err) {
		logging.FromContext(ctx).Warn("auth backend unavailable", zap.Error(err))
		return apperrors.ServiceUnavailable("authentication service is unavailable, please try again")
	}
	logging.FromContext(ctx).Error(message, zap.Error(err))
	return apperrors.Internal(message)
}

var unavailableMarkers = []string{
	"database is locked",
	"connection refused",
	"unable to open database",
	"sql: database is closed",
	"disk i/o error",
}

// IsUnavailable reports whether err means the backend could not be reached
// rather than that the request was wrong.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, marker := range unavailableMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
