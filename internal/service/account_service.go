package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"supermarket/internal/models"
	"supermarket/internal/store"
	"supermarket/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration and reset
const MinPasswordLength = 8

// PasswordSpecials lists the characters that count as special in a password
const PasswordSpecials = "!@#$%^&*()_+-=[]{}|;:,.<>?/"

var emailPattern = regexp.MustCompile(`^[\w.+-]+@[\w.-]+\.\w+$`)

// SessionRevoker drops every login session of a user
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID int64) error
}

// AccountService handles registration, sign-in and user administration
type AccountService struct {
	store    *store.Store
	sessions SessionRevoker
	cost     int
	logger   *zap.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAccountService creates a new account service. sessions may be nil.
func NewAccountService(store *store.Store, sessions SessionRevoker) *AccountService {
	return &AccountService{
		store:    store,
		sessions: sessions,
		cost:     bcrypt.DefaultCost,
		logger:   util.GetLogger(),
	}
}

// UserInput carries the editable fields of an account
type UserInput struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password,omitempty"`
	Role      string `json:"role,omitempty"`
}

func (in *UserInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

func (in *UserInput) validate() error {
	if in.FirstName == "" || in.LastName == "" {
		return models.Validationf("first and last name are required")
	}
	if !emailPattern.MatchString(in.Email) {
		return models.Validationf("invalid email address %q", in.Email)
	}
	if in.Role != models.RoleAdmin && in.Role != models.RoleCustomer {
		return models.Validationf("invalid role %q", in.Role)
	}
	return nil
}

func validatePassword(password string) error {
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return models.Validationf("password must be at least %d characters long", MinPasswordLength)
	case strings.IndexFunc(password, unicode.IsUpper) < 0:
		return models.Validationf("password must contain at least one uppercase letter")
	case strings.IndexFunc(password, unicode.IsDigit) < 0:
		return models.Validationf("password must contain at least one digit")
	case !strings.ContainsAny(password, PasswordSpecials):
		return models.Validationf("password must contain at least one special character")
	}
	return nil
}

func (s *AccountService) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// burnCompare runs a bcrypt comparison against a throwaway hash so unknown emails
// take as long as wrong passwords.
func (s *AccountService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unused-Passw0rd!"), s.cost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

// Register creates a customer account. An existing email is left untouched and
// yields ErrDuplicateEmail.
func (s *AccountService) Register(ctx context.Context, firstName, lastName, email, password string) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Register")
	defer span.End()

	return s.CreateUser(ctx, &UserInput{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  password,
		Role:      models.RoleCustomer,
	})
}

// CreateUser creates an account with the given role
func (s *AccountService) CreateUser(ctx context.Context, in *UserInput) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.CreateUser")
	defer span.End()

	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User created", zap.Int64("user_id", user.ID), zap.String("role", user.Role))
	return user, nil
}

// Authenticate verifies credentials for the expected role. Unknown email, wrong
// password and wrong role all fail with the same ErrAuthFailure.
func (s *AccountService) Authenticate(ctx context.Context, email, password, expectedRole string) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Authenticate")
	defer span.End()

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		s.burnCompare(password)
		util.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, models.ErrAuthFailure
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil ||
		user.Role != expectedRole {
		util.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, models.ErrAuthFailure
	}

	util.AuthAttemptsTotal.WithLabelValues("success").Inc()
	return user, nil
}

// ResetPassword replaces the password of the account with the given email and
// signs the user out everywhere.
func (s *AccountService) ResetPassword(ctx context.Context, email, newPassword string) error {
	ctx, span := util.StartSpan(ctx, "AccountService.ResetPassword")
	defer span.End()

	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, user.Email, hash); err != nil {
		return err
	}

	s.revokeSessions(ctx, user.ID)
	s.logger.Info("Password reset", zap.Int64("user_id", user.ID))
	return nil
}

// ListUsers returns every account
func (s *AccountService) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.ListUsers")
	defer span.End()

	return s.store.ListUsers(ctx)
}

// GetUser returns an account by ID
func (s *AccountService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.GetUser")
	defer span.End()

	return s.store.GetUserByID(ctx, id)
}

// UpdateUser changes names, email and role. A non-empty password is reset too,
// in the same write.
func (s *AccountService) UpdateUser(ctx context.Context, id int64, in *UserInput) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.UpdateUser")
	defer span.End()

	var hash string
	if in.Password != "" {
		if err := validatePassword(in.Password); err != nil {
			return nil, err
		}
		var err error
		if hash, err = s.hash(in.Password); err != nil {
			return nil, err
		}
	}

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	in.normalize()
	if in.Role == "" {
		in.Role = user.Role
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	user.FirstName = in.FirstName
	user.LastName = in.LastName
	user.Email = in.Email
	user.Role = in.Role
	if err := s.store.UpdateUser(ctx, user, hash); err != nil {
		return nil, err
	}

	if hash != "" {
		s.revokeSessions(ctx, user.ID)
	}
	s.logger.Info("User updated", zap.Int64("user_id", user.ID), zap.Bool("password_reset", hash != ""))
	return user, nil
}

// DeleteUser removes an account. Users with order history cannot be deleted.
func (s *AccountService) DeleteUser(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "AccountService.DeleteUser")
	defer span.End()

	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.revokeSessions(ctx, id)
	s.logger.Info("User deleted", zap.Int64("user_id", id))
	return nil
}

// EnsureAdmin creates an administrator, or promotes and resets the password of an
// existing account with that email.
func (s *AccountService) EnsureAdmin(ctx context.Context, firstName, lastName, email, password string) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.EnsureAdmin")
	defer span.End()

	existing, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return s.CreateUser(ctx, &UserInput{
			FirstName: firstName,
			LastName:  lastName,
			Email:     email,
			Password:  password,
			Role:      models.RoleAdmin,
		})
	}
	if err != nil {
		return nil, err
	}

	return s.UpdateUser(ctx, existing.ID, &UserInput{
		FirstName: existing.FirstName,
		LastName:  existing.LastName,
		Email:     existing.Email,
		Password:  password,
		Role:      models.RoleAdmin,
	})
}

func (s *AccountService) revokeSessions(ctx context.Context, userID int64) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		s.logger.Warn("Failed to revoke sessions", zap.Int64("user_id", userID), zap.Error(err))
	}
}
