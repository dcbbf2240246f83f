// Package auth owns credentials and server-side sessions. A session is an
// opaque random token stored on the user's row together with its expiry;
// each user holds at most one session at a time.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"student-records-api/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultSessionTTL is the lifetime of a session issued by Login.
const DefaultSessionTTL = 24 * time.Hour

var (
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("username and password are required")
)

// now is a package-level time source to allow testing.
var now = time.Now

// Session is the result of a successful login.
type Session struct {
	Token     string
	UserID    uint
	Username  string
	ExpiresAt time.Time
}

// SessionValidator resolves a token to its user. It is all the gateway
// middleware needs from the Store.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (models.User, bool, error)
}

// Options configures a Store.
type Options struct {
	SessionTTL time.Duration
	BcryptCost int
}

// Store keeps users and their sessions in the database.
type Store struct {
	db   *gorm.DB
	opts Options
}

// NewStore returns a Store over db. Zero options take their defaults.
func NewStore(db *gorm.DB, opts Options) *Store {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	return &Store{db: db, opts: opts}
}

// Register creates a user with a bcrypt-hashed password.
func (s *Store) Register(ctx context.Context, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.User{}, ErrInvalidInput
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return models.User{}, fmt.Errorf("auth: lookup %q: %w", username, err)
	}
	if n > 0 {
		return models.User{}, ErrUsernameTaken
	}

	hash, err := HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("auth: hash password: %w", err)
	}
	u := models.User{Username: username, PasswordHash: hash}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		// Lost a race with a concurrent registration of the same name.
		if isUniqueViolation(err) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, fmt.Errorf("auth: create user: %w", err)
	}
	return u, nil
}

// EnsureUser registers username unless it already exists and reports
// whether a user was created.
func (s *Store) EnsureUser(ctx context.Context, username, password string) (bool, error) {
	_, err := s.Register(ctx, username, password)
	if errors.Is(err, ErrUsernameTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Login verifies credentials and issues a fresh session, replacing any
// session the user already had.
func (s *Store) Login(ctx context.Context, username, password string) (Session, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("auth: lookup %q: %w", username, err)
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := GenerateToken()
	if err != nil {
		return Session{}, err
	}
	expires := now().Add(s.opts.SessionTTL).UTC()
	err = s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", u.ID).
		Updates(map[string]any{"session_token": token, "token_expiry": expires}).Error
	if err != nil {
		return Session{}, fmt.Errorf("auth: store session: %w", err)
	}
	return Session{Token: token, UserID: u.ID, Username: u.Username, ExpiresAt: expires}, nil
}

// Validate returns the user owning token when the session exists and has not
// expired. An expired session is cleared from the row as a side effect.
func (s *Store) Validate(ctx context.Context, token string) (models.User, bool, error) {
	if token == "" {
		return models.User{}, false, nil
	}
	var u models.User
	err := s.db.WithContext(ctx).Where("session_token = ?", token).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("auth: validate session: %w", err)
	}
	if u.TokenExpiry != nil && now().Before(*u.TokenExpiry) {
		return u, true, nil
	}

	// The token guard keeps a concurrent login's fresh session intact.
	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND session_token = ?", u.ID, token).
		Updates(map[string]any{"session_token": nil, "token_expiry": nil}).Error
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Uint("user_id", u.ID).Msg("purge expired session failed")
	}
	return models.User{}, false, nil
}

// Logout destroys the session identified by token. Unknown tokens are ignored.
func (s *Store) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("session_token = ?", token).
		Updates(map[string]any{"session_token": nil, "token_expiry": nil}).Error
	if err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ SessionValidator = (*Store)(nil)
