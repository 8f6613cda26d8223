// Package auth registers users and manages cookie sessions on top of the
// store. Passwords are hashed with bcrypt; session ids are random UUIDs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"yatube/internal/models"
	"yatube/internal/store"
)

var (
	ErrEmailTaken    = errors.New("email already taken")
	ErrUsernameTaken = errors.New("username already taken")
	ErrInvalidLogin  = errors.New("invalid username or password")
	ErrNoSession     = errors.New("session not found")
)

type Service struct {
	Users    store.UserStore
	Sessions store.SessionStore
	Lifetime time.Duration
	Log      logrus.FieldLogger
	Now      func() time.Time
}

func New(users store.UserStore, sessions store.SessionStore, lifetime time.Duration, log logrus.FieldLogger) *Service {
	return &Service{Users: users, Sessions: sessions, Lifetime: lifetime, Log: log, Now: time.Now}
}

// ----------------------------
// Context helpers
// ----------------------------

type ctxKeyUser struct{}

func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser{}, u)
}

// UserFrom returns the authenticated user of the request, if any.
func UserFrom(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKeyUser{}).(models.User)
	return u, ok && u.ID != 0
}

func UserIDFrom(ctx context.Context) (int64, bool) {
	u, ok := UserFrom(ctx)
	return u.ID, ok
}

// ----------------------------
// Register
// ----------------------------

func (s *Service) Register(ctx context.Context, username, email, password string) (models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.Users.CreateUser(ctx, models.User{Email: email, Username: username, PasswordHash: string(hash)})
	switch {
	case errors.Is(err, store.ErrEmailConflict):
		return models.User{}, ErrEmailTaken
	case errors.Is(err, store.ErrConflict):
		return models.User{}, ErrUsernameTaken
	case err != nil:
		return models.User{}, err
	}
	s.Log.WithFields(logrus.Fields{"uid": u.ID, "username": u.Username}).Info("user registered")
	return u, nil
}

// ----------------------------
// Login
// ----------------------------

// Login checks the credentials and opens a new session. Earlier sessions of
// the user are dropped.
func (s *Service) Login(ctx context.Context, username, password string) (models.Session, error) {
	log := s.Log.WithField("username", username)

	u, err := s.Users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("login: no such user")
		return models.Session{}, ErrInvalidLogin
	}
	if err != nil {
		return models.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		log.Debug("login: bad password")
		return models.Session{}, ErrInvalidLogin
	}

	if err := s.Sessions.DeleteUserSessions(ctx, u.ID); err != nil {
		return models.Session{}, fmt.Errorf("drop old sessions: %w", err)
	}
	now := s.Now()
	sess := models.Session{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		ExpiresAt: now.Add(s.Lifetime).UTC(),
		CreatedAt: now.UTC(),
	}
	if err := s.Sessions.CreateSession(ctx, sess); err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}
	log.WithField("uid", u.ID).Info("login ok")
	return sess, nil
}

// Logout deletes the session; unknown ids are ignored.
func (s *Service) Logout(ctx context.Context, sid string) error {
	return s.Sessions.DeleteSession(ctx, sid)
}

// UserFromSession resolves a session cookie value to its user. Expired or
// unknown sessions, and sessions of deleted users, yield ErrNoSession.
func (s *Service) UserFromSession(ctx context.Context, sid string) (models.User, error) {
	if sid == "" {
		return models.User{}, ErrNoSession
	}
	sess, err := s.Sessions.GetSession(ctx, sid)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrNoSession
	}
	if err != nil {
		return models.User{}, err
	}
	if sess.Expired(s.Now()) {
		return models.User{}, ErrNoSession
	}
	u, err := s.Users.GetUser(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrNoSession
	}
	return u, err
}

// ----------------------------
// Cleanup
// ----------------------------

// RunCleanup purges expired sessions every interval until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sessions.DeleteExpiredSessions(ctx, s.Now())
			if err != nil {
				s.Log.WithError(err).Warn("session cleanup failed")
				continue
			}
			if n > 0 {
				s.Log.WithField("deleted", n).Info("expired sessions purged")
			}
		}
	}
}
