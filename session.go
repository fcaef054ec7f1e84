package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Cookie is one persisted browser cookie. Expires is seconds since the Unix
// epoch; 0 (unset) or -1 (what the browser reports) marks a session cookie.
// Any other past value is an expired cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// SessionCookie reports whether the cookie lives only as long as the browser.
func (c Cookie) SessionCookie() bool {
	return c.Expires == -1 || c.Expires == 0
}

// ExpiresAt converts Expires to a time. It is meaningless for session cookies.
func (c Cookie) ExpiresAt() time.Time {
	sec, frac := math.Modf(c.Expires)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Valid reports whether the cookie can still be sent at now.
func (c Cookie) Valid(now time.Time) bool {
	if c.SessionCookie() {
		return true
	}
	return c.ExpiresAt().After(now)
}

// Session is the whole persisted cookie set.
type Session struct {
	Cookies []Cookie `json:"cookies"`
}

// Usable reports whether the session may be restored: it must be non-empty
// and no cookie may be expired. One stale cookie rejects the whole set.
func (s Session) Usable(now time.Time) bool {
	if len(s.Cookies) == 0 {
		return false
	}
	for _, c := range s.Cookies {
		if !c.Valid(now) {
			return false
		}
	}
	return true
}

type SessionStore struct {
	path string
	now  func() time.Time
	log  zerolog.Logger
}

func NewSessionStore(path string, log zerolog.Logger) *SessionStore {
	return &SessionStore{
		path: path,
		now:  time.Now,
		log:  log.With().Str("component", "session").Logger(),
	}
}

// Save writes every cookie of the browser context to disk, replacing the
// previous session.
func (s *SessionStore) Save(jar CookieJar) error {
	cookies, err := jar.Cookies()
	if err != nil {
		return fmt.Errorf("failed to read browser cookies: %w", err)
	}

	data, err := json.MarshalIndent(Session{Cookies: cookies}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session %s: %w", s.path, err)
	}

	s.log.Info().Int("cookies", len(cookies)).Str("path", s.path).Msg("session saved")
	fmt.Println(T("session_saved"))
	return nil
}

// Load restores the persisted session into jar. It returns false, leaving the
// jar untouched, whenever there is nothing usable to restore.
func (s *SessionStore) Load(jar CookieJar) bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Info().Err(err).Msg("no saved session")
		fmt.Println(T("session_not_found"))
		return false
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.log.Warn().Err(err).Msg("saved session is malformed")
		fmt.Println(T("session_not_found"))
		return false
	}

	if !session.Usable(s.now()) {
		s.log.Info().Int("cookies", len(session.Cookies)).Msg("saved session is empty or expired")
		fmt.Println(T("session_expired"))
		return false
	}

	if err := jar.SetCookies(session.Cookies); err != nil {
		s.log.Warn().Err(err).Msg("failed to install saved cookies")
		fmt.Println(T("session_not_found"))
		return false
	}

	s.log.Info().Int("cookies", len(session.Cookies)).Msg("session restored")
	fmt.Println(T("session_loaded"))
	return true
}
