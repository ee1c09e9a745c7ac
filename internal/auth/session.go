// internal/auth/session.go
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name for keyring storage
	KeyringService = "linkmeta"
	// FallbackDir is the directory for file-based session storage (when keyring fails)
	FallbackDir = ".linkmeta/sessions"

	manifestKey = "_manifest"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is a saved cookie jar for one site. Fetches to Domain or any of
// its subdomains carry these cookies and headers.
type Session struct {
	Name      string            `json:"name"`
	Domain    string            `json:"domain"`
	Cookies   []Cookie          `json:"cookies"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// Expired reports whether the session has passed its expiry
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Matches reports whether host is the session domain or a subdomain of it
func (s *Session) Matches(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain := strings.ToLower(strings.TrimPrefix(s.Domain, "."))
	if domain == "" || host == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// DomainOf returns the lowercase hostname of a URL, or the input when it has no scheme
func DomainOf(raw string) string {
	if !strings.Contains(raw, "://") {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Store persists sessions in the OS keyring, or as JSON files under Dir when
// no keyring is available (Codespaces, CI, containers).
type Store struct {
	Dir      string
	useFiles bool
	mu       sync.Mutex
}

// NewStore checks the keyring once and falls back to files in dir.
// An empty dir means ~/.linkmeta/sessions.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, FallbackDir)
	}
	return &Store{Dir: dir, useFiles: useFileBasedStorage()}, nil
}

// NewFileStore always stores sessions as files in dir
func NewFileStore(dir string) *Store {
	return &Store{Dir: dir, useFiles: true}
}

// useFileBasedStorage checks whether the keyring is usable
func useFileBasedStorage() bool {
	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" {
		return true
	}

	testKey := "_test_keyring_access_"
	if err := keyring.Set(KeyringService, testKey, "test"); err != nil {
		log.Debug().Err(err).Msg("Keyring unavailable, using file-based sessions")
		return true
	}
	_ = keyring.Delete(KeyringService, testKey)
	return false
}

func (s *Store) path(name string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, name+".json"), nil
}

// Save stores a session and records it in the manifest
func (s *Store) Save(session *Session) error {
	if session.Name == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.useFiles {
		path, err := s.path(session.Name)
		if err != nil {
			return fmt.Errorf("failed to get session path: %w", err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("failed to save session file: %w", err)
		}
		return nil
	}

	if err := keyring.Set(KeyringService, session.Name, string(data)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return s.updateManifest(session.Name, true)
}

// Load returns a stored session. Expired sessions return ErrSessionExpired.
func (s *Store) Load(name string) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("session name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(name)
}

func (s *Store) load(name string) (*Session, error) {
	var data string
	if s.useFiles {
		path, err := s.path(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get session path: %w", err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
			}
			return nil, fmt.Errorf("failed to load session file: %w", err)
		}
		data = string(raw)
	} else {
		v, err := keyring.Get(KeyringService, name)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
			}
			return nil, fmt.Errorf("failed to load from keyring: %w", err)
		}
		data = v
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}
	if session.Expired() {
		return &session, fmt.Errorf("%w: %s", ErrSessionExpired, name)
	}
	return &session, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.useFiles {
		path, err := s.path(name)
		if err != nil {
			return fmt.Errorf("failed to get session path: %w", err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete session file: %w", err)
		}
		return nil
	}

	if err := keyring.Delete(KeyringService, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return s.updateManifest(name, false)
}

// List returns stored session names in sorted order
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *Store) list() ([]string, error) {
	if s.useFiles {
		entries, err := os.ReadDir(s.Dir)
		if err != nil {
			if os.IsNotExist(err) {
				return []string{}, nil
			}
			return nil, err
		}

		sessions := []string{}
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
				sessions = append(sessions, strings.TrimSuffix(entry.Name(), ".json"))
			}
		}
		sort.Strings(sessions)
		return sessions, nil
	}

	manifest, err := keyring.Get(KeyringService, manifestKey)
	if err != nil {
		return []string{}, nil
	}
	var sessions []string
	if err := json.Unmarshal([]byte(manifest), &sessions); err != nil {
		return nil, fmt.Errorf("failed to deserialize manifest: %w", err)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// updateManifest adds or removes a name in the keyring manifest (lock held)
func (s *Store) updateManifest(name string, add bool) error {
	sessions, _ := s.list()

	kept := make([]string, 0, len(sessions)+1)
	for _, existing := range sessions {
		if existing != name {
			kept = append(kept, existing)
		}
	}
	if add {
		kept = append(kept, name)
	}

	data, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	return keyring.Set(KeyringService, manifestKey, string(data))
}

// ForURL returns the first valid session whose domain covers the URL's host,
// or nil when there is none. The most specific domain wins.
func (s *Store) ForURL(rawURL string) (*Session, error) {
	host := DomainOf(rawURL)
	if host == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.list()
	if err != nil {
		return nil, err
	}

	var best *Session
	for _, name := range names {
		session, err := s.load(name)
		if err != nil {
			if !errors.Is(err, ErrSessionExpired) {
				log.Debug().Err(err).Str("session", name).Msg("Skipping unreadable session")
			}
			continue
		}
		if !session.Matches(host) {
			continue
		}
		if best == nil || len(session.Domain) > len(best.Domain) {
			best = session
		}
	}
	return best, nil
}
