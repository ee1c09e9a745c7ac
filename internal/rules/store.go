package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var (
	ErrRuleNotFound   = errors.New("rule not found")
	ErrDuplicateRule  = errors.New("duplicate rule id")
	ErrSecondCatchAll = errors.New("catch-all rule already registered")
)

// Store is an ordered rule collection. The catch-all rule is always present
// and always listed last, whatever order rules were added in.
type Store struct {
	mu       sync.RWMutex
	rules    []*Rule
	catchAll *Rule
}

// NewStore builds a store from an explicit registration list.
// The built-in generic rule is added when the list has no catch-all.
func NewStore(list ...*Rule) (*Store, error) {
	s := &Store{}
	for _, r := range list {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	if s.catchAll == nil {
		if s.indexOf(GenericID) >= 0 {
			return nil, fmt.Errorf("%w: %s is reserved for the catch-all rule", ErrDuplicateRule, GenericID)
		}
		s.catchAll = GenericRule()
	}
	return s, nil
}

// Add registers a rule at the end of the ordered list
func (s *Store) Add(r *Rule) error {
	if r == nil {
		return fmt.Errorf("rule is nil")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(r.ID) >= 0 || (s.catchAll != nil && s.catchAll.ID == r.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
	}
	if r.IsCatchAll() {
		if s.catchAll != nil && s.catchAll.ID != r.ID {
			return fmt.Errorf("%w: %s", ErrSecondCatchAll, r.ID)
		}
		s.catchAll = r
		return nil
	}
	s.rules = append(s.rules, r)
	return nil
}

// Put replaces the rule with the same id, or adds it
func (s *Store) Put(r *Rule) error {
	if r == nil {
		return fmt.Errorf("rule is nil")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.IsCatchAll() {
		if s.catchAll != nil && s.catchAll.ID != r.ID {
			return fmt.Errorf("%w: %s", ErrSecondCatchAll, r.ID)
		}
		s.catchAll = r
		return nil
	}
	if s.catchAll != nil && s.catchAll.ID == r.ID {
		return fmt.Errorf("rule %s must keep the catch-all pattern", r.ID)
	}
	if i := s.indexOf(r.ID); i >= 0 {
		s.rules[i] = r
		return nil
	}
	s.rules = append(s.rules, r)
	return nil
}

// Remove deletes a rule by id. The catch-all rule cannot be removed.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catchAll != nil && s.catchAll.ID == id {
		return fmt.Errorf("catch-all rule %s cannot be removed", id)
	}
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	return nil
}

// Get returns a rule by id
func (s *Store) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.catchAll != nil && s.catchAll.ID == id {
		return s.catchAll, nil
	}
	if i := s.indexOf(id); i >= 0 {
		return s.rules[i], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
}

// SetEnabled toggles a rule. The stored rule is replaced by an updated
// copy, so rules already handed out by Rules or Get never change.
func (s *Store) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catchAll != nil && s.catchAll.ID == id {
		updated := *s.catchAll
		updated.Enabled = enabled
		s.catchAll = &updated
		return nil
	}
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	updated := *s.rules[i]
	updated.Enabled = enabled
	s.rules[i] = &updated
	return nil
}

// Rules returns a snapshot of the ordered list with the catch-all last
func (s *Store) Rules() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.rules)+1)
	out = append(out, s.rules...)
	if s.catchAll != nil {
		out = append(out, s.catchAll)
	}
	return out
}

// Match runs the matcher over the current snapshot
func (s *Store) Match(url string) (*Rule, error) {
	return Match(url, s.Rules())
}

// Len returns the number of rules including the catch-all
func (s *Store) Len() int {
	return len(s.Rules())
}

func (s *Store) indexOf(id string) int {
	for i, r := range s.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Decode parses a rule list. YAML is used for .yaml/.yml names, JSON otherwise.
func Decode(name string, data []byte) ([]*Rule, error) {
	var list []*Rule
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse rules yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse rules json: %w", err)
		}
	}
	return list, nil
}

// Encode serializes the rules in store order, format picked by name
func Encode(name string, list []*Rule) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return yaml.Marshal(list)
	default:
		return json.MarshalIndent(list, "", "  ")
	}
}

// LoadFile reads a rule file into a new store. A missing file yields the built-in set.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("Rules file not found, using built-in rules")
			return NewStore(Builtin()...)
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	list, err := Decode(path, data)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("path", path).Int("rules", len(list)).Msg("Rules loaded")
	return NewStore(list...)
}

// SaveFile writes the store to path
func (s *Store) SaveFile(path string) error {
	data, err := Encode(path, s.Rules())
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create rules directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}
