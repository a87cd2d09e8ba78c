// internal/state/rules.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mferraretto/chatshopee22/internal/decide"
)

// rulesVersion wraps the rule list so the file format can evolve.
const rulesVersion = 1

type rulesFile struct {
	Version int           `json:"version"`
	Rules   []decide.Rule `json:"rules"`
}

// RuleStore is a JSON-file-backed store for the reply override rules. The
// decision engine reads it through the decide.RuleSource interface; the
// control surface edits it.
type RuleStore struct {
	path string
	mu   sync.RWMutex
}

func NewRuleStore(path string) *RuleStore {
	return &RuleStore{path: path}
}

// Path returns the file path used by this store.
func (s *RuleStore) Path() string {
	return s.path
}

// Rules returns the ordered rule table. A missing or unparseable file yields
// an empty table so the engine keeps running.
func (s *RuleStore) Rules() []decide.Rule {
	rules, err := s.List()
	if err != nil {
		return nil
	}
	return rules
}

// List returns all rules. Returns an empty slice if the file doesn't exist.
func (s *RuleStore) List() ([]decide.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// Replace overwrites the whole rule table.
func (s *RuleStore) Replace(rules []decide.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(rules)
}

// Add appends a rule. Returns an error if a rule with the same id exists.
func (s *RuleStore) Add(rule decide.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range rules {
		if existing.ID != "" && existing.ID == rule.ID {
			return fmt.Errorf("rule already exists: %s", rule.ID)
		}
	}
	return s.save(append(rules, rule))
}

// Remove deletes a rule by id. Returns an error if not found.
func (s *RuleStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.load()
	if err != nil {
		return err
	}
	for i, r := range rules {
		if r.ID == id {
			return s.save(append(rules[:i], rules[i+1:]...))
		}
	}
	return fmt.Errorf("rule not found: %s", id)
}

// SetActive toggles a rule by id. Returns an error if not found.
func (s *RuleStore) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.load()
	if err != nil {
		return err
	}
	for i := range rules {
		if rules[i].ID == id {
			rules[i].Active = &active
			return s.save(rules)
		}
	}
	return fmt.Errorf("rule not found: %s", id)
}

// load accepts both the versioned wrapper and a bare rule list, and treats
// invalid JSON as an empty table.
func (s *RuleStore) load() ([]decide.Rule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []decide.Rule{}, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var wrapped rulesFile
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Rules != nil {
		return wrapped.Rules, nil
	}
	var bare []decide.Rule
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}
	return []decide.Rule{}, nil
}

func (s *RuleStore) save(rules []decide.Rule) error {
	if rules == nil {
		rules = []decide.Rule{}
	}
	data, err := json.MarshalIndent(rulesFile{Version: rulesVersion, Rules: rules}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create rules dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp rules file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp rules file: %w", err)
	}
	return nil
}
