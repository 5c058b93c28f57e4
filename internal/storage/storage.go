package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eugenenazirov/layerconf/internal/resolver"
)

var (
	// ErrNotFound indicates no rule set is stored under the requested name.
	ErrNotFound = errors.New("rule set not found")
	// ErrInvalidName indicates the rule set name is empty or contains a slash.
	ErrInvalidName = errors.New("rule set name must be non-empty and must not contain '/'")
	// ErrNilRuleSet indicates a nil resolver was passed to SetRuleSet.
	ErrNilRuleSet = errors.New("rule set is required")
)

// Entry is a stored rule set together with its bookkeeping.
type Entry struct {
	Name      string
	Resolver  *resolver.Resolver
	UpdatedAt time.Time
}

// Storage provides access to the compiled rule sets served by the API.
type Storage interface {
	GetRuleSet(name string) (Entry, error)
	SetRuleSet(name string, rs *resolver.Resolver) error
	DeleteRuleSet(name string) error
	List() []Entry
}

// MemoryStorage keeps rule sets in-memory and guards access with a RWMutex.
// Resolvers are immutable, so entries can be handed out without copying.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]Entry
	clock   func() time.Time
}

// Option configures MemoryStorage.
type Option func(*MemoryStorage)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *MemoryStorage) {
		s.clock = clock
	}
}

// NewMemoryStorage returns an empty store.
func NewMemoryStorage(opts ...Option) *MemoryStorage {
	s := &MemoryStorage{
		entries: make(map[string]Entry),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRuleSet returns the rule set stored under name.
func (s *MemoryStorage) GetRuleSet(name string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[name]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// SetRuleSet stores rs under name, replacing any previous rule set with that
// name. Rule sets with different names are never reconciled with each other.
func (s *MemoryStorage) SetRuleSet(name string, rs *resolver.Resolver) error {
	if err := validateName(name); err != nil {
		return err
	}
	if rs == nil {
		return ErrNilRuleSet
	}

	s.mu.Lock()
	s.entries[name] = Entry{Name: name, Resolver: rs, UpdatedAt: s.clock()}
	s.mu.Unlock()

	return nil
}

// DeleteRuleSet removes the rule set stored under name.
func (s *MemoryStorage) DeleteRuleSet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; !ok {
		return ErrNotFound
	}
	delete(s.entries, name)
	return nil
}

// List returns all entries sorted by name.
func (s *MemoryStorage) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
		return ErrInvalidName
	}
	return nil
}
