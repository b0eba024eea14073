package style

import (
	"sync"
)

// Store holds the current Config and notifies subscribers after every replacement.
type Store struct {
	mu      sync.RWMutex
	current Config
	version uint64
	subs    []func(Config)
}

// NewStore creates a store seeded with initial.
func NewStore(initial Config) *Store {
	return &Store{current: initial}
}

// Snapshot returns the current value and its version.
func (s *Store) Snapshot() (Config, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.version
}

// Get returns the current value.
func (s *Store) Get() Config {
	c, _ := s.Snapshot()
	return c
}

// Set validates and replaces the whole value, then calls subscribers outside the lock.
func (s *Store) Set(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = c
	s.version++
	subs := make([]func(Config), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(c)
	}
	return nil
}

// Subscribe registers fn to run after each Set.
func (s *Store) Subscribe(fn func(Config)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}
