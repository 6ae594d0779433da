package config

import (
	"sync"
)

// Store owns the on-disk configuration and serializes updates to it.
type Store struct {
	path string

	mu  sync.Mutex
	cfg Config
}

// Open loads the configuration at path into a store.
func Open(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: cfg}, nil
}

// NewStore wraps an in-memory configuration. An empty path disables saving.
func NewStore(path string, cfg Config) *Store {
	cfg.ApplyDefaults()
	return &Store{path: path, cfg: cfg}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Config returns a snapshot of the current configuration.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Update applies fn to the configuration and persists the result. When
// saving fails the in-memory configuration is left unchanged.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	next.General.Env = cloneEnv(s.cfg.General.Env)
	fn(&next)
	if s.path != "" {
		if err := next.Save(s.path); err != nil {
			return err
		}
	}
	s.cfg = next
	return nil
}

// SetGPU selects a GPU index; negative values clear the selection.
func (g *GeneralConfig) SetGPU(index int) {
	if index < 0 {
		g.SelectedGPU = nil
		return
	}
	g.SelectedGPU = intPtr(index)
}

func cloneEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
