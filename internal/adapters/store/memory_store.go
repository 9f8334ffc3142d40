package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/senders"
)

// MemoryStore keeps sender history for the life of the process
type MemoryStore struct {
	profile *senders.Profile
	mu      sync.RWMutex
	logger  *zap.Logger
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store seeded with initial, which may be nil
func NewMemoryStore(initial *senders.Profile, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		profile: initial.Clone(),
		logger:  logger,
		now:     time.Now,
	}
}

// Name identifies the store in logs and metrics
func (s *MemoryStore) Name() string {
	return "memory"
}

// Load returns a copy of the current history
func (s *MemoryStore) Load(ctx context.Context) (*senders.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Clone(), nil
}

// Commit applies observations to the history
func (s *MemoryStore) Commit(ctx context.Context, observations []senders.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profile = senders.Update(s.profile, observations, s.now())
	s.logger.Debug("Updated in-memory sender history",
		zap.Int("senders", len(s.profile.Senders)),
		zap.Int("observations", len(observations)))
	return nil
}
