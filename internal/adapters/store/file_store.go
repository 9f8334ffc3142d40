package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/senders"
)

// ErrLockTimeout is returned when the profile lock cannot be taken in time
var ErrLockTimeout = errors.New("timed out waiting for sender profile lock")

// FileStore keeps sender history in a pretty-printed JSON file. Commits take
// an exclusive lock on a sidecar ".lock" file, re-read the latest contents
// and replace the file atomically, so concurrent runs do not lose updates.
type FileStore struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	retryDelay  time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewFileStore creates a file-backed store at path
func NewFileStore(path string, lockTimeout time.Duration, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &FileStore{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: lockTimeout,
		retryDelay:  50 * time.Millisecond,
		logger:      logger,
		now:         time.Now,
	}
}

// Name identifies the store in logs and metrics
func (s *FileStore) Name() string {
	return "file"
}

// Path returns the profile file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the profile without locking; writers replace the file with a
// rename so a reader always sees a complete document.
func (s *FileStore) Load(ctx context.Context) (*senders.Profile, error) {
	return senders.LoadFile(s.path)
}

// Commit applies observations to the latest on-disk profile under the lock
func (s *FileStore) Commit(ctx context.Context, observations []senders.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, s.retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return fmt.Errorf("failed to lock sender profile: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("Failed to release sender profile lock", zap.Error(err))
		}
	}()

	profile, err := senders.LoadFile(s.path)
	if err != nil {
		s.logger.Warn("Existing sender profile unreadable, starting fresh",
			zap.String("path", s.path),
			zap.Error(err))
	}
	profile = senders.Update(profile, observations, s.now())

	if err := senders.SaveFile(profile, s.path); err != nil {
		return err
	}

	s.logger.Debug("Saved sender profile",
		zap.String("path", s.path),
		zap.Int("senders", len(profile.Senders)),
		zap.Int("observations", len(observations)))
	return nil
}
