package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/metrics"
)

var (
	// ErrNotFound is returned when no verdict is cached under a key
	ErrNotFound = errors.New("verdict not found in cache")
	// ErrExpired is returned when the cached verdict outlived its TTL
	ErrExpired = errors.New("cached verdict expired")
)

// VerdictStore keeps classifier verdicts so a message redelivered after a
// temporary failure is not classified twice
type VerdictStore interface {
	Get(ctx context.Context, key string) (*core.Verdict, error)
	Set(ctx context.Context, key string, v *core.Verdict) error
	Close() error
}

// Key returns the cache key for msg: its Internet Message-ID, else its
// message id, else a content hash
func Key(msg *core.NormalizedMessage) string {
	if msg == nil {
		return ""
	}
	if msg.InternetMessageID != "" {
		return msg.InternetMessageID
	}
	if msg.MessageID != "" {
		return msg.MessageID
	}
	sum := blake3.Sum256([]byte(strings.Join([]string{msg.SenderEmail(), msg.Subject, msg.SentAt, msg.BodyText}, "\x00")))
	return "b3:" + hex.EncodeToString(sum[:16])
}

type cachingClassifier struct {
	store  VerdictStore
	next   core.VerdictClassifier
	logger *zap.Logger
}

// NewCachingClassifier returns a classifier that consults store before
// calling next. Cache failures degrade to a miss; classifier failures are
// not cached.
func NewCachingClassifier(store VerdictStore, next core.VerdictClassifier, logger *zap.Logger) core.VerdictClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachingClassifier{store: store, next: next, logger: logger}
}

func (c *cachingClassifier) ClassifyMessage(ctx context.Context, msg *core.NormalizedMessage) (*core.Verdict, error) {
	key := Key(msg)
	if key != "" {
		v, err := c.store.Get(ctx, key)
		switch {
		case err == nil:
			metrics.VerdictCacheLookups.WithLabelValues("hit").Inc()
			c.logger.Debug("Verdict cache hit", zap.String("key", key))
			return v, nil
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
			metrics.VerdictCacheLookups.WithLabelValues("miss").Inc()
		default:
			metrics.VerdictCacheLookups.WithLabelValues("error").Inc()
			c.logger.Warn("Verdict cache lookup failed", zap.String("key", key), zap.Error(err))
		}
	}

	v, err := c.next.ClassifyMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	if key != "" {
		if err := c.store.Set(ctx, key, v); err != nil {
			c.logger.Warn("Failed to cache verdict", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}
