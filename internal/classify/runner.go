package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/metrics"
)

// PermanentError marks a model failure that retrying cannot fix, such as a
// rejected request or an unusable reply
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the runner does not retry it
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RetryPolicy controls how failed model calls are retried
type RetryPolicy struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// DefaultRetryPolicy returns 3 attempts with 1s backoff doubling up to 30s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Runner sends messages to a classifier within a per-run budget
type Runner struct {
	client        core.VerdictClassifier
	model         string
	maxAI         int
	minConfidence float64
	retry         RetryPolicy
	logger        *zap.Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner. maxAI is the number of model calls allowed per
// ClassifyBatch; skipped messages do not count against it.
func NewRunner(client core.VerdictClassifier, model string, maxAI int, minConfidence float64, retry RetryPolicy, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Runner{
		client:        client,
		model:         model,
		maxAI:         maxAI,
		minConfidence: minConfidence,
		retry:         retry,
		logger:        logger,
		sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ClassifyBatch returns one verdict per message, in order. It never fails:
// skipped messages and failed calls get placeholder verdicts.
func (r *Runner) ClassifyBatch(ctx context.Context, msgs []*core.NormalizedMessage, userEmail string) []*core.Verdict {
	out := make([]*core.Verdict, len(msgs))
	calls := 0

	for i, msg := range msgs {
		if calls >= r.maxAI {
			out[i] = SkippedVerdict(SkipBudget)
			metrics.ClassifierSkips.WithLabelValues(SkipBudget).Inc()
			continue
		}
		if skip, reason := ShouldSkip(msg, userEmail); skip {
			out[i] = SkippedVerdict(reason)
			metrics.ClassifierSkips.WithLabelValues(reason).Inc()
			continue
		}

		calls++
		out[i] = r.classify(ctx, msg)
	}

	stats := Summarize(out)
	r.logger.Info("AI classification complete",
		zap.Int("processed", stats.Processed),
		zap.Int("flagged", stats.Flagged),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors))
	return out
}

func (r *Runner) classify(ctx context.Context, msg *core.NormalizedMessage) *core.Verdict {
	v, err := r.callWithRetry(ctx, msg)
	metrics.ClassifierCalls.WithLabelValues(r.model, metrics.StatusLabel(err)).Inc()
	if err != nil {
		r.logger.Warn("AI classification failed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
		return ErrorVerdict(err)
	}

	v.ModelShouldFlag = v.ShouldFlag
	v.FinalShouldFlag = v.Meets(r.minConfidence)
	if v.ModelUsed == "" {
		v.ModelUsed = r.model
	}
	return v
}

func (r *Runner) callWithRetry(ctx context.Context, msg *core.NormalizedMessage) (*core.Verdict, error) {
	backoff := r.retry.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		v, err := r.client.ClassifyMessage(ctx, msg)
		if err == nil {
			if v == nil {
				return nil, fmt.Errorf("%w: classifier returned no verdict", ErrInvalidResponse)
			}
			return v, nil
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == r.retry.MaxAttempts {
			break
		}

		r.logger.Debug("Retrying AI classification",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.retry.MaxAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := r.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
		if r.retry.MaxBackoff > 0 && backoff > r.retry.MaxBackoff {
			backoff = r.retry.MaxBackoff
		}
	}

	return nil, fmt.Errorf("all %d attempts failed, last error: %w", r.retry.MaxAttempts, lastErr)
}

// Stats summarizes a run's verdicts
type Stats struct {
	Total     int
	Processed int
	Skipped   int
	Flagged   int
	Errors    int
}

// Summarize counts verdicts by outcome. Nil entries count as skipped.
func Summarize(verdicts []*core.Verdict) Stats {
	s := Stats{Total: len(verdicts)}
	for _, v := range verdicts {
		switch {
		case v == nil || v.Skipped:
			s.Skipped++
			continue
		case v.Error != "":
			s.Errors++
		}
		if v.FinalShouldFlag {
			s.Flagged++
		}
	}
	s.Processed = s.Total - s.Skipped
	return s
}
