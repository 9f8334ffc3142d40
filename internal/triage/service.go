package triage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/heuristics"
	"github.com/mikey/mail-triage/internal/metrics"
	"github.com/mikey/mail-triage/internal/senders"
)

// VerdictProvider classifies messages that arrive without a verdict. The
// returned slice is aligned with msgs; nil entries mean no verdict.
type VerdictProvider interface {
	ClassifyBatch(ctx context.Context, msgs []*core.NormalizedMessage, userEmail string) []*core.Verdict
}

// Item is one message of a batch with its optional precomputed verdict
type Item struct {
	Message *core.NormalizedMessage
	Verdict *core.Verdict
}

// BatchResult holds the outcome of RunBatch. Results and Verdicts are
// aligned with the input items.
type BatchResult struct {
	UserEmail string
	Inferred  bool
	Results   []*core.TriageResult
	Verdicts  []*core.Verdict
}

// Count returns how many results ended with decision d
func (r *BatchResult) Count(d core.Decision) int {
	n := 0
	for _, res := range r.Results {
		if res != nil && res.Decision == d {
			n++
		}
	}
	return n
}

// Service runs triage against a sender history store. RunBatch is the
// one-shot two-phase path; Decide, Flush and Run serve long-lived callers
// that batch observations over time.
type Service struct {
	builder    *Builder
	userEmail  string
	store      senders.Store
	classifier VerdictProvider
	workers    int
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.RWMutex
	engine   *Engine
	snapshot *senders.Profile
	pending  []senders.Observation
}

// NewService creates a service. userEmail may be empty, in which case each
// batch infers it from its recipients. classifier may be nil.
func NewService(builder *Builder, userEmail string, store senders.Store, classifier VerdictProvider, workers int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	s := &Service{
		builder:    builder,
		userEmail:  userEmail,
		store:      store,
		classifier: classifier,
		workers:    workers,
		logger:     logger,
		now:        time.Now,
		snapshot:   senders.NewProfile(),
		engine:     builder.Build(userEmail),
	}
	return s
}

// RunBatch loads the sender history once, decides every item against that
// snapshot in parallel and commits the batch's decisions afterwards. Store
// failures are logged and never fail the batch; only context cancellation
// does.
func (s *Service) RunBatch(ctx context.Context, items []Item) (*BatchResult, error) {
	start := s.now()
	defer func() {
		metrics.BatchDuration.WithLabelValues("batch").Observe(s.now().Sub(start).Seconds())
	}()

	msgs := make([]*core.NormalizedMessage, len(items))
	for i, it := range items {
		msgs[i] = it.Message
	}

	out := &BatchResult{
		UserEmail: s.userEmail,
		Results:   make([]*core.TriageResult, len(items)),
		Verdicts:  make([]*core.Verdict, len(items)),
	}
	engine := s.engine
	if s.userEmail == "" {
		out.UserEmail = heuristics.InferUserEmail(msgs)
		out.Inferred = out.UserEmail != ""
		if out.Inferred {
			s.logger.Info("Inferred user email from recipients", zap.String("user_email", out.UserEmail))
		}
		engine = s.builder.Build(out.UserEmail)
	}

	profile := s.load(ctx)

	for i, it := range items {
		out.Verdicts[i] = it.Verdict
	}
	s.classifyMissing(ctx, msgs, out)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range items {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out.Results[i] = engine.Triage(msgs[i], out.Verdicts[i], profile)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	observations := make([]senders.Observation, 0, len(items))
	for i, res := range out.Results {
		metrics.RecordDecision(string(res.Decision), string(res.Source), res.Score, res.Overrides)
		if msgs[i] == nil {
			continue
		}
		observations = append(observations, senders.Observation{
			Sender:   msgs[i].SenderEmail(),
			Decision: res.Decision,
		})
	}
	s.commit(ctx, observations)

	s.logger.Info("Triage batch complete",
		zap.Int("messages", len(items)),
		zap.Int("flag", out.Count(core.DecisionFlag)),
		zap.Int("surface", out.Count(core.DecisionSurface)),
		zap.Int("ignore", out.Count(core.DecisionIgnore)))

	return out, nil
}

// DryRun scores msgs with heuristics alone against the stored sender
// history. Nothing is classified or committed. userEmail overrides the
// recipient inference; the resolved address is returned.
func (s *Service) DryRun(ctx context.Context, msgs []*core.NormalizedMessage, userEmail string) ([]*core.TriageResult, string) {
	if userEmail == "" {
		userEmail = heuristics.InferUserEmail(msgs)
	}
	engine := s.builder.Build(userEmail)
	profile := s.load(ctx)

	out := make([]*core.TriageResult, len(msgs))
	for i, msg := range msgs {
		out[i] = engine.Triage(msg, nil, profile)
	}
	return out, userEmail
}

func (s *Service) classifyMissing(ctx context.Context, msgs []*core.NormalizedMessage, out *BatchResult) {
	if s.classifier == nil {
		return
	}
	var idx []int
	var todo []*core.NormalizedMessage
	for i, v := range out.Verdicts {
		if v == nil && msgs[i] != nil {
			idx = append(idx, i)
			todo = append(todo, msgs[i])
		}
	}
	if len(todo) == 0 {
		return
	}
	verdicts := s.classifier.ClassifyBatch(ctx, todo, out.UserEmail)
	for j, i := range idx {
		if j < len(verdicts) {
			out.Verdicts[i] = verdicts[j]
		}
	}
}

func (s *Service) load(ctx context.Context) *senders.Profile {
	profile, err := s.store.Load(ctx)
	metrics.ProfileStoreOps.WithLabelValues(storeName(s.store), "load", metrics.StatusLabel(err)).Inc()
	if err != nil {
		s.logger.Warn("Failed to load sender history, using empty profile", zap.Error(err))
	}
	if profile == nil {
		profile = senders.NewProfile()
	}
	return profile
}

func (s *Service) commit(ctx context.Context, observations []senders.Observation) bool {
	if len(observations) == 0 {
		return true
	}
	err := s.store.Commit(ctx, observations)
	metrics.ProfileStoreOps.WithLabelValues(storeName(s.store), "commit", metrics.StatusLabel(err)).Inc()
	if err != nil {
		s.logger.Warn("Failed to persist sender history",
			zap.Int("observations", len(observations)),
			zap.Error(err))
		return false
	}
	return true
}

// Refresh reloads the snapshot used by Decide
func (s *Service) Refresh(ctx context.Context) {
	profile := s.load(ctx)
	s.mu.Lock()
	s.snapshot = profile
	s.mu.Unlock()
}

// Decide triages a single message against the current snapshot and buffers
// its decision until the next Flush. Without a configured user email every
// recipient role is unknown.
func (s *Service) Decide(ctx context.Context, msg *core.NormalizedMessage) (*core.TriageResult, *core.Verdict) {
	var verdict *core.Verdict
	if s.classifier != nil && msg != nil {
		if vs := s.classifier.ClassifyBatch(ctx, []*core.NormalizedMessage{msg}, s.userEmail); len(vs) > 0 {
			verdict = vs[0]
		}
	}

	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()

	res := s.engine.Triage(msg, verdict, snapshot)
	metrics.RecordDecision(string(res.Decision), string(res.Source), res.Score, res.Overrides)

	if msg != nil {
		s.mu.Lock()
		s.pending = append(s.pending, senders.Observation{Sender: msg.SenderEmail(), Decision: res.Decision})
		metrics.PendingObservations.Set(float64(len(s.pending)))
		s.mu.Unlock()
	}
	return res, verdict
}

// Flush commits buffered observations and refreshes the snapshot. On a
// failed commit the observations are kept for the next attempt.
func (s *Service) Flush(ctx context.Context) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if !s.commit(ctx, pending) {
		s.mu.Lock()
		s.pending = append(pending, s.pending...)
		metrics.PendingObservations.Set(float64(len(s.pending)))
		s.mu.Unlock()
		return
	}
	metrics.PendingObservations.Set(0)
	if len(pending) > 0 {
		s.logger.Debug("Committed sender history", zap.Int("observations", len(pending)))
	}
	s.Refresh(ctx)
}

// Run refreshes the snapshot, then flushes every interval until ctx is done.
// A final flush runs on shutdown.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Flush(context.Background())
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// PendingCount returns the number of buffered observations
func (s *Service) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

type namedStore interface {
	Name() string
}

func storeName(store senders.Store) string {
	if n, ok := store.(namedStore); ok {
		return n.Name()
	}
	return "unknown"
}
