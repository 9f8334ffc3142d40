package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/heuristics"
	"github.com/mikey/mail-triage/internal/senders"
)

type fakeStore struct {
	mu        sync.Mutex
	profile   *senders.Profile
	loadErr   error
	commitErr error
	loads     int
	commits   [][]senders.Observation
}

func (s *fakeStore) Load(ctx context.Context) (*senders.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return senders.NewProfile(), s.loadErr
	}
	return s.profile.Clone(), nil
}

func (s *fakeStore) Commit(ctx context.Context, obs []senders.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits = append(s.commits, obs)
	s.profile = senders.Update(s.profile, obs, fixedNow)
	return nil
}

type fakeClassifier struct {
	calls   int
	verdict *core.Verdict
}

func (c *fakeClassifier) ClassifyBatch(ctx context.Context, msgs []*core.NormalizedMessage, userEmail string) []*core.Verdict {
	c.calls++
	out := make([]*core.Verdict, len(msgs))
	for i := range msgs {
		out[i] = c.verdict
	}
	return out
}

func repeatedSenderBatch(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{Message: &core.NormalizedMessage{
			MessageID: string(rune('a' + i)),
			From:      core.Address{Email: "ben@acme.com"},
			To:        []string{user},
			IsRead:    true,
		}}
	}
	return items
}

func TestRunBatch_ScoresAgainstStableSnapshot(t *testing.T) {
	store := &fakeStore{profile: senders.NewProfile()}
	store.profile.Senders["ben@acme.com"] = &senders.Record{Seen: 2, FlagCount: 2}

	w := heuristics.Weights{ToMe: 35, SenderHistoryMaxBoost: 8, SenderHistoryMaxPenalty: -12}
	svc := NewService(testBuilder(w), user, store, nil, 4, zap.NewNop())

	out, err := svc.RunBatch(context.Background(), repeatedSenderBatch(6))
	require.NoError(t, err)

	// the batch's own decisions must not feed back into its scores
	for _, res := range out.Results {
		assert.Equal(t, 35, res.Score)
		assert.Equal(t, core.DecisionIgnore, res.Decision)
	}
	assert.Equal(t, 1, store.loads)
	require.Len(t, store.commits, 1)
	assert.Len(t, store.commits[0], 6)
	assert.Equal(t, 8, store.profile.Senders["ben@acme.com"].Seen)
	assert.Equal(t, 6, store.profile.Senders["ben@acme.com"].IgnoreCount)
}

func TestDryRun_UsesStoredHistory(t *testing.T) {
	w := heuristics.Weights{ToMe: 35, SenderHistoryMaxBoost: 8, SenderHistoryMaxPenalty: -12}
	msgs := []*core.NormalizedMessage{
		{From: core.Address{Email: "ben@acme.com"}, To: []string{user}, IsRead: true},
		{From: core.Address{Email: "amy@acme.com"}, To: []string{user}, IsRead: true},
	}

	empty := &fakeStore{profile: senders.NewProfile()}
	results, _ := NewService(testBuilder(w), "", empty, nil, 1, zap.NewNop()).DryRun(context.Background(), msgs, "")
	assert.Equal(t, core.DecisionIgnore, results[0].Decision)

	store := &fakeStore{profile: senders.NewProfile()}
	store.profile.Senders["ben@acme.com"] = &senders.Record{Seen: 4, FlagCount: 3, SurfaceCount: 1}
	classifier := &fakeClassifier{verdict: actionVerdict(0.99, true)}
	svc := NewService(testBuilder(w), "someone@else.com", store, classifier, 1, zap.NewNop())

	results, resolved := svc.DryRun(context.Background(), msgs, "")
	assert.Equal(t, user, resolved)
	require.Len(t, results, 2)
	assert.Equal(t, 43, results[0].Score)
	assert.Equal(t, core.DecisionSurface, results[0].Decision)
	assert.Equal(t, 35, results[1].Score)
	assert.Equal(t, core.RoleTo, results[1].Features.RecipientRole)

	assert.Zero(t, classifier.calls)
	assert.Empty(t, store.commits)
	assert.Zero(t, svc.PendingCount())

	_, resolved = svc.DryRun(context.Background(), msgs, "ben@acme.com")
	assert.Equal(t, "ben@acme.com", resolved)
}

func TestRunBatch_StoreFailuresDoNotAbort(t *testing.T) {
	store := &fakeStore{
		profile:   senders.NewProfile(),
		loadErr:   errors.New("disk on fire"),
		commitErr: errors.New("read-only filesystem"),
	}
	svc := NewService(testBuilder(heuristics.DefaultWeights()), user, store, nil, 2, zap.NewNop())

	out, err := svc.RunBatch(context.Background(), repeatedSenderBatch(3))
	require.NoError(t, err)
	assert.Len(t, out.Results, 3)
	for _, res := range out.Results {
		assert.NotNil(t, res)
	}
}

func TestRunBatch_InfersUserEmail(t *testing.T) {
	store := &fakeStore{profile: senders.NewProfile()}
	svc := NewService(testBuilder(heuristics.Weights{ToMe: 50}), "", store, nil, 1, zap.NewNop())

	items := []Item{
		{Message: &core.NormalizedMessage{To: []string{"dan@acme.com", "all-staff@acme.com"}, IsRead: true}},
		{Message: &core.NormalizedMessage{To: []string{"dan@acme.com"}, IsRead: true}},
		{Message: &core.NormalizedMessage{To: []string{"ben@acme.com"}, IsRead: true}},
	}
	out, err := svc.RunBatch(context.Background(), items)
	require.NoError(t, err)

	assert.True(t, out.Inferred)
	assert.Equal(t, "dan@acme.com", out.UserEmail)
	assert.Equal(t, core.RoleTo, out.Results[0].Features.RecipientRole)
	assert.Equal(t, core.RoleUnknown, out.Results[2].Features.RecipientRole)
}

func TestRunBatch_ClassifiesOnlyMissingVerdicts(t *testing.T) {
	store := &fakeStore{profile: senders.NewProfile()}
	classifier := &fakeClassifier{verdict: actionVerdict(0.9, true)}
	svc := NewService(testBuilder(heuristics.Weights{ToMe: 10}), user, store, classifier, 2, zap.NewNop())

	precomputed := &core.Verdict{Classification: core.ClassFYI, Confidence: 0.9}
	items := repeatedSenderBatch(2)
	items[0].Verdict = precomputed

	out, err := svc.RunBatch(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, classifier.calls)
	assert.Same(t, precomputed, out.Verdicts[0])
	assert.Equal(t, core.SourceHeuristicWithAIContext, out.Results[0].Source)
	assert.Equal(t, core.SourceAIHeuristic, out.Results[1].Source)
	assert.Equal(t, 1, out.Count(core.DecisionFlag))
}

func TestRunBatch_NilMessage(t *testing.T) {
	store := &fakeStore{profile: senders.NewProfile()}
	svc := NewService(testBuilder(heuristics.DefaultWeights()), user, store, nil, 1, zap.NewNop())

	out, err := svc.RunBatch(context.Background(), []Item{{}})
	require.NoError(t, err)
	assert.Equal(t, core.DecisionIgnore, out.Results[0].Decision)
	assert.Empty(t, store.commits)
}

func TestRunBatch_CancelledContext(t *testing.T) {
	store := &fakeStore{profile: senders.NewProfile()}
	svc := NewService(testBuilder(heuristics.DefaultWeights()), user, store, nil, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.RunBatch(ctx, repeatedSenderBatch(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.commits)
}

func TestDecideAndFlush(t *testing.T) {
	store := &fakeStore{profile: senders.NewProfile()}
	w := heuristics.Weights{ToMe: 35, SenderHistoryMaxBoost: 8, SenderHistoryMaxPenalty: -12}
	svc := NewService(testBuilder(w), user, store, nil, 1, zap.NewNop())
	svc.Refresh(context.Background())

	msg := &core.NormalizedMessage{From: core.Address{Email: "ben@acme.com"}, To: []string{user}, IsRead: true}
	for i := 0; i < 3; i++ {
		res, verdict := svc.Decide(context.Background(), msg)
		assert.Nil(t, verdict)
		assert.Equal(t, 35, res.Score)
	}
	assert.Equal(t, 3, svc.PendingCount())
	assert.Empty(t, store.commits)

	svc.Flush(context.Background())
	assert.Equal(t, 0, svc.PendingCount())
	require.Len(t, store.commits, 1)

	// the refreshed snapshot now has three ignores for ben: penalty -12
	res, _ := svc.Decide(context.Background(), msg)
	assert.Equal(t, 23, res.Score)
}

func TestFlush_KeepsObservationsOnFailure(t *testing.T) {
	store := &fakeStore{profile: senders.NewProfile(), commitErr: errors.New("locked")}
	svc := NewService(testBuilder(heuristics.DefaultWeights()), user, store, nil, 1, zap.NewNop())

	svc.Decide(context.Background(), &core.NormalizedMessage{From: core.Address{Email: "a@b.com"}})
	svc.Flush(context.Background())
	assert.Equal(t, 1, svc.PendingCount())

	store.commitErr = nil
	svc.Flush(context.Background())
	assert.Equal(t, 0, svc.PendingCount())
	require.Len(t, store.commits, 1)
	assert.Len(t, store.commits[0], 1)
}

func TestRun_FlushesOnShutdown(t *testing.T) {
	store := &fakeStore{profile: senders.NewProfile()}
	svc := NewService(testBuilder(heuristics.DefaultWeights()), user, store, nil, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.loads > 0
	}, time.Second, 5*time.Millisecond)

	svc.Decide(context.Background(), &core.NormalizedMessage{From: core.Address{Email: "a@b.com"}})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.commits, 1)
}
