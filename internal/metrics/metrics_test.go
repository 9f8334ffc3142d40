package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDecision(t *testing.T) {
	DecisionsTotal.Reset()
	OverridesTotal.Reset()

	RecordDecision("surface", "heuristic", 72, []string{"cc_dampening"})
	RecordDecision("surface", "heuristic", 50, nil)
	RecordDecision("flag", "ai+heuristic", 95, []string{"cc_dampening", "cc_thread_addition_promotion"})

	assert.Equal(t, 2.0, testutil.ToFloat64(DecisionsTotal.WithLabelValues("surface", "heuristic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DecisionsTotal.WithLabelValues("flag", "ai+heuristic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(OverridesTotal.WithLabelValues("cc_dampening")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OverridesTotal.WithLabelValues("cc_thread_addition_promotion")))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "success", StatusLabel(nil))
	assert.Equal(t, "error", StatusLabel(errors.New("boom")))
}
