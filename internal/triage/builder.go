package triage

import (
	"time"

	"github.com/mikey/mail-triage/internal/heuristics"
	"github.com/mikey/mail-triage/internal/vip"
)

// Builder creates engines for a user. The user address is often only known
// once a batch has been read, so engine construction is deferred.
type Builder struct {
	Names   []string
	VIP     *vip.List
	Weights heuristics.Weights
	Policy  Policy
	Clock   func() time.Time
}

// Build returns an engine for userEmail. Without configured salutation names
// the names are derived from the address.
func (b *Builder) Build(userEmail string) *Engine {
	var patterns *heuristics.PatternSet
	if len(b.Names) > 0 {
		patterns = heuristics.NewPatternSet(b.Names)
	}
	var opts []heuristics.ExtractorOption
	if b.Clock != nil {
		opts = append(opts, heuristics.WithClock(b.Clock))
	}
	extractor := heuristics.NewExtractor(patterns, userEmail, b.VIP, opts...)
	return NewEngine(extractor, b.Weights, b.Policy)
}
