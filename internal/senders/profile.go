// Package senders keeps per-sender decision history and derives the bounded
// score adjustment applied by the scoring policy.
package senders

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/mikey/mail-triage/internal/core"
)

// PriorSignal is the breakdown name used for the history adjustment
const PriorSignal = "sender_history"

// MinHistory is the number of sightings required before history is trusted
const MinHistory = 3

// Record is the persisted history of one sender
type Record struct {
	Seen         int     `json:"seen"`
	FlagCount    int     `json:"flag_count"`
	SurfaceCount int     `json:"surface_count"`
	IgnoreCount  int     `json:"ignore_count"`
	LastSeen     *string `json:"last_seen"`
}

// Profile maps lowercase sender addresses to their history
type Profile struct {
	Senders map[string]*Record `json:"senders"`
}

// NewProfile returns an empty profile
func NewProfile() *Profile {
	return &Profile{Senders: make(map[string]*Record)}
}

// Lookup returns the record for a sender, or nil
func (p *Profile) Lookup(sender string) *Record {
	if p == nil || p.Senders == nil {
		return nil
	}
	return p.Senders[strings.ToLower(strings.TrimSpace(sender))]
}

// Prior returns the bounded score adjustment for a sender. Senders with
// fewer than MinHistory sightings get zero.
func (p *Profile) Prior(sender string, maxBoost, maxPenalty int) (int, string) {
	if sender == "" {
		return 0, PriorSignal
	}
	rec := p.Lookup(sender)
	if rec == nil || rec.Seen < MinHistory {
		return 0, PriorSignal
	}

	responded := rec.FlagCount + rec.SurfaceCount
	rate := float64(responded) / float64(rec.Seen)
	raw := int(math.RoundToEven((rate - 0.5) * 24))
	return clamp(raw, maxPenalty, maxBoost), PriorSignal
}

// Clone returns a deep copy of the profile
func (p *Profile) Clone() *Profile {
	out := NewProfile()
	if p == nil {
		return out
	}
	for k, rec := range p.Senders {
		if rec == nil {
			continue
		}
		cp := *rec
		if rec.LastSeen != nil {
			ts := *rec.LastSeen
			cp.LastSeen = &ts
		}
		out.Senders[k] = &cp
	}
	return out
}

// Observation is one decided message fed back into sender history
type Observation struct {
	Sender   string
	Decision core.Decision
}

// Update applies a batch of observations to the profile in place and returns
// it. Observations without a sender are ignored; any decision other than flag
// or surface counts as ignore.
func Update(p *Profile, observations []Observation, now time.Time) *Profile {
	if p == nil {
		p = NewProfile()
	}
	if p.Senders == nil {
		p.Senders = make(map[string]*Record)
	}
	stamp := now.UTC().Format(time.RFC3339Nano)

	for _, obs := range observations {
		sender := strings.ToLower(strings.TrimSpace(obs.Sender))
		if sender == "" {
			continue
		}
		rec, ok := p.Senders[sender]
		if !ok || rec == nil {
			rec = &Record{}
			p.Senders[sender] = rec
		}
		rec.Seen++
		switch obs.Decision {
		case core.DecisionFlag:
			rec.FlagCount++
		case core.DecisionSurface:
			rec.SurfaceCount++
		default:
			rec.IgnoreCount++
		}
		ts := stamp
		rec.LastSeen = &ts
	}
	return p
}

// Store persists sender history.
//
// Load is called once before a batch and the returned snapshot is treated as
// read-only while the batch is scored. Commit is called once afterwards with
// every decision the batch produced.
type Store interface {
	// Load returns the current history. On failure it still returns a usable
	// (possibly empty) profile alongside the error.
	Load(ctx context.Context) (*Profile, error)

	// Commit records the batch's decisions and persists them
	Commit(ctx context.Context, observations []Observation) error
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
