// Package calibration scores the heuristic decisions against a labeled set
// so weights and thresholds can be tuned offline.
package calibration

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mikey/mail-triage/internal/core"
)

var (
	// ErrInvalidLabel is returned for a row whose label is not a decision
	ErrInvalidLabel = errors.New("invalid label")
	// ErrMissingEmail is returned for a row without an email object
	ErrMissingEmail = errors.New("missing email object")
	// ErrEmptyDataset is returned when no rows were read
	ErrEmptyDataset = errors.New("dataset is empty")
)

// Labels in report order
var Labels = []core.Decision{core.DecisionFlag, core.DecisionSurface, core.DecisionIgnore}

// Sample is one labeled message
type Sample struct {
	Email *core.NormalizedMessage `json:"email"`
	Label core.Decision           `json:"label"`
}

const maxLine = 16 * 1024 * 1024

// LoadDataset reads JSONL samples. Blank lines are skipped; a bad row fails
// the whole load with its line number.
func LoadDataset(r io.Reader) ([]Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var out []Sample
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var s Sample
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !s.Label.Valid() {
			return nil, fmt.Errorf("line %d: %w: %q", line, ErrInvalidLabel, s.Label)
		}
		if s.Email == nil {
			return nil, fmt.Errorf("line %d: %w", line, ErrMissingEmail)
		}
		out = append(out, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return out, nil
}

// Messages returns the emails of the samples, for user email inference
func Messages(samples []Sample) []*core.NormalizedMessage {
	out := make([]*core.NormalizedMessage, len(samples))
	for i, s := range samples {
		out[i] = s.Email
	}
	return out
}

// Confusion counts actual -> predicted decisions
type Confusion map[core.Decision]map[core.Decision]int

func (c Confusion) add(actual, predicted core.Decision) {
	row, ok := c[actual]
	if !ok {
		row = make(map[core.Decision]int)
		c[actual] = row
	}
	row[predicted]++
}

// Get returns the count for an actual/predicted pair
func (c Confusion) Get(actual, predicted core.Decision) int {
	return c[actual][predicted]
}

// Report is the outcome of an evaluation
type Report struct {
	Samples   int
	Correct   int
	Confusion Confusion
}

// Accuracy is the share of samples decided as labeled
func (r *Report) Accuracy() float64 {
	if r.Samples == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Samples)
}

// PrecisionRecall returns the per-class metrics for label. Empty
// denominators yield 0.
func (r *Report) PrecisionRecall(label core.Decision) (precision, recall float64) {
	tp := r.Confusion.Get(label, label)
	fp, fn := 0, 0
	for _, other := range Labels {
		if other == label {
			continue
		}
		fp += r.Confusion.Get(other, label)
		fn += r.Confusion.Get(label, other)
	}
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	return precision, recall
}

// Evaluate decides every sample and tallies the results
func Evaluate(samples []Sample, decide func(*core.NormalizedMessage) core.Decision) (*Report, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyDataset
	}
	r := &Report{Samples: len(samples), Confusion: make(Confusion)}
	for _, s := range samples {
		predicted := decide(s.Email)
		r.Confusion.add(s.Label, predicted)
		if predicted == s.Label {
			r.Correct++
		}
	}
	return r, nil
}

// WriteReport prints the report in a fixed text layout
func WriteReport(w io.Writer, name string, r *Report) error {
	rule := strings.Repeat("-", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "Heuristic Evaluation\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "Dataset: %s\nSamples: %d\nAccuracy: %.1f%%\n\n", name, r.Samples, r.Accuracy()*100)
	fmt.Fprintf(&b, "Confusion Matrix (actual -> predicted)\n%s\n", rule)
	for _, actual := range Labels {
		fmt.Fprintf(&b, "%-7s -> flag=%3d surface=%3d ignore=%3d\n", actual,
			r.Confusion.Get(actual, core.DecisionFlag),
			r.Confusion.Get(actual, core.DecisionSurface),
			r.Confusion.Get(actual, core.DecisionIgnore))
	}
	fmt.Fprintf(&b, "\nPer-class Precision/Recall\n%s\n", rule)
	for _, label := range Labels {
		p, rc := r.PrecisionRecall(label)
		fmt.Fprintf(&b, "%-7s precision=%.1f%% recall=%.1f%%\n", label, p*100, rc*100)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
