package core

import (
	"context"
)

// VerdictClassifier defines the interface for the external AI classifier
type VerdictClassifier interface {
	// ClassifyMessage asks the model for a verdict on a normalized message
	ClassifyMessage(ctx context.Context, msg *NormalizedMessage) (*Verdict, error)
}
