package ports

import (
	"context"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/normalize"
)

// EmailFilter defines the interface for raw mail front ends
type EmailFilter interface {
	// ProcessMessage normalizes a raw RFC 822 message and triages it
	ProcessMessage(ctx context.Context, raw []byte, env normalize.Envelope) (*core.TriageResult, error)

	// Start starts the filter
	Start() error

	// Stop stops the filter and commits any buffered sender history
	Stop() error
}
