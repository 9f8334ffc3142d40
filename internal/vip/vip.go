package vip

import (
	"strings"

	"go.uber.org/zap"
)

// List holds the senders whose mail always gets the VIP boost. Entries are
// either full addresses or "@domain" to cover a whole domain.
type List struct {
	addresses map[string]struct{}
	domains   map[string]struct{}
	logger    *zap.Logger
}

// NewList creates a VIP list from raw config entries
func NewList(entries []string, logger *zap.Logger) *List {
	l := &List{
		addresses: make(map[string]struct{}),
		domains:   make(map[string]struct{}),
		logger:    logger,
	}

	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		switch {
		case e == "":
			continue
		case strings.HasPrefix(e, "@"):
			l.domains[e[1:]] = struct{}{}
		default:
			l.addresses[e] = struct{}{}
		}
	}

	if l.Len() > 0 && logger != nil {
		logger.Info("Initialized VIP sender list",
			zap.Int("addresses", len(l.addresses)),
			zap.Int("domains", len(l.domains)))
	}

	return l
}

// Len returns the number of entries
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.addresses) + len(l.domains)
}

// Contains checks if the sender is a VIP
func (l *List) Contains(from string) bool {
	if l.Len() == 0 {
		return false
	}

	from = strings.ToLower(strings.TrimSpace(from))
	if _, ok := l.addresses[from]; ok {
		return true
	}

	// Extract domain from email address
	parts := strings.Split(from, "@")
	if len(parts) != 2 {
		return false
	}
	if _, ok := l.domains[parts[1]]; ok {
		if l.logger != nil {
			l.logger.Debug("Sender domain is VIP",
				zap.String("domain", parts[1]),
				zap.String("email", from))
		}
		return true
	}

	return false
}
