package factory

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/filter"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/normalize"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/triage"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg        *config.Config
	logger     *zap.Logger
	service    *triage.Service
	normalizer *normalize.Normalizer
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, service *triage.Service, normalizer *normalize.Normalizer) *FilterFactory {
	return &FilterFactory{
		cfg:        cfg,
		logger:     logger,
		service:    service,
		normalizer: normalizer,
	}
}

// CreateSMTPFilter creates the SMTP content filter
func (f *FilterFactory) CreateSMTPFilter() *filter.SMTPFilter {
	return filter.NewSMTPFilter(f.service, f.normalizer, f.cfg.GetServer(), f.logger)
}

// CreateCliFilter creates a command line filter printing to console
func (f *FilterFactory) CreateCliFilter(console io.Writer) *filter.CliFilter {
	return filter.NewCliFilter(f.service, f.normalizer, f.logger, console, f.cfg.GetBool("cli.verbose"))
}

// CreateEmailFilter creates the filter named by server.filter_type
func (f *FilterFactory) CreateEmailFilter(console io.Writer) (ports.EmailFilter, error) {
	filterType := f.cfg.GetString("server.filter_type")

	switch filterType {
	case "smtp":
		return f.CreateSMTPFilter(), nil
	case "cli":
		return f.CreateCliFilter(console), nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", filterType)
	}
}
