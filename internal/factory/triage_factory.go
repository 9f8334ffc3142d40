package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/senders"
	"github.com/mikey/mail-triage/internal/triage"
	"github.com/mikey/mail-triage/internal/vip"
)

// TriageFactory creates engines and services from the triage and weights
// configuration
type TriageFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTriageFactory creates a new triage factory
func NewTriageFactory(cfg *config.Config, logger *zap.Logger) *TriageFactory {
	return &TriageFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateBuilder returns an engine builder along with the triage config it
// was built from
func (f *TriageFactory) CreateBuilder() (*triage.Builder, config.TriageConfig, error) {
	tc, err := f.cfg.GetTriage()
	if err != nil {
		return nil, config.TriageConfig{}, err
	}
	weights, err := f.cfg.GetWeights()
	if err != nil {
		return nil, config.TriageConfig{}, err
	}
	return &triage.Builder{
		Names:   tc.SalutationNames,
		VIP:     vip.NewList(tc.VIPSenders, f.logger),
		Weights: weights,
		Policy:  tc.Policy,
	}, tc, nil
}

// CreateService wires the engine builder to store and classifier.
// classifier may be nil.
func (f *TriageFactory) CreateService(store senders.Store, classifier triage.VerdictProvider) (*triage.Service, error) {
	builder, tc, err := f.CreateBuilder()
	if err != nil {
		return nil, err
	}
	if tc.UserEmail == "" {
		f.logger.Info("No user email configured; it will be inferred per batch")
	}
	return triage.NewService(builder, tc.UserEmail, store, classifier, tc.Workers, f.logger), nil
}
