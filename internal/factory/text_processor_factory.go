package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/normalize"
	"github.com/mikey/mail-triage/internal/utils"
)

// TextProcessorFactory creates text processors and message normalizers
type TextProcessorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTextProcessorFactory creates a new TextProcessorFactory
func NewTextProcessorFactory(cfg *config.Config, logger *zap.Logger) *TextProcessorFactory {
	return &TextProcessorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates a new TextProcessor
func (f *TextProcessorFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger)
}

// CreateNormalizer creates a normalizer capped at triage.max_body_chars
func (f *TextProcessorFactory) CreateNormalizer(tp *utils.TextProcessor) *normalize.Normalizer {
	return normalize.NewNormalizer(f.cfg.GetInt("triage.max_body_chars"), tp, f.logger)
}
