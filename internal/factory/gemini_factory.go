package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/gemini"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
)

// GeminiFactory creates Gemini classifiers
type GeminiFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewGeminiFactory creates a new Gemini factory
func NewGeminiFactory(cfg *config.Config, logger *zap.Logger) *GeminiFactory {
	return &GeminiFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates a Gemini classifier and returns its model name
func (f *GeminiFactory) CreateClassifier(maxBodyChars int) (core.VerdictClassifier, string, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, "", fmt.Errorf("gemini API key is required")
	}

	client, err := gemini.NewGeminiClient(
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		maxBodyChars,
		f.logger,
	)
	if err != nil {
		return nil, "", err
	}
	return client, geminiCfg.ModelName, nil
}
