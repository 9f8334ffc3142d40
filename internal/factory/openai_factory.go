package factory

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	openaiadapter "github.com/mikey/mail-triage/internal/adapters/openai"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
)

// OpenAIFactory creates OpenAI classifiers
type OpenAIFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewOpenAIFactory creates a new OpenAI factory
func NewOpenAIFactory(cfg *config.Config, logger *zap.Logger) *OpenAIFactory {
	return &OpenAIFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates an OpenAI classifier and returns its model name
func (f *OpenAIFactory) CreateClassifier(maxBodyChars int) (core.VerdictClassifier, string, error) {
	openaiCfg := f.cfg.GetOpenAI()
	if openaiCfg.APIKey == "" {
		return nil, "", fmt.Errorf("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(openaiCfg.APIKey)
	if openaiCfg.BaseURL != "" {
		clientCfg.BaseURL = openaiCfg.BaseURL
	}

	client := openaiadapter.NewOpenAIClient(
		openai.NewClientWithConfig(clientCfg),
		openaiCfg.ModelName,
		openaiCfg.MaxTokens,
		openaiCfg.Temperature,
		maxBodyChars,
		f.logger,
	)
	return client, openaiCfg.ModelName, nil
}
