package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/cache"
	"github.com/mikey/mail-triage/internal/classify"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/triage"
)

// LLMFactory creates the optional AI classification step
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates the configured provider's classifier and
// returns it with its model name
func (f *LLMFactory) CreateClassifier() (core.VerdictClassifier, string, error) {
	cc, err := f.cfg.GetClassifier()
	if err != nil {
		return nil, "", err
	}

	switch cc.Provider {
	case "openai":
		return NewOpenAIFactory(f.cfg, f.logger).CreateClassifier(cc.MaxBodyChars)
	case "gemini":
		return NewGeminiFactory(f.cfg, f.logger).CreateClassifier(cc.MaxBodyChars)
	case "bedrock":
		return NewBedrockFactory(f.cfg, f.logger).CreateClassifier(cc.MaxBodyChars)
	default:
		return nil, "", fmt.Errorf("unsupported classifier provider: %s", cc.Provider)
	}
}

// CreateVerdictProvider returns the classification runner, or nil when
// classification is disabled. A non-nil verdicts store is consulted before
// each model call.
func (f *LLMFactory) CreateVerdictProvider(minConfidence float64, verdicts cache.VerdictStore) (triage.VerdictProvider, error) {
	cc, err := f.cfg.GetClassifier()
	if err != nil {
		return nil, err
	}
	if !cc.Enabled {
		f.logger.Info("AI classification disabled, running heuristics only")
		return nil, nil
	}

	client, model, err := f.CreateClassifier()
	if err != nil {
		return nil, err
	}
	if verdicts != nil {
		client = cache.NewCachingClassifier(verdicts, client, f.logger)
	}

	f.logger.Info("AI classification enabled",
		zap.String("provider", cc.Provider),
		zap.String("model", model),
		zap.Int("max_ai", cc.MaxAI))
	return classify.NewRunner(client, model, cc.MaxAI, minConfidence, cc.Retry, f.logger), nil
}
