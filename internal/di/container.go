package di

import (
	"os"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/cache"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/logging"
	"github.com/mikey/mail-triage/internal/normalize"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/senders"
	"github.com/mikey/mail-triage/internal/triage"
	"github.com/mikey/mail-triage/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
// for the content filter daemon
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return config.New(configPath)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	// Register verdict cache
	if err := container.Provide(func(f *factory.CacheFactory) (cache.VerdictStore, error) {
		return f.CreateVerdictStore()
	}); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter(os.Stdout)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideCommon registers everything both binaries share: factories, text
// processing, the sender store, the classifier and the triage service.
// Callers provide *config.Config, *zap.Logger and cache.VerdictStore.
func provideCommon(container *dig.Container) error {
	// Register factories
	for _, ctor := range []interface{}{
		factory.NewLLMFactory,
		factory.NewCacheFactory,
		factory.NewStoreFactory,
		factory.NewTriageFactory,
		factory.NewFilterFactory,
		factory.NewTextProcessorFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register text processor and normalizer
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.TextProcessorFactory, tp *utils.TextProcessor) *normalize.Normalizer {
		return f.CreateNormalizer(tp)
	}); err != nil {
		return err
	}

	// Register sender history store
	if err := container.Provide(func(f *factory.StoreFactory) (senders.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}

	// Register classifier; nil when AI classification is disabled
	if err := container.Provide(func(cfg *config.Config, f *factory.LLMFactory, vc cache.VerdictStore) (triage.VerdictProvider, error) {
		tc, err := cfg.GetTriage()
		if err != nil {
			return nil, err
		}
		return f.CreateVerdictProvider(tc.Policy.MinConfidence, vc)
	}); err != nil {
		return err
	}

	// Register triage service
	if err := container.Provide(func(f *factory.TriageFactory, store senders.Store, classifier triage.VerdictProvider, logger *zap.Logger) (*triage.Service, error) {
		svc, err := f.CreateService(store, classifier)
		if err != nil {
			return nil, err
		}
		logger.Info("Triage service ready", zap.Bool("ai_enabled", classifier != nil))
		return svc, nil
	}); err != nil {
		return err
	}

	return nil
}
