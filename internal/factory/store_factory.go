package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/store"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/senders"
)

// StoreFactory creates sender history stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates the sender history store named by profiles.type
func (f *StoreFactory) CreateStore() (senders.Store, error) {
	pc, err := f.cfg.GetProfiles()
	if err != nil {
		return nil, err
	}

	switch pc.Type {
	case "file":
		return store.NewFileStore(pc.Path, pc.LockTimeout, f.logger), nil
	case "memory":
		return store.NewMemoryStore(nil, f.logger), nil
	case "sqlite":
		return store.NewSQLiteStore(pc.SQLitePath, f.logger)
	case "mysql":
		return store.NewMySQLStore(pc.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported profiles type: %s", pc.Type)
	}
}
