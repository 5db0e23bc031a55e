package storage

import (
	"context"
	"fmt"

	"github.com/invoicekits/invoicekits/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage",
	fx.Provide(New),
)

func New(cfg config.Config, log *zap.Logger) (ObjectStorage, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendS3:
		return NewS3Storage(context.Background(), cfg.Storage, log)
	case config.StorageBackendLocal, "":
		return NewLocalStorage(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
