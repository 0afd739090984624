package store

import (
	"context"
	"net/http"

	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/model"
)

// New opens the store selected by cfg.Driver. Missing credentials are a
// *model.ConfigurationError. client is used by the REST store only.
func New(ctx context.Context, cfg model.StoreConfig, client *http.Client, logger logging.Logger) (Store, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	switch cfg.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, cfg.Table, logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN, cfg.Table, logger)
	default:
		if client != nil && cfg.Timeout > 0 {
			c := *client
			c.Timeout = cfg.Timeout
			client = &c
		}
		return NewRESTStore(cfg.URL, cfg.Key, cfg.Table, client, logger)
	}
}
