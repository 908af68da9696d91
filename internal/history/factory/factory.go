package factory

import (
	"fmt"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/history/clickhouse"
)

// New builds the configured history sink. Type "none" (or an empty DSN for
// the SQL kinds) disables history.
func New(cfg config.History) (history.Sink, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "sqlite", "postgres":
		if cfg.DSN == "" {
			return nil, nil
		}
		return history.NewSQLSink(cfg.DSN)
	case "clickhouse":
		return clickhouse.New(clickhouse.Options{Addr: cfg.DSN, Table: cfg.Table})
	default:
		return nil, fmt.Errorf("unknown history sink type %q", cfg.Type)
	}
}
