package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// NewStore opens the journal backend selected by cfg.Mode.
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	logger = logger.With().Str("component", "storage").Logger()

	switch cfg.Mode {
	case ModeSQLite:
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case ModeDynamoLocal, ModeDynamoAWS:
		return NewDynamoDBStore(ctx, cfg.Dynamo, logger)
	case ModeNone, "":
		logger.Info().Msg("state change journal disabled")
		return NewNoopStore(), nil
	default:
		return nil, fmt.Errorf("unknown store mode %q", cfg.Mode)
	}
}
