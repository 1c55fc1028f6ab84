package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JinJiangyue/EUflood-sub000/internal/cli"
	"github.com/JinJiangyue/EUflood-sub000/internal/collector"
	"github.com/JinJiangyue/EUflood-sub000/internal/config"
	"github.com/JinJiangyue/EUflood-sub000/internal/db"
	"github.com/JinJiangyue/EUflood-sub000/internal/logging"
	"github.com/JinJiangyue/EUflood-sub000/internal/match"
	"github.com/JinJiangyue/EUflood-sub000/internal/merge"
	"github.com/JinJiangyue/EUflood-sub000/internal/observability"
	"github.com/JinJiangyue/EUflood-sub000/internal/storage"
)

const windowDateLayout = "2006-01-02"

// bootstrap loads env, config and the logger. Returns a non-zero exit
// code on failure, zero on success.
func bootstrap(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Logger{}, 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Logger{}, 1
	}
	return cfg, logger, 0
}

// openStore connects the database pool and wraps it in the store adapter.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*db.Pool, storage.Store, error) {
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	store, err := storage.NewGorm(pool.GORM())
	if err != nil {
		pool.Close()
		logger.Error().Err(err).Msg("store migration failed")
		return nil, nil, fmt.Errorf("prepare store: %w", err)
	}
	return pool, store, nil
}

// newMergeService wires the matcher, engine and metrics around the store.
// Collectors register through the returned registry before Run.
func newMergeService(cfg *config.Config, store storage.Store, logger zerolog.Logger, metrics *observability.Metrics) (*merge.Service, *collector.Registry) {
	matcher := match.NewWithThresholds(cfg.MatchMaxDistanceKm, cfg.MatchMaxTimeDiffHrs)
	registry := collector.NewRegistry()
	svc := merge.NewService(store, registry, merge.NewEngine(matcher), logger, metrics).
		WithPageSize(cfg.IngestPageSize)
	return svc, registry
}

// parseWindow parses the --from/--to pair. Both are required and the
// window must not be inverted.
func parseWindow(fromRaw, toRaw string) (time.Time, time.Time, error) {
	fromRaw = strings.TrimSpace(fromRaw)
	toRaw = strings.TrimSpace(toRaw)
	if fromRaw == "" || toRaw == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--from and --to are required (YYYY-MM-DD)")
	}
	from, err := time.ParseInLocation(windowDateLayout, fromRaw, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
	}
	to, err := time.ParseInLocation(windowDateLayout, toRaw, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be YYYY-MM-DD: %w", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must not be before --from")
	}
	return from, to, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
