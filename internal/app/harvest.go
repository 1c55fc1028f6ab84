package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/JinJiangyue/EUflood-sub000/internal/cli"
	"github.com/JinJiangyue/EUflood-sub000/internal/observability"
)

func runHarvest(args []string) int {
	fs := flag.NewFlagSet("harvest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	fromRaw := fs.String("from", "", "Window start date (YYYY-MM-DD)")
	toRaw := fs.String("to", "", "Window end date (YYYY-MM-DD)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	from, to, err := parseWindow(*fromRaw, *toRaw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, logger, code := bootstrap(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, store, err := openStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc, _ := newMergeService(cfg, store, logger, observability.NewMetrics())
	stats, err := svc.Harvest(ctx, from, to)
	if err != nil {
		logger.Error().Err(err).Msg("harvest failed")
		fmt.Fprintf(os.Stderr, "Harvest failed: %v\n", err)
		return 1
	}

	if err := printJSON(stats); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode stats: %v\n", err)
		return 1
	}
	return 0
}
