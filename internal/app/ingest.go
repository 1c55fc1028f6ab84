package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JinJiangyue/EUflood-sub000/internal/cli"
	"github.com/JinJiangyue/EUflood-sub000/internal/ingestion"
	"github.com/JinJiangyue/EUflood-sub000/internal/interp"
	"github.com/JinJiangyue/EUflood-sub000/internal/observability"
	payloadschema "github.com/JinJiangyue/EUflood-sub000/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	dateRaw := fs.String("date", "", "Confirmed rainfall date (YYYY-MM-DD)")
	fileName := fs.String("file", "", "Measurement file name recorded on each row (defaults to the payload file base name)")
	payloadFile := fs.String("payload-file", "", "Path to an interpolation result JSON file")
	inputFile := fs.String("input-file", "", "Raw measurement file to send to the interpolation service (alternative to --payload-file)")
	mode := fs.String("mode", payloadschema.ThresholdModeFixed, "Threshold mode: fixed or grid")
	threshold := fs.Float64("threshold", 0, "Default rainfall threshold in mm")
	band := fs.String("band", "", "Grid return-period band (defaults to the configured band)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	dateStr := strings.TrimSpace(*dateRaw)
	if dateStr == "" {
		fmt.Fprintln(os.Stderr, "--date is required (YYYY-MM-DD)")
		return 2
	}
	confirmed, err := time.ParseInLocation(windowDateLayout, dateStr, time.UTC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "--date must be YYYY-MM-DD: %v\n", err)
		return 2
	}

	payloadPath := strings.TrimSpace(*payloadFile)
	inputPath := strings.TrimSpace(*inputFile)
	if (payloadPath == "") == (inputPath == "") {
		fmt.Fprintln(os.Stderr, "exactly one of --payload-file or --input-file is required")
		return 2
	}

	cfg, logger, code := bootstrap(envLoader)
	if code != 0 {
		return code
	}

	gridBand := strings.TrimSpace(*band)
	if gridBand == "" {
		gridBand = cfg.GridRPBand
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var result *payloadschema.InterpolationResult
	if payloadPath != "" {
		raw, err := os.ReadFile(payloadPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
			return 2
		}
		result, err = payloadschema.ValidateInterpolationResult(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
			return 2
		}
	} else {
		client := interp.NewClient(cfg.InterpolationURL, time.Duration(cfg.InterpolationTimeoutSec)*time.Second)
		result, err = client.Run(ctx, interp.Request{
			InputFile:     inputPath,
			ThresholdMode: *mode,
			Threshold:     *threshold,
			GridRPBand:    gridBand,
		})
		if err != nil {
			logger.Error().Err(err).Str("input_file", inputPath).Msg("interpolation failed")
			fmt.Fprintf(os.Stderr, "Interpolation failed: %v\n", err)
			return 1
		}
	}

	name := strings.TrimSpace(*fileName)
	if name == "" {
		if payloadPath != "" {
			name = filepath.Base(payloadPath)
		} else {
			name = filepath.Base(inputPath)
		}
	}

	pool, store, err := openStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer pool.Close()

	pipeline := ingestion.NewPipeline(
		store,
		ingestion.NewNormalizer(cfg.IngestCoordPrecision),
		logger,
		observability.NewMetrics(),
		gridBand,
		cfg.IngestPageSize,
	)

	res, err := pipeline.Run(ctx, ingestion.Request{
		ConfirmedDate:    confirmed,
		FileName:         name,
		ThresholdMode:    *mode,
		DefaultThreshold: *threshold,
		GridRPBand:       gridBand,
		Points:           result.Points,
	})
	if err != nil {
		logger.Error().Err(err).Str("file", name).Msg("ingestion failed")
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		return 1
	}

	if err := printJSON(res); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
		return 1
	}
	return 0
}
