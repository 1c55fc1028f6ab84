package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"FW_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"FW_DB_MAX_CONNS" default:"8"`

	// Matching engine thresholds.
	MatchMaxDistanceKm  float64 `envconfig:"MATCH_MAX_DISTANCE_KM" default:"50"`
	MatchMaxTimeDiffHrs float64 `envconfig:"MATCH_MAX_TIME_DIFF_HOURS" default:"12"`

	// Ingestion pipeline.
	IngestCoordPrecision int    `envconfig:"INGEST_COORD_PRECISION" default:"6"`
	IngestPageSize       int    `envconfig:"INGEST_PAGE_SIZE" default:"500"`
	GridRPBand           string `envconfig:"GRID_RP_BAND" default:"005y"`

	// Interpolation collaborator.
	InterpolationURL        string `envconfig:"INTERPOLATION_URL" default:"http://127.0.0.1:8750/interpolate"`
	InterpolationTimeoutSec int    `envconfig:"INTERPOLATION_TIMEOUT_SECONDS" default:"120"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("FW_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("FW_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("FW_DB_MIN_CONNS (%d) cannot exceed FW_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.MatchMaxDistanceKm <= 0 {
		return fmt.Errorf("MATCH_MAX_DISTANCE_KM must be > 0")
	}
	if c.MatchMaxTimeDiffHrs <= 0 {
		return fmt.Errorf("MATCH_MAX_TIME_DIFF_HOURS must be > 0")
	}
	if c.IngestCoordPrecision < 0 || c.IngestCoordPrecision > 10 {
		return fmt.Errorf("INGEST_COORD_PRECISION must be between 0 and 10")
	}
	if c.IngestPageSize < 1 {
		return fmt.Errorf("INGEST_PAGE_SIZE must be >= 1")
	}
	if strings.TrimSpace(c.GridRPBand) == "" {
		return fmt.Errorf("GRID_RP_BAND is required")
	}
	if c.InterpolationTimeoutSec < 1 {
		return fmt.Errorf("INTERPOLATION_TIMEOUT_SECONDS must be >= 1")
	}
	return nil
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
