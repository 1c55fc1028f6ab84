// Package payloadschema validates the payload returned by the external
// interpolation collaborator before any of it reaches the ingestion
// pipeline. Per-band thresholds travel as an explicit band-keyed map,
// never as dynamically named fields.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed interpolation_result.schema.json
var interpolationResultSchemaJSON string

const (
	ThresholdModeFixed = "fixed"
	ThresholdModeGrid  = "grid"
)

// InterpolationResult is the whole-file batch answer of the
// interpolation service. It is forwarded verbatim to API callers, so it
// keeps the collaborator's field names.
type InterpolationResult struct {
	Success bool                 `json:"success"`
	Summary InterpolationSummary `json:"summary"`
	Points  []InterpolationPoint `json:"points"`
	Error   *string              `json:"error,omitempty"`
}

type InterpolationSummary struct {
	ValueThreshold  float64 `json:"value_threshold"`
	ThresholdMode   string  `json:"threshold_mode"`
	GridRPForFilter *string `json:"grid_rp_for_filter,omitempty"`
	InputFile       *string `json:"input_file,omitempty"`
	PointCount      *int    `json:"point_count,omitempty"`
}

// InterpolationPoint is one attributed measurement. Thresholds maps a
// return-period band id (e.g. "005y") to that band's threshold at the
// point's grid cell.
type InterpolationPoint struct {
	Longitude        float64            `json:"longitude"`
	Latitude         float64            `json:"latitude"`
	Value            float64            `json:"value"`
	CountryName      *string            `json:"country_name,omitempty"`
	ProvinceName     *string            `json:"province_name,omitempty"`
	CityName         *string            `json:"city_name,omitempty"`
	Thresholds       map[string]float64 `json:"thresholds,omitempty"`
	ReturnPeriodBand *string            `json:"return_period_band,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateInterpolationResult checks a raw interpolation payload against
// the embedded JSON schema plus the semantic rules the schema cannot
// express, and decodes it into the typed result.
func ValidateInterpolationResult(payload json.RawMessage) (*InterpolationResult, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var result InterpolationResult
	if err := json.Unmarshal(normalized, &result); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("interpolation_result.schema.json", strings.NewReader(interpolationResultSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("interpolation_result.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(result *InterpolationResult) error {
	if result == nil {
		return fmt.Errorf("payload is nil")
	}

	mode := strings.TrimSpace(result.Summary.ThresholdMode)
	if mode != ThresholdModeFixed && mode != ThresholdModeGrid {
		return fmt.Errorf("summary.threshold_mode must be %q or %q", ThresholdModeFixed, ThresholdModeGrid)
	}
	if mode == ThresholdModeGrid && result.Summary.GridRPForFilter != nil {
		if strings.TrimSpace(*result.Summary.GridRPForFilter) == "" {
			return fmt.Errorf("summary.grid_rp_for_filter must not be blank")
		}
	}

	for i, point := range result.Points {
		for band, threshold := range point.Thresholds {
			if strings.TrimSpace(band) == "" {
				return fmt.Errorf("points[%d] has a threshold with an empty band id", i)
			}
			if threshold < 0 {
				return fmt.Errorf("points[%d] threshold %q must not be negative", i, band)
			}
		}
		if point.ReturnPeriodBand != nil && strings.TrimSpace(*point.ReturnPeriodBand) == "" {
			return fmt.Errorf("points[%d].return_period_band must not be blank", i)
		}
	}

	return nil
}
