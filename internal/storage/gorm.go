package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

// Gorm is the Postgres-backed Store. Collections map one-to-one onto the
// tables declared in models.go; rows travel as maps so the adapter stays
// generic across collections.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

// jsonb-backed string-array columns, decoded back to []string on read.
var arrayFields = map[string]map[string]bool{
	CollectionEvents: {
		"sources":      true,
		"titles":       true,
		"descriptions": true,
		"source_urls":  true,
	},
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NewGorm migrates the collection tables and returns the adapter. The
// *gorm.DB must be opened with TranslateError so unique violations
// surface as gorm.ErrDuplicatedKey.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is nil")
	}
	if err := db.AutoMigrate(autoMigrateModels()...); err != nil {
		return nil, fmt.Errorf("auto-migrate collections: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Get(ctx context.Context, collection, id string) (Record, error) {
	row := map[string]any{}
	err := g.db.WithContext(ctx).Table(collection).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decodeRow(collection, row), nil
}

func (g *Gorm) Find(ctx context.Context, collection string, q Query) ([]Record, error) {
	tx, err := g.applyFilter(g.db.WithContext(ctx).Table(collection), q.Filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	tx, err = applySort(tx, q.Sort)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeRow(collection, row))
	}
	return out, nil
}

func (g *Gorm) Count(ctx context.Context, collection, filter string) (int64, error) {
	tx, err := g.applyFilter(g.db.WithContext(ctx).Table(collection), filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return total, nil
}

func (g *Gorm) Create(ctx context.Context, collection string, rec Record) error {
	id := rec.ID()
	if id == "" {
		return fmt.Errorf("create in %s: record id is required", collection)
	}
	row, err := encodeRow(collection, rec)
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	err = g.db.WithContext(ctx).Table(collection).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("create %s/%s: %w", collection, id, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return nil
}

func (g *Gorm) CreateBatch(ctx context.Context, collection string, recs []Record) []error {
	results := make([]error, len(recs))
	for i, rec := range recs {
		results[i] = g.Create(ctx, collection, rec)
	}
	return results
}

func (g *Gorm) Update(ctx context.Context, collection, id string, fields Record) error {
	row, err := encodeRow(collection, fields)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	delete(row, "id")
	if len(row) == 0 {
		return nil
	}

	res := g.db.WithContext(ctx).Table(collection).Where("id = ?", id).Updates(row)
	if res.Error != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// applyFilter compiles the filter expression into a parameterized WHERE
// chain. Field names are validated so only column identifiers reach SQL.
func (g *Gorm) applyFilter(tx *gorm.DB, expr string) (*gorm.DB, error) {
	filter, err := ParseFilter(expr)
	if err != nil {
		return nil, err
	}
	for _, c := range filter {
		if !identRe.MatchString(c.Field) {
			return nil, fmt.Errorf("bad filter field %q", c.Field)
		}
		switch c.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
			tx = tx.Where(fmt.Sprintf("%s %s ?", c.Field, c.Op), c.Value)
		default:
			return nil, fmt.Errorf("bad filter operator %q", c.Op)
		}
	}
	return tx, nil
}

func applySort(tx *gorm.DB, sortExpr string) (*gorm.DB, error) {
	for _, f := range parseSort(sortExpr) {
		if !identRe.MatchString(f.name) {
			return nil, fmt.Errorf("bad sort field %q", f.name)
		}
		dir := "ASC"
		if f.desc {
			dir = "DESC"
		}
		tx = tx.Order(f.name + " " + dir)
	}
	return tx, nil
}

// encodeRow prepares a record for SQL: string slices destined for jsonb
// columns are marshaled to raw JSON.
func encodeRow(collection string, rec Record) (map[string]any, error) {
	row := make(map[string]any, len(rec))
	for k, v := range rec {
		if s, ok := v.([]string); ok {
			raw, err := json.Marshal(s)
			if err != nil {
				return nil, fmt.Errorf("marshal field %q: %w", k, err)
			}
			row[k] = json.RawMessage(raw)
			continue
		}
		row[k] = v
	}
	return row, nil
}

// decodeRow turns a SQL row back into a Record, rehydrating jsonb array
// columns into []string.
func decodeRow(collection string, row map[string]any) Record {
	rec := make(Record, len(row))
	arrays := arrayFields[collection]
	for k, v := range row {
		if arrays[k] {
			if decoded, ok := decodeStringArray(v); ok {
				rec[k] = decoded
				continue
			}
		}
		rec[k] = v
	}
	return rec
}

func decodeStringArray(v any) ([]string, bool) {
	var raw []byte
	switch value := v.(type) {
	case []byte:
		raw = value
	case string:
		raw = []byte(value)
	case []string:
		return value, true
	default:
		return nil, false
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []string{}, true
	}
	var out []string
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, false
	}
	return out, true
}
