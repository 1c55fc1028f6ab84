package storage

import (
	"encoding/json"
	"time"
)

// Gorm models for the three collections. Ids are the domain keys: the
// candidate dedup key, the merged global key, and the rain_event_id.

type candidateModel struct {
	ID          string     `gorm:"column:id;type:text;primaryKey"`
	Source      string     `gorm:"column:source;type:text;not null;index"`
	EventDate   string     `gorm:"column:event_date;type:text;not null;index"`
	Country     string     `gorm:"column:country;type:text;not null"`
	City        string     `gorm:"column:city;type:text"`
	Latitude    *float64   `gorm:"column:latitude;type:double precision"`
	Longitude   *float64   `gorm:"column:longitude;type:double precision"`
	TimeFrom    *time.Time `gorm:"column:time_from;type:timestamptz"`
	TimeTo      *time.Time `gorm:"column:time_to;type:timestamptz"`
	Severity    string     `gorm:"column:severity;type:text"`
	Level       int        `gorm:"column:level;type:integer;not null;default:0"`
	Title       string     `gorm:"column:title;type:text"`
	Description string     `gorm:"column:description;type:text"`
	SourceURL   string     `gorm:"column:source_url;type:text"`
	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (candidateModel) TableName() string { return CollectionCandidates }

type mergedEventModel struct {
	ID           string          `gorm:"column:id;type:text;primaryKey"`
	EventDate    string          `gorm:"column:event_date;type:text;not null;index"`
	Country      string          `gorm:"column:country;type:text;not null"`
	City         string          `gorm:"column:city;type:text"`
	Latitude     *float64        `gorm:"column:latitude;type:double precision"`
	Longitude    *float64        `gorm:"column:longitude;type:double precision"`
	Severity     string          `gorm:"column:severity;type:text"`
	Level        int             `gorm:"column:level;type:integer;not null;default:0"`
	Sources      json.RawMessage `gorm:"column:sources;type:jsonb"`
	SourceCount  int             `gorm:"column:source_count;type:integer;not null;default:0"`
	Titles       json.RawMessage `gorm:"column:titles;type:jsonb"`
	Descriptions json.RawMessage `gorm:"column:descriptions;type:jsonb"`
	SourceURLs   json.RawMessage `gorm:"column:source_urls;type:jsonb"`
	Enriched     bool            `gorm:"column:enriched;type:boolean;not null;default:false"`
	EnrichedAt   *time.Time      `gorm:"column:enriched_at;type:timestamptz"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (mergedEventModel) TableName() string { return CollectionEvents }

type rainEventModel struct {
	ID          string    `gorm:"column:id;type:text;primaryKey"`
	RainEventID string    `gorm:"column:rain_event_id;type:text;not null;uniqueIndex"`
	Date        string    `gorm:"column:date;type:text;not null;index"`
	Country     string    `gorm:"column:country;type:text"`
	Province    string    `gorm:"column:province;type:text;not null;index"`
	City        string    `gorm:"column:city;type:text"`
	Longitude   float64   `gorm:"column:longitude;type:double precision;not null"`
	Latitude    float64   `gorm:"column:latitude;type:double precision;not null"`
	Value       float64   `gorm:"column:value;type:double precision;not null"`
	Threshold   float64   `gorm:"column:threshold;type:double precision;not null"`
	FileName    string    `gorm:"column:file_name;type:text;not null"`
	Seq         int       `gorm:"column:seq;type:integer;not null"`
	Searched    int       `gorm:"column:searched;type:integer;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (rainEventModel) TableName() string { return CollectionRainEvents }

func autoMigrateModels() []any {
	return []any{
		&candidateModel{},
		&mergedEventModel{},
		&rainEventModel{},
	}
}
