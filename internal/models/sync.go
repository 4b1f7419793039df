package models

import "time"

// SyncStatus is the outcome recorded for a source table after a sync attempt.
type SyncStatus string

const (
	SyncStatusOK    SyncStatus = "ok"
	SyncStatusIdle  SyncStatus = "idle"
	SyncStatusError SyncStatus = "error"
)

// Epoch is the watermark assumed for a table that has never been synced.
var Epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// TableConfig describes one source table replicated into the warehouse.
type TableConfig struct {
	Source          string   `json:"source" mapstructure:"source" validate:"required"`
	Target          string   `json:"target" mapstructure:"target" validate:"required"`
	PK              []string `json:"pk" mapstructure:"pk" validate:"required,min=1,dive,required"`
	WatermarkColumn string   `json:"watermark_column" mapstructure:"watermark_column" validate:"required"`
	BatchSize       int      `json:"batch_size" mapstructure:"batch_size" validate:"gte=0"`
	// MaxTieGroup bounds how many rows sharing the batch's last watermark value are pulled in
	// to complete it. Zero means DefaultTieGroupFactor times BatchSize.
	MaxTieGroup int   `json:"max_tie_group,omitempty" mapstructure:"max_tie_group" validate:"gte=0"`
	Enabled     *bool `json:"enabled,omitempty" mapstructure:"enabled"`
}

// DefaultTieGroupFactor sizes the tie group limit of tables that do not set one.
const DefaultTieGroupFactor = 100

// TieGroupLimit returns the resolved MaxTieGroup.
func (c TableConfig) TieGroupLimit() int {
	if c.MaxTieGroup > 0 {
		return c.MaxTieGroup
	}
	return DefaultTieGroupFactor * c.BatchSize
}

// IsEnabled reports whether the table takes part in sync runs. Tables are enabled unless
// explicitly switched off.
func (c TableConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SyncWatermark is the persisted sync state of one source table.
type SyncWatermark struct {
	SourceTable   string     `json:"source_table" db:"source_table"`
	LastWatermark time.Time  `json:"last_watermark" db:"last_watermark"`
	LastRun       time.Time  `json:"last_run" db:"last_run"`
	RowsProcessed int        `json:"rows_processed" db:"rows_synced"`
	Status        SyncStatus `json:"status" db:"status"`
	LastError     *string    `json:"last_error,omitempty" db:"error_message"`
}

// WatermarkUpdate is the input to a watermark write.
type WatermarkUpdate struct {
	Table         string
	Watermark     time.Time
	RowsProcessed int
	Status        SyncStatus
	Error         string
}
