package postgres

import "time"

// Bar kinds stored in the archive.
const (
	KindMinute   = "minute"
	KindRangeATR = "range_atr"
)

// BarRecord represents a sealed bar stored in the database. Minute and
// Range-ATR bars share one table; the range-specific columns are zero for
// minute bars.
type BarRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Symbol string    `gorm:"type:text;not null;index:idx_bar_symbol;index:idx_symbol_kind_start,unique"`
	Kind   string    `gorm:"type:varchar(16);not null;index:idx_symbol_kind_start,unique"`
	Start  time.Time `gorm:"not null;index:idx_symbol_kind_start,unique"`

	Open  float64 `gorm:"type:numeric;not null"`
	High  float64 `gorm:"type:numeric;not null"`
	Low   float64 `gorm:"type:numeric;not null"`
	Close float64 `gorm:"type:numeric;not null"`

	Volume uint64 `gorm:"not null"`

	TickCount      int       `gorm:"not null;default:0"`
	ATRValue       float64   `gorm:"type:numeric"`
	RangeThreshold float64   `gorm:"type:numeric"`
	LastUpdate     time.Time `gorm:"index:idx_bar_last_update"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (BarRecord) TableName() string {
	return "bar_record"
}
