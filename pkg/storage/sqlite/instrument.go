package sqlite

import (
	"context"
	"time"

	"barcollector/pkg/kite"

	"gorm.io/gorm"
)

// InstrumentRecord is one cached row of the broker's instrument dump.
type InstrumentRecord struct {
	ID uint `gorm:"primaryKey"`

	Token          uint32 `gorm:"not null;uniqueIndex:idx_instrument_token"`
	TradingSymbol  string `gorm:"type:text;not null;index:idx_instrument_symbol"`
	Name           string `gorm:"type:text"`
	Expiry         string `gorm:"type:text"`
	Strike         float64
	TickSize       float64 `gorm:"not null"`
	LotSize        uint32
	InstrumentType string `gorm:"type:varchar(8)"`
	Segment        string `gorm:"type:varchar(16)"`
	Exchange       string `gorm:"type:varchar(8)"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (InstrumentRecord) TableName() string {
	return "instrument_record"
}

// ToInstrumentRecord converts a dump row into its cache representation.
func ToInstrumentRecord(in kite.Instrument) InstrumentRecord {
	return InstrumentRecord{
		Token:          in.Token,
		TradingSymbol:  in.TradingSymbol,
		Name:           in.Name,
		Expiry:         in.Expiry,
		Strike:         in.Strike,
		TickSize:       in.TickSize,
		LotSize:        in.LotSize,
		InstrumentType: in.InstrumentType,
		Segment:        in.Segment,
		Exchange:       in.Exchange,
	}
}

// ToInstrument converts a cached record back to the API representation.
func (r InstrumentRecord) ToInstrument() kite.Instrument {
	return kite.Instrument{
		Token:          r.Token,
		TradingSymbol:  r.TradingSymbol,
		Name:           r.Name,
		Expiry:         r.Expiry,
		Strike:         r.Strike,
		TickSize:       r.TickSize,
		LotSize:        r.LotSize,
		InstrumentType: r.InstrumentType,
		Segment:        r.Segment,
		Exchange:       r.Exchange,
	}
}

// ReplaceAllInstruments swaps the cached dump for a fresh one in a single
// transaction.
func (c *SqliteClient) ReplaceAllInstruments(ctx context.Context, instruments []kite.Instrument) error {
	records := make([]InstrumentRecord, 0, len(instruments))
	for _, in := range instruments {
		records = append(records, ToInstrumentRecord(in))
	}

	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&InstrumentRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 500).Error
	})
}

// GetAllInstruments loads the full cached dump.
func (c *SqliteClient) GetAllInstruments(ctx context.Context) ([]kite.Instrument, error) {
	var records []InstrumentRecord
	if err := c.DB.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]kite.Instrument, 0, len(records))
	for _, r := range records {
		out = append(out, r.ToInstrument())
	}
	return out, nil
}

// CountInstruments returns the number of cached instruments.
func (c *SqliteClient) CountInstruments(ctx context.Context) (int64, error) {
	var count int64
	err := c.DB.WithContext(ctx).Model(&InstrumentRecord{}).Count(&count).Error
	return count, err
}

// LastRefreshedAt reports when the cache was last replaced. The zero time
// means the cache is empty.
func (c *SqliteClient) LastRefreshedAt(ctx context.Context) (time.Time, error) {
	var record InstrumentRecord
	err := c.DB.WithContext(ctx).Order("recorded_at desc").Limit(1).Find(&record).Error
	if err != nil {
		return time.Time{}, err
	}
	return record.RecordedAt, nil
}
