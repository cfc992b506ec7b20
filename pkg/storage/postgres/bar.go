package postgres

import (
	"context"
	"fmt"
	"time"

	"barcollector/internal/bars"

	"gorm.io/gorm/clause"
)

// InsertBar archives one sealed bar. Re-inserting the same (symbol, kind,
// start) is reported as a duplicate error and leaves the stored row intact.
func (p *PostgresClient) InsertBar(ctx context.Context, record *BarRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "kind"},
			{Name: "start"},
		},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return fmt.Errorf(
			"duplicate bar skipped: symbol=%s kind=%s start=%s",
			record.Symbol,
			record.Kind,
			record.Start.Format(time.RFC3339),
		)
	}

	return nil
}

func (p *PostgresClient) GetBar(ctx context.Context, symbol, kind string, start time.Time) (*BarRecord, error) {
	var bar BarRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ? AND kind = ? AND start = ?", symbol, kind, start).
		First(&bar).Error

	if err != nil {
		return nil, err
	}
	return &bar, nil
}

func (p *PostgresClient) GetBarsBySymbol(ctx context.Context, symbol, kind string) ([]BarRecord, error) {
	var records []BarRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ? AND kind = ?", symbol, kind).
		Order("start asc").
		Find(&records).Error
	return records, err
}

func (p *PostgresClient) DeleteOldBars(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("start < ?", before).
		Delete(&BarRecord{}).Error
}

// FromMinuteBar converts a sealed minute bar into its archive record.
func FromMinuteBar(b bars.OHLCBar) *BarRecord {
	return &BarRecord{
		Symbol: b.Symbol,
		Kind:   KindMinute,
		Start:  b.Timestamp,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// FromRangeBar converts a sealed Range-ATR bar into its archive record.
func FromRangeBar(b bars.RangeATRBar) *BarRecord {
	return &BarRecord{
		Symbol:         b.Symbol,
		Kind:           KindRangeATR,
		Start:          b.BarStartTime,
		Open:           b.Open,
		High:           b.High,
		Low:            b.Low,
		Close:          b.Close,
		Volume:         b.Volume,
		TickCount:      b.TickCount,
		ATRValue:       b.ATRValue,
		RangeThreshold: b.RangeThreshold,
		LastUpdate:     b.LastUpdateTime,
	}
}
