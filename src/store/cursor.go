package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const cursorRowID = 1

// LoadCursor returns the stored watermark, or the zero watermark when none
// has been written yet.
func (s *Store) LoadCursor(ctx context.Context) (SyncCursor, error) {
	var c SyncCursor
	err := s.db.WithContext(ctx).Where("id = ?", cursorRowID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SyncCursor{ID: cursorRowID}, nil
	}
	if err != nil {
		return SyncCursor{}, fmt.Errorf("store: load cursor: %w", err)
	}
	return c, nil
}

// SaveCursor replaces the singleton watermark row.
func (s *Store) SaveCursor(ctx context.Context, c SyncCursor) error {
	c.ID = cursorRowID
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"after_date", "after_block", "cursor"}),
	}).Create(&c).Error
	if err != nil {
		return fmt.Errorf("store: save cursor: %w", err)
	}
	return nil
}
