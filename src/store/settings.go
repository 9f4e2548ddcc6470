package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// ActiveSettings returns name -> value for every active settings row.
func (s *Store) ActiveSettings(ctx context.Context) (map[string]string, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: load settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Value
	}
	return out, nil
}

// PutSetting creates or replaces an active setting.
func (s *Store) PutSetting(ctx context.Context, name, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "active"}),
	}).Create(&Setting{Name: name, Value: value, Active: true}).Error
	if err != nil {
		return fmt.Errorf("store: put setting %s: %w", name, err)
	}
	return nil
}
