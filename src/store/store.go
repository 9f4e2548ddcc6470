package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested entity or snapshot does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the snapshot store. A Store obtained from Transaction is bound to
// that transaction.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for settings and health checks.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates every table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("store: auto-migrate: %w", err)
	}
	return nil
}

// Recreate drops the cache tables and migrates again. Everything but the
// settings can be rebuilt from the chain by a fresh sync.
func (s *Store) Recreate(log *zap.Logger) error {
	log.Warn("store: dropping and recreating cache tables")
	if err := s.db.Migrator().DropTable(&SyncCursor{}, &RFPSnapshot{}, &RFP{}, &ProposalSnapshot{}, &Proposal{}); err != nil {
		return fmt.Errorf("store: drop tables: %w", err)
	}
	return s.Migrate()
}

// MigrateOrRecreate mirrors the operator workflow: try a plain migration and
// fall back to a rebuild when the schema drifted beyond what AutoMigrate can fix.
func (s *Store) MigrateOrRecreate(log *zap.Logger) error {
	err := s.Migrate()
	if err == nil {
		return nil
	}
	log.Warn("store: migrate failed, recreating", zap.Error(err))
	return s.Recreate(log)
}

// Transaction runs fn inside one storage transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
