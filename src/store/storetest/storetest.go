// Package storetest opens throwaway in-memory stores for tests.
package storetest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stake-plus/devhub-cache/src/store"
)

var seq atomic.Int64

// New returns a migrated store backed by a private in-memory SQLite database.
func New(t testing.TB) *store.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("storetest: open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("storetest: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("storetest: migrate: %v", err)
	}
	return st
}

func Ptr[T any](v T) *T { return &v }
