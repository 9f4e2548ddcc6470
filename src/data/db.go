package data

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialect names a supported database backend.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DetectDialect picks the backend from the DSN shape. Plain go-sql-driver
// DSNs ("user:pass@tcp(host)/db") are MySQL.
func DetectDialect(dsn string) Dialect {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"),
		strings.Contains(dsn, "host=") && strings.Contains(dsn, "dbname="):
		return Postgres
	case strings.HasPrefix(dsn, "sqlite:"), strings.HasPrefix(dsn, "file:"),
		strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return SQLite
	default:
		return MySQL
	}
}

// ConnectDB opens a gorm DB for dsn with sane defaults. gorm's own logging is
// routed into log at warn level.
func ConnectDB(dsn string, log *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("data: empty database DSN")
	}

	gormLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{SlowThreshold: time.Second, LogLevel: logger.Warn, IgnoreRecordNotFoundError: true, Colorful: false},
	)
	cfg := &gorm.Config{Logger: gormLogger}

	var (
		db  *gorm.DB
		err error
	)
	switch DetectDialect(dsn) {
	case Postgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case SQLite:
		db, err = gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), cfg)
	default:
		db, err = gorm.Open(mysql.Open(mysqlDSN(dsn)), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("data: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("data: database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	if DetectDialect(dsn) == SQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func mysqlDSN(dsn string) string {
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}
	return dsn
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}
