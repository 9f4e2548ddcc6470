package data

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/store"
)

func TestDetectDialect(t *testing.T) {
	assert.Equal(t, MySQL, DetectDialect("dev:test@tcp(localhost:3306)/devhub"))
	assert.Equal(t, Postgres, DetectDialect("postgres://u:p@localhost:5432/devhub?sslmode=disable"))
	assert.Equal(t, Postgres, DetectDialect("host=localhost user=u dbname=devhub"))
	assert.Equal(t, SQLite, DetectDialect("sqlite:cache.db"))
	assert.Equal(t, SQLite, DetectDialect("file:test?mode=memory"))
}

func TestMySQLDSNParams(t *testing.T) {
	got := mysqlDSN("dev:test@tcp(localhost:3306)/devhub")
	assert.Equal(t, "dev:test@tcp(localhost:3306)/devhub?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci", got)

	got = mysqlDSN("dev:test@tcp(localhost:3306)/devhub?charset=latin1&parseTime=false")
	assert.Equal(t, "dev:test@tcp(localhost:3306)/devhub?charset=latin1&parseTime=false", got)
}

func TestSettingsCache(t *testing.T) {
	ctx := context.Background()
	db, err := ConnectDB("file:settings_cache?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	st := store.New(db)
	require.NoError(t, st.Migrate())
	require.NoError(t, st.PutSetting(ctx, "rpc_url", "https://rpc.example"))

	require.NoError(t, LoadSettings(ctx, st))
	assert.Equal(t, "https://rpc.example", GetSetting("rpc_url"))
	assert.Equal(t, "", GetSetting("missing"))
	assert.Equal(t, map[string]string{"rpc_url": "https://rpc.example"}, Settings())
}

func TestPublishSync(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, PublishSync(context.Background(), rdb, 100, map[string]interface{}{"processed": 3}))
	entries, err := rdb.XRange(context.Background(), StreamSync, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "3", entries[0].Values["processed"])
}
