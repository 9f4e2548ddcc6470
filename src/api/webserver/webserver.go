package webserver

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/config"
	"github.com/stake-plus/devhub-cache/src/indexer"
	"github.com/stake-plus/devhub-cache/src/metrics"
	"github.com/stake-plus/devhub-cache/src/store"
)

// Syncer is the part of the indexer the API drives.
type Syncer interface {
	Refresh(ctx context.Context) (indexer.RefreshResult, error)
	SyncOnce(ctx context.Context) (indexer.PassResult, error)
	Tracker() *indexer.Tracker
}

type Deps struct {
	Store  *store.Store
	Syncer Syncer
	Log    *zap.Logger
}

// New builds the gin engine with every route mounted. ctx bounds background
// helpers such as the rate limiter's cleanup loop.
func New(ctx context.Context, cfg config.Config, deps Deps) *gin.Engine {
	g := gin.New()
	// route on the raw path so an escaped "/" stays inside :input
	g.UseRawPath = true
	g.UnescapePathValues = true
	g.Use(requestLogger(deps.Log), gin.Recovery())
	attachRoutes(ctx, g, cfg, deps)
	return g
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Info("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}
