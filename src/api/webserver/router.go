package webserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stake-plus/devhub-cache/src/config"
)

func attachRoutes(ctx context.Context, r *gin.Engine, cfg config.Config, deps Deps) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.API.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders:    []string{"Content-Length", "ETag"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/robots.txt", func(c *gin.Context) {
		c.String(http.StatusOK, "User-agent: *\nDisallow: /\n")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		if err := deps.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"err": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	reads := NewReads(deps.Store, deps.Syncer, deps.Log)

	public := r.Group("/")
	if cfg.API.RateLimit > 0 {
		public.Use(RateLimitMiddleware(NewRateLimiter(ctx, cfg.API.RateLimit, time.Minute)))
	}
	{
		public.GET("/proposals", reads.ListProposals)
		public.GET("/proposals/search/:input", reads.SearchProposals)
		public.GET("/proposal/:id", reads.GetProposal)
		public.GET("/proposal/:id/snapshots", reads.ProposalSnapshots)

		public.GET("/rfps", reads.ListRFPs)
		public.GET("/rfps/search/:input", reads.SearchRFPs)
		public.GET("/rfp/:id", reads.GetRFP)
		public.GET("/rfp/:id/snapshots", reads.RFPSnapshots)
	}

	// Admin routes exist only with a signing secret.
	if !cfg.AdminEnabled() {
		deps.Log.Info("JWT_SECRET not set, admin routes disabled")
		return
	}
	admin := r.Group("/admin")
	admin.Use(JWTMiddleware([]byte(cfg.JWTSecret)))
	{
		adminH := NewAdmin(deps.Store, deps.Syncer, deps.Log)
		admin.GET("/cursor", adminH.Cursor)
		admin.POST("/cursor/reset", adminH.ResetCursor)
		admin.PUT("/cursor/cursor", adminH.SetCursor)
		admin.PUT("/cursor/block-height", adminH.SetBlockHeight)
		admin.PUT("/cursor/timestamp", adminH.SetTimestamp)
		admin.POST("/sync", adminH.Sync)
		admin.DELETE("/proposal/:id/snapshots", adminH.DeleteProposalSnapshots)
		admin.DELETE("/rfp/:id/snapshots", adminH.DeleteRFPSnapshots)
		admin.DELETE("/snapshots", adminH.DeleteAllSnapshots)
	}
}
