package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/store"
)

// Admin serves the cursor overrides and re-sync tooling.
type Admin struct {
	store  *store.Store
	syncer Syncer
	log    *zap.Logger
}

func NewAdmin(st *store.Store, syncer Syncer, log *zap.Logger) Admin {
	return Admin{store: st, syncer: syncer, log: log.Named("admin")}
}

func (a Admin) audit(c *gin.Context, action string, fields ...zap.Field) {
	a.log.Warn(action, append(fields, zap.String("admin", c.GetString("sub")))...)
}

func (a Admin) Cursor(c *gin.Context) {
	cur, err := a.syncer.Tracker().Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cur)
}

func (a Admin) ResetCursor(c *gin.Context) {
	cur, err := a.syncer.Tracker().Reset(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	a.audit(c, "cursor reset")
	c.JSON(http.StatusOK, cur)
}

func (a Admin) SetCursor(c *gin.Context) {
	var req struct {
		Cursor *string `json:"cursor" binding:"required,max=255"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	cur, err := a.syncer.Tracker().SetCursor(c.Request.Context(), *req.Cursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	a.audit(c, "cursor set", zap.String("cursor", *req.Cursor))
	c.JSON(http.StatusOK, cur)
}

func (a Admin) SetBlockHeight(c *gin.Context) {
	var req struct {
		BlockHeight *int64 `json:"block_height" binding:"required,min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	cur, err := a.syncer.Tracker().SetBlockHeight(c.Request.Context(), *req.BlockHeight)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	a.audit(c, "cursor block height set", zap.Int64("block_height", *req.BlockHeight))
	c.JSON(http.StatusOK, cur)
}

func (a Admin) SetTimestamp(c *gin.Context) {
	var req struct {
		Timestamp *int64 `json:"timestamp" binding:"required,min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	cur, err := a.syncer.Tracker().SetTimestamp(c.Request.Context(), *req.Timestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	a.audit(c, "cursor timestamp set", zap.Int64("timestamp", *req.Timestamp))
	c.JSON(http.StatusOK, cur)
}

// Sync forces a pass regardless of the freshness gate.
func (a Admin) Sync(c *gin.Context) {
	a.audit(c, "forced sync")
	res, err := a.syncer.SyncOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error(), "pass": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a Admin) DeleteProposalSnapshots(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	n, err := a.store.DeleteProposalSnapshots(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	a.audit(c, "proposal snapshots deleted", zap.Int64("proposal_id", id), zap.Int64("deleted", n))
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (a Admin) DeleteRFPSnapshots(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	n, err := a.store.DeleteRFPSnapshots(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	a.audit(c, "rfp snapshots deleted", zap.Int64("rfp_id", id), zap.Int64("deleted", n))
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (a Admin) DeleteAllSnapshots(c *gin.Context) {
	n, err := a.store.DeleteAllSnapshots(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	a.audit(c, "all snapshots deleted", zap.Int64("deleted", n))
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
