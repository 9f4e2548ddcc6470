package webserver

import (
	"errors"
	"html"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/indexer"
	"github.com/stake-plus/devhub-cache/src/store"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	maxSearchLen = 200
)

// Reads serves proposals and RFPs from the snapshot store.
type Reads struct {
	store     *store.Store
	syncer    Syncer
	sanitizer *bluemonday.Policy
	log       *zap.Logger
}

func NewReads(st *store.Store, syncer Syncer, log *zap.Logger) Reads {
	return Reads{
		store:     st,
		syncer:    syncer,
		sanitizer: bluemonday.StrictPolicy(),
		log:       log.Named("reads"),
	}
}

// refresh runs the freshness gate before any cached read. Only a caller
// whose own pass hit an unreadable edit gets an error response; anything else
// is logged and the cached data is served.
func (r Reads) refresh(c *gin.Context) bool {
	if r.syncer == nil {
		return true
	}
	res, err := r.syncer.Refresh(c.Request.Context())
	if err == nil {
		return true
	}
	if errors.Is(err, indexer.ErrAuthoritativeUnavailable) && !res.Shared {
		r.log.Error("refresh failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"err": "sync failed: contract state unavailable"})
		return false
	}
	r.log.Warn("refresh failed, serving cached data", zap.Bool("shared", res.Shared), zap.Error(err))
	return true
}

func parsePage(c *gin.Context) (store.Page, bool) {
	p := store.Page{Limit: defaultLimit, Order: store.OrderIDDesc}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"err": "limit must be a positive integer"})
			return p, false
		}
		p.Limit = min(n, maxLimit)
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"err": "offset must be a non-negative integer"})
			return p, false
		}
		p.Offset = n
	}
	if raw := c.Query("order"); raw != "" {
		switch raw {
		case store.OrderIDAsc, store.OrderIDDesc, store.OrderTsAsc, store.OrderTsDesc:
			p.Order = raw
		default:
			c.JSON(http.StatusBadRequest, gin.H{"err": "order must be one of id_asc, id_desc, ts_asc, ts_desc"})
			return p, false
		}
	}
	return p, true
}

func parseFilters(c *gin.Context, stageFilter func(string) (string, bool)) (store.Filters, bool) {
	f := store.Filters{
		AuthorID: strings.TrimSpace(c.Query("author_id")),
		Category: strings.TrimSpace(c.Query("category")),
	}
	for _, raw := range c.QueryArray("labels") {
		for _, label := range strings.Split(raw, ",") {
			if label = strings.TrimSpace(label); label != "" {
				f.Labels = append(f.Labels, label)
			}
		}
	}
	if stage := c.Query("stage"); stage != "" {
		// unknown stages do not filter
		if fragment, ok := stageFilter(stage); ok {
			f.Stage = fragment
		}
	}
	if raw := c.Query("block_timestamp"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"err": "block_timestamp must be an integer"})
			return f, false
		}
		f.After = &ts
	}
	return f, true
}

func (r Reads) searchInput(c *gin.Context) (string, bool) {
	input := r.sanitizer.Sanitize(c.Param("input"))
	input = strings.TrimSpace(html.UnescapeString(input))
	if input == "" || len(input) > maxSearchLen {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid search input"})
		return "", false
	}
	return input, true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid id"})
		return 0, false
	}
	return int64(id), true
}

func (r Reads) fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"err": "not found"})
		return
	}
	r.log.Error("query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
}

func (r Reads) ListProposals(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	filters, ok := parseFilters(c, devhub.ProposalStageFilter)
	if !ok || !r.refresh(c) {
		return
	}
	records, total, err := r.store.ListProposals(c.Request.Context(), filters, page)
	if err != nil {
		r.fail(c, err)
		return
	}
	respondCached(c, paginate(nonNil(records), total, page.Limit, page.Offset))
}

func (r Reads) SearchProposals(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	input, ok := r.searchInput(c)
	if !ok || !r.refresh(c) {
		return
	}
	records, total, err := r.store.SearchProposals(c.Request.Context(), input, page)
	if err != nil {
		r.fail(c, err)
		return
	}
	respondCached(c, paginate(nonNil(records), total, page.Limit, page.Offset))
}

func (r Reads) GetProposal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok || !r.refresh(c) {
		return
	}
	rec, err := r.store.GetProposal(c.Request.Context(), id)
	if err != nil {
		r.fail(c, err)
		return
	}
	respondCached(c, rec)
}

func (r Reads) ProposalSnapshots(c *gin.Context) {
	id, ok := parseID(c)
	if !ok || !r.refresh(c) {
		return
	}
	snaps, err := r.store.ProposalSnapshots(c.Request.Context(), id)
	if err != nil {
		r.fail(c, err)
		return
	}
	if len(snaps) == 0 {
		r.fail(c, store.ErrNotFound)
		return
	}
	respondCached(c, snaps)
}

func (r Reads) ListRFPs(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	filters, ok := parseFilters(c, devhub.RFPStageFilter)
	if !ok || !r.refresh(c) {
		return
	}
	records, total, err := r.store.ListRFPs(c.Request.Context(), filters, page)
	if err != nil {
		r.fail(c, err)
		return
	}
	respondCached(c, paginate(nonNil(records), total, page.Limit, page.Offset))
}

func (r Reads) SearchRFPs(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	input, ok := r.searchInput(c)
	if !ok || !r.refresh(c) {
		return
	}
	records, total, err := r.store.SearchRFPs(c.Request.Context(), input, page)
	if err != nil {
		r.fail(c, err)
		return
	}
	respondCached(c, paginate(nonNil(records), total, page.Limit, page.Offset))
}

func (r Reads) GetRFP(c *gin.Context) {
	id, ok := parseID(c)
	if !ok || !r.refresh(c) {
		return
	}
	rec, err := r.store.GetRFP(c.Request.Context(), id)
	if err != nil {
		r.fail(c, err)
		return
	}
	respondCached(c, rec)
}

func (r Reads) RFPSnapshots(c *gin.Context) {
	id, ok := parseID(c)
	if !ok || !r.refresh(c) {
		return
	}
	snaps, err := r.store.RFPSnapshots(c.Request.Context(), id)
	if err != nil {
		r.fail(c, err)
		return
	}
	if len(snaps) == 0 {
		r.fail(c, store.ErrNotFound)
		return
	}
	respondCached(c, snaps)
}

// nonNil keeps empty pages encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
