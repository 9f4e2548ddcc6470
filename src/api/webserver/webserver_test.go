package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/config"
	"github.com/stake-plus/devhub-cache/src/indexer"
	"github.com/stake-plus/devhub-cache/src/store"
	"github.com/stake-plus/devhub-cache/src/store/storetest"
)

const testSecret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

type fakeSyncer struct {
	mu         sync.Mutex
	tracker    *indexer.Tracker
	refreshErr error
	shared     bool
	refreshes  int
	syncs      int
}

func (f *fakeSyncer) Refresh(context.Context) (indexer.RefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return indexer.RefreshResult{Ran: true, Shared: f.shared}, f.refreshErr
}

func (f *fakeSyncer) SyncOnce(context.Context) (indexer.PassResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return indexer.PassResult{ID: "pass-1", Processed: 3}, nil
}

func (f *fakeSyncer) Tracker() *indexer.Tracker { return f.tracker }

type fixture struct {
	st     *store.Store
	syncer *fakeSyncer
	engine *gin.Engine
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	st := storetest.New(t)
	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.API.RateLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}
	syncer := &fakeSyncer{tracker: indexer.NewTracker(st, zap.NewNop())}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	engine := New(ctx, cfg, Deps{Store: st, Syncer: syncer, Log: zap.NewNop()})
	return &fixture{st: st, syncer: syncer, engine: engine}
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func adminAuth(t *testing.T) []string {
	tok, err := IssueAdminToken([]byte(testSecret), "ops", time.Hour)
	require.NoError(t, err)
	return []string{"Authorization", "Bearer " + tok}
}

func seedProposal(t *testing.T, st *store.Store, id, ts int64, name, stage string, labels ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertProposal(ctx, id, fmt.Sprintf("author%d.near", id)))
	require.NoError(t, st.UpsertProposalSnapshot(ctx, &store.ProposalSnapshot{
		ProposalID:      id,
		Ts:              ts,
		BlockHeight:     ts,
		Labels:          store.StringList(labels),
		LinkedProposals: store.IDList{},
		Name:            storetest.Ptr(name),
		Summary:         storetest.Ptr("summary"),
		Description:     storetest.Ptr("description"),
		Category:        storetest.Ptr("Tooling"),
		Stage:           stage,
	}))
}

func seedRFP(t *testing.T, st *store.Store, id, ts int64, name string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertRFP(ctx, id, "moderator.near"))
	require.NoError(t, st.UpsertRFPSnapshot(ctx, &store.RFPSnapshot{
		RFPID:           id,
		Ts:              ts,
		Labels:          store.StringList{},
		LinkedProposals: store.IDList{},
		Name:            storetest.Ptr(name),
		Stage:           "ACCEPTING_SUBMISSIONS",
	}))
}

func decodePage(t *testing.T, w *httptest.ResponseRecorder) (PaginatedResponse, []map[string]any) {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		PaginatedResponse
		Records []map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	return page.PaginatedResponse, page.Records
}

func TestListProposalsPagination(t *testing.T) {
	f := newFixture(t, nil)
	for i := int64(1); i <= 25; i++ {
		seedProposal(t, f.st, i, i*100, fmt.Sprintf("p%d", i), "REVIEW")
	}

	page, records := decodePage(t, f.do("GET", "/proposals?limit=10&offset=10&order=id_asc", ""))
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, int64(25), page.TotalRecords)
	require.Len(t, records, 10)
	assert.Equal(t, float64(11), records[0]["id"])
	assert.Equal(t, 1, f.syncer.refreshes)

	page, _ = decodePage(t, f.do("GET", "/proposals?limit=1000", ""))
	assert.Equal(t, maxLimit, page.Limit)

	page, records = decodePage(t, f.do("GET", "/proposals", ""))
	assert.Equal(t, defaultLimit, page.Limit)
	assert.Equal(t, float64(25), records[0]["id"])

	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/proposals?order=name", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/proposals?limit=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/proposals?block_timestamp=x", "").Code)
}

func TestListProposalsFilters(t *testing.T) {
	f := newFixture(t, nil)
	seedProposal(t, f.st, 1, 100, "one", "APPROVED_CONDITIONALLY", "infra")
	seedProposal(t, f.st, 2, 200, "two", "REVIEW", "docs")
	seedProposal(t, f.st, 3, 300, "three", "PAYMENT_PROCESSING", "infra", "docs")

	_, records := decodePage(t, f.do("GET", "/proposals?stage=conditional", ""))
	require.Len(t, records, 1)
	assert.Equal(t, float64(1), records[0]["id"])

	_, records = decodePage(t, f.do("GET", "/proposals?stage=not-a-stage", ""))
	assert.Len(t, records, 3)

	_, records = decodePage(t, f.do("GET", "/proposals?labels=docs", ""))
	assert.Len(t, records, 2)

	_, records = decodePage(t, f.do("GET", "/proposals?block_timestamp=200", ""))
	require.Len(t, records, 1)
	assert.Equal(t, float64(3), records[0]["id"])

	_, records = decodePage(t, f.do("GET", "/proposals?author_id=author2.near", ""))
	require.Len(t, records, 1)
}

func TestSearchProposals(t *testing.T) {
	f := newFixture(t, nil)
	seedProposal(t, f.st, 1, 100, "Indexer work", "REVIEW")
	seedProposal(t, f.st, 2, 200, "Docs sprint", "REVIEW")

	_, records := decodePage(t, f.do("GET", "/proposals/search/INDEXER", ""))
	require.Len(t, records, 1)
	assert.Equal(t, float64(1), records[0]["id"])

	_, records = decodePage(t, f.do("GET", "/proposals/search/2", ""))
	require.Len(t, records, 1)
	assert.Equal(t, "Docs sprint", records[0]["name"])

	// markup is stripped before matching
	_, records = decodePage(t, f.do("GET", "/proposals/search/%3Cb%3Edocs%3C%2Fb%3E", ""))
	assert.Len(t, records, 1)

	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/proposals/search/%3Cscript%3E%3C%2Fscript%3E", "").Code)

	// an escaped slash stays part of the input
	seedProposal(t, f.st, 3, 300, "CI/CD pipeline", "REVIEW")
	_, records = decodePage(t, f.do("GET", "/proposals/search/ci%2Fcd", ""))
	require.Len(t, records, 1)
	assert.Equal(t, float64(3), records[0]["id"])
}

func TestGetProposalAndSnapshots(t *testing.T) {
	f := newFixture(t, nil)
	seedProposal(t, f.st, 4, 100, "old", "DRAFT")
	seedProposal(t, f.st, 4, 200, "new", "REVIEW")

	w := f.do("GET", "/proposal/4", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "new", rec["name"])
	assert.Equal(t, "author4.near", rec["author_id"])

	w = f.do("GET", "/proposal/4/snapshots", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snaps []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, float64(200), snaps[0]["ts"])

	assert.Equal(t, http.StatusNotFound, f.do("GET", "/proposal/5", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/proposal/5/snapshots", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/proposal/abc", "").Code)
}

func TestETag(t *testing.T) {
	f := newFixture(t, nil)
	seedRFP(t, f.st, 1, 100, "rfp")

	w := f.do("GET", "/rfp/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	w = f.do("GET", "/rfp/1", "", "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	seedRFP(t, f.st, 1, 200, "renamed")
	w = f.do("GET", "/rfp/1", "", "If-None-Match", tag)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, tag, w.Header().Get("ETag"))
}

func TestRFPRoutes(t *testing.T) {
	f := newFixture(t, nil)
	seedRFP(t, f.st, 1, 100, "Security audit")
	seedRFP(t, f.st, 2, 200, "Design system")
	seedRFP(t, f.st, 3, 300, "UI/UX review")

	page, records := decodePage(t, f.do("GET", "/rfps?stage=accepting_submissions", ""))
	assert.Equal(t, int64(3), page.TotalRecords)
	assert.Equal(t, float64(3), records[0]["id"])

	_, records = decodePage(t, f.do("GET", "/rfps/search/audit", ""))
	require.Len(t, records, 1)
	assert.Equal(t, float64(1), records[0]["id"])

	_, records = decodePage(t, f.do("GET", "/rfps/search/ui%2Fux", ""))
	require.Len(t, records, 1)
	assert.Equal(t, float64(3), records[0]["id"])

	assert.Equal(t, http.StatusOK, f.do("GET", "/rfp/2/snapshots", "").Code)
}

func TestRefreshFailureHandling(t *testing.T) {
	f := newFixture(t, nil)
	seedProposal(t, f.st, 1, 100, "p", "REVIEW")

	f.syncer.refreshErr = fmt.Errorf("pass: %w", indexer.ErrAuthoritativeUnavailable)
	assert.Equal(t, http.StatusInternalServerError, f.do("GET", "/proposals", "").Code)

	// requests that merely joined the failing pass get cached data
	f.syncer.shared = true
	assert.Equal(t, http.StatusOK, f.do("GET", "/proposals", "").Code)

	// feed errors never fail a read
	f.syncer.shared = false
	f.syncer.refreshErr = fmt.Errorf("feed down")
	assert.Equal(t, http.StatusOK, f.do("GET", "/proposals", "").Code)
}

func TestSingleReadsRunFreshnessGate(t *testing.T) {
	f := newFixture(t, nil)
	seedProposal(t, f.st, 1, 100, "p", "REVIEW")
	seedRFP(t, f.st, 2, 100, "r")

	for i, path := range []string{"/proposal/1", "/proposal/1/snapshots", "/rfp/2", "/rfp/2/snapshots"} {
		assert.Equal(t, http.StatusOK, f.do("GET", path, "").Code, path)
		assert.Equal(t, i+1, f.syncer.refreshes, path)
	}

	// a bad id is rejected before any refresh
	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/rfp/x", "").Code)
	assert.Equal(t, 4, f.syncer.refreshes)

	f.syncer.refreshErr = fmt.Errorf("pass: %w", indexer.ErrAuthoritativeUnavailable)
	assert.Equal(t, http.StatusInternalServerError, f.do("GET", "/proposal/1", "").Code)
}

func TestAdminRequiresToken(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/admin/cursor", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/admin/cursor", "", "Authorization", "Bearer garbage").Code)

	// wrong role
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role:             "reader",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, f.do("GET", "/admin/cursor", "", "Authorization", "Bearer "+tok).Code)

	// no expiry
	tok, err = jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: RoleAdmin}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/admin/cursor", "", "Authorization", "Bearer "+tok).Code)

	// other key
	tok, err = IssueAdminToken([]byte("other"), "ops", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/admin/cursor", "", "Authorization", "Bearer "+tok).Code)
}

func TestAdminRoutesAbsentWithoutSecret(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.JWTSecret = "" })
	assert.Equal(t, http.StatusNotFound, f.do("POST", "/admin/cursor/reset", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do("DELETE", "/admin/snapshots", "").Code)
}

func TestAdminCursorOperations(t *testing.T) {
	f := newFixture(t, nil)
	auth := adminAuth(t)

	w := f.do("PUT", "/admin/cursor/block-height", `{"block_height": 120000000}`, auth...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do("PUT", "/admin/cursor/timestamp", `{"timestamp": 1700000000000000000}`, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do("PUT", "/admin/cursor/cursor", `{"cursor": "abc"}`, auth...)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", "/admin/cursor", "", auth...)
	require.Equal(t, http.StatusOK, w.Code)
	var cur store.SyncCursor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cur))
	assert.Equal(t, int64(120000000), cur.LastBlockHeight)
	assert.Equal(t, int64(1700000000000000000), cur.LastTimestamp)
	assert.Equal(t, "abc", cur.Cursor)

	assert.Equal(t, http.StatusBadRequest, f.do("PUT", "/admin/cursor/block-height", `{"block_height": -5}`, auth...).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("PUT", "/admin/cursor/timestamp", `{}`, auth...).Code)

	w = f.do("POST", "/admin/cursor/reset", "", auth...)
	require.Equal(t, http.StatusOK, w.Code)
	c, err := f.syncer.tracker.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, c.LastBlockHeight)
	assert.Empty(t, c.Cursor)
}

func TestAdminSyncAndDeletes(t *testing.T) {
	f := newFixture(t, nil)
	auth := adminAuth(t)
	seedProposal(t, f.st, 1, 100, "p", "REVIEW")
	seedProposal(t, f.st, 1, 200, "p", "REVIEW")
	seedProposal(t, f.st, 2, 100, "q", "REVIEW")
	seedRFP(t, f.st, 1, 100, "r")

	w := f.do("POST", "/admin/sync", "", auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.syncer.syncs)

	w = f.do("DELETE", "/admin/proposal/1/snapshots", "", auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())

	w = f.do("DELETE", "/admin/snapshots", "", auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/rfp/1", "").Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.API.RateLimit = 2 })
	assert.Equal(t, http.StatusOK, f.do("GET", "/proposals", "").Code)
	assert.Equal(t, http.StatusOK, f.do("GET", "/proposals", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do("GET", "/proposals", "").Code)
	// operational endpoints are not limited
	assert.Equal(t, http.StatusOK, f.do("GET", "/healthz", "").Code)
}

func TestRateLimiterWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 1, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))
	rl.cleanup()
	assert.Len(t, rl.requests, 1)
}

func TestOperationalRoutes(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do("GET", "/robots.txt", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Disallow: /")

	assert.Equal(t, http.StatusOK, f.do("GET", "/healthz", "").Code)

	w = f.do("GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "devhub_cache_")
}

func TestPaginate(t *testing.T) {
	p := paginate([]int{}, 0, 10, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 0, p.TotalPages)

	p = paginate([]int{}, 21, 10, 20)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 3, p.TotalPages)
}
