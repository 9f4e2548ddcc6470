// Package nearblocks pages through an account's transactions on the
// nearblocks explorer API.
package nearblocks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/logging"
	"github.com/stake-plus/devhub-cache/src/metrics"
	"github.com/stake-plus/devhub-cache/src/webclient"
)

// Position is where a fetch resumes. A non-empty Cursor continues a previous
// walk; otherwise the walk starts cold after AfterBlock.
type Position struct {
	Cursor     string
	AfterBlock int64
}

// Warm reports whether the position continues from a pagination cursor.
func (p Position) Warm() bool { return p.Cursor != "" }

// HTTPError is a non-2xx answer from the API.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("nearblocks: status %d: %s", e.Status, e.Body)
}

type Options struct {
	BaseURL string
	APIKey  string
	PerPage int
	// RequestsPerMinute throttles outbound calls; 0 means unlimited.
	RequestsPerMinute int
	Timeout           time.Duration
	HTTPClient        *http.Client
}

type Client struct {
	base    *url.URL
	apiKey  string
	perPage int
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(opts Options, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("nearblocks: invalid base url %q", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = webclient.NewDefault(opts.Timeout)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return &Client{
		base:    base,
		apiKey:  opts.APIKey,
		perPage: perPage,
		http:    hc,
		limiter: limiter,
		log:     log.Named("nearblocks"),
	}, nil
}

type page struct {
	Txns   []devhub.Transaction `json:"txns"`
	Cursor *string              `json:"cursor"`
}

// FetchNewTransactions walks the account's transactions oldest first starting
// at pos, following pagination cursors until the feed is exhausted.
//
// It returns every transaction gathered and the cursor to resume from. The
// cursor is empty once the feed ran dry. When a page fails the walk stops and
// the error is returned together with everything fetched before it and the
// last good cursor, so resuming from there retries exactly the failed page.
func (c *Client) FetchNewTransactions(ctx context.Context, account string, pos Position) ([]devhub.Transaction, string, error) {
	var all []devhub.Transaction
	cursor := pos.Cursor
	for {
		p, err := c.fetchPage(ctx, account, Position{Cursor: cursor, AfterBlock: pos.AfterBlock})
		if err != nil {
			metrics.FeedErrors.Inc()
			logging.Upstream(c.log, err, "feed page failed",
				zap.String("account", account), zap.String("cursor", cursor), zap.Int("fetched", len(all)))
			return all, cursor, err
		}
		metrics.FeedPages.Inc()
		all = append(all, p.Txns...)

		next := ""
		if p.Cursor != nil {
			next = *p.Cursor
		}
		c.log.Debug("page fetched",
			zap.Int("txns", len(p.Txns)),
			zap.Int("total", len(all)),
			zap.Bool("warm", cursor != ""),
			zap.String("next_cursor", next))

		if next == "" || next == cursor {
			return all, "", nil
		}
		cursor = next
	}
}

func (c *Client) fetchPage(ctx context.Context, account string, pos Position) (*page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.base.JoinPath("v1", "account", account, "txns")
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("order", "asc")
	q.Set("page", "1")
	if pos.Warm() {
		q.Set("cursor", pos.Cursor)
	} else {
		q.Set("after_block", strconv.FormatInt(pos.AfterBlock, 10))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	status, body, err := webclient.Send(c.http, req)
	if err != nil {
		return nil, fmt.Errorf("nearblocks: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, &HTTPError{Status: status, Body: truncate(string(body), 256)}
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("nearblocks: decode page: %w", err)
	}
	return &p, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
