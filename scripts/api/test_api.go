// Minimal end-to-end smoke test against a running devhub-cache.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/devhub-cache/src/api/webserver"
	"github.com/stake-plus/devhub-cache/src/data"
)

var (
	baseURL   = getenv("API_URL", "http://localhost:8080")
	redisURL  = os.Getenv("REDIS_URL")
	jwtSecret = os.Getenv("JWT_SECRET")
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

type page struct {
	Records      []map[string]any `json:"records"`
	Page         int              `json:"page"`
	TotalPages   int              `json:"total_pages"`
	TotalRecords int64            `json:"total_records"`
}

func main() {
	doJSON("GET", "/healthz", nil, nil, http.StatusOK)

	proposals := listPage("/proposals?limit=5")
	fmt.Printf("proposals: %d total\n", proposals.TotalRecords)
	if len(proposals.Records) > 0 {
		id := fmt.Sprint(proposals.Records[0]["id"])
		doJSON("GET", "/proposal/"+id, nil, nil, http.StatusOK)
		doJSON("GET", "/proposal/"+id+"/snapshots", nil, nil, http.StatusOK)
		if got := listPage("/proposals/search/" + id); got.TotalRecords != 1 {
			log.Fatalf("search by id %s: want 1 record got %d", id, got.TotalRecords)
		}
	}

	// a random term must match nothing
	if got := listPage("/proposals/search/" + url.PathEscape(uuid.NewString())); got.TotalRecords != 0 {
		log.Fatalf("random search matched %d records", got.TotalRecords)
	}

	rfps := listPage("/rfps?limit=5&stage=accepting_submissions")
	fmt.Printf("rfps accepting submissions: %d\n", rfps.TotalRecords)

	if jwtSecret != "" {
		checkAdmin()
	}
	if redisURL != "" {
		lastSyncEvent()
	}

	fmt.Println("✓ all endpoints passed")
}

func listPage(path string) page {
	var p page
	doJSON("GET", path, nil, &p, http.StatusOK)
	if p.Page < 1 {
		log.Fatalf("%s: page %d", path, p.Page)
	}
	return p
}

func checkAdmin() {
	doJSON("GET", "/admin/cursor", nil, nil, http.StatusUnauthorized)

	tok, err := webserver.IssueAdminToken([]byte(jwtSecret), "smoke-test", 5*time.Minute)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	var cur struct {
		AfterDate  int64  `json:"after_date"`
		AfterBlock int64  `json:"after_block"`
		Cursor     string `json:"cursor"`
	}
	doAuth(tok, "GET", "/admin/cursor", nil, &cur, http.StatusOK)
	fmt.Printf("cursor: after_date=%d after_block=%d cursor=%q\n", cur.AfterDate, cur.AfterBlock, cur.Cursor)
}

func lastSyncEvent() {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	msgs, err := rdb.XRevRangeN(context.Background(), data.StreamSync, "+", "-", 1).Result()
	if err != nil {
		log.Fatalf("redis xrevrange: %v", err)
	}
	if len(msgs) == 0 {
		fmt.Println("no sync events yet")
		return
	}
	fmt.Printf("last sync event: %v\n", msgs[0].Values)
}

// ----------------------------- helpers

func doAuth(token, method, path string, body, out any, want int) {
	doReq(method, path, token, body, out, want)
}

func doJSON(method, path string, body, out any, want int) {
	doReq(method, path, "", body, out, want)
}

func doReq(method, path, token string, body, out any, want int) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s encode: %v", method, path, err)
		}
	}
	req, _ := http.NewRequest(method, baseURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		log.Fatalf("%s %s: want %d got %d", method, path, want, res.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
}
