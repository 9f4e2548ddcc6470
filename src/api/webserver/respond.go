package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/gin-gonic/gin"
)

// PaginatedResponse wraps one page of list or search results.
type PaginatedResponse struct {
	Records      any   `json:"records"`
	Page         int   `json:"page"`
	TotalPages   int   `json:"total_pages"`
	Limit        int   `json:"limit"`
	TotalRecords int64 `json:"total_records"`
}

func paginate(records any, total int64, limit, offset int) PaginatedResponse {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PaginatedResponse{
		Records:      records,
		Page:         offset/limit + 1,
		TotalPages:   pages,
		Limit:        limit,
		TotalRecords: total,
	}
}

// etag is a strong validator over the encoded body.
func etag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Checksum64(body))
}

func matchesETag(header, tag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}

// respondCached writes v as JSON with an ETag, answering 304 when the client
// already holds the same representation.
func respondCached(c *gin.Context, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	tag := etag(body)
	c.Header("ETag", tag)
	c.Header("Cache-Control", "no-cache")
	if inm := c.GetHeader("If-None-Match"); inm != "" && matchesETag(inm, tag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
