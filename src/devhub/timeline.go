package devhub

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Stage returns the "status" of a timeline document, or "" when the
// timeline is missing or has no status.
func Stage(timeline json.RawMessage) string {
	if len(bytes.TrimSpace(timeline)) == 0 {
		return ""
	}
	var t struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(timeline, &t); err != nil {
		// Older bodies may carry the timeline as a JSON-encoded string.
		var inner string
		if json.Unmarshal(timeline, &inner) != nil || json.Unmarshal([]byte(inner), &t) != nil {
			return ""
		}
	}
	return strings.ToUpper(t.Status)
}

// CompactTimeline strips insignificant whitespace so stored timelines are
// byte-comparable.
func CompactTimeline(timeline json.RawMessage) string {
	if len(bytes.TrimSpace(timeline)) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, timeline); err != nil {
		return string(timeline)
	}
	return buf.String()
}

var proposalStages = map[string]string{
	"DRAFT":       "DRAFT",
	"REVIEW":      "REVIEW",
	"APPROVED":    "APPROVED",
	"REJECTED":    "REJECTED",
	"CANCELLED":   "CANCELLED",
	"CONDITIONAL": "CONDITIONALLY",
	"PAYMENT":     "PAYMENT",
	"FUNDED":      "FUNDED",
}

var rfpStages = map[string]string{
	"ACCEPTING_SUBMISSIONS": "ACCEPTING_SUBMISSIONS",
	"EVALUATION":            "EVALUATION",
	"PROPOSAL_SELECTED":     "PROPOSAL_SELECTED",
	"CANCELLED":             "CANCELLED",
}

// ProposalStageFilter maps a user supplied stage to the fragment matched
// against stored statuses. Unknown stages yield ok=false.
func ProposalStageFilter(stage string) (string, bool) {
	v, ok := proposalStages[strings.ToUpper(strings.TrimSpace(stage))]
	return v, ok
}

func RFPStageFilter(stage string) (string, bool) {
	v, ok := rfpStages[strings.ToUpper(strings.TrimSpace(stage))]
	return v, ok
}
