package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Sort orders accepted by the list endpoints.
const (
	OrderIDAsc  = "id_asc"
	OrderIDDesc = "id_desc"
	OrderTsAsc  = "ts_asc"
	OrderTsDesc = "ts_desc"
)

// Filters narrow a list query. Zero values mean "no filter".
type Filters struct {
	AuthorID string
	Category string
	Labels   []string
	// Stage is matched as a fragment of the stored timeline status.
	Stage string
	// After keeps entities whose latest snapshot ts is strictly greater.
	After *int64
}

// Page is a limit/offset window plus ordering.
type Page struct {
	Limit  int
	Offset int
	Order  string
}

// ProposalRecord is a proposal joined with its latest snapshot.
type ProposalRecord struct {
	ID       int64  `json:"id"`
	AuthorID string `json:"author_id"`
	ProposalSnapshot
}

// RFPRecord is an RFP joined with its latest snapshot.
type RFPRecord struct {
	ID       int64  `json:"id"`
	AuthorID string `json:"author_id"`
	RFPSnapshot
}

func orderClause(order, idColumn string) string {
	switch order {
	case OrderIDAsc:
		return idColumn + " ASC"
	case OrderTsAsc:
		return "ps.ts ASC"
	case OrderTsDesc:
		return "ps.ts DESC"
	default:
		return idColumn + " DESC"
	}
}

// escapeLike makes s safe inside a LIKE pattern that uses '!' as escape.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

func (s *Store) latestProposals(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	latest := db.Model(&ProposalSnapshot{}).Select("proposal_id, MAX(ts) AS max_ts").Group("proposal_id")
	return db.Table("proposals AS p").
		Joins("JOIN (?) AS ls ON ls.proposal_id = p.id", latest).
		Joins("JOIN proposal_snapshots AS ps ON ps.proposal_id = ls.proposal_id AND ps.ts = ls.max_ts")
}

func (s *Store) latestRFPs(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	latest := db.Model(&RFPSnapshot{}).Select("rfp_id, MAX(ts) AS max_ts").Group("rfp_id")
	return db.Table("rfps AS p").
		Joins("JOIN (?) AS ls ON ls.rfp_id = p.id", latest).
		Joins("JOIN rfp_snapshots AS ps ON ps.rfp_id = ls.rfp_id AND ps.ts = ls.max_ts")
}

func applyFilters(q *gorm.DB, f Filters) *gorm.DB {
	if f.AuthorID != "" {
		q = q.Where("p.author_id = ?", f.AuthorID)
	}
	if f.Category != "" {
		q = q.Where("ps.category = ?", f.Category)
	}
	if f.Stage != "" {
		q = q.Where("ps.stage LIKE ? ESCAPE '!'", "%"+escapeLike(f.Stage)+"%")
	}
	if f.After != nil {
		q = q.Where("ps.ts > ?", *f.After)
	}
	if len(f.Labels) > 0 {
		conds := make([]string, 0, len(f.Labels))
		args := make([]any, 0, len(f.Labels))
		for _, label := range f.Labels {
			quoted, _ := json.Marshal(label)
			conds = append(conds, "ps.labels LIKE ? ESCAPE '!'")
			args = append(args, "%"+escapeLike(string(quoted))+"%")
		}
		q = q.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	return q
}

func searchCondition(q *gorm.DB, input string, idColumn string) *gorm.DB {
	input = strings.TrimSpace(input)
	if id, err := strconv.ParseInt(input, 10, 64); err == nil {
		return q.Where(idColumn+" = ?", id)
	}
	pattern := "%" + escapeLike(strings.ToLower(input)) + "%"
	return q.Where("(LOWER(ps.name) LIKE ? ESCAPE '!' OR LOWER(ps.summary) LIKE ? ESCAPE '!' OR LOWER(ps.description) LIKE ? ESCAPE '!')",
		pattern, pattern, pattern)
}

func paged(q *gorm.DB, p Page, idColumn string) *gorm.DB {
	q = q.Order(orderClause(p.Order, idColumn))
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	return q
}

// ListProposals returns proposals with their latest snapshot, filtered and
// paged, plus the total number of matches.
func (s *Store) ListProposals(ctx context.Context, f Filters, p Page) ([]ProposalRecord, int64, error) {
	var total int64
	if err := applyFilters(s.latestProposals(ctx), f).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count proposals: %w", err)
	}
	var out []ProposalRecord
	err := paged(applyFilters(s.latestProposals(ctx), f), p, "ps.proposal_id").
		Select("p.id, p.author_id, ps.*").
		Scan(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("store: list proposals: %w", err)
	}
	return out, total, nil
}

// SearchProposals matches a numeric input against the id and anything else
// against name, summary and description. Newest first.
func (s *Store) SearchProposals(ctx context.Context, input string, p Page) ([]ProposalRecord, int64, error) {
	var total int64
	if err := searchCondition(s.latestProposals(ctx), input, "p.id").Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count proposal search: %w", err)
	}
	p.Order = OrderTsDesc
	var out []ProposalRecord
	err := paged(searchCondition(s.latestProposals(ctx), input, "p.id"), p, "ps.proposal_id").
		Select("p.id, p.author_id, ps.*").
		Scan(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("store: search proposals: %w", err)
	}
	return out, total, nil
}

// GetProposal returns one proposal with its latest snapshot.
func (s *Store) GetProposal(ctx context.Context, id int64) (*ProposalRecord, error) {
	var out []ProposalRecord
	err := s.latestProposals(ctx).
		Where("p.id = ?", id).
		Select("p.id, p.author_id, ps.*").
		Limit(1).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: get proposal %d: %w", id, err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

func (s *Store) ListRFPs(ctx context.Context, f Filters, p Page) ([]RFPRecord, int64, error) {
	var total int64
	if err := applyFilters(s.latestRFPs(ctx), f).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count rfps: %w", err)
	}
	var out []RFPRecord
	err := paged(applyFilters(s.latestRFPs(ctx), f), p, "ps.rfp_id").
		Select("p.id, p.author_id, ps.*").
		Scan(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("store: list rfps: %w", err)
	}
	return out, total, nil
}

func (s *Store) SearchRFPs(ctx context.Context, input string, p Page) ([]RFPRecord, int64, error) {
	var total int64
	if err := searchCondition(s.latestRFPs(ctx), input, "p.id").Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count rfp search: %w", err)
	}
	p.Order = OrderTsDesc
	var out []RFPRecord
	err := paged(searchCondition(s.latestRFPs(ctx), input, "p.id"), p, "ps.rfp_id").
		Select("p.id, p.author_id, ps.*").
		Scan(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("store: search rfps: %w", err)
	}
	return out, total, nil
}

func (s *Store) GetRFP(ctx context.Context, id int64) (*RFPRecord, error) {
	var out []RFPRecord
	err := s.latestRFPs(ctx).
		Where("p.id = ?", id).
		Select("p.id, p.author_id, ps.*").
		Limit(1).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: get rfp %d: %w", id, err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}
