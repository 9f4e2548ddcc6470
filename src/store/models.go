package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type Proposal struct {
	ID       int64  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AuthorID string `gorm:"size:128;index;not null" json:"author_id"`
}

func (Proposal) TableName() string { return "proposals" }

// ProposalSnapshot is one normalized version of a proposal. Rows are keyed by
// (proposal_id, ts) so re-applying the same transaction overwrites in place.
type ProposalSnapshot struct {
	ProposalID                         int64      `gorm:"primaryKey;autoIncrement:false" json:"proposal_id"`
	Ts                                 int64      `gorm:"primaryKey;autoIncrement:false" json:"ts"`
	BlockHeight                        int64      `gorm:"index" json:"block_height"`
	EditorID                           string     `gorm:"size:128" json:"editor_id"`
	SocialDBPostBlockHeight            int64      `gorm:"column:social_db_post_block_height" json:"social_db_post_block_height"`
	Labels                             StringList `gorm:"type:text" json:"labels"`
	ProposalVersion                    string     `gorm:"size:8" json:"proposal_version"`
	ProposalBodyVersion                string     `gorm:"size:8" json:"proposal_body_version"`
	Name                               *string    `gorm:"type:text" json:"name"`
	Category                           *string    `gorm:"size:255;index" json:"category"`
	Summary                            *string    `gorm:"type:text" json:"summary"`
	Description                        *string    `gorm:"type:text" json:"description"`
	LinkedProposals                    IDList     `gorm:"type:text" json:"linked_proposals"`
	LinkedRFP                          *int64     `gorm:"column:linked_rfp" json:"linked_rfp"`
	RequestedSponsorshipUSDAmount      *int64     `gorm:"column:requested_sponsorship_usd_amount" json:"requested_sponsorship_usd_amount"`
	RequestedSponsorshipPaidInCurrency *string    `gorm:"size:16" json:"requested_sponsorship_paid_in_currency"`
	RequestedSponsor                   *string    `gorm:"size:128" json:"requested_sponsor"`
	ReceiverAccount                    *string    `gorm:"size:128" json:"receiver_account"`
	Supervisor                         *string    `gorm:"size:128" json:"supervisor"`
	Timeline                           *string    `gorm:"type:text" json:"timeline"`
	Stage                              string     `gorm:"size:64;index" json:"stage"`
	Views                              *int64     `json:"views"`
}

func (ProposalSnapshot) TableName() string { return "proposal_snapshots" }

type RFP struct {
	ID       int64  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AuthorID string `gorm:"size:128;index;not null" json:"author_id"`
}

func (RFP) TableName() string { return "rfps" }

type RFPSnapshot struct {
	RFPID                   int64      `gorm:"column:rfp_id;primaryKey;autoIncrement:false" json:"rfp_id"`
	Ts                      int64      `gorm:"primaryKey;autoIncrement:false" json:"ts"`
	BlockHeight             int64      `gorm:"index" json:"block_height"`
	EditorID                string     `gorm:"size:128" json:"editor_id"`
	SocialDBPostBlockHeight int64      `gorm:"column:social_db_post_block_height" json:"social_db_post_block_height"`
	Labels                  StringList `gorm:"type:text" json:"labels"`
	LinkedProposals         IDList     `gorm:"type:text" json:"linked_proposals"`
	RFPVersion              string     `gorm:"column:rfp_version;size:8" json:"rfp_version"`
	RFPBodyVersion          string     `gorm:"column:rfp_body_version;size:8" json:"rfp_body_version"`
	Name                    *string    `gorm:"type:text" json:"name"`
	Category                *string    `gorm:"size:255" json:"category"`
	Summary                 *string    `gorm:"type:text" json:"summary"`
	Description             *string    `gorm:"type:text" json:"description"`
	Timeline                *string    `gorm:"type:text" json:"timeline"`
	Stage                   string     `gorm:"size:64;index" json:"stage"`
	SubmissionDeadline      int64      `json:"submission_deadline"`
	Views                   *int64     `json:"views"`
}

func (RFPSnapshot) TableName() string { return "rfp_snapshots" }

// SyncCursor is the singleton sync watermark. Column names follow the
// historical schema.
type SyncCursor struct {
	ID              uint8  `gorm:"primaryKey;autoIncrement:false" json:"-"`
	LastTimestamp   int64  `gorm:"column:after_date;not null;default:0" json:"after_date"`
	LastBlockHeight int64  `gorm:"column:after_block;not null;default:0" json:"after_block"`
	Cursor          string `gorm:"column:cursor;size:255;not null;default:''" json:"cursor"`
}

func (SyncCursor) TableName() string { return "sync_cursor" }

// Setting rows override environment configuration at startup.
type Setting struct {
	ID     uint   `gorm:"primaryKey"`
	Name   string `gorm:"size:64;uniqueIndex;not null"`
	Value  string `gorm:"type:text"`
	Active bool   `gorm:"not null;default:true"`
}

func (Setting) TableName() string { return "settings" }

// StringList is stored as a JSON array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

func (l *StringList) Scan(src any) error {
	return scanJSON(src, (*[]string)(l))
}

// IDList is stored as a JSON array of ids.
type IDList []int64

func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(l))
	return string(b), err
}

func (l *IDList) Scan(src any) error {
	return scanJSON(src, (*[]int64)(l))
}

// Contains reports whether id is in the list.
func (l IDList) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

func scanJSON(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("store: cannot scan %T into JSON list", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

// Models lists every table the cache owns, in migration order.
func Models() []any {
	return []any{&Setting{}, &Proposal{}, &ProposalSnapshot{}, &RFP{}, &RFPSnapshot{}, &SyncCursor{}}
}
