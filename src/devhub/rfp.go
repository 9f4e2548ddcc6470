package devhub

import (
	"encoding/json"
	"fmt"
)

const (
	RFPV0     = "V0"
	RFPBodyV0 = "V0"
)

// RFP is the contract's request-for-proposals object.
type RFP struct {
	ID                      uint32      `json:"id"`
	AuthorID                string      `json:"author_id"`
	SocialDBPostBlockHeight U64         `json:"social_db_post_block_height"`
	Snapshot                RFPSnapshot `json:"snapshot"`
	SnapshotHistory         []U64       `json:"snapshot_history,omitempty"`
}

// VersionedRFP is get_rfp's result, tagged by rfp_version.
type VersionedRFP struct {
	Version string
	RFP
}

func (v *VersionedRFP) UnmarshalJSON(b []byte) error {
	var tag struct {
		Version string `json:"rfp_version"`
	}
	if err := json.Unmarshal(b, &tag); err != nil {
		return err
	}
	switch tag.Version {
	case RFPV0, "":
		v.Version = RFPV0
	default:
		return fmt.Errorf("devhub: unsupported rfp_version %q", tag.Version)
	}
	return json.Unmarshal(b, &v.RFP)
}

// RFPSnapshot keeps linked_proposals outside the body: the contract maintains
// it as proposals link and unlink.
type RFPSnapshot struct {
	EditorID        string   `json:"editor_id"`
	Timestamp       U64      `json:"timestamp"`
	BlockHeight     U64      `json:"block_height"`
	Labels          []string `json:"labels"`
	LinkedProposals []uint32 `json:"linked_proposals"`
	Body            RFPBody
}

func (s *RFPSnapshot) UnmarshalJSON(b []byte) error {
	var head struct {
		EditorID        string   `json:"editor_id"`
		Timestamp       U64      `json:"timestamp"`
		BlockHeight     U64      `json:"block_height"`
		Labels          []string `json:"labels"`
		LinkedProposals []uint32 `json:"linked_proposals"`
		BodyVersion     string   `json:"rfp_body_version"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	var body RFPBody
	switch head.BodyVersion {
	case RFPBodyV0:
		var v0 RFPBodyV0Fields
		if err := json.Unmarshal(b, &v0); err != nil {
			return err
		}
		body = v0
	case "":
		return fmt.Errorf("devhub: rfp snapshot without rfp_body_version")
	default:
		return fmt.Errorf("devhub: unsupported rfp_body_version %q", head.BodyVersion)
	}
	s.EditorID = head.EditorID
	s.Timestamp = head.Timestamp
	s.BlockHeight = head.BlockHeight
	s.Labels = head.Labels
	s.LinkedProposals = head.LinkedProposals
	s.Body = body
	return nil
}

type RFPBody interface {
	Version() string
	Name() string
	Summary() string
	Description() string
	Timeline() json.RawMessage
	SubmissionDeadline() uint64
}

type RFPBodyV0Fields struct {
	NameValue               string          `json:"name"`
	SummaryValue            string          `json:"summary"`
	DescriptionValue        string          `json:"description"`
	TimelineValue           json.RawMessage `json:"timeline"`
	SubmissionDeadlineValue U64             `json:"submission_deadline"`
}

func (RFPBodyV0Fields) Version() string              { return RFPBodyV0 }
func (b RFPBodyV0Fields) Name() string               { return b.NameValue }
func (b RFPBodyV0Fields) Summary() string            { return b.SummaryValue }
func (b RFPBodyV0Fields) Description() string        { return b.DescriptionValue }
func (b RFPBodyV0Fields) Timeline() json.RawMessage  { return b.TimelineValue }
func (b RFPBodyV0Fields) SubmissionDeadline() uint64 { return uint64(b.SubmissionDeadlineValue) }
