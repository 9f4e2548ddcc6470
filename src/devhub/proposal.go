package devhub

import (
	"encoding/json"
	"fmt"
)

// Proposal versions the cache understands.
const (
	ProposalV0 = "V0"

	ProposalBodyV0 = "V0"
	ProposalBodyV1 = "V1"
	ProposalBodyV2 = "V2"
)

// Funding currencies accepted by the contract.
const (
	CurrencyNEAR  = "NEAR"
	CurrencyUSDT  = "USDT"
	CurrencyUSDC  = "USDC"
	CurrencyOther = "OTHER"
)

// Proposal is the contract's proposal object. The same shape arrives embedded
// in set_block_height_callback arguments and, wrapped in VersionedProposal,
// from get_proposal.
type Proposal struct {
	ID                      uint32           `json:"id"`
	AuthorID                string           `json:"author_id"`
	SocialDBPostBlockHeight U64              `json:"social_db_post_block_height"`
	Snapshot                ProposalSnapshot `json:"snapshot"`
	SnapshotHistory         []U64            `json:"snapshot_history,omitempty"`
}

// VersionedProposal is get_proposal's result, tagged by proposal_version.
type VersionedProposal struct {
	Version string
	Proposal
}

func (v *VersionedProposal) UnmarshalJSON(b []byte) error {
	var tag struct {
		Version string `json:"proposal_version"`
	}
	if err := json.Unmarshal(b, &tag); err != nil {
		return err
	}
	switch tag.Version {
	case ProposalV0, "":
		v.Version = ProposalV0
	default:
		return fmt.Errorf("devhub: unsupported proposal_version %q", tag.Version)
	}
	return json.Unmarshal(b, &v.Proposal)
}

// ProposalSnapshot carries the editor metadata plus a body whose shape depends
// on proposal_body_version. The body fields sit flat next to the metadata.
type ProposalSnapshot struct {
	EditorID  string   `json:"editor_id"`
	Timestamp U64      `json:"timestamp"`
	Labels    []string `json:"labels"`
	Body      ProposalBody
}

func (s *ProposalSnapshot) UnmarshalJSON(b []byte) error {
	var head struct {
		EditorID    string   `json:"editor_id"`
		Timestamp   U64      `json:"timestamp"`
		Labels      []string `json:"labels"`
		BodyVersion string   `json:"proposal_body_version"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	body, err := decodeProposalBody(head.BodyVersion, b)
	if err != nil {
		return err
	}
	s.EditorID = head.EditorID
	s.Timestamp = head.Timestamp
	s.Labels = head.Labels
	s.Body = body
	return nil
}

func decodeProposalBody(version string, b []byte) (ProposalBody, error) {
	switch version {
	case ProposalBodyV0:
		var body ProposalBodyV0Fields
		err := json.Unmarshal(b, &body)
		return body, err
	case ProposalBodyV1:
		var body ProposalBodyV1Fields
		err := json.Unmarshal(b, &body)
		return body, err
	case ProposalBodyV2:
		var body ProposalBodyV2Fields
		err := json.Unmarshal(b, &body)
		return body, err
	case "":
		return nil, fmt.Errorf("devhub: proposal snapshot without proposal_body_version")
	default:
		return nil, fmt.Errorf("devhub: unsupported proposal_body_version %q", version)
	}
}

// ProposalBody is the accessor surface shared by every body version.
type ProposalBody interface {
	Version() string
	Name() string
	Category() string
	Summary() string
	Description() string
	LinkedProposals() []uint32
	// LinkedRFP is nil for versions before V2.
	LinkedRFP() *uint32
	RequestedSponsorshipUSDAmount() uint64
	RequestedSponsorshipPaidInCurrency() string
	RequestedSponsor() string
	ReceiverAccount() string
	Supervisor() *string
	Timeline() json.RawMessage
}

// proposalContent holds the fields every body version carries.
type proposalContent struct {
	NameValue                      string          `json:"name"`
	CategoryValue                  string          `json:"category"`
	SummaryValue                   string          `json:"summary"`
	DescriptionValue               string          `json:"description"`
	LinkedProposalsValue           []uint32        `json:"linked_proposals"`
	RequestedSponsorshipUSDAmountV U64             `json:"requested_sponsorship_usd_amount"`
	PaidInCurrency                 string          `json:"requested_sponsorship_paid_in_currency"`
	RequestedSponsorValue          string          `json:"requested_sponsor"`
	ReceiverAccountValue           string          `json:"receiver_account"`
	SupervisorValue                *string         `json:"supervisor"`
	TimelineValue                  json.RawMessage `json:"timeline"`
}

func (c proposalContent) Name() string             { return c.NameValue }
func (c proposalContent) Category() string         { return c.CategoryValue }
func (c proposalContent) Summary() string          { return c.SummaryValue }
func (c proposalContent) Description() string      { return c.DescriptionValue }
func (c proposalContent) LinkedProposals() []uint32 { return c.LinkedProposalsValue }

func (c proposalContent) RequestedSponsorshipUSDAmount() uint64 {
	return uint64(c.RequestedSponsorshipUSDAmountV)
}

func (c proposalContent) RequestedSponsorshipPaidInCurrency() string { return c.PaidInCurrency }
func (c proposalContent) RequestedSponsor() string                   { return c.RequestedSponsorValue }
func (c proposalContent) ReceiverAccount() string                    { return c.ReceiverAccountValue }
func (c proposalContent) Supervisor() *string                        { return c.SupervisorValue }
func (c proposalContent) Timeline() json.RawMessage                  { return c.TimelineValue }

// ProposalBodyV0Fields is the first body layout.
type ProposalBodyV0Fields struct{ proposalContent }

func (ProposalBodyV0Fields) Version() string    { return ProposalBodyV0 }
func (ProposalBodyV0Fields) LinkedRFP() *uint32 { return nil }

// ProposalBodyV1Fields switched the timeline to the versioned status shape.
type ProposalBodyV1Fields struct{ proposalContent }

func (ProposalBodyV1Fields) Version() string    { return ProposalBodyV1 }
func (ProposalBodyV1Fields) LinkedRFP() *uint32 { return nil }

// ProposalBodyV2Fields adds the link to an RFP.
type ProposalBodyV2Fields struct {
	proposalContent
	LinkedRFPValue *uint32 `json:"linked_rfp"`
}

func (ProposalBodyV2Fields) Version() string      { return ProposalBodyV2 }
func (b ProposalBodyV2Fields) LinkedRFP() *uint32 { return b.LinkedRFPValue }
