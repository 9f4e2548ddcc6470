package devhub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const proposalV2JSON = `{
  "proposal_version": "V0",
  "id": 7,
  "author_id": "alice.near",
  "social_db_post_block_height": "120000000",
  "snapshot": {
    "editor_id": "bob.near",
    "timestamp": "1717000000000000000",
    "labels": ["infra", "tooling"],
    "proposal_body_version": "V2",
    "name": "Indexer",
    "category": "DevDAO Platform",
    "summary": "Index things",
    "description": "Long text",
    "linked_proposals": [1, 2],
    "linked_rfp": 3,
    "requested_sponsorship_usd_amount": "25000",
    "requested_sponsorship_paid_in_currency": "USDC",
    "requested_sponsor": "neardevdao.near",
    "receiver_account": "alice.near",
    "supervisor": null,
    "timeline": {"status": "review", "sponsor_requested_review": true}
  },
  "snapshot_history": [1, "2"]
}`

func TestVersionedProposalV2(t *testing.T) {
	var p VersionedProposal
	require.NoError(t, json.Unmarshal([]byte(proposalV2JSON), &p))

	assert.Equal(t, ProposalV0, p.Version)
	assert.Equal(t, uint32(7), p.ID)
	assert.Equal(t, "alice.near", p.AuthorID)
	assert.Equal(t, U64(120000000), p.SocialDBPostBlockHeight)
	assert.Equal(t, []U64{1, 2}, p.SnapshotHistory)
	assert.Equal(t, "bob.near", p.Snapshot.EditorID)
	assert.Equal(t, []string{"infra", "tooling"}, p.Snapshot.Labels)

	body := p.Snapshot.Body
	require.NotNil(t, body)
	assert.Equal(t, ProposalBodyV2, body.Version())
	assert.Equal(t, "Indexer", body.Name())
	assert.Equal(t, []uint32{1, 2}, body.LinkedProposals())
	require.NotNil(t, body.LinkedRFP())
	assert.Equal(t, uint32(3), *body.LinkedRFP())
	assert.Equal(t, uint64(25000), body.RequestedSponsorshipUSDAmount())
	assert.Equal(t, CurrencyUSDC, body.RequestedSponsorshipPaidInCurrency())
	assert.Nil(t, body.Supervisor())
	assert.Equal(t, "REVIEW", Stage(body.Timeline()))
}

func TestProposalBodyV1HasNoLinkedRFP(t *testing.T) {
	raw := `{"editor_id":"a","timestamp":1,"labels":[],"proposal_body_version":"V1",
	  "name":"n","linked_rfp":9,"requested_sponsorship_usd_amount":10,"timeline":{"status":"DRAFT"}}`
	var s ProposalSnapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, ProposalBodyV1, s.Body.Version())
	assert.Nil(t, s.Body.LinkedRFP())
	assert.Equal(t, uint64(10), s.Body.RequestedSponsorshipUSDAmount())
}

func TestProposalUnknownVersions(t *testing.T) {
	var p VersionedProposal
	err := json.Unmarshal([]byte(`{"proposal_version":"V9","id":1}`), &p)
	assert.ErrorContains(t, err, "proposal_version")

	var s ProposalSnapshot
	err = json.Unmarshal([]byte(`{"proposal_body_version":"V7"}`), &s)
	assert.ErrorContains(t, err, "proposal_body_version")

	err = json.Unmarshal([]byte(`{"editor_id":"x"}`), &s)
	assert.Error(t, err)
}

func TestVersionedRFP(t *testing.T) {
	raw := `{
	  "rfp_version": "V0",
	  "id": 3,
	  "author_id": "carol.near",
	  "social_db_post_block_height": 5,
	  "snapshot": {
	    "editor_id": "carol.near",
	    "timestamp": "1717000000000000001",
	    "block_height": "130",
	    "labels": ["ai"],
	    "linked_proposals": [7],
	    "rfp_body_version": "V0",
	    "name": "Need an indexer",
	    "summary": "s",
	    "description": "d",
	    "timeline": {"status": "ACCEPTING_SUBMISSIONS"},
	    "submission_deadline": "1720000000000000000"
	  }
	}`
	var r VersionedRFP
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	assert.Equal(t, RFPV0, r.Version)
	assert.Equal(t, uint32(3), r.ID)
	assert.Equal(t, []uint32{7}, r.Snapshot.LinkedProposals)
	assert.Equal(t, U64(130), r.Snapshot.BlockHeight)
	assert.Equal(t, "Need an indexer", r.Snapshot.Body.Name())
	assert.Equal(t, uint64(1720000000000000000), r.Snapshot.Body.SubmissionDeadline())
	assert.Equal(t, "ACCEPTING_SUBMISSIONS", Stage(r.Snapshot.Body.Timeline()))

	err := json.Unmarshal([]byte(`{"rfp_version":"V0","snapshot":{"rfp_body_version":"V3"}}`), &r)
	assert.ErrorContains(t, err, "rfp_body_version")
}

func TestU64(t *testing.T) {
	var u U64
	require.NoError(t, json.Unmarshal([]byte(`"18446744073709551615"`), &u))
	assert.Equal(t, U64(18446744073709551615), u)
	assert.Equal(t, int64(1<<63-1), u.Int64())

	require.NoError(t, json.Unmarshal([]byte(`42`), &u))
	assert.Equal(t, U64(42), u)

	require.NoError(t, json.Unmarshal([]byte(`null`), &u))
	assert.Equal(t, U64(0), u)

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &u))

	out, err := json.Marshal(U64(9))
	require.NoError(t, err)
	assert.Equal(t, `"9"`, string(out))
}

func TestTransactionAccessors(t *testing.T) {
	raw := `{
	  "id": "1",
	  "receipt_id": "r",
	  "block_timestamp": "1717000000000000000",
	  "block": {"block_height": 100},
	  "receipt_block": {"block_hash": "h", "block_height": 101, "block_timestamp": 1717000000000000001},
	  "receipt_outcome": {"status": true},
	  "actions": [{"action": "FUNCTION_CALL", "method": "edit_proposal", "args": "{\"id\":7}", "deposit": 0, "fee": 1.5}]
	}`
	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))
	assert.True(t, tx.Succeeded())
	assert.Equal(t, MethodEditProposal, tx.Method())
	assert.Equal(t, `{"id":7}`, tx.Args())
	ts, err := tx.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1717000000000000000), ts)
	assert.Equal(t, int64(100), tx.Height())
	assert.Equal(t, int64(101), tx.ReceiptHeight())

	var args EditArgs
	require.NoError(t, json.Unmarshal([]byte(tx.Args()), &args))
	require.NotNil(t, args.ID)
	assert.Equal(t, U64(7), *args.ID)

	empty := Transaction{Block: BlockInfo{BlockHeight: 5}, BlockTimestamp: "x"}
	assert.Equal(t, "", empty.Method())
	_, err = empty.Timestamp()
	assert.Error(t, err)
	assert.Equal(t, int64(5), empty.ReceiptHeight())
}

func TestStageAndFilters(t *testing.T) {
	assert.Equal(t, "", Stage(nil))
	assert.Equal(t, "FUNDED", Stage(json.RawMessage(`"{\"status\":\"FUNDED\"}"`)))
	assert.Equal(t, "", Stage(json.RawMessage(`[1,2]`)))

	assert.Equal(t, `{"status":"DRAFT"}`, CompactTimeline(json.RawMessage("{ \"status\" : \"DRAFT\" }")))

	v, ok := ProposalStageFilter("conditional")
	assert.True(t, ok)
	assert.Equal(t, "CONDITIONALLY", v)
	_, ok = ProposalStageFilter("EVALUATION")
	assert.False(t, ok)

	v, ok = RFPStageFilter("evaluation")
	assert.True(t, ok)
	assert.Equal(t, "EVALUATION", v)
}
