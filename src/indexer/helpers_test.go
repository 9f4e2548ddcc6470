package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/nearblocks"
	"github.com/stake-plus/devhub-cache/src/nearrpc"
)

var errRPCDown = errors.New("rpc down")

func proposalJSON(id uint32, name, status string, linkedRFP *uint32, labels ...string) string {
	if labels == nil {
		labels = []string{}
	}
	lb, _ := json.Marshal(labels)
	rfp := "null"
	if linkedRFP != nil {
		rfp = strconv.FormatUint(uint64(*linkedRFP), 10)
	}
	return fmt.Sprintf(`{
	  "proposal_version": "V0",
	  "id": %d,
	  "author_id": "author%d.near",
	  "social_db_post_block_height": "100",
	  "snapshot": {
	    "editor_id": "author%d.near",
	    "timestamp": "1",
	    "labels": %s,
	    "proposal_body_version": "V2",
	    "name": %q,
	    "category": "Tooling",
	    "summary": "summary of %s",
	    "description": "description",
	    "linked_proposals": [],
	    "linked_rfp": %s,
	    "requested_sponsorship_usd_amount": "1000",
	    "requested_sponsorship_paid_in_currency": "USDC",
	    "requested_sponsor": "neardevdao.near",
	    "receiver_account": "author%d.near",
	    "supervisor": null,
	    "timeline": {"status": %q}
	  },
	  "snapshot_history": []
	}`, id, id, id, lb, name, name, rfp, id, status)
}

func rfpJSON(id uint32, name string, linked ...uint32) string {
	if linked == nil {
		linked = []uint32{}
	}
	lp, _ := json.Marshal(linked)
	return fmt.Sprintf(`{
	  "rfp_version": "V0",
	  "id": %d,
	  "author_id": "moderator.near",
	  "social_db_post_block_height": "200",
	  "snapshot": {
	    "editor_id": "moderator.near",
	    "timestamp": "1",
	    "block_height": "200",
	    "labels": ["rfp"],
	    "linked_proposals": %s,
	    "rfp_body_version": "V0",
	    "name": %q,
	    "summary": "summary",
	    "description": "description",
	    "timeline": {"status": "ACCEPTING_SUBMISSIONS"},
	    "submission_deadline": "1800000000000000000"
	  }
	}`, id, lp, name)
}

func mustProposal(t testing.TB, raw string) *devhub.VersionedProposal {
	t.Helper()
	var p devhub.VersionedProposal
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func mustRFP(t testing.TB, raw string) *devhub.VersionedRFP {
	t.Helper()
	var r devhub.VersionedRFP
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return &r
}

func txn(method, args string, ts, height int64) devhub.Transaction {
	return devhub.Transaction{
		ID:              strconv.FormatInt(height, 10),
		ReceiptID:       fmt.Sprintf("receipt-%d", height),
		TransactionHash: fmt.Sprintf("hash-%d", height),
		BlockTimestamp:  strconv.FormatInt(ts, 10),
		Block:           devhub.BlockInfo{BlockHeight: height},
		ReceiptBlock:    devhub.ReceiptBlock{BlockHeight: height + 1},
		ReceiptOutcome:  devhub.ReceiptOutcome{Status: true},
		Actions:         []devhub.Action{{Action: "FUNCTION_CALL", Method: method, Args: args}},
	}
}

func createProposalTx(raw string, ts, height int64) devhub.Transaction {
	return txn(devhub.MethodSetBlockHeightCallback, `{"proposal":`+raw+`}`, ts, height)
}

func createRFPTx(raw string, ts, height int64) devhub.Transaction {
	return txn(devhub.MethodSetRFPBlockHeightCallback, `{"rfp":`+raw+`}`, ts, height)
}

func editTx(method string, id uint32, ts, height int64) devhub.Transaction {
	return txn(method, fmt.Sprintf(`{"id":%d,"body":{}}`, id), ts, height)
}

// fakeReader serves contract state from memory and records the block refs
// it was asked for.
type fakeReader struct {
	mu        sync.Mutex
	proposals map[uint32]*devhub.VersionedProposal
	rfps      map[uint32]*devhub.VersionedRFP
	err       error
	refs      []nearrpc.BlockRef
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		proposals: map[uint32]*devhub.VersionedProposal{},
		rfps:      map[uint32]*devhub.VersionedRFP{},
	}
}

func (f *fakeReader) setProposal(t testing.TB, raw string) {
	p := mustProposal(t, raw)
	f.mu.Lock()
	f.proposals[p.ID] = p
	f.mu.Unlock()
}

func (f *fakeReader) setRFP(t testing.TB, raw string) {
	r := mustRFP(t, raw)
	f.mu.Lock()
	f.rfps[r.ID] = r
	f.mu.Unlock()
}

func (f *fakeReader) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeReader) GetProposal(_ context.Context, id uint32, ref nearrpc.BlockRef) (*devhub.VersionedProposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref)
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.proposals[id]
	if !ok {
		return nil, fmt.Errorf("proposal %d: %w", id, nearrpc.ErrContract)
	}
	return p, nil
}

func (f *fakeReader) GetRFP(_ context.Context, id uint32, ref nearrpc.BlockRef) (*devhub.VersionedRFP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref)
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rfps[id]
	if !ok {
		return nil, fmt.Errorf("rfp %d: %w", id, nearrpc.ErrContract)
	}
	return r, nil
}

// fakeFeed returns the queued transactions once per call.
type fakeFeed struct {
	mu        sync.Mutex
	txns      []devhub.Transaction
	next      string
	err       error
	calls     int
	positions []nearblocks.Position
	block     chan struct{}
}

func (f *fakeFeed) FetchNewTransactions(ctx context.Context, _ string, pos nearblocks.Position) ([]devhub.Transaction, string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, pos.Cursor, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.positions = append(f.positions, pos)
	txns := f.txns
	f.txns = nil
	return txns, f.next, f.err
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func u32(v uint32) *uint32 { return &v }

var nopLog = zap.NewNop()
