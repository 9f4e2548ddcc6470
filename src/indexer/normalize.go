package indexer

import (
	"math"
	"sort"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/store"
)

// proposalSnapshot flattens a contract proposal into a snapshot row dated at
// the transaction that produced it.
func proposalSnapshot(p devhub.Proposal, version string, ts, height int64) *store.ProposalSnapshot {
	snap := &store.ProposalSnapshot{
		ProposalID:              int64(p.ID),
		Ts:                      ts,
		BlockHeight:             height,
		EditorID:                p.Snapshot.EditorID,
		SocialDBPostBlockHeight: p.SocialDBPostBlockHeight.Int64(),
		Labels:                  sortedLabels(p.Snapshot.Labels),
		ProposalVersion:         version,
		LinkedProposals:         store.IDList{},
	}
	body := p.Snapshot.Body
	if body == nil {
		return snap
	}

	snap.ProposalBodyVersion = body.Version()
	snap.Name = ptr(body.Name())
	snap.Category = ptr(body.Category())
	snap.Summary = ptr(body.Summary())
	snap.Description = ptr(body.Description())
	snap.LinkedProposals = idList(body.LinkedProposals())
	if rfp := body.LinkedRFP(); rfp != nil {
		snap.LinkedRFP = ptr(int64(*rfp))
	}
	snap.RequestedSponsorshipUSDAmount = ptr(clampInt64(body.RequestedSponsorshipUSDAmount()))
	snap.RequestedSponsorshipPaidInCurrency = ptr(body.RequestedSponsorshipPaidInCurrency())
	snap.RequestedSponsor = ptr(body.RequestedSponsor())
	snap.ReceiverAccount = ptr(body.ReceiverAccount())
	snap.Supervisor = body.Supervisor()
	if timeline := devhub.CompactTimeline(body.Timeline()); timeline != "" {
		snap.Timeline = &timeline
	}
	snap.Stage = devhub.Stage(body.Timeline())
	return snap
}

func rfpSnapshot(r devhub.RFP, version string, ts, height int64) *store.RFPSnapshot {
	snap := &store.RFPSnapshot{
		RFPID:                   int64(r.ID),
		Ts:                      ts,
		BlockHeight:             height,
		EditorID:                r.Snapshot.EditorID,
		SocialDBPostBlockHeight: r.SocialDBPostBlockHeight.Int64(),
		Labels:                  sortedLabels(r.Snapshot.Labels),
		LinkedProposals:         idList(r.Snapshot.LinkedProposals),
		RFPVersion:              version,
		Views:                   ptr(int64(0)),
	}
	body := r.Snapshot.Body
	if body == nil {
		return snap
	}

	snap.RFPBodyVersion = body.Version()
	snap.Name = ptr(body.Name())
	snap.Summary = ptr(body.Summary())
	snap.Description = ptr(body.Description())
	if timeline := devhub.CompactTimeline(body.Timeline()); timeline != "" {
		snap.Timeline = &timeline
	}
	snap.Stage = devhub.Stage(body.Timeline())
	snap.SubmissionDeadline = clampInt64(body.SubmissionDeadline())
	return snap
}

func sortedLabels(labels []string) store.StringList {
	out := make(store.StringList, len(labels))
	copy(out, labels)
	sort.Strings(out)
	return out
}

func idList(ids []uint32) store.IDList {
	out := make(store.IDList, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func ptr[T any](v T) *T { return &v }
