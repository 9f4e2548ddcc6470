package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/metrics"
	"github.com/stake-plus/devhub-cache/src/store"
)

func rfpLockKey(id int64) string      { return fmt.Sprintf("rfp:%d", id) }
func proposalLockKey(id int64) string { return fmt.Sprintf("proposal:%d", id) }

func sameRFP(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// linkKeys are the RFP locks a proposal write needs when its link moves
// from prev to next.
func linkKeys(prev, next *int64) []string {
	if sameRFP(prev, next) {
		return nil
	}
	var keys []string
	for _, id := range []*int64{prev, next} {
		if id != nil {
			keys = append(keys, rfpLockKey(*id))
		}
	}
	return keys
}

// maintainLinks keeps RFP.linked_proposals in step with proposal.linked_rfp.
// prev is the link of the proposal's snapshot before snap. Both RFPs involved
// must already be locked by the caller.
func (r *Reconciler) maintainLinks(ctx context.Context, tx *store.Store, prev *int64, snap *store.ProposalSnapshot) error {
	next := snap.LinkedRFP
	if sameRFP(prev, next) {
		return nil
	}
	if next != nil {
		if err := r.relink(ctx, tx, *next, snap, true); err != nil {
			return err
		}
	}
	if prev != nil {
		if err := r.relink(ctx, tx, *prev, snap, false); err != nil {
			return err
		}
	}
	return nil
}

// relink adds or removes the proposal in the RFP's linked_proposals, writing
// the result as an RFP snapshot dated at the proposal edit.
func (r *Reconciler) relink(ctx context.Context, tx *store.Store, rfpID int64, snap *store.ProposalSnapshot, add bool) error {
	log := r.log.With(zap.Int64("rfp_id", rfpID), zap.Int64("proposal_id", snap.ProposalID), zap.Bool("add", add))

	base, err := tx.RFPSnapshotAsOf(ctx, rfpID, snap.Ts)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("linked rfp has no snapshot yet, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("indexer: load rfp %d for relink: %w", rfpID, err)
	}

	linked := make(store.IDList, 0, len(base.LinkedProposals)+1)
	changed := false
	for _, id := range base.LinkedProposals {
		if id == snap.ProposalID {
			if !add {
				changed = true
				continue
			}
		}
		linked = append(linked, id)
	}
	if add && !base.LinkedProposals.Contains(snap.ProposalID) {
		linked = append(linked, snap.ProposalID)
		changed = true
	}
	if !changed {
		return nil
	}

	updated := *base
	updated.Ts = snap.Ts
	updated.BlockHeight = snap.BlockHeight
	updated.LinkedProposals = linked
	if err := tx.UpsertRFPSnapshot(ctx, &updated); err != nil {
		return err
	}

	action := "remove"
	if add {
		action = "add"
	}
	metrics.LinkedProposalUpdates.WithLabelValues(action).Inc()
	log.Debug("rfp linked proposals updated", zap.Int("linked", len(linked)))
	return nil
}
