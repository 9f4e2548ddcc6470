package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/lock"
	"github.com/stake-plus/devhub-cache/src/metrics"
	"github.com/stake-plus/devhub-cache/src/nearrpc"
	"github.com/stake-plus/devhub-cache/src/store"
)

// ContractReader fetches authoritative entity state.
type ContractReader interface {
	GetProposal(ctx context.Context, id uint32, ref nearrpc.BlockRef) (*devhub.VersionedProposal, error)
	GetRFP(ctx context.Context, id uint32, ref nearrpc.BlockRef) (*devhub.VersionedRFP, error)
}

// Reconciler turns one routed transaction into entity and snapshot writes.
// Contract reads happen before the storage transaction opens; each
// transaction's writes commit together.
type Reconciler struct {
	store  *store.Store
	reader ContractReader
	locker lock.Locker
	// offset is added to the receipt height for pinned edit reads.
	offset int64
	log    *zap.Logger
}

func NewReconciler(st *store.Store, reader ContractReader, locker lock.Locker, blockHeightOffset int64, log *zap.Logger) *Reconciler {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Reconciler{store: st, reader: reader, locker: locker, offset: blockHeightOffset, log: log.Named("reconciler")}
}

func txFields(tx devhub.Transaction) []zap.Field {
	return []zap.Field{
		zap.String("tx", tx.TransactionHash),
		zap.String("receipt", tx.ReceiptID),
		zap.String("method", tx.Method()),
		zap.Int64("block_height", tx.Height()),
	}
}

// BootstrapProposal handles set_block_height_callback. The current state is
// read at chain head; when that fails the body embedded in the callback is
// used instead.
func (r *Reconciler) BootstrapProposal(ctx context.Context, tx devhub.Transaction) error {
	var args devhub.SetBlockHeightCallbackArgs
	if err := json.Unmarshal([]byte(tx.Args()), &args); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedArgs, tx.Method(), err)
	}
	if args.Proposal == nil || args.Proposal.Snapshot.Body == nil {
		return fmt.Errorf("%w: %s: missing proposal", ErrMalformedArgs, tx.Method())
	}
	embedded := *args.Proposal
	ts, err := txTimestamp(tx)
	if err != nil {
		return err
	}

	proposal, version := embedded, devhub.ProposalV0
	current, err := r.reader.GetProposal(ctx, embedded.ID, nearrpc.Head)
	if err != nil {
		metrics.RPCFallbacks.WithLabelValues("proposal").Inc()
		r.log.Warn("get_proposal failed, using callback body",
			append(txFields(tx), zap.Uint32("proposal_id", embedded.ID), zap.Error(err))...)
	} else {
		proposal, version = current.Proposal, current.Version
	}

	snap := proposalSnapshot(proposal, version, ts, tx.Height())
	return r.writeProposal(ctx, embedded.AuthorID, snap)
}

// EditProposal handles every proposal edit method. The post-edit state is
// read pinned to the receipt's block; failing that read is fatal for the
// batch.
func (r *Reconciler) EditProposal(ctx context.Context, tx devhub.Transaction) error {
	id, err := editID(tx)
	if err != nil {
		return err
	}
	ts, err := txTimestamp(tx)
	if err != nil {
		return err
	}
	ref := nearrpc.At(tx.ReceiptHeight() + r.offset)
	current, err := r.reader.GetProposal(ctx, id, ref)
	if err != nil {
		return fmt.Errorf("%w: get_proposal %d at block %d: %w", ErrAuthoritativeUnavailable, id, ref.Height, err)
	}

	snap := proposalSnapshot(current.Proposal, current.Version, ts, tx.Height())
	return r.writeProposal(ctx, current.AuthorID, snap)
}

// BootstrapRFP handles set_rfp_block_height_callback.
func (r *Reconciler) BootstrapRFP(ctx context.Context, tx devhub.Transaction) error {
	var args devhub.SetRFPBlockHeightCallbackArgs
	if err := json.Unmarshal([]byte(tx.Args()), &args); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedArgs, tx.Method(), err)
	}
	if args.RFP == nil || args.RFP.Snapshot.Body == nil {
		return fmt.Errorf("%w: %s: missing rfp", ErrMalformedArgs, tx.Method())
	}
	embedded := *args.RFP
	ts, err := txTimestamp(tx)
	if err != nil {
		return err
	}

	rfp, version := embedded, devhub.RFPV0
	current, err := r.reader.GetRFP(ctx, embedded.ID, nearrpc.Head)
	if err != nil {
		metrics.RPCFallbacks.WithLabelValues("rfp").Inc()
		r.log.Warn("get_rfp failed, using callback body",
			append(txFields(tx), zap.Uint32("rfp_id", embedded.ID), zap.Error(err))...)
	} else {
		rfp, version = current.RFP, current.Version
	}

	snap := rfpSnapshot(rfp, version, ts, tx.Height())
	return r.writeRFP(ctx, embedded.AuthorID, snap)
}

// EditRFP handles every RFP edit method including cancel_rfp.
func (r *Reconciler) EditRFP(ctx context.Context, tx devhub.Transaction) error {
	id, err := editID(tx)
	if err != nil {
		return err
	}
	ts, err := txTimestamp(tx)
	if err != nil {
		return err
	}
	ref := nearrpc.At(tx.ReceiptHeight() + r.offset)
	current, err := r.reader.GetRFP(ctx, id, ref)
	if err != nil {
		return fmt.Errorf("%w: get_rfp %d at block %d: %w", ErrAuthoritativeUnavailable, id, ref.Height, err)
	}

	snap := rfpSnapshot(current.RFP, current.Version, ts, tx.Height())
	return r.writeRFP(ctx, current.AuthorID, snap)
}

func txTimestamp(tx devhub.Transaction) (int64, error) {
	ts, err := tx.Timestamp()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedArgs, tx.Method(), err)
	}
	return ts, nil
}

func editID(tx devhub.Transaction) (uint32, error) {
	var args devhub.EditArgs
	if err := json.Unmarshal([]byte(tx.Args()), &args); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedArgs, tx.Method(), err)
	}
	if args.ID == nil {
		return 0, fmt.Errorf("%w: %s: missing id", ErrMalformedArgs, tx.Method())
	}
	if *args.ID > 1<<32-1 {
		return 0, fmt.Errorf("%w: %s: id %d out of range", ErrMalformedArgs, tx.Method(), *args.ID)
	}
	return uint32(*args.ID), nil
}

func (r *Reconciler) writeProposal(ctx context.Context, authorID string, snap *store.ProposalSnapshot) error {
	unlockProposal, err := r.locker.Lock(ctx, proposalLockKey(snap.ProposalID))
	if err != nil {
		return err
	}
	defer unlockProposal()

	var prev *int64
	before, err := r.store.ProposalSnapshotBefore(ctx, snap.ProposalID, snap.Ts)
	switch {
	case err == nil:
		prev = before.LinkedRFP
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	unlockRFPs, err := lock.LockAll(ctx, r.locker, linkKeys(prev, snap.LinkedRFP)...)
	if err != nil {
		return err
	}
	defer unlockRFPs()

	return r.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.UpsertProposal(ctx, snap.ProposalID, authorID); err != nil {
			return err
		}
		if err := r.maintainLinks(ctx, tx, prev, snap); err != nil {
			return err
		}
		return tx.UpsertProposalSnapshot(ctx, snap)
	})
}

func (r *Reconciler) writeRFP(ctx context.Context, authorID string, snap *store.RFPSnapshot) error {
	unlock, err := r.locker.Lock(ctx, rfpLockKey(snap.RFPID))
	if err != nil {
		return err
	}
	defer unlock()

	return r.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.UpsertRFP(ctx, snap.RFPID, authorID); err != nil {
			return err
		}
		return tx.UpsertRFPSnapshot(ctx, snap)
	})
}
