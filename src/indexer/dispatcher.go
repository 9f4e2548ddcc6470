package indexer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/metrics"
)

// Handlers receive routed transactions. *Reconciler implements it.
type Handlers interface {
	BootstrapProposal(ctx context.Context, tx devhub.Transaction) error
	EditProposal(ctx context.Context, tx devhub.Transaction) error
	BootstrapRFP(ctx context.Context, tx devhub.Transaction) error
	EditRFP(ctx context.Context, tx devhub.Transaction) error
}

// Outcome is what dispatching one transaction amounted to.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeFailedReceipt Outcome = "failed_receipt"
	OutcomeUnhandled     Outcome = "unhandled"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeError         Outcome = "error"
)

type route func(ctx context.Context, tx devhub.Transaction) error

// Dispatcher routes feed transactions to handlers by contract method.
type Dispatcher struct {
	routes map[string]route
	log    *zap.Logger
}

func NewDispatcher(h Handlers, log *zap.Logger) *Dispatcher {
	routes := map[string]route{
		devhub.MethodSetBlockHeightCallback:    h.BootstrapProposal,
		devhub.MethodSetRFPBlockHeightCallback: h.BootstrapRFP,
	}
	for _, m := range []string{
		devhub.MethodEditProposal,
		devhub.MethodEditProposalTimeline,
		devhub.MethodEditProposalVersionedTimeline,
		devhub.MethodEditProposalLinkedRFP,
		devhub.MethodEditProposalInternal,
	} {
		routes[m] = h.EditProposal
	}
	for _, m := range []string{
		devhub.MethodEditRFP,
		devhub.MethodEditRFPInternal,
		devhub.MethodEditRFPTimeline,
		devhub.MethodCancelRFP,
	} {
		routes[m] = h.EditRFP
	}
	return &Dispatcher{routes: routes, log: log.Named("dispatcher")}
}

// Dispatch applies one transaction. Malformed arguments are reported as
// OutcomeMalformed with a nil error so the caller moves on.
func (d *Dispatcher) Dispatch(ctx context.Context, tx devhub.Transaction) (Outcome, error) {
	if !tx.Succeeded() {
		return OutcomeFailedReceipt, nil
	}
	method := tx.Method()
	handle, ok := d.routes[method]
	if !ok {
		d.log.Debug("ignoring method", zap.String("method", method), zap.String("tx", tx.TransactionHash))
		return OutcomeUnhandled, nil
	}
	err := handle(ctx, tx)
	switch {
	case err == nil:
		return OutcomeApplied, nil
	case errors.Is(err, ErrMalformedArgs):
		d.log.Warn("skipping transaction with malformed arguments",
			zap.String("method", method), zap.String("tx", tx.TransactionHash), zap.Error(err))
		return OutcomeMalformed, nil
	default:
		return OutcomeError, err
	}
}

// Process dispatches txns in order and returns how many were handled. It
// stops at the first fatal error; transactions from that one on are left for
// the next pass.
func (d *Dispatcher) Process(ctx context.Context, txns []devhub.Transaction) (int, error) {
	for i, tx := range txns {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		outcome, err := d.Dispatch(ctx, tx)
		metrics.Transactions.WithLabelValues(string(outcome)).Inc()
		if err != nil {
			d.log.Error("transaction failed, halting batch",
				zap.Int("index", i),
				zap.String("method", tx.Method()),
				zap.String("tx", tx.TransactionHash),
				zap.Int64("block_height", tx.Height()),
				zap.Error(err))
			return i, err
		}
	}
	return len(txns), nil
}
