package devhub

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Transaction is one receipt-level entry from the nearblocks account feed.
type Transaction struct {
	ID                   string         `json:"id"`
	ReceiptID            string         `json:"receipt_id"`
	TransactionHash      string         `json:"transaction_hash"`
	PredecessorAccountID string         `json:"predecessor_account_id"`
	ReceiverAccountID    string         `json:"receiver_account_id"`
	BlockTimestamp       string         `json:"block_timestamp"`
	Block                BlockInfo      `json:"block"`
	ReceiptBlock         ReceiptBlock   `json:"receipt_block"`
	ReceiptOutcome       ReceiptOutcome `json:"receipt_outcome"`
	Actions              []Action       `json:"actions"`
}

type BlockInfo struct {
	BlockHeight int64 `json:"block_height"`
}

type ReceiptBlock struct {
	BlockHash      string `json:"block_hash"`
	BlockHeight    int64  `json:"block_height"`
	BlockTimestamp int64  `json:"block_timestamp"`
}

type ReceiptOutcome struct {
	Status bool `json:"status"`
}

type Action struct {
	Action  string          `json:"action"`
	Method  string          `json:"method"`
	Args    string          `json:"args"`
	Deposit json.RawMessage `json:"deposit,omitempty"`
	Fee     json.RawMessage `json:"fee,omitempty"`
}

// Succeeded reports whether the receipt executed successfully.
func (t Transaction) Succeeded() bool { return t.ReceiptOutcome.Status }

// Method is the first action's method name, "" when there are no actions.
func (t Transaction) Method() string {
	if len(t.Actions) == 0 {
		return ""
	}
	return t.Actions[0].Method
}

// Args is the first action's JSON argument string.
func (t Transaction) Args() string {
	if len(t.Actions) == 0 {
		return ""
	}
	return t.Actions[0].Args
}

// Timestamp is block_timestamp in nanoseconds.
func (t Transaction) Timestamp() (int64, error) {
	ts, err := strconv.ParseInt(t.BlockTimestamp, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("block_timestamp %q: %w", t.BlockTimestamp, err)
	}
	if ts <= 0 {
		return 0, fmt.Errorf("block_timestamp %q: not positive", t.BlockTimestamp)
	}
	return ts, nil
}

// Height is the including block's height.
func (t Transaction) Height() int64 { return t.Block.BlockHeight }

// ReceiptHeight is where the receipt executed, falling back to the
// transaction's block when the feed omitted the receipt block.
func (t Transaction) ReceiptHeight() int64 {
	if t.ReceiptBlock.BlockHeight > 0 {
		return t.ReceiptBlock.BlockHeight
	}
	return t.Block.BlockHeight
}
