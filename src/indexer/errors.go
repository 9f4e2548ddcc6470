package indexer

import "errors"

var (
	// ErrMalformedArgs marks a transaction whose action arguments cannot be
	// parsed. The transaction is skipped and the batch continues.
	ErrMalformedArgs = errors.New("indexer: malformed action arguments")

	// ErrAuthoritativeUnavailable marks an edit whose post-edit state could
	// not be read from the contract. The batch stops and the cursor stays.
	ErrAuthoritativeUnavailable = errors.New("indexer: authoritative state unavailable")
)
