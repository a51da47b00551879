package base

import (
	"context"
	"errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReceiptNotFound is returned while a transaction is still pending.
var ErrReceiptNotFound = errors.New("transaction receipt not found")

// BlockSubscription delivers new head block numbers. Close must be called
// to release the underlying subscription or poller.
type BlockSubscription struct {
	Out   chan uint64
	Err   chan error
	Close func()
}

// ChainClient is the block and receipt query surface the transaction
// lifecycle depends on.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)

	// TransactionReceipt returns ErrReceiptNotFound if the transaction is
	// not mined yet.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// SubscribeBlocks uses push delivery when the provider supports it and
	// falls back to polling otherwise.
	SubscribeBlocks(ctx context.Context) (*BlockSubscription, error)
}
