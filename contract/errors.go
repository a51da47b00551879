package contract

import (
	"errors"
	"fmt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"time"
)

var (
	// ErrNoContractData is returned synchronously when a deployment has no
	// bytecode.
	ErrNoContractData = errors.New("no data provided")

	// ErrNoAddress is returned when a method is sent or called on a
	// contract that is not bound to an address.
	ErrNoAddress = errors.New("contract address not set")
)

// OnChainExecutionError is returned when the transaction was mined but its
// execution failed.
type OnChainExecutionError struct {
	Receipt    *types.Receipt
	Deployment bool
}

func (e *OnChainExecutionError) Error() string {
	if e.Deployment {
		return "contract deployment error"
	}
	return "transaction has been reverted by the EVM"
}

// TransactionTimeoutError is returned when a transaction is not mined in
// time. Blocks is set when the block limit was hit, Elapsed otherwise.
type TransactionTimeoutError struct {
	Hash    common.Hash
	Blocks  uint64
	Elapsed time.Duration
}

func (e *TransactionTimeoutError) Error() string {
	if e.Blocks > 0 {
		return fmt.Sprintf("transaction %s was not mined within %d blocks", e.Hash.Hex(), e.Blocks)
	}
	return fmt.Sprintf("transaction %s was not mined within %s", e.Hash.Hex(), e.Elapsed)
}
