package contract

import (
	"fmt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/op/go-logging"
	"math/big"
	"time"
)

// Options are the contract defaults and tracking limits.
type Options struct {
	From     common.Address
	Gas      uint64
	GasPrice *big.Int
	Data     []byte

	PollingTimeout     time.Duration
	BlockTimeout       uint64
	ConfirmationBlocks uint64

	Logger *logging.Logger
}

// Option is a contract option type.
type Option func(*Options) error

// Defaults are the default options. This option will be automatically
// prepended to any options you pass to the constructor.
var Defaults = func(o *Options) error {
	o.PollingTimeout = time.Second * 750
	o.BlockTimeout = 50
	o.ConfirmationBlocks = 24
	o.Logger = logging.MustGetLogger("contract")
	return nil
}

// Apply applies the given options to this Options.
func (o *Options) Apply(opts ...Option) error {
	for i, opt := range opts {
		if err := opt(o); err != nil {
			return fmt.Errorf("contract option %d failed: %s", i, err)
		}
	}
	return nil
}

// From sets the default sender.
func From(addr common.Address) Option {
	return func(o *Options) error {
		o.From = addr
		return nil
	}
}

// Gas sets the default gas limit. Zero leaves the limit to the node.
func Gas(gas uint64) Option {
	return func(o *Options) error {
		o.Gas = gas
		return nil
	}
}

// GasPrice sets the default gas price.
//
// Defaults to the node's eth_gasPrice at send time.
func GasPrice(price *big.Int) Option {
	return func(o *Options) error {
		o.GasPrice = price
		return nil
	}
}

// Data sets the default deployment bytecode.
func Data(data []byte) Option {
	return func(o *Options) error {
		o.Data = data
		return nil
	}
}

// PollingTimeout bounds how long a transaction is waited on, and how long
// confirmations are waited on after the receipt.
//
// Defaults to 750 seconds.
func PollingTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("polling timeout must be positive")
		}
		o.PollingTimeout = d
		return nil
	}
}

// BlockTimeout is the number of blocks after which a transaction that is
// still not mined fails.
//
// Defaults to 50.
func BlockTimeout(blocks uint64) Option {
	return func(o *Options) error {
		if blocks == 0 {
			return fmt.Errorf("block timeout must be positive")
		}
		o.BlockTimeout = blocks
		return nil
	}
}

// ConfirmationBlocks is the number of confirmations tracked before the
// handle settles. The value itself has no upper limit, and cancelling the
// context passed to Send ends tracking at any point. Zero settles right
// after the receipt.
//
// Defaults to 24, so a handle left alone stops polling eventually.
func ConfirmationBlocks(blocks uint64) Option {
	return func(o *Options) error {
		o.ConfirmationBlocks = blocks
		return nil
	}
}

// Logger sets the logger.
func Logger(logger *logging.Logger) Option {
	return func(o *Options) error {
		o.Logger = logger
		return nil
	}
}
