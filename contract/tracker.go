package contract

import (
	"context"
	"errors"
	"github.com/cpacia/ethrpc/base"
	"github.com/cpacia/ethrpc/client/ethclient"
	"github.com/cpacia/ethrpc/lifecycle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"time"
)

var errBlocksClosed = errors.New("block subscription closed")

// track starts the background task driving a handle through its states
// and returns the handle immediately. Listeners attached after the task
// started still receive every event.
func (c *Contract) track(ctx context.Context, args ethclient.TransactionArgs, deployment bool) *lifecycle.Handle {
	h := lifecycle.NewHandle()
	go c.run(ctx, h, args, deployment)
	return h
}

func (c *Contract) run(ctx context.Context, h *lifecycle.Handle, args ethclient.TransactionArgs, deployment bool) {
	log := c.opts.Logger

	if args.GasPrice == nil {
		price, err := c.backend.GasPrice(ctx)
		if err != nil {
			log.Errorf("[%s] Fetching gas price failed: %s", h.ID, err)
			h.Fail(err)
			return
		}
		args.GasPrice = (*hexutil.Big)(price)
	}

	h.Transition(lifecycle.Sending, lifecycle.EventSending, args)

	hash, err := c.backend.SendTransaction(ctx, args)
	if err != nil {
		log.Errorf("[%s] Sending transaction failed: %s", h.ID, err)
		h.Fail(err)
		return
	}
	h.Transition(lifecycle.Sent, lifecycle.EventSent, args)
	h.Transition(lifecycle.HashKnown, lifecycle.EventTransactionHash, hash.Hex())
	log.Debugf("[%s] Transaction %s sent", h.ID, hash.Hex())

	blocks, err := c.backend.SubscribeBlocks(ctx)
	if err != nil {
		h.Fail(err)
		return
	}
	defer blocks.Close()

	rcpt, err := c.waitMined(ctx, hash, blocks)
	if err != nil {
		log.Warningf("[%s] Transaction %s failed: %s", h.ID, hash.Hex(), err)
		h.Fail(err)
		return
	}
	h.Transition(lifecycle.ReceiptKnown, lifecycle.EventReceipt, rcpt)

	if rcpt.Status != types.ReceiptStatusSuccessful {
		log.Warningf("[%s] Transaction %s reverted", h.ID, hash.Hex())
		h.Fail(&OnChainExecutionError{Receipt: rcpt, Deployment: deployment})
		return
	}

	if deployment {
		h.Resolve(c.At(rcpt.ContractAddress))
	} else {
		h.Resolve(rcpt)
	}

	c.confirm(ctx, h, rcpt, blocks)
}

// waitMined checks for the receipt once, then again on every new block.
func (c *Contract) waitMined(ctx context.Context, hash common.Hash, blocks *base.BlockSubscription) (*types.Receipt, error) {
	start := time.Now()
	timer := time.NewTimer(c.opts.PollingTimeout)
	defer timer.Stop()

	var waited uint64
	for {
		rcpt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return rcpt, nil
		}
		if err != base.ErrReceiptNotFound {
			return nil, err
		}
		if waited >= c.opts.BlockTimeout {
			return nil, &TransactionTimeoutError{Hash: hash, Blocks: waited}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, &TransactionTimeoutError{Hash: hash, Elapsed: time.Since(start)}
		case err := <-blocks.Err:
			return nil, err
		case _, ok := <-blocks.Out:
			if !ok {
				return nil, errBlocksClosed
			}
			waited++
		}
	}
}

// confirm emits a confirmation for every block above the receipt's block.
// The handle settles once ConfirmationBlocks were emitted, or earlier if the
// block stream goes quiet for PollingTimeout.
func (c *Contract) confirm(ctx context.Context, h *lifecycle.Handle, rcpt *types.Receipt, blocks *base.BlockSubscription) {
	timer := time.NewTimer(c.opts.PollingTimeout)
	defer timer.Stop()

	var count uint64
	for count < c.opts.ConfirmationBlocks {
		select {
		case <-ctx.Done():
			h.Settle()
			return
		case <-timer.C:
			c.opts.Logger.Debugf("[%s] Stopped waiting on confirmations after %d", h.ID, count)
			h.Settle()
			return
		case err := <-blocks.Err:
			if ctx.Err() != nil {
				h.Settle()
				return
			}
			h.Fail(err)
			return
		case height, ok := <-blocks.Out:
			if !ok {
				h.Fail(errBlocksClosed)
				return
			}
			if rcpt.BlockNumber != nil && height <= rcpt.BlockNumber.Uint64() {
				continue
			}
			count++
			h.Transition(lifecycle.Confirming, lifecycle.EventConfirmation, lifecycle.Confirmation{Count: count, Receipt: rcpt})
			timer.Reset(c.opts.PollingTimeout)
		}
	}
	h.Settle()
}
