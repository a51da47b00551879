package ethclient

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/cenkalti/backoff"
	"github.com/cpacia/ethrpc/base"
	"github.com/cpacia/ethrpc/manager"
	"github.com/cpacia/ethrpc/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/op/go-logging"
	"math/big"
	"sync"
	"time"
)

// DefaultPollingInterval is used when no interval is configured.
const DefaultPollingInterval = time.Second

// ErrClientClosed is returned by SubscribeBlocks after Close.
var ErrClientClosed = errors.New("eth client closed")

// TransactionArgs are the arguments of eth_sendTransaction, eth_call and
// eth_estimateGas. A nil To means contract creation.
type TransactionArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
}

// EthClient issues eth_* calls through a RequestManager, so it works with
// whichever provider shape is active.
type EthClient struct {
	mgr          *manager.RequestManager
	pollInterval time.Duration
	logger       *logging.Logger

	subMtx    sync.Mutex
	nextSub   uint64
	blockSubs map[uint64]*base.BlockSubscription
	shutdown  chan struct{}
	closed    bool
}

// NewEthClient returns a client using mgr. A zero pollInterval uses
// DefaultPollingInterval and a nil logger a package logger.
func NewEthClient(mgr *manager.RequestManager, pollInterval time.Duration, logger *logging.Logger) *EthClient {
	if pollInterval <= 0 {
		pollInterval = DefaultPollingInterval
	}
	if logger == nil {
		logger = logging.MustGetLogger("ethclient")
	}
	return &EthClient{
		mgr:          mgr,
		pollInterval: pollInterval,
		logger:       logger,
		subMtx:       sync.Mutex{},
		blockSubs:    make(map[uint64]*base.BlockSubscription),
		shutdown:     make(chan struct{}),
	}
}

// BlockNumber returns the latest block number.
func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.mgr.Call(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// TransactionReceipt returns base.ErrReceiptNotFound while the transaction
// is pending.
func (c *EthClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	raw, err := c.mgr.Send(ctx, provider.Request{
		Method: "eth_getTransactionReceipt",
		Params: []interface{}{hash.Hex()},
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, base.ErrReceiptNotFound
	}
	var rcpt types.Receipt
	if err := json.Unmarshal(raw, &rcpt); err != nil {
		return nil, &provider.TransportError{Err: err}
	}
	return &rcpt, nil
}

// GasPrice returns the node's suggested gas price.
func (c *EthClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.mgr.Call(ctx, &price, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return price.ToInt(), nil
}

// EstimateGas estimates the gas needed by args.
func (c *EthClient) EstimateGas(ctx context.Context, args TransactionArgs) (uint64, error) {
	var gas hexutil.Uint64
	if err := c.mgr.Call(ctx, &gas, "eth_estimateGas", args); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// SendTransaction submits args for the node to sign and returns the hash.
func (c *EthClient) SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	var hash common.Hash
	if err := c.mgr.Call(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// Call executes args against the latest block without a transaction.
func (c *EthClient) Call(ctx context.Context, args TransactionArgs) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.mgr.Call(ctx, &out, "eth_call", args, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscribeBlocks delivers new block numbers. Providers that support push
// delivery are subscribed to newHeads; others are polled with
// eth_blockNumber every poll interval and each skipped height is delivered
// in order. The current height is not delivered.
func (c *EthClient) SubscribeBlocks(ctx context.Context) (*base.BlockSubscription, error) {
	c.subMtx.Lock()
	if c.closed {
		c.subMtx.Unlock()
		return nil, ErrClientClosed
	}
	c.subMtx.Unlock()

	if subscriber, ok := c.mgr.Provider().(provider.Subscriber); ok {
		return c.subscribePush(ctx, subscriber)
	}
	return c.subscribePoll(ctx)
}

func (c *EthClient) newBlockSubscription() (*base.BlockSubscription, chan struct{}) {
	c.subMtx.Lock()
	defer c.subMtx.Unlock()

	sub := &base.BlockSubscription{
		Out: make(chan uint64),
		Err: make(chan error, 1),
	}

	id := c.nextSub
	c.nextSub++
	c.blockSubs[id] = sub

	subClose := make(chan struct{})
	var once sync.Once
	sub.Close = func() {
		once.Do(func() {
			close(subClose)
			c.subMtx.Lock()
			delete(c.blockSubs, id)
			c.subMtx.Unlock()
		})
	}
	return sub, subClose
}

func (c *EthClient) subscribePush(ctx context.Context, subscriber provider.Subscriber) (*base.BlockSubscription, error) {
	heads, err := subscriber.Subscribe(ctx, "newHeads")
	if err != nil {
		return nil, err
	}
	sub, subClose := c.newBlockSubscription()

	go func() {
		defer heads.Unsubscribe()
		for {
			select {
			case <-subClose:
				return
			case <-c.shutdown:
				return
			case err := <-heads.Err:
				c.sendErr(sub, err)
				return
			case raw, ok := <-heads.Out:
				if !ok {
					c.sendErr(sub, &provider.TransportError{Err: errors.New("head subscription closed")})
					return
				}
				var head struct {
					Number hexutil.Uint64 `json:"number"`
				}
				if err := json.Unmarshal(raw, &head); err != nil {
					c.logger.Warningf("Malformed head notification: %s", err)
					continue
				}
				select {
				case sub.Out <- uint64(head.Number):
				case <-subClose:
					return
				case <-c.shutdown:
					return
				}
			}
		}
	}()
	return sub, nil
}

func (c *EthClient) subscribePoll(ctx context.Context) (*base.BlockSubscription, error) {
	last, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	sub, subClose := c.newBlockSubscription()

	go func() {
		ticker := backoff.NewTicker(backoff.NewConstantBackOff(c.pollInterval))
		defer ticker.Stop()
		for {
			select {
			case <-subClose:
				return
			case <-c.shutdown:
				return
			case <-ticker.C:
				height, err := c.BlockNumber(ctx)
				if err != nil {
					c.sendErr(sub, err)
					return
				}
				for ; last < height; last++ {
					select {
					case sub.Out <- last + 1:
					case <-subClose:
						return
					case <-c.shutdown:
						return
					}
				}
			}
		}
	}()
	return sub, nil
}

func (c *EthClient) sendErr(sub *base.BlockSubscription, err error) {
	select {
	case sub.Err <- err:
	default:
	}
}

// Subscriptions returns the number of open block subscriptions.
func (c *EthClient) Subscriptions() int {
	c.subMtx.Lock()
	defer c.subMtx.Unlock()
	return len(c.blockSubs)
}

// Ready returns provider.ErrProviderNotAvailable if no provider is set.
func (c *EthClient) Ready() error {
	if c.mgr.Provider() == nil {
		return provider.ErrProviderNotAvailable
	}
	return nil
}

// Close closes every open block subscription. Later calls to
// SubscribeBlocks fail with ErrClientClosed.
func (c *EthClient) Close() error {
	c.subMtx.Lock()
	if c.closed {
		c.subMtx.Unlock()
		return nil
	}
	c.closed = true
	close(c.shutdown)
	subs := make([]*base.BlockSubscription, 0, len(c.blockSubs))
	for _, sub := range c.blockSubs {
		subs = append(subs, sub)
	}
	c.subMtx.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

var _ base.ChainClient = (*EthClient)(nil)
