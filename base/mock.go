package base

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cpacia/ethrpc/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"math/big"
	"math/rand"
	"sync"
)

const (
	txGas                 = 21000
	txGasContractCreation = 53000
	txDataZeroGas         = 4
	txDataNonZeroGas      = 16
)

// MockNode is an in-memory dev chain speaking the modern provider shape.
// Transactions stay pending until GenerateBlock is called, unless AutoMine
// is set. Deployment code starting with the INVALID opcode (0xfe) is mined
// with a failed status.
type MockNode struct {
	mtx      sync.RWMutex
	height   uint64
	nonces   map[common.Address]uint64
	pending  []*types.Receipt
	receipts map[common.Hash]*types.Receipt
	calls    map[string]int
	headSubs map[int32]chan json.RawMessage

	callResult []byte
	returnErr  error
	autoMine   bool
}

// NewMockNode returns a MockNode at height zero.
func NewMockNode() *MockNode {
	return &MockNode{
		mtx:      sync.RWMutex{},
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		calls:    make(map[string]int),
		headSubs: make(map[int32]chan json.RawMessage),
	}
}

// SetAutoMine mines a block right after every accepted transaction.
func (m *MockNode) SetAutoMine(autoMine bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.autoMine = autoMine
}

// SetErrorResponse makes every following call fail with a transport error.
func (m *MockNode) SetErrorResponse(err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.returnErr = err
}

// SetCallResult sets the raw return data of eth_call.
func (m *MockNode) SetCallResult(data []byte) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.callResult = data
}

// Calls returns how many times method was requested.
func (m *MockNode) Calls(method string) int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.calls[method]
}

// Height returns the current block number.
func (m *MockNode) Height() uint64 {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.height
}

// GenerateBlock mines all pending transactions into a new block.
func (m *MockNode) GenerateBlock() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.generateBlock()
}

func (m *MockNode) generateBlock() {
	m.height++

	r := make([]byte, 32)
	rand.Read(r)
	blockHash := common.BytesToHash(r)

	var cumulative uint64
	for i, rcpt := range m.pending {
		cumulative += rcpt.GasUsed
		rcpt.CumulativeGasUsed = cumulative
		rcpt.BlockNumber = new(big.Int).SetUint64(m.height)
		rcpt.BlockHash = blockHash
		rcpt.TransactionIndex = uint(i)
		m.receipts[rcpt.TxHash] = rcpt
	}
	m.pending = nil

	head, _ := json.Marshal(map[string]interface{}{
		"number": hexutil.Uint64(m.height),
		"hash":   blockHash,
	})
	for _, ch := range m.headSubs {
		select {
		case ch <- head:
		default:
		}
	}
}

// Request implements provider.Web3Provider.
func (m *MockNode) Request(ctx context.Context, req provider.Request) (json.RawMessage, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.calls[req.Method]++

	if m.returnErr != nil {
		return nil, &provider.TransportError{Endpoint: "mock", Err: m.returnErr}
	}

	switch req.Method {
	case "eth_blockNumber":
		return json.Marshal(hexutil.Uint64(m.height))
	case "eth_gasPrice":
		return json.Marshal((*hexutil.Big)(big.NewInt(1000000000)))
	case "eth_estimateGas":
		return json.Marshal(hexutil.Uint64(txGasContractCreation))
	case "eth_call":
		return json.Marshal(hexutil.Bytes(m.callResult))
	case "eth_sendTransaction":
		return m.sendTransaction(req.Params)
	case "eth_getTransactionReceipt":
		return m.transactionReceipt(req.Params)
	default:
		return nil, provider.NewInvalidResponseError(0, -32601, fmt.Sprintf("the method %s does not exist/is not available", req.Method))
	}
}

type mockTxArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Gas      *hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Value    *hexutil.Big    `json:"value"`
	Data     hexutil.Bytes   `json:"data"`
}

func (m *MockNode) sendTransaction(params []interface{}) (json.RawMessage, error) {
	if len(params) != 1 {
		return nil, provider.NewInvalidResponseError(0, -32602, "missing value for required argument 0")
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return nil, provider.NewInvalidResponseError(0, -32602, err.Error())
	}
	var args mockTxArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, provider.NewInvalidResponseError(0, -32602, err.Error())
	}

	intrinsic := intrinsicGas(args.Data, args.To == nil)
	gas := uint64(90000)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	if gas < intrinsic {
		return nil, provider.NewInvalidResponseError(0, -32000, "intrinsic gas too low")
	}

	nonce := m.nonces[args.From]
	m.nonces[args.From] = nonce + 1

	hash := crypto.Keccak256Hash(args.From.Bytes(), new(big.Int).SetUint64(nonce).Bytes(), args.Data)
	rcpt := &types.Receipt{
		Type:    types.LegacyTxType,
		Status:  types.ReceiptStatusSuccessful,
		TxHash:  hash,
		GasUsed: intrinsic,
		Logs:    []*types.Log{},
	}
	if args.To == nil {
		rcpt.ContractAddress = crypto.CreateAddress(args.From, nonce)
		if len(args.Data) > 0 && args.Data[0] == 0xfe {
			rcpt.Status = types.ReceiptStatusFailed
			rcpt.GasUsed = gas
		}
	}
	m.pending = append(m.pending, rcpt)

	if m.autoMine {
		m.generateBlock()
	}
	return json.Marshal(hash)
}

func (m *MockNode) transactionReceipt(params []interface{}) (json.RawMessage, error) {
	if len(params) != 1 {
		return nil, provider.NewInvalidResponseError(0, -32602, "missing value for required argument 0")
	}
	var hash common.Hash
	switch h := params[0].(type) {
	case string:
		hash = common.HexToHash(h)
	case common.Hash:
		hash = h
	default:
		return nil, provider.NewInvalidResponseError(0, -32602, "invalid transaction hash")
	}
	rcpt, ok := m.receipts[hash]
	if !ok {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(rcpt)
}

// MockPushNode is a MockNode that also supports eth_subscribe newHeads.
type MockPushNode struct {
	*MockNode
}

// NewMockPushNode returns a MockNode with push delivery.
func NewMockPushNode() *MockPushNode {
	return &MockPushNode{NewMockNode()}
}

// Subscribe implements provider.Subscriber.
func (m *MockPushNode) Subscribe(ctx context.Context, namespace string, params ...interface{}) (*provider.Subscription, error) {
	if namespace != "newHeads" {
		return nil, provider.NewInvalidResponseError(0, -32602, "unsupported subscription "+namespace)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.calls["eth_subscribe"]++
	if m.returnErr != nil {
		return nil, &provider.TransportError{Endpoint: "mock", Err: m.returnErr}
	}

	id := rand.Int31()
	out := make(chan json.RawMessage, 16)
	m.headSubs[id] = out

	var once sync.Once
	return &provider.Subscription{
		ID:  fmt.Sprintf("0x%x", id),
		Out: out,
		Err: make(chan error),
		Unsubscribe: func() {
			once.Do(func() {
				m.mtx.Lock()
				delete(m.headSubs, id)
				m.mtx.Unlock()
			})
		},
	}, nil
}

// Subscribers returns the number of live head subscriptions.
func (m *MockPushNode) Subscribers() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return len(m.headSubs)
}

func intrinsicGas(data []byte, creation bool) uint64 {
	gas := uint64(txGas)
	if creation {
		gas = txGasContractCreation
	}
	for _, b := range data {
		if b == 0 {
			gas += txDataZeroGas
		} else {
			gas += txDataNonZeroGas
		}
	}
	return gas
}

var _ provider.Web3Provider = (*MockNode)(nil)
var _ provider.Subscriber = (*MockPushNode)(nil)

// ErrMockDisconnected is a convenience transport failure for tests.
var ErrMockDisconnected = errors.New("mock node disconnected")
