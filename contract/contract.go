package contract

import (
	"context"
	"github.com/cpacia/ethrpc/base"
	"github.com/cpacia/ethrpc/client/ethclient"
	"github.com/cpacia/ethrpc/lifecycle"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"math/big"
	"strings"
)

// Backend is what a contract needs from the chain.
type Backend interface {
	base.ChainClient

	// Ready returns an error if requests cannot be issued at all, e.g.
	// because no provider is set.
	Ready() error

	GasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, args ethclient.TransactionArgs) (common.Hash, error)
	Call(ctx context.Context, args ethclient.TransactionArgs) ([]byte, error)
}

// Contract is an ABI bound to an optional address.
type Contract struct {
	ABI     abi.ABI
	Address *common.Address

	backend Backend
	opts    Options
}

// New parses abiJSON and returns a contract. address may be nil for a
// contract that is yet to be deployed.
func New(abiJSON string, address *common.Address, backend Backend, opts ...Option) (*Contract, error) {
	var o Options
	if err := o.Apply(append([]Option{Defaults}, opts...)...); err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &Contract{
		ABI:     parsed,
		Address: address,
		backend: backend,
		opts:    o,
	}, nil
}

// At returns a copy of the contract bound to addr.
func (c *Contract) At(addr common.Address) *Contract {
	bound := *c
	bound.Address = &addr
	return &bound
}

// Options returns the contract's options.
func (c *Contract) Options() Options {
	return c.opts
}

// SendOptions override the contract defaults for one transaction.
type SendOptions struct {
	From     common.Address
	Gas      uint64
	GasPrice *big.Int
	Value    *big.Int
}

// CallOptions override the contract defaults for one call.
type CallOptions struct {
	From common.Address
}

// DeployOptions describe a deployment. Data falls back to the contract's
// default bytecode.
type DeployOptions struct {
	Data      []byte
	Arguments []interface{}
}

// DeployMethod is a pending deployment.
type DeployMethod struct {
	contract *Contract
	data     []byte
	args     []interface{}
}

// Deploy prepares a deployment.
func (c *Contract) Deploy(opts DeployOptions) *DeployMethod {
	data := opts.Data
	if len(data) == 0 {
		data = c.opts.Data
	}
	return &DeployMethod{
		contract: c,
		data:     data,
		args:     opts.Arguments,
	}
}

// EncodeABI returns the bytecode followed by the packed constructor
// arguments.
func (d *DeployMethod) EncodeABI() ([]byte, error) {
	if len(d.data) == 0 {
		return nil, ErrNoContractData
	}
	packed, err := d.contract.ABI.Pack("", d.args...)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, d.data...), packed...), nil
}

// Send submits the deployment and returns a handle tracking it. The
// handle's result is a *Contract bound to the new address. A deployment
// without bytecode or without a provider fails here, before any event or
// network call.
func (d *DeployMethod) Send(ctx context.Context, opts SendOptions) (*lifecycle.Handle, error) {
	data, err := d.EncodeABI()
	if err != nil {
		return nil, err
	}
	if err := d.contract.backend.Ready(); err != nil {
		return nil, err
	}
	args := d.contract.transactionArgs(nil, data, opts)
	return d.contract.track(ctx, args, true), nil
}

// Method is a pending method invocation.
type Method struct {
	contract *Contract
	name     string
	args     []interface{}
}

// Method prepares an invocation of the named ABI method.
func (c *Contract) Method(name string, args ...interface{}) *Method {
	return &Method{
		contract: c,
		name:     name,
		args:     args,
	}
}

// EncodeABI returns the selector followed by the packed arguments.
func (m *Method) EncodeABI() ([]byte, error) {
	return m.contract.ABI.Pack(m.name, m.args...)
}

// Send submits a transaction invoking the method and returns a handle
// tracking it. The handle's result is the *types.Receipt.
func (m *Method) Send(ctx context.Context, opts SendOptions) (*lifecycle.Handle, error) {
	if m.contract.Address == nil {
		return nil, ErrNoAddress
	}
	data, err := m.EncodeABI()
	if err != nil {
		return nil, err
	}
	if err := m.contract.backend.Ready(); err != nil {
		return nil, err
	}
	args := m.contract.transactionArgs(m.contract.Address, data, opts)
	return m.contract.track(ctx, args, false), nil
}

// Call executes the method with eth_call and unpacks its outputs.
func (m *Method) Call(ctx context.Context, opts CallOptions) ([]interface{}, error) {
	if m.contract.Address == nil {
		return nil, ErrNoAddress
	}
	data, err := m.EncodeABI()
	if err != nil {
		return nil, err
	}
	from := opts.From
	if from == (common.Address{}) {
		from = m.contract.opts.From
	}
	out, err := m.contract.backend.Call(ctx, ethclient.TransactionArgs{
		From: from,
		To:   m.contract.Address,
		Data: data,
	})
	if err != nil {
		return nil, err
	}
	return m.contract.ABI.Unpack(m.name, out)
}

func (c *Contract) transactionArgs(to *common.Address, data []byte, opts SendOptions) ethclient.TransactionArgs {
	args := ethclient.TransactionArgs{
		From: opts.From,
		To:   to,
		Data: data,
	}
	if args.From == (common.Address{}) {
		args.From = c.opts.From
	}

	gas := opts.Gas
	if gas == 0 {
		gas = c.opts.Gas
	}
	if gas > 0 {
		g := hexutil.Uint64(gas)
		args.Gas = &g
	}

	price := opts.GasPrice
	if price == nil {
		price = c.opts.GasPrice
	}
	if price != nil {
		args.GasPrice = (*hexutil.Big)(new(big.Int).Set(price))
	}
	if opts.Value != nil {
		args.Value = (*hexutil.Big)(new(big.Int).Set(opts.Value))
	}
	return args
}
