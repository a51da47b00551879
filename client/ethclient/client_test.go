package ethclient

import (
	"context"
	"errors"
	"github.com/cpacia/ethrpc/base"
	"github.com/cpacia/ethrpc/manager"
	"github.com/cpacia/ethrpc/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"testing"
	"time"
)

var testFrom = common.HexToAddress("0x876EabF441B2EE5B5b0554Fd502a8E0600950cFa")

func newTestClient(t *testing.T, node interface{}) *EthClient {
	mgr, err := manager.New(&manager.Config{Provider: node, Registry: provider.NewRegistry(), IDs: manager.NewIDGenerator()})
	if err != nil {
		t.Fatal(err)
	}
	client := NewEthClient(mgr, time.Millisecond*10, nil)
	t.Cleanup(func() { client.Close() })
	return client
}

func nextBlock(t *testing.T, sub *base.BlockSubscription) uint64 {
	t.Helper()
	select {
	case n := <-sub.Out:
		return n
	case err := <-sub.Err:
		t.Fatal(err)
	case <-time.After(time.Second * 5):
		t.Fatal("Timed out waiting on block")
	}
	return 0
}

func TestEthClient_BlockNumber(t *testing.T) {
	node := base.NewMockNode()
	client := newTestClient(t, node)

	node.GenerateBlock()
	node.GenerateBlock()

	n, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Expected 2, got %d", n)
	}
}

func TestEthClient_SendTransactionAndReceipt(t *testing.T) {
	node := base.NewMockNode()
	client := newTestClient(t, node)

	gas := hexutil.Uint64(1000000)
	hash, err := client.SendTransaction(context.Background(), TransactionArgs{
		From: testFrom,
		Gas:  &gas,
		Data: []byte{0x60, 0x80, 0x60, 0x40},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := client.TransactionReceipt(context.Background(), hash); err != base.ErrReceiptNotFound {
		t.Errorf("Expected ErrReceiptNotFound, got %v", err)
	}

	node.GenerateBlock()

	rcpt, err := client.TransactionReceipt(context.Background(), hash)
	if err != nil {
		t.Fatal(err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		t.Errorf("Expected successful receipt, got status %d", rcpt.Status)
	}
	if rcpt.TxHash != hash {
		t.Errorf("Expected hash %s, got %s", hash.Hex(), rcpt.TxHash.Hex())
	}
}

func TestEthClient_SendTransactionRejected(t *testing.T) {
	node := base.NewMockNode()
	client := newTestClient(t, node)

	gas := hexutil.Uint64(100)
	_, err := client.SendTransaction(context.Background(), TransactionArgs{From: testFrom, Gas: &gas, Data: []byte{0x60}})
	var ire *provider.InvalidResponseError
	if !errors.As(err, &ire) {
		t.Fatalf("Expected InvalidResponseError, got %v", err)
	}
}

func TestEthClient_GasPriceAndCall(t *testing.T) {
	node := base.NewMockNode()
	node.SetCallResult([]byte{0x01, 0x02})
	client := newTestClient(t, node)

	price, err := client.GasPrice(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if price.Int64() != 1000000000 {
		t.Errorf("Expected 1 gwei, got %s", price)
	}

	to := common.HexToAddress("0x01")
	out, err := client.Call(context.Background(), TransactionArgs{From: testFrom, To: &to})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != 0x01 || out[1] != 0x02 {
		t.Errorf("Unexpected call result %x", out)
	}

	gas, err := client.EstimateGas(context.Background(), TransactionArgs{From: testFrom})
	if err != nil {
		t.Fatal(err)
	}
	if gas == 0 {
		t.Error("Expected non-zero gas estimate")
	}
}

func TestEthClient_SubscribeBlocksPolling(t *testing.T) {
	node := base.NewMockNode()
	client := newTestClient(t, node)

	sub, err := client.SubscribeBlocks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	node.GenerateBlock()
	node.GenerateBlock()

	if n := nextBlock(t, sub); n != 1 {
		t.Errorf("Expected block 1, got %d", n)
	}
	if n := nextBlock(t, sub); n != 2 {
		t.Errorf("Expected block 2, got %d", n)
	}
	if node.Calls("eth_subscribe") != 0 {
		t.Error("Expected no push subscription for a polling provider")
	}
}

func TestEthClient_SubscribeBlocksPush(t *testing.T) {
	node := base.NewMockPushNode()
	client := newTestClient(t, node)

	sub, err := client.SubscribeBlocks(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	node.GenerateBlock()
	if n := nextBlock(t, sub); n != 1 {
		t.Errorf("Expected block 1, got %d", n)
	}
	if node.Calls("eth_subscribe") != 1 {
		t.Errorf("Expected one eth_subscribe call, got %d", node.Calls("eth_subscribe"))
	}
	if node.Calls("eth_blockNumber") != 0 {
		t.Errorf("Expected no polling, got %d eth_blockNumber calls", node.Calls("eth_blockNumber"))
	}

	sub.Close()
	sub.Close()

	deadline := time.Now().Add(time.Second * 5)
	for node.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Head subscription was not released")
		}
		time.Sleep(time.Millisecond * 10)
	}
}

func TestEthClient_SubscribeBlocksTransportError(t *testing.T) {
	node := base.NewMockNode()
	client := newTestClient(t, node)

	sub, err := client.SubscribeBlocks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	node.SetErrorResponse(base.ErrMockDisconnected)

	select {
	case err := <-sub.Err:
		if !errors.Is(err, base.ErrMockDisconnected) {
			t.Errorf("Expected ErrMockDisconnected, got %v", err)
		}
	case <-time.After(time.Second * 5):
		t.Fatal("Timed out waiting on error")
	}
}

func TestEthClient_Closed(t *testing.T) {
	client := newTestClient(t, base.NewMockNode())
	client.Close()
	if _, err := client.SubscribeBlocks(context.Background()); err != ErrClientClosed {
		t.Errorf("Expected ErrClientClosed, got %v", err)
	}
}

func TestEthClient_SubscriptionsClosedOnClose(t *testing.T) {
	client := newTestClient(t, base.NewMockNode())

	sub1, err := client.SubscribeBlocks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.SubscribeBlocks(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := client.Subscriptions(); n != 2 {
		t.Fatalf("Expected 2 subscriptions, got %d", n)
	}

	sub1.Close()
	sub1.Close()
	if n := client.Subscriptions(); n != 1 {
		t.Errorf("Expected 1 subscription, got %d", n)
	}

	client.Close()
	if n := client.Subscriptions(); n != 0 {
		t.Errorf("Expected 0 subscriptions after close, got %d", n)
	}
}

func TestEthClient_Ready(t *testing.T) {
	if err := newTestClient(t, nil).Ready(); err != provider.ErrProviderNotAvailable {
		t.Errorf("Expected ErrProviderNotAvailable, got %v", err)
	}
	if err := newTestClient(t, base.NewMockNode()).Ready(); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}
