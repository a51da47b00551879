package ethrpc

import (
	"context"
	"github.com/cpacia/ethrpc/base"
	"github.com/cpacia/ethrpc/contract"
	"github.com/cpacia/ethrpc/lifecycle"
	"github.com/cpacia/ethrpc/provider"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"os"
	"path"
	"strings"
	"testing"
	"time"
)

const storageABI = `[{"inputs":[],"stateMutability":"nonpayable","type":"constructor"},{"inputs":[],"name":"get","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

func TestNewWeb3(t *testing.T) {
	w, err := NewWeb3()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if w.Manager.Provider() != nil {
		t.Errorf("Expected no provider, got %T", w.Manager.Provider())
	}
	if _, err := w.Client.BlockNumber(context.Background()); err != provider.ErrProviderNotAvailable {
		t.Errorf("Expected ErrProviderNotAvailable, got %v", err)
	}

	providers := w.Providers()
	for _, family := range []provider.TransportFamily{provider.HTTP, provider.WebSocket, provider.IPC} {
		if _, ok := providers[family]; !ok {
			t.Errorf("Transport %s not registered", family)
		}
	}
}

func TestNewWeb3_Endpoint(t *testing.T) {
	w, err := NewWeb3(Endpoint("http://localhost:8545"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if shape := provider.Classify(w.Manager.Provider()); shape != provider.ShapeWeb3 {
		t.Errorf("Expected web3 shape, got %s", shape)
	}
}

func TestNewWeb3_UnsupportedEndpoint(t *testing.T) {
	_, err := NewWeb3(Endpoint("pc://mydomain.com"))
	if err == nil {
		t.Fatal("Expected error")
	}
	if err.Error() != `Can't autodetect provider for "pc://mydomain.com"` {
		t.Errorf("Unexpected error message: %s", err)
	}
}

func TestNewWeb3_BadOption(t *testing.T) {
	_, err := NewWeb3(PollingInterval(0))
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.HasPrefix(err.Error(), "ethrpc option 1 failed") {
		t.Errorf("Unexpected error message: %s", err)
	}
}

func TestNewWeb3_LogDir(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWeb3(LogDir(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.logger.Info("hello")

	data, err := os.ReadFile(path.Join(dir, defaultLogFilename))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[ethrpc] hello") {
		t.Errorf("Log file missing entry: %s", string(data))
	}
}

func TestWeb3_SetProvider(t *testing.T) {
	w, err := NewWeb3()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	node := base.NewMockNode()
	if err := w.SetProvider(node); err != nil {
		t.Fatal(err)
	}
	node.GenerateBlock()

	height, err := w.Client.BlockNumber(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if height != node.Height() {
		t.Errorf("Expected height %d, got %d", node.Height(), height)
	}
}

func TestWeb3_NewContract(t *testing.T) {
	node := base.NewMockNode()
	node.SetAutoMine(true)

	w, err := NewWeb3(Provider(node), PollingInterval(time.Millisecond*10), ConfirmationBlocks(0), BlockTimeout(5))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	c, err := w.NewContract(storageABI, nil)
	if err != nil {
		t.Fatal(err)
	}
	opts := c.Options()
	if opts.ConfirmationBlocks != 0 || opts.BlockTimeout != 5 || opts.PollingTimeout != time.Second*750 {
		t.Errorf("Contract did not inherit limits: %+v", opts)
	}

	h, err := c.Deploy(contract.DeployOptions{Data: hexutil.MustDecode("0x6080604052")}).Send(context.Background(), contract.SendOptions{Gas: 1500000})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	v, err := h.Result(ctx)
	if err != nil {
		t.Fatal(err)
	}
	deployed, ok := v.(*contract.Contract)
	if !ok || deployed.Address == nil {
		t.Fatalf("Expected deployed contract, got %v", v)
	}

	select {
	case <-h.Terminated():
	case <-time.After(time.Second * 5):
		t.Fatal("Timed out waiting on handle")
	}
	if h.State() != lifecycle.Settled {
		t.Errorf("Expected settled, got %s", h.State())
	}
}
