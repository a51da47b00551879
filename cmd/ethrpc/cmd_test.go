package main

import (
	"bytes"
	"encoding/json"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"testing"
)

type rpcMessage struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newNodeServer answers eth_blockNumber and echoes the params of any other
// method back as the result.
func newNodeServer(t *testing.T) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg rpcMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var result interface{} = msg.Params
		if msg.Method == "eth_blockNumber" {
			result = "0x10"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      msg.ID,
			"result":  result,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(viper.New())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestProvidersCmd(t *testing.T) {
	out, err := execute(t, "providers")
	require.NoError(t, err)
	assert.Equal(t, "HttpProvider\nIpcProvider\nWebsocketProvider\n", out)
}

func TestCallCmd(t *testing.T) {
	ts := newNodeServer(t)

	out, err := execute(t, "call", "eth_blockNumber", "--endpoint", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "\"0x10\"\n", out)
}

func TestCallCmd_Params(t *testing.T) {
	ts := newNodeServer(t)

	out, err := execute(t, "call", "eth_getBalance", "0x876EabF441B2EE5B5b0554Fd502a8E0600950cFa", `{"a":1}`, "--endpoint", ts.URL)
	require.NoError(t, err)

	var echoed []interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &echoed))
	assert.Equal(t, []interface{}{"0x876EabF441B2EE5B5b0554Fd502a8E0600950cFa", map[string]interface{}{"a": float64(1)}}, echoed)
}

func TestCallCmd_EnvEndpoint(t *testing.T) {
	t.Setenv("ETHRPC_ENDPOINT", "pc://mydomain.com")

	_, err := execute(t, "call", "eth_blockNumber")
	require.Error(t, err)
	assert.Equal(t, `Can't autodetect provider for "pc://mydomain.com"`, err.Error())
}

func TestCallCmd_ConfigFile(t *testing.T) {
	ts := newNodeServer(t)

	cfg := path.Join(t.TempDir(), "ethrpc.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("endpoint: "+ts.URL+"\n"), os.ModePerm))

	out, err := execute(t, "call", "eth_blockNumber", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "\"0x10\"\n", out)
}

func TestCallCmd_MissingMethod(t *testing.T) {
	_, err := execute(t, "call")
	assert.Error(t, err)
}

func TestDeployCmd_Validation(t *testing.T) {
	_, err := execute(t, "deploy", "--from", "0x876EabF441B2EE5B5b0554Fd502a8E0600950cFa")
	require.Error(t, err)
	assert.Equal(t, "--abi is required", err.Error())

	_, err = execute(t, "deploy", "--abi", "storage.abi", "--from", "nope")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid --from address"))
}

func TestReadBytecode(t *testing.T) {
	b, err := readBytecode("6080")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, b)

	file := path.Join(t.TempDir(), "storage.bin")
	require.NoError(t, os.WriteFile(file, []byte("0x6080604052\n"), os.ModePerm))
	b, err = readBytecode("@" + file)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, b)

	_, err = readBytecode("")
	assert.Error(t, err)
}

func TestConstructorArgs(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(`[{"inputs":[{"name":"owner","type":"address"},{"name":"supply","type":"uint256"},{"name":"decimals","type":"uint8"},{"name":"name","type":"string"},{"name":"paused","type":"bool"}],"stateMutability":"nonpayable","type":"constructor"}]`))
	require.NoError(t, err)

	owner := "0x876EabF441B2EE5B5b0554Fd502a8E0600950cFa"
	values, err := constructorArgs(parsed.Constructor.Inputs, []string{owner, "1000000", "18", "Token", "false"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{common.HexToAddress(owner), big.NewInt(1000000), uint8(18), "Token", false}, values)

	_, err = parsed.Pack("", values...)
	assert.NoError(t, err)

	_, err = constructorArgs(parsed.Constructor.Inputs, []string{owner})
	assert.Error(t, err)

	_, err = constructorArgs(parsed.Constructor.Inputs, []string{owner, "-1", "18", "Token", "false"})
	assert.Error(t, err)
}
