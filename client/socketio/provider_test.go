package socketio

import (
	"encoding/json"
	gosocketio "github.com/OpenBazaar/golang-socketio"
	"github.com/OpenBazaar/golang-socketio/transport"
	"github.com/cpacia/ethrpc/provider"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestGateway(t *testing.T) *httptest.Server {
	server := gosocketio.NewServer(transport.GetDefaultWebsocketTransport())
	err := server.On(Method, func(c *gosocketio.Channel, payload *provider.Payload) provider.Response {
		if payload.Method == "eth_call" {
			return provider.Response{JSONRPC: "2.0", ID: payload.ID, Error: &provider.RPCError{Code: 3, Message: "execution reverted"}}
		}
		return provider.Response{JSONRPC: "2.0", ID: payload.ID, Result: json.RawMessage(`"0x2a"`)}
	})
	if err != nil {
		t.Fatal(err)
	}

	serveMux := http.NewServeMux()
	serveMux.Handle("/socket.io/", server)
	return httptest.NewServer(serveMux)
}

func request(t *testing.T, p *Provider, payload *provider.Payload) (*provider.Response, error) {
	type outcome struct {
		err  error
		resp *provider.Response
	}
	ch := make(chan outcome, 1)
	p.Request(payload, func(err error, resp *provider.Response) {
		ch <- outcome{err, resp}
	})
	select {
	case o := <-ch:
		return o.resp, o.err
	case <-time.After(time.Second * 10):
		t.Fatal("Timed out waiting on callback")
	}
	return nil, nil
}

func TestProvider_Request(t *testing.T) {
	gateway := newTestGateway(t)
	defer gateway.Close()

	p := NewProvider(gateway.URL)
	defer p.Close()

	resp, err := request(t, p, provider.NewPayload(provider.Request{Method: "eth_blockNumber"}, 5))
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != 5 {
		t.Errorf("Expected id 5, got %d", resp.ID)
	}
	if string(resp.Result) != `"0x2a"` {
		t.Errorf("Expected \"0x2a\", got %s", string(resp.Result))
	}

	resp, err = request(t, p, provider.NewPayload(provider.Request{Method: "eth_call"}, 6))
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsError() {
		t.Error("Expected error response")
	}
}

func TestProvider_DialFailure(t *testing.T) {
	p := NewProvider("http://127.0.0.1:1")

	_, err := request(t, p, provider.NewPayload(provider.Request{Method: "eth_blockNumber"}, 1))
	if _, ok := err.(*provider.TransportError); !ok {
		t.Errorf("Expected TransportError, got %v", err)
	}
}

func TestNewProvider_URL(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"http://example.com", "ws://example.com/socket.io/"},
		{"https://example.com/", "wss://example.com/socket.io/"},
		{"ws://example.com", "ws://example.com/socket.io/"},
	}
	for _, test := range tests {
		if p := NewProvider(test.in); p.url != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, p.url)
		}
	}
}

func TestProvider_Shape(t *testing.T) {
	if provider.Classify(NewProvider("http://example.com")) != provider.ShapeLegacyRequest {
		t.Error("Expected legacy-request shape")
	}
}
