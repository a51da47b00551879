package socketio

import (
	"encoding/json"
	gosocketio "github.com/OpenBazaar/golang-socketio"
	"github.com/OpenBazaar/golang-socketio/transport"
	"github.com/cpacia/ethrpc/provider"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"strings"
	"sync"
	"time"
)

// RequestTimeout is how long an ack is waited on.
const RequestTimeout = time.Second * 30

// Method is the socket.io event JSON-RPC payloads are emitted on.
const Method = "message"

var log = logging.MustGetLogger("socketio")

// Provider is a legacy-request provider for JSON-RPC gateways reachable
// over socket.io. Each payload is emitted with an ack and the ack body is
// the JSON-RPC response.
type Provider struct {
	url     string
	timeout time.Duration

	mtx    sync.Mutex
	socket *gosocketio.Client
}

// NewProvider returns a provider for a gateway at url. http(s) urls are
// rewritten to ws(s); the socket is dialed on first use.
func NewProvider(url string) *Provider {
	socketURL := strings.TrimSuffix(url, "/")
	if strings.HasPrefix(socketURL, "https") {
		socketURL = strings.Replace(socketURL, "https://", "wss://", 1)
	} else if strings.HasPrefix(socketURL, "http") {
		socketURL = strings.Replace(socketURL, "http://", "ws://", 1)
	}
	return &Provider{
		url:     socketURL + "/socket.io/",
		timeout: RequestTimeout,
	}
}

// SetTimeout changes the ack timeout.
func (p *Provider) SetTimeout(timeout time.Duration) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.timeout = timeout
}

// Request implements provider.LegacyRequestProvider. The callback runs on
// its own goroutine.
func (p *Provider) Request(payload *provider.Payload, cb provider.Callback) {
	go func() {
		resp, err := p.request(payload)
		cb(err, resp)
	}()
}

func (p *Provider) request(payload *provider.Payload) (*provider.Response, error) {
	socket, timeout, err := p.connect()
	if err != nil {
		return nil, err
	}

	ack, err := socket.Ack(Method, payload, timeout)
	if err != nil {
		log.Warningf("Request %d to %s failed: %s", payload.ID, p.url, err)
		p.reset(socket)
		socket.Close()
		return nil, &provider.TransportError{Endpoint: p.url, Err: errors.Wrap(err, payload.Method)}
	}

	var resp provider.Response
	if err := json.Unmarshal([]byte(ack), &resp); err != nil {
		return nil, &provider.TransportError{Endpoint: p.url, Err: errors.Wrap(err, "malformed ack")}
	}
	return &resp, nil
}

func (p *Provider) connect() (*gosocketio.Client, time.Duration, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.socket != nil {
		return p.socket, p.timeout, nil
	}
	socket, err := gosocketio.Dial(p.url, transport.GetDefaultWebsocketTransport())
	if err != nil {
		return nil, 0, &provider.TransportError{Endpoint: p.url, Err: errors.Wrap(err, "dial")}
	}
	err = socket.On(gosocketio.OnDisconnection, func(h *gosocketio.Channel) {
		p.reset(socket)
	})
	if err != nil {
		socket.Close()
		return nil, 0, &provider.TransportError{Endpoint: p.url, Err: err}
	}
	log.Infof("Connected to %s", p.url)
	p.socket = socket
	return socket, p.timeout, nil
}

func (p *Provider) reset(socket *gosocketio.Client) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.socket == socket {
		p.socket = nil
	}
}

// Close closes the socket.
func (p *Provider) Close() error {
	p.mtx.Lock()
	socket := p.socket
	p.socket = nil
	p.mtx.Unlock()
	if socket != nil {
		socket.Close()
	}
	return nil
}

var _ provider.LegacyRequestProvider = (*Provider)(nil)
var _ provider.Closer = (*Provider)(nil)
