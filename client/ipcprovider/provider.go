package ipcprovider

import (
	"encoding/json"
	"github.com/cpacia/ethrpc/provider"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"net"
	"sync"
	"time"
)

// DialTimeout bounds connecting to the socket.
const DialTimeout = time.Second * 10

var (
	log = logging.MustGetLogger("ipcprovider")

	// ErrConnectionClosed is wrapped into the transport error delivered to
	// callbacks that were waiting when the socket closed.
	ErrConnectionClosed = errors.New("ipc connection closed")
)

func init() {
	provider.Register(provider.IPC, func(endpoint string, extra interface{}) (interface{}, error) {
		if conn, ok := extra.(net.Conn); ok {
			return NewProviderWithConn(endpoint, conn), nil
		}
		return NewProvider(endpoint), nil
	})
}

// Provider is a legacy-send provider speaking newline-free JSON streams over
// a unix socket, the way geth's IPC endpoint does. Results are delivered to
// the callback passed to Send.
type Provider struct {
	path string

	connMtx  sync.Mutex
	writeMtx sync.Mutex

	mtx     sync.Mutex
	conn    net.Conn
	pending map[uint64]provider.Callback
}

// NewProvider returns a provider that dials the socket at endpoint on first
// use. The ipc:// scheme is optional.
func NewProvider(endpoint string) *Provider {
	return &Provider{
		path:    provider.IPCPath(endpoint),
		pending: make(map[uint64]provider.Callback),
	}
}

// NewProviderWithConn returns a provider using an already connected socket.
func NewProviderWithConn(endpoint string, conn net.Conn) *Provider {
	p := NewProvider(endpoint)
	p.conn = conn
	go p.readLoop(conn)
	return p
}

// Send implements provider.LegacySendProvider. cb is invoked exactly once,
// from the read loop or, on write failure, before Send returns.
func (p *Provider) Send(payload *provider.Payload, cb provider.Callback) {
	conn, err := p.connect()
	if err != nil {
		cb(err, nil)
		return
	}

	p.mtx.Lock()
	p.pending[payload.ID] = cb
	p.mtx.Unlock()

	p.writeMtx.Lock()
	err = json.NewEncoder(conn).Encode(payload)
	p.writeMtx.Unlock()
	if err != nil {
		p.mtx.Lock()
		_, ok := p.pending[payload.ID]
		delete(p.pending, payload.ID)
		p.mtx.Unlock()
		if ok {
			cb(&provider.TransportError{Endpoint: p.path, Err: errors.Wrap(err, payload.Method)}, nil)
		}
	}
}

func (p *Provider) connect() (net.Conn, error) {
	p.connMtx.Lock()
	defer p.connMtx.Unlock()

	p.mtx.Lock()
	conn := p.conn
	p.mtx.Unlock()
	if conn != nil {
		return conn, nil
	}

	conn, err := net.DialTimeout("unix", p.path, DialTimeout)
	if err != nil {
		return nil, &provider.TransportError{Endpoint: p.path, Err: errors.Wrap(err, "dial")}
	}
	p.mtx.Lock()
	p.conn = conn
	p.mtx.Unlock()

	log.Infof("Connected to %s", p.path)
	go p.readLoop(conn)
	return conn, nil
}

func (p *Provider) readLoop(conn net.Conn) {
	dec := json.NewDecoder(conn)
	for {
		var resp provider.Response
		if err := dec.Decode(&resp); err != nil {
			p.dropConnection(conn, err)
			return
		}

		p.mtx.Lock()
		cb, ok := p.pending[resp.ID]
		delete(p.pending, resp.ID)
		p.mtx.Unlock()

		if !ok {
			log.Debugf("Dropping response with unknown id %d", resp.ID)
			continue
		}
		r := resp
		cb(nil, &r)
	}
}

func (p *Provider) dropConnection(conn net.Conn, cause error) {
	conn.Close()

	p.mtx.Lock()
	if p.conn != conn {
		p.mtx.Unlock()
		return
	}
	p.conn = nil
	pending := p.pending
	p.pending = make(map[uint64]provider.Callback)
	p.mtx.Unlock()

	if len(pending) > 0 {
		log.Warningf("Connection to %s lost with %d calls pending: %s", p.path, len(pending), cause)
	}
	err := &provider.TransportError{Endpoint: p.path, Err: errors.Wrap(ErrConnectionClosed, cause.Error())}
	for _, cb := range pending {
		cb(err, nil)
	}
}

// Close closes the socket. Waiting callbacks receive a transport error.
func (p *Provider) Close() error {
	p.mtx.Lock()
	conn := p.conn
	p.mtx.Unlock()
	if conn == nil {
		return nil
	}
	p.dropConnection(conn, errors.New("closed"))
	return nil
}

var _ provider.LegacySendProvider = (*Provider)(nil)
var _ provider.Closer = (*Provider)(nil)
