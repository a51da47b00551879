package wsprovider

import (
	"context"
	"encoding/json"
	"github.com/cenkalti/backoff"
	"github.com/cpacia/ethrpc/provider"
	"github.com/gorilla/websocket"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DialRetries is the number of reconnect attempts made before a call
	// fails with a transport error.
	DialRetries = 3

	subscriptionBuffer = 16
)

var (
	log = logging.MustGetLogger("wsprovider")

	// ErrConnectionClosed is wrapped into the transport error of calls that
	// were in flight when the connection dropped.
	ErrConnectionClosed = errors.New("websocket connection closed")

	// ErrProviderClosed is returned after Close.
	ErrProviderClosed = errors.New("websocket provider closed")
)

func init() {
	provider.Register(provider.WebSocket, func(endpoint string, extra interface{}) (interface{}, error) {
		dialer, _ := extra.(*websocket.Dialer)
		return NewProvider(endpoint, dialer), nil
	})
}

type callResult struct {
	resp *provider.Response
	err  error
}

type pendingCall struct {
	ch  chan callResult
	sub *subscription
}

type subscription struct {
	id   string
	out  chan json.RawMessage
	err  chan error
	once sync.Once
}

func (s *subscription) close(err error) {
	s.once.Do(func() {
		if err != nil {
			s.err <- err
		}
		close(s.out)
	})
}

// incoming is the union of responses and eth_subscription notifications.
type incoming struct {
	ID     *uint64            `json:"id"`
	Method string             `json:"method"`
	Result json.RawMessage    `json:"result"`
	Error  *provider.RPCError `json:"error"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// Provider is a legacy-send-async provider over a persistent WebSocket
// connection. Responses are matched to calls by payload id. The connection
// is dialed on first use and redialed after it drops.
type Provider struct {
	endpoint string
	dialer   *websocket.Dialer

	connMtx  sync.Mutex
	writeMtx sync.Mutex

	mtx     sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]*pendingCall
	subs    map[string]*subscription
	closed  bool

	internalID uint64
}

// NewProvider returns a provider for endpoint. A nil dialer is replaced by
// websocket.DefaultDialer.
func NewProvider(endpoint string, dialer *websocket.Dialer) *Provider {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Provider{
		endpoint: endpoint,
		dialer:   dialer,
		pending:  make(map[uint64]*pendingCall),
		subs:     make(map[string]*subscription),
		// Ids for our own subscribe calls live far above the manager's range.
		internalID: math.MaxUint32,
	}
}

// SendAsync implements provider.LegacySendAsyncProvider.
func (p *Provider) SendAsync(ctx context.Context, payload *provider.Payload) (*provider.Response, error) {
	return p.roundTrip(ctx, payload, nil)
}

func (p *Provider) roundTrip(ctx context.Context, payload *provider.Payload, sub *subscription) (*provider.Response, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}

	call := &pendingCall{ch: make(chan callResult, 1), sub: sub}
	p.mtx.Lock()
	p.pending[payload.ID] = call
	p.mtx.Unlock()

	defer func() {
		p.mtx.Lock()
		delete(p.pending, payload.ID)
		p.mtx.Unlock()
	}()

	if err := p.write(conn, payload); err != nil {
		return nil, err
	}

	select {
	case res := <-call.ch:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe implements provider.Subscriber using eth_subscribe.
func (p *Provider) Subscribe(ctx context.Context, namespace string, params ...interface{}) (*provider.Subscription, error) {
	sub := &subscription{
		out: make(chan json.RawMessage, subscriptionBuffer),
		err: make(chan error, 1),
	}
	payload := provider.NewPayload(provider.Request{
		Method: "eth_subscribe",
		Params: append([]interface{}{namespace}, params...),
	}, atomic.AddUint64(&p.internalID, 1))

	resp, err := p.roundTrip(ctx, payload, sub)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &provider.InvalidResponseError{Response: resp}
	}
	if sub.id == "" {
		return nil, &provider.TransportError{Endpoint: p.endpoint, Err: errors.New("malformed subscription id")}
	}

	return &provider.Subscription{
		ID:  sub.id,
		Out: sub.out,
		Err: sub.err,
		Unsubscribe: func() {
			p.unsubscribe(sub)
		},
	}, nil
}

func (p *Provider) unsubscribe(sub *subscription) {
	p.mtx.Lock()
	_, ok := p.subs[sub.id]
	delete(p.subs, sub.id)
	conn := p.conn
	p.mtx.Unlock()

	sub.close(nil)
	if !ok || conn == nil {
		return
	}
	payload := provider.NewPayload(provider.Request{
		Method: "eth_unsubscribe",
		Params: []interface{}{sub.id},
	}, atomic.AddUint64(&p.internalID, 1))
	if err := p.write(conn, payload); err != nil {
		log.Debugf("Unsubscribe %s failed: %s", sub.id, err)
	}
}

func (p *Provider) write(conn *websocket.Conn, payload *provider.Payload) error {
	p.writeMtx.Lock()
	defer p.writeMtx.Unlock()
	if err := conn.WriteJSON(payload); err != nil {
		return &provider.TransportError{Endpoint: p.endpoint, Err: errors.Wrap(err, payload.Method)}
	}
	return nil
}

func (p *Provider) connect(ctx context.Context) (*websocket.Conn, error) {
	p.connMtx.Lock()
	defer p.connMtx.Unlock()

	p.mtx.Lock()
	conn, closed := p.conn, p.closed
	p.mtx.Unlock()
	if closed {
		return nil, &provider.TransportError{Endpoint: p.endpoint, Err: ErrProviderClosed}
	}
	if conn != nil {
		return conn, nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), DialRetries), ctx)
	err := backoff.Retry(func() error {
		c, _, err := p.dialer.DialContext(ctx, p.endpoint, nil)
		if err != nil {
			log.Debugf("Dial %s failed: %s", p.endpoint, err)
			return err
		}
		conn = c
		return nil
	}, bo)
	if err != nil {
		return nil, &provider.TransportError{Endpoint: p.endpoint, Err: errors.Wrap(err, "dial")}
	}

	p.mtx.Lock()
	p.conn = conn
	p.mtx.Unlock()

	log.Infof("Connected to %s", p.endpoint)
	go p.readLoop(conn)
	return conn, nil
}

func (p *Provider) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.dropConnection(conn, err)
			return
		}

		var msg incoming
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warningf("Malformed message from %s: %s", p.endpoint, err)
			continue
		}

		if msg.ID == nil && msg.Method == "eth_subscription" {
			p.mtx.Lock()
			if sub, ok := p.subs[msg.Params.Subscription]; ok {
				select {
				case sub.out <- msg.Params.Result:
				default:
					log.Warningf("Subscription %s is not keeping up, dropping notification", sub.id)
				}
			}
			p.mtx.Unlock()
			continue
		}
		if msg.ID == nil {
			continue
		}

		resp := &provider.Response{
			JSONRPC: provider.JSONRPCVersion,
			ID:      *msg.ID,
			Result:  msg.Result,
			Error:   msg.Error,
		}

		p.mtx.Lock()
		call, ok := p.pending[resp.ID]
		delete(p.pending, resp.ID)
		if ok && call.sub != nil && !resp.IsError() {
			var id string
			if json.Unmarshal(resp.Result, &id) == nil && id != "" {
				call.sub.id = id
				p.subs[id] = call.sub
			}
		}
		p.mtx.Unlock()

		if ok {
			call.ch <- callResult{resp: resp}
		}
	}
}

func (p *Provider) dropConnection(conn *websocket.Conn, cause error) {
	conn.Close()

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.conn != conn {
		return
	}
	p.conn = nil

	if !p.closed {
		log.Warningf("Connection to %s lost: %s", p.endpoint, cause)
	}
	err := &provider.TransportError{Endpoint: p.endpoint, Err: errors.Wrap(ErrConnectionClosed, cause.Error())}
	for id, call := range p.pending {
		select {
		case call.ch <- callResult{err: err}:
		default:
		}
		delete(p.pending, id)
	}
	for id, sub := range p.subs {
		sub.close(err)
		delete(p.subs, id)
	}
}

// Close closes the connection. Calls made afterwards fail.
func (p *Provider) Close() error {
	p.mtx.Lock()
	p.closed = true
	conn := p.conn
	p.mtx.Unlock()

	if conn == nil {
		return nil
	}
	p.writeMtx.Lock()
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	p.writeMtx.Unlock()
	p.dropConnection(conn, ErrProviderClosed)
	return nil
}

var _ provider.LegacySendAsyncProvider = (*Provider)(nil)
var _ provider.Subscriber = (*Provider)(nil)
var _ provider.Closer = (*Provider)(nil)
