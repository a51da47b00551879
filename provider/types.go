package provider

import (
	"context"
	"encoding/json"
)

// JSONRPCVersion is the protocol version injected into legacy payloads.
const JSONRPCVersion = "2.0"

// Request is a call as issued by the application. It carries no id or
// protocol version; those are added by the request manager only for
// providers that need them on the wire.
type Request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Payload is a Request merged with the JSON-RPC envelope fields.
type Payload struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// NewPayload merges the request with the envelope fields.
func NewPayload(req Request, id uint64) *Payload {
	params := req.Params
	if params == nil {
		params = []interface{}{}
	}
	return &Payload{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  req.Method,
		Params:  params,
	}
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is either a result or an error response. Exactly one of Result
// and Error is meaningful; IsError reports which.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsError reports whether the response is error-tagged.
func (r *Response) IsError() bool {
	return r != nil && r.Error != nil
}

// Callback receives the outcome of a callback-style provider call.
type Callback func(err error, resp *Response)

// Web3Provider is the modern shape: a single call that returns the result
// value or fails directly.
type Web3Provider interface {
	Request(ctx context.Context, req Request) (json.RawMessage, error)
}

// LegacyRequestProvider exposes a callback-style Request.
type LegacyRequestProvider interface {
	Request(payload *Payload, cb Callback)
}

// LegacySendProvider exposes a callback-style Send.
type LegacySendProvider interface {
	Send(payload *Payload, cb Callback)
}

// LegacySendAsyncProvider is asynchronous but expects the payload to already
// carry the envelope fields.
type LegacySendAsyncProvider interface {
	SendAsync(ctx context.Context, payload *Payload) (*Response, error)
}

// Subscription is a live eth_subscribe stream.
type Subscription struct {
	ID          string
	Out         <-chan json.RawMessage
	Err         <-chan error
	Unsubscribe func()
}

// Subscriber is implemented by providers capable of push delivery, such as
// those on persistent connections.
type Subscriber interface {
	Subscribe(ctx context.Context, namespace string, params ...interface{}) (*Subscription, error)
}

// Closer is implemented by providers holding a connection.
type Closer interface {
	Close() error
}
