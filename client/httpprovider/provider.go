package httpprovider

import (
	"context"
	"encoding/json"
	"github.com/cpacia/ethrpc/provider"
	"github.com/cpacia/proxyclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"net/http"
	"time"
)

// RequestTimeout bounds a single call when the caller's context has no
// deadline of its own.
const RequestTimeout = time.Second * 30

var log = logging.MustGetLogger("httpprovider")

func init() {
	provider.Register(provider.HTTP, func(endpoint string, extra interface{}) (interface{}, error) {
		client, _ := extra.(*http.Client)
		return NewProvider(endpoint, client)
	})
}

// Provider is a modern-shape provider speaking JSON-RPC over HTTP.
type Provider struct {
	endpoint string
	rpc      *rpc.Client
}

// NewProvider returns a provider for endpoint. A nil client is replaced by
// a proxy aware default client.
func NewProvider(endpoint string, client *http.Client) (*Provider, error) {
	if client == nil {
		client = proxyclient.NewHttpClient()
		client.Timeout = RequestTimeout
	}
	conn, err := rpc.DialHTTPWithClient(endpoint, client)
	if err != nil {
		return nil, &provider.TransportError{Endpoint: endpoint, Err: err}
	}
	log.Debugf("HTTP provider created for %s", endpoint)
	return &Provider{
		endpoint: endpoint,
		rpc:      conn,
	}, nil
}

// Request implements provider.Web3Provider. Error responses from the node
// are returned as *provider.InvalidResponseError; everything else is a
// *provider.TransportError.
func (p *Provider) Request(ctx context.Context, req provider.Request) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, RequestTimeout)
		defer cancel()
	}

	var result json.RawMessage
	err := p.rpc.CallContext(ctx, &result, req.Method, req.Params...)
	if err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			ire := provider.NewInvalidResponseError(0, rpcErr.ErrorCode(), rpcErr.Error())
			var dataErr rpc.DataError
			if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
				if data, merr := json.Marshal(dataErr.ErrorData()); merr == nil {
					ire.Response.Error.Data = data
				}
			}
			return nil, ire
		}
		return nil, &provider.TransportError{Endpoint: p.endpoint, Err: errors.Wrap(err, req.Method)}
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	return result, nil
}

// Close releases idle connections.
func (p *Provider) Close() error {
	p.rpc.Close()
	return nil
}

var _ provider.Web3Provider = (*Provider)(nil)
var _ provider.Closer = (*Provider)(nil)
