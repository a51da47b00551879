package manager

import (
	"context"
	"encoding/json"
	"github.com/cpacia/ethrpc/base"
	"github.com/cpacia/ethrpc/provider"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"sync"
)

// Config holds everything needed to build a RequestManager. Nil fields are
// replaced with the process-wide defaults.
type Config struct {
	// Provider is either an endpoint string or a provider value.
	Provider      interface{}
	ProviderExtra interface{}

	Registry *provider.Registry
	IDs      *IDGenerator
	Bus      base.Bus
	Logger   *logging.Logger
}

// RequestManager owns the active provider and turns every supported
// provider shape into a single Send call.
type RequestManager struct {
	setMtx   sync.Mutex
	mtx      sync.RWMutex
	provider interface{}

	registry *provider.Registry
	ids      *IDGenerator
	bus      base.Bus
	logger   *logging.Logger
}

// New builds a RequestManager from the config. If a provider is configured
// it is set before returning.
func New(cfg *Config) (*RequestManager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	m := &RequestManager{
		registry: cfg.Registry,
		ids:      cfg.IDs,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
	}
	if m.registry == nil {
		m.registry = provider.DefaultRegistry
	}
	if m.ids == nil {
		m.ids = DefaultIDs
	}
	if m.bus == nil {
		m.bus = base.NewBus()
	}
	if m.logger == nil {
		m.logger = logging.MustGetLogger("manager")
	}

	if cfg.Provider != nil {
		if err := m.SetProvider(cfg.Provider, cfg.ProviderExtra); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Providers returns a snapshot of the process-wide provider registry.
func Providers() map[provider.TransportFamily]provider.Factory {
	return provider.DefaultRegistry.Snapshot()
}

// Providers returns a snapshot of the registry used by this manager.
func (m *RequestManager) Providers() map[provider.TransportFamily]provider.Factory {
	return m.registry.Snapshot()
}

// Provider returns the active provider or nil.
func (m *RequestManager) Provider() interface{} {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.provider
}

// Subscribe subscribes to provider change events on the manager's bus.
//
// Events are delivered synchronously from SetProvider. A subscriber that
// stops reading blocks SetProvider once its buffer (base.BufSize, 16 by
// default) is full, until it reads again or closes the subscription.
func (m *RequestManager) Subscribe(eventTypes interface{}, opts ...base.SubscriptionOpt) (base.Subscription, error) {
	return m.bus.Subscribe(eventTypes, opts...)
}

// SetProvider replaces the active provider. endpointOrProvider is either an
// endpoint string, resolved through the registry, or a provider value used
// as is. extra is handed to the registry factory.
//
// BeforeProviderChangeEvent and ProviderChangedEvent are emitted in that
// order. Nothing is emitted and the active provider is left alone if the
// endpoint cannot be resolved.
func (m *RequestManager) SetProvider(endpointOrProvider interface{}, extra interface{}) error {
	newProvider := endpointOrProvider
	if endpoint, ok := endpointOrProvider.(string); ok {
		p, err := m.registry.New(endpoint, extra)
		if err != nil {
			return err
		}
		newProvider = p
	}

	// setMtx keeps the two events of concurrent calls from interleaving
	// while readers only ever wait on the swap itself.
	m.setMtx.Lock()
	defer m.setMtx.Unlock()

	m.bus.Emit(base.BeforeProviderChangeEvent{Previous: m.Provider()})

	m.mtx.Lock()
	m.provider = newProvider
	m.mtx.Unlock()

	m.bus.Emit(base.ProviderChangedEvent{Provider: newProvider})

	m.logger.Debugf("Provider set to %T (%s)", newProvider, provider.Classify(newProvider))
	return nil
}

// Send issues the request against the active provider and returns the raw
// result value. The provider is captured once, so a concurrent SetProvider
// does not affect a call already in flight.
func (m *RequestManager) Send(ctx context.Context, req provider.Request) (json.RawMessage, error) {
	p := m.Provider()
	if p == nil {
		return nil, provider.ErrProviderNotAvailable
	}

	switch provider.Classify(p) {
	case provider.ShapeWeb3:
		return p.(provider.Web3Provider).Request(ctx, req)

	case provider.ShapeLegacyRequest:
		return m.sendWithCallback(ctx, p.(provider.LegacyRequestProvider).Request, req)

	case provider.ShapeLegacySend:
		return m.sendWithCallback(ctx, p.(provider.LegacySendProvider).Send, req)

	case provider.ShapeLegacySendAsync:
		payload := provider.NewPayload(req, m.ids.Next())
		resp, err := p.(provider.LegacySendAsyncProvider).SendAsync(ctx, payload)
		if err != nil {
			return nil, err
		}
		return processResponse(resp)

	default:
		return nil, &provider.UnsupportedProviderError{Input: p}
	}
}

// Call sends method with params and decodes the result into result. A
// result that does not decode is reported as a *provider.TransportError.
func (m *RequestManager) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	raw, err := m.Send(ctx, provider.Request{Method: method, Params: params})
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &provider.TransportError{Err: errors.Wrapf(err, "decoding %s result", method)}
	}
	return nil
}

type callbackResult struct {
	resp *provider.Response
	err  error
}

func (m *RequestManager) sendWithCallback(ctx context.Context, call func(*provider.Payload, provider.Callback), req provider.Request) (json.RawMessage, error) {
	payload := provider.NewPayload(req, m.ids.Next())

	var once sync.Once
	ch := make(chan callbackResult, 1)
	call(payload, func(err error, resp *provider.Response) {
		once.Do(func() {
			ch <- callbackResult{resp: resp, err: err}
		})
	})

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return processResponse(res.resp)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func processResponse(resp *provider.Response) (json.RawMessage, error) {
	if resp == nil || resp.IsError() {
		return nil, &provider.InvalidResponseError{Response: resp}
	}
	if resp.Result == nil {
		return json.RawMessage("null"), nil
	}
	return resp.Result, nil
}
