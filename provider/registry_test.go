package provider

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_New(t *testing.T) {
	r := NewRegistry()

	var (
		gotEndpoint string
		gotExtra    interface{}
	)
	r.Register(IPC, func(endpoint string, extra interface{}) (interface{}, error) {
		gotEndpoint, gotExtra = endpoint, extra
		return legacySendStub{}, nil
	})

	p, err := r.New("ipc://mydomain.com", "socket")
	if err != nil {
		t.Fatal(err)
	}
	if Classify(p) != ShapeLegacySend {
		t.Errorf("Expected legacy send provider, got %s", Classify(p))
	}
	if gotEndpoint != "ipc://mydomain.com" {
		t.Errorf("Expected endpoint ipc://mydomain.com, got %s", gotEndpoint)
	}
	if gotExtra != "socket" {
		t.Errorf("Expected extra to be passed through, got %v", gotExtra)
	}

	_, err = r.New("pc://mydomain.com", nil)
	var upe *UnsupportedProviderError
	if !errors.As(err, &upe) {
		t.Fatalf("Expected UnsupportedProviderError, got %v", err)
	}

	// Classified but nothing registered.
	_, err = r.New("ws://mydomain.com", nil)
	if !errors.As(err, &upe) {
		t.Fatalf("Expected UnsupportedProviderError, got %v", err)
	}

	r.Register(HTTP, func(endpoint string, extra interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})
	if _, err := r.New("http://mydomain.com", nil); err == nil {
		t.Error("Expected factory error")
	}
}

func TestRegistry_Override(t *testing.T) {
	r := NewRegistry()
	original := func(endpoint string, extra interface{}) (interface{}, error) { return web3Stub{}, nil }
	r.Register(HTTP, original)

	restore := r.Override(HTTP, func(endpoint string, extra interface{}) (interface{}, error) {
		return legacySendStub{}, nil
	})
	p, err := r.New("http://mydomain.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	if Classify(p) != ShapeLegacySend {
		t.Errorf("Expected override to be used, got %s", Classify(p))
	}

	restore()
	p, err = r.New("http://mydomain.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	if Classify(p) != ShapeWeb3 {
		t.Errorf("Expected original factory after restore, got %s", Classify(p))
	}

	restore = r.Override(WebSocket, original)
	restore()
	if _, ok := r.Lookup(WebSocket); ok {
		t.Error("Expected restore to remove an entry that did not exist before")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	r.Register(HTTP, func(endpoint string, extra interface{}) (interface{}, error) { return nil, nil })
	r.Register(WebSocket, func(endpoint string, extra interface{}) (interface{}, error) { return nil, nil })

	a := r.Snapshot()
	b := r.Snapshot()
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("Expected 2 entries, got %d and %d", len(a), len(b))
	}
	for family := range a {
		if reflect.ValueOf(a[family]).Pointer() != reflect.ValueOf(b[family]).Pointer() {
			t.Errorf("Expected identical factory for %s", family)
		}
	}

	// Mutating a snapshot leaves the registry alone.
	delete(a, HTTP)
	if _, ok := r.Lookup(HTTP); !ok {
		t.Error("Expected registry to be unaffected by snapshot mutation")
	}
}
