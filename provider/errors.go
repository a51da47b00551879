package provider

import (
	"errors"
	"fmt"
)

// ErrProviderNotAvailable is returned when a call is attempted before any
// provider was set.
var ErrProviderNotAvailable = errors.New("provider not available")

// UnsupportedProviderError is returned when an endpoint or provider value
// cannot be classified.
type UnsupportedProviderError struct {
	Input interface{}
}

func (e *UnsupportedProviderError) Error() string {
	if s, ok := e.Input.(string); ok {
		return fmt.Sprintf("Can't autodetect provider for %q", s)
	}
	return fmt.Sprintf("unsupported provider type %T", e.Input)
}

// InvalidResponseError wraps an error-tagged response returned by the node.
type InvalidResponseError struct {
	Response *Response
}

// NewInvalidResponseError builds an InvalidResponseError from a code and message.
func NewInvalidResponseError(id uint64, code int, message string) *InvalidResponseError {
	return &InvalidResponseError{
		Response: &Response{
			JSONRPC: JSONRPCVersion,
			ID:      id,
			Error:   &RPCError{Code: code, Message: message},
		},
	}
}

func (e *InvalidResponseError) Error() string {
	if e.Response == nil || e.Response.Error == nil {
		return "Returned error: invalid response"
	}
	return "Returned error: " + e.Response.Error.Message
}

// Code returns the JSON-RPC error code.
func (e *InvalidResponseError) Code() int {
	if e.Response == nil || e.Response.Error == nil {
		return 0
	}
	return e.Response.Error.Code
}

// TransportError reports that the call failed before a response could be
// formed: connection refused, timeout, malformed payload.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Endpoint == "" {
		return "transport error: " + e.Err.Error()
	}
	return fmt.Sprintf("transport error (%s): %s", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Cause satisfies github.com/pkg/errors.
func (e *TransportError) Cause() error { return e.Err }
