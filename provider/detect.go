package provider

import (
	"strings"
)

// TransportFamily names the channel implied by an endpoint's scheme. The
// values double as registry keys.
type TransportFamily string

const (
	HTTP      TransportFamily = "HttpProvider"
	WebSocket TransportFamily = "WebsocketProvider"
	IPC       TransportFamily = "IpcProvider"
)

// Shape identifies which calling convention a provider exposes.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeWeb3
	ShapeLegacyRequest
	ShapeLegacySend
	ShapeLegacySendAsync
)

func (s Shape) String() string {
	switch s {
	case ShapeWeb3:
		return "web3"
	case ShapeLegacyRequest:
		return "legacy-request"
	case ShapeLegacySend:
		return "legacy-send"
	case ShapeLegacySendAsync:
		return "legacy-send-async"
	default:
		return "unrecognized"
	}
}

var endpointPrefixes = []struct {
	prefix string
	family TransportFamily
}{
	{"http://", HTTP},
	{"https://", HTTP},
	{"ws://", WebSocket},
	{"wss://", WebSocket},
	{"ipc://", IPC},
}

// ClassifyEndpoint maps an endpoint string onto a transport family. Prefixes
// are matched case-sensitively. Bare socket paths are accepted as IPC.
func ClassifyEndpoint(endpoint string) (TransportFamily, bool) {
	for _, p := range endpointPrefixes {
		if strings.HasPrefix(endpoint, p.prefix) {
			return p.family, true
		}
	}
	if strings.HasSuffix(endpoint, ".ipc") || (strings.HasPrefix(endpoint, "/") && !strings.Contains(endpoint, "://")) {
		return IPC, true
	}
	return "", false
}

// IPCPath strips the ipc:// scheme if present.
func IPCPath(endpoint string) string {
	return strings.TrimPrefix(endpoint, "ipc://")
}

// shapePredicates is checked in order and the first match wins. A value that
// satisfies several predicates, say a modern Request and a legacy Send, is
// classified by the earliest one.
var shapePredicates = []struct {
	shape Shape
	match func(interface{}) bool
}{
	{ShapeWeb3, func(p interface{}) bool { _, ok := p.(Web3Provider); return ok }},
	{ShapeLegacyRequest, func(p interface{}) bool { _, ok := p.(LegacyRequestProvider); return ok }},
	{ShapeLegacySend, func(p interface{}) bool { _, ok := p.(LegacySendProvider); return ok }},
	{ShapeLegacySendAsync, func(p interface{}) bool { _, ok := p.(LegacySendAsyncProvider); return ok }},
}

// Classify returns the shape of the candidate provider.
func Classify(candidate interface{}) Shape {
	if candidate == nil {
		return ShapeUnrecognized
	}
	for _, pred := range shapePredicates {
		if pred.match(candidate) {
			return pred.shape
		}
	}
	return ShapeUnrecognized
}
