package ethrpc

import (
	"fmt"
	"github.com/cpacia/proxyclient"
	"github.com/op/go-logging"
	"net"
	"net/http"
	"time"
)

// Option is a ethrpc option type.
type Option func(*Config) error

type Config struct {
	// Endpoint is an http(s)://, ws(s)://, ipc:// url or a socket path.
	Endpoint string

	// Provider is used instead of Endpoint when set.
	Provider interface{}

	IPCConn    net.Conn
	HTTPClient *http.Client

	LogDir   string
	LogLevel logging.Level

	PollingInterval    time.Duration
	PollingTimeout     time.Duration
	BlockTimeout       uint64
	ConfirmationBlocks uint64
}

// Defaults are the default options. This option will be automatically
// prepended to any options you pass to the constructor.
var Defaults = func(cfg *Config) error {
	cfg.HTTPClient = proxyclient.NewHttpClient()
	cfg.LogLevel = logging.INFO
	cfg.PollingInterval = time.Second
	cfg.PollingTimeout = time.Second * 750
	cfg.BlockTimeout = 50
	cfg.ConfirmationBlocks = 24
	return nil
}

// Apply applies the given options to this Option
func (cfg *Config) Apply(opts ...Option) error {
	for i, opt := range opts {
		if err := opt(cfg); err != nil {
			return fmt.Errorf("ethrpc option %d failed: %s", i, err)
		}
	}
	return nil
}

// Endpoint configures the node endpoint.
func Endpoint(endpoint string) Option {
	return func(cfg *Config) error {
		cfg.Endpoint = endpoint
		return nil
	}
}

// Provider configures a provider value to use instead of an endpoint.
func Provider(p interface{}) Option {
	return func(cfg *Config) error {
		cfg.Provider = p
		return nil
	}
}

// IPCConn configures an already connected socket for an IPC endpoint.
func IPCConn(conn net.Conn) Option {
	return func(cfg *Config) error {
		cfg.IPCConn = conn
		return nil
	}
}

// HTTPClient configures the client used by HTTP endpoints.
//
// Defaults to a proxy aware client.
func HTTPClient(client *http.Client) Option {
	return func(cfg *Config) error {
		cfg.HTTPClient = client
		return nil
	}
}

// LogDir configures a directory for a rotating log file.
//
// Defaults to logging to stdout only.
func LogDir(logDir string) Option {
	return func(cfg *Config) error {
		cfg.LogDir = logDir
		return nil
	}
}

// LogLevel sets the log level.
//
// Defaults to INFO.
func LogLevel(level logging.Level) Option {
	return func(cfg *Config) error {
		cfg.LogLevel = level
		return nil
	}
}

// PollingInterval sets how often the block number is polled when the
// provider has no push delivery.
//
// Defaults to one second.
func PollingInterval(d time.Duration) Option {
	return func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("polling interval must be positive")
		}
		cfg.PollingInterval = d
		return nil
	}
}

// PollingTimeout sets how long a transaction is waited on.
//
// Defaults to 750 seconds.
func PollingTimeout(d time.Duration) Option {
	return func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("polling timeout must be positive")
		}
		cfg.PollingTimeout = d
		return nil
	}
}

// BlockTimeout sets the number of blocks after which an unmined
// transaction fails.
//
// Defaults to 50.
func BlockTimeout(blocks uint64) Option {
	return func(cfg *Config) error {
		if blocks == 0 {
			return fmt.Errorf("block timeout must be positive")
		}
		cfg.BlockTimeout = blocks
		return nil
	}
}

// ConfirmationBlocks sets the number of confirmations tracked per
// transaction.
//
// Defaults to 24.
func ConfirmationBlocks(blocks uint64) Option {
	return func(cfg *Config) error {
		cfg.ConfirmationBlocks = blocks
		return nil
	}
}
