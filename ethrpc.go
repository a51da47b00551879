package ethrpc

import (
	"github.com/cpacia/ethrpc/client/ethclient"
	_ "github.com/cpacia/ethrpc/client/httpprovider"
	_ "github.com/cpacia/ethrpc/client/ipcprovider"
	_ "github.com/cpacia/ethrpc/client/wsprovider"
	"github.com/cpacia/ethrpc/contract"
	"github.com/cpacia/ethrpc/manager"
	"github.com/cpacia/ethrpc/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/natefinch/lumberjack"
	"github.com/op/go-logging"
	"os"
	"path"
)

var (
	defaultLogFilename = "ethrpc.log"
	fileLogFormat      = logging.MustStringFormatter(`%{time:2006-01-02 T15:04:05.000} [%{level}] [%{module}] %{message}`)
	stdoutLogFormat    = logging.MustStringFormatter(`%{color:reset}%{color}%{time:15:04:05} [%{level}] [%{module}] %{message}`)
)

// Web3 ties a request manager to an eth client and builds contracts
// bound to them.
type Web3 struct {
	Manager *manager.RequestManager
	Client  *ethclient.EthClient

	cfg    Config
	logger *logging.Logger
}

// NewWeb3 builds a Web3 from the options. With neither an endpoint nor a
// provider configured, the manager starts without a provider and every
// request fails until SetProvider is called.
func NewWeb3(opts ...Option) (*Web3, error) {
	var cfg Config
	if err := cfg.Apply(append([]Option{Defaults}, opts...)...); err != nil {
		return nil, err
	}

	logger := logging.MustGetLogger("ethrpc")

	backendStdout := logging.NewLogBackend(os.Stdout, "", 0)
	backendStdoutFormatter := logging.NewBackendFormatter(backendStdout, stdoutLogFormat)

	if cfg.LogDir != "" {
		rotator := &lumberjack.Logger{
			Filename:   path.Join(cfg.LogDir, defaultLogFilename),
			MaxSize:    10, // Megabytes
			MaxBackups: 3,
			MaxAge:     30, // Days
		}

		backendFile := logging.NewLogBackend(rotator, "", 0)
		backendFileFormatter := logging.NewBackendFormatter(backendFile, fileLogFormat)
		leveledBackend := logging.MultiLogger(backendStdoutFormatter, backendFileFormatter)
		leveledBackend.SetLevel(cfg.LogLevel, "")
		logger.SetBackend(leveledBackend)
	} else {
		leveledBackend := logging.AddModuleLevel(backendStdoutFormatter)
		leveledBackend.SetLevel(cfg.LogLevel, "")
		logger.SetBackend(leveledBackend)
	}

	w := &Web3{
		cfg:    cfg,
		logger: logger,
	}

	mgr, err := manager.New(&manager.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	w.Manager = mgr

	if cfg.Provider != nil {
		if err := w.SetProvider(cfg.Provider); err != nil {
			return nil, err
		}
	} else if cfg.Endpoint != "" {
		if err := w.SetProvider(cfg.Endpoint); err != nil {
			return nil, err
		}
	}

	w.Client = ethclient.NewEthClient(mgr, cfg.PollingInterval, logger)
	return w, nil
}

// SetProvider replaces the active provider. Endpoint strings get the
// configured HTTP client or IPC connection handed to their transport.
func (w *Web3) SetProvider(endpointOrProvider interface{}) error {
	var extra interface{}
	if endpoint, ok := endpointOrProvider.(string); ok {
		family, _ := provider.ClassifyEndpoint(endpoint)
		switch family {
		case provider.HTTP:
			if w.cfg.HTTPClient != nil {
				extra = w.cfg.HTTPClient
			}
		case provider.IPC:
			if w.cfg.IPCConn != nil {
				extra = w.cfg.IPCConn
			}
		}
	}
	return w.Manager.SetProvider(endpointOrProvider, extra)
}

// Providers returns the registered transport factories.
func (w *Web3) Providers() map[provider.TransportFamily]provider.Factory {
	return w.Manager.Providers()
}

// NewContract returns a contract using this Web3's client. The configured
// tracking limits are applied before opts.
func (w *Web3) NewContract(abiJSON string, address *common.Address, opts ...contract.Option) (*contract.Contract, error) {
	defaults := []contract.Option{
		contract.PollingTimeout(w.cfg.PollingTimeout),
		contract.BlockTimeout(w.cfg.BlockTimeout),
		contract.ConfirmationBlocks(w.cfg.ConfirmationBlocks),
		contract.Logger(w.logger),
	}
	return contract.New(abiJSON, address, w.Client, append(defaults, opts...)...)
}

// Close stops block subscriptions and closes the active provider if it
// holds a connection.
func (w *Web3) Close() error {
	if err := w.Client.Close(); err != nil {
		return err
	}
	if closer, ok := w.Manager.Provider().(provider.Closer); ok {
		return closer.Close()
	}
	return nil
}
