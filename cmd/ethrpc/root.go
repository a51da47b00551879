package main

import (
	"fmt"
	"github.com/cpacia/ethrpc"
	"github.com/op/go-logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
	"time"
)

const envPrefix = "ETHRPC"

// newRootCmd builds the command tree. Settings come from flags, ETHRPC_*
// environment variables or a config file, in that order of precedence.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgfile string

	rootCmd := &cobra.Command{
		Use:           "ethrpc",
		Short:         "Talk to an Ethereum node over http, websocket or ipc",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgfile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgfile, "config", "", "config file")
	flags.String("endpoint", "http://localhost:8545", "node endpoint")
	flags.String("log-level", "warning", "log level")
	flags.String("log-dir", "", "directory for a rotating log file")
	flags.Duration("polling-interval", time.Second, "block polling interval")
	flags.Duration("polling-timeout", time.Second*750, "how long a transaction is waited on")
	flags.Uint64("block-timeout", 50, "blocks after which an unmined transaction fails")
	flags.Uint64("confirmations", 24, "confirmations to wait for")

	for _, name := range []string{"endpoint", "log-level", "log-dir", "polling-interval", "polling-timeout", "block-timeout", "confirmations"} {
		cobra.CheckErr(v.BindPFlag(name, flags.Lookup(name)))
	}

	rootCmd.AddCommand(
		newProvidersCmd(v),
		newCallCmd(v),
		newDeployCmd(v),
	)
	return rootCmd
}

func initConfig(v *viper.Viper, cfgfile string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgfile == "" {
		return nil
	}
	v.SetConfigFile(cfgfile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %s", cfgfile, err)
	}
	return nil
}

// newWeb3 builds a Web3 from the resolved settings.
func newWeb3(v *viper.Viper) (*ethrpc.Web3, error) {
	level, err := logging.LogLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	return ethrpc.NewWeb3(
		ethrpc.Endpoint(v.GetString("endpoint")),
		ethrpc.LogLevel(level),
		ethrpc.LogDir(v.GetString("log-dir")),
		ethrpc.PollingInterval(v.GetDuration("polling-interval")),
		ethrpc.PollingTimeout(v.GetDuration("polling-timeout")),
		ethrpc.BlockTimeout(v.GetUint64("block-timeout")),
		ethrpc.ConfirmationBlocks(v.GetUint64("confirmations")),
	)
}
