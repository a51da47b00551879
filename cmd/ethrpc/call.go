package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/cpacia/ethrpc/provider"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"time"
)

func newCallCmd(v *viper.Viper) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <method> [params...]",
		Short: "Send a JSON-RPC request and print the result",
		Long: "Send a JSON-RPC request and print the result. Params that parse as JSON " +
			"are sent as is, anything else is sent as a string.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWeb3(v)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := w.Manager.Send(ctx, provider.Request{
				Method: args[0],
				Params: parseParams(args[1:]),
			})
			if err != nil {
				return err
			}

			var out bytes.Buffer
			if err := json.Indent(&out, result, "", "  "); err != nil {
				out.Reset()
				out.Write(result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second*30, "request timeout")
	return cmd
}

func parseParams(args []string) []interface{} {
	params := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if json.Valid([]byte(arg)) {
			params = append(params, json.RawMessage(arg))
			continue
		}
		params = append(params, arg)
	}
	return params
}
