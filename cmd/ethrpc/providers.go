package main

import (
	"fmt"
	"github.com/cpacia/ethrpc/manager"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sort"
)

func newProvidersCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the registered transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var names []string
			for family := range manager.Providers() {
				names = append(names, string(family))
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
