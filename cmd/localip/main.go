package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DobryySoul/recipeshare/internal/netutil"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var ipv4Only bool
	cmd := &cobra.Command{
		Use:   "localip",
		Short: "Print every local interface address as \"iface: ip\"",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addrs, err := netutil.LocalAddrs()
			if err != nil {
				return err
			}
			for _, a := range addrs {
				if ipv4Only && a.IP.To4() == nil {
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.Flags().BoolVarP(&ipv4Only, "ipv4", "4", false, "only IPv4 addresses")
	return cmd
}
