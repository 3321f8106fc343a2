package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DobryySoul/recipeshare/internal/netutil"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "subnetcalc <ipv4> <prefix> | <ipv4/prefix>",
		Short: "Print the network, broadcast and host range of an IPv4 subnet",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseArgs(args)
			if err != nil {
				return err
			}
			printSubnet(cmd.OutOrStdout(), s)
			return nil
		},
		SilenceUsage: true,
	}
}

func parseArgs(args []string) (netutil.Subnet, error) {
	if len(args) == 1 {
		return netutil.ParseCIDR(args[0])
	}
	bits, err := strconv.Atoi(strings.TrimPrefix(args[1], "/"))
	if err != nil {
		return netutil.Subnet{}, fmt.Errorf("invalid prefix %q", args[1])
	}
	return netutil.CalculateSubnet(args[0], bits)
}

func printSubnet(w io.Writer, s netutil.Subnet) {
	fmt.Fprintf(w, "Network Address: %s\n", s.Network)
	fmt.Fprintf(w, "Broadcast Address: %s\n", s.Broadcast)
	fmt.Fprintf(w, "First Host IP: %s\n", s.FirstHost)
	fmt.Fprintf(w, "Last Host IP: %s\n", s.LastHost)
	fmt.Fprintf(w, "Subnet Mask: %s\n", s.Mask)
	fmt.Fprintf(w, "Wildcard Mask: %s\n", s.Wildcard)
	fmt.Fprintf(w, "Number of Hosts: %d\n", s.Hosts)
}
