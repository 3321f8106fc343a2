package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DobryySoul/recipeshare"
	"github.com/DobryySoul/recipeshare/internal/config"
)

const (
	defaultPort      = 9000
	defaultStorePath = "recipes.json"
	shutdownTimeout  = 5 * time.Second
)

// rootOptions holds the command-line flags.
type rootOptions struct {
	ConfigPath  string
	StorePath   string
	GossipAddr  string
	Seeds       []string
	Topic       string
	NoDiscovery bool
	Verbose     bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "recipeshare [port]",
		Short: "Share recipes with peers on the local network",
		Long: "recipeshare runs a peer that stores recipes in a local file and shares the public ones\n" +
			"with peers found over mDNS. Connect a websocket client to ws://127.0.0.1:<port>/ to send commands.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml or json)")
	flags.StringVar(&opts.StorePath, "store", defaultStorePath, "recipe file")
	flags.StringVar(&opts.GossipAddr, "gossip", "", "gossip UDP address (default 0.0.0.0:0)")
	flags.StringSliceVar(&opts.Seeds, "seeds", nil, "comma-separated gossip addresses of known peers")
	flags.StringVar(&opts.Topic, "topic", "", "gossip topic (default \"recipes\")")
	flags.BoolVar(&opts.NoDiscovery, "no-discovery", false, "disable mDNS discovery")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func run(cmd *cobra.Command, opts *rootOptions, args []string) error {
	log, err := newLogger(opts.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	nodeOpts, err := buildOptions(cmd, opts, args)
	if err != nil {
		return err
	}
	nodeOpts = append(nodeOpts, recipeshare.WithLogger(log))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := recipeshare.New(nodeOpts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "peer %s listening for commands on ws://%s/\n", node.ID(), node.CommandAddr())

	runErr := node.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := node.Close(closeCtx); err != nil {
		log.Warn("close node", zap.Error(err))
	}
	return runErr
}

// buildOptions merges the config file, the flags that were set and the port
// argument, in that order of precedence from lowest to highest.
func buildOptions(cmd *cobra.Command, opts *rootOptions, args []string) ([]recipeshare.Option, error) {
	var out []recipeshare.Option
	if opts.ConfigPath != "" {
		file, err := config.LoadFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		fileOpts, err := file.ToOptions()
		if err != nil {
			return nil, err
		}
		out = append(out, fileOpts...)
	}

	flags := cmd.Flags()
	if opts.ConfigPath == "" || flags.Changed("store") {
		out = append(out, recipeshare.WithStorePath(opts.StorePath))
	}
	if flags.Changed("gossip") {
		out = append(out, recipeshare.WithGossipAddr(opts.GossipAddr))
	}
	if flags.Changed("seeds") {
		out = append(out, recipeshare.WithSeeds(opts.Seeds))
	}
	if flags.Changed("topic") {
		out = append(out, recipeshare.WithTopic(opts.Topic))
	}
	if opts.NoDiscovery {
		out = append(out, recipeshare.WithDiscovery(false))
	}
	if len(args) > 0 || opts.ConfigPath == "" {
		out = append(out, recipeshare.WithCommandAddr(commandAddr(args)))
	}
	return out, nil
}

// parsePort returns the port argument, or the default when it is absent or
// not a valid port.
func parsePort(args []string) int {
	if len(args) == 0 {
		return defaultPort
	}
	port, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || port <= 0 || port > 65535 {
		return defaultPort
	}
	return port
}

func commandAddr(args []string) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(parsePort(args)))
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
