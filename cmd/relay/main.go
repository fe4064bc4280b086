package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sparsechat/internal/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "relay",
		Short:        "Untrusted relay for sparse end-to-end encrypted chat",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	var (
		configPath string
		flags      app.RelayFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadRelayConfig(configPath, flags)
			if err != nil {
				return err
			}
			r, err := app.NewRelay(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return r.Server.Run(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML config file (relay: section)")
	f.StringVar(&flags.Listen, "listen", "", "listen address (default 127.0.0.1:3030)")
	f.IntVar(&flags.OutboxCapacity, "outbox", 0, "frames buffered per connection")
	f.StringVar(&flags.OverflowPolicy, "overflow", "", "full outbox policy: disconnect or drop_new")
	f.StringVar(&flags.LogLevel, "log-level", "", "log level (debug, info, warning, error)")
	f.StringVar(&flags.LogFormat, "log-format", "", "log format (text or json)")
	f.BoolVar(&flags.NoMailbox, "no-mailbox", false, "disable the fallback mailbox")
	f.BoolVar(&flags.NoMetrics, "no-metrics", false, "disable /metrics")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relay version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s\n", version)
		},
	}
}
