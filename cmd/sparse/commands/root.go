package commands

import (
	"github.com/spf13/cobra"

	"sparsechat/internal/app"
)

var (
	configPath string
	flags      app.ClientFlags
	appCtx     *app.App
)

// Execute runs the sparse CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	configPath, flags, appCtx = "", app.ClientFlags{}, nil

	root := &cobra.Command{
		Use:           "sparse",
		Short:         "End-to-end encrypted chat over an untrusted relay",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadClientConfig(configPath, flags)
			if err != nil {
				return err
			}
			appCtx, err = app.New(cfg)
			if err != nil {
				return err
			}
			appCtx.Log.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file (client: section)")
	pf.StringVar(&flags.RelayURL, "relay", "", "relay WebSocket URL (e.g. ws://127.0.0.1:3030/ws)")
	pf.StringVar(&flags.MailboxURL, "mailbox", "", "relay HTTP base URL for the mailbox (e.g. http://127.0.0.1:3030)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level (debug, info, warning, error)")

	root.AddCommand(chatCmd(), mailboxCmd())
	return root
}
