package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sparsechat/internal/domain"
)

func mailboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailbox",
		Short: "Use the relay's fallback mailbox",
	}
	cmd.AddCommand(mailboxPutCmd(), mailboxGetCmd())
	return cmd
}

// mailbox put [message]: store a message (argument or stdin) and print its id.
func mailboxPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put [message]",
		Short: "Store a message and print the id to collect it with",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			if len(args) == 1 {
				payload = []byte(args[0])
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload = b
			}
			if len(payload) == 0 {
				return fmt.Errorf("empty message")
			}
			id, err := appCtx.Mailbox.Deposit(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

// mailbox get <id>: collect a message; it is removed from the relay.
func mailboxGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Collect a message by id (it is removed from the relay)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := appCtx.Mailbox.Collect(cmd.Context(), domain.MailboxID(args[0]))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(msg)
			return err
		},
	}
}
