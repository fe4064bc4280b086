package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"sparsechat/internal/client"
	"sparsechat/internal/domain"
)

// chat: connect, register and run an interactive session.
func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect to a relay and chat",
		Long: `Connect to a relay and chat.

Type "recipient: message" to send, where recipient is a display name or a
client id. Commands: /list, /whoami, /help, /quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := &printer{w: cmd.OutOrStdout()}

			if strings.TrimSpace(appCtx.Config.Name) == "" {
				out.printf("display name: ")
				name, err := in.ReadString('\n')
				if err != nil && name == "" {
					return fmt.Errorf("reading display name: %w", err)
				}
				appCtx.Config.Name = strings.TrimSpace(name)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := appCtx.Connect(ctx, out)
			if err != nil {
				return err
			}
			out.printf("connected as %s (%s), fingerprint %s\n", c.Identity().DisplayName(), c.ID(), c.Identity().Fingerprint())

			var runErr error
			runDone := make(chan struct{})
			go func() {
				runErr = c.Run(ctx)
				close(runDone)
			}()
			defer func() {
				_ = c.Close()
				<-runDone
			}()

			lines := make(chan string)
			go scanLines(in, lines)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-runDone:
					if runErr != nil {
						return fmt.Errorf("relay connection lost: %w", runErr)
					}
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if quit := handleLine(ctx, c, out, line); quit {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "display name (prompted for when empty)")
	cmd.Flags().DurationVar(&flags.HandshakeTimeout, "handshake-timeout", 0, "how long to wait for a peer's public key")
	return cmd
}

func scanLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

type inputKind int

const (
	inputEmpty inputKind = iota
	inputSend
	inputList
	inputWhoami
	inputHelp
	inputQuit
)

type input struct {
	kind      inputKind
	recipient string
	text      string
}

var errUsage = errors.New(`expected "recipient: message" or a /command`)

func parseLine(line string) (input, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return input{kind: inputEmpty}, nil
	case strings.HasPrefix(line, "/"):
		switch strings.ToLower(line) {
		case "/list":
			return input{kind: inputList}, nil
		case "/whoami":
			return input{kind: inputWhoami}, nil
		case "/help":
			return input{kind: inputHelp}, nil
		case "/quit", "/exit":
			return input{kind: inputQuit}, nil
		default:
			return input{}, fmt.Errorf("unknown command %q", line)
		}
	}
	recipient, text, ok := strings.Cut(line, ":")
	recipient, text = strings.TrimSpace(recipient), strings.TrimSpace(text)
	if !ok || recipient == "" || text == "" {
		return input{}, errUsage
	}
	return input{kind: inputSend, recipient: recipient, text: text}, nil
}

// handleLine acts on one line of user input and reports whether to quit.
func handleLine(ctx context.Context, c *client.Client, out *printer, line string) bool {
	in, err := parseLine(line)
	if err != nil {
		out.printf("! %v\n", err)
		return false
	}
	switch in.kind {
	case inputQuit:
		return true
	case inputList:
		out.members(c.ID(), c.Members())
	case inputWhoami:
		out.printf("%s  %s  fingerprint %s\n", c.ID(), c.Identity().DisplayName(), c.Identity().Fingerprint())
	case inputHelp:
		out.printf("recipient: message   send to a display name or client id\n/list /whoami /quit\n")
	case inputSend:
		peer, err := c.Resolve(in.recipient)
		if err != nil {
			out.printf("! %v\n", err)
			return false
		}
		if err := c.SendPlaintext(ctx, peer, []byte(in.text)); err != nil {
			out.printf("! sending to %s: %v\n", in.recipient, err)
		}
	}
	return false
}

// printer is the chat UI's event handler. Output from the read loop and the
// input loop is serialised.
type printer struct {
	mu    sync.Mutex
	w     io.Writer
	names map[domain.ClientID]domain.DisplayName
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) label(id domain.ClientID) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name, ok := p.names[id]; ok {
		return fmt.Sprintf("%s (%s)", name, shortID(id))
	}
	return shortID(id)
}

func (p *printer) members(self domain.ClientID, members []domain.Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%d online:\n", len(members))
	for _, m := range members {
		marker := " "
		if m.ID == self {
			marker = "*"
		}
		fmt.Fprintf(p.w, " %s %-20s %s\n", marker, m.Name, m.ID)
	}
}

func (p *printer) OnPlaintextReceived(peer domain.ClientID, plaintext []byte) {
	p.printf("[%s] %s\n", p.label(peer), plaintext)
}

func (p *printer) OnMembershipChanged(members []domain.Member) {
	names := make(map[domain.ClientID]domain.DisplayName, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}
	p.mu.Lock()
	p.names = names
	p.mu.Unlock()
	p.printf("* %d online\n", len(members))
}

func (p *printer) OnDeliveryFailed(peer domain.ClientID, err error) {
	p.printf("! not delivered to %s: %v\n", p.label(peer), err)
}

func (p *printer) OnError(peer domain.ClientID, err error) {
	if peer == "" {
		p.printf("! %v\n", err)
		return
	}
	p.printf("! %s: %v\n", p.label(peer), err)
}

func shortID(id domain.ClientID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
