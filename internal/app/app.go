package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"sparsechat/internal/client"
	"sparsechat/internal/config"
	"sparsechat/internal/domain"
	"sparsechat/internal/logging"
	"sparsechat/internal/relay"
)

// App bundles what the sparse subcommands share.
type App struct {
	Config  config.Client
	Log     *logrus.Logger
	Mailbox domain.MailboxClient
}

// New builds the client-side app from a resolved config.
func New(cfg config.Client) (*App, error) {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &App{
		Config:  cfg,
		Log:     log,
		Mailbox: relay.NewMailboxClient(cfg.MailboxURL),
	}, nil
}

// Connect dials the relay and registers under the configured name.
func (a *App) Connect(ctx context.Context, handler domain.EventHandler) (*client.Client, error) {
	return client.Dial(ctx, a.Config, handler, a.Log)
}
