package app

import (
	"github.com/sirupsen/logrus"

	"sparsechat/internal/config"
	"sparsechat/internal/logging"
	"sparsechat/internal/relayserver"
)

// Relay bundles the relay server and its logger.
type Relay struct {
	Config config.Relay
	Log    *logrus.Logger
	Server *relayserver.Server
}

// NewRelay constructs the relay dependency graph from cfg.
func NewRelay(cfg config.Relay) (*Relay, error) {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	srv, err := relayserver.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Relay{Config: cfg, Log: log, Server: srv}, nil
}
