package client

import (
	"log/slog"

	"skylink/internal/config"
	"skylink/internal/transport/factory"
)

// NewFromConfig builds the configured transport and a client around it.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	tr, err := factory.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(Options{
		Transport:      tr,
		FriendlyName:   cfg.Client.FriendlyName,
		Protocol:       cfg.Client.Protocol,
		CommandTimeout: cfg.CommandTimeout(),
		AttachTimeout:  cfg.AttachTimeout(),
		Logger:         logger,
	})
}
