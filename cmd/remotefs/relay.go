package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nodewire/remotefs/pkg/config"
	"github.com/nodewire/remotefs/pkg/relayauth"
	"github.com/nodewire/remotefs/pkg/relayserver"
	"github.com/nodewire/remotefs/pkg/relaytls"
)

func newRelayCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the relay server",
		Long: `Start the relay: the hub every agent and client dials outbound to.

The relay authenticates connecting nodes, routes client requests to an
available agent, and routes each agent's response back to whichever client
sent the matching request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRelayConfig(configPath)
			if err != nil {
				return err
			}
			return runRelay(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "relay.yaml", "Path to the relay config file")
	return cmd
}

func runRelay(cfg *config.RelayConfig) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var tlsCfg *tls.Config
	if cfg.EnableTLS {
		built, err := relaytls.ServerTLSConfig(relaytls.MTLSConfig{
			CACertFile:        cfg.TLS.CACertFile,
			ServerCertFile:    cfg.TLS.CertFile,
			ServerKeyFile:     cfg.TLS.KeyFile,
			RequireClientCert: cfg.TLS.RequireClient,
		})
		if err != nil {
			return fmt.Errorf("relay: build TLS config: %w", err)
		}
		tlsCfg = built
	}

	srv := relayserver.New(relayserver.Config{
		ListenAddr:      fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		MaxMessageSize:  cfg.MessageLimits.MaxMessageSize,
		SessionTTL:      durationOf(cfg.Session.Timeout),
		CleanupInterval: durationOf(cfg.Session.CleanupInterval),
		AuthPolicy:      relayauth.Policy{},
		TLSConfig:       tlsCfg,
	}, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		<-sigCh
		logger.Info("shutting down relay")
		cancel()
		srv.Stop(context.Background())
	}()

	logger.Info("relay starting", "addr", fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port))
	return srv.Run(ctx)
}
