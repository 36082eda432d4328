package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nodewire/remotefs/pkg/accessaudit"
	"github.com/nodewire/remotefs/pkg/accessgate"
	"github.com/nodewire/remotefs/pkg/agentconn"
	"github.com/nodewire/remotefs/pkg/agentdispatch"
	"github.com/nodewire/remotefs/pkg/config"
	"github.com/nodewire/remotefs/pkg/metrics"
	"github.com/nodewire/remotefs/pkg/relaytls"
	"github.com/nodewire/remotefs/pkg/wire"
)

func newAgentCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run an agent, exposing a local filesystem over the relay",
		Long: `Start an agent: it dials the configured relay, authenticates, and
serves filesystem requests the relay forwards to it, each checked against
its access policy before touching disk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAgentConfig(configPath)
			if err != nil {
				return err
			}
			return runAgent(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "agent.yaml", "Path to the agent config file")
	return cmd
}

func runAgent(cfg *config.AgentConfig) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	metricsReg := metrics.New()

	gate := accessgate.New(accessgate.AccessPolicy{
		AllowedRoots:      cfg.Access.AllowedPaths,
		DeniedPrefixes:    cfg.Access.DeniedPaths,
		ReadOnlyPaths:     cfg.Access.ReadOnlyPaths,
		AllowedExtensions: cfg.Access.AllowedExtensions,
		DeniedExtensions:  cfg.Access.DeniedExtensions,
		MaxFileSize:       cfg.Access.MaxFileSize,
		FollowSymlinks:    cfg.Access.FollowSymlinks,
	})

	auditLogger := accessaudit.NewRingLogger(10000)
	dispatcher := agentdispatch.New(gate, auditLogger, metricsReg, logger, cfg.Performance.WorkerThreads)

	var tlsCfg *tls.Config
	if cfg.Security.EnableTLS {
		built, err := relaytls.ClientTLSConfig(relaytls.MTLSConfig{
			CACertFile:     cfg.Security.TLS.CACertFile,
			ClientCertFile: cfg.Security.TLS.CertFile,
			ClientKeyFile:  cfg.Security.TLS.KeyFile,
		})
		if err != nil {
			return fmt.Errorf("agent: build TLS config: %w", err)
		}
		tlsCfg = built
	}

	connCfg := agentconn.Config{
		RelayURL:          cfg.RelayURL,
		NodeID:            cfg.AgentID,
		NodeType:          "agent",
		HeartbeatInterval: durationOf(cfg.Network.HeartbeatInterval),
		BaseBackoff:       durationOf(cfg.Network.ReconnectBackoffBase),
		DialTimeout:       durationOf(cfg.Network.ConnectionTimeout),
		TLSConfig:         tlsCfg,
	}

	handler := func(ctx context.Context, req wire.Message) wire.Message {
		return dispatcher.Dispatch(ctx, req)
	}

	manager := agentconn.New(connCfg, handler, logger, metricsReg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		<-sigCh
		logger.Info("stopping agent")
		manager.Stop()
		cancel()
	}()

	logger.Info("agent starting", "agent_id", cfg.AgentID, "relay_url", cfg.RelayURL)
	return manager.Run(ctx)
}
