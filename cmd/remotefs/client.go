package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nodewire/remotefs/pkg/clientpool"
	"github.com/nodewire/remotefs/pkg/config"
	"github.com/nodewire/remotefs/pkg/relaytls"
)

func newClientCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run a client, driving one or more agents through the relay",
		Long: `Start a client: it dials every configured agent endpoint through the
relay, keeps the resulting connection pool alive, and selects among them per
request according to the configured load-balancing and retry policy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(configPath)
			if err != nil {
				return err
			}
			return runClient(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "client.yaml", "Path to the client config file")
	return cmd
}

func runClient(cfg *config.ClientConfig) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	pool := clientpool.New(selectionPolicyFor(cfg.Behaviour.LoadBalancing), retryPolicyFor(cfg.Behaviour))

	clientID := "client-" + uuid.NewString()

	var tlsCfg *tls.Config
	if cfg.Connection.EnableTLS {
		built, err := relaytls.ClientTLSConfig(relaytls.MTLSConfig{
			CACertFile:     cfg.Connection.TLS.CACertFile,
			ClientCertFile: cfg.Connection.TLS.CertFile,
			ClientKeyFile:  cfg.Connection.TLS.KeyFile,
		})
		if err != nil {
			return fmt.Errorf("client: build TLS config: %w", err)
		}
		tlsCfg = built
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		<-sigCh
		logger.Info("stopping client")
		cancel()
	}()

	dialed := 0
	for _, ep := range cfg.Agents {
		if !ep.Enabled {
			continue
		}
		dialCtx, dialCancel := context.WithTimeout(ctx, durationOf(cfg.Connection.ConnectTimeout))
		conn, err := clientpool.Dial(dialCtx, ep.URL, clientID, nil, nil, ep.Weight, tlsCfg)
		dialCancel()
		if err != nil {
			logger.Error("failed to dial agent", "agent_id", ep.ID, "url", ep.URL, "error", err)
			continue
		}
		pool.Add(conn)
		dialed++

		go func(nodeID string, c *clientpool.Connection) {
			if err := c.ReceiveLoop(ctx, logger); err != nil && ctx.Err() == nil {
				logger.Warn("receive loop ended", "agent_id", nodeID, "error", err)
			}
		}(ep.ID, conn)

		logger.Info("dialed agent", "agent_id", ep.ID, "url", ep.URL)
	}

	if dialed == 0 {
		return fmt.Errorf("client: no agent endpoint could be dialed")
	}

	logger.Info("client ready", "agents", dialed)
	<-ctx.Done()
	return nil
}

func selectionPolicyFor(kind config.LoadBalancingKind) clientpool.SelectionPolicy {
	switch kind {
	case config.LoadBalancingWeightedRoundRobin:
		return &clientpool.WeightedRoundRobin{}
	case config.LoadBalancingLeastConnections:
		return clientpool.LeastConnections{}
	case config.LoadBalancingRandom:
		return clientpool.Random{}
	default:
		return &clientpool.RoundRobin{}
	}
}

func retryPolicyFor(b config.BehaviourConfig) clientpool.RetryPolicy {
	var backoff clientpool.BackoffKind
	switch b.RetryStrategy {
	case config.RetryStrategyNone:
		backoff = clientpool.BackoffNone
	case config.RetryStrategyLinear:
		backoff = clientpool.BackoffLinear
	default:
		backoff = clientpool.BackoffExponential
	}
	return clientpool.RetryPolicy{
		MaxRetries: b.MaxRetries,
		Backoff:    backoff,
		BaseDelay:  durationOf(b.RetryBase),
		MaxDelay:   durationOf(b.RetryCap),
	}
}
