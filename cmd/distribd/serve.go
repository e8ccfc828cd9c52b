package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/distribd/distribd/pkg/auth"
	"github.com/distribd/distribd/pkg/consensus"
	"github.com/distribd/distribd/pkg/events"
	"github.com/distribd/distribd/pkg/log"
	"github.com/distribd/distribd/pkg/logstore"
	"github.com/distribd/distribd/pkg/metrics"
	"github.com/distribd/distribd/pkg/mirror"
	"github.com/distribd/distribd/pkg/reducer"
	"github.com/distribd/distribd/pkg/snapshot"
	"github.com/distribd/distribd/pkg/submitter"
	"github.com/distribd/distribd/pkg/transport"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a distribd node",
	Long: `serve starts one node of the cluster: its durable log, consensus
loop, state reducer, mirror engine, and the peer-transport and metrics
HTTP servers. It blocks until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "distribd.yaml", "path to the node's YAML config file")
	serveCmd.Flags().Duration("upload-sweep-grace", 24*time.Hour, "age at which an orphaned upload temp file is reclaimed on start")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	sweepGrace, _ := cmd.Flags().GetDuration("upload-sweep-grace")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyConfigLogging(cfg)

	metrics.SetVersion(Version)
	nodeLog := log.WithNodeID(cfg.Node.ID)
	nodeLog.Info().Str("config", configPath).Msg("starting distribd node")

	if err := mirror.SweepUploads(cfg.Node.ImagesDirectory, sweepGrace); err != nil {
		return fmt.Errorf("sweep orphaned uploads: %w", err)
	}

	logPath := filepath.Join(cfg.Node.ImagesDirectory, strings.ReplaceAll(cfg.Node.ID, ":", "_")+".log")
	logStore, err := logstore.Open(logPath)
	if err != nil {
		return fmt.Errorf("open durable log: %w", err)
	}
	defer logStore.Close()

	snapStore, err := snapshot.Open(cfg.Node.ImagesDirectory)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer snapStore.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	// A fresh node replays its whole committed log into the reducer
	// (logstore has no notion of "committed" on its own; at recovery time
	// every entry ever durably appended is trusted, since a log never
	// holds an uncommitted suffix that survived restart under single-node
	// recovery). Multi-node catch-up past this point happens through the
	// ordinary consensus replication path.
	red, err := reducer.Restore(snapStore, logStore, logStore.LastIndex(), broker)
	if err != nil {
		return fmt.Errorf("restore reducer state: %w", err)
	}
	nodeLog.Info().Uint64("last_applied", red.LastApplied()).Msg("reducer restored")

	peerClients := make([]*transport.Client, 0, len(cfg.Peers))
	for _, addr := range cfg.Peers {
		peerClients = append(peerClients, transport.NewClient(addr, 0, 0, 0))
	}

	node := consensus.New(consensus.Config{
		ID:                  cfg.raftAddr(),
		Peers:               peerClients,
		ElectionTimeoutLow:  cfg.electionTimeoutLow(),
		ElectionTimeoutHigh: cfg.electionTimeoutHigh(),
		HeartbeatInterval:   cfg.heartbeatInterval(),
		SnapshotStore:       snapStore,
	}, logStore, red)

	sub := submitter.New(node, peerClients)

	var tokenSource *auth.TokenSource
	if cfg.Mirroring.Realm != "" {
		tokenSource = auth.New(auth.Config{
			Realm:    cfg.Mirroring.Realm,
			Service:  cfg.Mirroring.Service,
			Username: cfg.Mirroring.Username,
			Password: cfg.Mirroring.Password,
		}, nil)
	}
	var tokenGetter transport.TokenGetter
	if tokenSource != nil {
		tokenGetter = tokenSource.Get
	}
	fetchClient := transport.NewContentFetchClient(tokenGetter)

	mirrorEngine := mirror.New(mirror.Config{
		ImagesDirectory: cfg.Node.ImagesDirectory,
		Self:            fmt.Sprintf("%s:%d", cfg.Registry.Address, cfg.Registry.Port),
	}, red, broker, sub, fetchClient, nil)

	collector := metrics.NewCollector(node, red)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node.Start(ctx)
	mirrorEngine.Start(ctx)
	collector.Start()
	metrics.RegisterComponent("raft", true, "")
	metrics.RegisterComponent("mirror", true, "")

	raftServer := &http.Server{
		Addr:    cfg.raftAddr(),
		Handler: transport.NewServer(node),
	}
	metricsServer := &http.Server{
		Addr:    cfg.Metrics.Address,
		Handler: buildMetricsMux(),
	}

	errCh := make(chan error, 2)
	go func() { errCh <- serveOrNil(raftServer) }()
	go func() { errCh <- serveOrNil(metricsServer) }()

	select {
	case <-ctx.Done():
		nodeLog.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			nodeLog.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = raftServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	collector.Stop()
	mirrorEngine.Stop()
	node.Stop()

	nodeLog.Info().Msg("distribd node stopped")
	return nil
}

func buildMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	return mux
}

func serveOrNil(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
