// Command tfsds runs a TFS storage node: it serves reads and writes for
// the logical blocks it holds and reports their liveness to the name
// server on a fixed interval.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xushiwei/tfs/pkg/agent"
	"github.com/xushiwei/tfs/pkg/block"
	"github.com/xushiwei/tfs/pkg/config"
	"github.com/xushiwei/tfs/pkg/health"
	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/rpc"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "tfsds",
	Short:   "TFS storage node - serves one replica set of logical blocks",
	Version: fmt.Sprintf("%s (%s)", Version, Commit),
	RunE:    runStorage,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.Flags().String("config", "", "Path to a YAML config file, merged over the built-in defaults")
	rootCmd.Flags().String("listen-addr", "", "Override the configured gRPC listen address")
	rootCmd.Flags().String("advertise-addr", "", "Address the coordinator dials to reach this node (defaults to listen-addr)")
	rootCmd.Flags().String("rack", "", "Rack label reported on every heartbeat, used for replica placement spread")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9091", "Address for the /metrics and /healthz endpoints")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func runStorage(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	listenOverride, _ := cmd.Flags().GetString("listen-addr")
	advertiseAddr, _ := cmd.Flags().GetString("advertise-addr")
	rack, _ := cmd.Flags().GetString("rack")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.LoadStorage(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenOverride != "" {
		cfg.ListenAddr = listenOverride
	}

	logger := log.WithComponent("tfsds")

	store, err := block.Open(cfg.DataDir, cfg.BlockSize, cfg.IndexBuckets)
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}
	defer store.Close()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	serverID := advertiseAddr
	if serverID == "" {
		serverID = lis.Addr().String()
	}

	ag := agent.New(store, serverID)
	srv := grpc.NewServer()
	rpc.RegisterDataNodeServer(srv, ag)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "ok\n")
		})
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.Errorf("metrics server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.CoordinatorAddr != "" {
		waitForCoordinator(ctx, logger, cfg.CoordinatorAddr)

		conn, err := grpc.NewClient(cfg.CoordinatorAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			rpc.DialOption(),
		)
		if err != nil {
			return fmt.Errorf("dial coordinator %s: %w", cfg.CoordinatorAddr, err)
		}
		defer conn.Close()

		// Capacity advertised to the placement tracker's disk-use ratio:
		// the node's configured block pool size, not physical disk space.
		capacity := int64(cfg.MainBlockCount+cfg.ExtBlockCount) * cfg.BlockSize
		hb := agent.NewHeartbeater(store, rpc.NewCoordinatorClient(conn), serverID, rack, capacity, cfg.HeartbeatEvery, cfg.ReportBlockEvery)
		go hb.Run(ctx)
	} else {
		logger.Warn().Msg("no coordinator_addr configured, running standalone with no heartbeats")
	}

	logger.Info().Str("listen_addr", cfg.ListenAddr).Str("server_id", serverID).Msg("tfsds listening")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("gRPC server error: %w", err)
	}

	srv.GracefulStop()
	return nil
}

// waitForCoordinator polls the coordinator's listen address with a plain
// TCP dial before the heartbeat loop starts, so a tfsds started ahead of
// its coordinator logs a clear retry instead of the heartbeat loop's
// first several beats silently failing.
func waitForCoordinator(ctx context.Context, logger zerolog.Logger, addr string) {
	checker := health.NewTCPChecker(addr).WithTimeout(2 * time.Second)
	status := health.NewStatus()
	cfg := health.Config{Retries: 1}

	for {
		result := checker.Check(ctx)
		status.Update(result, cfg)
		if status.Healthy {
			return
		}
		logger.Warn().Str("coordinator_addr", addr).Str("reason", result.Message).Msg("waiting for coordinator to become reachable")
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}
