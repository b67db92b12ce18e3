// Command tfsns runs the TFS name server: the coordinator daemon that
// tracks block placement, arbitrates HA role with its peer, and answers
// client and storage-node RPCs.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/xushiwei/tfs/pkg/config"
	"github.com/xushiwei/tfs/pkg/coordinator"
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
	Use:     "tfsns",
	Short:   "TFS name server - block placement coordinator",
	Version: fmt.Sprintf("%s (%s)", Version, Commit),
	RunE:    runCoordinator,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.Flags().String("config", "", "Path to a YAML config file, merged over the built-in defaults")
	rootCmd.Flags().String("listen-addr", "", "Override the configured gRPC listen address")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the /metrics and /healthz endpoints")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	listenOverride, _ := cmd.Flags().GetString("listen-addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.LoadCoordinator(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenOverride != "" {
		cfg.ListenAddr = listenOverride
	}

	coord, err := coordinator.New(cfg)
	if err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coord.Close()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	srv := grpc.NewServer()
	rpc.RegisterCoordinatorServer(srv, coord)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "role=%d\n", coord.Role())
		})
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.Errorf("metrics server error: %v", err)
		}
	}()

	logger := log.WithComponent("tfsns")
	logger.Info().Str("listen_addr", cfg.ListenAddr).Str("metrics_addr", metricsAddr).Msg("tfsns listening")

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
