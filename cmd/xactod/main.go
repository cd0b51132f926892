// Command xactod runs the key/value store server: it listens for client
// connections on a TCP port and serves the PUT/GET/COMMIT wire protocol,
// shutting down cleanly on SIGHUP.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"xacto/internal/metrics"
	"xacto/internal/registry"
	"xacto/internal/service"
	"xacto/internal/xlog"
	"xacto/pkg/mvcc"
)

var rootCmd = &cobra.Command{
	Use:   "xactod",
	Short: "xactod serves a concurrent, multi-version transactional key/value store",
	RunE:  run,
	// Other flags are accepted silently, per the wire protocol's CLI rule.
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
}

func init() {
	rootCmd.Flags().IntP("port", "p", 0, "listen port (required)")
	rootCmd.MarkFlagRequired("port")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "127.0.0.1:9090", "Address for the /metrics HTTP endpoint")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	xlog.Init(xlog.Config{
		Level:      xlog.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func run(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	store := mvcc.NewStore(mvcc.NewTransactionManager())
	reg := registry.New()
	logger := xlog.Logger

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
		},
	}

	listener, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("xactod: listen: %w", err)
	}
	logger.Info().Int("port", port).Msg("listening")

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint ready")

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	shutdown := make(chan struct{})
	go func() {
		<-sighup
		logger.Info().Msg("received SIGHUP, shutting down")
		terminate(listener, reg, logger)
		store.Close()
		close(shutdown)
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-shutdown:
				return nil
			default:
				logger.Error().Err(err).Msg("accept error")
				return err
			}
		}

		id := reg.Register(conn)
		metrics.ConnectionsActive.Set(float64(reg.Count()))
		connLogger := xlog.WithConn(id)

		go func(conn net.Conn) {
			defer func() {
				reg.Unregister(id)
				metrics.ConnectionsActive.Set(float64(reg.Count()))
			}()
			service.Dispatch(conn, store, connLogger)
		}(conn)
	}
}

// terminate performs the clean-shutdown sequence: half-close every client,
// wait for the service goroutines they belong to to finish, then stop
// accepting new connections.
func terminate(listener net.Listener, reg *registry.Registry, logger zerolog.Logger) {
	reg.ShutdownAll()
	reg.WaitForEmpty(context.Background())
	listener.Close()
	logger.Info().Msg("xactod terminated")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
