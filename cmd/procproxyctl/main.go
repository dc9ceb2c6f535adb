// Command procproxyctl is a small driver CLI for exercising an Acceptor
// against native endpoint binaries during development.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/loopwire/procproxy/internal/config"
	"github.com/loopwire/procproxy/internal/logging"
	"github.com/loopwire/procproxy/internal/proxy"
	"github.com/loopwire/procproxy/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "procproxyctl",
		Short:   "procproxyctl - drives a ProcessProxy acceptor",
		Long:    "procproxyctl runs a loopback ProcessProxy acceptor and reports what connected native endpoints ask for.",
		Version: Version,
	}

	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(platformCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func listenCmd() *cobra.Command {
	var configPath string
	var listenAddr string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept native endpoint connections",
		Long:  "Bind a loopback acceptor and log every command a connecting native endpoint issues.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg = loaded
			} else {
				cfg = config.Default()
			}
			if listenAddr != "" {
				cfg.Listen.Address = listenAddr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

			acceptor, err := proxy.Listen(cfg.Listen.Address, proxy.Config{
				Consumer:         func(c *proxy.Connection) { handleConnection(logger, c) },
				HandshakeTimeout: cfg.HandshakeTimeout(),
				Logger:           logger,
			})
			if err != nil {
				return fmt.Errorf("failed to start acceptor: %w", err)
			}
			defer acceptor.Close()

			fmt.Printf("procproxyctl listening on %s\n", acceptor.Addr())

			var metricsServer *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})
				metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("metrics server failed", logging.KeyError, err.Error())
					}
				}()
				fmt.Printf("metrics listening on %s\n", metricsAddr)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			serveErr := make(chan error, 1)
			go func() { serveErr <- acceptor.Serve(ctx) }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				fmt.Printf("\nreceived signal %v, shutting down...\n", sig)
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("acceptor stopped: %w", err)
				}
			}

			cancel()
			if metricsServer != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				metricsServer.Shutdown(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults built in if omitted)")
	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Override the configured loopback listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Loopback address to serve Prometheus metrics on (disabled if empty)")

	return cmd
}

// handleConnection logs the handshake, the native endpoint's reported
// args/env/cwd, and mirrors its stdin to our own stdout for inspection
// until the connection closes.
func handleConnection(logger *slog.Logger, c *proxy.Connection) {
	logger.Info("connection accepted", logging.KeyRemoteAddr, c.RemoteAddr(), logging.KeyToken, c.Token())
	fmt.Printf("connection from %s (token %q)\n", c.RemoteAddr(), c.Token())

	args, err := c.GetArgs()
	if err != nil {
		fmt.Printf("  GetArgs failed: %v\n", err)
	} else {
		fmt.Printf("  args: %v\n", args)
	}

	cwd, err := c.GetCwd()
	if err != nil {
		fmt.Printf("  GetCwd failed: %v\n", err)
	} else {
		fmt.Printf("  cwd: %s\n", cwd)
	}

	env, err := c.GetEnv()
	if err != nil {
		fmt.Printf("  GetEnv failed: %v\n", err)
	} else {
		fmt.Printf("  env entries: %d\n", len(env))
	}

	c.Input().Listen(func(b []byte) bool {
		fmt.Printf("  [%s] stdin: %q\n", c.RemoteAddr(), string(b))
		return true
	}, func() {
		fmt.Printf("  [%s] stdin closed\n", c.RemoteAddr())
	})

	c.OnClose(func() {
		logger.Info("connection closed", logging.KeyRemoteAddr, c.RemoteAddr())
		fmt.Printf("connection from %s closed\n", c.RemoteAddr())
	})
}

func platformCmd() *cobra.Command {
	var goos string
	var arch string

	cmd := &cobra.Command{
		Use:   "platform",
		Short: "Inspect or resolve native endpoint binaries",
		Long:  "List the supported (OS, architecture) platforms, or resolve the native endpoint binary path for one of them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goos == "" && arch == "" {
				for _, p := range platform.Platforms() {
					fmt.Println(p)
				}
				return nil
			}
			if goos == "" || arch == "" {
				return fmt.Errorf("both --os and --arch must be given to resolve a binary path")
			}
			path, err := platform.BinaryPath(goos, arch)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}

	cmd.Flags().StringVar(&goos, "os", "", "Operating system (darwin, linux, win32)")
	cmd.Flags().StringVar(&arch, "arch", "", "Architecture (x64, arm64, ia32)")

	return cmd
}
