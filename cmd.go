package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var version = "1.0.0" // Set during build with -ldflags

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gofast-cache",
	Short: "gofast-cache - an in-memory key-value cache speaking a memcached ASCII subset",
	Long: `gofast-cache is a concurrent, in-memory key-value cache that speaks a
subset of the memcached ASCII protocol: get, set, add, replace, delete.

Features:
- Shared store with time-based expiry and automatic capacity growth
- Bounded pool of concurrent connection workers
- Per-connection idle timeout
- Optional Prometheus metrics endpoint`,
	Version: version,
	RunE:    runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := NewLogger(config)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting gofast-cache", zap.String("config", config.String()))

	supervisor, err := NewSupervisor(config, logger)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := supervisor.Serve(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("gofast-cache stopped cleanly")
	return nil
}

// configCmd shows current configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := LoadConfig()
		if err != nil {
			return err
		}
		fmt.Println("gofast-cache configuration:")
		fmt.Println(strings.Repeat("=", 31))
		fmt.Printf("Host: %s\n", config.Host)
		fmt.Printf("Port: %d\n", config.Port)
		fmt.Printf("Max Clients: %d\n", config.MaxClients)
		fmt.Printf("Client Timeout: %v\n", config.ClientTimeout)
		fmt.Printf("Hash Capacity: %d\n", config.HashCapacity)
		fmt.Printf("Read Chunk Bytes: %d\n", config.ReadChunkBytes)
		fmt.Printf("Log Level: %s\n", config.LogLevel)
		fmt.Printf("Log Format: %s\n", config.LogFormat)
		fmt.Printf("Metrics Addr: %s\n", config.MetricsAddr)
		return nil
	},
}

// versionCmd shows version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gofast-cache v%s\n", version)
		fmt.Printf("Built with Go %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("host", "H", "0.0.0.0", "Host to bind to")
	rootCmd.PersistentFlags().IntP("port", "p", 11211, "Port to listen on")
	rootCmd.PersistentFlags().Int("max-clients", 4, "Maximum number of concurrent connection workers")
	rootCmd.PersistentFlags().Duration("client-timeout", 60*time.Second, "Idle-read timeout per connection")
	rootCmd.PersistentFlags().Int("hash-capacity", 16, "Initial bucket count for the store")
	rootCmd.PersistentFlags().Int("read-chunk-bytes", 1024, "Bytes read from a socket per syscall")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address to serve Prometheus metrics on (empty disables it)")

	viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("max_clients", rootCmd.PersistentFlags().Lookup("max-clients"))
	viper.BindPFlag("client_timeout", rootCmd.PersistentFlags().Lookup("client-timeout"))
	viper.BindPFlag("hash_capacity", rootCmd.PersistentFlags().Lookup("hash-capacity"))
	viper.BindPFlag("read_chunk_bytes", rootCmd.PersistentFlags().Lookup("read-chunk-bytes"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("metrics_addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute is the main entry point for the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
