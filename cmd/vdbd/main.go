// Command vdbd bootstraps the core engine: load configuration, recover
// persisted state, and hand off to whatever external layer (HTTP, an
// embedding process) drives it. Routing and transport are out of scope
// here by design — this binary only proves the engine boots cleanly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgevdb/core/internal/config"
	"github.com/edgevdb/core/internal/engine"
	"github.com/edgevdb/core/internal/metrics"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "vdbd",
		Short: "edge vector database core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML/JSON/TOML config file")

	root.AddCommand(serveCmd(), checkCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "load the engine and block, ready for an external layer to attach",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			reg := metrics.New()
			e, err := engine.New(cfg, reg, logger)
			if err != nil {
				return fmt.Errorf("start engine: %w", err)
			}
			defer e.Close()

			logger.Info("engine ready", zap.Any("health", e.Health()))
			select {} // external layer (HTTP, embedder) owns the real lifecycle
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "load the engine once, report health, and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop()
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e, err := engine.New(cfg, metrics.NewUnregistered(), logger)
			if err != nil {
				return fmt.Errorf("start engine: %w", err)
			}
			defer e.Close()

			h := e.Health()
			fmt.Printf("live=%v ready=%v degradation=%s wal_tail_open=%v\n",
				h.Live, h.Ready, h.Degradation, h.WALTailOpen)
			if h.WALTailOpen {
				os.Exit(2)
			}
			return nil
		},
	}
}
