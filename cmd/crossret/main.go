// Package main is the crossret CLI: the cross-modal retrieval baseline
// pipeline over the AToMiC image/text collections.
//
// # Basic Usage
//
// Fetch the parquet exports and build the BM25 baseline:
//
//	crossret download
//	crossret bm25-baseline --output runs/bm25
//
// Dense retrieval:
//
//	crossret encode --type image --split validation
//	crossret index dense --embeddings out/embeddings/image/validation --index out/indexes/clip.images
//	crossret search dense --index out/indexes/clip.images.redis.flat --topics out/embeddings/text/validation
//
// # Environment Variables
//
//   - ENV: config name under config/ (default: local)
//   - HF_TOKEN: HuggingFace token for gated dataset downloads
//   - ATOMIC_CACHE: id-index cache directory
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/config"
	logpkg "github.com/kailas-cloud/crossret/internal/logger"
	"github.com/kailas-cloud/crossret/internal/metrics"
	"github.com/kailas-cloud/crossret/internal/version"
)

// app carries what every subcommand needs once the root pre-run finished.
type app struct {
	configPath  string
	logLevel    string
	metricsPort int
	noProgress  bool

	env     string
	cfg     config.Config
	logger  *zap.Logger
	metrics *http.Server
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{}
	err := buildRootCmd(a).ExecuteContext(ctx)
	stop()
	a.shutdown()
	if err != nil {
		if a.logger != nil {
			a.logger.Error("Command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func buildRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "crossret",
		Short:         "Cross-modal retrieval baselines: collections, indexes, runs",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetVersionTemplate(version.String() + "\n")

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "Path to YAML configuration file (default: config/$ENV.yaml)")
	f.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.IntVar(&a.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port")
	f.BoolVar(&a.noProgress, "no-progress", false, "Disable progress bars")

	root.AddCommand(
		buildDownloadCmd(a),
		buildQrelsCmd(a),
		buildConvertCmd(a),
		buildLookupCmd(a),
		buildEncodeCmd(a),
		buildIndexCmd(a),
		buildSearchCmd(a),
		buildEvaluateCmd(a),
		buildBaselineCmd(a),
		buildPublishCmd(a),
		buildCheckCmd(a),
		buildVersionCmd(),
	)
	return root
}

// init loads config, builds the logger and starts the metrics endpoint.
func (a *app) init(cmd *cobra.Command) error {
	a.env = config.GetEnv()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.Metrics.Port = a.metricsPort
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	logger, err := logpkg.NewLogger(a.env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.logger = logger

	// Register metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()
	metrics.RegisterEmbeddingMetrics()
	if cfg.Metrics.Port > 0 {
		a.metrics = metrics.Serve(cfg.Metrics.Port, logger)
	}

	logger.Debug("Starting crossret",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.String("command", cmd.CommandPath()),
	)
	return nil
}

// loadConfig reads --config, else config/$ENV.yaml when present, else defaults.
func (a *app) loadConfig() (config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}
	cfg, err := config.Load(a.env)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func (a *app) shutdown() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("Metrics server shutdown", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) progress() bool { return !a.noProgress }

func (a *app) outputDir(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Dataset.OutputDir
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
