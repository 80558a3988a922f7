package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ironsheep/site-survey/internal/config"
	"github.com/ironsheep/site-survey/internal/monitor"
	"github.com/ironsheep/site-survey/internal/ocr"
	"github.com/ironsheep/site-survey/internal/pipeline"
	"github.com/ironsheep/site-survey/internal/store"
	"github.com/ironsheep/site-survey/internal/textevidence"
)

// app carries what every command shares once flags are parsed.
type app struct {
	configPath string
	verbose    bool

	settings *config.Settings
	logger   *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "site-survey",
		Short:         "Fuse elevation, imagery and historical text into archaeological site candidates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// these run without settings
			if cmd.Name() == "version" || cmd.Name() == "init-config" {
				return nil
			}
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		runCommand(a),
		serveCommand(a),
		initConfigCommand(),
		versionCommand(),
	)
	return root
}

func (a *app) setup() error {
	settings, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.settings = settings

	logger, err := newLogger(a.verbose)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.logger = logger
	return nil
}

// newLogger builds a JSON logger on stderr, keeping stdout free for MCP.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// components are the long-lived parts built from the settings.
type components struct {
	pipeline *pipeline.Pipeline
	store    *store.Store
	ocr      *ocr.Engine
	registry *prometheus.Registry
}

func (c *components) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// build wires the pipeline with the optional analyzer, OCR engine, metrics
// registry and run store the settings enable.
func (a *app) build(ctx context.Context) (*components, error) {
	s := a.settings
	c := &components{registry: prometheus.NewRegistry()}

	metrics, err := monitor.NewMetrics(c.registry)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithMonitor(monitor.New(metrics, a.logger)),
	}

	if s.Text.APIKey != "" {
		analyzer, err := textevidence.NewGenAIAnalyzer(ctx, s.Text.APIKey, s.Text.Model)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithAnalyzer(analyzer))
	} else {
		a.logger.Info("no text.api_key configured, historical documents will be reported as failures")
	}

	if s.OCR.Enabled {
		c.ocr = ocr.New(s.OCR.Language, s.OCR.MinConfidence)
		opts = append(opts, pipeline.WithRecognizer(c.ocr))
	}

	if s.Storage.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(s.Storage.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		st, err := store.New(s.Storage.DBPath)
		if err != nil {
			return nil, err
		}
		c.store = st
	}

	c.pipeline = pipeline.New(s.PipelineConfig(), opts...)
	return c, nil
}

func initConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a config file holding every option at its default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "site-survey %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		},
	}
}
