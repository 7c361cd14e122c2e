// Package main is the bunbetsu CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/cli"
	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/rag"
	"github.com/hyperjump/bunbetsu/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bunbetsu/config.yaml"

// app holds the global flags shared by every command.
type app struct {
	configPath string
	debug      bool
	output     string
	stdout     io.Writer
	stderr     io.Writer
}

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if present; when neither exists the built-in defaults are used.
// Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func (a *app) format() (cli.OutputFormat, error) {
	return cli.ParseFormat(a.output)
}

// setup loads the config and builds the logger.
func (a *app) setup() (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if a.debug {
		cfg.Debug = true
	}
	logger, err := utils.NewLoggerWithLevel(cfg.Debug, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug))
	return cfg, logger, nil
}

// openService builds and opens the RAG service. The caller closes it and syncs the logger.
func (a *app) openService(ctx context.Context, opts ...rag.Option) (*rag.Service, *config.Config, *zap.Logger, error) {
	cfg, logger, err := a.setup()
	if err != nil {
		return nil, nil, nil, err
	}
	svc, err := rag.New(cfg, append([]rag.Option{rag.WithLogger(logger)}, opts...)...)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	if err := svc.Open(ctx); err != nil {
		_ = svc.Close()
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return svc, cfg, logger, nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "bunbetsu",
		Short:         "Answer waste-sorting questions from municipal disposal rules",
		Long:          `bunbetsu indexes disposal rule sheets and answers "how do I throw this away?" questions with hybrid retrieval and a local language model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(a),
		newAskCmd(a),
		newBatchCmd(a),
		newIngestCmd(a),
		newRemoveCmd(a),
		newSourcesCmd(a),
		newInfoCmd(a),
		newResetCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "bunbetsu version %s\n", version)
			},
		},
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
