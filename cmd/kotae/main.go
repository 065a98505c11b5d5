// Package main is the Kotae CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

var (
	configPath   string
	debugMode    bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "kotae",
	Short: "Answer questions from your own documents",
	Long: `Kotae ingests PDF, DOCX, text and markdown documents, splits them into chunks,
embeds the chunks into a vector index and answers questions with citations to
the passages it retrieved.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", defaultConfigPath, "config file path")
	flags.BoolVar(&debugMode, "debug", false, "enable debug logging")
	flags.StringVar(&outputFormat, "format", string(cli.OutputText), "output format: text or json")
}

func main() {
	// A missing .env is fine; keys may come from the real environment.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, and built-in defaults are used when neither file exists.
// It returns the path actually loaded, or "" for built-in defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		local := filepath.Join(cwd, "config.yaml")
		if _, err := os.Stat(local); err == nil {
			cfg, err := config.Load(local)
			if err != nil {
				return nil, "", err
			}
			return cfg, local, nil
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(cwd), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// session is what every command needs before it builds components.
type session struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	format     cli.OutputFormat
}

func newSession() (*session, error) {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &session{cfg: cfg, configPath: resolved, logger: logger, format: format}, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}
