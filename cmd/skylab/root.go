package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/skylab/internal/config"
	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/logger"
	"github.com/rafaeljc/skylab/internal/source"
)

// cli holds the state shared by every subcommand.
type cli struct {
	logLevel string
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "skylab",
		Short:        "Evaluate and inspect Skylab flag files",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Logs go to stderr so stdout stays machine readable.
			c.logger = logger.NewWithWriter(&config.AppConfig{
				Name:        "skylab-cli",
				Version:     "dev",
				Environment: "development",
				LogLevel:    c.logLevel,
				LogFormat:   "text",
			}, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	root.AddCommand(
		c.newEvalCmd(),
		c.newOrderCmd(),
		newHashCmd(),
		newValidateCmd(),
	)
	return root
}

// loadFlags reads and parses a JSON or YAML flag file.
func loadFlags(path string) ([]evaluation.Flag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flag file: %w", err)
	}
	flags, err := source.ParseFlags(data)
	if err != nil {
		return nil, err
	}
	return flags, nil
}

// readArgument resolves a value given inline, as @path, or as "-" for stdin.
func readArgument(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(strings.TrimPrefix(arg, "@"))
	default:
		return []byte(arg), nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
