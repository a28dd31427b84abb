package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnehpets/onerpc/config"
)

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "onerpc",
		Short:         "JSON-RPC 2.0 service host",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.yaml, .yml or .toml)")

	load := func() (*config.Config, error) {
		return config.Load(cfgFile)
	}
	root.AddCommand(newServeCmd(load), newMethodsCmd(load))
	return root
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	// Level was checked by config.Validate.
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
