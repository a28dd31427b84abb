package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mnehpets/onerpc/config"
	"github.com/mnehpets/onerpc/jsonrpc"
)

func newMethodsCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "methods [service]",
		Short: "Print the method table of the demo services",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())
			reg, err := jsonrpc.BuildWithLogger(logger.With("cmd", "methods"), demoServices()...)
			if err != nil {
				return err
			}
			services := reg.Services()
			if len(args) == 1 {
				services = []string{args[0]}
			}
			return printMethods(cmd.OutOrStdout(), reg, services, logger)
		},
	}
}

func printMethods(w io.Writer, reg *jsonrpc.Registry, services []string, logger *slog.Logger) error {
	heading := color.New(color.Bold, color.FgCyan)
	for i, service := range services {
		methods := reg.Methods(service)
		if len(methods) == 0 {
			return fmt.Errorf("unknown service %q", service)
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		heading.Fprintln(w, service)

		table := tablewriter.NewTable(w,
			tablewriter.WithHeader([]string{"Method", "Params", "Mode"}),
		)
		for _, m := range methods {
			mode := "sync"
			if m.Async {
				mode = "async"
			}
			if err := table.Append([]string{m.Name, formatParams(m.Params), mode}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
		logger.Debug("listed rpc methods", "service", service, "count", len(methods))
	}
	return nil
}

func formatParams(params []jsonrpc.Param) string {
	parts := make([]string, len(params))
	for i, p := range params {
		s := p.Name + " " + p.Type.String()
		switch {
		case p.HasDefault:
			s += fmt.Sprintf(" = %v", p.Default)
		case p.Optional:
			s += "?"
		}
		parts[i] = s
	}
	return strings.Join(parts, ", ")
}
