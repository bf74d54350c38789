package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

type procsimCmd interface {
	register() *cobra.Command
	run(ctx context.Context, args []string) error
}

func addCommand(parent *cobra.Command, child procsimCmd) *cobra.Command {
	cobraChild := child.register()
	cobraChild.RunE = func(cmd *cobra.Command, args []string) error {
		return child.run(cmd.Context(), args)
	}
	parent.AddCommand(cobraChild)
	return cobraChild
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "procsim",
		Short:         "procsim spawns and supervises simulated workload processes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "procsim.yaml", "Path to configuration file")

	serve := &serveCmd{}
	addCommand(rootCmd, serve)
	addCommand(rootCmd, &bodyCmd{})
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return serve.run(cmd.Context(), args)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
