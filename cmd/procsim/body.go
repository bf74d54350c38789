package main

import (
	"context"

	"github.com/spf13/cobra"

	"procsim/internal/logging"
	"procsim/internal/sim"
)

// bodyCmd is what a simulated process runs. It is started by the server,
// never by hand.
type bodyCmd struct{}

func (c *bodyCmd) register() *cobra.Command {
	return &cobra.Command{
		Use:    "body",
		Hidden: true,
		Args:   cobra.NoArgs,
	}
}

func (c *bodyCmd) run(ctx context.Context, args []string) error {
	cfg, err := sim.BodyConfigFromEnv()
	if err != nil {
		return err
	}

	control := sim.ControlFile()
	defer control.Close()

	return sim.RunBody(ctx, cfg, control, logging.NewBody())
}
