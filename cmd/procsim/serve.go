package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"procsim/internal/api"
	"procsim/internal/config"
	"procsim/internal/logging"
	"procsim/internal/metrics"
	"procsim/internal/sampler"
	"procsim/internal/service"
	"procsim/internal/sim"
	"procsim/web"
)

const shutdownTimeout = 30 * time.Second

type serveCmd struct {
	address string
}

func (c *serveCmd) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and the process poller",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&c.address, "address", "", "Listen address, overrides the config file")
	return cmd
}

func (c *serveCmd) run(ctx context.Context, args []string) error {
	cfg, cfgErr := config.LoadConfig(configPath)
	if cfgErr != nil {
		cfg = config.Default()
	}
	if c.address != "" {
		cfg.Server.Address = c.address
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfgErr != nil {
		log.Warn("could not load config, starting with defaults and no presets",
			zap.String("path", configPath), zap.Error(cfgErr))
	}

	launcher, err := sim.NewExecLauncher(log.Named("child"))
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	m := metrics.New()
	pm := service.NewProcessManager(cfg.Simulation, service.Deps{
		Launcher: launcher,
		Sampler:  sampler.NewProcessSampler(),
		Clock:    clock,
		Metrics:  m,
		Log:      log,
	})

	router, err := api.NewRouter(pm, web.Templates(), web.Static(), api.Options{
		Host:         sampler.NewHostSampler(clock),
		SystemInfo:   sampler.SystemInfo,
		Metrics:      m,
		PollInterval: cfg.Simulation.PollInterval,
		Log:          log,
	})
	if err != nil {
		return errors.Wrap(err, "creating router")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pm.StartAll(cfg.Processes)
	defer pm.StopAll()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting procsim",
			zap.String("address", cfg.Server.Address),
			zap.Int("presets", len(cfg.Processes)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "serving http")
		}
		return nil
	})
	g.Go(func() error {
		return pm.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
