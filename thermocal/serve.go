package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/thermocal/pkg/api"
	"github.com/itohio/thermocal/pkg/metrics"
	"github.com/itohio/thermocal/pkg/sink"
)

func NewServeCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control API",
		Long:  "Serve the HTTP control API. Runs are started with POST /runs and stopped with POST /runs/stop.",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.Listen = listen
			}

			m := metrics.New()
			runner, sensors := newRunner(cfg, useMock, m)

			sinks, err := sink.FromConfig(cfg.Sinks)
			if err != nil {
				return err
			}
			runner.OnSnapshot(sinks.Handle)
			logrus.WithField("sinks", sinks.Len()).Info("snapshot sinks ready")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = api.New(runner, m).Serve(ctx, cfg.API.Listen)

			logrus.Info("stopping active run")
			runner.Stop()
			<-runner.Done()

			if err := sinks.Close(); err != nil {
				logrus.WithError(err).Error("failed to close sinks")
			}
			if err := sensors.Close(); err != nil {
				logrus.WithError(err).Error("failed to close MU link")
			}
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides api.listen")

	return cmd
}
