package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/thermocal/pkg/config"
)

var (
	logLevel   = "info"
	configPath = "config.yaml"
	useMock    = false
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	// fatih/color disables itself when stdout is not a terminal
	if !color.NoColor {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thermocal",
		Short: "thermocal runs thermal calibrations against a reference bath",
		Long: `thermocal drives a reference bath through a list of setpoints, waits for
each one to settle, dwells, and streams a synchronized snapshot of the bath
and the measurement unit (MU) thermistors once per tick.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.BoolVar(&useMock, "mock", false, "use simulated devices instead of serial ports")

	cmd.AddCommand(
		NewServeCommand(),
		NewRunCommand(),
		NewGUICommand(),
		NewPortsCommand(),
	)

	return cmd
}
