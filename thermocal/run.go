package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/sample"
	"github.com/itohio/thermocal/pkg/sink"
)

var (
	rampColor    = color.New(color.FgYellow).SprintFunc()
	dwellColor   = color.New(color.FgGreen).SprintFunc()
	invalidColor = color.New(color.FgRed).SprintFunc()
)

func NewRunCommand() *cobra.Command {
	var stepsFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a calibration in the foreground",
		Long: `Run a calibration in the foreground and print one line per tick.
Steps default to run.steps from the config file. Ctrl-C stops the run and
turns the bath heating off.`,
		Example: `thermocal run --steps "20:1, 45:2"
thermocal --mock run`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			steps := calibration.StepsFromConfig(cfg.Run.Steps)
			if stepsFlag != "" {
				if steps, err = parseSteps(stepsFlag); err != nil {
					return err
				}
			}

			// Snapshots are printed below, the log sink would duplicate them.
			cfg.Sinks.Log = false
			sinks, err := sink.FromConfig(cfg.Sinks)
			if err != nil {
				return err
			}
			defer sinks.Close()

			runner, sensors := newRunner(cfg, useMock, nil)
			defer sensors.Close()

			runner.OnSnapshot(func(s calibration.Snapshot) {
				fmt.Println(formatSnapshot(s))
			})
			runner.OnSnapshot(sinks.Handle)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			id, err := runner.Start(steps)
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"run_id": id,
				"steps":  formatSteps(steps),
			}).Info("Running calibration")

			select {
			case <-ctx.Done():
				logrus.Info("Interrupted, stopping run")
				runner.Stop()
				<-runner.Done()
			case <-runner.Done():
			}

			st := runner.Status()
			logrus.WithFields(logrus.Fields{
				"run_id":  st.RunID,
				"outcome": st.Outcome,
			}).Info("Calibration finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&stepsFlag, "steps", "", `steps as "target:minutes" pairs, e.g. "20:1, 45:2"`)

	return cmd
}

// formatSnapshot renders one snapshot as a single console line.
func formatSnapshot(s calibration.Snapshot) string {
	var b strings.Builder

	phase := string(s.Phase)
	if s.Phase == calibration.PhaseDwell {
		phase = dwellColor(phase)
	} else {
		phase = rampColor(phase)
	}

	fmt.Fprintf(&b, "%s step %d/%d %s bath %.2f°%s",
		s.Time().Format("15:04:05"), s.StepIndex, s.TotalSteps, phase,
		s.ReferenceTemperature, s.ReferenceUnit)

	if s.IsStable {
		b.WriteString(" stable")
	}

	p := sample.FromSnapshot(s)
	if p.HasSensor {
		fmt.Fprintf(&b, " | MU %d samples mean %.2f°C", len(s.SensorTemperatures), p.Sensor)
	} else {
		b.WriteString(" | MU no data")
	}
	if s.InvalidSamples > 0 {
		b.WriteString(" " + invalidColor(fmt.Sprintf("(%d invalid)", s.InvalidSamples)))
	}

	fmt.Fprintf(&b, " | dwell %d/%ds", s.ElapsedDwellSeconds, s.TotalDwellSeconds)
	return b.String()
}
