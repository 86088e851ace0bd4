package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/itohio/thermocal/pkg/bath"
	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/config"
	"github.com/itohio/thermocal/pkg/metrics"
	"github.com/itohio/thermocal/pkg/sensor"
)

// newDevices returns the bath opener and the sensor handle, either backed by
// serial ports or by in-process simulators.
func newDevices(cfg *config.Config, mock bool) (calibration.BathOpener, *sensor.Handle) {
	if !mock {
		openBath := func() (calibration.Bath, error) {
			return bath.Open(cfg.Bath)
		}
		sensors := sensor.NewHandle(func() (*sensor.Link, error) {
			return sensor.Open(cfg.Sensor)
		})
		return openBath, sensors
	}

	logrus.Info("Using simulated bath and MU")
	openBath := func() (calibration.Bath, error) {
		return bath.New(bath.NewMock(&cfg.Mock), cfg.Bath.SettleDelay), nil
	}
	// The MU outlives runs, like the real device behind the handle.
	port := sensor.NewMockPort(&cfg.Mock)
	sensors := sensor.NewHandle(func() (*sensor.Link, error) {
		return sensor.New(port, cfg.Sensor.LocalID, cfg.Sensor.HandshakeDelay), nil
	})
	return openBath, sensors
}

func newRunner(cfg *config.Config, mock bool, m *metrics.Metrics) (*calibration.Runner, *sensor.Handle) {
	openBath, sensors := newDevices(cfg, mock)
	return calibration.NewRunner(openBath, sensors, cfg, calibration.WithMetrics(m)), sensors
}

// parseSteps parses "target:minutes" pairs separated by commas or spaces,
// e.g. "20:1, 45.5:2".
func parseSteps(s string) ([]calibration.Step, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})

	steps := make([]calibration.Step, 0, len(fields))
	for _, f := range fields {
		target, minutes, ok := strings.Cut(f, ":")
		if !ok {
			return nil, fmt.Errorf("invalid step %q, expected target:minutes", f)
		}
		t, err := strconv.ParseFloat(target, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid target in step %q: %v", f, err)
		}
		m, err := strconv.ParseUint(minutes, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid dwell minutes in step %q: %v", f, err)
		}
		steps = append(steps, calibration.Step{TargetValue: float32(t), DwellMinutes: uint32(m)})
	}
	if len(steps) == 0 {
		return nil, calibration.ErrNoSteps
	}
	return steps, nil
}

func formatSteps(steps []calibration.Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = strconv.FormatFloat(float64(s.TargetValue), 'f', -1, 32) + ":" + strconv.FormatUint(uint64(s.DwellMinutes), 10)
	}
	return strings.Join(parts, ", ")
}
