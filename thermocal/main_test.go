package main

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/config"
)

func TestParseSteps(t *testing.T) {
	steps, err := parseSteps("20:1, 45.5:2;60:0")
	require.NoError(t, err)
	assert.Equal(t, []calibration.Step{
		{TargetValue: 20, DwellMinutes: 1},
		{TargetValue: 45.5, DwellMinutes: 2},
		{TargetValue: 60, DwellMinutes: 0},
	}, steps)

	assert.Equal(t, "20:1, 45.5:2, 60:0", formatSteps(steps))
}

func TestParseSteps_Errors(t *testing.T) {
	_, err := parseSteps("")
	assert.ErrorIs(t, err, calibration.ErrNoSteps)

	_, err = parseSteps("20")
	assert.ErrorContains(t, err, "expected target:minutes")

	_, err = parseSteps("abc:1")
	assert.ErrorContains(t, err, "invalid target")

	_, err = parseSteps("20:-1")
	assert.ErrorContains(t, err, "invalid dwell minutes")
}

func TestParseUSBID(t *testing.T) {
	vid, pid, err := parseUSBID("0403:6001 /dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0403), vid)
	assert.Equal(t, uint16(0x6001), pid)

	_, _, err = parseUSBID("/dev/ttyUSB0")
	assert.Error(t, err)
}

func TestFormatSnapshot(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	line := formatSnapshot(calibration.Snapshot{
		ReferenceTemperature: 20.5,
		ReferenceUnit:        calibration.ReferenceUnit,
		SensorTemperatures:   []float32{293.15, 293.35},
		SensorUnit:           calibration.SensorUnit,
		InvalidSamples:       1,
		IsStable:             true,
		StepIndex:            1,
		TotalSteps:           2,
		ElapsedDwellSeconds:  10,
		TotalDwellSeconds:    60,
		Phase:                calibration.PhaseDwell,
	})
	assert.Contains(t, line, "step 1/2 DWELL bath 20.50°C stable | MU 2 samples mean 20.10°C (1 invalid) | dwell 10/60s")

	line = formatSnapshot(calibration.Snapshot{
		ReferenceTemperature: 22,
		ReferenceUnit:        calibration.ReferenceUnit,
		SensorTemperatures:   []float32{},
		StepIndex:            1,
		TotalSteps:           1,
		Phase:                calibration.PhaseRamp,
	})
	assert.Contains(t, line, "step 1/1 RAMPA bath 22.00°C | MU no data | dwell 0/0s")
}

func TestNewDevices_Mock(t *testing.T) {
	cfg := config.Default()
	cfg.Sensor.HandshakeDelay = 0
	cfg.Bath.SettleDelay = 0

	openBath, sensors := newDevices(cfg, true)
	defer sensors.Close()

	require.NoError(t, sensors.Init())
	assert.Equal(t, cfg.Mock.SensorUID, sensors.UID())

	b, err := openBath()
	require.NoError(t, err)
	require.NoError(t, b.SetSetpoint(30))
	temp, err := b.ReadTemperature()
	require.NoError(t, err)
	assert.InDelta(t, cfg.Mock.AmbientC, temp, 0.5)
	require.NoError(t, b.Close())

	// Every run gets a fresh simulated bath
	b, err = openBath()
	require.NoError(t, err)
	_, err = b.ReadTemperature()
	assert.NoError(t, err)
	require.NoError(t, b.Close())
}
