package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/config"
	"github.com/itohio/thermocal/pkg/link"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createBathTab(state),
		createSensorTab(state),
		createThermistorTab(state),
		createRunTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

func saveConfig(state *appState) {
	if err := state.cfg.Save(configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

// usbPortOptions lists USB serial ports as "VID:PID name" entries.
func usbPortOptions() []string {
	ports, err := link.Ports()
	if err != nil {
		return nil
	}
	options := []string{}
	for _, p := range ports {
		if p.IsUSB {
			options = append(options, fmt.Sprintf("%s:%s %s", p.VID, p.PID, p.Name))
		}
	}
	return options
}

// parseUSBID parses the "VID:PID" prefix of an option from usbPortOptions.
func parseUSBID(s string) (vid, pid uint16, err error) {
	var v, p uint64
	if len(s) < 9 || s[4] != ':' {
		return 0, 0, fmt.Errorf("invalid USB id %q", s)
	}
	if v, err = strconv.ParseUint(s[:4], 16, 16); err != nil {
		return 0, 0, err
	}
	if p, err = strconv.ParseUint(s[5:9], 16, 16); err != nil {
		return 0, 0, err
	}
	return uint16(v), uint16(p), nil
}

func createUSBSelect(vid, pid uint16) *widget.SelectEntry {
	sel := widget.NewSelectEntry(usbPortOptions())
	sel.SetText(fmt.Sprintf("%04x:%04x", vid, pid))
	return sel
}

func durationEntry(d time.Duration) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(d.String())
	return e
}

// createBathTab creates the Bath configuration tab.
func createBathTab(state *appState) *container.TabItem {
	cfg := &state.cfg.Bath

	portSelect := createUSBSelect(cfg.VendorID, cfg.ProductID)
	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(cfg.BaudRate))
	settleEntry := durationEntry(cfg.SettleDelay)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "USB device (VID:PID)", Widget: portSelect},
			{Text: "Baud rate", Widget: baudEntry},
			{Text: "Settle delay", Widget: settleEntry},
		},
		OnSubmit: func() {
			if vid, pid, err := parseUSBID(portSelect.Text); err == nil {
				cfg.VendorID, cfg.ProductID = vid, pid
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				cfg.BaudRate = baud
			}
			if d, err := time.ParseDuration(settleEntry.Text); err == nil {
				cfg.SettleDelay = d
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Bath", form)
}

// createSensorTab creates the MU configuration tab.
func createSensorTab(state *appState) *container.TabItem {
	cfg := &state.cfg.Sensor

	portSelect := createUSBSelect(cfg.VendorID, cfg.ProductID)
	sensorIDEntry := widget.NewEntry()
	sensorIDEntry.SetText(strconv.Itoa(int(cfg.SensorID)))
	freqEntry := widget.NewEntry()
	freqEntry.SetText(strconv.Itoa(int(cfg.FrequencyHz)))
	packetEntry := widget.NewEntry()
	packetEntry.SetText(strconv.Itoa(int(cfg.PacketSize)))
	pollEntry := durationEntry(cfg.PollInterval)
	queueEntry := widget.NewEntry()
	queueEntry.SetText(strconv.Itoa(cfg.QueueLimit))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "USB device (VID:PID)", Widget: portSelect},
			{Text: "Sensor ID", Widget: sensorIDEntry},
			{Text: "Frequency (Hz)", Widget: freqEntry},
			{Text: "Packet size", Widget: packetEntry},
			{Text: "Poll interval", Widget: pollEntry},
			{Text: "Queue limit (0 = unbounded)", Widget: queueEntry},
		},
		OnSubmit: func() {
			if vid, pid, err := parseUSBID(portSelect.Text); err == nil {
				cfg.VendorID, cfg.ProductID = vid, pid
			}
			if v, err := strconv.ParseUint(sensorIDEntry.Text, 10, 8); err == nil {
				cfg.SensorID = uint8(v)
			}
			if v, err := strconv.ParseUint(freqEntry.Text, 10, 16); err == nil {
				cfg.FrequencyHz = uint16(v)
			}
			if v, err := strconv.ParseUint(packetEntry.Text, 10, 8); err == nil {
				cfg.PacketSize = uint8(v)
			}
			if d, err := time.ParseDuration(pollEntry.Text); err == nil && d > 0 {
				cfg.PollInterval = d
			}
			if v, err := strconv.Atoi(queueEntry.Text); err == nil && v >= 0 {
				cfg.QueueLimit = v
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("MU", form)
}

// createThermistorTab creates the thermistor coefficients tab.
// The decoder is built at startup, so changes apply after a restart.
func createThermistorTab(state *appState) *container.TabItem {
	cfg := &state.cfg.Thermistor

	numEntry := widget.NewEntry()
	numEntry.SetText(strconv.FormatFloat(cfg.Numerator, 'f', -1, 64))
	betaEntry := widget.NewEntry()
	betaEntry.SetText(strconv.FormatFloat(cfg.Beta, 'f', -1, 64))
	t0Entry := widget.NewEntry()
	t0Entry.SetText(strconv.FormatFloat(cfg.T0, 'f', -1, 64))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Numerator", Widget: numEntry},
			{Text: "Beta (K)", Widget: betaEntry},
			{Text: "T0 (K)", Widget: t0Entry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(numEntry.Text, 64); err == nil {
				cfg.Numerator = v
			}
			if v, err := strconv.ParseFloat(betaEntry.Text, 64); err == nil && v != 0 {
				cfg.Beta = v
			}
			if v, err := strconv.ParseFloat(t0Entry.Text, 64); err == nil && v > 0 {
				cfg.T0 = v
			}
			saveConfig(state)
			dialog.ShowInformation("Thermistor", "New coefficients apply after restart.", state.window)
		},
	}

	return container.NewTabItem("Thermistor", form)
}

// createRunTab creates the run timing and default steps tab.
func createRunTab(state *appState) *container.TabItem {
	cfg := &state.cfg.Run

	tickEntry := durationEntry(cfg.TickInterval)
	stepsEntry := widget.NewEntry()
	stepsEntry.SetText(formatSteps(calibration.StepsFromConfig(cfg.Steps)))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Tick interval", Widget: tickEntry},
			{Text: "Default steps", Widget: stepsEntry},
		},
		OnSubmit: func() {
			if d, err := time.ParseDuration(tickEntry.Text); err == nil && d > 0 {
				cfg.TickInterval = d
			}
			steps, err := parseSteps(stepsEntry.Text)
			if err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			cfg.Steps = stepConfigs(steps)
			state.stepsEntry.SetText(formatSteps(steps))
			saveConfig(state)
		},
	}

	return container.NewTabItem("Run", form)
}

// createMockTab creates the simulated devices tab.
func createMockTab(state *appState) *container.TabItem {
	cfg := &state.cfg.Mock

	ambientEntry := widget.NewEntry()
	ambientEntry.SetText(strconv.FormatFloat(cfg.AmbientC, 'f', -1, 64))
	tauEntry := durationEntry(cfg.TimeConstant)
	bandEntry := widget.NewEntry()
	bandEntry.SetText(strconv.FormatFloat(cfg.StableBand, 'f', -1, 64))
	afterEntry := durationEntry(cfg.StableAfter)
	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(strconv.FormatFloat(cfg.NoiseLevel, 'f', -1, 64))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Ambient (°C)", Widget: ambientEntry},
			{Text: "Time constant", Widget: tauEntry},
			{Text: "Stable band (°C)", Widget: bandEntry},
			{Text: "Stable after", Widget: afterEntry},
			{Text: "Noise level (°C)", Widget: noiseEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(ambientEntry.Text, 64); err == nil {
				cfg.AmbientC = v
			}
			if d, err := time.ParseDuration(tauEntry.Text); err == nil && d > 0 {
				cfg.TimeConstant = d
			}
			if v, err := strconv.ParseFloat(bandEntry.Text, 64); err == nil && v > 0 {
				cfg.StableBand = v
			}
			if d, err := time.ParseDuration(afterEntry.Text); err == nil && d >= 0 {
				cfg.StableAfter = d
			}
			if v, err := strconv.ParseFloat(noiseEntry.Text, 64); err == nil && v >= 0 {
				cfg.NoiseLevel = v
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Mock", form)
}

func stepConfigs(steps []calibration.Step) []config.StepConfig {
	out := make([]config.StepConfig, len(steps))
	for i, s := range steps {
		out[i] = config.StepConfig{Target: s.TargetValue, DwellMinutes: s.DwellMinutes}
	}
	return out
}
