package main

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/config"
	"github.com/itohio/thermocal/pkg/sample"
	"github.com/itohio/thermocal/pkg/scope"
	"github.com/itohio/thermocal/pkg/sensor"
	"github.com/itohio/thermocal/pkg/sink"
)

func NewGUICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Open the calibration window",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sinks, err := sink.FromConfig(cfg.Sinks)
			if err != nil {
				return err
			}
			runGUI(cfg, sinks)
			return nil
		},
	}
}

// appState holds the application state.
type appState struct {
	cfg     *config.Config
	runner  *calibration.Runner
	sensors *sensor.Handle
	history *sample.History

	window      fyne.Window
	scopeWidget *scope.ScopeWidget
	startBtn    *widget.Button
	stopBtn     *widget.Button
	settingsBtn *widget.Button
	stepsEntry  *widget.Entry
	phaseLabel  *widget.Label
	uidLabel    *widget.Label
	progress    *widget.ProgressBar

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

func runGUI(cfg *config.Config, sinks *sink.Fanout) {
	runner, sensors := newRunner(cfg, useMock, nil)

	application := app.NewWithID("com.itohio.thermocal")

	window := application.NewWindow("Thermal Calibration")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:         cfg,
		runner:      runner,
		sensors:     sensors,
		history:     sample.NewHistory(0),
		window:      window,
		scopeWidget: scope.New(time.Minute),
	}

	runner.OnSnapshot(state.onSnapshot)
	runner.OnSnapshot(sinks.Handle)

	window.SetContent(container.NewBorder(
		createToolbar(state),
		createStatusBar(state),
		nil,
		nil,
		state.scopeWidget,
	))
	window.ShowAndRun()

	runner.Stop()
	<-runner.Done()
	if err := sinks.Close(); err != nil {
		logrus.WithError(err).Error("failed to close sinks")
	}
	if err := sensors.Close(); err != nil {
		logrus.WithError(err).Error("failed to close MU link")
	}
}

// createToolbar creates the toolbar with Start, Stop and Settings buttons and the step list.
func createToolbar(state *appState) fyne.CanvasObject {
	state.startBtn = widget.NewButtonWithIcon("", theme.MediaPlayIcon(), func() {
		handleStart(state)
	})

	state.stopBtn = widget.NewButtonWithIcon("", theme.MediaStopIcon(), func() {
		state.runner.Stop()
	})
	state.stopBtn.Disable()

	state.settingsBtn = widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.stepsEntry = widget.NewEntry()
	state.stepsEntry.SetPlaceHolder("target:minutes, ...")
	state.stepsEntry.SetText(formatSteps(calibration.StepsFromConfig(state.cfg.Run.Steps)))

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(state.startBtn, state.stopBtn, state.settingsBtn),
		nil,
		state.stepsEntry,
	)
}

func createStatusBar(state *appState) fyne.CanvasObject {
	state.phaseLabel = widget.NewLabel("Idle")
	state.uidLabel = widget.NewLabel("")
	state.progress = widget.NewProgressBar()

	return container.NewBorder(
		nil,
		nil,
		state.phaseLabel,
		state.uidLabel,
		state.progress,
	)
}

// handleStart starts a run with the steps typed into the toolbar.
func handleStart(state *appState) {
	steps, err := parseSteps(state.stepsEntry.Text)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}

	state.history.Reset()
	id, err := state.runner.Start(steps)
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to start calibration: %w", err), state.window)
		return
	}
	done := state.runner.Done()
	logrus.WithField("run_id", id).Info("Calibration started from GUI")

	state.startBtn.Disable()
	state.settingsBtn.Disable()
	state.stepsEntry.Disable()
	state.stopBtn.Enable()
	state.phaseLabel.SetText("Starting")
	state.uidLabel.SetText(fmt.Sprintf("MU %08X", state.sensors.UID()))
	state.progress.SetValue(0)

	go func() {
		<-done
		fyne.Do(func() { handleFinished(state) })
	}()
}

func handleFinished(state *appState) {
	st := state.runner.Status()
	state.phaseLabel.SetText(fmt.Sprintf("Finished: %s", st.Outcome))
	state.startBtn.Enable()
	state.settingsBtn.Enable()
	state.stepsEntry.Enable()
	state.stopBtn.Disable()
}

// onSnapshot runs on the control goroutine; widgets are updated through fyne.Do.
func (state *appState) onSnapshot(s calibration.Snapshot) {
	state.history.Add(sample.FromSnapshot(s))

	const updateInterval = 100 * time.Millisecond
	state.updateMu.Lock()
	now := time.Now()
	if now.Sub(state.lastUpdateTime) < updateInterval {
		state.updateMu.Unlock()
		return
	}
	state.lastUpdateTime = now
	state.updateMu.Unlock()

	points := state.history.Points()
	fyne.Do(func() {
		state.scopeWidget.UpdateData(points)
		state.phaseLabel.SetText(fmt.Sprintf("Step %d/%d %s", s.StepIndex, s.TotalSteps, s.Phase))
		if s.TotalDwellSeconds > 0 {
			state.progress.SetValue(float64(s.ElapsedDwellSeconds) / float64(s.TotalDwellSeconds))
		} else {
			state.progress.SetValue(0)
		}
	})
}
