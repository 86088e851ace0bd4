package calibration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/thermocal/pkg/config"
	"github.com/itohio/thermocal/pkg/metrics"
	"github.com/itohio/thermocal/pkg/sensor"
	"github.com/itohio/thermocal/pkg/thermistor"
)

// Bath is the reference instrument as seen by the control loop.
// *bath.Controller implements it.
type Bath interface {
	SetSetpoint(celsius float32) error
	EnableHeating() error
	DisableHeating() error
	ReadTemperature() (float32, error)
	IsStable() (bool, error)
	Close() error
}

// BathOpener opens a fresh bath for every run.
type BathOpener func() (Bath, error)

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock used by the control loop.
func WithClock(c Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithMetrics records run telemetry into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner executes calibration runs, one at a time. The bath is opened per
// run and owned by the control goroutine; the sensor handle is shared
// across runs and held by the acquisition goroutine for a run's duration.
type Runner struct {
	openBath BathOpener
	sensors  *sensor.Handle
	cfg      *config.Config
	decoder  thermistor.Decoder
	clock    Clock
	metrics  *metrics.Metrics

	running atomic.Bool

	mu          sync.Mutex // guards current, setupCancel, status and latest
	current     *run
	setupCancel context.CancelFunc
	status  Status
	latest  *Snapshot

	callbacks []func(Snapshot)
	cbMu      sync.RWMutex
}

type run struct {
	id      string
	steps   []Step
	bath    Bath
	link    *sensor.Link
	release func()
	queue   *chunkQueue
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	acq    sync.WaitGroup
	done   chan struct{}
}

// NewRunner creates an idle runner.
func NewRunner(openBath BathOpener, sensors *sensor.Handle, cfg *config.Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Runner{
		openBath: openBath,
		sensors:  sensors,
		cfg:      cfg,
		decoder:  thermistor.NewDecoder(cfg.Thermistor.Numerator, cfg.Thermistor.Beta, cfg.Thermistor.T0),
		clock:    realClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StepsFromConfig converts configured steps into run steps.
func StepsFromConfig(steps []config.StepConfig) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = Step{TargetValue: s.Target, DwellMinutes: s.DwellMinutes}
	}
	return out
}

// Start validates the steps, prepares both devices and launches the run.
// It returns as soon as the goroutines are running. Setup failures are
// returned and leave the runner idle.
func (r *Runner) Start(steps []Step) (string, error) {
	if len(steps) == 0 {
		return "", ErrNoSteps
	}
	if !r.running.CompareAndSwap(false, true) {
		return "", ErrRunActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.setupCancel = cancel
	r.mu.Unlock()

	rn, err := r.setup(ctx, cancel, steps)

	r.mu.Lock()
	r.setupCancel = nil
	if err == nil && ctx.Err() != nil {
		r.mu.Unlock()
		rn.release()
		if cerr := rn.bath.Close(); cerr != nil {
			rn.log.WithError(cerr).Debug("Failed to close bath")
		}
		r.running.Store(false)
		return "", ErrStopped
	}
	if err != nil {
		r.mu.Unlock()
		cancel()
		r.running.Store(false)
		return "", err
	}

	now := r.clock.Now()
	r.current = rn
	r.status = Status{
		Running:    true,
		RunID:      rn.id,
		StartedAt:  &now,
		StepIndex:  1,
		TotalSteps: len(steps),
		Phase:      PhaseRamp,
		SensorUID:  r.sensors.UID(),
	}
	r.latest = nil
	r.mu.Unlock()

	r.metrics.RunStarted()
	rn.log.WithFields(logrus.Fields{
		"steps":      len(steps),
		"sensor_uid": r.sensors.UID(),
	}).Info("Calibration run started")

	rn.acq.Add(1)
	go r.acquire(rn)
	go r.control(rn)
	return rn.id, nil
}

func (r *Runner) setup(ctx context.Context, cancel context.CancelFunc, steps []Step) (*run, error) {
	if err := r.sensors.Init(); err != nil {
		return nil, pkgerrors.Wrap(err, "sensor setup failed")
	}
	l, release, err := r.sensors.Acquire()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "sensor setup failed")
	}
	b, err := r.openBath()
	if err != nil {
		release()
		return nil, pkgerrors.Wrap(err, "bath setup failed")
	}

	id := uuid.NewString()
	return &run{
		id:      id,
		steps:   append([]Step(nil), steps...),
		bath:    b,
		link:    l,
		release: release,
		queue:   newChunkQueue(r.cfg.Sensor.QueueLimit),
		log:     logrus.WithField("run_id", id),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

// Stop cancels the active run. It does not wait; use Done for that.
// Called while Start is still setting up, it makes Start fail with
// ErrStopped. Without an active run it does nothing.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.setupCancel
	if cancel == nil && r.current != nil {
		cancel = r.current.cancel
	}
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Done returns a channel closed when the active run has fully shut down.
// Without an active run the channel is already closed.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.current.done
}

// OnSnapshot registers a callback invoked from the control goroutine for
// every emitted snapshot.
func (r *Runner) OnSnapshot(fn func(Snapshot)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Latest returns the most recent snapshot of the current or last run.
func (r *Runner) Latest() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return Snapshot{}, false
	}
	return *r.latest, true
}

// Status returns the state of the current or last run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	s.Running = r.running.Load()
	return s
}

// acquire streams MU data into the run queue until the run is cancelled.
func (r *Runner) acquire(rn *run) {
	defer rn.acq.Done()
	defer rn.release()

	sc := r.cfg.Sensor
	if err := rn.link.StartStreaming(sc.SensorID, sc.FrequencyHz, sc.PacketSize); err != nil {
		rn.log.WithError(err).Error("Failed to start MU streaming, run continues without sensor data")
		r.metrics.SensorError()
		return
	}
	defer func() {
		if err := rn.link.StopStreaming(sc.MUID, sc.SensorID); err != nil {
			rn.log.WithError(err).Warn("Failed to stop MU streaming")
			return
		}
		rn.log.Debug("MU streaming stopped")
	}()

	interval := sc.PollInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rn.ctx.Done():
			return
		case <-ticker.C:
		}

		data, err := rn.link.PollAvailable()
		if err != nil {
			rn.log.WithError(err).Debug("MU read failed")
			r.metrics.SensorError()
			continue
		}
		if len(data) == 0 {
			continue
		}
		r.metrics.DroppedChunks(rn.queue.Push(data))
	}
}

// control walks the steps, ticking once per interval.
func (r *Runner) control(rn *run) {
	outcome := OutcomeCancelled
	defer func() { r.finish(rn, outcome) }()

	if err := rn.bath.EnableHeating(); err != nil {
		rn.log.WithError(err).Warn("Failed to enable heating")
		r.metrics.BathError("enable_heating")
	}

	interval := r.cfg.Run.TickInterval
	if interval <= 0 {
		interval = time.Second
	}

	for i, step := range rn.steps {
		if err := rn.bath.SetSetpoint(step.TargetValue); err != nil {
			rn.log.WithError(err).Warn("Failed to set setpoint")
			r.metrics.BathError("set_setpoint")
		}
		rn.log.WithFields(logrus.Fields{
			"step":   i + 1,
			"target": step.TargetValue,
			"dwell":  step.DwellMinutes,
		}).Info("Step started")

		st := newStepState(step)
		for {
			if rn.ctx.Err() != nil {
				return
			}
			if r.tick(rn, i, step, st) {
				break
			}
			select {
			case <-rn.ctx.Done():
				return
			case <-r.clock.After(interval):
			}
		}
		rn.log.WithField("step", i+1).Info("Step completed")
	}
	outcome = OutcomeCompleted
}

// tick performs one control iteration and reports whether the step is done.
// A completing tick emits nothing.
func (r *Runner) tick(rn *run, index int, step Step, st *stepState) bool {
	ref, err := rn.bath.ReadTemperature()
	if err != nil {
		rn.log.WithError(err).Debug("Bath temperature unavailable")
		r.metrics.BathError("read_temperature")
		ref = 0
	}
	stable, err := rn.bath.IsStable()
	if err != nil {
		rn.log.WithError(err).Debug("Bath stability unavailable")
		r.metrics.BathError("is_stable")
		stable = false
	}
	now := r.clock.Now()

	temps, invalid := r.decode(rn.queue.Drain())
	r.metrics.Samples(len(temps), invalid)

	phase, elapsed, done := st.Advance(stable, now)
	if done {
		return true
	}

	snap := Snapshot{
		RunID:                rn.id,
		Timestamp:            now.UnixMilli(),
		ReferenceTemperature: ref,
		ReferenceUnit:        ReferenceUnit,
		SensorTemperatures:   temps,
		SensorUnit:           SensorUnit,
		InvalidSamples:       invalid,
		IsStable:             stable,
		StepIndex:            index + 1,
		TotalSteps:           len(rn.steps),
		ElapsedDwellSeconds:  elapsed,
		TotalDwellSeconds:    step.DwellSeconds(),
		Phase:                phase,
	}
	r.metrics.Tick(snap.StepIndex, phase == PhaseDwell, ref)

	r.mu.Lock()
	r.latest = &snap
	r.status.StepIndex = snap.StepIndex
	r.status.Phase = phase
	r.mu.Unlock()

	r.emit(snap)
	return false
}

// decode converts raw bytes and drops non-finite samples.
func (r *Runner) decode(raw []byte) ([]float32, int) {
	out := make([]float32, 0, len(raw)/thermistor.SampleSize)
	invalid := 0
	for _, v := range r.decoder.Decode(raw) {
		if !thermistor.Valid(v) {
			invalid++
			continue
		}
		out = append(out, v)
	}
	return out, invalid
}

func (r *Runner) emit(s Snapshot) {
	r.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(s)
	}
}

// finish runs on control goroutine exit: heating off, acquisition joined,
// bath closed, runner idle.
func (r *Runner) finish(rn *run, outcome string) {
	if err := rn.bath.DisableHeating(); err != nil {
		rn.log.WithError(err).Warn("Failed to disable heating")
		r.metrics.BathError("disable_heating")
	}
	rn.cancel()
	rn.acq.Wait()
	if err := rn.bath.Close(); err != nil {
		rn.log.WithError(err).Debug("Failed to close bath")
	}

	now := r.clock.Now()
	r.mu.Lock()
	r.status.FinishedAt = &now
	r.status.Outcome = outcome
	r.mu.Unlock()

	r.metrics.RunFinished(outcome)
	rn.log.WithField("outcome", outcome).Info("Calibration run finished")

	r.running.Store(false)
	close(rn.done)
}
