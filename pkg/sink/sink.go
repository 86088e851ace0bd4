// Package sink publishes calibration snapshots to logs, files and brokers.
package sink

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/config"
)

var (
	// ErrQueueFull is returned by Async.Publish when its backlog is full.
	ErrQueueFull = errors.New("sink queue full")
	// ErrClosed is returned when publishing to a closed sink.
	ErrClosed = errors.New("sink closed")
)

// Sink consumes snapshots.
type Sink interface {
	Publish(s calibration.Snapshot) error
	Close() error
}

// Fanout publishes every snapshot to all of its sinks.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a fanout over sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish delivers s to every sink, even when some fail.
func (f *Fanout) Publish(s calibration.Snapshot) error {
	var errs []error
	for _, sk := range f.sinks {
		if err := sk.Publish(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handle is a Runner.OnSnapshot callback. Failures are logged only.
func (f *Fanout) Handle(s calibration.Snapshot) {
	if err := f.Publish(s); err != nil {
		logrus.WithError(err).WithField("run_id", s.RunID).Warn("Failed to publish snapshot")
	}
}

// Close closes every sink.
func (f *Fanout) Close() error {
	var errs []error
	for _, sk := range f.sinks {
		if err := sk.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async decouples a slow sink from the control loop. Snapshots that do not
// fit in the backlog are dropped.
type Async struct {
	sink  Sink
	queue chan calibration.Snapshot
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewAsync starts a goroutine that forwards snapshots to s.
func NewAsync(s Sink, size int) *Async {
	if size <= 0 {
		size = 64
	}
	a := &Async{
		sink:  s,
		queue: make(chan calibration.Snapshot, size),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for s := range a.queue {
		if err := a.sink.Publish(s); err != nil {
			logrus.WithError(err).WithField("run_id", s.RunID).Warn("Failed to publish snapshot")
		}
	}
}

// Publish enqueues s without blocking.
func (a *Async) Publish(s calibration.Snapshot) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- s:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns the number of snapshots rejected so far.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close flushes the backlog and closes the wrapped sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.sink.Close()
}

// FromConfig builds the sinks enabled in cfg. Broker sinks are wrapped in
// Async. On error every sink built so far is closed.
func FromConfig(cfg config.SinksConfig) (*Fanout, error) {
	var sinks []Sink
	fail := func(err error) (*Fanout, error) {
		NewFanout(sinks...).Close()
		return nil, err
	}

	if cfg.Log {
		sinks = append(sinks, NewLog(logrus.StandardLogger()))
	}
	if cfg.File.Path != "" {
		f, err := NewFile(cfg.File.Path)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, f)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := NewKafka(cfg.Kafka)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, NewAsync(k, 0))
	}
	if cfg.MQTT.Broker != "" {
		m, err := NewMQTT(cfg.MQTT)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, NewAsync(m, 0))
	}
	return NewFanout(sinks...), nil
}
