package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/config"
)

func snapshot(step int) calibration.Snapshot {
	return calibration.Snapshot{
		RunID:                "run-1",
		Timestamp:            1_700_000_000_000 + int64(step),
		ReferenceTemperature: 59.5,
		ReferenceUnit:        calibration.ReferenceUnit,
		SensorTemperatures:   []float32{300.1, 300.2},
		SensorUnit:           calibration.SensorUnit,
		StepIndex:            step,
		TotalSteps:           3,
		TotalDwellSeconds:    60,
		Phase:                calibration.PhaseRamp,
	}
}

type memSink struct {
	mu     sync.Mutex
	got    []calibration.Snapshot
	err    error
	closed bool
	block  chan struct{}
}

func (m *memSink) Publish(s calibration.Snapshot) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, s)
	return m.err
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memSink) snapshots() []calibration.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]calibration.Snapshot(nil), m.got...)
}

func TestFanout(t *testing.T) {
	boom := errors.New("boom")
	a := &memSink{err: boom}
	b := &memSink{}
	f := NewFanout(a, b)

	err := f.Publish(snapshot(1))
	assert.True(t, errors.Is(err, boom))
	assert.Len(t, a.snapshots(), 1)
	assert.Len(t, b.snapshots(), 1, "a failing sink does not block the others")

	assert.NotPanics(t, func() { f.Handle(snapshot(2)) })
	assert.Len(t, b.snapshots(), 2)

	require.NoError(t, f.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Equal(t, 2, f.Len())
}

func TestAsync_FlushesOnClose(t *testing.T) {
	m := &memSink{}
	a := NewAsync(m, 8)

	for i := 1; i <= 5; i++ {
		require.NoError(t, a.Publish(snapshot(i)))
	}
	require.NoError(t, a.Close())

	got := m.snapshots()
	require.Len(t, got, 5)
	for i, s := range got {
		assert.Equal(t, i+1, s.StepIndex)
	}
	assert.True(t, m.closed)
	assert.True(t, errors.Is(a.Publish(snapshot(6)), ErrClosed))
	assert.NoError(t, a.Close())
}

func TestAsync_DropsWhenFull(t *testing.T) {
	m := &memSink{block: make(chan struct{})}
	a := NewAsync(m, 1)

	// The first snapshot is taken by the worker, which then blocks.
	require.NoError(t, a.Publish(snapshot(1)))
	require.Eventually(t, func() bool { return len(a.queue) == 0 }, time.Second, time.Millisecond)

	require.NoError(t, a.Publish(snapshot(2)))
	assert.True(t, errors.Is(a.Publish(snapshot(3)), ErrQueueFull))
	assert.Equal(t, uint64(1), a.Dropped())

	close(m.block)
	require.NoError(t, a.Close())
	assert.Len(t, m.snapshots(), 2)
}

func TestLog(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	l := NewLog(logger)

	require.NoError(t, l.Publish(snapshot(2)))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "Snapshot", entry.Message)
	assert.Equal(t, "run-1", entry.Data["run_id"])
	assert.Equal(t, 2, entry.Data["step"])
	assert.Equal(t, 2, entry.Data["samples"])
	assert.NoError(t, l.Close())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.jsonl")

	f, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Publish(snapshot(1)))
	require.NoError(t, f.Publish(snapshot(2)))
	require.NoError(t, f.Close())
	assert.True(t, errors.Is(f.Publish(snapshot(3)), ErrClosed))

	// Reopening appends.
	f, err = NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Publish(snapshot(3)))
	require.NoError(t, f.Close())

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	var steps []int
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		var s calibration.Snapshot
		require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
		steps = append(steps, s.StepIndex)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []int{1, 2, 3}, steps)
}

func TestFile_BadPath(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "missing", "x.jsonl"))
	assert.Error(t, err)
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeKafkaWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafka(t *testing.T) {
	w := &fakeKafkaWriter{}
	k := newKafkaWithWriter(w, "thermocal.snapshots")

	s := snapshot(1)
	require.NoError(t, k.Publish(s))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("run-1"), w.msgs[0].Key)
	assert.Equal(t, s.Time(), w.msgs[0].Time)

	var got calibration.Snapshot
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, s, got)

	w.err = errors.New("broker down")
	err := k.Publish(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thermocal.snapshots")

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestNewKafka_Validation(t *testing.T) {
	_, err := NewKafka(config.KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafka(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	k, err := NewKafka(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.NoError(t, k.Close())
}

type fakeToken struct {
	err      error
	timesOut bool
}

func (t *fakeToken) Wait() bool                     { return !t.timesOut }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timesOut }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishCall struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	calls        []publishCall
	token        *fakeToken
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.calls = append(c.calls, publishCall{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeMQTT) Disconnect(uint) { c.disconnected = true }

func TestMQTT(t *testing.T) {
	c := &fakeMQTT{token: &fakeToken{}}
	m := newMQTTWithClient(c, "thermocal/snapshots", 1)

	require.NoError(t, m.Publish(snapshot(1)))
	require.Len(t, c.calls, 1)
	assert.Equal(t, "thermocal/snapshots", c.calls[0].topic)
	assert.Equal(t, byte(1), c.calls[0].qos)
	assert.Contains(t, string(c.calls[0].payload), `"phase":"RAMPA"`)

	c.token = &fakeToken{timesOut: true}
	assert.ErrorContains(t, m.Publish(snapshot(2)), "timed out")

	c.token = &fakeToken{err: errors.New("not connected")}
	assert.ErrorContains(t, m.Publish(snapshot(3)), "not connected")

	require.NoError(t, m.Close())
	assert.True(t, c.disconnected)
}

func TestFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	f, err := FromConfig(config.SinksConfig{Log: true, File: config.FileConfig{Path: path}})
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	require.NoError(t, f.Publish(snapshot(1)))
	require.NoError(t, f.Close())

	f, err = FromConfig(config.SinksConfig{})
	require.NoError(t, err)
	assert.Zero(t, f.Len())

	_, err = FromConfig(config.SinksConfig{File: config.FileConfig{Path: filepath.Join(t.TempDir(), "no", "dir")}})
	assert.Error(t, err)
}
