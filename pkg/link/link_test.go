package link

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// fakePort returns one queued chunk per Read call; an empty queue behaves like a timeout.
type fakePort struct {
	reads    [][]byte
	written  bytes.Buffer
	timeouts []time.Duration
	resets   int
	drains   int
	closed   bool
	writeErr error
	// restoreErr fails every non-zero SetReadTimeout
	restoreErr error
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		return 0, nil
	}
	n := copy(b, p.reads[0])
	if n < len(p.reads[0]) {
		p.reads[0] = p.reads[0][n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.resets++
	p.reads = nil
	return nil
}

func (p *fakePort) Drain() error {
	p.drains++
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	if t != 0 {
		return p.restoreErr
	}
	return nil
}

func withPorts(t *testing.T, details []*enumerator.PortDetails, port *fakePort) *string {
	t.Helper()
	origList, origOpen := listPorts, openPort
	t.Cleanup(func() {
		listPorts, openPort = origList, origOpen
	})

	opened := new(string)
	listPorts = func() ([]*enumerator.PortDetails, error) { return details, nil }
	openPort = func(name string, mode *serial.Mode) (Port, error) {
		*opened = name
		return port, nil
	}
	return opened
}

func TestOpen_MatchesVIDPID(t *testing.T) {
	port := &fakePort{}
	opened := withPorts(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyS0", IsUSB: false},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "10C4", PID: "EA60"},
	}, port)

	l, err := Open(0x10c4, 0xea60, 115200)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", *opened)
	assert.Equal(t, "/dev/ttyUSB1", l.Name())
	assert.Equal(t, []time.Duration{DefaultReadTimeout}, port.timeouts)
}

func TestOpen_NotFound(t *testing.T) {
	withPorts(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
	}, &fakePort{})

	_, err := Open(0x10c4, 0xea60, 115200)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestOpen_HardwareError(t *testing.T) {
	withPorts(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
	}, nil)
	openPort = func(name string, mode *serial.Mode) (Port, error) {
		return nil, errors.New("permission denied")
	}

	_, err := Open(0x0403, 0x6001, 9600)
	assert.True(t, errors.Is(err, ErrHardware))
	assert.Contains(t, err.Error(), "permission denied")
}

func TestMatchID(t *testing.T) {
	assert.True(t, matchID("0403", 0x0403))
	assert.True(t, matchID("ea60", 0xea60))
	assert.True(t, matchID("EA60", 0xea60))
	assert.True(t, matchID("0x10c4", 0x10c4))
	assert.False(t, matchID("6001", 0x6010))
	assert.False(t, matchID("", 0x0403))
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		name    string
		reads   [][]byte
		want    string
		wantErr error
	}{
		{"full line", [][]byte{[]byte("25.01\r\n")}, "25.01\r", nil},
		{"fragmented", [][]byte{[]byte("2"), []byte("5.0"), []byte("1\r\n")}, "25.01\r", nil},
		{"partial at timeout", [][]byte{[]byte("1")}, "1", nil},
		{"timeout", nil, "", ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New("fake", &fakePort{reads: tt.reads})
			require.NoError(t, err)

			got, err := l.ReadLine()
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadLine_LeavesNextLineBuffered(t *testing.T) {
	l, err := New("fake", &fakePort{reads: [][]byte{[]byte("1\r\n0\r\n")}})
	require.NoError(t, err)

	first, err := l.ReadLine()
	require.NoError(t, err)
	second, err := l.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "1\r", first)
	assert.Equal(t, "0\r", second)
}

func TestReadExact(t *testing.T) {
	l, err := New("fake", &fakePort{reads: [][]byte{{0x01, 0x02}, {0x03, 0x04, 0x05}}})
	require.NoError(t, err)

	got, err := l.ReadExact(4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got)
}

func TestReadExact_Short(t *testing.T) {
	l, err := New("fake", &fakePort{reads: [][]byte{{0x01, 0x02}}})
	require.NoError(t, err)

	got, err := l.ReadExact(4)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, []byte{0x01, 0x02}, got)
}

func TestReadAvailable(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, readChunk+3)
	port := &fakePort{reads: [][]byte{big}}
	l, err := New("fake", port)
	require.NoError(t, err)

	got, err := l.ReadAvailable()
	require.NoError(t, err)
	assert.Equal(t, big, got)

	// Non-blocking read then restore of the link timeout.
	assert.Equal(t, []time.Duration{DefaultReadTimeout, 0, DefaultReadTimeout}, port.timeouts)

	got, err = l.ReadAvailable()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadAvailable_RestoreTimeoutFails(t *testing.T) {
	port := &fakePort{reads: [][]byte{{0x01, 0x02}}}
	l, err := New("fake", port)
	require.NoError(t, err)

	port.restoreErr = errors.New("ioctl failed")
	got, err := l.ReadAvailable()
	assert.True(t, errors.Is(err, ErrHardware))
	assert.ErrorContains(t, err, "restore read timeout")
	assert.Equal(t, []byte{0x01, 0x02}, got, "data read before the failure is kept")
}

func TestWriteAll(t *testing.T) {
	port := &fakePort{}
	l, err := New("fake", port)
	require.NoError(t, err)

	require.NoError(t, l.WriteAll([]byte("OUTP:STAT 1\r")))
	assert.Equal(t, "OUTP:STAT 1\r", port.written.String())

	port.writeErr = errors.New("unplugged")
	err = l.WriteAll([]byte{0x00})
	assert.True(t, errors.Is(err, ErrHardware))
}

func TestClearAndFlush(t *testing.T) {
	port := &fakePort{reads: [][]byte{{0xFF}}}
	l, err := New("fake", port)
	require.NoError(t, err)

	require.NoError(t, l.ClearInputBuffer())
	require.NoError(t, l.Flush())
	require.NoError(t, l.Close())
	assert.Equal(t, 1, port.resets)
	assert.Equal(t, 1, port.drains)
	assert.True(t, port.closed)
	assert.Empty(t, port.reads)
}

func TestPorts(t *testing.T) {
	withPorts(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A1", Product: "FT232R"},
	}, &fakePort{})

	ports, err := Ports()
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A1", Product: "FT232R"}, ports[0])
}
