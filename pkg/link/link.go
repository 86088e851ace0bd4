package link

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultReadTimeout bounds every blocking read on a link.
	DefaultReadTimeout = time.Second
	// readChunk is the size of a single non-blocking read.
	readChunk = 512
)

var (
	// ErrDeviceNotFound is returned when no serial device matches the vendor/product id.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrHardware is returned when opening, writing or flushing a port fails.
	ErrHardware = errors.New("hardware error")
	// ErrTimeout is returned when a read produced no (or not enough) data within the read timeout.
	ErrTimeout = errors.New("read timeout")
)

// Port is the subset of serial.Port used by a Link.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	Drain() error
	SetReadTimeout(t time.Duration) error
}

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Test seams for port discovery and opening.
var (
	listPorts = enumerator.GetDetailedPortsList
	openPort  = func(name string, mode *serial.Mode) (Port, error) {
		return serial.Open(name, mode)
	}
)

// Link is raw byte-level access to one serial-connected device.
// A Link is not safe for concurrent use.
type Link struct {
	name    string
	port    Port
	timeout time.Duration
}

// Ports returns the detailed list of serial ports available on the system.
func Ports() ([]PortInfo, error) {
	details, err := listPorts()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list serial ports")
	}

	result := make([]PortInfo, 0, len(details))
	for _, d := range details {
		result = append(result, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return result, nil
}

// Open finds the first USB serial device matching vid/pid and opens it at baud
// with the default read timeout.
func Open(vid, pid uint16, baud int) (*Link, error) {
	details, err := listPorts()
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrHardware, "list serial ports: %v", err)
	}

	for _, d := range details {
		if !d.IsUSB || !matchID(d.VID, vid) || !matchID(d.PID, pid) {
			continue
		}

		logrus.WithFields(logrus.Fields{
			"port": d.Name,
			"vid":  fmt.Sprintf("%04x", vid),
			"pid":  fmt.Sprintf("%04x", pid),
			"baud": baud,
		}).Debug("opening serial device")

		port, err := openPort(d.Name, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, pkgerrors.Wrapf(ErrHardware, "open %s: %v", d.Name, err)
		}
		return New(d.Name, port)
	}

	return nil, pkgerrors.Wrapf(ErrDeviceNotFound, "VID %04x PID %04x", vid, pid)
}

// New wraps an already opened port and applies the default read timeout.
func New(name string, port Port) (*Link, error) {
	l := &Link{
		name:    name,
		port:    port,
		timeout: DefaultReadTimeout,
	}
	if err := port.SetReadTimeout(l.timeout); err != nil {
		port.Close()
		return nil, pkgerrors.Wrapf(ErrHardware, "set read timeout on %s: %v", name, err)
	}
	return l, nil
}

// Name returns the system name of the underlying port.
func (l *Link) Name() string {
	return l.name
}

// WriteAll writes every byte of b to the port.
func (l *Link) WriteAll(b []byte) error {
	for len(b) > 0 {
		n, err := l.port.Write(b)
		if err != nil {
			return pkgerrors.Wrapf(ErrHardware, "write %s: %v", l.name, err)
		}
		if n == 0 {
			return pkgerrors.Wrapf(ErrHardware, "write %s: zero bytes written", l.name)
		}
		b = b[n:]
	}
	return nil
}

// ReadLine reads until a '\n' is seen or the read timeout elapses. Data read
// before a timeout is returned as is; a timeout with no data is ErrTimeout.
func (l *Link) ReadLine() (string, error) {
	var line strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := l.port.Read(buf)
		if err != nil {
			return line.String(), pkgerrors.Wrapf(ErrHardware, "read %s: %v", l.name, err)
		}
		if n == 0 {
			if line.Len() == 0 {
				return "", ErrTimeout
			}
			return line.String(), nil
		}
		if buf[0] == '\n' {
			return line.String(), nil
		}
		line.WriteByte(buf[0])
	}
}

// ReadExact reads exactly n bytes. A short read at timeout yields ErrTimeout
// together with the bytes that did arrive.
func (l *Link) ReadExact(n int) ([]byte, error) {
	out := make([]byte, n)
	got := 0
	for got < n {
		m, err := l.port.Read(out[got:])
		if err != nil {
			return out[:got], pkgerrors.Wrapf(ErrHardware, "read %s: %v", l.name, err)
		}
		if m == 0 {
			return out[:got], pkgerrors.Wrapf(ErrTimeout, "got %d of %d bytes", got, n)
		}
		got += m
	}
	return out, nil
}

// ReadAvailable returns whatever is currently buffered without waiting.
// A failure to restore the blocking timeout is reported as ErrHardware
// together with the data read.
func (l *Link) ReadAvailable() (out []byte, err error) {
	if err := l.port.SetReadTimeout(0); err != nil {
		return nil, pkgerrors.Wrapf(ErrHardware, "set read timeout on %s: %v", l.name, err)
	}
	defer func() {
		if rerr := l.port.SetReadTimeout(l.timeout); rerr != nil && err == nil {
			err = pkgerrors.Wrapf(ErrHardware, "restore read timeout on %s: %v", l.name, rerr)
		}
	}()

	buf := make([]byte, readChunk)
	for {
		n, err := l.port.Read(buf)
		if err != nil {
			return out, pkgerrors.Wrapf(ErrHardware, "read %s: %v", l.name, err)
		}
		out = append(out, buf[:n]...)
		if n < len(buf) {
			return out, nil
		}
	}
}

// ClearInputBuffer discards unread input.
func (l *Link) ClearInputBuffer() error {
	if err := l.port.ResetInputBuffer(); err != nil {
		return pkgerrors.Wrapf(ErrHardware, "reset input %s: %v", l.name, err)
	}
	return nil
}

// Flush waits until all written bytes are transmitted.
func (l *Link) Flush() error {
	if err := l.port.Drain(); err != nil {
		return pkgerrors.Wrapf(ErrHardware, "drain %s: %v", l.name, err)
	}
	return nil
}

// Close closes the underlying port.
func (l *Link) Close() error {
	return l.port.Close()
}

// matchID compares an enumerator hex id string against a numeric id.
func matchID(s string, id uint16) bool {
	return strings.EqualFold(strings.TrimPrefix(strings.ToLower(s), "0x"), fmt.Sprintf("%04x", id))
}
