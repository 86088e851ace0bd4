// Package sensor speaks the binary protocol of the streaming measurement unit (MU).
package sensor

import (
	"encoding/binary"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/thermocal/pkg/config"
	"github.com/itohio/thermocal/pkg/link"
)

// Opcodes of the MU protocol.
const (
	OpHandshake   byte = 0x01
	OpStartStream byte = 0xF1
	OpStopStream  byte = 0xF2

	uidSize = 4
)

// ErrHandshakeTimeout is returned when the MU does not answer the handshake in time.
var ErrHandshakeTimeout = errors.New("handshake timeout")

// Conn is the byte-oriented transport used by the sensor link.
type Conn interface {
	WriteAll(b []byte) error
	ReadExact(n int) ([]byte, error)
	ReadAvailable() ([]byte, error)
	ClearInputBuffer() error
	Flush() error
	Close() error
}

var _ Conn = (*link.Link)(nil)

// Link addresses one MU over a transport. Not safe for concurrent use; share
// it through a Handle.
type Link struct {
	conn           Conn
	localID        uint8
	handshakeDelay time.Duration
	uid            uint32
}

// New creates a sensor link for the MU with the given local id.
func New(conn Conn, localID uint8, handshakeDelay time.Duration) *Link {
	return &Link{
		conn:           conn,
		localID:        localID,
		handshakeDelay: handshakeDelay,
	}
}

// Open discovers the MU by vendor/product id and opens it.
func Open(cfg config.SensorConfig) (*Link, error) {
	l, err := link.Open(cfg.VendorID, cfg.ProductID, cfg.BaudRate)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "sensor")
	}
	return New(l, cfg.LocalID, cfg.HandshakeDelay), nil
}

// Handshake announces the local id and reads back the 4-byte extended UID.
// It must run once per open port; repeating it mid-stream desynchronizes the MU.
func (l *Link) Handshake() (uint32, error) {
	if err := l.conn.ClearInputBuffer(); err != nil {
		return 0, err
	}
	if err := l.conn.WriteAll([]byte{0x00, OpHandshake, l.localID}); err != nil {
		return 0, err
	}
	if err := l.conn.Flush(); err != nil {
		return 0, err
	}

	if l.handshakeDelay > 0 {
		time.Sleep(l.handshakeDelay)
	}

	resp, err := l.conn.ReadExact(uidSize)
	if err != nil {
		if errors.Is(err, link.ErrTimeout) {
			return 0, pkgerrors.Wrapf(ErrHandshakeTimeout, "MU %d: got %d bytes", l.localID, len(resp))
		}
		return 0, err
	}

	l.uid = binary.BigEndian.Uint32(resp)
	logrus.WithField("uid", l.uid).Info("MU handshake complete")
	return l.uid, nil
}

// UID returns the extended UID learnt during the handshake.
func (l *Link) UID() uint32 {
	return l.uid
}

// StartStreaming asks the MU to stream sensorID at freqHz. No acknowledgement is read.
func (l *Link) StartStreaming(sensorID uint8, freqHz uint16, packetSize uint8) error {
	pkt := make([]byte, 0, 6)
	pkt = append(pkt, l.localID, OpStartStream, sensorID)
	pkt = binary.BigEndian.AppendUint16(pkt, freqHz)
	pkt = append(pkt, packetSize)
	return l.conn.WriteAll(pkt)
}

// StopStreaming stops the stream of sensorID on the MU addressed by muID.
func (l *Link) StopStreaming(muID, sensorID uint8) error {
	return l.conn.WriteAll([]byte{muID, OpStopStream, sensorID})
}

// PollAvailable returns the bytes buffered since the last poll without blocking.
func (l *Link) PollAvailable() ([]byte, error) {
	return l.conn.ReadAvailable()
}

// Close closes the underlying transport.
func (l *Link) Close() error {
	return l.conn.Close()
}
