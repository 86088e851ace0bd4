// Package bath drives the reference bath over its ASCII command protocol.
package bath

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/itohio/thermocal/pkg/config"
	"github.com/itohio/thermocal/pkg/link"
)

// Commands understood by the bath.
const (
	CmdSetpoint    = "SOUR:SPO"
	CmdOutput      = "OUTP:STAT"
	CmdTemperature = "SOUR:SENS:DATA?"
	CmdStability   = "SOUR:STAB:TEST?"

	terminator = "\r"
)

// ErrParse is returned when the bath answers with a non-numeric value.
var ErrParse = errors.New("parse error")

// Conn is the line-oriented transport used by the controller.
type Conn interface {
	WriteAll(b []byte) error
	ReadLine() (string, error)
	Close() error
}

var _ Conn = (*link.Link)(nil)

// Controller issues commands to the bath. Every call is a synchronous round
// trip; a Controller must be owned by a single goroutine.
type Controller struct {
	conn   Conn
	settle time.Duration
}

// New creates a controller over conn. settle is the pause after every command.
func New(conn Conn, settle time.Duration) *Controller {
	return &Controller{
		conn:   conn,
		settle: settle,
	}
}

// Open discovers the bath by vendor/product id and opens it.
func Open(cfg config.BathConfig) (*Controller, error) {
	l, err := link.Open(cfg.VendorID, cfg.ProductID, cfg.BaudRate)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "bath")
	}
	return New(l, cfg.SettleDelay), nil
}

// SetSetpoint sets the target temperature.
func (c *Controller) SetSetpoint(celsius float32) error {
	return c.send(fmt.Sprintf("%s %.2f", CmdSetpoint, celsius))
}

// EnableHeating turns the bath output on.
func (c *Controller) EnableHeating() error {
	return c.send(CmdOutput + " 1")
}

// DisableHeating turns the bath output off.
func (c *Controller) DisableHeating() error {
	return c.send(CmdOutput + " 0")
}

// ReadTemperature returns the current bath temperature.
func (c *Controller) ReadTemperature() (float32, error) {
	resp, err := c.query(CmdTemperature)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(resp, 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, pkgerrors.Wrapf(ErrParse, "temperature %q", resp)
	}
	return float32(v), nil
}

// IsStable reports the bath's own stability flag.
func (c *Controller) IsStable() (bool, error) {
	resp, err := c.query(CmdStability)
	if err != nil {
		return false, err
	}
	return resp == "1", nil
}

// Close closes the underlying transport.
func (c *Controller) Close() error {
	return c.conn.Close()
}

func (c *Controller) send(cmd string) error {
	if err := c.conn.WriteAll([]byte(cmd + terminator)); err != nil {
		return pkgerrors.Wrapf(err, "bath %q", cmd)
	}
	if c.settle > 0 {
		time.Sleep(c.settle)
	}
	return nil
}

func (c *Controller) query(cmd string) (string, error) {
	if err := c.send(cmd); err != nil {
		return "", err
	}
	line, err := c.conn.ReadLine()
	if err != nil {
		return "", pkgerrors.Wrapf(err, "bath %q", cmd)
	}
	return strings.TrimSpace(line), nil
}
