// Package battery reports the charge of the host's battery controller, so
// a headless renderer on a battery-backed board can be watched over HTTP.
package battery

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"kindlecal/internal/config"
)

// ErrUnavailable is returned when no battery controller is configured.
var ErrUnavailable = errors.New("battery: no controller configured")

// Status is the battery state reported on /api/status.
type Status struct {
	// Percent is the battery level in 0–100%.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts, 0 if unknown.
	VoltageMv int `json:"voltage_mv"`
}

// Reader obtains battery information.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// Controller registers (PiSugar-style).
const (
	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A
)

// Tx performs one write-then-read transaction against the controller.
type Tx func(w, r []byte) error

// i2cReader talks to a battery controller over I2C.
type i2cReader struct {
	busName string
	addr    uint16

	initOnce sync.Once
	initErr  error

	// tx overrides the bus, for tests.
	tx Tx
}

// NewI2CReader constructs an I2C-backed Reader. busName "" uses the default
// periph.io bus. host.Init and the bus open happen on Read.
func NewI2CReader(busName string, addr uint16) Reader {
	return &i2cReader{busName: busName, addr: addr}
}

// NewTxReader reads the controller registers through tx.
func NewTxReader(tx Tx) Reader {
	return &i2cReader{tx: tx}
}

// Read implements Reader.
func (r *i2cReader) Read(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	if r.tx != nil {
		return readRegisters(r.tx)
	}

	if runtime.GOOS != "linux" {
		return Status{}, errors.New("battery: i2c reader unavailable on this platform")
	}
	r.initOnce.Do(func() {
		_, r.initErr = host.Init()
	})
	if r.initErr != nil {
		return Status{}, fmt.Errorf("battery: host init: %w", r.initErr)
	}

	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Status{}, fmt.Errorf("battery: open bus %q: %w", r.busName, err)
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: r.addr}
	return readRegisters(dev.Tx)
}

func readRegisters(tx Tx) (Status, error) {
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := tx([]byte{reg}, buf); err != nil {
			return 0, fmt.Errorf("battery: read reg 0x%02X: %w", reg, err)
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := readReg(regPercent)
	if err != nil {
		return Status{}, err
	}

	return Status{
		Percent:   int(min(pct, 100)),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
	}, nil
}

type noneReader struct{}

func (noneReader) Read(context.Context) (Status, error) {
	return Status{}, ErrUnavailable
}

// Open returns the Reader for cfg. A zero address means the host has no
// controller, and every Read returns ErrUnavailable.
func Open(cfg config.BatteryConfig) Reader {
	if cfg.Addr == 0 {
		return noneReader{}
	}
	return NewI2CReader(cfg.Bus, cfg.Addr)
}
