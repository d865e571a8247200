// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ccs811

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the device address with the ADDR pin pulled low. With the
// pin pulled high the device answers at 0x5B.
const DefaultAddress uint16 = 0x5A

// Register addresses.
const (
	regStatus        byte = 0x00
	regMeasMode      byte = 0x01
	regAlgResultData byte = 0x02 // 8 bytes
	regEnvData       byte = 0x05 // 4 bytes, write only
	regBaseline      byte = 0x11 // 2 bytes
	regHWID          byte = 0x20
	regAppStart      byte = 0xF4 // zero-length write
	regSWReset       byte = 0xFF // 4 byte key, write only

	// Value the hardware ID register must report.
	hwIDCode byte = 0x81
)

// Status register bits. These are the positions from the final datasheet
// revision; early revisions documented different APP_VALID/DATA_READY
// positions and must not be used.
const (
	statusFWMode    byte = 0x80
	statusAppValid  byte = 0x10
	statusDataReady byte = 0x08
	statusError     byte = 0x01
)

// ERROR_ID register bits.
const (
	errWriteRegInvalid byte = 0x01
	errReadRegInvalid  byte = 0x02
	errMeasModeInvalid byte = 0x04
	errMaxResistance   byte = 0x08
	errHeaterFault     byte = 0x10
	errHeaterSupply    byte = 0x20
)

// MEAS_MODE drive mode codes. Mode 2 (10s) exists on the device but provides
// no benefit over mode 1 at the poll periods this driver accepts, and mode 4
// only produces raw data, which this driver does not decode.
const (
	driveModeIdle  byte = 0x00
	driveMode1Hz   byte = 0x10
	driveMode10Sec byte = 0x20
	driveMode60Sec byte = 0x30
	driveModeRaw   byte = 0x40
)

// swResetKey is the sequence the SW_RESET register requires before the device
// accepts the reset.
var swResetKey = []byte{0x11, 0xE5, 0x72, 0x8A}

// resetSettle is how long the device needs after a reset before registers may
// be accessed again. The datasheet worst case is 70ms; reading earlier
// returns undefined bit content.
const resetSettle = 100 * time.Millisecond

// CO2 is an equivalent CO2 concentration in ppm.
type CO2 uint16

func (c CO2) String() string {
	return strconv.Itoa(int(c)) + "ppm"
}

// TVOC is an equivalent total volatile organic compound concentration in ppb.
type TVOC uint16

func (t TVOC) String() string {
	return strconv.Itoa(int(t)) + "ppb"
}

// Status is the decoded STATUS bit-field of a measurement.
type Status struct {
	// DataReady reports that a new sample was available when the result block
	// was read. The device clears it once the block has been read out.
	DataReady bool
	// Error reports that the ERROR_ID register holds an active error.
	Error bool
}

// ErrorID is the decoded ERROR_ID bit-field of a measurement. The device may
// leave stale bits here before the first error occurs, so the content is only
// meaningful when Status.Error is set.
type ErrorID struct {
	WriteRegInvalid bool
	ReadRegInvalid  bool
	MeasModeInvalid bool
	MaxResistance   bool
	HeaterFault     bool
	HeaterSupply    bool
}

// Measurement is a single decoded ALG_RESULT_DATA block.
type Measurement struct {
	ECO2    CO2
	ETVOC   TVOC
	Status  Status
	ErrorID ErrorID
	// Raw holds the undecoded current/ADC bytes of the result block.
	Raw [2]byte
}

func (m *Measurement) String() string {
	return fmt.Sprintf("eCO2: %s eTVOC: %s", m.ECO2.String(), m.ETVOC.String())
}

// Opts holds the configuration options for the device.
type Opts struct {
	// Addr is the I²C address to use. Must be DefaultAddress (0x5A) or 0x5B.
	// 0 selects DefaultAddress.
	Addr uint16
	// PollPeriod selects the device's internal sampling cadence. It must be
	// one of 1s, 10s or 1m. 1s and 10s both select the 1Hz drive mode; 1m
	// selects the 1/60Hz drive mode. The driver never polls on its own
	// (except through SenseContinuous); the period only tunes the device.
	PollPeriod time.Duration
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	Addr:       DefaultAddress,
	PollPeriod: time.Second,
}

// Dev is a handle to an initialized CCS811 device.
//
// All operations are serialized internally: the bus protocol is a strict
// request/response exchange, so only one transaction may be outstanding for
// the device at a time.
type Dev struct {
	d      *i2c.Dev
	opts   Opts
	mode   byte
	mu     sync.Mutex
	chHalt chan struct{}
	halted bool
}

// NewI2C returns a driver for a CCS811 connected to the supplied bus, with
// its application firmware started and the drive mode matching
// opts.PollPeriod selected. opts can be nil to use DefaultOpts.
//
// If initialization fails after the device has been identified, a best-effort
// software reset is issued to return the device to a known state; a failure
// of that cleanup write is joined to the original error.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddress
	}
	mode, err := driveModeForPeriod(opts.PollPeriod)
	if err != nil {
		return nil, err
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, opts: *opts, mode: mode}
	if err := d.start(); err != nil {
		var unexpected *UnexpectedDeviceError
		if !errors.As(err, &unexpected) {
			// The chip was identified as a CCS811, so try to leave it in
			// boot mode rather than half-initialized.
			if resetErr := d.reset(); resetErr != nil {
				err = errors.Join(err, resetErr)
			}
		}
		return nil, err
	}
	return d, nil
}

// driveModeForPeriod maps a poll period to a MEAS_MODE code. Checked before
// any bus I/O.
func driveModeForPeriod(period time.Duration) (byte, error) {
	switch period {
	case time.Second, 10 * time.Second:
		return driveMode1Hz, nil
	case time.Minute:
		return driveMode60Sec, nil
	default:
		return 0, &UnsupportedPollPeriodError{Period: period}
	}
}

// start walks the device from an unknown state into application mode with the
// requested drive mode. The steps are ordered and none may be skipped:
// identify, reset, settle, check firmware, start application, set mode.
func (d *Dev) start() error {
	var id [1]byte
	if err := d.readReg(regHWID, id[:]); err != nil {
		return err
	}
	if id[0] != hwIDCode {
		return &UnexpectedDeviceError{Observed: id[0]}
	}
	if err := d.reset(); err != nil {
		return err
	}
	time.Sleep(resetSettle)
	var status [1]byte
	if err := d.readReg(regStatus, status[:]); err != nil {
		return err
	}
	if status[0]&statusAppValid == 0 {
		return &FirmwareNotPresentError{}
	}
	// A zero-length write to APP_START moves the device from boot mode to
	// application mode. Nothing is read back.
	if err := d.writeReg(regAppStart, nil); err != nil {
		return err
	}
	return d.writeReg(regMeasMode, []byte{d.mode})
}

// reset writes the software reset key. The device returns to boot mode and
// needs resetSettle before the next register access.
func (d *Dev) reset() error {
	return d.writeReg(regSWReset, swResetKey)
}

// Sense reads and decodes one ALG_RESULT_DATA block.
//
// The device updates the block at the cadence selected by Opts.PollPeriod.
// Status.DataReady reports whether this read returned a fresh sample; the
// driver does not wait for one. ErrorID is decoded unconditionally but is
// only meaningful when Status.Error is set.
func (d *Dev) Sense(m *Measurement) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf [8]byte
	if err := d.readReg(regAlgResultData, buf[:]); err != nil {
		return err
	}
	m.ECO2 = CO2(binary.BigEndian.Uint16(buf[0:2]))
	m.ETVOC = TVOC(binary.BigEndian.Uint16(buf[2:4]))
	m.Status = decodeStatus(buf[4])
	m.ErrorID = decodeErrorID(buf[5])
	copy(m.Raw[:], buf[6:8])
	return nil
}

// SenseContinuous reads the sensor at the specified interval and writes
// decoded measurements to the returned channel. To terminate it, call Halt().
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Measurement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return nil, errors.New("ccs811: device is halted")
	}
	if d.chHalt != nil {
		return nil, errors.New("ccs811: SenseContinuous() running already")
	}
	d.chHalt = make(chan struct{})
	channelSize := 16
	channel := make(chan Measurement, channelSize)
	go func(halt <-chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(channel)
		for {
			select {
			case <-halt:
				return
			case <-ticker.C:
				m := Measurement{}
				if err := d.Sense(&m); err == nil && len(channel) < channelSize {
					channel <- m
				}
			}
		}
	}(d.chHalt)
	return channel, nil
}

// SetEnvironment feeds ambient temperature and relative humidity to the
// device so its algorithm can compensate for them. The values are clamped to
// 0..100%RH and -25..100°C; out of range inputs are not an error. The device
// never reports the values back.
func (d *Dev) SetEnvironment(t physic.Temperature, h physic.RelativeHumidity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	hum := encodeFixedPoint(float64(h)/float64(physic.PercentRH), 0, 100, 0)
	tmp := encodeFixedPoint(t.Celsius(), -25, 100, 25)
	return d.writeReg(regEnvData, []byte{hum[0], hum[1], tmp[0], tmp[1]})
}

// Baseline returns the algorithm baseline word. The value is opaque; save it
// once the sensor has run in clean air for long enough and restore it with
// SetBaseline after a power cycle. Refer to ams AN000370 for the procedure.
func (d *Dev) Baseline() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf [2]byte
	if err := d.readReg(regBaseline, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// SetBaseline restores a previously saved algorithm baseline word.
func (d *Dev) SetBaseline(baseline uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], baseline)
	return d.writeReg(regBaseline, buf[:])
}

// Halt stops SenseContinuous if running and resets the device back into boot
// mode so it is in a known state for the next user. The device handle must
// not be used afterwards. Implements conn.Resource. Halt is idempotent.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return nil
	}
	d.halted = true
	if d.chHalt != nil {
		close(d.chHalt)
		d.chHalt = nil
	}
	return d.reset()
}

// Precision returns the resolution of the readings: 1 ppm eCO2, 1 ppb eTVOC.
func (d *Dev) Precision(m *Measurement) {
	m.ECO2 = 1
	m.ETVOC = 1
}

func (d *Dev) String() string {
	return fmt.Sprintf("ccs811: %s", d.d.String())
}

func decodeStatus(b byte) Status {
	return Status{
		DataReady: b&statusDataReady != 0,
		Error:     b&statusError != 0,
	}
}

func decodeErrorID(b byte) ErrorID {
	return ErrorID{
		WriteRegInvalid: b&errWriteRegInvalid != 0,
		ReadRegInvalid:  b&errReadRegInvalid != 0,
		MeasModeInvalid: b&errMeasModeInvalid != 0,
		MaxResistance:   b&errMaxResistance != 0,
		HeaterFault:     b&errHeaterFault != 0,
		HeaterSupply:    b&errHeaterSupply != 0,
	}
}

// encodeFixedPoint clamps v into [clampLow, clampHigh], adds offset and packs
// the result big-endian as 7 integer bits and 9 fractional bits (LSB =
// 1/512), the format the ENV_DATA register expects.
func encodeFixedPoint(v, clampLow, clampHigh, offset float64) [2]byte {
	if v < clampLow {
		v = clampLow
	}
	if v > clampHigh {
		v = clampHigh
	}
	count := uint16((v + offset) * 512) // truncates toward zero
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], count)
	return buf
}

// decodeFixedPoint is the inverse of encodeFixedPoint, within the 1/512
// quantization step. The device never sends this format back; kept for
// verification.
func decodeFixedPoint(buf [2]byte, offset float64) float64 {
	return float64(binary.BigEndian.Uint16(buf[:]))/512 - offset
}

// readReg reads len(buf) bytes from register reg.
func (d *Dev) readReg(reg byte, buf []byte) error {
	if err := d.d.Tx([]byte{reg}, buf); err != nil {
		return &TransportError{Reg: reg, Cause: err}
	}
	return nil
}

// writeReg writes data to register reg. data may be nil for registers that
// take a bare register-address write, like APP_START.
func (d *Dev) writeReg(reg byte, data []byte) error {
	w := make([]byte, 1, 1+len(data))
	w[0] = reg
	w = append(w, data...)
	if err := d.d.Tx(w, nil); err != nil {
		return &TransportError{Reg: reg, Cause: err}
	}
	return nil
}

var _ conn.Resource = &Dev{}
