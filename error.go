// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ccs811

import (
	"fmt"
	"time"
)

// UnexpectedDeviceError is returned when the chip at the configured address
// does not identify itself as a CCS811.
type UnexpectedDeviceError struct {
	// Observed is the value read from the hardware ID register.
	Observed byte
}

func (e *UnexpectedDeviceError) Error() string {
	return fmt.Sprintf("ccs811: unexpected hardware ID 0x%02x, want 0x%02x", e.Observed, hwIDCode)
}

// FirmwareNotPresentError is returned when the device reports that no valid
// application firmware is loaded. The boot-mode firmware loader is out of
// scope for this driver, so this condition cannot be recovered in software.
type FirmwareNotPresentError struct{}

func (e *FirmwareNotPresentError) Error() string {
	return "ccs811: no valid application firmware on device"
}

// UnsupportedPollPeriodError is returned when Opts.PollPeriod is not one of
// the periods the device's drive modes can serve.
type UnsupportedPollPeriodError struct {
	Period time.Duration
}

func (e *UnsupportedPollPeriodError) Error() string {
	return fmt.Sprintf("ccs811: unsupported poll period %s, want 1s, 10s or 1m", e.Period)
}

// TransportError is returned when an I²C transaction with the device fails.
// It wraps the bus error.
type TransportError struct {
	// Reg is the register the transaction addressed.
	Reg   byte
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ccs811: transaction for register 0x%02x: %v", e.Reg, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
