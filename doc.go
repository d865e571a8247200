// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ccs811 controls an ams CCS811 digital gas sensor over I²C.
//
// The sensor reports an equivalent CO2 concentration (eCO2, 400 to 8192 ppm)
// and an equivalent total volatile organic compound concentration (eTVOC, 0
// to 1187 ppb) computed by its on-chip algorithm. The host can feed ambient
// temperature and humidity back to the device with SetEnvironment so the
// algorithm can compensate for them.
//
// The driver starts the device's application firmware and selects a periodic
// drive mode at construction time. It does not support the boot-mode firmware
// loader or the raw 4 Hz measurement mode.
//
// Datasheet: https://www.sciosense.com/wp-content/uploads/2020/01/CCS811-Datasheet.pdf
package ccs811
