// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
)

// Failure taxonomy of the sensor driver. Every error returned by Dev matches
// exactly one of the bus errors, optionally wrapped by ErrDeviceMismatch or
// ErrConfiguration; match them with errors.Is.
var (
	ErrBusTimeout     = errors.New("i2c bus timeout")
	ErrBusTransaction = errors.New("i2c transaction failed")
	ErrDeviceMismatch = errors.New("device identity mismatch")
	ErrConfiguration  = errors.New("sensor configuration failed")
)

// busError classifies a raw bus error. Timeouts reported by TimeoutBus are
// kept as they are, anything else (NACK, arbitration loss, short transfer)
// becomes ErrBusTransaction.
func busError(err error) error {
	if errors.Is(err, ErrBusTimeout) || errors.Is(err, ErrBusTransaction) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBusTransaction, err)
}
