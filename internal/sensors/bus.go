// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultBusTimeout bounds a single transaction, including the wait for
// another task to release the bus.
const DefaultBusTimeout = time.Second

// TimeoutBus serializes access to an i2c.Bus and makes every transaction
// fail with ErrBusTimeout instead of blocking past the timeout.
//
// The acquisition loop and the health monitor share one bus; without the
// semaphore their write-then-read transactions could interleave.
type TimeoutBus struct {
	bus     i2c.Bus
	timeout time.Duration
	sem     chan struct{}
}

// NewTimeoutBus wraps bus. A non-positive timeout selects DefaultBusTimeout.
func NewTimeoutBus(bus i2c.Bus, timeout time.Duration) *TimeoutBus {
	if timeout <= 0 {
		timeout = DefaultBusTimeout
	}
	return &TimeoutBus{
		bus:     bus,
		timeout: timeout,
		sem:     make(chan struct{}, 1),
	}
}

func (b *TimeoutBus) String() string {
	return fmt.Sprintf("%s (timeout %s)", b.bus, b.timeout)
}

// Tx implements i2c.Bus.
//
// The underlying transaction runs on its own goroutine against private
// buffers, so a transfer that completes after the deadline never writes into
// the caller's r. The bus stays held until that transfer really finishes.
func (b *TimeoutBus) Tx(addr uint16, w, r []byte) error {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case b.sem <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%w: bus busy for %s (addr 0x%02X)", ErrBusTimeout, b.timeout, addr)
	}

	wbuf := append([]byte(nil), w...)
	rbuf := make([]byte, len(r))
	done := make(chan error, 1)
	go func() {
		err := b.bus.Tx(addr, wbuf, rbuf)
		<-b.sem
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		copy(r, rbuf)
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: no response from 0x%02X within %s", ErrBusTimeout, addr, b.timeout)
	}
}

// SetSpeed implements i2c.Bus.
func (b *TimeoutBus) SetSpeed(f physic.Frequency) error {
	select {
	case b.sem <- struct{}{}:
	case <-time.After(b.timeout):
		return fmt.Errorf("%w: bus busy for %s", ErrBusTimeout, b.timeout)
	}
	defer func() { <-b.sem }()
	return b.bus.SetSpeed(f)
}

// Close closes the wrapped bus when it supports it.
func (b *TimeoutBus) Close() error {
	if c, ok := b.bus.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ i2c.BusCloser = (*TimeoutBus)(nil)
