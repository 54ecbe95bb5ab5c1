// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestTimeoutBus(t *testing.T) {
	t.Parallel()

	t.Run("passes transactions through", func(t *testing.T) {
		t.Parallel()
		pb := &i2ctest.Playback{
			Ops:       []i2ctest.IO{{Addr: DefaultAddr, W: []byte{RegWhoAmI}, R: []byte{DeviceID}}},
			DontPanic: true,
		}
		bus := NewTimeoutBus(pb, 0)
		r := make([]byte, 1)
		require.NoError(t, bus.Tx(DefaultAddr, []byte{RegWhoAmI}, r))
		assert.Equal(t, DeviceID, r[0])
		require.NoError(t, bus.Close())
	})

	t.Run("hung transaction times out", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		defer close(release)
		inner := &scriptBus{fn: func(int, []byte, []byte) error {
			<-release
			return nil
		}}
		bus := NewTimeoutBus(inner, 20*time.Millisecond)

		start := time.Now()
		err := New(bus, DefaultAddr).Identify()
		assert.ErrorIs(t, err, ErrBusTimeout)
		assert.NotErrorIs(t, err, ErrBusTransaction)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("waiting for a held bus times out", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		started := make(chan struct{})
		inner := &scriptBus{fn: func(n int, _, _ []byte) error {
			if n == 0 {
				close(started)
				<-release
			}
			return nil
		}}
		bus := NewTimeoutBus(inner, 20*time.Millisecond)

		first := make(chan error, 1)
		go func() { first <- bus.Tx(DefaultAddr, []byte{RegWhoAmI}, make([]byte, 1)) }()
		<-started

		err := bus.Tx(DefaultAddr, []byte{RegWhoAmI}, make([]byte, 1))
		assert.ErrorIs(t, err, ErrBusTimeout)
		assert.Len(t, inner.writes(), 1, "second transaction must not reach the bus")

		assert.ErrorIs(t, <-first, ErrBusTimeout)
		close(release)
	})

	t.Run("late reply does not touch the read buffer", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		done := make(chan struct{})
		inner := &scriptBus{fn: func(_ int, _, r []byte) error {
			<-release
			r[0] = 0xFF
			close(done)
			return nil
		}}
		bus := NewTimeoutBus(inner, 10*time.Millisecond)

		r := []byte{0x00}
		assert.ErrorIs(t, bus.Tx(DefaultAddr, []byte{RegWhoAmI}, r), ErrBusTimeout)
		close(release)
		<-done
		assert.Equal(t, byte(0x00), r[0])
	})

	t.Run("inner error is classified by the driver", func(t *testing.T) {
		t.Parallel()
		inner := &scriptBus{fn: func(int, []byte, []byte) error { return errNack }}
		_, err := New(NewTimeoutBus(inner, time.Second), DefaultAddr).ReadAcceleration()
		assert.ErrorIs(t, err, ErrBusTransaction)
		assert.ErrorIs(t, err, errNack)
	})
}
