// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/relabs-tech/disp_monitor/internal/imu"
	"github.com/relabs-tech/disp_monitor/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSensor struct {
	samples []imu.Vec3 // cycled
	failAt  int        // 1-based read that fails; 0 never
	err     error
	reads   int
}

func (f *fakeSensor) ReadAcceleration() (imu.Vec3, error) {
	f.reads++
	if f.failAt > 0 && f.reads == f.failAt {
		return imu.Vec3{}, f.err
	}
	return f.samples[(f.reads-1)%len(f.samples)], nil
}

func TestCalibrateConstantInput(t *testing.T) {
	t.Parallel()

	for _, v := range []imu.Vec3{
		{X: 0.1, Y: 9.8, Z: -0.3},
		{X: 0.123456789, Y: -0.7, Z: 9.80665},
		{},
	} {
		s := &fakeSensor{samples: []imu.Vec3{v}}
		bias, err := Calibrate(context.Background(), s, 100, 0)
		require.NoError(t, err)
		assert.Equal(t, v, bias.Offset, "constant input must give the exact value")
		assert.Equal(t, imu.Vec3{}, bias.StdDev)
		assert.Equal(t, 100, bias.Samples)
		assert.Equal(t, 100, s.reads)
		assert.Equal(t, 1.0, bias.StillnessConfidence())
	}
}

func TestCalibrateMean(t *testing.T) {
	t.Parallel()

	s := &fakeSensor{samples: []imu.Vec3{
		{X: 1, Y: -2, Z: 9},
		{X: 3, Y: -4, Z: 11},
	}}
	bias, err := Calibrate(context.Background(), s, 10, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, bias.Offset.X, 1e-12)
	assert.InDelta(t, -3.0, bias.Offset.Y, 1e-12)
	assert.InDelta(t, 10.0, bias.Offset.Z, 1e-12)
	assert.InDelta(t, 1.0, bias.StdDev.X, 1e-12)
	assert.Equal(t, confFloor, bias.StillnessConfidence())
}

func TestCalibrateAbortsOnReadFailure(t *testing.T) {
	t.Parallel()

	busErr := fmt.Errorf("%w: no response from 0x68", sensors.ErrBusTimeout)
	s := &fakeSensor{samples: []imu.Vec3{{Z: 9.8}}, failAt: 37, err: busErr}

	bias, err := Calibrate(context.Background(), s, 100, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, sensors.ErrBusTimeout)
	assert.Equal(t, Bias{}, bias)
	assert.Equal(t, 37, s.reads, "no read after the failing one")
}

func TestCalibrateInvalidCount(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, -5} {
		s := &fakeSensor{samples: []imu.Vec3{{}}}
		_, err := Calibrate(context.Background(), s, n, 0)
		assert.ErrorIs(t, err, ErrInvalidSampleCount)
		assert.Zero(t, s.reads)
	}
}

func TestCalibrateHonoursContext(t *testing.T) {
	t.Parallel()

	errStop := errors.New("stop")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errStop)

	s := &fakeSensor{samples: []imu.Vec3{{}}}
	_, err := Calibrate(ctx, s, 100, time.Hour)
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 1, s.reads)
}

func TestCalibrateSpacesReads(t *testing.T) {
	t.Parallel()

	s := &fakeSensor{samples: []imu.Vec3{{}}}
	start := time.Now()
	_, err := Calibrate(context.Background(), s, 5, 5*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestStillnessConfidence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Bias{StdDev: imu.Vec3{X: 0.01, Y: 0.01, Z: 0.01}}.StillnessConfidence())
	assert.Equal(t, confFloor, Bias{StdDev: imu.Vec3{X: 0.5, Y: 0.5, Z: 0.5}}.StillnessConfidence())

	mid := Bias{StdDev: imu.Vec3{X: 0.06, Y: 0.06, Z: 0.06}}.StillnessConfidence()
	assert.InDelta(t, 0.525, mid, 1e-9)
}
