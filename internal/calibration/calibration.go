// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration estimates the static accelerometer bias at startup.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/disp_monitor/internal/imu"
)

const (
	DefaultSamples = 100
	DefaultPeriod  = 10 * time.Millisecond

	// Stillness heuristics on the mean per-axis standard deviation (m/s²).
	stillStdGood = 0.02 // at or below: full confidence
	stillStdBad  = 0.10 // at or above: confidence floor

	// LowConfidence is the level under which callers should warn that the
	// body probably moved during calibration.
	LowConfidence = 0.5

	confFloor = 0.05
)

// ErrInvalidSampleCount is returned for a non-positive sample count.
var ErrInvalidSampleCount = errors.New("calibration sample count must be positive")

// Bias is the per-axis static offset measured at startup.
type Bias struct {
	Offset  imu.Vec3 `json:"offset"`
	StdDev  imu.Vec3 `json:"std_dev"`
	Samples int      `json:"samples"`
}

// StillnessConfidence rates in [0.05, 1] how static the body looked while
// the samples were taken.
func (b Bias) StillnessConfidence() float64 {
	s := (b.StdDev.X + b.StdDev.Y + b.StdDev.Z) / 3
	switch {
	case s <= stillStdGood:
		return 1.0
	case s >= stillStdBad:
		return confFloor
	default:
		t := (s - stillStdGood) / (stillStdBad - stillStdGood)
		return clamp01(1.0 - 0.95*t)
	}
}

// Calibrate takes exactly count consecutive readings from r, waiting period
// after each, and returns their per-axis mean. The first failed read aborts
// the run and its error is returned wrapped; no partial bias is produced.
//
// The body must be stationary for the whole run. Nothing checks that;
// inspect StillnessConfidence afterwards.
func Calibrate(ctx context.Context, r imu.Sensor, count int, period time.Duration) (Bias, error) {
	if count <= 0 {
		return Bias{}, fmt.Errorf("%w: got %d", ErrInvalidSampleCount, count)
	}

	var acc welford
	for i := range count {
		v, err := r.ReadAcceleration()
		if err != nil {
			return Bias{}, fmt.Errorf("calibration sample %d/%d: %w", i+1, count, err)
		}
		acc.add(v)

		if err := sleep(ctx, period); err != nil {
			return Bias{}, fmt.Errorf("calibration interrupted after %d/%d samples: %w", i+1, count, err)
		}
	}

	return Bias{
		Offset:  imu.FromAxes(acc.mean),
		StdDev:  acc.stdDev(),
		Samples: acc.n,
	}, nil
}

// welford keeps a running mean and sum of squared deviations. A constant
// series yields its value exactly, unlike sum-then-divide.
type welford struct {
	n    int
	mean [3]float64
	m2   [3]float64
}

func (w *welford) add(v imu.Vec3) {
	w.n++
	x := v.Axes()
	for i := range 3 {
		d := x[i] - w.mean[i]
		w.mean[i] += d / float64(w.n)
		w.m2[i] += d * (x[i] - w.mean[i])
	}
}

func (w *welford) stdDev() imu.Vec3 {
	if w.n == 0 {
		return imu.Vec3{}
	}
	var s [3]float64
	for i := range 3 {
		s[i] = math.Sqrt(w.m2[i] / float64(w.n))
	}
	return imu.FromAxes(s)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
