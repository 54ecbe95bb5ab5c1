// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package motion turns bias-corrected acceleration into velocity and
// displacement estimates with noise gating and zero-velocity updates.
package motion

import (
	"math"

	"github.com/relabs-tech/disp_monitor/internal/imu"
)

const (
	// StillnessThreshold is the gated acceleration magnitude (m/s²) below
	// which an axis counts as still.
	StillnessThreshold = 0.05

	// HoldCycles is the number of consecutive still cycles after which the
	// axis velocity is forced to zero.
	HoldCycles = 10

	// DefaultNoiseFloor matches the firmware boot value (m/s²).
	DefaultNoiseFloor = 0.5
)

// Config holds the per-cycle tuning of the integrator.
type Config struct {
	NoiseFloor         float64 // |a| below this is treated as 0
	StillnessThreshold float64
	HoldCycles         int
}

// DefaultConfig returns the firmware tuning.
func DefaultConfig() Config {
	return Config{
		NoiseFloor:         DefaultNoiseFloor,
		StillnessThreshold: StillnessThreshold,
		HoldCycles:         HoldCycles,
	}
}

// WithNoiseFloor returns a copy of c using floor.
func (c Config) WithNoiseFloor(floor float64) Config {
	c.NoiseFloor = floor
	return c
}

// State is the motion estimate carried between cycles.
type State struct {
	Accel        imu.Vec3 `json:"accel"`        // bias-corrected, gated (m/s²)
	Velocity     imu.Vec3 `json:"velocity"`     // m/s
	Displacement imu.Vec3 `json:"displacement"` // m
}

// Integrator advances a State one sample at a time. It owns the per-axis
// stillness counters, so one Integrator must serve exactly one State.
// Not safe for concurrent use.
type Integrator struct {
	still [3]int
}

// NewIntegrator returns an Integrator with cleared stillness counters.
func NewIntegrator() *Integrator {
	return &Integrator{}
}

// Reset clears the stillness counters. The pipeline never calls it (state
// only resets with the process); it exists for tests and introspection.
func (in *Integrator) Reset() {
	in.still = [3]int{}
}

// StillCounts returns the consecutive still-cycle count per axis.
func (in *Integrator) StillCounts() [3]int {
	return in.still
}

// Update applies one sample to st and returns the new state. dt is the
// elapsed time in seconds since the previous sample; negative values are
// treated as 0.
//
// Per axis: subtract bias, zero anything under the noise floor, then either
// count a still cycle (zeroing velocity once HoldCycles is reached, never
// integrating) or integrate with semi-implicit Euler, velocity first.
func (in *Integrator) Update(raw, bias imu.Vec3, cfg Config, dt float64, st State) State {
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}

	r, b := raw.Axes(), bias.Axes()
	v, d := st.Velocity.Axes(), st.Displacement.Axes()
	var a [3]float64

	for i := range 3 {
		a[i] = r[i] - b[i]
		if math.Abs(a[i]) < cfg.NoiseFloor {
			a[i] = 0
		}

		if math.Abs(a[i]) < cfg.StillnessThreshold {
			in.still[i]++
			if in.still[i] >= cfg.HoldCycles {
				v[i] = 0
			}
			continue
		}

		in.still[i] = 0
		v[i] += a[i] * dt
		d[i] += v[i] * dt
	}

	return State{
		Accel:        imu.FromAxes(a),
		Velocity:     imu.FromAxes(v),
		Displacement: imu.FromAxes(d),
	}
}
