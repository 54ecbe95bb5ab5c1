// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "fmt"

// Vec3 is a three-axis reading in physical units (m/s², m/s, m or °/s,
// depending on where it comes from).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Axes returns the components in X, Y, Z order.
func (v Vec3) Axes() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// FromAxes builds a Vec3 from components in X, Y, Z order.
func FromAxes(a [3]float64) Vec3 {
	return Vec3{X: a[0], Y: a[1], Z: a[2]}
}

// CSV formats the triple the way the monitor UI parses it: "x,y,z" with two decimals.
func (v Vec3) CSV() string {
	return fmt.Sprintf("%.2f,%.2f,%.2f", v.X, v.Y, v.Z)
}

// Sensor is anything that produces acceleration samples in m/s².
type Sensor interface {
	ReadAcceleration() (Vec3, error)
}
