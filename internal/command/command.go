// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package command parses the line-oriented runtime control protocol:
//
//	reset
//	set_rate:<ms>
//	set_accel_noise_floor:<m/s²>
//	set_mpu6050_config:<accel>,<gyro>,<dlpf>,<div>
//	start
//	stop
package command

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/disp_monitor/internal/config"
)

var (
	ErrUnknown         = errors.New("unknown command")
	ErrInvalidArgument = errors.New("invalid command argument")
)

// Kind identifies a command.
type Kind int

const (
	Reset Kind = iota + 1
	SetRate
	SetNoiseFloor
	SetSensorConfig
	Start
	Stop
)

var names = map[Kind]string{
	Reset:           "reset",
	SetRate:         "set_rate",
	SetNoiseFloor:   "set_accel_noise_floor",
	SetSensorConfig: "set_mpu6050_config",
	Start:           "start",
	Stop:            "stop",
}

func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var bare = map[string]Kind{"reset": Reset, "start": Start, "stop": Stop}

// Command is one parsed control line. Only the field matching Kind is set.
type Command struct {
	Kind       Kind
	Rate       time.Duration
	NoiseFloor float64
	Sensor     config.SensorSettings
}

// String renders c in wire form; Parse(c.String()) returns c.
func (c Command) String() string {
	switch c.Kind {
	case SetRate:
		return fmt.Sprintf("%s:%d", c.Kind, c.Rate.Milliseconds())
	case SetNoiseFloor:
		return fmt.Sprintf("%s:%s", c.Kind, strconv.FormatFloat(c.NoiseFloor, 'g', -1, 64))
	case SetSensorConfig:
		s := c.Sensor
		return fmt.Sprintf("%s:%d,%d,%d,%d", c.Kind, s.AccelRange, s.GyroRange, s.DLPF, s.SampleRateDiv)
	default:
		return c.Kind.String()
	}
}

// Parse decodes one line. Surrounding whitespace and a trailing CR/LF are
// ignored. Unrecognized names return ErrUnknown; a recognized name with a
// missing or out-of-range argument returns ErrInvalidArgument.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	name, arg, hasArg := strings.Cut(line, ":")

	switch name {
	case "reset", "start", "stop":
		if hasArg {
			return Command{}, fmt.Errorf("%w: %s takes no argument", ErrInvalidArgument, name)
		}
		return Command{Kind: bare[name]}, nil

	case "set_rate":
		ms, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return Command{}, fmt.Errorf("%w: set_rate needs an integer period in ms, got %q", ErrInvalidArgument, arg)
		}
		if ms <= 0 {
			return Command{}, fmt.Errorf("%w: set_rate must be positive, got %d", ErrInvalidArgument, ms)
		}
		return Command{Kind: SetRate, Rate: time.Duration(ms) * time.Millisecond}, nil

	case "set_accel_noise_floor":
		v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: set_accel_noise_floor needs a number, got %q", ErrInvalidArgument, arg)
		}
		if v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return Command{}, fmt.Errorf("%w: noise floor must be a finite non-negative value, got %v", ErrInvalidArgument, v)
		}
		return Command{Kind: SetNoiseFloor, NoiseFloor: v}, nil

	case "set_mpu6050_config":
		s, err := parseSensor(arg)
		if err != nil {
			return Command{}, fmt.Errorf("%w: set_mpu6050_config: %v", ErrInvalidArgument, err)
		}
		return Command{Kind: SetSensorConfig, Sensor: s}, nil
	}

	return Command{}, fmt.Errorf("%w: %q", ErrUnknown, line)
}

func parseSensor(arg string) (config.SensorSettings, error) {
	parts := strings.Split(arg, ",")
	if len(parts) != 4 {
		return config.SensorSettings{}, fmt.Errorf("want accel,gyro,dlpf,div, got %q", arg)
	}

	limits := [4]int{3, 3, 7, 255}
	labels := [4]string{"accel range", "gyro range", "dlpf", "sample rate divider"}
	var v [4]byte
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return config.SensorSettings{}, fmt.Errorf("%s %q is not an integer", labels[i], p)
		}
		if n < 0 || n > limits[i] {
			return config.SensorSettings{}, fmt.Errorf("%s must be 0-%d, got %d", labels[i], limits[i], n)
		}
		v[i] = byte(n)
	}
	return config.SensorSettings{AccelRange: v[0], GyroRange: v[1], DLPF: v[2], SampleRateDiv: v[3]}, nil
}
