// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/relabs-tech/disp_monitor/internal/imu"
	"periph.io/x/conn/v3/i2c"
)

const (
	DefaultAddr uint16 = 0x68 // AD0 low
	DeviceID    byte   = 0x68 // expected WHO_AM_I value

	// StandardGravity converts g to m/s².
	StandardGravity = 9.80665

	accelLSBPerG   = 16384.0 // at ±2g
	gyroLSBPerDPS  = 131.0   // at ±250°/s
	tempLSBPerC    = 340.0
	tempOffsetC    = 36.53
	rangeShift     = 3 // FS_SEL lives in bits 4:3
	maxRange       = 3
	maxDLPF        = 7
	pwrWake        = 0x00 // clears SLEEP
	pwrClkSelPLL   = 0x01 // PLL with X gyro reference
	tripleDataSize = 6
)

// Register addresses.
const (
	RegSmplrtDiv   byte = 0x19
	RegConfig      byte = 0x1A
	RegGyroConfig  byte = 0x1B
	RegAccelConfig byte = 0x1C
	RegAccelXOutH  byte = 0x3B
	RegTempOutH    byte = 0x41
	RegGyroXOutH   byte = 0x43
	RegPwrMgmt1    byte = 0x6B
	RegPwrMgmt2    byte = 0x6C
	RegWhoAmI      byte = 0x75
)

// Config is the runtime-selectable measurement setup of the MPU6050.
type Config struct {
	AccelRange    byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	GyroRange     byte // 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	DLPF          byte // digital low pass filter, 0-6 (7 reserved)
	SampleRateDiv byte // sample rate = gyro output rate / (1 + div)
}

// DefaultConfig is the power-on setup used by the firmware: ±2g, ±250°/s,
// ~44 Hz DLPF, no divider.
var DefaultConfig = Config{AccelRange: 0, GyroRange: 0, DLPF: 3, SampleRateDiv: 0}

func (c Config) validate() error {
	if c.AccelRange > maxRange {
		return fmt.Errorf("accel range must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", c.AccelRange)
	}
	if c.GyroRange > maxRange {
		return fmt.Errorf("gyro range must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", c.GyroRange)
	}
	if c.DLPF > maxDLPF {
		return fmt.Errorf("DLPF config must be 0-7, got %d", c.DLPF)
	}
	return nil
}

// OutputRateHz is the sample rate resulting from the DLPF and divider
// settings: 8 kHz gyro output with the filter off (0 or 7), 1 kHz otherwise.
func (c Config) OutputRateHz() int {
	internal := 1000
	if c.DLPF == 0 || c.DLPF == 7 {
		internal = 8000
	}
	return internal / (1 + int(c.SampleRateDiv))
}

// Dev is a minimal register-level MPU6050 driver.
type Dev struct {
	c i2c.Dev

	mu  sync.Mutex // guards cfg
	cfg Config     // ranges currently applied to the chip
}

// New returns a driver for the device at addr on bus. No transaction is
// issued; call Init before reading.
func New(bus i2c.Bus, addr uint16) *Dev {
	return &Dev{
		c:   i2c.Dev{Addr: addr, Bus: bus},
		cfg: Config{},
	}
}

func (d *Dev) String() string {
	return fmt.Sprintf("MPU6050{addr:0x%02X}", d.c.Addr)
}

// Init checks the identity register, wakes the device and selects the PLL
// clock. The two power management writes are issued in that order.
func (d *Dev) Init() error {
	if err := d.Identify(); err != nil {
		return err
	}
	if err := d.writeReg(RegPwrMgmt1, pwrWake); err != nil {
		return fmt.Errorf("wake: %w", err)
	}
	if err := d.writeReg(RegPwrMgmt1, pwrClkSelPLL); err != nil {
		return fmt.Errorf("select clock: %w", err)
	}
	return nil
}

// Identify reads WHO_AM_I. A failed transaction returns the bus error; a
// successful one with the wrong value returns ErrDeviceMismatch.
func (d *Dev) Identify() error {
	id, err := d.ReadRegister(RegWhoAmI)
	if err != nil {
		return fmt.Errorf("read WHO_AM_I: %w", err)
	}
	if id != DeviceID {
		return fmt.Errorf("%w: WHO_AM_I=0x%02X, want 0x%02X", ErrDeviceMismatch, id, DeviceID)
	}
	return nil
}

// Configure writes SMPLRT_DIV, CONFIG, GYRO_CONFIG and ACCEL_CONFIG in that
// order, one 2-byte transaction each. The first failure aborts; registers
// already written stay written, so callers retry with a full Configure.
func (d *Dev) Configure(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	writes := []struct {
		name  string
		reg   byte
		value byte
		apply func(*Config)
	}{
		{"SMPLRT_DIV", RegSmplrtDiv, cfg.SampleRateDiv, func(c *Config) { c.SampleRateDiv = cfg.SampleRateDiv }},
		{"CONFIG", RegConfig, cfg.DLPF, func(c *Config) { c.DLPF = cfg.DLPF }},
		{"GYRO_CONFIG", RegGyroConfig, cfg.GyroRange << rangeShift, func(c *Config) { c.GyroRange = cfg.GyroRange }},
		{"ACCEL_CONFIG", RegAccelConfig, cfg.AccelRange << rangeShift, func(c *Config) { c.AccelRange = cfg.AccelRange }},
	}
	for _, w := range writes {
		if err := d.writeReg(w.reg, w.value); err != nil {
			return fmt.Errorf("%w: write %s: %w", ErrConfiguration, w.name, err)
		}
		d.mu.Lock()
		w.apply(&d.cfg)
		d.mu.Unlock()
	}
	return nil
}

// Applied returns the configuration the driver believes is on the chip.
func (d *Dev) Applied() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// ReadAcceleration reads ACCEL_XOUT_H..ACCEL_ZOUT_L in one write-then-read
// transaction and converts to m/s².
func (d *Dev) ReadAcceleration() (imu.Vec3, error) {
	raw, err := d.readTriple(RegAccelXOutH)
	if err != nil {
		return imu.Vec3{}, fmt.Errorf("read accel: %w", err)
	}
	scale := d.accelScale()
	return imu.Vec3{
		X: float64(raw[0]) * scale,
		Y: float64(raw[1]) * scale,
		Z: float64(raw[2]) * scale,
	}, nil
}

// ReadGyro reads the angular rate in °/s.
func (d *Dev) ReadGyro() (imu.Vec3, error) {
	raw, err := d.readTriple(RegGyroXOutH)
	if err != nil {
		return imu.Vec3{}, fmt.Errorf("read gyro: %w", err)
	}
	scale := d.gyroScale()
	return imu.Vec3{
		X: float64(raw[0]) * scale,
		Y: float64(raw[1]) * scale,
		Z: float64(raw[2]) * scale,
	}, nil
}

// ReadTemperature reads the die temperature in °C.
func (d *Dev) ReadTemperature() (float64, error) {
	buf := make([]byte, 2)
	if err := d.tx([]byte{RegTempOutH}, buf); err != nil {
		return 0, fmt.Errorf("read temperature: %w", err)
	}
	raw := int16(binary.BigEndian.Uint16(buf))
	return float64(raw)/tempLSBPerC + tempOffsetC, nil
}

// ReadRegister reads a single register.
func (d *Dev) ReadRegister(reg byte) (byte, error) {
	var b [1]byte
	if err := d.tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteRegister writes a single register. Range registers written this way
// bypass Configure, so Applied and the read scaling no longer match the chip.
func (d *Dev) WriteRegister(reg, value byte) error {
	return d.writeReg(reg, value)
}

func (d *Dev) accelScale() float64 {
	d.mu.Lock()
	r := d.cfg.AccelRange
	d.mu.Unlock()
	return StandardGravity / (accelLSBPerG / float64(int(1)<<r))
}

func (d *Dev) gyroScale() float64 {
	d.mu.Lock()
	r := d.cfg.GyroRange
	d.mu.Unlock()
	return float64(int(1)<<r) / gyroLSBPerDPS
}

func (d *Dev) readTriple(reg byte) ([3]int16, error) {
	var buf [tripleDataSize]byte
	if err := d.tx([]byte{reg}, buf[:]); err != nil {
		return [3]int16{}, err
	}
	return [3]int16{
		int16(binary.BigEndian.Uint16(buf[0:2])),
		int16(binary.BigEndian.Uint16(buf[2:4])),
		int16(binary.BigEndian.Uint16(buf[4:6])),
	}, nil
}

func (d *Dev) writeReg(reg, value byte) error {
	return d.tx([]byte{reg, value}, nil)
}

func (d *Dev) tx(w, r []byte) error {
	if err := d.c.Tx(w, r); err != nil {
		return busError(err)
	}
	return nil
}
