// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	accelRangeG  = []int{2, 4, 8, 16}
	gyroRangeDPS = []int{250, 500, 1000, 2000}
)

// Open initializes the host drivers, opens the named I2C bus ("" selects the
// first one) and wraps it in a TimeoutBus. No transaction is issued.
// The caller owns the returned bus and must close it.
func Open(busName string, addr uint16, timeout time.Duration) (*Dev, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}

	raw, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("open I2C bus %q: %w", busName, err)
	}

	bus := NewTimeoutBus(raw, timeout)
	return New(bus, addr), bus, nil
}

// Setup runs the power-up sequence and applies cfg, logging the resulting
// ranges and output rate.
func Setup(d *Dev, cfg Config, log logrus.FieldLogger) error {
	if err := d.Init(); err != nil {
		return fmt.Errorf("%s: initialization: %w", d, err)
	}
	log.Infof("%s: WHO_AM_I ok, awake on PLL clock", d)

	if err := d.Configure(cfg); err != nil {
		return fmt.Errorf("%s: %w", d, err)
	}
	log.Infof("%s: accelerometer range set to %d (±%dg)", d, cfg.AccelRange, accelRangeG[cfg.AccelRange])
	log.Infof("%s: gyroscope range set to %d (±%d°/s)", d, cfg.GyroRange, gyroRangeDPS[cfg.GyroRange])
	log.Infof("%s: DLPF config set to %d", d, cfg.DLPF)
	log.Infof("%s: sample rate divider set to %d (output rate: %d Hz)", d, cfg.SampleRateDiv, cfg.OutputRateHz())
	return nil
}
