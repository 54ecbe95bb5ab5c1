// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/disp_monitor/internal/calibration"
	"github.com/relabs-tech/disp_monitor/internal/config"
	"github.com/relabs-tech/disp_monitor/internal/imu"
	"github.com/relabs-tech/disp_monitor/internal/motion"
	"github.com/sirupsen/logrus"
)

// Accelerometer is what the pipeline needs from the sensor driver.
type Accelerometer interface {
	imu.Sensor
	Identify() error
}

// Reporter receives every successfully integrated cycle.
type Reporter interface {
	Report(Sample) error
}

// PipelineOptions are the startup parameters of a Pipeline.
type PipelineOptions struct {
	Session            string
	CalibrationSamples int
	CalibrationPeriod  time.Duration
}

// Pipeline calibrates once and then runs the acquisition loop: read, time,
// integrate, report.
type Pipeline struct {
	dev       Accelerometer
	rt        *config.Runtime
	opts      PipelineOptions
	log       logrus.FieldLogger
	reporters []Reporter
	now       func() time.Time

	integ *motion.Integrator
	bias  calibration.Bias
	last  time.Time
	seq   uint64

	mu    sync.RWMutex // guards state for State()
	state motion.State
}

// NewPipeline returns a Pipeline reading from dev. Runtime settings are
// re-read every cycle.
func NewPipeline(dev Accelerometer, rt *config.Runtime, opts PipelineOptions, log logrus.FieldLogger, reporters ...Reporter) *Pipeline {
	return &Pipeline{
		dev:       dev,
		rt:        rt,
		opts:      opts,
		log:       log,
		reporters: reporters,
		now:       time.Now,
		integ:     motion.NewIntegrator(),
	}
}

// Run checks the device identity, calibrates, and loops until ctx is done.
// Identity and calibration failures are returned; read failures during the
// loop only skip their cycle.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.start(ctx); err != nil {
		return err
	}

	period := p.rt.Period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	p.log.Infof("acquisition loop running every %s (enabled=%t)", period, p.rt.Enabled())

	for {
		select {
		case <-ctx.Done():
			p.log.Info("acquisition loop stopped")
			return nil
		case <-ticker.C:
			p.cycle(p.now())

			if next := p.rt.Period(); next != period && next > 0 {
				ticker.Reset(next)
				p.log.Infof("acquisition period changed from %s to %s", period, next)
				period = next
			}
		}
	}
}

// Bias returns the calibration result; zero before Run calibrated.
func (p *Pipeline) Bias() calibration.Bias {
	return p.bias
}

// State returns the latest motion estimate.
func (p *Pipeline) State() motion.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) start(ctx context.Context) error {
	if err := p.dev.Identify(); err != nil {
		return fmt.Errorf("sensor identity check: %w", err)
	}
	p.log.Info("sensor identity verified")

	cal := p.log.WithField("component", "Calibration")
	cal.Infof("calibrating with %d samples every %s, keep the sensor still",
		p.opts.CalibrationSamples, p.opts.CalibrationPeriod)

	bias, err := calibration.Calibrate(ctx, p.dev, p.opts.CalibrationSamples, p.opts.CalibrationPeriod)
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	p.bias = bias

	conf := bias.StillnessConfidence()
	cal.Infof("bias: %s (std %s, confidence %.2f)", bias.Offset.CSV(), bias.StdDev.CSV(), conf)
	if conf < calibration.LowConfidence {
		cal.Warnf("low stillness confidence %.2f: the sensor probably moved during calibration", conf)
	}

	p.last = p.now()
	return nil
}

// cycle runs one acquisition step at now. A disabled cycle only moves the
// timing reference so a later start does not integrate the idle span.
func (p *Pipeline) cycle(now time.Time) {
	if !p.rt.Enabled() {
		p.last = now
		return
	}

	raw, err := p.dev.ReadAcceleration()
	dt := now.Sub(p.last).Seconds()
	p.last = now

	readout := p.log.WithField("component", "ReadOut")
	if err != nil {
		readout.Warnf("sample skipped: %v", err)
		return
	}
	if dt <= 0 {
		readout.Warnf("non-positive dt %.6fs, integrating as 0", dt)
	}

	cfg := motion.DefaultConfig().WithNoiseFloor(p.rt.NoiseFloor())

	p.mu.Lock()
	p.state = p.integ.Update(raw, p.bias.Offset, cfg, dt, p.state)
	st := p.state
	p.mu.Unlock()

	p.seq++
	s := Sample{
		Session:      p.opts.Session,
		Seq:          p.seq,
		Time:         now,
		DT:           dt,
		Accel:        st.Accel,
		Velocity:     st.Velocity,
		Displacement: st.Displacement,
	}
	for _, r := range p.reporters {
		if err := r.Report(s); err != nil {
			readout.Warnf("report: %v", err)
		}
	}
}
