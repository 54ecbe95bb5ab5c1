// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/disp_monitor/internal/config"
	"github.com/relabs-tech/disp_monitor/internal/imu"
	"github.com/relabs-tech/disp_monitor/internal/motion"
	"github.com/relabs-tech/disp_monitor/internal/sensors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var still = imu.Vec3{X: 0, Y: 0, Z: 9.81}

// fakeAccel returns still until next is set; read n is 1-based.
type fakeAccel struct {
	mu          sync.Mutex
	identifyErr error
	reads       int
	next        func(n int) (imu.Vec3, error)
}

func (f *fakeAccel) Identify() error { return f.identifyErr }

func (f *fakeAccel) ReadAcceleration() (imu.Vec3, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.next != nil {
		return f.next(f.reads)
	}
	return still, nil
}

func (f *fakeAccel) setNext(fn func(n int) (imu.Vec3, error)) {
	f.mu.Lock()
	f.next = fn
	f.mu.Unlock()
}

func (f *fakeAccel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

type recordReporter struct {
	mu      sync.Mutex
	samples []Sample
	err     error
}

func (r *recordReporter) Report(s Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return r.err
}

func (r *recordReporter) all() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

func newTestPipeline(t *testing.T, dev *fakeAccel, reporters ...Reporter) (*Pipeline, *config.Runtime, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.Default()
	cfg.StartEnabled = true
	rt := config.NewRuntime(cfg)

	p := NewPipeline(dev, rt, PipelineOptions{
		Session:            "test-session",
		CalibrationSamples: 10,
		CalibrationPeriod:  0,
	}, logger, reporters...)
	return p, rt, hook
}

func hasMessage(hook *test.Hook, level logrus.Level, substr string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestPipelineIdentifyFailureIsFatal(t *testing.T) {
	t.Parallel()

	dev := &fakeAccel{identifyErr: fmt.Errorf("%w: got 0x70", sensors.ErrDeviceMismatch)}
	p, _, _ := newTestPipeline(t, dev)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sensors.ErrDeviceMismatch)
	assert.Zero(t, dev.count(), "no sample must be read after a failed identity check")
}

func TestPipelineCalibrationFailureIsFatal(t *testing.T) {
	t.Parallel()

	dev := &fakeAccel{next: func(n int) (imu.Vec3, error) {
		if n == 4 {
			return imu.Vec3{}, fmt.Errorf("%w: read 0x3B", sensors.ErrBusTimeout)
		}
		return still, nil
	}}
	p, _, _ := newTestPipeline(t, dev)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sensors.ErrBusTimeout)
	assert.Equal(t, 4, dev.count())
}

func TestPipelineStartCalibrates(t *testing.T) {
	t.Parallel()

	dev := &fakeAccel{}
	p, _, hook := newTestPipeline(t, dev)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	require.NoError(t, p.start(context.Background()))
	assert.Equal(t, still, p.Bias().Offset)
	assert.Equal(t, 10, p.Bias().Samples)
	assert.Equal(t, base, p.last)
	assert.True(t, hasMessage(hook, logrus.InfoLevel, "bias: 0.00,0.00,9.81"))
	assert.False(t, hasMessage(hook, logrus.WarnLevel, "low stillness confidence"))
}

func TestPipelineCycle(t *testing.T) {
	t.Parallel()

	t.Run("integrates and reports", func(t *testing.T) {
		t.Parallel()

		dev := &fakeAccel{}
		rec := &recordReporter{}
		p, _, _ := newTestPipeline(t, dev, rec)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		p.now = func() time.Time { return base }
		require.NoError(t, p.start(context.Background()))

		dev.setNext(func(int) (imu.Vec3, error) { return imu.Vec3{X: 1, Y: 0, Z: 9.81}, nil })
		p.cycle(base.Add(100 * time.Millisecond))
		p.cycle(base.Add(200 * time.Millisecond))

		samples := rec.all()
		require.Len(t, samples, 2)

		first := samples[0]
		assert.Equal(t, "test-session", first.Session)
		assert.Equal(t, uint64(1), first.Seq)
		assert.InDelta(t, 0.1, first.DT, 1e-12)
		assert.Equal(t, imu.Vec3{X: 1}, first.Accel)
		assert.InDelta(t, 0.1, first.Velocity.X, 1e-12)
		assert.InDelta(t, 0.01, first.Displacement.X, 1e-12)

		second := samples[1]
		assert.Equal(t, uint64(2), second.Seq)
		assert.InDelta(t, 0.2, second.Velocity.X, 1e-12)
		assert.InDelta(t, 0.03, second.Displacement.X, 1e-12)
		assert.Zero(t, second.Velocity.Y)
		assert.Zero(t, second.Displacement.Z)

		assert.Equal(t, motion.State{
			Accel:        second.Accel,
			Velocity:     second.Velocity,
			Displacement: second.Displacement,
		}, p.State())
	})

	t.Run("failed read skips the cycle", func(t *testing.T) {
		t.Parallel()

		dev := &fakeAccel{}
		rec := &recordReporter{}
		p, _, hook := newTestPipeline(t, dev, rec)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		p.now = func() time.Time { return base }
		require.NoError(t, p.start(context.Background()))

		dev.setNext(func(int) (imu.Vec3, error) { return imu.Vec3{X: 1, Y: 0, Z: 9.81}, nil })
		p.cycle(base.Add(100 * time.Millisecond))
		before := p.State()

		dev.setNext(func(int) (imu.Vec3, error) {
			return imu.Vec3{}, fmt.Errorf("%w: nack", sensors.ErrBusTransaction)
		})
		p.cycle(base.Add(200 * time.Millisecond))

		assert.Equal(t, before, p.State(), "a failed read must not change the state")
		assert.Len(t, rec.all(), 1)
		assert.True(t, hasMessage(hook, logrus.WarnLevel, "sample skipped"))

		dev.setNext(func(int) (imu.Vec3, error) { return still, nil })
		p.cycle(base.Add(250 * time.Millisecond))
		samples := rec.all()
		require.Len(t, samples, 2)
		assert.InDelta(t, 0.05, samples[1].DT, 1e-12, "dt restarts at the failed read")
		assert.Equal(t, uint64(2), samples[1].Seq)
	})

	t.Run("failed read does not count as a still cycle", func(t *testing.T) {
		t.Parallel()

		dev := &fakeAccel{}
		p, _, _ := newTestPipeline(t, dev)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		p.now = func() time.Time { return base }
		require.NoError(t, p.start(context.Background()))

		tick := 0
		step := func(v imu.Vec3, err error) {
			dev.setNext(func(int) (imu.Vec3, error) { return v, err })
			tick++
			p.cycle(base.Add(time.Duration(tick) * 50 * time.Millisecond))
		}
		nack := fmt.Errorf("%w: nack", sensors.ErrBusTransaction)

		for range 3 {
			step(still, nil)
		}
		require.Equal(t, [3]int{3, 3, 3}, p.integ.StillCounts())

		step(imu.Vec3{}, nack)
		assert.Equal(t, [3]int{3, 3, 3}, p.integ.StillCounts())

		step(imu.Vec3{X: 1, Y: 0, Z: 9.81}, nil)
		require.Zero(t, p.integ.StillCounts()[0])
		require.NotZero(t, p.State().Velocity.X)

		for i := 1; i < motion.HoldCycles; i++ {
			step(still, nil)
			step(imu.Vec3{}, nack)
		}
		assert.Equal(t, motion.HoldCycles-1, p.integ.StillCounts()[0])
		assert.NotZero(t, p.State().Velocity.X, "velocity held until the last still cycle")

		step(still, nil)
		assert.Equal(t, motion.HoldCycles, p.integ.StillCounts()[0])
		assert.Zero(t, p.State().Velocity.X)
	})

	t.Run("disabled cycle only moves the time reference", func(t *testing.T) {
		t.Parallel()

		dev := &fakeAccel{}
		rec := &recordReporter{}
		p, rt, _ := newTestPipeline(t, dev, rec)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		p.now = func() time.Time { return base }
		require.NoError(t, p.start(context.Background()))
		reads := dev.count()

		rt.SetEnabled(false)
		p.cycle(base.Add(10 * time.Second))
		assert.Equal(t, reads, dev.count())
		assert.Empty(t, rec.all())

		rt.SetEnabled(true)
		p.cycle(base.Add(10*time.Second + 50*time.Millisecond))
		samples := rec.all()
		require.Len(t, samples, 1)
		assert.InDelta(t, 0.05, samples[0].DT, 1e-12)
	})

	t.Run("non-positive dt is logged", func(t *testing.T) {
		t.Parallel()

		dev := &fakeAccel{}
		rec := &recordReporter{}
		p, _, hook := newTestPipeline(t, dev, rec)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		p.now = func() time.Time { return base }
		require.NoError(t, p.start(context.Background()))

		dev.setNext(func(int) (imu.Vec3, error) { return imu.Vec3{X: 1, Y: 0, Z: 9.81}, nil })
		p.cycle(base.Add(-time.Millisecond))

		samples := rec.all()
		require.Len(t, samples, 1)
		assert.Zero(t, samples[0].Velocity.X)
		assert.True(t, hasMessage(hook, logrus.WarnLevel, "non-positive dt"))
	})

	t.Run("noise floor is read every cycle", func(t *testing.T) {
		t.Parallel()

		dev := &fakeAccel{}
		rec := &recordReporter{}
		p, rt, _ := newTestPipeline(t, dev, rec)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		p.now = func() time.Time { return base }
		require.NoError(t, p.start(context.Background()))

		dev.setNext(func(int) (imu.Vec3, error) { return imu.Vec3{X: 1, Y: 0, Z: 9.81}, nil })
		rt.SetNoiseFloor(2)
		p.cycle(base.Add(100 * time.Millisecond))
		rt.SetNoiseFloor(0.5)
		p.cycle(base.Add(200 * time.Millisecond))

		samples := rec.all()
		require.Len(t, samples, 2)
		assert.Zero(t, samples[0].Accel.X)
		assert.Equal(t, 1.0, samples[1].Accel.X)
	})

	t.Run("reporter errors do not stop other reporters", func(t *testing.T) {
		t.Parallel()

		dev := &fakeAccel{}
		failing := &recordReporter{err: errors.New("broker down")}
		rec := &recordReporter{}
		p, _, hook := newTestPipeline(t, dev, failing, rec)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		p.now = func() time.Time { return base }
		require.NoError(t, p.start(context.Background()))

		p.cycle(base.Add(50 * time.Millisecond))
		assert.Len(t, failing.all(), 1)
		assert.Len(t, rec.all(), 1)
		assert.True(t, hasMessage(hook, logrus.WarnLevel, "broker down"))
	})
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	dev := &fakeAccel{}
	rec := &recordReporter{}
	p, rt, hook := newTestPipeline(t, dev, rec)
	rt.SetPeriod(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.all()) >= 3 }, 2*time.Second, time.Millisecond)

	rt.SetPeriod(2 * time.Millisecond)
	require.Eventually(t, func() bool {
		return hasMessage(hook, logrus.InfoLevel, "acquisition period changed from 1ms to 2ms")
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	samples := rec.all()
	for i, s := range samples {
		assert.Equal(t, uint64(i+1), s.Seq)
	}
}
