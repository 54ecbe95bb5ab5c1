package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/relabs-tech/disp_monitor/internal/sensors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	identifyErr error
	temp        float64
	tempErr     error
}

func (p *fakeProbe) Identify() error                   { return p.identifyErr }
func (p *fakeProbe) ReadTemperature() (float64, error) { return p.temp, p.tempErr }

func newTestMonitor(probe HealthProbe) (*HealthMonitor, *test.Hook) {
	logger, hook := test.NewNullLogger()
	m := NewHealthMonitor(probe, time.Minute, "sess", logger)
	m.started = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return m.started.Add(90 * time.Second) }
	return m, hook
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	t.Run("sensor ok", func(t *testing.T) {
		t.Parallel()
		m, _ := newTestMonitor(&fakeProbe{temp: 31.5})

		r := m.Check()
		assert.Equal(t, "sess", r.Session)
		assert.Equal(t, 90.0, r.UptimeSec)
		assert.True(t, r.SensorOK)
		assert.Empty(t, r.SensorError)
		require.NotNil(t, r.TemperatureC)
		assert.Equal(t, 31.5, *r.TemperatureC)
		assert.NotZero(t, r.HeapSys)
		assert.Positive(t, r.Goroutines)
	})

	t.Run("sensor missing", func(t *testing.T) {
		t.Parallel()
		m, hook := newTestMonitor(&fakeProbe{identifyErr: fmt.Errorf("read WHO_AM_I: %w", sensors.ErrBusTimeout)})

		r := m.Check()
		assert.False(t, r.SensorOK)
		assert.Contains(t, r.SensorError, "WHO_AM_I")
		assert.Nil(t, r.TemperatureC)

		m.report(r)
		assert.True(t, hasMessage(hook, logrus.ErrorLevel, "MPU6050 not responding"))
	})

	t.Run("temperature failure is not fatal", func(t *testing.T) {
		t.Parallel()
		m, hook := newTestMonitor(&fakeProbe{tempErr: sensors.ErrBusTransaction})

		r := m.Check()
		assert.True(t, r.SensorOK)
		assert.Nil(t, r.TemperatureC)
		assert.True(t, hasMessage(hook, logrus.WarnLevel, "temperature read failed"))
	})
}

func TestHealthReportPublishes(t *testing.T) {
	t.Parallel()

	m, hook := newTestMonitor(&fakeProbe{temp: 25})
	b := newFakeBroker()
	m.PublishTo(b, "dispmon/health")

	m.report(m.Check())

	pubs := b.sent()
	require.Len(t, pubs, 1)
	assert.Equal(t, "dispmon/health", pubs[0].topic)
	assert.True(t, pubs[0].retained)

	var got HealthReport
	require.NoError(t, json.Unmarshal(pubs[0].payload, &got))
	assert.True(t, got.SensorOK)
	require.NotNil(t, got.TemperatureC)
	assert.Equal(t, 25.0, *got.TemperatureC)

	assert.True(t, hasMessage(hook, logrus.InfoLevel, "Uptime: 1m30s"))
	assert.True(t, hasMessage(hook, logrus.InfoLevel, "MPU6050 OK"))
}

func TestHealthReportPublishFailures(t *testing.T) {
	t.Parallel()

	t.Run("timeout is logged", func(t *testing.T) {
		t.Parallel()
		m, hook := newTestMonitor(&fakeProbe{temp: 25})
		b := newFakeBroker()
		b.pending = true
		m.PublishTo(b, "dispmon/health")

		m.report(m.Check())

		require.Len(t, b.sent(), 1)
		assert.True(t, hasMessage(hook, logrus.WarnLevel, "MQTT publish dispmon/health: timed out after 1s"))
	})

	t.Run("broker error is logged", func(t *testing.T) {
		t.Parallel()
		m, hook := newTestMonitor(&fakeProbe{temp: 25})
		b := newFakeBroker()
		b.pubErr = errors.New("not connected")
		m.PublishTo(b, "dispmon/health")

		m.report(m.Check())

		assert.True(t, hasMessage(hook, logrus.WarnLevel, "MQTT publish error (health): not connected"))
	})
}
