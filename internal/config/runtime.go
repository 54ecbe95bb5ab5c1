package config

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// SensorSettings is the MPU6050 measurement setup that can change at runtime.
type SensorSettings struct {
	AccelRange    byte
	GyroRange     byte
	DLPF          byte
	SampleRateDiv byte
}

// Runtime is the small block of settings the command task writes and the
// acquisition task reads. Each field is updated independently; there is no
// cross-field consistency.
type Runtime struct {
	period     atomic.Int64  // nanoseconds
	noiseFloor atomic.Uint64 // float64 bits
	enabled    atomic.Bool

	mu     sync.Mutex
	sensor SensorSettings
}

// NewRuntime seeds a Runtime from the static configuration.
func NewRuntime(c *Config) *Runtime {
	r := &Runtime{}
	r.SetPeriod(c.UpdatePeriod())
	r.SetNoiseFloor(c.AccelNoiseFloor)
	r.SetEnabled(c.StartEnabled)
	r.SetSensor(c.Sensor())
	return r
}

// Period is the acquisition period.
func (r *Runtime) Period() time.Duration {
	return time.Duration(r.period.Load())
}

// SetPeriod stores d; callers reject non-positive values.
func (r *Runtime) SetPeriod(d time.Duration) {
	r.period.Store(int64(d))
}

// NoiseFloor is the accelerometer noise gate in m/s².
func (r *Runtime) NoiseFloor() float64 {
	return math.Float64frombits(r.noiseFloor.Load())
}

func (r *Runtime) SetNoiseFloor(v float64) {
	r.noiseFloor.Store(math.Float64bits(v))
}

// Enabled reports whether acquisition cycles run.
func (r *Runtime) Enabled() bool {
	return r.enabled.Load()
}

func (r *Runtime) SetEnabled(v bool) {
	r.enabled.Store(v)
}

// Sensor returns the last requested sensor setup. It is the requested one,
// not necessarily the applied one: a failed reconfiguration keeps it.
func (r *Runtime) Sensor() SensorSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sensor
}

func (r *Runtime) SetSensor(s SensorSettings) {
	r.mu.Lock()
	r.sensor = s
	r.mu.Unlock()
}
