package sensors

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/disp_monitor/internal/imu"
)

// Sim is a simulated MPU6050 that generates smooth acceleration values, for
// running the estimator without hardware. It reads gravity on Z plus Bias,
// holds still for Still, then oscillates on X.
type Sim struct {
	Bias      imu.Vec3
	Still     time.Duration // quiet period covering the calibration
	Amplitude float64       // m/s² on X
	Freq      float64       // Hz

	mu    sync.Mutex
	start time.Time
	now   func() time.Time
	cfg   Config
}

// NewSim returns a simulator with a small bias and a 0.5 Hz, 1 m/s²
// oscillation starting after two seconds.
func NewSim() *Sim {
	return &Sim{
		Bias:      imu.Vec3{X: 0.05, Y: -0.03, Z: 0.02},
		Still:     2 * time.Second,
		Amplitude: 1,
		Freq:      0.5,
		start:     time.Now(),
		now:       time.Now,
		cfg:       DefaultConfig,
	}
}

func (s *Sim) String() string {
	return "MPU6050{sim}"
}

func (s *Sim) Identify() error {
	return nil
}

// Configure validates and records cfg like the real device; values are
// always reported in m/s² so the range has no effect.
func (s *Sim) Configure(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Applied returns the last accepted configuration.
func (s *Sim) Applied() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Sim) ReadAcceleration() (imu.Vec3, error) {
	s.mu.Lock()
	elapsed := s.now().Sub(s.start)
	s.mu.Unlock()

	a := s.Bias
	a.Z += StandardGravity
	if elapsed > s.Still {
		t := (elapsed - s.Still).Seconds()
		a.X += s.Amplitude * math.Sin(2*math.Pi*s.Freq*t)
	}
	return a, nil
}

func (s *Sim) ReadTemperature() (float64, error) {
	return tempOffsetC, nil
}
