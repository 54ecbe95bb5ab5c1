package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSim(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	s := NewSim()
	s.start = start
	s.now = func() time.Time { return now }

	require.NoError(t, s.Identify())

	a, err := s.ReadAcceleration()
	require.NoError(t, err)
	assert.Equal(t, 0.05, a.X, "still during the quiet period")
	assert.Equal(t, -0.03, a.Y)
	assert.InDelta(t, 9.82665, a.Z, 1e-9)

	// A quarter period after the quiet period: sin(π/2) = 1.
	now = start.Add(s.Still + 500*time.Millisecond)
	a, err = s.ReadAcceleration()
	require.NoError(t, err)
	assert.InDelta(t, 1.05, a.X, 1e-9)
	assert.Equal(t, -0.03, a.Y)

	temp, err := s.ReadTemperature()
	require.NoError(t, err)
	assert.InDelta(t, 36.53, temp, 1e-9)
}

func TestSimConfigure(t *testing.T) {
	t.Parallel()

	s := NewSim()
	require.NoError(t, s.Configure(Config{AccelRange: 3, GyroRange: 1, DLPF: 6, SampleRateDiv: 4}))
	assert.Equal(t, byte(3), s.Applied().AccelRange)

	err := s.Configure(Config{AccelRange: 4})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, byte(3), s.Applied().AccelRange)
}
