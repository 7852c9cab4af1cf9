package biem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialEnergyClamped(t *testing.T) {
	cfg := DefaultConfig()
	ec := NewEnergyController(cfg)

	e := ec.InitialEnergy(1.0, 100) // huge bonus + entity count must still clamp to 1
	assert.Equal(t, 1.0, e)

	e = ec.InitialEnergy(0, 0)
	assert.Equal(t, cfg.EInitBase, e)
}

func TestDecayMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	ec := NewEnergyController(cfg)

	t0 := time.Now()
	e1 := ec.Decay(0.8, t0, t0)
	e2 := ec.Decay(0.8, t0, t0.Add(time.Hour))
	e3 := ec.Decay(0.8, t0, t0.Add(2*time.Hour))

	assert.LessOrEqual(t, e2, e1)
	assert.LessOrEqual(t, e3, e2)
}

func TestBoostRecallClampsAtOne(t *testing.T) {
	ec := NewEnergyController(DefaultConfig())
	assert.Equal(t, 1.0, ec.BoostRecall(0.95))
}

func TestFeedbackRejectsOutOfRange(t *testing.T) {
	ec := NewEnergyController(DefaultConfig())
	_, err := ec.Feedback(0.5, 0.6)
	require.Error(t, err)

	got, err := ec.Feedback(0.5, -0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}
