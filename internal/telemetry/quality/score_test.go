package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestLoRaWANScore(t *testing.T) {
	assert.Equal(t, 0.6667, LoRaWAN(f(-90), f(5)))
}

func TestLoRaWANDefaultsScoreZero(t *testing.T) {
	assert.Equal(t, 0.0, LoRaWAN(nil, nil))
	assert.Equal(t, 0.0, LoRaWAN(f(-120), f(-20)))
}

func TestLoRaWANClampsOutOfRange(t *testing.T) {
	// Stronger than the scale top still caps at 1.
	assert.Equal(t, 1.0, LoRaWAN(f(-30), f(20)))
	// Weaker than the scale floor still bottoms at 0.
	assert.Equal(t, 0.0, LoRaWAN(f(-150), f(-40)))
}

func TestNBIoTScore(t *testing.T) {
	assert.Equal(t, 0.68, NBIoT(f(80), f(50)))
}

func TestNBIoTDefaults(t *testing.T) {
	// Missing signal scores 0, missing battery assumes full charge.
	assert.Equal(t, 0.4, NBIoT(nil, nil))
}

func TestNBIoTClamps(t *testing.T) {
	assert.Equal(t, 1.0, NBIoT(f(120), f(150)))
	assert.Equal(t, 0.0, NBIoT(f(-5), f(-10)))
}
