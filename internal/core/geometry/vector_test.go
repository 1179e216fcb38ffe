package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorArithmetic(t *testing.T) {
	a := Vector3{X: 1, Y: 2, Z: 3}
	b := Vector3{X: 4, Y: -1, Z: 0.5}

	assert.Equal(t, Vector3{X: -3, Y: 3, Z: 2.5}, a.Sub(b))
	assert.Equal(t, Vector3{X: 5, Y: 1, Z: 3.5}, a.Add(b))
	assert.Equal(t, Vector3{X: 2, Y: 4, Z: 6}, a.Scale(2))
	assert.Equal(t, 3.5, a.Dot(b))
	assert.InDelta(t, math.Sqrt(14), a.Norm(), 1e-12)
}

func TestAngleDegrees(t *testing.T) {
	x := Vector3{X: 1}
	tests := []struct {
		name string
		o    Vector3
		want float64
	}{
		{"same direction", Vector3{X: 5}, 0},
		{"perpendicular", Vector3{Y: 1}, 90},
		{"opposite", Vector3{X: -2}, 180},
		{"diagonal", Vector3{X: 1, Y: 1}, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AngleDegrees(x, tt.o), 1e-9)
		})
	}
}

func TestAngleDegreesNeverNaNForParallelVectors(t *testing.T) {
	// Dot over norms lands a hair above 1 for some parallel inputs.
	v := Vector3{X: 0.1, Y: 0.2, Z: 0.3}
	for i := 1; i < 50; i++ {
		a := AngleDegrees(v, v.Scale(float64(i)*1.1))
		assert.False(t, math.IsNaN(a))
		assert.InDelta(t, 0, a, 1e-5)
	}
}

func TestNormAtExtremeMagnitudes(t *testing.T) {
	assert.Equal(t, 5.0, Vector3{X: 3, Y: 4}.Norm())
	assert.Equal(t, 1e160, Vector3{X: 1e160}.Norm())
	assert.InDelta(t, 5e200, Vector3{X: 3e200, Y: -4e200}.Norm(), 1e188)
	assert.InDelta(t, 5e-200, Vector3{Y: 3e-200, Z: 4e-200}.Norm(), 1e-212)
	assert.Equal(t, 0.0, Vector3{}.Norm())
	assert.True(t, math.IsInf(Vector3{X: math.MaxFloat64, Y: math.MaxFloat64}.Norm(), 1))
}

func TestAngleDegreesAtExtremeMagnitudes(t *testing.T) {
	x := Vector3{X: 1}
	assert.InDelta(t, 0, AngleDegrees(x, Vector3{X: 1e160}), 1e-9)
	assert.InDelta(t, 45, AngleDegrees(x, Vector3{X: 1e300, Y: 1e300}), 1e-9)
	assert.InDelta(t, 90, AngleDegrees(Vector3{Z: 1e-300}, Vector3{Y: 1e250}), 1e-9)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1e160, Round2(1e160))
	assert.Equal(t, 1.13, Round2(1.125))
	assert.Equal(t, -1.13, Round2(-1.125))
	assert.Equal(t, 90.0, Round2(89.999999))
	assert.Equal(t, 0.0, Round2(0.004))
}

func TestIsFinite(t *testing.T) {
	assert.True(t, Vector3{X: 1}.IsFinite())
	assert.False(t, Vector3{X: math.NaN()}.IsFinite())
	assert.False(t, Vector3{Z: math.Inf(-1)}.IsFinite())
}
