// Package geometry holds the vector math behind the view cone test.
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Vector3 is a point or direction in 3D space.
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func FromR3(v r3.Vector) Vector3 {
	return Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

func (v Vector3) R3() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return FromR3(v.R3().Sub(o.R3()))
}

func (v Vector3) Add(o Vector3) Vector3 {
	return FromR3(v.R3().Add(o.R3()))
}

func (v Vector3) Scale(f float64) Vector3 {
	return FromR3(v.R3().Mul(f))
}

func (v Vector3) Dot(o Vector3) float64 {
	return v.R3().Dot(o.R3())
}

// Norm is the Euclidean length. Components are scaled by the largest one
// first, so the result only overflows when the length itself exceeds
// math.MaxFloat64.
func (v Vector3) Norm() float64 {
	m := math.Max(math.Abs(v.X), math.Max(math.Abs(v.Y), math.Abs(v.Z)))
	if m == 0 || math.IsInf(m, 0) || math.IsNaN(m) {
		return m
	}
	return m * (r3.Vector{X: v.X / m, Y: v.Y / m, Z: v.Z / m}).Norm()
}

// Unit returns v divided by its length. The zero vector is returned as is.
func (v Vector3) Unit() Vector3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return Vector3{X: v.X / n, Y: v.Y / n, Z: v.Z / n}
}

func (v Vector3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vector3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// AngleDegrees returns the angle between v and o in degrees, in [0, 180].
// Both vectors are normalized before the dot product, which keeps very
// large or very small components finite. The cosine is clamped to [-1, 1]
// before arccos so rounding error never yields NaN. Callers must ensure
// neither vector has zero length.
func AngleDegrees(v, o Vector3) float64 {
	cos := v.Unit().Dot(o.Unit())
	return RadToDeg(math.Acos(Clamp(cos, -1, 1)))
}

func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Round2 rounds half away from zero to two decimals. Values too large to
// carry a fractional part are returned unchanged.
func Round2(x float64) float64 {
	if math.Abs(x) >= 1<<52 {
		return x
	}
	return math.Round(x*100) / 100
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
