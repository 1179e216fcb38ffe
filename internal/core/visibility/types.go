package visibility

import (
	"fmt"
	"math"
	"strings"

	"github.com/zeusync/viewcone/internal/core/geometry"
)

// ViewerState describes the cone being queried. Direction does not need to be
// unit length.
type ViewerState struct {
	Position         geometry.Vector3 `json:"viewerPosition"`
	Direction        geometry.Vector3 `json:"viewerDirection"`
	FieldOfViewAngle float64          `json:"fieldOfViewAngle"`
}

// HalfAngle is the largest deviation from Direction, in degrees, that is still visible.
func (v ViewerState) HalfAngle() float64 {
	return v.FieldOfViewAngle / 2
}

// Validate checks the viewer geometry. It returns a *ValidationError.
func (v ViewerState) Validate() error {
	if !v.Position.IsFinite() {
		return &ValidationError{Field: "viewerPosition", Reason: "components must be finite numbers"}
	}
	if !v.Direction.IsFinite() {
		return &ValidationError{Field: "viewerDirection", Reason: "components must be finite numbers"}
	}
	if n := v.Direction.Norm(); v.Direction.IsZero() || n == 0 {
		return &ValidationError{Field: "viewerDirection", Reason: "must not be a zero-length vector"}
	} else if math.IsInf(n, 0) {
		return &ValidationError{Field: "viewerDirection", Reason: "length overflows"}
	}
	if math.IsNaN(v.FieldOfViewAngle) || v.FieldOfViewAngle < 0 || v.FieldOfViewAngle > 360 {
		return &ValidationError{
			Field:  "fieldOfViewAngle",
			Reason: fmt.Sprintf("must be within [0, 360], got %v", v.FieldOfViewAngle),
		}
	}
	return nil
}

// SpatialObject is a stored object with a 3D center.
type SpatialObject struct {
	ID     string           `json:"id" yaml:"id"`
	Center geometry.Vector3 `json:"center" yaml:"center"`
}

// Result is a visible object relative to the viewer. Angle and distance are
// rounded to two decimals; TranslatedPosition is exact.
type Result struct {
	ID                 string           `json:"id"`
	TranslatedPosition geometry.Vector3 `json:"translatedPosition"`
	AngleFromViewer    float64          `json:"angleFromViewer"`
	DistanceFromViewer float64          `json:"distanceFromViewer"`
}

// CoincidentPolicy decides what happens to an object sitting exactly at the
// viewer position, where the angle is undefined.
type CoincidentPolicy uint8

const (
	// CoincidentInclude reports the object with angle 0 and distance 0.
	CoincidentInclude CoincidentPolicy = iota
	// CoincidentExclude drops the object.
	CoincidentExclude
	// CoincidentReject fails the whole query with a *DegenerateGeometryError.
	CoincidentReject
)

func (p CoincidentPolicy) String() string {
	switch p {
	case CoincidentInclude:
		return "include"
	case CoincidentExclude:
		return "exclude"
	case CoincidentReject:
		return "reject"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

func ParseCoincidentPolicy(s string) (CoincidentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "include":
		return CoincidentInclude, nil
	case "exclude":
		return CoincidentExclude, nil
	case "reject":
		return CoincidentReject, nil
	}
	return CoincidentInclude, fmt.Errorf("unknown coincident policy %q", s)
}

func (p *CoincidentPolicy) UnmarshalText(text []byte) error {
	v, err := ParseCoincidentPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p CoincidentPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
