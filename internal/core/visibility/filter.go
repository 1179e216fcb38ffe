// Package visibility decides which objects fall inside a viewer's cone.
//
// Everything here is pure: no storage access, no shared state. The store is
// read by the caller and the resulting slice handed to a Filter.
package visibility

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/zeusync/viewcone/internal/core/geometry"
	"github.com/zeusync/viewcone/pkg/concurrent"
)

// angleEpsilon absorbs arccos noise so objects on the view axis stay visible
// at a zero field of view. It only widens the cone near the axis.
const angleEpsilon = 1e-5

// Options tunes a Filter.
type Options struct {
	Coincident CoincidentPolicy

	// Workers above 1 evaluates chunks of ChunkSize objects in parallel.
	Workers   int
	ChunkSize int
}

func DefaultOptions() Options {
	return Options{
		Coincident: CoincidentInclude,
		Workers:    1,
		ChunkSize:  4096,
	}
}

// Summary reports what happened to the candidates of one Apply call.
type Summary struct {
	Scanned int
	Visible int
	// Skipped counts objects whose center, or distance from the viewer, is
	// not a finite number.
	Skipped int
}

type Filter struct {
	opts Options
}

func NewFilter(opts Options) *Filter {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultOptions().ChunkSize
	}
	return &Filter{opts: opts}
}

// Apply validates viewer and returns the visible objects in input order.
// It either returns every visible object or an error, never a partial set.
func (f *Filter) Apply(ctx context.Context, viewer ViewerState, objects []SpatialObject) ([]Result, Summary, error) {
	if err := viewer.Validate(); err != nil {
		return nil, Summary{}, err
	}

	var skipped atomic.Int64
	results, err := concurrent.FilterMap(ctx, objects, f.opts.Workers, f.opts.ChunkSize,
		func(obj SpatialObject) (Result, bool, error) {
			r, ok, err := f.evaluate(viewer, obj)
			if errors.Is(err, errNonFinite) {
				skipped.Add(1)
				return Result{}, false, nil
			}
			return r, ok, err
		})
	if err != nil {
		return nil, Summary{}, err
	}

	return results, Summary{
		Scanned: len(objects),
		Visible: len(results),
		Skipped: int(skipped.Load()),
	}, nil
}

// Evaluate tests a single object against an already validated viewer.
func (f *Filter) Evaluate(viewer ViewerState, obj SpatialObject) (Result, bool, error) {
	r, ok, err := f.evaluate(viewer, obj)
	if errors.Is(err, errNonFinite) {
		return Result{}, false, nil
	}
	return r, ok, err
}

var errNonFinite = errors.New("object center or distance is not finite")

func (f *Filter) evaluate(viewer ViewerState, obj SpatialObject) (Result, bool, error) {
	if !obj.Center.IsFinite() {
		return Result{}, false, errNonFinite
	}

	translated := obj.Center.Sub(viewer.Position)
	distance := translated.Norm()
	if math.IsInf(distance, 0) {
		return Result{}, false, errNonFinite
	}

	if distance == 0 {
		switch f.opts.Coincident {
		case CoincidentExclude:
			return Result{}, false, nil
		case CoincidentReject:
			return Result{}, false, &DegenerateGeometryError{ObjectID: obj.ID}
		default:
			return Result{ID: obj.ID, TranslatedPosition: translated}, true, nil
		}
	}

	angle := geometry.AngleDegrees(viewer.Direction, translated)
	if math.IsNaN(angle) {
		return Result{}, false, errNonFinite
	}
	if angle > viewer.HalfAngle() && angle > angleEpsilon {
		return Result{}, false, nil
	}

	return Result{
		ID:                 obj.ID,
		TranslatedPosition: translated,
		AngleFromViewer:    geometry.Round2(angle),
		DistanceFromViewer: geometry.Round2(distance),
	}, true, nil
}

// Visible is Apply with default options, for callers that only need the geometry.
func Visible(viewer ViewerState, objects []SpatialObject) ([]Result, error) {
	results, _, err := NewFilter(DefaultOptions()).Apply(context.Background(), viewer, objects)
	return results, err
}
