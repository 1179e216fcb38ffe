// Package query runs the visibleObjects query against an injected store.
package query

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/zeusync/viewcone/internal/core/observability/log"
	"github.com/zeusync/viewcone/internal/core/storage"
	"github.com/zeusync/viewcone/internal/core/visibility"
)

// Config tunes the service.
type Config struct {
	QueryTimeout time.Duration
	Filter       visibility.Options
}

// Service answers visibility queries. It is safe for concurrent use; nothing
// is cached between calls.
type Service struct {
	store  storage.Store
	filter *visibility.Filter
	config Config
	logger log.Log

	stats counters
}

type counters struct {
	queries           atomic.Int64
	invalid           atomic.Int64
	storeFailures     atomic.Int64
	degenerate        atomic.Int64
	canceled          atomic.Int64
	objectsScanned    atomic.Int64
	objectsReturned   atomic.Int64
	objectsSkipped    atomic.Int64
	totalQueryLatency atomic.Int64
}

// Stats is a snapshot of the service counters.
type Stats struct {
	Queries            int64         `json:"queries"`
	ValidationFailures int64         `json:"validationFailures"`
	StoreFailures      int64         `json:"storeFailures"`
	DegenerateRejects  int64         `json:"degenerateRejects"`
	Canceled           int64         `json:"canceled"`
	ObjectsScanned     int64         `json:"objectsScanned"`
	ObjectsReturned    int64         `json:"objectsReturned"`
	ObjectsSkipped     int64         `json:"objectsSkipped"`
	AverageLatency     time.Duration `json:"averageLatencyNs"`
}

func NewService(store storage.Store, config Config, logger log.Log) *Service {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 5 * time.Second
	}
	return &Service{
		store:  store,
		filter: visibility.NewFilter(config.Filter),
		config: config,
		logger: logger.With(log.String("component", "query")),
	}
}

// VisibleObjects returns every stored object inside the viewer's cone, in
// store order. The store read and the evaluation share one QueryTimeout
// deadline. Failures are one of *visibility.ValidationError,
// *visibility.DegenerateGeometryError or *storage.UnavailableError, or
// context.Canceled when the caller went away.
func (s *Service) VisibleObjects(ctx context.Context, viewer visibility.ViewerState) ([]visibility.Result, error) {
	started := time.Now()
	s.stats.queries.Add(1)
	logger := s.logger.WithContext(ctx)

	if err := viewer.Validate(); err != nil {
		s.stats.invalid.Add(1)
		logger.Debug("Rejected viewer", log.Error(err))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	objects, err := s.loadObjects(ctx)
	if err != nil {
		if canceled(ctx) {
			return nil, s.abandoned(ctx, logger)
		}
		s.stats.storeFailures.Add(1)
		logger.Warn("Object store read failed", log.Error(err))
		return nil, err
	}

	results, summary, err := s.filter.Apply(ctx, viewer, objects)
	if err != nil {
		switch {
		case canceled(ctx):
			return nil, s.abandoned(ctx, logger)
		case errors.Is(err, visibility.ErrDegenerateGeometry):
			s.stats.degenerate.Add(1)
		case errors.Is(err, context.DeadlineExceeded):
			s.stats.storeFailures.Add(1)
			err = &storage.UnavailableError{Op: "evaluate", Err: err}
		}
		logger.Warn("Visibility filter failed", log.Error(err))
		return nil, err
	}

	elapsed := time.Since(started)
	s.stats.objectsScanned.Add(int64(summary.Scanned))
	s.stats.objectsReturned.Add(int64(summary.Visible))
	s.stats.objectsSkipped.Add(int64(summary.Skipped))
	s.stats.totalQueryLatency.Add(int64(elapsed))

	if summary.Skipped > 0 {
		logger.Warn("Skipped objects with non-finite centers", log.Int("skipped", summary.Skipped))
	}
	logger.Debug("Visibility query served",
		log.Int("scanned", summary.Scanned),
		log.Int("visible", summary.Visible),
		log.Float64("fov", viewer.FieldOfViewAngle),
		log.Duration("elapsed", elapsed))

	return results, nil
}

// canceled reports whether ctx ended because its parent was canceled rather
// than by the query deadline.
func canceled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func (s *Service) abandoned(ctx context.Context, logger log.Log) error {
	s.stats.canceled.Add(1)
	logger.Debug("Visibility query abandoned by caller")
	return ctx.Err()
}

// loadObjects reads the store and always releases the session.
func (s *Service) loadObjects(ctx context.Context) (objects []visibility.SpatialObject, err error) {
	session, err := s.store.Open(ctx)
	if err != nil {
		return nil, asUnavailable("open session", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			s.logger.Warn("Failed to release store session", log.Error(closeErr))
		}
	}()

	objects, err = session.Objects(ctx)
	if err != nil {
		return nil, asUnavailable("list objects", err)
	}
	return objects, nil
}

// Ping checks the store within the query timeout.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()
	return asUnavailable("ping", s.store.Ping(ctx))
}

func (s *Service) Stats() Stats {
	st := Stats{
		Queries:            s.stats.queries.Load(),
		ValidationFailures: s.stats.invalid.Load(),
		StoreFailures:      s.stats.storeFailures.Load(),
		DegenerateRejects:  s.stats.degenerate.Load(),
		Canceled:           s.stats.canceled.Load(),
		ObjectsScanned:     s.stats.objectsScanned.Load(),
		ObjectsReturned:    s.stats.objectsReturned.Load(),
		ObjectsSkipped:     s.stats.objectsSkipped.Load(),
	}
	served := st.Queries - st.ValidationFailures - st.StoreFailures - st.DegenerateRejects - st.Canceled
	if served > 0 {
		st.AverageLatency = time.Duration(s.stats.totalQueryLatency.Load() / served)
	}
	return st
}

// asUnavailable makes sure every store error is classified as transient.
func asUnavailable(op string, err error) error {
	if err == nil || errors.Is(err, storage.ErrUnavailable) {
		return err
	}
	return &storage.UnavailableError{Op: op, Err: err}
}
