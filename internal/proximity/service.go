// Package proximity resolves feature-count queries against an unreliable
// geodata service by walking an explicit attempt schedule: primary, primary
// retry, then each mirror, with growing pre-attempt delays. Any success
// short-circuits the rest of the plan.
package proximity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/harborview-capital/regionscan/internal/model"
	"github.com/harborview-capital/regionscan/pkg/overpass"
)

// Service executes proximity queries through the failover schedule.
type Service struct {
	client overpass.Client
	plan   []Attempt

	// sleepFunc is swapped in tests to observe delays without waiting.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewService builds a proximity service over a prebuilt schedule.
func NewService(client overpass.Client, plan []Attempt) *Service {
	return &Service{
		client:    client,
		plan:      plan,
		sleepFunc: sleepCtx,
	}
}

// Attempts returns the schedule length, the exact number of failures needed
// before a query is declared unavailable.
func (s *Service) Attempts() int {
	return len(s.plan)
}

// Count resolves one feature-count query. It returns the first successful
// count, the context's error if the caller gave up, or an UnavailableError
// once the whole schedule is exhausted.
func (s *Service) Count(ctx context.Context, q model.ProximityQuery) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}

	var failures []*AttemptFailure
	for i, att := range s.plan {
		if att.Delay > 0 {
			if err := s.sleepFunc(ctx, att.Delay); err != nil {
				return 0, err
			}
		}

		count, err := s.countOnce(ctx, att, q)
		if err == nil {
			zap.L().Debug("proximity query resolved",
				zap.String("query", q.String()),
				zap.String("endpoint", att.Endpoint),
				zap.Int("attempt", i+1),
				zap.Int("count", count),
			)
			return count, nil
		}

		// The caller's context trumps the schedule: cancellation is not an
		// attempt failure.
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		failure := &AttemptFailure{Attempt: i + 1, Endpoint: att.Endpoint, Err: err}
		failures = append(failures, failure)
		zap.L().Warn("proximity attempt failed",
			zap.String("query", q.String()),
			zap.String("endpoint", att.Endpoint),
			zap.Int("attempt", i+1),
			zap.Int("remaining", len(s.plan)-i-1),
			zap.Error(err),
		)
	}

	return 0, &UnavailableError{Query: q, Failures: failures}
}

func (s *Service) countOnce(ctx context.Context, att Attempt, q model.ProximityQuery) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, att.Timeout)
	defer cancel()

	return s.client.Count(attemptCtx, att.Endpoint, overpass.Query{
		Lat:          q.Center.Lat,
		Lon:          q.Center.Lon,
		RadiusMeters: int(q.RadiusKm * 1000),
		Feature:      overpass.Feature(q.Feature),
		TimeoutSecs:  int(att.Timeout / time.Second),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
