// Package health probes the external services a pipeline run depends on.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Errors map[string]string
}

type namedChecker struct {
	name    string
	checker Checker
}

// Service coordinates health checks.
type Service struct {
	checks  []namedChecker
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Service. Each check gets timeout (0 means no limit).
func New(timeout time.Duration, logger *zap.Logger) *Service {
	return &Service{timeout: timeout, logger: logger}
}

// Add registers a component. Nil checkers are skipped.
func (s *Service) Add(name string, c Checker) *Service {
	if c != nil {
		s.checks = append(s.checks, namedChecker{name: name, checker: c})
	}
	return s
}

// Check runs the registered checks in registration order.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{
		Checks: make(map[string]CheckResult, len(s.checks)),
		Errors: make(map[string]string),
	}

	failed := 0
	for _, c := range s.checks {
		err := s.run(ctx, c.checker)
		if err != nil {
			failed++
			r.Checks[c.name] = CheckError
			r.Errors[c.name] = err.Error()
			s.logger.Warn("Health check failed", zap.String("component", c.name), zap.Error(err))
			continue
		}
		r.Checks[c.name] = CheckOK
		s.logger.Debug("Health check passed", zap.String("component", c.name))
	}

	switch {
	case failed == 0:
		r.Status = Healthy
	case failed == len(s.checks):
		r.Status = Unhealthy
	default:
		r.Status = Degraded
	}
	return r
}

func (s *Service) run(ctx context.Context, c Checker) error {
	if s.timeout <= 0 {
		return c.HealthCheck(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return c.HealthCheck(ctx)
}
