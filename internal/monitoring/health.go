// Package monitoring runs dependency probes for the health endpoints.
package monitoring

import (
	"context"
	"errors"
	"time"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results for a liveness or readiness evaluation.
type HealthReport struct {
	Success   bool          `json:"success"`
	Status    ProbeStatus   `json:"status"`
	Checks    []ProbeResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Check is a single named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck constructs a health check with the provided name and function.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager coordinates liveness and readiness probes.
type HealthManager struct {
	livenessChecks  []Check
	readinessChecks []Check
	now             func() time.Time
}

// NewHealthManager constructs an empty health manager.
func NewHealthManager() *HealthManager {
	return &HealthManager{now: time.Now}
}

// RegisterLiveness appends a liveness probe. Unnamed checks are ignored.
func (m *HealthManager) RegisterLiveness(check Check) {
	if check.Name == "" {
		return
	}
	m.livenessChecks = append(m.livenessChecks, check)
}

// RegisterReadiness appends a readiness probe. Unnamed checks are ignored.
func (m *HealthManager) RegisterReadiness(check Check) {
	if check.Name == "" {
		return
	}
	m.readinessChecks = append(m.readinessChecks, check)
}

// EvaluateLiveness executes all configured liveness checks.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, m.livenessChecks)
}

// EvaluateReadiness executes all configured readiness checks.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, m.readinessChecks)
}

func (m *HealthManager) evaluate(ctx context.Context, checks []Check) HealthReport {
	report := HealthReport{
		Success:   true,
		Status:    StatusUp,
		Checks:    make([]ProbeResult, 0, len(checks)),
		CheckedAt: m.now().UTC(),
	}

	for _, check := range checks {
		result := runCheck(ctx, check)
		report.Checks = append(report.Checks, result)

		switch result.Status {
		case StatusDown:
			report.Success = false
			report.Status = StatusDown
		case StatusDegraded:
			report.Success = false
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			details := "panic recovered"
			switch v := rec.(type) {
			case string:
				details = v
			case error:
				details = v.Error()
			}
			result = ProbeResult{Status: StatusDown, Details: details}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()

	return check.Run(ctx)
}

// ResultFromError converts an error into a ProbeResult. Context cancellation and
// deadlines degrade the component instead of marking it down.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return ProbeResult{Component: component, Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return ProbeResult{
		Component: component,
		Status:    status,
		Details:   err.Error(),
		Duration:  duration,
	}
}
