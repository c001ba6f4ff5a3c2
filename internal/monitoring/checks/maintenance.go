package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/coursehub/internal/app/maintenance"
	"github.com/charlesng35/coursehub/internal/monitoring"
)

const defaultMaintenanceMaxAge = 36 * time.Hour

// JobReporter is satisfied by *maintenance.Cleaner.
type JobReporter interface {
	JobRuns() []maintenance.JobRun
}

// Maintenance reports the purge jobs down after a failed run and degraded when a
// job has not run within maxAge. Jobs that never ran are not judged.
func Maintenance(reporter JobReporter, maxAge time.Duration, now func() time.Time) monitoring.Check {
	maxAge = chooseTimeout(maxAge, defaultMaintenanceMaxAge)
	if now == nil {
		now = time.Now
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		if reporter == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "maintenance disabled"}
		}
		runs := reporter.JobRuns()
		if len(runs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance runs yet"}
		}

		status := monitoring.StatusUp
		var problems []string
		current := now()
		for _, run := range runs {
			if run.ConsecutiveFailures > 0 {
				status = worstStatus(status, monitoring.StatusDown)
				problems = append(problems, run.Job+": "+run.LastError)
				continue
			}
			if current.Sub(run.LastRunAt) > maxAge {
				status = worstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, run.Job+": last run "+run.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(problems, "; ")}
	})
}

func worstStatus(current, candidate monitoring.ProbeStatus) monitoring.ProbeStatus {
	if current == monitoring.StatusDown || candidate == monitoring.StatusDown {
		return monitoring.StatusDown
	}
	if current == monitoring.StatusDegraded || candidate == monitoring.StatusDegraded {
		return monitoring.StatusDegraded
	}
	return monitoring.StatusUp
}
