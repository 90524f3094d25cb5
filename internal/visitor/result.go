// File: internal/visitor/result.go
package visitor

import (
	"fmt"
	"time"
)

// Result is the outcome of a single profile visit.
type Result struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Summary describes one full run of the visit loop.
type Summary struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Total        int       `json:"total"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	// Aborted is set when a stop-on-failure run cut the URL list short.
	Aborted bool     `json:"aborted"`
	Success bool     `json:"success"`
	Results []Result `json:"results"`
	// Error carries a run-level failure (e.g. a bad cookie source) that
	// prevented the loop from visiting anything.
	Error string `json:"error,omitempty"`
}

// finalize computes the aggregate fields from the per-URL results.
func (s *Summary) finalize(finished time.Time) {
	s.FinishedAt = finished
	s.Total = len(s.Results)
	s.SuccessCount = 0
	s.FailureCount = 0
	for _, r := range s.Results {
		if r.Success {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
	}
	s.Success = s.Error == "" && !s.Aborted && s.FailureCount == 0
}

// Message renders the run outcome as a short notification text.
func (s *Summary) Message() string {
	switch {
	case s.Error != "":
		return fmt.Sprintf("linkvisitor run %s failed before visiting: %s", shortID(s.RunID), s.Error)
	case s.Aborted:
		return fmt.Sprintf("linkvisitor run %s aborted after %d visit(s): session is no longer authenticated",
			shortID(s.RunID), s.Total)
	case s.FailureCount > 0:
		return fmt.Sprintf("linkvisitor run %s finished: %d succeeded, %d failed",
			shortID(s.RunID), s.SuccessCount, s.FailureCount)
	default:
		return fmt.Sprintf("linkvisitor run %s finished: all %d profiles visited", shortID(s.RunID), s.SuccessCount)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Status is the snapshot exposed on the HTTP control surface.
type Status struct {
	Running bool     `json:"running"`
	LastRun *Summary `json:"last_run,omitempty"`
}
