package broadcast

import (
	"fmt"
	"time"

	"github.com/Dicklesworthstone/chatcast/internal/db"
	"github.com/Dicklesworthstone/chatcast/internal/inject"
)

// Status is what happened to one target in one cycle.
type Status string

const (
	// StatusSubmitted means the text was filled in and a submit path fired.
	// The page's reaction is not observed.
	StatusSubmitted Status = "submitted"

	// StatusSearched means the browser pseudo-target was sent to a search.
	StatusSearched Status = "searched"

	// StatusFailed means the attempt ended with an ErrorKind.
	StatusFailed Status = "failed"

	StatusSkippedDisabled Status = "skipped_disabled"
	StatusSkippedNotReady Status = "skipped_not_ready"
)

// ErrorKind classifies a failed attempt.
type ErrorKind string

const (
	ErrorNone ErrorKind = ""

	// ErrorTargetNotFound: the input locator, or both submit paths, matched
	// nothing.
	ErrorTargetNotFound ErrorKind = "target_not_found"

	// ErrorScriptFault: evaluating a script in the session failed or panicked.
	ErrorScriptFault ErrorKind = "script_fault"

	// ErrorNoSession: the target was ready but its handle had gone away.
	ErrorNoSession ErrorKind = "no_session"
)

// Outcome is the per-target result of a cycle.
type Outcome struct {
	TargetID   string             `json:"target_id"`
	Status     Status             `json:"status"`
	Surface    inject.SurfaceKind `json:"surface"`
	SubmitPath inject.SubmitPath  `json:"submit_path,omitempty"`
	SearchURL  string             `json:"search_url,omitempty"`
	ErrorKind  ErrorKind          `json:"error_kind,omitempty"`
	Error      string             `json:"error,omitempty"`
	Duration   time.Duration      `json:"duration_ns"`
}

// Delivered reports whether the message reached the target.
func (o Outcome) Delivered() bool {
	return o.Status == StatusSubmitted || o.Status == StatusSearched
}

// Attempted reports whether the target was enabled and ready.
func (o Outcome) Attempted() bool {
	return o.Status != StatusSkippedDisabled && o.Status != StatusSkippedNotReady
}

func (o Outcome) String() string {
	if o.ErrorKind != ErrorNone {
		return fmt.Sprintf("%s: %s (%s)", o.TargetID, o.Status, o.ErrorKind)
	}
	return fmt.Sprintf("%s: %s", o.TargetID, o.Status)
}

func failed(id string, kind ErrorKind, err error) Outcome {
	o := Outcome{TargetID: id, Status: StatusFailed, ErrorKind: kind}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// Result is one completed dispatch cycle.
type Result struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Delivered counts targets the message reached.
func (r *Result) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Delivered() {
			n++
		}
	}
	return n
}

// Attempted counts targets that were enabled and ready.
func (r *Result) Attempted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Attempted() {
			n++
		}
	}
	return n
}

// Outcome returns the outcome for id.
func (r *Result) Outcome(id string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.TargetID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// Records converts the result into dispatch log rows.
func (r *Result) Records() []db.DispatchRecord {
	recs := make([]db.DispatchRecord, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		errText := o.Error
		if errText == "" {
			errText = string(o.ErrorKind)
		}
		recs = append(recs, db.DispatchRecord{
			CycleID:    r.CycleID,
			TargetID:   o.TargetID,
			Status:     string(o.Status),
			Surface:    surfaceLabel(o),
			SubmitPath: string(o.SubmitPath),
			Error:      errText,
			Duration:   o.Duration,
			CreatedAt:  r.StartedAt,
		})
	}
	return recs
}

func surfaceLabel(o Outcome) string {
	if !o.Attempted() || o.Status == StatusSearched {
		return ""
	}
	return o.Surface.String()
}
