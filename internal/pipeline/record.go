package pipeline

import "time"

// Outcome is the per-stage result recorded for the audit trail.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeWarning Outcome = "warning"
	OutcomeSkipped Outcome = "skipped"
)

// Entry is one stage result with its timestamp.
type Entry struct {
	Stage   string
	Outcome Outcome
	Detail  string
	At      time.Time
}

// Record is the ordered per-run audit of stage outcomes. It lives for the
// duration of one process and is deliberately not persisted anywhere; the
// log file is the durable trace.
type Record struct {
	Started time.Time
	entries []Entry
}

func NewRecord() *Record {
	return &Record{Started: time.Now()}
}

func (r *Record) Append(stage string, outcome Outcome, detail string) {
	r.entries = append(r.entries, Entry{
		Stage:   stage,
		Outcome: outcome,
		Detail:  detail,
		At:      time.Now(),
	})
}

// Entries returns a copy of the recorded stage results in order.
func (r *Record) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Failed reports whether any stage recorded a fatal failure.
func (r *Record) Failed() bool {
	for _, e := range r.entries {
		if e.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}
