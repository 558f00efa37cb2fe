package pipeline

import (
	"sort"
	"time"

	"github.com/mauv0809/energy-feeds/internal/models"
)

// Outcome is the terminal state of a unit.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// ErrorKind classifies why a unit did not succeed.
type ErrorKind string

const (
	ErrFetch     ErrorKind = "fetch"     // transport failure, bad status or unreadable payload
	ErrEmpty     ErrorKind = "empty"     // source or normalization produced no rows
	ErrNormalize ErrorKind = "normalize" // source lacks required columns
	ErrPersist   ErrorKind = "persist"   // write rolled back
	ErrCancelled ErrorKind = "cancelled"
	ErrInternal  ErrorKind = "internal" // the unit panicked
)

// UnitResult is the outcome of one unit.
type UnitResult struct {
	Provider  models.Provider `json:"provider"`
	Kind      models.Kind     `json:"kind"`
	Year      int             `json:"year,omitempty"`
	Product   string          `json:"product,omitempty"`
	Outcome   Outcome         `json:"outcome"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
	Err       error           `json:"-"`
	Error     string          `json:"error,omitempty"`
	Status    int             `json:"http_status,omitempty"` // set on fetch failures that got a response

	RawRows    int            `json:"raw_rows"`
	Normalized int            `json:"normalized_rows"`
	Inserted   int64          `json:"inserted_rows"`
	Dropped    map[string]int `json:"dropped,omitempty"`
	Unmapped   []string       `json:"unmapped_regions,omitempty"`
	Duration   time.Duration  `json:"duration_ns"`
}

func (u *UnitResult) fail(kind ErrorKind, err error) {
	u.ErrorKind = kind
	u.Err = err
	if err != nil {
		u.Error = err.Error()
	}
	if kind == ErrCancelled {
		u.Outcome = OutcomeCancelled
	} else {
		u.Outcome = OutcomeFailed
	}
}

// Report collects every unit result of a run.
type Report struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Units      []UnitResult `json:"units"`
}

// Count returns how many units ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, u := range r.Units {
		if u.Outcome == o {
			n++
		}
	}
	return n
}

// Inserted sums rows inserted across units.
func (r Report) Inserted() int64 {
	var n int64
	for _, u := range r.Units {
		n += u.Inserted
	}
	return n
}

// Unmapped returns the distinct unmapped region labels of the run, sorted.
func (r Report) Unmapped() []string {
	seen := map[string]struct{}{}
	for _, u := range r.Units {
		for _, l := range u.Unmapped {
			seen[l] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Summary is the compact form used in logs and API listings.
type Summary struct {
	Units     int   `json:"units"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Cancelled int   `json:"cancelled"`
	Inserted  int64 `json:"inserted_rows"`
}

// Summary condenses the report.
func (r Report) Summary() Summary {
	return Summary{
		Units:     len(r.Units),
		Succeeded: r.Count(OutcomeSuccess),
		Failed:    r.Count(OutcomeFailed),
		Cancelled: r.Count(OutcomeCancelled),
		Inserted:  r.Inserted(),
	}
}
