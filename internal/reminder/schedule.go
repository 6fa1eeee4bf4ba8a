package reminder

import (
	"time"

	"reminderd/internal/domain"
)

// Planned is one computed reminder time.
type Planned struct {
	Stage domain.Stage
	At    time.Time
}

// Calculate returns one Planned per stage in input order, dropping repeats.
//
// "*_before" stages fire at start minus their offset, at_event_start at start,
// and immediate at now. Times already in the past are still returned; the
// selector picks them up on the next run. Unknown stages are skipped; callers
// validate with domain.ParseStages first.
func Calculate(start, now time.Time, stages []domain.Stage) []Planned {
	start = start.UTC()
	out := make([]Planned, 0, len(stages))
	seen := make(map[domain.Stage]struct{}, len(stages))
	for _, s := range stages {
		if !s.Valid() {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}

		at := start.Add(-s.Offset())
		if s == domain.StageImmediate {
			at = now.UTC()
		}
		out = append(out, Planned{Stage: s, At: at})
	}
	return out
}
