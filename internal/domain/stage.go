package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a named point on an event's reminder timeline.
type Stage string

const (
	Stage2WeeksBefore    Stage = "2_weeks_before"
	Stage1WeekBefore     Stage = "1_week_before"
	Stage3DaysBefore     Stage = "3_days_before"
	Stage1DayBefore      Stage = "1_day_before"
	Stage12HoursBefore   Stage = "12_hours_before"
	Stage1HourBefore     Stage = "1_hour_before"
	Stage15MinutesBefore Stage = "15_minutes_before"
	StageImmediate       Stage = "immediate"
	StageAtEventStart    Stage = "at_event_start"
)

// Stages lists the vocabulary in timeline order.
var Stages = []Stage{
	Stage2WeeksBefore,
	Stage1WeekBefore,
	Stage3DaysBefore,
	Stage1DayBefore,
	Stage12HoursBefore,
	Stage1HourBefore,
	Stage15MinutesBefore,
	StageImmediate,
	StageAtEventStart,
}

var stageOffsets = map[Stage]time.Duration{
	Stage2WeeksBefore:    14 * 24 * time.Hour,
	Stage1WeekBefore:     7 * 24 * time.Hour,
	Stage3DaysBefore:     3 * 24 * time.Hour,
	Stage1DayBefore:      24 * time.Hour,
	Stage12HoursBefore:   12 * time.Hour,
	Stage1HourBefore:     time.Hour,
	Stage15MinutesBefore: 15 * time.Minute,
	StageImmediate:       0,
	StageAtEventStart:    0,
}

func (s Stage) Valid() bool {
	_, ok := stageOffsets[s]
	return ok
}

// Offset is how far before the event start the stage fires.
// immediate and at_event_start both report zero.
func (s Stage) Offset() time.Duration { return stageOffsets[s] }

// Before reports whether s is one of the "*_before" reminder stages.
func (s Stage) Before() bool { return strings.HasSuffix(string(s), "_before") }

// ParseStages validates raw interval names.
// Unknown names are rejected as a whole; duplicates are dropped keeping first occurrence.
func ParseStages(raw []string) ([]Stage, error) {
	out := make([]Stage, 0, len(raw))
	seen := make(map[Stage]struct{}, len(raw))
	var bad []string
	for _, r := range raw {
		s := Stage(strings.TrimSpace(r))
		if !s.Valid() {
			bad = append(bad, r)
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, strings.Join(bad, ", "))
	}
	return out, nil
}
