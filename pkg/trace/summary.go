package trace

import (
	"time"

	"github.com/spf13/cast"
)

// Summary condenses a trace into the run outcome and one record per step.
type Summary struct {
	RunID    string
	Script   string
	Started  time.Time
	Status   string // empty while the run has not completed
	Duration time.Duration
	Error    string
	Steps    []StepRecord
}

// StepRecord is one step as it appears in a trace.
type StepRecord struct {
	StepID   string
	Kind     string
	Depth    int // nesting under sub-flow and prompt steps
	Status   StepStatus
	Duration time.Duration
	Error    string
}

// Summarize pairs step_start and step_complete events. Disabled steps
// appear only as a skipped step_complete and are recorded at the current
// nesting depth.
func Summarize(events []Event) *Summary {
	s := &Summary{}
	var open []int

	for _, evt := range events {
		if s.RunID == "" {
			s.RunID = evt.RunID
		}
		switch evt.Type {
		case EventRunStart:
			s.Script = cast.ToString(evt.Data["script"])
			s.Started = evt.Timestamp

		case EventStepStart:
			s.Steps = append(s.Steps, StepRecord{
				StepID: cast.ToString(evt.Data["step_id"]),
				Kind:   cast.ToString(evt.Data["type"]),
				Depth:  len(open),
			})
			open = append(open, len(s.Steps)-1)

		case EventStepComplete:
			id := cast.ToString(evt.Data["step_id"])
			i := -1
			if n := len(open); n > 0 && s.Steps[open[n-1]].StepID == id {
				i = open[n-1]
				open = open[:n-1]
			} else {
				s.Steps = append(s.Steps, StepRecord{StepID: id, Depth: len(open)})
				i = len(s.Steps) - 1
			}
			rec := &s.Steps[i]
			rec.Status = StepStatus(cast.ToString(evt.Data["status"]))
			rec.Duration = parseDuration(evt.Data["duration"])
			rec.Error = cast.ToString(evt.Data["error"])

		case EventRunComplete:
			s.Status = cast.ToString(evt.Data["status"])
			s.Duration = parseDuration(evt.Data["duration"])
			s.Error = cast.ToString(evt.Data["error"])
		}
	}
	return s
}

// Counts returns the number of steps per status.
func (s *Summary) Counts() map[StepStatus]int {
	out := make(map[StepStatus]int)
	for _, r := range s.Steps {
		out[r.Status]++
	}
	return out
}

func parseDuration(v any) time.Duration {
	if d, ok := v.(time.Duration); ok {
		return d
	}
	d, err := time.ParseDuration(cast.ToString(v))
	if err != nil {
		return 0
	}
	return d
}
