package availability

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the interval has no length.
func (iv Interval) IsZero() bool {
	return !iv.End.After(iv.Start)
}

// VisitSpan is the slice of a booked visit the engine needs: when it starts,
// how long it runs, and which service it is for (to pick the service buffer).
type VisitSpan struct {
	Start       time.Time
	DurationMin int
	ServiceName string
}

// Engine computes free intervals for one employee on one date.
type Engine struct {
	defaultStartHour int
	defaultEndHour   int
}

// NewEngine creates an engine with the tenant's standard working window,
// applied when an employee has no availability record for the date.
func NewEngine(defaultStartHour, defaultEndHour int) *Engine {
	return &Engine{defaultStartHour: defaultStartHour, defaultEndHour: defaultEndHour}
}

// FreeIntervals reduces the working window by blocks and buffer-expanded
// visits. The result is a sequence of disjoint intervals ascending by start.
//
// Buffer composition takes the wider of the service and employee buffer on
// each side: the service buffer widens the visit's own footprint, and the
// employee buffer is the minimum gap the employee needs around any visit, so
// a larger service buffer absorbs it.
func (e *Engine) FreeIntervals(date time.Time, day *Day, blocks []Block, visits []VisitSpan, serviceBuffers map[string]Buffer, employeeBuffer *Buffer) []Interval {
	if day != nil && day.IsDayOff {
		return []Interval{}
	}

	startHour, endHour := e.defaultStartHour, e.defaultEndHour
	if day != nil {
		if day.StartHour != nil {
			startHour = *day.StartHour
		}
		if day.EndHour != nil {
			endHour = *day.EndHour
		}
	}

	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	window := Interval{
		Start: midnight.Add(time.Duration(startHour) * time.Hour),
		End:   midnight.Add(time.Duration(endHour) * time.Hour),
	}
	if window.IsZero() {
		return []Interval{}
	}

	free := []Interval{window}
	for _, block := range blocks {
		free = subtract(free, Interval{Start: block.StartDT, End: block.EndDT})
	}

	var empBefore, empAfter int
	if employeeBuffer != nil {
		empBefore, empAfter = employeeBuffer.BeforeMin, employeeBuffer.AfterMin
	}
	for _, visit := range visits {
		before, after := empBefore, empAfter
		if buf, ok := serviceBuffers[visit.ServiceName]; ok {
			before = maxInt(before, buf.BeforeMin)
			after = maxInt(after, buf.AfterMin)
		}
		occupied := Interval{
			Start: visit.Start.Add(-time.Duration(before) * time.Minute),
			End:   visit.Start.Add(time.Duration(visit.DurationMin+after) * time.Minute),
		}
		// Clip to the window rather than producing negative-length edges.
		occupied = clip(occupied, window)
		if occupied.IsZero() {
			continue
		}
		free = subtract(free, occupied)
	}

	sort.Slice(free, func(i, j int) bool { return free[i].Start.Before(free[j].Start) })
	return free
}

// subtract removes cut from every interval, splitting where needed.
func subtract(intervals []Interval, cut Interval) []Interval {
	if cut.IsZero() {
		return intervals
	}
	out := make([]Interval, 0, len(intervals)+1)
	for _, iv := range intervals {
		if !cut.Start.Before(iv.End) || !cut.End.After(iv.Start) {
			out = append(out, iv)
			continue
		}
		if cut.Start.After(iv.Start) {
			out = append(out, Interval{Start: iv.Start, End: cut.Start})
		}
		if cut.End.Before(iv.End) {
			out = append(out, Interval{Start: cut.End, End: iv.End})
		}
	}
	return out
}

func clip(iv, window Interval) Interval {
	if iv.Start.Before(window.Start) {
		iv.Start = window.Start
	}
	if iv.End.After(window.End) {
		iv.End = window.End
	}
	if iv.End.Before(iv.Start) {
		iv.End = iv.Start
	}
	return iv
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
