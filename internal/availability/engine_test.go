package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(h, m int) time.Time {
	return time.Date(2026, 9, 14, h, m, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func TestFreeIntervalsDefaultWindow(t *testing.T) {
	engine := NewEngine(9, 18)

	free := engine.FreeIntervals(date(0, 0), nil, nil, nil, nil, nil)

	require.Len(t, free, 1)
	assert.Equal(t, date(9, 0), free[0].Start)
	assert.Equal(t, date(18, 0), free[0].End)
}

func TestFreeIntervalsDayOff(t *testing.T) {
	engine := NewEngine(9, 18)
	day := &Day{EmployeeName: "Magda", IsDayOff: true}
	blocks := []Block{{EmployeeName: "Magda", StartDT: date(10, 0), EndDT: date(11, 0)}}
	visits := []VisitSpan{{Start: date(12, 0), DurationMin: 60}}

	free := engine.FreeIntervals(date(0, 0), day, blocks, visits, nil, nil)

	assert.Empty(t, free)
}

func TestFreeIntervalsCustomWindow(t *testing.T) {
	engine := NewEngine(9, 18)
	day := &Day{EmployeeName: "Magda", StartHour: intPtr(11), EndHour: intPtr(15)}

	free := engine.FreeIntervals(date(0, 0), day, nil, nil, nil, nil)

	require.Len(t, free, 1)
	assert.Equal(t, date(11, 0), free[0].Start)
	assert.Equal(t, date(15, 0), free[0].End)
}

func TestFreeIntervalsSubtractsBlocks(t *testing.T) {
	engine := NewEngine(9, 18)
	blocks := []Block{
		{EmployeeName: "Magda", StartDT: date(12, 0), EndDT: date(13, 0)},
		{EmployeeName: "Magda", StartDT: date(16, 30), EndDT: date(17, 0)},
	}

	free := engine.FreeIntervals(date(0, 0), nil, blocks, nil, nil, nil)

	require.Len(t, free, 3)
	assert.Equal(t, Interval{Start: date(9, 0), End: date(12, 0)}, free[0])
	assert.Equal(t, Interval{Start: date(13, 0), End: date(16, 30)}, free[1])
	assert.Equal(t, Interval{Start: date(17, 0), End: date(18, 0)}, free[2])
}

// Pins buffer composition: service (before=10, after=15) together with
// employee (before=5, after=5) blocks exactly [09:50, 11:15) around a
// 10:00-11:00 visit. The wider buffer wins on each side.
func TestFreeIntervalsBufferComposition(t *testing.T) {
	engine := NewEngine(9, 18)
	visits := []VisitSpan{{Start: date(10, 0), DurationMin: 60, ServiceName: "manicure"}}
	serviceBuffers := map[string]Buffer{
		"manicure": {Scope: ScopeService, Key: "manicure", BeforeMin: 10, AfterMin: 15},
	}
	employeeBuffer := &Buffer{Scope: ScopeEmployee, Key: "Magda", BeforeMin: 5, AfterMin: 5}

	free := engine.FreeIntervals(date(0, 0), nil, nil, visits, serviceBuffers, employeeBuffer)

	require.Len(t, free, 2)
	assert.Equal(t, Interval{Start: date(9, 0), End: date(9, 50)}, free[0])
	assert.Equal(t, Interval{Start: date(11, 15), End: date(18, 0)}, free[1])
}

func TestFreeIntervalsEmployeeBufferAppliesWithoutServiceBuffer(t *testing.T) {
	engine := NewEngine(9, 18)
	visits := []VisitSpan{{Start: date(10, 0), DurationMin: 30, ServiceName: "strzyzenie"}}
	employeeBuffer := &Buffer{Scope: ScopeEmployee, Key: "Magda", BeforeMin: 5, AfterMin: 10}

	free := engine.FreeIntervals(date(0, 0), nil, nil, visits, nil, employeeBuffer)

	require.Len(t, free, 2)
	assert.Equal(t, Interval{Start: date(9, 0), End: date(9, 55)}, free[0])
	assert.Equal(t, Interval{Start: date(10, 40), End: date(18, 0)}, free[1])
}

func TestFreeIntervalsBufferClipsToWindow(t *testing.T) {
	engine := NewEngine(9, 18)
	visits := []VisitSpan{{Start: date(9, 0), DurationMin: 60, ServiceName: "manicure"}}
	serviceBuffers := map[string]Buffer{
		"manicure": {Scope: ScopeService, Key: "manicure", BeforeMin: 30, AfterMin: 0},
	}

	free := engine.FreeIntervals(date(0, 0), nil, nil, visits, serviceBuffers, nil)

	require.Len(t, free, 1)
	assert.Equal(t, Interval{Start: date(10, 0), End: date(18, 0)}, free[0])
}

func TestFreeIntervalsVisitOutsideWindowIgnored(t *testing.T) {
	engine := NewEngine(9, 18)
	visits := []VisitSpan{{Start: date(19, 0), DurationMin: 60}}

	free := engine.FreeIntervals(date(0, 0), nil, nil, visits, nil, nil)

	require.Len(t, free, 1)
	assert.Equal(t, Interval{Start: date(9, 0), End: date(18, 0)}, free[0])
}

func TestFreeIntervalsFullyBookedDay(t *testing.T) {
	engine := NewEngine(9, 11)
	visits := []VisitSpan{
		{Start: date(9, 0), DurationMin: 60},
		{Start: date(10, 0), DurationMin: 60},
	}

	free := engine.FreeIntervals(date(0, 0), nil, nil, visits, nil, nil)

	assert.Empty(t, free)
}

func TestSubtractSplitsInterval(t *testing.T) {
	base := []Interval{{Start: date(9, 0), End: date(18, 0)}}

	out := subtract(base, Interval{Start: date(12, 0), End: date(13, 0)})

	require.Len(t, out, 2)
	assert.Equal(t, date(12, 0), out[0].End)
	assert.Equal(t, date(13, 0), out[1].Start)
}
