// Package params holds the adjustable inputs of a service-area query and
// keeps interval x repetition within the configured ceiling.
package params

import (
	"time"
)

// TravelDirection selects whether zones are reached from or toward the facility.
type TravelDirection string

const (
	FromFacility TravelDirection = "from-facility"
	ToFacility   TravelDirection = "to-facility"
)

// DateMode selects a calendar date or a generic weekday.
type DateMode string

const (
	ModeDate      DateMode = "date"
	ModeDayOfWeek DateMode = "dayOfWeek"
)

// Limits are the validated numeric bounds from settings.
type Limits struct {
	IntervalMin   int
	IntervalMax   int
	IntervalStep  int
	RepetitionMin int
	RepetitionMax int
	MaxTravelTime int
}

// Clock is an hours:minutes time of day. Valid is false when the input was
// empty or not numeric.
type Clock struct {
	Hours   int
	Minutes int
	Valid   bool
}

// Query is an immutable snapshot of the query inputs.
type Query struct {
	TravelDirection TravelDirection
	DateMode        DateMode
	// Date is the calendar date in DateMode "date"; zero means unset.
	Date       time.Time
	DayOfWeek  int
	Clock      Clock
	Interval   int
	Repetition int
}

// Breaks returns the travel-time thresholds [interval, 2*interval, ..., repetition*interval].
func (q Query) Breaks() []int {
	if q.Interval <= 0 || q.Repetition <= 0 {
		return nil
	}
	breaks := make([]int, q.Repetition)
	for i := range breaks {
		breaks[i] = (i + 1) * q.Interval
	}
	return breaks
}

// DayOfWeekAnchor returns the generic date for weekday idx (0 = Monday).
// Network-analysis services read 1990-01-01..07 as "any Monday..Sunday".
func DayOfWeekAnchor(idx int, loc *time.Location) time.Time {
	return time.Date(1990, time.January, idx+1, 0, 0, 0, 0, loc)
}

// TimeOfDay combines the active date with the clock, truncated to the minute.
// It returns false when the active date is absent.
func (q Query) TimeOfDay(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	var day time.Time
	switch q.DateMode {
	case ModeDayOfWeek:
		if q.DayOfWeek < 0 || q.DayOfWeek > 6 {
			return time.Time{}, false
		}
		day = DayOfWeekAnchor(q.DayOfWeek, loc)
	default:
		if q.Date.IsZero() {
			return time.Time{}, false
		}
		day = q.Date
	}
	hours, minutes := 0, 0
	if q.Clock.Valid {
		hours, minutes = q.Clock.Hours, q.Clock.Minutes
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, hours, minutes, 0, 0, loc), true
}

// Model owns the current Query. Every setter returns the new, consistent snapshot.
type Model struct {
	limits Limits
	loc    *time.Location
	q      Query
}

// New returns a model seeded with q. The seed is normalised against limits.
func New(limits Limits, loc *time.Location, q Query) *Model {
	if loc == nil {
		loc = time.Local
	}
	if q.TravelDirection == "" {
		q.TravelDirection = FromFacility
	}
	if q.DateMode == "" {
		q.DateMode = ModeDate
	}
	m := &Model{limits: limits.normalised(), loc: loc, q: q}
	m.q.Repetition = m.clampRepetition(q.Repetition)
	m.SetInterval(q.Interval)
	return m
}

// Query returns the current snapshot.
func (m *Model) Query() Query { return m.q }

// Limits returns the bounds in force.
func (m *Model) Limits() Limits { return m.limits }

// Location returns the zone used for TimeOfDay.
func (m *Model) Location() *time.Location { return m.loc }

// Breaks returns the thresholds of the current query.
func (m *Model) Breaks() []int { return m.q.Breaks() }

// TimeOfDay returns the time of day of the current query.
func (m *Model) TimeOfDay() (time.Time, bool) { return m.q.TimeOfDay(m.loc) }

// SetInterval sets the interval and, if interval x repetition would exceed
// the ceiling, lowers repetition to the largest count that fits.
func (m *Model) SetInterval(v int) Query {
	l := m.limits
	v = clamp(v, l.IntervalMin, l.IntervalMax)
	if v > l.MaxTravelTime {
		v = floorToStep(l.MaxTravelTime, l.IntervalStep, l.IntervalMin)
	}
	m.q.Interval = v
	if m.q.Repetition*v > l.MaxTravelTime {
		m.q.Repetition = clamp(l.MaxTravelTime/v, l.RepetitionMin, l.RepetitionMax)
	}
	m.enforce(false)
	return m.q
}

// SetRepetition sets the zone count and, if interval x repetition would
// exceed the ceiling, lowers interval to the largest step multiple that fits.
func (m *Model) SetRepetition(v int) Query {
	l := m.limits
	m.q.Repetition = m.clampRepetition(v)
	if m.q.Interval*m.q.Repetition > l.MaxTravelTime {
		next := floorToStep(l.MaxTravelTime/m.q.Repetition, l.IntervalStep, 0)
		m.q.Interval = clamp(next, l.IntervalMin, l.IntervalMax)
	}
	m.enforce(true)
	return m.q
}

// SetDate selects a calendar date; a zero time unsets it.
func (m *Model) SetDate(d time.Time) Query {
	if d.IsZero() {
		m.q.Date = time.Time{}
		return m.q
	}
	y, mo, day := d.Date()
	m.q.Date = time.Date(y, mo, day, 0, 0, 0, 0, m.loc)
	return m.q
}

// SetDateString parses YYYY-MM-DD. Unparseable input unsets the date.
func (m *Model) SetDateString(s string) Query {
	d, err := time.ParseInLocation(time.DateOnly, s, m.loc)
	if err != nil {
		return m.SetDate(time.Time{})
	}
	return m.SetDate(d)
}

// SetDayOfWeek selects the weekday used in day-of-week mode.
func (m *Model) SetDayOfWeek(idx int) Query {
	m.q.DayOfWeek = clamp(idx, 0, 6)
	return m.q
}

// SetTimeOfDay sets hours and minutes. Out-of-range values make the clock invalid.
func (m *Model) SetTimeOfDay(h, min int) Query {
	if h < 0 || h > 23 || min < 0 || min > 59 {
		m.q.Clock = Clock{}
		return m.q
	}
	m.q.Clock = Clock{Hours: h, Minutes: min, Valid: true}
	return m.q
}

// SetTimeOfDayString parses HH:MM. Empty or malformed input invalidates the clock.
func (m *Model) SetTimeOfDayString(s string) Query {
	t, err := time.Parse("15:04", s)
	if err != nil {
		m.q.Clock = Clock{}
		return m.q
	}
	return m.SetTimeOfDay(t.Hour(), t.Minute())
}

// SetTravelDirection switches the travel direction. Unknown values are ignored.
func (m *Model) SetTravelDirection(dir TravelDirection) Query {
	switch dir {
	case FromFacility, ToFacility:
		m.q.TravelDirection = dir
	}
	return m.q
}

// SetDateMode switches between calendar date and weekday. Unknown values are ignored.
func (m *Model) SetDateMode(mode DateMode) Query {
	switch mode {
	case ModeDate, ModeDayOfWeek:
		m.q.DateMode = mode
	}
	return m.q
}

// SetLimits replaces the bounds and re-normalises the current query.
func (m *Model) SetLimits(l Limits) Query {
	m.limits = l.normalised()
	m.q.Repetition = m.clampRepetition(m.q.Repetition)
	return m.SetInterval(m.q.Interval)
}

// enforce is the last line of defence for interval*repetition <= ceiling
// when clamping to the bounds pushed the recomputed field back over it.
// The field the caller just set keeps its value when possible.
func (m *Model) enforce(keepRepetition bool) {
	l := m.limits
	for m.q.Interval*m.q.Repetition > l.MaxTravelTime {
		switch {
		case keepRepetition && m.q.Interval > l.IntervalMin:
			m.q.Interval = max(l.IntervalMin, m.q.Interval-l.IntervalStep)
		case m.q.Repetition > l.RepetitionMin:
			m.q.Repetition--
		case m.q.Interval > l.IntervalMin:
			m.q.Interval--
		default:
			return
		}
	}
}

func (m *Model) clampRepetition(v int) int {
	return clamp(v, m.limits.RepetitionMin, m.limits.RepetitionMax)
}

func (l Limits) normalised() Limits {
	if l.IntervalStep <= 0 {
		l.IntervalStep = 1
	}
	if l.IntervalMin <= 0 {
		l.IntervalMin = l.IntervalStep
	}
	if l.IntervalMax < l.IntervalMin {
		l.IntervalMax = l.IntervalMin
	}
	if l.RepetitionMin < 1 {
		l.RepetitionMin = 1
	}
	if l.RepetitionMax < l.RepetitionMin {
		l.RepetitionMax = l.RepetitionMin
	}
	// The smallest query must fit under the ceiling.
	if l.MaxTravelTime < l.IntervalMin*l.RepetitionMin {
		l.MaxTravelTime = l.IntervalMin * l.RepetitionMin
	}
	return l
}

// floorToStep rounds v down to a multiple of step, never below floor or step.
func floorToStep(v, step, floor int) int {
	r := (v / step) * step
	if r < step {
		r = step
	}
	if r < floor {
		r = floor
	}
	return r
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
