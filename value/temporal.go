package value

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TemporalKind distinguishes the FHIR temporal primitives.
type TemporalKind int

const (
	TemporalDate TemporalKind = iota
	TemporalDateTime
	TemporalTime
	TemporalInstant
)

// Precision is the finest calendar unit a temporal value carries.
type Precision int

const (
	PrecisionYear Precision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionMinute
	PrecisionSecond
	PrecisionMillisecond
)

// String returns the precision name.
func (p Precision) String() string {
	switch p {
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	case PrecisionMinute:
		return "minute"
	case PrecisionSecond:
		return "second"
	case PrecisionMillisecond:
		return "millisecond"
	default:
		return "unknown"
	}
}

// Temporal is a date, dateTime, time, or instant with an explicit
// precision. Missing components are zero and not significant beyond the
// precision.
type Temporal struct {
	Kind      TemporalKind
	Precision Precision

	Year, Month, Day     int
	Hour, Minute, Second int
	Milli                int

	// OffsetMin is the timezone offset in minutes east of UTC.
	// Valid only when HasOffset is true.
	HasOffset bool
	OffsetMin int
}

// ParseTemporal parses a FHIR temporal literal. Accepted forms:
//
//	2019
//	2019-03
//	2019-03-15
//	2019-03-15T10:30[:45[.123]][Z|+hh:mm|-hh:mm]
//	T10:30[:45[.123]]
func ParseTemporal(s string) (Temporal, error) {
	if s == "" {
		return Temporal{}, fmt.Errorf("empty temporal literal")
	}

	if s[0] == 'T' {
		return parseTime(s[1:])
	}

	datePart := s
	rest := ""
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		datePart, rest = s[:i], s[i+1:]
	}

	t, err := parseDate(datePart)
	if err != nil {
		return Temporal{}, err
	}
	if rest == "" {
		return t, nil
	}

	if t.Precision != PrecisionDay {
		return Temporal{}, fmt.Errorf("time component requires a full date: %q", s)
	}

	tod, err := parseTime(splitOffset(&t, rest))
	if err != nil {
		return Temporal{}, err
	}
	t.Kind = TemporalDateTime
	t.Precision = tod.Precision
	t.Hour, t.Minute, t.Second, t.Milli = tod.Hour, tod.Minute, tod.Second, tod.Milli
	return t, nil
}

// splitOffset strips a trailing Z or +/-hh:mm offset from rest, recording
// it on t, and returns the remaining time-of-day text.
func splitOffset(t *Temporal, rest string) string {
	if strings.HasSuffix(rest, "Z") {
		t.HasOffset = true
		t.OffsetMin = 0
		return rest[:len(rest)-1]
	}
	for i := len(rest) - 1; i > 0; i-- {
		c := rest[i]
		if c == '+' || c == '-' {
			off := rest[i:]
			if len(off) != 6 || off[3] != ':' {
				return rest
			}
			h, err1 := strconv.Atoi(off[1:3])
			m, err2 := strconv.Atoi(off[4:6])
			if err1 != nil || err2 != nil {
				return rest
			}
			t.HasOffset = true
			t.OffsetMin = h*60 + m
			if c == '-' {
				t.OffsetMin = -t.OffsetMin
			}
			return rest[:i]
		}
		if c == ':' || c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			break
		}
	}
	return rest
}

func parseDate(s string) (Temporal, error) {
	t := Temporal{Kind: TemporalDate}

	switch len(s) {
	case 4:
		y, err := strconv.Atoi(s)
		if err != nil {
			return t, fmt.Errorf("invalid year: %q", s)
		}
		t.Year, t.Precision = y, PrecisionYear
		return t, nil
	case 7:
		if s[4] != '-' {
			return t, fmt.Errorf("invalid date: %q", s)
		}
		y, err1 := strconv.Atoi(s[:4])
		m, err2 := strconv.Atoi(s[5:7])
		if err1 != nil || err2 != nil || m < 1 || m > 12 {
			return t, fmt.Errorf("invalid date: %q", s)
		}
		t.Year, t.Month, t.Precision = y, m, PrecisionMonth
		return t, nil
	case 10:
		if s[4] != '-' || s[7] != '-' {
			return t, fmt.Errorf("invalid date: %q", s)
		}
		y, err1 := strconv.Atoi(s[:4])
		m, err2 := strconv.Atoi(s[5:7])
		d, err3 := strconv.Atoi(s[8:10])
		if err1 != nil || err2 != nil || err3 != nil || m < 1 || m > 12 || d < 1 || d > 31 {
			return t, fmt.Errorf("invalid date: %q", s)
		}
		// Reject dates the calendar normalizes away, e.g. Feb 30
		if norm := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC); norm.Day() != d {
			return t, fmt.Errorf("invalid date: %q", s)
		}
		t.Year, t.Month, t.Day, t.Precision = y, m, d, PrecisionDay
		return t, nil
	}
	return t, fmt.Errorf("invalid date: %q", s)
}

func parseTime(s string) (Temporal, error) {
	t := Temporal{Kind: TemporalTime}

	if len(s) < 5 || s[2] != ':' {
		return t, fmt.Errorf("invalid time: %q", s)
	}
	h, err1 := strconv.Atoi(s[:2])
	m, err2 := strconv.Atoi(s[3:5])
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return t, fmt.Errorf("invalid time: %q", s)
	}
	t.Hour, t.Minute, t.Precision = h, m, PrecisionMinute

	if len(s) == 5 {
		return t, nil
	}
	if len(s) < 8 || s[5] != ':' {
		return t, fmt.Errorf("invalid time: %q", s)
	}
	sec, err := strconv.Atoi(s[6:8])
	if err != nil || sec > 60 {
		return t, fmt.Errorf("invalid time: %q", s)
	}
	t.Second, t.Precision = sec, PrecisionSecond

	if len(s) == 8 {
		return t, nil
	}
	if s[8] != '.' || len(s) < 10 {
		return t, fmt.Errorf("invalid time: %q", s)
	}
	frac := s[9:]
	if len(frac) > 3 {
		frac = frac[:3]
	}
	for len(frac) < 3 {
		frac += "0"
	}
	ms, err := strconv.Atoi(frac)
	if err != nil {
		return t, fmt.Errorf("invalid time: %q", s)
	}
	t.Milli, t.Precision = ms, PrecisionMillisecond
	return t, nil
}

// Compare orders two temporals. The second return is false when the values
// are incomparable: different kinds (time vs date), or precisions that
// disagree while all components at the coarser precision match. FHIR
// treats the latter as "equal at the coarser precision, otherwise
// undecidable".
func (t Temporal) Compare(o Temporal) (int, bool) {
	if (t.Kind == TemporalTime) != (o.Kind == TemporalTime) {
		return 0, false
	}

	a, b := t, o
	if a.HasOffset && b.HasOffset && a.OffsetMin != b.OffsetMin {
		a = a.toUTC()
		b = b.toUTC()
	}

	common := a.Precision
	if b.Precision < common {
		common = b.Precision
	}

	fields := [][2]int{
		{a.Year, b.Year},
		{a.Month, b.Month},
		{a.Day, b.Day},
		{a.Hour*60 + a.Minute, b.Hour*60 + b.Minute},
		{a.Second, b.Second},
		{a.Milli, b.Milli},
	}
	for p := PrecisionYear; p <= common; p++ {
		av, bv := fields[p][0], fields[p][1]
		if av < bv {
			return -1, true
		}
		if av > bv {
			return 1, true
		}
	}

	if t.Precision == o.Precision {
		return 0, true
	}
	return 0, false
}

// toUTC normalizes a value with a non-zero offset to UTC. Only meaningful
// at minute precision or finer.
func (t Temporal) toUTC() Temporal {
	if !t.HasOffset || t.OffsetMin == 0 || t.Precision < PrecisionMinute {
		return t
	}
	tt := t.asTime().UTC()
	out := t
	out.Year, out.Month, out.Day = tt.Year(), int(tt.Month()), tt.Day()
	out.Hour, out.Minute, out.Second = tt.Hour(), tt.Minute(), tt.Second()
	out.Milli = tt.Nanosecond() / 1e6
	out.OffsetMin = 0
	return out
}

// asTime converts to a time.Time, defaulting missing components.
func (t Temporal) asTime() time.Time {
	loc := time.UTC
	if t.HasOffset && t.OffsetMin != 0 {
		loc = time.FixedZone("", t.OffsetMin*60)
	}
	y, m, d := t.Year, t.Month, t.Day
	if m == 0 {
		m = 1
	}
	if d == 0 {
		d = 1
	}
	return time.Date(y, time.Month(m), d, t.Hour, t.Minute, t.Second, t.Milli*1e6, loc)
}

// Add shifts the temporal by n calendar units. It reports false when the
// unit is unknown or does not apply to the value's kind. The result keeps
// the receiver's precision.
func (t Temporal) Add(n int64, unit string) (Temporal, bool) {
	unit = strings.TrimSuffix(unit, "s")

	if t.Kind == TemporalTime {
		var dur time.Duration
		switch unit {
		case "hour":
			dur = time.Duration(n) * time.Hour
		case "minute":
			dur = time.Duration(n) * time.Minute
		case "second":
			dur = time.Duration(n) * time.Second
		case "millisecond":
			dur = time.Duration(n) * time.Millisecond
		default:
			return Temporal{}, false
		}
		base := time.Date(2000, 1, 1, t.Hour, t.Minute, t.Second, t.Milli*1e6, time.UTC)
		tt := base.Add(dur)
		out := t
		out.Hour, out.Minute, out.Second = tt.Hour(), tt.Minute(), tt.Second()
		out.Milli = tt.Nanosecond() / 1e6
		return out, true
	}

	var tt time.Time
	base := t.asTime()
	switch unit {
	case "year":
		tt = base.AddDate(int(n), 0, 0)
	case "month":
		tt = base.AddDate(0, int(n), 0)
	case "week":
		tt = base.AddDate(0, 0, int(n)*7)
	case "day":
		tt = base.AddDate(0, 0, int(n))
	case "hour":
		tt = base.Add(time.Duration(n) * time.Hour)
	case "minute":
		tt = base.Add(time.Duration(n) * time.Minute)
	case "second":
		tt = base.Add(time.Duration(n) * time.Second)
	case "millisecond":
		tt = base.Add(time.Duration(n) * time.Millisecond)
	default:
		return Temporal{}, false
	}

	out := t
	out.Year, out.Month, out.Day = tt.Year(), int(tt.Month()), tt.Day()
	out.Hour, out.Minute, out.Second = tt.Hour(), tt.Minute(), tt.Second()
	out.Milli = tt.Nanosecond() / 1e6
	return out, true
}

// String renders the temporal in its literal form, without the @ prefix.
func (t Temporal) String() string {
	var sb strings.Builder

	if t.Kind == TemporalTime {
		sb.WriteByte('T')
		t.renderTime(&sb)
		return sb.String()
	}

	fmt.Fprintf(&sb, "%04d", t.Year)
	if t.Precision >= PrecisionMonth {
		fmt.Fprintf(&sb, "-%02d", t.Month)
	}
	if t.Precision >= PrecisionDay {
		fmt.Fprintf(&sb, "-%02d", t.Day)
	}
	if t.Precision >= PrecisionMinute {
		sb.WriteByte('T')
		t.renderTime(&sb)
		if t.HasOffset {
			if t.OffsetMin == 0 {
				sb.WriteByte('Z')
			} else {
				off := t.OffsetMin
				sign := byte('+')
				if off < 0 {
					sign = '-'
					off = -off
				}
				fmt.Fprintf(&sb, "%c%02d:%02d", sign, off/60, off%60)
			}
		}
	}
	return sb.String()
}

func (t Temporal) renderTime(sb *strings.Builder) {
	fmt.Fprintf(sb, "%02d:%02d", t.Hour, t.Minute)
	if t.Precision >= PrecisionSecond {
		fmt.Fprintf(sb, ":%02d", t.Second)
	}
	if t.Precision >= PrecisionMillisecond {
		fmt.Fprintf(sb, ".%03d", t.Milli)
	}
}
