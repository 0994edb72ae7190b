package alarm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/foundation/normalization"
)

// Weekday is a day index in the canonical Monday-first space: Monday=0 .. Sunday=6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return weekdayNames[d]
}

func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

// WeekdayOf converts Go's Sunday-first enumeration (Sunday=0) into the canonical space.
func WeekdayOf(wd time.Weekday) Weekday {
	return Weekday((int(wd) + 6) % 7)
}

// Weekdays is a set of canonical weekdays stored as a bitmask. The zero value is the
// empty set, which marks a one-time alarm.
type Weekdays uint8

const (
	EveryDay    Weekdays = 0b1111111
	WorkingDays Weekdays = 0b0011111
	Weekend     Weekdays = 0b1100000
)

// NewWeekdays builds a set from day indices, ignoring anything outside 0..6.
func NewWeekdays(days ...Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w = w.With(d)
	}
	return w
}

func (w Weekdays) Has(d Weekday) bool {
	return d.Valid() && w&(1<<uint(d)) != 0
}

func (w Weekdays) With(d Weekday) Weekdays {
	if !d.Valid() {
		return w
	}
	return w | 1<<uint(d)
}

func (w Weekdays) Empty() bool { return w&EveryDay == 0 }

// Days lists the members in canonical order.
func (w Weekdays) Days() []Weekday {
	var out []Weekday
	for d := Monday; d <= Sunday; d++ {
		if w.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// String renders the canonical index list, e.g. "0,1,2". This is the persisted form.
func (w Weekdays) String() string {
	days := w.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

// ParseWeekdays reads the persisted index list form. Empty input is the empty set.
func ParseWeekdays(s string) (Weekdays, error) {
	var w Weekdays
	s = strings.TrimSpace(s)
	if s == "" {
		return w, nil
	}
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || !Weekday(n).Valid() {
			return 0, fmt.Errorf("invalid weekday index %q", part)
		}
		w = w.With(Weekday(n))
	}
	return w, nil
}

var daySetNormalizer = normalization.NewNormalizer(map[string]Weekdays{
	"":         0,
	"once":     0,
	"daily":    EveryDay,
	"everyday": EveryDay,
	"weekdays": WorkingDays,
	"weekends": Weekend,
}, 0)

var dayNameNormalizer = normalization.NewNormalizer(func() map[string]Weekday {
	m := make(map[string]Weekday, len(weekdayNames))
	for i, n := range weekdayNames {
		m[n] = Weekday(i)
	}
	return m
}(), Monday)

// ParseWeekdayNames accepts short English names ("mon,wed") or the shortcuts
// "daily", "weekdays" and "weekends". It is the CLI input form.
func ParseWeekdayNames(s string) (Weekdays, error) {
	if set, err := daySetNormalizer.NormalizeWithError(s); err == nil {
		return set, nil
	}
	var w Weekdays
	for _, part := range strings.Split(s, ",") {
		d, err := dayNameNormalizer.NormalizeWithError(part)
		if err != nil {
			return 0, errors.WrapError(err, errors.CategoryValidation, fmt.Sprintf("unknown weekday %q", strings.TrimSpace(part))).Build()
		}
		w = w.With(d)
	}
	return w, nil
}

// Describe returns the human label used by list views.
func (w Weekdays) Describe() string {
	switch w & EveryDay {
	case 0:
		return "One time"
	case EveryDay:
		return "Every day"
	case WorkingDays:
		return "Weekdays"
	case Weekend:
		return "Weekends"
	}
	days := w.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	return strings.Join(names, ", ")
}

// MarshalJSON encodes the set as a sorted index list so API clients never see the bitmask.
func (w Weekdays) MarshalJSON() ([]byte, error) {
	days := w.Days()
	idx := make([]int, len(days))
	for i, d := range days {
		idx[i] = int(d)
	}
	return json.Marshal(idx)
}

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var idx []int
	if err := json.Unmarshal(b, &idx); err != nil {
		return err
	}
	var out Weekdays
	for _, i := range idx {
		if !Weekday(i).Valid() {
			return fmt.Errorf("invalid weekday index %d", i)
		}
		out = out.With(Weekday(i))
	}
	*w = out
	return nil
}
