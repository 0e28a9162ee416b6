package calendar

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

var (
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrDuration         = errors.New("duration must be positive")
)

// TimeRange представляет временной интервал [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange строит интервал от start длиной d.
func NewTimeRange(start time.Time, d time.Duration) (TimeRange, error) {
	if start.IsZero() {
		return TimeRange{}, ErrInvalidTimeRange
	}
	if d <= 0 {
		return TimeRange{}, ErrDuration
	}
	return TimeRange{Start: start, End: start.Add(d)}, nil
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Contains проверяет, что other целиком лежит внутри r (границы включительно).
func (r TimeRange) Contains(other TimeRange) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// In переводит обе границы в часовой пояс loc.
func (r TimeRange) In(loc *time.Location) TimeRange {
	if loc == nil {
		return r
	}
	return TimeRange{Start: r.Start.In(loc), End: r.End.In(loc)}
}

// Overlaps проверяет пересечение a и b.
// inclusive = true: касание концами считается пересечением.
func Overlaps(a, b TimeRange, inclusive bool) bool {
	if inclusive {
		return !a.Start.After(b.End) && !b.Start.After(a.End)
	}
	// Полуоткрытые интервалы пересекаются, если a.Start < b.End && b.Start < a.End.
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// WindowOn разворачивает еженедельное окно [from, to) на конкретную дату day
// в часовом поясе loc. Окно с to <= from считается пустым.
func WindowOn(day time.Time, from, to datatypes.Time, loc *time.Location) (TimeRange, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if time.Duration(to) <= time.Duration(from) {
		return TimeRange{}, false
	}
	day = day.In(loc)
	return TimeRange{
		Start: atClock(day, time.Duration(from), loc),
		End:   atClock(day, time.Duration(to), loc),
	}, true
}

// atClock собирает время через time.Date, чтобы переходы на летнее время
// не сдвигали границы окна.
func atClock(day time.Time, sinceMidnight time.Duration, loc *time.Location) time.Time {
	h := int(sinceMidnight / time.Hour)
	m := int(sinceMidnight % time.Hour / time.Minute)
	s := int(sinceMidnight % time.Minute / time.Second)
	y, mon, d := day.Date()
	return time.Date(y, mon, d, h, m, s, 0, loc)
}

// FormatRange форматирует интервал для уведомлений:
// "Wednesday, 01.01.2025, 10:00–11:00".
func FormatRange(tr TimeRange, loc *time.Location) string {
	tr = tr.In(loc)
	return fmt.Sprintf("%s, %s, %s–%s",
		tr.Start.Weekday(),
		tr.Start.Format("02.01.2006"),
		tr.Start.Format("15:04"),
		tr.End.Format("15:04"),
	)
}
