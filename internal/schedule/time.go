package schedule

import (
	"fmt"
	"regexp"
	"time"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})`)

// NormalizeTime reduces backend time formats ("09:00", "09:00:00",
// "9:00") to canonical "HH:mm".
func NormalizeTime(s string) (string, error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("invalid time %q", s)
	}
	var h, min int
	fmt.Sscanf(m[1], "%d", &h)
	fmt.Sscanf(m[2], "%d", &min)
	if h > 23 || min > 59 {
		return "", fmt.Errorf("invalid time %q", s)
	}
	return fmt.Sprintf("%02d:%02d", h, min), nil
}

// ClockMinutes converts "HH:mm" to minutes since midnight.
func ClockMinutes(s string) (int, error) {
	norm, err := NormalizeTime(s)
	if err != nil {
		return 0, err
	}
	var h, m int
	fmt.Sscanf(norm, "%02d:%02d", &h, &m)
	return h*60 + m, nil
}

// FormatMinutes converts minutes since midnight to "HH:mm".
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// CombineDateTime builds a local timestamp from a calendar day and a
// clock time.
func CombineDateTime(date, hhmm string) (time.Time, error) {
	norm, err := NormalizeTime(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(DateLayout+" 15:04", date+" "+norm, time.Local)
}

// SameDay reports whether a calendar-day string names the day of t.
func SameDay(date string, t time.Time) bool {
	return date == t.Format(DateLayout)
}

// BeforeDay reports whether the calendar day is strictly before the day
// of t.
func BeforeDay(date string, t time.Time) bool {
	return date < t.Format(DateLayout)
}
