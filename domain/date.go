package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of a calendar date.
const DateLayout = "2006-01-02"

// Date is a calendar day without a time component. The wrapped time is always
// midnight UTC.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in t's location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts either YYYY-MM-DD or a full RFC 3339 timestamp, keeping
// only the day.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return NewDate(t), nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DueState classifies a due date relative to today.
type DueState string

const (
	DueNone     DueState = ""
	DueOverdue  DueState = "overdue"
	DueToday    DueState = "today"
	DueTomorrow DueState = "tomorrow"
	DueUpcoming DueState = "upcoming"
)

// DueStatus reports how due is positioned against the calendar day of now.
func DueStatus(due *Date, now time.Time) DueState {
	if due == nil {
		return DueNone
	}
	today := NewDate(now)
	switch {
	case due.Before(today.Time):
		return DueOverdue
	case due.Equal(today.Time):
		return DueToday
	case due.Equal(today.AddDate(0, 0, 1)):
		return DueTomorrow
	default:
		return DueUpcoming
	}
}
