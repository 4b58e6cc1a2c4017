package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedAlert is returned when an inbound payload cannot be used as an Alert
var ErrMalformedAlert = errors.New("malformed alert payload")

// Alert is a single class/email notification pushed by the backend.
// Values are immutable once parsed; copy freely.
type Alert struct {
	Title        string  `json:"title"`
	Date         string  `json:"date"`
	URL          *string `json:"url"`
	Description  string  `json:"description"`
	IsUrgent     bool    `json:"isUrgent"`
	CalendarLink *string `json:"calendarLink"`
}

// ParseAlert decodes a JSON alert body and checks the required fields
func ParseAlert(raw []byte) (Alert, error) {
	var a Alert
	if err := json.Unmarshal(raw, &a); err != nil {
		return Alert{}, fmt.Errorf("%w: %v", ErrMalformedAlert, err)
	}
	if strings.TrimSpace(a.Title) == "" {
		return Alert{}, fmt.Errorf("%w: title is required", ErrMalformedAlert)
	}
	if strings.TrimSpace(a.Date) == "" {
		return Alert{}, fmt.Errorf("%w: date is required", ErrMalformedAlert)
	}
	return a, nil
}

// HasURL reports whether the primary action link is present
func (a Alert) HasURL() bool {
	return a.URL != nil && *a.URL != ""
}

// HasCalendarLink reports whether the secondary action link is present
func (a Alert) HasCalendarLink() bool {
	return a.CalendarLink != nil && *a.CalendarLink != ""
}

// The backend serializes LocalDateTime without a zone, so zone-less
// layouts are interpreted in the local zone.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// Time parses Date. The second result is false when Date matches no known layout.
func (a Alert) Time() (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, a.Date); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, a.Date, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
