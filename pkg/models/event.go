package models

import (
	"fmt"
	"sort"
	"time"
)

// Category classifies a bell event. Tone profiles map categories to sounds.
type Category string

const (
	CategoryLessonStart Category = "lesson-start"
	CategoryLessonEnd   Category = "lesson-end"
	CategoryBreak       Category = "break"
	CategoryPrayer      Category = "prayer"
	CategoryCustom      Category = "custom"
)

// Categories returns every known category in display order.
func Categories() []Category {
	return []Category{CategoryLessonStart, CategoryLessonEnd, CategoryBreak, CategoryPrayer, CategoryCustom}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// RecurrenceMode selects how the weekdays of an event are chosen.
type RecurrenceMode string

const (
	RecurrenceDaily  RecurrenceMode = "daily"
	RecurrenceCustom RecurrenceMode = "custom"
)

// Recurrence describes on which weekdays an event fires.
// Days uses time.Weekday numbering (Sunday = 0).
type Recurrence struct {
	Mode RecurrenceMode `json:"mode" validate:"required,oneof=daily custom"`
	Days []time.Weekday `json:"days,omitempty" validate:"dive,min=0,max=6"`
}

// Daily is shorthand for an every-day recurrence.
func Daily() Recurrence {
	return Recurrence{Mode: RecurrenceDaily}
}

// OnDays returns a custom recurrence over the given weekdays.
func OnDays(days ...time.Weekday) Recurrence {
	return Recurrence{Mode: RecurrenceCustom, Days: days}
}

// AllowedDays returns the sorted, de-duplicated set of weekdays the
// recurrence permits. An empty result means the event never occurs.
func (r Recurrence) AllowedDays() []time.Weekday {
	if r.Mode == RecurrenceDaily {
		return []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
	}
	seen := make(map[time.Weekday]bool, len(r.Days))
	days := make([]time.Weekday, 0, len(r.Days))
	for _, d := range r.Days {
		if d < time.Sunday || d > time.Saturday || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// Allows reports whether the recurrence includes weekday d.
func (r Recurrence) Allows(d time.Weekday) bool {
	for _, allowed := range r.AllowedDays() {
		if allowed == d {
			return true
		}
	}
	return false
}

// BellEvent is one recurring trigger point in a bell schedule.
type BellEvent struct {
	ID         string     `json:"id" validate:"required"`
	Title      string     `json:"title" validate:"required"`
	Time       string     `json:"time" validate:"required,timeofday"` // HH:MM, host local clock
	Category   Category   `json:"category" validate:"required,oneof=lesson-start lesson-end break prayer custom"`
	SoundID    string     `json:"soundId,omitempty"`
	Recurrence Recurrence `json:"recurrence"`
	Enabled    bool       `json:"enabled"`
	Notes      string     `json:"notes,omitempty"`
}

// HourMinute parses the event's time of day.
func (e BellEvent) HourMinute() (hour, minute int, err error) {
	return ParseTimeOfDay(e.Time)
}

// ParseTimeOfDay parses "HH:MM" (24h). Single-digit hours are accepted.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// FormatTimeOfDay renders hour and minute as "HH:MM".
func FormatTimeOfDay(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
