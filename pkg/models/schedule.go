package models

import "time"

// BellSchedule is a named, ordered set of bell events.
type BellSchedule struct {
	ID              string      `json:"id" validate:"required"`
	Name            string      `json:"name" validate:"required"`
	Events          []BellEvent `json:"events" validate:"dive"`
	Enabled         bool        `json:"enabled"`
	ToneProfileID   string      `json:"toneProfileId,omitempty"`
	AllowBackground bool        `json:"allowBackground"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// EnabledEvents returns the enabled events in list order.
func (s BellSchedule) EnabledEvents() []BellEvent {
	events := make([]BellEvent, 0, len(s.Events))
	for _, e := range s.Events {
		if e.Enabled {
			events = append(events, e)
		}
	}
	return events
}

// Event looks up an event by id.
func (s BellSchedule) Event(id string) (BellEvent, bool) {
	for _, e := range s.Events {
		if e.ID == id {
			return e, true
		}
	}
	return BellEvent{}, false
}

// UpcomingEvent is the derived "next bell" view: the event, the schedule it
// belongs to, the sound it will play and the instant it is due.
type UpcomingEvent struct {
	ScheduleID string    `json:"scheduleId"`
	Event      BellEvent `json:"event"`
	SoundID    string    `json:"soundId,omitempty"`
	Occurrence time.Time `json:"occurrence"`
}

// Remaining returns the time left until the occurrence, never negative.
func (u UpcomingEvent) Remaining(now time.Time) time.Duration {
	d := u.Occurrence.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Identity is the dedup key of this occurrence: "{eventId}:{unixMillis}".
func (u UpcomingEvent) Identity() string {
	return OccurrenceKey(u.Event.ID, u.Occurrence)
}
