package models

import (
	"fmt"
	"time"
)

// LogStatus tracks one playback attempt through its lifecycle.
type LogStatus string

const (
	LogPendingPlayback LogStatus = "pending-playback" // trigger accepted, playback in progress
	LogPlayed          LogStatus = "played"           // a sound (original or fallback) was heard
	LogSkipped         LogStatus = "skipped"          // nothing could be played
)

// TriggerSource tells which clock (or user) produced a trigger.
type TriggerSource string

const (
	SourceForeground TriggerSource = "foreground"
	SourceBackground TriggerSource = "background"
	SourceManual     TriggerSource = "manual"
)

// RuntimeLogEntry is one row of the bounded run log.
type RuntimeLogEntry struct {
	ID         string        `json:"id"`
	EventID    string        `json:"eventId"`
	Title      string        `json:"title"`
	ExecutedAt time.Time     `json:"executedAt"`
	Status     LogStatus     `json:"status"`
	Source     TriggerSource `json:"source"`
	Note       string        `json:"note,omitempty"`
}

// MaxRunLogEntries bounds the in-memory run log.
const MaxRunLogEntries = 20

// OccurrenceKey builds the dedup key of an occurrence of an event.
func OccurrenceKey(eventID string, at time.Time) string {
	return fmt.Sprintf("%s:%d", eventID, at.UnixMilli())
}
