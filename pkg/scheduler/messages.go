package scheduler

import "time"

// Message is accepted by a background mailbox.
type Message interface {
	isMessage()
}

// ScheduleMsg arms the background clock for one occurrence, replacing any
// previously armed occurrence.
type ScheduleMsg struct {
	EventID    string
	ScheduleID string
	Title      string
	Target     time.Time
}

// CancelMsg disarms the background clock.
type CancelMsg struct{}

func (ScheduleMsg) isMessage() {}
func (CancelMsg) isMessage() {}

// TriggerMsg is posted back by the background clock when Target is reached.
type TriggerMsg struct {
	EventID string
	Target  time.Time
	FiredAt time.Time
}

// Mailbox is the only handle the coordinator holds on a background clock.
type Mailbox interface {
	Send(Message)
}
