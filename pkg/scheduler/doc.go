// Package scheduler fires the next upcoming bell exactly once using two
// independent clocks.
//
// The foreground clock is a plain one-shot timer that only runs while the
// host window is active. The background clock is an actor goroutine that owns
// its own timer and talks to the coordinator only through messages: it
// receives ScheduleMsg and CancelMsg and posts TriggerMsg back. Both clocks
// feed a dedup set keyed by "{eventId}:{unixMillis}", so whichever fires
// first wins and the other is a no-op.
package scheduler
