package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/clock"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
)

// dedupRetention is how long a fired key is remembered.
const dedupRetention = 24 * time.Hour

// Trigger is delivered to OnTrigger once per occurrence.
type Trigger struct {
	Upcoming   models.UpcomingEvent
	Occurrence time.Time // when the trigger fired
	Source     models.TriggerSource
}

// Request is the desired scheduling state. Each call to Schedule replaces
// the previous request.
type Request struct {
	Enabled    bool
	Background bool
	Upcoming   *models.UpcomingEvent
	OnTrigger  func(Trigger)
}

// SpawnFunc starts a background clock that posts triggers back through post.
type SpawnFunc func(ctx context.Context, post func(TriggerMsg)) Mailbox

// Options configures a Scheduler. Zero values select the system clock, a
// no-op logger and the Background actor.
type Options struct {
	Clock  clock.Clock
	Logger logger.Logger
	Spawn  SpawnFunc
}

// Scheduler coordinates the foreground and background clocks.
type Scheduler struct {
	mu     sync.Mutex
	clock  clock.Clock
	log    logger.Logger
	spawn  SpawnFunc
	ctx    context.Context
	cancel context.CancelFunc

	req        Request
	armedID    string
	foreground bool
	fgTimer    clock.Timer
	gen        uint64

	bg       Mailbox
	lastSent string
	fired    map[string]time.Time
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		clock:      opts.Clock,
		log:        opts.Logger,
		spawn:      opts.Spawn,
		foreground: true,
		fired:      make(map[string]time.Time),
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.log == nil {
		s.log = logger.NewNopLogger()
	}
	if s.spawn == nil {
		s.spawn = func(ctx context.Context, post func(TriggerMsg)) Mailbox {
			return StartBackground(ctx, s.clock, s.log, post)
		}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Schedule arms both clocks for req.Upcoming, or cancels them when req is
// disabled or has no upcoming event. Previously armed timers never fire
// after Schedule returns.
func (s *Scheduler) Schedule(req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopForegroundLocked()

	if !req.Enabled || req.Upcoming == nil {
		s.cancelBackgroundLocked()
		s.req = Request{}
		s.armedID = ""
		s.fired = make(map[string]time.Time)
		return
	}

	up := *req.Upcoming
	req.Upcoming = &up
	id := up.Identity()
	if id != s.armedID {
		// a new occurrence may reuse an event id; never inherit its key
		delete(s.fired, id)
		s.armedID = id
	}
	s.req = req

	s.armForegroundLocked()

	if !req.Background {
		s.cancelBackgroundLocked()
		return
	}
	if id == s.lastSent {
		return
	}
	if s.bg == nil {
		s.bg = s.spawn(s.ctx, s.handleBackground)
	}
	if s.lastSent != "" {
		s.bg.Send(CancelMsg{})
	}
	s.bg.Send(ScheduleMsg{
		EventID:    up.Event.ID,
		ScheduleID: up.ScheduleID,
		Title:      up.Event.Title,
		Target:     up.Occurrence,
	})
	s.lastSent = id
}

// SetForeground follows the host window lifecycle. While inactive only the
// background clock can fire.
func (s *Scheduler) SetForeground(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.foreground == active {
		return
	}
	s.foreground = active
	if active {
		s.armForegroundLocked()
	} else {
		s.stopForegroundLocked()
	}
}

// Stop cancels both clocks and ends the background actor.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopForegroundLocked()
	s.cancelBackgroundLocked()
	s.req = Request{}
	s.armedID = ""
	s.cancel()
	s.bg = nil
	s.ctx, s.cancel = context.WithCancel(context.Background())
}

func (s *Scheduler) armForegroundLocked() {
	if !s.foreground || s.req.Upcoming == nil {
		return
	}
	if _, done := s.fired[s.armedID]; done {
		return
	}
	delay := s.req.Upcoming.Occurrence.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.gen++
	gen := s.gen
	s.fgTimer = s.clock.AfterFunc(delay, func() { s.fireForeground(gen) })
}

func (s *Scheduler) stopForegroundLocked() {
	s.gen++
	if s.fgTimer != nil {
		s.fgTimer.Stop()
		s.fgTimer = nil
	}
}

func (s *Scheduler) cancelBackgroundLocked() {
	if s.lastSent == "" {
		return
	}
	if s.bg != nil {
		s.bg.Send(CancelMsg{})
	}
	s.lastSent = ""
}

func (s *Scheduler) fireForeground(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.req.Upcoming == nil {
		s.mu.Unlock()
		return
	}
	s.fgTimer = nil
	fire := s.claimLocked(s.armedID, s.clock.Now(), models.SourceForeground)
	s.mu.Unlock()
	fire()
}

// handleBackground re-validates a trigger against the occurrence armed right
// now; triggers for anything else are stale and dropped.
func (s *Scheduler) handleBackground(msg TriggerMsg) {
	s.mu.Lock()
	key := models.OccurrenceKey(msg.EventID, msg.Target)
	if s.req.Upcoming == nil || key != s.armedID || !s.req.Background {
		s.mu.Unlock()
		s.log.Info("[TRIGGER] dropping stale background trigger %s", key)
		return
	}
	fire := s.claimLocked(key, msg.FiredAt, models.SourceBackground)
	s.mu.Unlock()
	fire()
}

// claimLocked records key as fired and returns the callback to run outside
// the lock. A key that already fired yields a no-op.
func (s *Scheduler) claimLocked(key string, at time.Time, source models.TriggerSource) func() {
	if _, done := s.fired[key]; done {
		s.log.Info("[TRIGGER] %s already fired, ignoring %s clock", key, source)
		return func() {}
	}
	for k, when := range s.fired {
		if at.Sub(when) > dedupRetention {
			delete(s.fired, k)
		}
	}
	s.fired[key] = at

	onTrigger := s.req.OnTrigger
	trig := Trigger{Upcoming: *s.req.Upcoming, Occurrence: at, Source: source}
	s.log.Info("[TRIGGER] %s fired by %s clock", key, source)
	if onTrigger == nil {
		return func() {}
	}
	return func() { onTrigger(trig) }
}

// Fired reports whether key has already triggered.
func (s *Scheduler) Fired(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fired[key]
	return ok
}
