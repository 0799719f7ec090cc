// Package engine wires the state manager, the dual-clock scheduler and the
// playback resolver together. It re-arms the scheduler whenever the next
// bell changes and records every playback attempt in the run log.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/albarqi19/alraed-sub006/pkg/scheduler"
	"github.com/albarqi19/alraed-sub006/pkg/store"
)

// Player plays sounds by id and fetches them into the local cache.
type Player interface {
	Play(ctx context.Context, soundID string) (audio.Outcome, error)
	DownloadAudio(ctx context.Context, soundID string, onProgress func(audio.Progress)) bool
}

// Options configures an Engine. Manager, Scheduler and Player are required.
type Options struct {
	Manager   *store.Manager
	Scheduler *scheduler.Scheduler
	Player    Player
	Logger    logger.Logger
}

// Engine is the running bell service.
type Engine struct {
	manager *store.Manager
	sched   *scheduler.Scheduler
	player  Player
	log     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	plays  sync.WaitGroup

	// refreshMu orders refreshes so the last derived request is the one
	// the scheduler ends up holding.
	refreshMu sync.Mutex

	mu          sync.Mutex
	running     bool
	unsubscribe func()
	armed       requestKey
	foreground  bool

	feedMu   sync.Mutex
	feed     map[int]func(FeedEvent)
	nextFeed int
}

// requestKey is what a scheduler request is derived from. Re-arming is
// skipped while it stays the same, so it carries every field a trigger
// reads back.
type requestKey struct {
	enabled    bool
	background bool
	identity   string
	scheduleID string
	title      string
	soundID    string
}

func New(opts Options) *Engine {
	e := &Engine{
		manager:    opts.Manager,
		sched:      opts.Scheduler,
		player:     opts.Player,
		log:        opts.Logger,
		foreground: true,
		feed:       make(map[int]func(FeedEvent)),
	}
	if e.log == nil {
		e.log = logger.NewNopLogger()
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Manager exposes the state manager for command surfaces.
func (e *Engine) Manager() *store.Manager {
	return e.manager
}

// Start arms the scheduler for the next bell and begins following state
// changes and the one second tick.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.armed = requestKey{}
	e.unsubscribe = e.manager.Subscribe(e.refresh)
	e.mu.Unlock()

	e.refresh()
	e.manager.Start()
	e.log.Info("[ENGINE] started")
}

// Stop disarms both clocks and waits for playbacks in flight.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	cancel := e.cancel
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	unsubscribe()
	e.manager.Stop()
	e.sched.Stop()
	cancel()
	e.plays.Wait()
	e.log.Info("[ENGINE] stopped")
}

// SetForeground follows the host lifecycle. The manager tick is suspended
// while in the background; the background clock keeps running.
func (e *Engine) SetForeground(active bool) {
	e.mu.Lock()
	e.foreground = active
	e.mu.Unlock()
	e.sched.SetForeground(active)
	if !active {
		e.manager.SetEnabled(false)
		return
	}
	e.refresh()
}

// refresh derives the scheduler request from the current state. The
// manager tick only runs in the foreground with an enabled next bell.
func (e *Engine) refresh() {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	state := e.manager.State()
	up := e.manager.UpcomingEvent()

	key := requestKey{}
	if sched, ok := state.ActiveSchedule(); ok && up != nil {
		key = requestKey{
			enabled:    sched.Enabled,
			background: state.BackgroundExecution && sched.AllowBackground,
			identity:   up.Identity(),
			scheduleID: up.ScheduleID,
			title:      up.Event.Title,
			soundID:    up.SoundID,
		}
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	ticking := e.foreground && key.enabled
	changed := key != e.armed
	e.armed = key
	e.mu.Unlock()

	e.manager.SetEnabled(ticking)
	if !changed {
		return
	}

	e.sched.Schedule(scheduler.Request{
		Enabled:    key.enabled,
		Background: key.background,
		Upcoming:   up,
		OnTrigger:  e.handleTrigger,
	})
	if up != nil && key.enabled {
		e.log.Info("[SCHEDULE] next bell %q at %s", up.Event.Title, up.Occurrence.Format(time.RFC3339))
	}
	e.emit(FeedEvent{Kind: FeedUpcoming, Upcoming: up})
}

func (e *Engine) handleTrigger(t scheduler.Trigger) {
	entry := e.manager.AppendLog(models.RuntimeLogEntry{
		EventID:    t.Upcoming.Event.ID,
		Title:      t.Upcoming.Event.Title,
		ExecutedAt: t.Occurrence,
		Status:     models.LogPendingPlayback,
		Source:     t.Source,
	})
	e.emit(FeedEvent{Kind: FeedLog, Entry: &entry})

	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	e.plays.Add(1)
	go func() {
		defer e.plays.Done()
		outcome, err := e.player.Play(ctx, t.Upcoming.SoundID)
		e.finish(entry.ID, outcome, err)
	}()
}

// finish moves a pending entry to its terminal status.
func (e *Engine) finish(entryID string, outcome audio.Outcome, cause error) {
	var updated models.RuntimeLogEntry
	ok := e.manager.UpdateLog(entryID, func(entry *models.RuntimeLogEntry) {
		entry.Status, entry.Note = terminalStatus(outcome, cause)
		updated = *entry
	})
	if !ok {
		// evicted from the capped log while playing
		return
	}
	e.emit(FeedEvent{Kind: FeedLog, Entry: &updated})
}

func terminalStatus(outcome audio.Outcome, cause error) (models.LogStatus, string) {
	switch outcome {
	case audio.OutcomePlayed:
		return models.LogPlayed, ""
	case audio.OutcomeFallbackPlayed:
		return models.LogPlayed, fmt.Sprintf("original sound unavailable, fallback tone played: %v", cause)
	default:
		if cause == nil {
			return models.LogSkipped, "playback failed"
		}
		return models.LogSkipped, fmt.Sprintf("playback failed: %v", cause)
	}
}

// TriggerManual plays eventID now, outside the schedule. The attempt is
// logged with source manual and the outcome is returned to the caller.
func (e *Engine) TriggerManual(ctx context.Context, eventID string) (audio.Outcome, error) {
	_, event, err := e.manager.FindEvent(eventID)
	if err != nil {
		return audio.OutcomeFailed, err
	}
	entry := e.manager.AppendLog(models.RuntimeLogEntry{
		EventID: event.ID,
		Title:   event.Title,
		Status:  models.LogPendingPlayback,
		Source:  models.SourceManual,
	})
	e.emit(FeedEvent{Kind: FeedLog, Entry: &entry})
	e.log.Info("[TRIGGER] manual playback of %q", event.Title)

	outcome, cause := e.player.Play(ctx, event.SoundID)
	e.finish(entry.ID, outcome, cause)
	return outcome, nil
}

// Preview plays soundID without touching the run log.
func (e *Engine) Preview(ctx context.Context, soundID string) audio.Outcome {
	outcome, _ := e.player.Play(ctx, soundID)
	return outcome
}

// Download fetches soundID into the cache.
func (e *Engine) Download(ctx context.Context, soundID string, onProgress func(audio.Progress)) bool {
	return e.player.DownloadAudio(ctx, soundID, onProgress)
}

// Wait blocks until every scheduled playback started so far has finished.
func (e *Engine) Wait() {
	e.plays.Wait()
}

// Status is a point-in-time view of the engine.
type Status struct {
	Now                 time.Time             `json:"now"`
	Upcoming            *models.UpcomingEvent `json:"upcoming,omitempty"`
	RemainingSeconds    int64                 `json:"remainingSeconds"`
	ActiveScheduleID    string                `json:"activeScheduleId,omitempty"`
	ScheduleEnabled     bool                  `json:"scheduleEnabled"`
	BackgroundExecution bool                  `json:"backgroundExecution"`
	Foreground          bool                  `json:"foreground"`
	Running             bool                  `json:"running"`
}

func (e *Engine) Status() Status {
	now := e.manager.Now()
	state := e.manager.State()
	st := Status{
		Now:                 now,
		Upcoming:            e.manager.UpcomingAt(now),
		ActiveScheduleID:    state.ActiveScheduleID,
		BackgroundExecution: state.BackgroundExecution,
	}
	if sched, ok := state.ActiveSchedule(); ok {
		st.ScheduleEnabled = sched.Enabled
	}
	if st.Upcoming != nil {
		st.RemainingSeconds = int64(st.Upcoming.Remaining(now).Round(time.Second) / time.Second)
	}
	e.mu.Lock()
	st.Foreground = e.foreground
	st.Running = e.running
	e.mu.Unlock()
	return st
}

// FeedKind tells what a feed event carries.
type FeedKind string

const (
	FeedLog      FeedKind = "log"
	FeedUpcoming FeedKind = "upcoming"
)

// FeedEvent is pushed to feed subscribers on run log and next-bell changes.
type FeedEvent struct {
	Kind     FeedKind                `json:"kind"`
	Entry    *models.RuntimeLogEntry `json:"entry,omitempty"`
	Upcoming *models.UpcomingEvent   `json:"upcoming,omitempty"`
}

// SubscribeFeed registers fn for feed events. fn runs on the goroutine that
// produced the event and must not block.
func (e *Engine) SubscribeFeed(fn func(FeedEvent)) (cancel func()) {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	id := e.nextFeed
	e.nextFeed++
	e.feed[id] = fn
	return func() {
		e.feedMu.Lock()
		defer e.feedMu.Unlock()
		delete(e.feed, id)
	}
}

func (e *Engine) emit(ev FeedEvent) {
	e.feedMu.Lock()
	ids := make([]int, 0, len(e.feed))
	for id := range e.feed {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(FeedEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.feed[id])
	}
	e.feedMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
