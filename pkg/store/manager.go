package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/calendar"
	"github.com/albarqi19/alraed-sub006/pkg/clock"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/albarqi19/alraed-sub006/pkg/remote"
	"github.com/google/uuid"
)

const (
	// DefaultSyncDebounce is the quiet period before a remote push.
	DefaultSyncDebounce = 2 * time.Second
	tickInterval        = time.Second
	fetchTimeout        = 10 * time.Second
	syncTimeout         = 15 * time.Second
)

// Remote is the settings service the state is hydrated from and pushed to.
type Remote interface {
	Fetch(ctx context.Context) (*remote.Snapshot, error)
	Sync(ctx context.Context, state models.BellManagerState) error
}

// Options configures a Manager. Local is required.
type Options struct {
	Local    LocalStore
	Remote   Remote
	Clock    clock.Clock
	Logger   logger.Logger
	Debounce time.Duration
}

// Manager owns the bell state. All mutations go through Update, which
// persists locally at once and pushes to the remote store after a quiet
// period. Readers always get copies.
type Manager struct {
	mu    sync.RWMutex
	state models.BellManagerState

	local  LocalStore
	remote Remote
	clock  clock.Clock
	log    logger.Logger
	sync   *Debouncer[models.BellManagerState]
	runLog *RunLog

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int

	tickMu  sync.Mutex
	ticker  clock.Timer
	running bool
	enabled bool
}

// NewManager loads the local snapshot, falling back to defaults when it is
// absent or unreadable, then hydrates from the remote store once. A remote
// failure is logged and otherwise ignored.
func NewManager(ctx context.Context, opts Options) *Manager {
	m := &Manager{
		local:   opts.Local,
		remote:  opts.Remote,
		clock:   opts.Clock,
		log:     opts.Logger,
		runLog:  NewRunLog(models.MaxRunLogEntries),
		subs:    make(map[int]func()),
		enabled: true,
	}
	if m.local == nil {
		m.local = &MemoryStore{}
	}
	if m.remote == nil {
		m.remote = remote.Nop{}
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.log == nil {
		m.log = logger.NewNopLogger()
	}
	window := opts.Debounce
	if window <= 0 {
		window = DefaultSyncDebounce
	}
	m.sync = NewDebouncer(m.clock, window, m.pushRemote)

	m.state = m.loadLocal()
	m.hydrate(ctx)
	return m
}

func (m *Manager) loadLocal() models.BellManagerState {
	state, err := m.local.Load()
	switch {
	case errors.Is(err, ErrNoSnapshot):
		m.log.Info("[STATE] no saved state, starting from defaults")
		state = models.DefaultState()
	case err != nil:
		m.log.Warning("[STATE] saved state unreadable, starting from defaults: %v", err)
		state = models.DefaultState()
	}
	return m.sanitize(state)
}

func (m *Manager) sanitize(state models.BellManagerState) models.BellManagerState {
	clean, problems := models.Sanitize(state)
	for _, p := range problems {
		m.log.Warning("[STATE] dropped: %s", p)
	}
	return clean
}

func (m *Manager) hydrate(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	snap, err := m.remote.Fetch(fctx)
	if err != nil {
		m.log.Warning("[SYNC] remote fetch failed, using local state: %v", err)
		return
	}
	if snap.Empty() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.Clone()
	if len(snap.Schedules) > 0 {
		next.Schedules = snap.Schedules
	}
	if len(snap.ToneProfiles) > 0 {
		next.ToneProfiles = snap.ToneProfiles
	}
	if len(snap.AudioAssets) > 0 {
		next.AudioAssets = snap.AudioAssets
	}
	if s := snap.Settings; s != nil {
		if s.ActiveScheduleID != nil {
			next.ActiveScheduleID = *s.ActiveScheduleID
		}
		if s.BackgroundExecution != nil {
			next.BackgroundExecution = *s.BackgroundExecution
		}
	}
	m.state = m.sanitize(next)
	if err := m.local.Save(m.state); err != nil {
		m.log.Error("[STATE] persist hydrated state: %v", err)
	}
	m.log.Info("[SYNC] hydrated %d schedules from remote", len(m.state.Schedules))
}

func (m *Manager) pushRemote(state models.BellManagerState) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	if err := m.remote.Sync(ctx, state); err != nil {
		// retried implicitly by the next update's debounce window
		m.log.Warning("[SYNC] remote sync failed: %v", err)
		return
	}
	m.log.Info("[SYNC] state pushed")
}

// Update applies fn to a copy of the state, persists the result and
// schedules a remote push. Schedules that changed get a new UpdatedAt.
func (m *Manager) Update(fn func(models.BellManagerState) models.BellManagerState) models.BellManagerState {
	out, _ := m.apply(func(s models.BellManagerState) (models.BellManagerState, error) {
		return fn(s), nil
	})
	return out
}

// apply commits the state fn derives from a copy of the current one. When
// fn fails nothing is persisted, pushed or announced to subscribers.
func (m *Manager) apply(fn func(models.BellManagerState) (models.BellManagerState, error)) (models.BellManagerState, error) {
	m.mu.Lock()
	prev := m.state
	next, err := fn(prev.Clone())
	if err != nil {
		m.mu.Unlock()
		return models.BellManagerState{}, err
	}
	next = next.Clone()
	now := m.clock.Now()
	for i := range next.Schedules {
		old, ok := prev.Schedule(next.Schedules[i].ID)
		switch {
		case !ok:
			if next.Schedules[i].CreatedAt.IsZero() {
				next.Schedules[i].CreatedAt = now
			}
			next.Schedules[i].UpdatedAt = now
		case scheduleChanged(old, next.Schedules[i]):
			next.Schedules[i].UpdatedAt = now
		}
	}
	m.state = next
	if err := m.local.Save(next); err != nil {
		m.log.Error("[STATE] persist: %v", err)
	}
	snapshot := next.Clone()
	m.mu.Unlock()

	m.sync.Trigger(snapshot.Clone())
	m.notify()
	return snapshot, nil
}

func scheduleChanged(a, b models.BellSchedule) bool {
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return !reflect.DeepEqual(a, b)
}

// UpdateValidated is Update for untrusted input: when the result does not
// validate the state is left untouched and the validation error returned.
func (m *Manager) UpdateValidated(fn func(models.BellManagerState) models.BellManagerState) (models.BellManagerState, error) {
	return m.apply(func(s models.BellManagerState) (models.BellManagerState, error) {
		next := fn(s)
		if err := models.ValidateState(next); err != nil {
			return models.BellManagerState{}, err
		}
		return next, nil
	})
}

// State returns a copy of the whole aggregate.
func (m *Manager) State() models.BellManagerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

func (m *Manager) SetWidgetVisibility(visible bool) {
	m.Update(func(s models.BellManagerState) models.BellManagerState {
		s.WidgetVisible = visible
		return s
	})
}

func (m *Manager) ToggleWidgetVisibility() bool {
	return m.Update(func(s models.BellManagerState) models.BellManagerState {
		s.WidgetVisible = !s.WidgetVisible
		return s
	}).WidgetVisible
}

func (m *Manager) SetBackgroundExecution(enabled bool) {
	m.Update(func(s models.BellManagerState) models.BellManagerState {
		s.BackgroundExecution = enabled
		return s
	})
}

func (m *Manager) DismissInstallReminder() {
	m.Update(func(s models.BellManagerState) models.BellManagerState {
		s.InstallReminderDismissed = true
		return s
	})
}

// SetActiveSchedule selects the active schedule. An empty id deactivates.
func (m *Manager) SetActiveSchedule(id string) error {
	if id != "" {
		if _, ok := m.State().Schedule(id); !ok {
			return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
		}
	}
	m.Update(func(s models.BellManagerState) models.BellManagerState {
		s.ActiveScheduleID = id
		return s
	})
	return nil
}

// UpsertSchedule adds sched or replaces the schedule with the same id.
func (m *Manager) UpsertSchedule(sched models.BellSchedule) error {
	if err := models.ValidateSchedule(sched); err != nil {
		return err
	}
	m.Update(func(s models.BellManagerState) models.BellManagerState {
		for i := range s.Schedules {
			if s.Schedules[i].ID == sched.ID {
				s.Schedules[i] = sched
				return s
			}
		}
		s.Schedules = append(s.Schedules, sched)
		return s
	})
	return nil
}

// ActiveSchedule returns the schedule the active id points at.
func (m *Manager) ActiveSchedule() (models.BellSchedule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sched, ok := m.state.ActiveSchedule()
	if !ok {
		return models.BellSchedule{}, false
	}
	return m.state.Clone().Schedule(sched.ID)
}

// ActiveToneProfile returns the active schedule's tone profile, else the
// default profile, else the first one.
func (m *Manager) ActiveToneProfile() models.ToneProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return activeToneProfile(m.state)
}

func activeToneProfile(s models.BellManagerState) models.ToneProfile {
	if sched, ok := s.ActiveSchedule(); ok && sched.ToneProfileID != "" {
		if p, ok := s.ToneProfile(sched.ToneProfileID); ok {
			return p
		}
	}
	if p, ok := s.ToneProfile(models.DefaultToneProfileID); ok {
		return p
	}
	if len(s.ToneProfiles) > 0 {
		return s.ToneProfiles[0]
	}
	return models.DefaultToneProfile()
}

// AudioAsset looks up a catalog entry.
func (m *Manager) AudioAsset(id string) (models.BellAudioAsset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AudioAsset(id)
}

// FindEvent looks an event up in the active schedule first, then in every
// other schedule. The returned event has its sound resolved.
func (m *Manager) FindEvent(eventID string) (models.BellSchedule, models.BellEvent, error) {
	state := m.State()
	profile := activeToneProfile(state)
	schedules := state.Schedules
	sort.SliceStable(schedules, func(i, j int) bool {
		return schedules[i].ID == state.ActiveScheduleID && schedules[j].ID != state.ActiveScheduleID
	})
	for _, sched := range schedules {
		if e, ok := sched.Event(eventID); ok {
			if p, ok := state.ToneProfile(sched.ToneProfileID); ok {
				profile = p
			}
			if e.SoundID == "" {
				e.SoundID = profile.SoundFor(e.Category)
			}
			return sched, e, nil
		}
	}
	return models.BellSchedule{}, models.BellEvent{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
}

// UpcomingEvent is UpcomingAt the current time.
func (m *Manager) UpcomingEvent() *models.UpcomingEvent {
	return m.UpcomingAt(m.clock.Now())
}

// UpcomingAt returns the enabled event of the active schedule that occurs
// soonest at or after now. Ties go to the event listed first. It returns nil
// when there is no active schedule or nothing occurs in the look-ahead
// window.
func (m *Manager) UpcomingAt(now time.Time) *models.UpcomingEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sched, ok := m.state.ActiveSchedule()
	if !ok {
		return nil
	}
	profile := activeToneProfile(m.state)

	var best *models.UpcomingEvent
	for _, e := range sched.EnabledEvents() {
		occ, ok := calendar.NextOccurrence(e, now)
		if !ok {
			continue
		}
		if best != nil && !occ.Before(best.Occurrence) {
			continue
		}
		e := e
		if e.Recurrence.Days != nil {
			e.Recurrence.Days = append([]time.Weekday(nil), e.Recurrence.Days...)
		}
		sound := e.SoundID
		if sound == "" {
			sound = profile.SoundFor(e.Category)
		}
		best = &models.UpcomingEvent{ScheduleID: sched.ID, Event: e, SoundID: sound, Occurrence: occ}
	}
	return best
}

// AppendLog adds entry to the front of the run log. An empty ID is filled.
func (m *Manager) AppendLog(entry models.RuntimeLogEntry) models.RuntimeLogEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = m.clock.Now()
	}
	m.runLog.Append(entry)
	m.notify()
	return entry
}

// UpdateLog transitions a run log entry in place.
func (m *Manager) UpdateLog(id string, fn func(*models.RuntimeLogEntry)) bool {
	ok := m.runLog.Update(id, fn)
	if ok {
		m.notify()
	}
	return ok
}

// RunLog returns the run log, newest first.
func (m *Manager) RunLog() []models.RuntimeLogEntry {
	return m.runLog.Entries()
}

// Subscribe registers fn to run after every change and every tick. The
// returned func unregisters it.
func (m *Manager) Subscribe(fn func()) (cancel func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) notify() {
	m.subMu.Lock()
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Now is the manager's view of the current time.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// Start begins the one second tick.
func (m *Manager) Start() {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.running = true
	m.armTickLocked()
}

// SetEnabled suspends or resumes the tick.
func (m *Manager) SetEnabled(enabled bool) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.enabled = enabled
	if enabled {
		m.armTickLocked()
	} else if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}

func (m *Manager) armTickLocked() {
	if !m.running || !m.enabled || m.ticker != nil {
		return
	}
	m.ticker = m.clock.AfterFunc(tickInterval, m.tick)
}

func (m *Manager) tick() {
	m.tickMu.Lock()
	m.ticker = nil
	active := m.running && m.enabled
	m.tickMu.Unlock()
	if !active {
		return
	}

	m.notify()

	m.tickMu.Lock()
	m.armTickLocked()
	m.tickMu.Unlock()
}

// Stop ends the tick.
func (m *Manager) Stop() {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.running = false
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}

// Close stops the tick and pushes any pending state immediately.
func (m *Manager) Close() {
	m.Stop()
	m.sync.Flush()
}
