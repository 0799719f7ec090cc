package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/cache"
	"github.com/albarqi19/alraed-sub006/pkg/clock"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/albarqi19/alraed-sub006/pkg/scheduler"
	"github.com/albarqi19/alraed-sub006/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 1, 4, 6, 44, 59, 0, time.Local)

func wav(samples ...int16) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+2*len(samples)))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint32(8000))
	_ = binary.Write(&b, binary.LittleEndian, uint32(16000))
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(2*len(samples)))
	_ = binary.Write(&b, binary.LittleEndian, samples)
	return b.Bytes()
}

type device struct {
	mu     sync.Mutex
	played []string
}

func (d *device) Resume() error { return nil }

func (d *device) Play(_ context.Context, clip *audio.Clip) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.played = append(d.played, clip.SoundID)
	return nil
}

func (d *device) Played() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.played...)
}

type tone struct {
	err   error
	calls int32
}

func (t *tone) Play(context.Context) error {
	atomic.AddInt32(&t.calls, 1)
	return t.err
}

// mailbox stands in for the background actor and exposes its post func.
type mailbox struct {
	mu   sync.Mutex
	msgs []scheduler.Message
	post func(scheduler.TriggerMsg)
}

func (m *mailbox) Send(msg scheduler.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func (m *mailbox) Messages() []scheduler.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scheduler.Message(nil), m.msgs...)
}

type fixture struct {
	engine  *Engine
	manager *store.Manager
	clock   *clock.Fake
	device  *device
	tone    *tone
	cache   *cache.DiskStore
	mailbox *mailbox
}

func newFixture(t *testing.T, background bool) *fixture {
	t.Helper()
	f := &fixture{clock: clock.NewFake(start), device: &device{}, tone: &tone{}, mailbox: &mailbox{}}

	l := logger.NewMockLogger()
	f.manager = store.NewManager(context.Background(), store.Options{Clock: f.clock, Logger: l})
	require.NoError(t, f.manager.UpsertSchedule(models.BellSchedule{
		ID: "winter", Name: "Winter", Enabled: true, AllowBackground: true,
		ToneProfileID: models.DefaultToneProfileID,
		Events: []models.BellEvent{{
			ID: "e1", Title: "First lesson", Time: "06:45", Category: models.CategoryLessonStart,
			SoundID: "calm-start-v1", Recurrence: models.Daily(), Enabled: true,
		}},
	}))
	require.NoError(t, f.manager.SetActiveSchedule("winter"))
	f.manager.Update(func(s models.BellManagerState) models.BellManagerState {
		s.BackgroundExecution = background
		s.AudioAssets = append(s.AudioAssets, models.BellAudioAsset{ID: "calm-start-v1", Title: "Calm start", Status: models.AssetReady})
		return s
	})

	var err error
	f.cache, err = cache.OpenDisk(t.TempDir(), l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.cache.Close() })

	resolver := audio.NewResolver(audio.Options{Cache: f.cache, Catalog: f.manager, Device: f.device, Tone: f.tone, Logger: l})
	sched := scheduler.New(scheduler.Options{
		Clock:  f.clock,
		Logger: l,
		Spawn: func(_ context.Context, post func(scheduler.TriggerMsg)) scheduler.Mailbox {
			f.mailbox.post = post
			return f.mailbox
		},
	})
	f.engine = New(Options{Manager: f.manager, Scheduler: sched, Player: resolver, Logger: l})
	t.Cleanup(f.engine.Stop)
	return f
}

func (f *fixture) markMissing() {
	f.manager.Update(func(s models.BellManagerState) models.BellManagerState {
		for i := range s.AudioAssets {
			if s.AudioAssets[i].ID == "calm-start-v1" {
				s.AudioAssets[i].Status = models.AssetMissing
			}
		}
		return s
	})
}

func settled(t *testing.T, m *store.Manager, n int) []models.RuntimeLogEntry {
	t.Helper()
	require.Eventually(t, func() bool {
		entries := m.RunLog()
		if len(entries) != n {
			return false
		}
		for _, e := range entries {
			if e.Status == models.LogPendingPlayback {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
	return m.RunLog()
}

func TestEngine_PlaysCachedSoundOnTime(t *testing.T) {
	f := newFixture(t, true)
	require.True(t, f.cache.Put("calm-start-v1", wav(1, 2, 3), cache.Metadata{}))
	f.engine.Start()

	f.clock.Advance(999 * time.Millisecond)
	assert.Empty(t, f.manager.RunLog())
	f.clock.Advance(time.Millisecond)

	entries := settled(t, f.manager, 1)
	assert.Equal(t, "e1", entries[0].EventID)
	assert.Equal(t, models.LogPlayed, entries[0].Status)
	assert.Equal(t, models.SourceForeground, entries[0].Source)
	assert.Empty(t, entries[0].Note)
	assert.Equal(t, []string{"calm-start-v1"}, f.device.Played())
	assert.Zero(t, atomic.LoadInt32(&f.tone.calls))
}

func TestEngine_MissingAssetPlaysFallbackAndNotes(t *testing.T) {
	f := newFixture(t, false)
	f.markMissing()
	f.engine.Start()
	f.clock.Advance(time.Second)

	entries := settled(t, f.manager, 1)
	assert.Equal(t, models.LogPlayed, entries[0].Status)
	assert.Contains(t, entries[0].Note, "unavailable")
	assert.Contains(t, entries[0].Note, audio.ErrAssetMissing.Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tone.calls))
	assert.Empty(t, f.device.Played())
}

func TestEngine_FailedPlaybackIsSkipped(t *testing.T) {
	f := newFixture(t, false)
	f.markMissing()
	f.tone.err = errors.New("device busy")
	f.engine.Start()
	f.clock.Advance(time.Second)

	entries := settled(t, f.manager, 1)
	assert.Equal(t, models.LogSkipped, entries[0].Status)
	assert.Contains(t, entries[0].Note, "device busy")
}

func TestEngine_BackgroundTriggerAfterForegroundIsIgnored(t *testing.T) {
	f := newFixture(t, true)
	require.True(t, f.cache.Put("calm-start-v1", wav(1), cache.Metadata{}))
	f.engine.Start()

	msgs := f.mailbox.Messages()
	require.Len(t, msgs, 1)
	armed, ok := msgs[0].(scheduler.ScheduleMsg)
	require.True(t, ok)
	target := start.Add(time.Second)
	assert.Equal(t, target, armed.Target)

	f.clock.Advance(time.Second)
	f.mailbox.post(scheduler.TriggerMsg{EventID: "e1", Target: target, FiredAt: target})

	settled(t, f.manager, 1)
	assert.Len(t, f.device.Played(), 1)
}

func TestEngine_BackgroundClockFiresWhileSuspended(t *testing.T) {
	f := newFixture(t, true)
	require.True(t, f.cache.Put("calm-start-v1", wav(1), cache.Metadata{}))
	f.engine.Start()
	f.engine.SetForeground(false)

	target := start.Add(time.Second)
	f.clock.Advance(time.Second)
	assert.Empty(t, f.manager.RunLog())

	f.mailbox.post(scheduler.TriggerMsg{EventID: "e1", Target: target, FiredAt: target.Add(40 * time.Millisecond)})
	entries := settled(t, f.manager, 1)
	assert.Equal(t, models.SourceBackground, entries[0].Source)
}

func TestEngine_NoBackgroundMessagesWhenDisabled(t *testing.T) {
	f := newFixture(t, false)
	f.engine.Start()
	f.engine.SetForeground(false)

	f.clock.Advance(time.Hour)
	assert.Empty(t, f.mailbox.Messages())
	assert.Empty(t, f.manager.RunLog())
}

func TestEngine_RearmsForNextDay(t *testing.T) {
	f := newFixture(t, true)
	require.True(t, f.cache.Put("calm-start-v1", wav(1), cache.Metadata{}))
	f.engine.Start()

	f.clock.Advance(2 * time.Second)
	settled(t, f.manager, 1)

	msgs := f.mailbox.Messages()
	require.Len(t, msgs, 3)
	assert.IsType(t, scheduler.CancelMsg{}, msgs[1])
	next, ok := msgs[2].(scheduler.ScheduleMsg)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 5, 6, 45, 0, 0, time.Local), next.Target)

	up := f.engine.Status().Upcoming
	require.NotNil(t, up)
	assert.Equal(t, next.Target, up.Occurrence)
}

func TestEngine_DisabledScheduleNeverFires(t *testing.T) {
	f := newFixture(t, false)
	f.manager.Update(func(s models.BellManagerState) models.BellManagerState {
		s.Schedules[0].Enabled = false
		return s
	})
	f.engine.Start()
	f.clock.Advance(time.Minute)
	assert.Empty(t, f.manager.RunLog())
	assert.False(t, f.engine.Status().ScheduleEnabled)
}

func TestEngine_EditToArmedBellIsPlayed(t *testing.T) {
	f := newFixture(t, true)
	require.True(t, f.cache.Put("loud-v2", wav(4, 5), cache.Metadata{}))
	f.manager.Update(func(s models.BellManagerState) models.BellManagerState {
		s.AudioAssets = append(s.AudioAssets, models.BellAudioAsset{ID: "loud-v2", Title: "Loud", Status: models.AssetReady})
		return s
	})
	f.engine.Start()

	f.manager.Update(func(s models.BellManagerState) models.BellManagerState {
		s.Schedules[0].Events[0].SoundID = "loud-v2"
		s.Schedules[0].Events[0].Title = "Lesson one"
		return s
	})
	assert.Len(t, f.mailbox.Messages(), 1, "same occurrence keeps its background alarm")
	f.clock.Advance(time.Second)

	entries := settled(t, f.manager, 1)
	assert.Equal(t, "Lesson one", entries[0].Title)
	assert.Equal(t, []string{"loud-v2"}, f.device.Played())
}

func TestEngine_ConcurrentEditsArmLatest(t *testing.T) {
	f := newFixture(t, false)
	require.True(t, f.cache.Put("calm-start-v1", wav(1), cache.Metadata{}))
	f.engine.Start()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.manager.Update(func(s models.BellManagerState) models.BellManagerState {
				s.Schedules[0].Events[0].Title = fmt.Sprintf("Lesson %d", i)
				return s
			})
		}(i)
	}
	wg.Wait()

	sched, ok := f.manager.ActiveSchedule()
	require.True(t, ok)
	f.clock.Advance(time.Second)
	entries := settled(t, f.manager, 1)
	assert.Equal(t, sched.Events[0].Title, entries[0].Title)
}

func TestEngine_TickFollowsScheduleEnabled(t *testing.T) {
	f := newFixture(t, false)
	f.engine.Start()

	setEnabled := func(on bool) {
		f.manager.Update(func(s models.BellManagerState) models.BellManagerState {
			s.Schedules[0].Enabled = on
			return s
		})
	}
	setEnabled(false)

	var ticks int
	defer f.manager.Subscribe(func() { ticks++ })()
	f.clock.Advance(5 * time.Second)
	assert.Zero(t, ticks)

	setEnabled(true)
	assert.Equal(t, 1, ticks)
	f.clock.Advance(3 * time.Second)
	assert.Equal(t, 4, ticks)

	f.engine.SetForeground(false)
	f.clock.Advance(3 * time.Second)
	assert.Equal(t, 4, ticks)

	f.engine.SetForeground(true)
	f.clock.Advance(time.Second)
	assert.Equal(t, 5, ticks)
}

func TestEngine_TriggerManual(t *testing.T) {
	f := newFixture(t, false)
	require.True(t, f.cache.Put("calm-start-v1", wav(1), cache.Metadata{}))

	var feed []FeedEvent
	cancel := f.engine.SubscribeFeed(func(ev FeedEvent) { feed = append(feed, ev) })
	defer cancel()

	outcome, err := f.engine.TriggerManual(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, audio.OutcomePlayed, outcome)

	entries := f.manager.RunLog()
	require.Len(t, entries, 1)
	assert.Equal(t, models.SourceManual, entries[0].Source)
	assert.Equal(t, models.LogPlayed, entries[0].Status)

	require.Len(t, feed, 2)
	assert.Equal(t, models.LogPendingPlayback, feed[0].Entry.Status)
	assert.Equal(t, models.LogPlayed, feed[1].Entry.Status)

	outcome, err = f.engine.TriggerManual(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrEventNotFound)
	assert.Equal(t, audio.OutcomeFailed, outcome)
	assert.Len(t, f.manager.RunLog(), 1)
}

func TestEngine_PreviewDoesNotLog(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, audio.OutcomeFallbackPlayed, f.engine.Preview(context.Background(), "unknown-sound"))
	assert.Empty(t, f.manager.RunLog())
}

func TestEngine_Status(t *testing.T) {
	f := newFixture(t, true)
	f.engine.Start()
	st := f.engine.Status()
	require.NotNil(t, st.Upcoming)
	assert.Equal(t, "e1", st.Upcoming.Event.ID)
	assert.Equal(t, int64(1), st.RemainingSeconds)
	assert.True(t, st.Running)
	assert.True(t, st.Foreground)
	assert.True(t, st.BackgroundExecution)
	assert.Equal(t, "winter", st.ActiveScheduleID)
}
