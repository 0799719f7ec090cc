package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/cache"
	"github.com/albarqi19/alraed-sub006/pkg/clock"
	"github.com/albarqi19/alraed-sub006/pkg/engine"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/albarqi19/alraed-sub006/pkg/scheduler"
	"github.com/albarqi19/alraed-sub006/pkg/store"
	cws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
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

// silentDevice and silentTone stop as soon as their context ends, like a
// real output would.
type silentDevice struct{}

func (silentDevice) Resume() error                                 { return nil }
func (silentDevice) Play(ctx context.Context, _ *audio.Clip) error { return ctx.Err() }

type silentTone struct{}

func (silentTone) Play(ctx context.Context) error { return ctx.Err() }

type fixture struct {
	server  *Server
	manager *store.Manager
	cache   *cache.DiskStore
}

func setup(t *testing.T, assetURL string) *fixture {
	t.Helper()
	l := logger.NewMockLogger()
	fake := clock.NewFake(start)
	manager := store.NewManager(context.Background(), store.Options{Clock: fake, Logger: l})
	require.NoError(t, manager.UpsertSchedule(models.BellSchedule{
		ID: "winter", Name: "Winter", Enabled: true, ToneProfileID: models.DefaultToneProfileID,
		Events: []models.BellEvent{{
			ID: "e1", Title: "First lesson", Time: "06:45", Category: models.CategoryLessonStart,
			SoundID: "calm-start-v1", Recurrence: models.Daily(), Enabled: true,
		}},
	}))
	require.NoError(t, manager.SetActiveSchedule("winter"))
	manager.Update(func(s models.BellManagerState) models.BellManagerState {
		s.AudioAssets = append(s.AudioAssets, models.BellAudioAsset{
			ID: "calm-start-v1", Title: "Calm start", Status: models.AssetReady, URL: assetURL,
		})
		return s
	})

	blobs, err := cache.OpenDisk(t.TempDir(), l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	sounds := audio.NewResolver(audio.Options{Cache: blobs, Catalog: manager, Device: silentDevice{}, Tone: silentTone{}, Logger: l})
	eng := engine.New(engine.Options{
		Manager:   manager,
		Scheduler: scheduler.New(scheduler.Options{Clock: fake, Logger: l}),
		Player:    sounds,
		Logger:    l,
	})
	return &fixture{
		server:  NewServer(&Options{DisableReqLogs: true, Engine: eng, Sounds: sounds, Logger: l}),
		manager: manager,
		cache:   blobs,
	}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestStatus(t *testing.T) {
	f := setup(t, "")
	rec := f.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st engine.Status
	decode(t, rec, &st)
	require.NotNil(t, st.Upcoming)
	assert.Equal(t, "e1", st.Upcoming.Event.ID)
	assert.Equal(t, int64(1), st.RemainingSeconds)
	assert.Equal(t, "winter", st.ActiveScheduleID)
}

func TestSettingsCommands(t *testing.T) {
	f := setup(t, "")

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"background on", http.MethodPut, "/api/background", `{"enabled":true}`, http.StatusOK},
		{"background missing field", http.MethodPut, "/api/background", `{}`, http.StatusBadRequest},
		{"widget hidden", http.MethodPut, "/api/widget", `{"visible":false}`, http.StatusOK},
		{"unknown schedule", http.MethodPut, "/api/active-schedule", `{"id":"summer"}`, http.StatusNotFound},
		{"trailing slash", http.MethodPut, "/api/active-schedule/", `{"id":"winter"}`, http.StatusOK},
		{"garbage body", http.MethodPut, "/api/background", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	st := f.manager.State()
	assert.True(t, st.BackgroundExecution)
	assert.False(t, st.WidgetVisible)
	assert.Equal(t, "winter", st.ActiveScheduleID)
}

func TestReplaceState(t *testing.T) {
	f := setup(t, "")

	rec := f.do(http.MethodPut, "/api/state", `{"schedules":[],"toneProfiles":[],"audioAssets":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.manager.State().Schedules, 1)

	next := f.manager.State()
	next.Schedules[0].Name = "Winter term"
	body, err := json.Marshal(next)
	require.NoError(t, err)
	rec = f.do(http.MethodPut, "/api/state", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sched, ok := f.manager.ActiveSchedule()
	require.True(t, ok)
	assert.Equal(t, "Winter term", sched.Name)
}

func TestPlayEventAndPreview(t *testing.T) {
	f := setup(t, "")
	require.True(t, f.cache.Put("calm-start-v1", wav(1, 2), cache.Metadata{}))

	rec := f.do(http.MethodPost, "/api/events/e1/play", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out outcomeResponse
	decode(t, rec, &out)
	assert.Equal(t, audio.OutcomePlayed, out.Outcome)

	rec = f.do(http.MethodGet, "/api/log", "")
	var entries []models.RuntimeLogEntry
	decode(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SourceManual, entries[0].Source)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/events/nope/play", "").Code)

	rec = f.do(http.MethodPost, "/api/sounds/no-such-sound/preview", "")
	decode(t, rec, &out)
	assert.Equal(t, audio.OutcomeFallbackPlayed, out.Outcome)
}

func TestPlayEventOutlivesClient(t *testing.T) {
	f := setup(t, "")
	require.True(t, f.cache.Put("calm-start-v1", wav(1, 2), cache.Metadata{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/events/e1/play", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out outcomeResponse
	decode(t, rec, &out)
	assert.Equal(t, audio.OutcomePlayed, out.Outcome)

	entries := f.manager.RunLog()
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogPlayed, entries[0].Status)
}

func TestCacheLifecycle(t *testing.T) {
	blob := wav(1, 2, 3, 4)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(blob)
	}))
	defer origin.Close()
	f := setup(t, origin.URL+"/calm.wav")

	rec := f.do(http.MethodPost, "/api/sounds/calm-start-v1/download", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/cache", "")
	var listing cacheResponse
	decode(t, rec, &listing)
	require.Len(t, listing.Entries, 1)
	assert.Equal(t, int64(len(blob)), listing.TotalSize)
	assert.NotEmpty(t, listing.TotalSizeHuman)
	for _, a := range listing.Assets {
		if a.ID == "calm-start-v1" {
			assert.Equal(t, models.CacheCached, a.LocalStatus)
		}
	}

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/sounds/calm-start-v1/cache", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/sounds/calm-start-v1/cache", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/cache", "").Code)

	rec = f.do(http.MethodPost, "/api/sounds/classic-bell/download", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFeedStreamsRunLog(t *testing.T) {
	f := setup(t, "")
	srv := httptest.NewServer(f.server)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := cws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/feed", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var ev engine.FeedEvent
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, engine.FeedUpcoming, ev.Kind)
	require.NotNil(t, ev.Upcoming)
	assert.Equal(t, "e1", ev.Upcoming.Event.ID)

	resp, err := http.Post(srv.URL+"/api/events/e1/play", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	var statuses []models.LogStatus
	for i := 0; i < 2; i++ {
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		require.Equal(t, engine.FeedLog, ev.Kind)
		statuses = append(statuses, ev.Entry.Status)
	}
	assert.Equal(t, []models.LogStatus{models.LogPendingPlayback, models.LogPlayed}, statuses)
}
