package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/engine"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bellsICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//school//bells//EN
BEGIN:VEVENT
UID:first-lesson
DTSTAMP:20260101T000000Z
SUMMARY:First lesson
DTSTART:20260104T071500
RRULE:FREQ=WEEKLY;BYDAY=SU,MO,TU,WE,TH
END:VEVENT
BEGIN:VEVENT
UID:break
DTSTAMP:20260101T000000Z
SUMMARY:Morning break
DTSTART:20260104T093000
RRULE:FREQ=DAILY
END:VEVENT
END:VCALENDAR
`

type cli struct {
	t   *testing.T
	dir string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("BELLS_CONFIG_PATH", dir)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	return &cli{t: t, dir: dir}
}

func (c *cli) run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--data-dir", c.dir, "--state", "file"))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) state() models.BellManagerState {
	raw, err := os.ReadFile(filepath.Join(c.dir, "state.json"))
	require.NoError(c.t, err)
	var st models.BellManagerState
	require.NoError(c.t, json.Unmarshal(raw, &st))
	return st
}

func (c *cli) importFixture(args ...string) string {
	path := filepath.Join(c.dir, "bells.ics")
	require.NoError(c.t, os.WriteFile(path, []byte(bellsICS), 0o644))
	out, err := c.run(append([]string{"import-ics", path}, args...)...)
	require.NoError(c.t, err)
	return out
}

func TestImportActivateAndNext(t *testing.T) {
	c := newCLI(t)

	out := c.importFixture("--id", "winter", "--name", "Winter", "--activate")
	assert.Contains(t, out, `imported "Winter" as winter with 2 bell(s)`)

	st := c.state()
	assert.Equal(t, "winter", st.ActiveScheduleID)
	require.Len(t, st.Schedules, 1)
	assert.True(t, st.Schedules[0].AllowBackground)

	out, err := c.run("activate")
	require.NoError(t, err)
	assert.Contains(t, out, "*")
	assert.Contains(t, out, "Winter")

	out, err = c.run("next")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Next: "), out)
}

func TestImportReplacesSameID(t *testing.T) {
	c := newCLI(t)
	c.importFixture("--id", "winter", "--name", "Winter")
	c.importFixture("--id", "winter", "--name", "Winter v2")

	st := c.state()
	require.Len(t, st.Schedules, 1)
	assert.Equal(t, "Winter v2", st.Schedules[0].Name)
	assert.Empty(t, st.ActiveScheduleID)
}

func TestActivateUnknownSchedule(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("activate", "summer")
	assert.Error(t, err)
}

func TestBackgroundToggle(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("background", "on")
	require.NoError(t, err)
	assert.Contains(t, out, "background execution on")
	assert.True(t, c.state().BackgroundExecution)

	_, err = c.run("background", "off")
	require.NoError(t, err)
	assert.False(t, c.state().BackgroundExecution)

	_, err = c.run("background", "sometimes")
	assert.Error(t, err)
}

func TestPlayUnknownEvent(t *testing.T) {
	c := newCLI(t)
	c.importFixture("--id", "winter", "--activate")

	_, err := c.run("play", "no-such-bell")
	assert.Error(t, err)
}

func TestCacheCommandsOnEmptyCache(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("cache", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "classic-bell")
	assert.Contains(t, out, string(models.CacheNotCached))
	assert.Contains(t, out, "TOTAL")

	_, err = c.run("cache", "rm", "classic-bell")
	assert.Error(t, err)

	out, err = c.run("cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "freed 0 B")

	out, err = c.run("download")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to download")
}

func TestDownloadAll_ReportsFailuresInOrder(t *testing.T) {
	download := func(ctx context.Context, id string, onProgress func(audio.Progress)) bool {
		onProgress(audio.Progress{Received: 5, Total: 10, Percent: 50})
		onProgress(audio.Progress{Received: 10, Total: 10, Percent: 100})
		return !strings.HasPrefix(id, "bad")
	}

	failed := downloadAll(context.Background(), download,
		[]string{"bad-1", "classic-bell", "bad-2", "break-chime"}, io.Discard)
	assert.Equal(t, []string{"bad-1", "bad-2"}, failed)
}

func TestReportOutcome(t *testing.T) {
	var out bytes.Buffer
	assert.NoError(t, reportOutcome(&out, audio.OutcomePlayed, nil))
	assert.NoError(t, reportOutcome(&out, audio.OutcomeFallbackPlayed, audio.ErrAssetMissing))
	assert.Equal(t, "played\nplayed fallback tone: audio asset is missing\n", out.String())

	cause := errors.New("device gone")
	assert.Equal(t, cause, reportOutcome(&out, audio.OutcomeFailed, cause))
	assert.Error(t, reportOutcome(&out, audio.OutcomeFailed, nil))
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "00:00:01", formatCountdown(time.Second))
	assert.Equal(t, "01:02:03", formatCountdown(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "00:00:00", formatCountdown(-time.Minute))
}

func TestNextBellText(t *testing.T) {
	now := time.Date(2026, 1, 4, 9, 25, 0, 0, time.Local)
	up := &models.UpcomingEvent{
		Event:      models.BellEvent{ID: "break", Title: "Morning break"},
		Occurrence: now.Add(5 * time.Minute),
	}

	assert.Equal(t, "No upcoming bells", nextBellText(engine.Status{Now: now}))
	assert.Equal(t, "Schedule paused", nextBellText(engine.Status{Now: now, Upcoming: up}))
	assert.Equal(t, "Next: Morning break at 09:30 (5 minutes from now)",
		nextBellText(engine.Status{Now: now, Upcoming: up, ScheduleEnabled: true}))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
}
