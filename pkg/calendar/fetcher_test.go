package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schoolICS = `BEGIN:VCALENDAR
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
BEGIN:VEVENT
UID:dhuhr
DTSTAMP:20260101T000000Z
SUMMARY:Dhuhr
CATEGORIES:prayer
DTSTART:20260108T120500
RRULE:FREQ=WEEKLY
END:VEVENT
BEGIN:VEVENT
UID:assembly
DTSTAMP:20260101T000000Z
SUMMARY:Parents assembly
DTSTART:20260110T100000
END:VEVENT
BEGIN:VEVENT
UID:old
DTSTAMP:20260101T000000Z
SUMMARY:Cancelled: old period
STATUS:CANCELLED
DTSTART:20260104T080000
RRULE:FREQ=DAILY
END:VEVENT
BEGIN:VEVENT
UID:monthly
DTSTAMP:20260101T000000Z
SUMMARY:Staff meeting
DTSTART:20260104T140000
RRULE:FREQ=MONTHLY
END:VEVENT
END:VCALENDAR
`

func newTestImporter() (*Importer, *logger.MockLogger) {
	l := logger.NewMockLogger()
	im := NewImporter(l)
	im.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return im, l
}

func TestParse_MapsRecurringEvents(t *testing.T) {
	im, _ := newTestImporter()
	sched, err := im.Parse(strings.NewReader(schoolICS), "Winter")
	require.NoError(t, err)

	assert.Equal(t, "Winter", sched.Name)
	assert.True(t, sched.Enabled)
	assert.Equal(t, models.DefaultToneProfileID, sched.ToneProfileID)
	require.Len(t, sched.Events, 3)

	first := sched.Events[0]
	assert.Equal(t, "first-lesson", first.ID)
	assert.Equal(t, "07:15", first.Time)
	assert.Equal(t, models.CategoryLessonStart, first.Category)
	assert.Equal(t, models.RecurrenceCustom, first.Recurrence.Mode)
	assert.Equal(t,
		[]time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday},
		first.Recurrence.AllowedDays())

	brk := sched.Events[1]
	assert.Equal(t, models.CategoryBreak, brk.Category)
	assert.Equal(t, models.RecurrenceDaily, brk.Recurrence.Mode)

	dhuhr := sched.Events[2]
	assert.Equal(t, models.CategoryPrayer, dhuhr.Category)
	assert.Equal(t, []time.Weekday{time.Thursday}, dhuhr.Recurrence.AllowedDays())
	assert.Equal(t, "12:05", dhuhr.Time)

	assert.NoError(t, models.ValidateSchedule(sched))
}

func TestParse_RejectsHTML(t *testing.T) {
	im, _ := newTestImporter()
	_, err := im.Parse(strings.NewReader("<!DOCTYPE html><html></html>"), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTML")
}

func TestParse_NoRecurringEvents(t *testing.T) {
	ics := "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:x\nBEGIN:VEVENT\nUID:a\nDTSTAMP:20260101T000000Z\nSUMMARY:Once\nDTSTART:20260104T071500\nEND:VEVENT\nEND:VCALENDAR\n"
	im, _ := newTestImporter()
	_, err := im.Parse(strings.NewReader(ics), "x")
	assert.ErrorIs(t, err, ErrNoBells)
}

func TestImport_FetchesOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(schoolICS))
	}))
	defer srv.Close()

	im, _ := newTestImporter()
	sched, err := im.Import(context.Background(), srv.URL, "Remote")
	require.NoError(t, err)
	assert.Len(t, sched.Events, 3)
}

func TestImport_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	im, _ := newTestImporter()
	_, err := im.Import(context.Background(), srv.URL, "Remote")
	assert.Error(t, err)
}

func TestRecurrenceFromRRule_AllDaysCollapsesToDaily(t *testing.T) {
	rec, err := recurrenceFromRRule("FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR,SA,SU", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.RecurrenceDaily, rec.Mode)

	_, err = recurrenceFromRRule("FREQ=WEEKLY;INTERVAL=2", time.Now())
	assert.Error(t, err)
}
