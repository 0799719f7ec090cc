package components

import (
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestHoldButton_ConfirmsOnlyWhenHeldToTheEnd(t *testing.T) {
	test.NewTempApp(t)
	var rung int
	b := NewHoldButton("Hold to ring", func() { rung++ })

	assert.True(t, b.begin())
	b.advance(0.5)
	assert.InDelta(t, 0.5, b.Progress(), 0.001)
	b.release()
	assert.Zero(t, b.Progress())
	b.advance(1)
	assert.Zero(t, rung, "released before completion")

	assert.True(t, b.begin())
	b.advance(1)
	assert.Equal(t, 1, rung)
	assert.Zero(t, b.Progress())
}

func TestHoldButton_DisabledWithoutAction(t *testing.T) {
	test.NewTempApp(t)
	b := NewHoldButton("Hold to ring", nil)
	assert.True(t, b.Disabled())
	assert.False(t, b.begin())
	assert.False(t, b.holding)
}

func TestLogList_RendersEntries(t *testing.T) {
	test.NewTempApp(t)
	ll, _ := NewLogList()
	at := time.Date(2026, 1, 4, 6, 45, 0, 0, time.Local)
	ll.SetEntries([]models.RuntimeLogEntry{
		{ID: "2", Title: "Break", ExecutedAt: at, Status: models.LogSkipped, Source: models.SourceManual, Note: "playback failed"},
		{ID: "1", Title: "First lesson", ExecutedAt: at, Status: models.LogPlayed, Source: models.SourceForeground},
	})

	assert.Equal(t, 2, ll.Length())
	first, ok := ll.Entry(0)
	assert.True(t, ok)
	assert.Equal(t, "06:45:00  Break (manual) - playback failed", RenderLogEntry(first))
	_, ok = ll.Entry(2)
	assert.False(t, ok)
	second, _ := ll.Entry(1)
	assert.Equal(t, "06:45:00  First lesson (foreground)", RenderLogEntry(second))
	assert.Equal(t, 2, ll.list.Length())
}
