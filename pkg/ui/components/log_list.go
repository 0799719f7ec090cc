package components

import (
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/albarqi19/alraed-sub006/pkg/models"
)

// LogList shows the run log, newest first, one row per playback attempt.
type LogList struct {
	list *widget.List

	mu      sync.Mutex
	entries []models.RuntimeLogEntry
}

// NewLogList creates the list and the bordered scroll container holding it.
func NewLogList() (*LogList, *fyne.Container) {
	ll := &LogList{}

	ll.list = widget.NewList(
		ll.Length,
		func() fyne.CanvasObject {
			return container.NewHBox(widget.NewIcon(theme.MediaPlayIcon()), widget.NewLabel("template"))
		},
		func(i widget.ListItemID, o fyne.CanvasObject) {
			entry, ok := ll.Entry(i)
			if !ok {
				return
			}
			row := o.(*fyne.Container)
			row.Objects[0].(*widget.Icon).SetResource(statusIcon(entry.Status))
			row.Objects[1].(*widget.Label).SetText(RenderLogEntry(entry))
		})

	scroll := container.NewScroll(ll.list)
	scroll.SetMinSize(fyne.NewSize(0, 150))

	bordered := container.NewBorder(
		widget.NewSeparator(),
		widget.NewSeparator(),
		widget.NewSeparator(),
		widget.NewSeparator(),
		scroll,
	)
	return ll, container.NewStack(bordered)
}

func (ll *LogList) Length() int {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	return len(ll.entries)
}

func (ll *LogList) Entry(i int) (models.RuntimeLogEntry, bool) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if i < 0 || i >= len(ll.entries) {
		return models.RuntimeLogEntry{}, false
	}
	return ll.entries[i], true
}

// SetEntries replaces the rows. Call from the UI goroutine.
func (ll *LogList) SetEntries(entries []models.RuntimeLogEntry) {
	ll.mu.Lock()
	ll.entries = append([]models.RuntimeLogEntry(nil), entries...)
	ll.mu.Unlock()
	ll.list.Refresh()
}

// RenderLogEntry formats one row: time, title, source and any note.
func RenderLogEntry(e models.RuntimeLogEntry) string {
	text := fmt.Sprintf("%s  %s (%s)", e.ExecutedAt.Format("15:04:05"), e.Title, e.Source)
	if e.Note != "" {
		text += " - " + e.Note
	}
	return text
}

func statusIcon(s models.LogStatus) fyne.Resource {
	switch s {
	case models.LogPlayed:
		return theme.ConfirmIcon()
	case models.LogSkipped:
		return theme.ErrorIcon()
	default:
		return theme.MediaPlayIcon()
	}
}
