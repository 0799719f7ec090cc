package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/engine"
	"github.com/dustin/go-humanize"
)

const manualRingTimeout = time.Minute

func (b *Bells) setupSystemTray() {
	if desk, ok := b.app.(desktop.App); ok {
		desk.SetSystemTrayIcon(theme.MediaPlayIcon())
	}
	b.updateSystemTrayMenu()
}

// updateSystemTrayMenu rebuilds the tray menu when anything it shows has
// changed. It runs on every tick, so unchanged menus are skipped.
func (b *Bells) updateSystemTrayMenu() {
	desk, ok := b.app.(desktop.App)
	if !ok {
		return
	}
	st := b.engine.Status()
	widgetVisible := b.manager.State().WidgetVisible
	header := nextBellText(st)

	key := header + "|" + strconv.FormatBool(st.BackgroundExecution) + "|" + strconv.FormatBool(widgetVisible)
	b.trayMu.Lock()
	if key == b.trayKey {
		b.trayMu.Unlock()
		return
	}
	b.trayKey = key
	b.trayMu.Unlock()

	headerItem := fyne.NewMenuItem(header, nil)
	headerItem.Disabled = true

	ringItem := fyne.NewMenuItem("Ring next bell now", nil)
	if st.Upcoming != nil {
		eventID := st.Upcoming.Event.ID
		ringItem.Action = func() { go b.ringNow(eventID) }
	} else {
		ringItem.Disabled = true
	}

	background := st.BackgroundExecution
	bgItem := fyne.NewMenuItem("Background execution", func() {
		b.manager.SetBackgroundExecution(!background)
	})
	bgItem.Checked = background

	widgetLabel := "Show widget"
	if widgetVisible {
		widgetLabel = "Hide widget"
	}

	menu := fyne.NewMenu(appName,
		headerItem,
		fyne.NewMenuItemSeparator(),
		ringItem,
		bgItem,
		fyne.NewMenuItem(widgetLabel, func() {
			b.manager.ToggleWidgetVisibility()
		}),
		fyne.NewMenuItem("Settings...", b.showSettings),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", b.quit),
	)
	desk.SetSystemTrayMenu(menu)
}

// ringNow plays an event by hand and reports failures as a notification.
func (b *Bells) ringNow(eventID string) {
	ctx, cancel := context.WithTimeout(context.Background(), manualRingTimeout)
	defer cancel()
	outcome, err := b.engine.TriggerManual(ctx, eventID)
	switch {
	case err != nil:
		b.notify(fmt.Sprintf("Could not ring the bell: %v", err))
	case outcome == audio.OutcomeFailed:
		b.notify("Could not ring the bell: no audio output")
	case outcome == audio.OutcomeFallbackPlayed:
		b.notify("The bell sound was unavailable, a fallback tone was played")
	}
}

func (b *Bells) notify(text string) {
	b.log.Warning("[TRAY] %s", text)
	if b.app != nil {
		b.app.SendNotification(fyne.NewNotification(appName, text))
	}
}

// nextBellText renders the tray header, e.g. "Next: Break at 09:30 (5 minutes from now)".
func nextBellText(st engine.Status) string {
	if st.Upcoming == nil {
		return "No upcoming bells"
	}
	if !st.ScheduleEnabled {
		return "Schedule paused"
	}
	occ := st.Upcoming.Occurrence
	return fmt.Sprintf("Next: %s at %s (%s)",
		truncateString(st.Upcoming.Event.Title, 30),
		occ.Format("15:04"),
		humanize.RelTime(occ, st.Now.Truncate(time.Minute), "ago", "from now"))
}

// truncateString shortens s to maxLen runes, adding "..." when cut.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
