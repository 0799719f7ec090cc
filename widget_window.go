package main

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/albarqi19/alraed-sub006/pkg/ui/components"
)

// statusWidget is the small always-available window: next bell, countdown,
// hold-to-ring, background toggle and the recent run log.
type statusWidget struct {
	b       *Bells
	window  fyne.Window
	visible bool

	next       *widget.Label
	countdown  *widget.Label
	ring       *components.HoldButton
	background *widget.Check
	logList    *components.LogList
}

func newStatusWidget(b *Bells) *statusWidget {
	sw := &statusWidget{
		b:         b,
		window:    b.app.NewWindow(appName),
		next:      widget.NewLabel(""),
		countdown: widget.NewLabelWithStyle("", fyne.TextAlignCenter, fyne.TextStyle{Bold: true, Monospace: true}),
	}
	sw.ring = components.NewHoldButton("Hold to ring now", nil)
	sw.background = widget.NewCheck("Keep ringing in the background", func(checked bool) {
		if checked != b.manager.State().BackgroundExecution {
			b.manager.SetBackgroundExecution(checked)
		}
	})
	var logContainer *fyne.Container
	sw.logList, logContainer = components.NewLogList()

	top := container.NewVBox(
		sw.next,
		sw.countdown,
		sw.ring,
		sw.background,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Recent bells", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
	)
	sw.window.SetContent(container.NewPadded(container.NewBorder(top, nil, nil, nil, logContainer)))
	sw.window.Resize(fyne.NewSize(380, 440))
	sw.window.SetCloseIntercept(func() {
		b.manager.SetWidgetVisibility(false)
	})
	sw.refresh()
	return sw
}

// refresh redraws from the engine. Must run on the UI goroutine.
func (sw *statusWidget) refresh() {
	st := sw.b.engine.Status()
	sw.next.SetText(nextBellText(st))

	if st.Upcoming != nil && st.ScheduleEnabled {
		sw.countdown.SetText(formatCountdown(time.Duration(st.RemainingSeconds) * time.Second))
		eventID := st.Upcoming.Event.ID
		sw.ring.OnConfirm = func() {
			go sw.b.ringNow(eventID)
		}
	} else {
		sw.countdown.SetText("--:--:--")
		sw.ring.OnConfirm = nil
	}
	sw.ring.Refresh()

	if sw.background.Checked != st.BackgroundExecution {
		sw.background.SetChecked(st.BackgroundExecution)
	}
	sw.logList.SetEntries(sw.b.manager.RunLog())
}

func (sw *statusWidget) show() {
	sw.visible = true
	sw.window.Show()
	sw.window.RequestFocus()
}

func (sw *statusWidget) hide() {
	sw.visible = false
	sw.window.Hide()
}

// formatCountdown renders d as HH:MM:SS.
func formatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
