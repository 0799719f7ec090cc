package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/calendar"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/dustin/go-humanize"
)

const (
	noSchedule   = "None"
	importWait   = 30 * time.Second
	downloadWait = 5 * time.Minute
)

var eventColumns = []string{"Time", "Bell", "Category", "Days", "Sound", "Next"}

// SettingsWindow manages schedules, the sound cache and general options.
// Every control applies immediately through the state manager.
type SettingsWindow struct {
	b      *Bells
	window fyne.Window

	// Schedules tab
	scheduleSelect  *widget.Select
	scheduleIDs     map[string]string // option label -> schedule id
	scheduleEnabled *widget.Check
	eventsTable     *widget.Table
	events          []models.BellEvent
	profile         models.ToneProfile
	selectedEvent   int

	// Sounds tab
	soundsList    *widget.List
	sounds        []models.BellAudioAsset
	selectedSound int
	cacheLabel    *widget.Label
	progress      *widget.ProgressBar

	// General tab
	backgroundCheck *widget.Check
	widgetCheck     *widget.Check
}

func newSettingsWindow(b *Bells) *SettingsWindow {
	sw := &SettingsWindow{
		b:             b,
		selectedEvent: -1,
		selectedSound: -1,
	}
	sw.window = b.app.NewWindow(appName + " - Settings")

	tabs := container.NewAppTabs(
		container.NewTabItem("Schedules", sw.buildSchedulesTab()),
		container.NewTabItem("Sounds", sw.buildSoundsTab()),
		container.NewTabItem("General", sw.buildGeneralTab()),
	)
	sw.window.SetContent(tabs)
	sw.window.Resize(fyne.NewSize(860, 560))
	sw.window.CenterOnScreen()
	sw.window.Canvas().SetOnTypedKey(func(key *fyne.KeyEvent) {
		if key.Name == fyne.KeyEscape {
			sw.window.Close()
		}
	})
	sw.refresh()
	return sw
}

func (sw *SettingsWindow) Show() {
	sw.window.Show()
	sw.window.RequestFocus()
}

// refresh reloads every tab from the manager. Must run on the UI goroutine.
func (sw *SettingsWindow) refresh() {
	state := sw.b.manager.State()
	sw.refreshSchedules(state)
	sw.refreshSounds(state)

	if sw.backgroundCheck.Checked != state.BackgroundExecution {
		sw.backgroundCheck.SetChecked(state.BackgroundExecution)
	}
	if sw.widgetCheck.Checked != state.WidgetVisible {
		sw.widgetCheck.SetChecked(state.WidgetVisible)
	}
}

func scheduleLabel(s models.BellSchedule) string {
	return fmt.Sprintf("%s (%s)", s.Name, s.ID)
}

func (sw *SettingsWindow) buildSchedulesTab() fyne.CanvasObject {
	sw.scheduleSelect = widget.NewSelect(nil, func(label string) {
		id := sw.scheduleIDs[label]
		if id == sw.b.manager.State().ActiveScheduleID {
			return
		}
		if err := sw.b.manager.SetActiveSchedule(id); err != nil {
			dialog.ShowError(err, sw.window)
		}
	})

	sw.scheduleEnabled = widget.NewCheck("Schedule enabled", func(checked bool) {
		sched, ok := sw.b.manager.ActiveSchedule()
		if !ok || sched.Enabled == checked {
			return
		}
		sched.Enabled = checked
		if err := sw.b.manager.UpsertSchedule(sched); err != nil {
			dialog.ShowError(err, sw.window)
		}
	})

	table := widget.NewTable(
		func() (int, int) {
			return len(sw.events), len(eventColumns)
		},
		func() fyne.CanvasObject {
			label := widget.NewLabel("Template")
			label.Truncation = fyne.TextTruncateEllipsis
			return label
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			label := obj.(*widget.Label)
			if id.Row >= len(sw.events) {
				label.SetText("")
				return
			}
			event := sw.events[id.Row]
			label.SetText(sw.eventCell(event, id.Col, time.Now()))
			if event.Enabled {
				label.Importance = widget.MediumImportance
			} else {
				label.Importance = widget.LowImportance
			}
		},
	)
	table.ShowHeaderRow = true
	table.CreateHeader = func() fyne.CanvasObject {
		label := widget.NewLabel("Header")
		label.TextStyle.Bold = true
		return label
	}
	table.UpdateHeader = func(id widget.TableCellID, obj fyne.CanvasObject) {
		obj.(*widget.Label).SetText(eventColumns[id.Col])
	}
	table.OnSelected = func(id widget.TableCellID) {
		sw.selectedEvent = id.Row
	}
	for i, w := range []float32{80, 220, 110, 160, 130, 140} {
		table.SetColumnWidth(i, w)
	}
	sw.eventsTable = table

	ringButton := widget.NewButtonWithIcon("Ring selected", theme.MediaPlayIcon(), func() {
		if sw.selectedEvent < 0 || sw.selectedEvent >= len(sw.events) {
			dialog.ShowInformation("No Selection", "Please select a bell from the table.", sw.window)
			return
		}
		go sw.b.ringNow(sw.events[sw.selectedEvent].ID)
	})
	toggleButton := widget.NewButtonWithIcon("Enable / disable", theme.ViewRefreshIcon(), func() {
		if sw.selectedEvent < 0 || sw.selectedEvent >= len(sw.events) {
			dialog.ShowInformation("No Selection", "Please select a bell from the table.", sw.window)
			return
		}
		sw.toggleEvent(sw.events[sw.selectedEvent].ID)
	})
	importButton := widget.NewButtonWithIcon("Import iCalendar", theme.ContentAddIcon(), sw.showImportDialog)

	header := container.NewVBox(
		container.New(layout.NewFormLayout(),
			widget.NewLabel("Active schedule:"), sw.scheduleSelect,
		),
		sw.scheduleEnabled,
		container.NewHBox(ringButton, toggleButton, layout.NewSpacer(), importButton),
		widget.NewSeparator(),
	)
	return container.NewPadded(container.NewBorder(header, nil, nil, nil, table))
}

func (sw *SettingsWindow) eventCell(event models.BellEvent, col int, now time.Time) string {
	switch col {
	case 0:
		return event.Time
	case 1:
		return event.Title
	case 2:
		return string(event.Category)
	case 3:
		return daysText(event.Recurrence)
	case 4:
		if event.SoundID != "" {
			return event.SoundID
		}
		return sw.profile.SoundFor(event.Category)
	case 5:
		if !event.Enabled {
			return "disabled"
		}
		next, ok := calendar.NextOccurrence(event, now)
		if !ok {
			return "never"
		}
		return next.Format("Mon 15:04")
	}
	return ""
}

func daysText(r models.Recurrence) string {
	if r.Mode == models.RecurrenceDaily {
		return "Every day"
	}
	days := r.AllowedDays()
	if len(days) == 0 {
		return "No days"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, " ")
}

func (sw *SettingsWindow) toggleEvent(eventID string) {
	sched, ok := sw.b.manager.ActiveSchedule()
	if !ok {
		return
	}
	for i := range sched.Events {
		if sched.Events[i].ID == eventID {
			sched.Events[i].Enabled = !sched.Events[i].Enabled
		}
	}
	if err := sw.b.manager.UpsertSchedule(sched); err != nil {
		dialog.ShowError(err, sw.window)
	}
}

func (sw *SettingsWindow) refreshSchedules(state models.BellManagerState) {
	sw.scheduleIDs = map[string]string{noSchedule: ""}
	options := []string{noSchedule}
	selected := noSchedule
	for _, s := range state.Schedules {
		label := scheduleLabel(s)
		sw.scheduleIDs[label] = s.ID
		options = append(options, label)
		if s.ID == state.ActiveScheduleID {
			selected = label
		}
	}
	sw.scheduleSelect.SetOptions(options)
	if sw.scheduleSelect.Selected != selected {
		sw.scheduleSelect.SetSelected(selected)
	}

	sw.events = nil
	sw.profile = sw.b.manager.ActiveToneProfile()
	if sched, ok := state.ActiveSchedule(); ok {
		sw.events = sched.Events
		sw.scheduleEnabled.Enable()
		if sw.scheduleEnabled.Checked != sched.Enabled {
			sw.scheduleEnabled.SetChecked(sched.Enabled)
		}
	} else {
		sw.scheduleEnabled.Disable()
	}
	if sw.selectedEvent >= len(sw.events) {
		sw.selectedEvent = -1
	}
	sw.eventsTable.Refresh()
}

func (sw *SettingsWindow) showImportDialog() {
	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("e.g., Winter timetable")
	nameEntry.Validator = func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("name is required")
		}
		return nil
	}

	urlEntry := widget.NewMultiLineEntry()
	urlEntry.SetPlaceHolder("https://school.example.com/bells.ics")
	urlEntry.Wrapping = fyne.TextWrapBreak
	urlEntry.SetMinRowsVisible(3)
	urlEntry.Validator = validateFeedURL

	activate := widget.NewCheck("Make active", nil)
	activate.SetChecked(true)

	items := []*widget.FormItem{
		widget.NewFormItem("Name", nameEntry),
		widget.NewFormItem("URL", urlEntry),
		widget.NewFormItem("", activate),
	}
	dialog.ShowForm("Import iCalendar", "Import", "Cancel", items, func(confirmed bool) {
		if !confirmed {
			return
		}
		name, feed, makeActive := strings.TrimSpace(nameEntry.Text), strings.TrimSpace(urlEntry.Text), activate.Checked
		go func() {
			err := sw.importFeed(feed, name, makeActive)
			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, sw.window)
				}
			})
		}()
	}, sw.window)
}

func validateFeedURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("URL is required")
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return errors.New("please enter a valid URL")
	}
	switch u.Scheme {
	case "http", "https", "webcal":
		return nil
	}
	return errors.New("URL must start with http://, https:// or webcal://")
}

func (sw *SettingsWindow) importFeed(feed, name string, activate bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), importWait)
	defer cancel()
	sched, err := importSchedule(ctx, calendar.NewImporter(sw.b.log), feed, name)
	if err != nil {
		return err
	}
	sched.AllowBackground = true
	if err := sw.b.manager.UpsertSchedule(sched); err != nil {
		return err
	}
	if activate {
		return sw.b.manager.SetActiveSchedule(sched.ID)
	}
	return nil
}

func (sw *SettingsWindow) buildSoundsTab() fyne.CanvasObject {
	sw.soundsList = widget.NewList(
		func() int {
			return len(sw.sounds)
		},
		func() fyne.CanvasObject {
			title := widget.NewLabel("Title")
			title.TextStyle.Bold = true
			status := widget.NewLabel("Status")
			return container.NewBorder(nil, nil, nil, status, title)
		},
		func(i widget.ListItemID, o fyne.CanvasObject) {
			row := o.(*fyne.Container)
			title := row.Objects[0].(*widget.Label)
			status := row.Objects[1].(*widget.Label)
			a := sw.sounds[i]
			title.SetText(fmt.Sprintf("%s (%s)", a.Title, a.ID))
			status.SetText(soundStatusText(a))
		},
	)
	sw.soundsList.OnSelected = func(id widget.ListItemID) {
		sw.selectedSound = id
	}

	sw.cacheLabel = widget.NewLabel("")
	sw.progress = widget.NewProgressBar()
	sw.progress.Hide()

	download := widget.NewButtonWithIcon("Download", theme.DownloadIcon(), func() {
		if id, ok := sw.selectedSoundID(); ok {
			sw.download(id)
		}
	})
	preview := widget.NewButtonWithIcon("Preview", theme.MediaPlayIcon(), func() {
		if id, ok := sw.selectedSoundID(); ok {
			go sw.preview(id)
		}
	})
	remove := widget.NewButtonWithIcon("Remove", theme.DeleteIcon(), func() {
		if id, ok := sw.selectedSoundID(); ok {
			sw.b.sounds.RemoveCached(id)
			sw.refreshSounds(sw.b.manager.State())
		}
	})
	clearAll := widget.NewButtonWithIcon("Clear cache", theme.ContentClearIcon(), func() {
		dialog.ShowConfirm("Clear cache", "Remove every downloaded sound?", func(ok bool) {
			if !ok {
				return
			}
			if !sw.b.sounds.ClearCache() {
				dialog.ShowError(errors.New("sound cache is unavailable"), sw.window)
			}
			sw.refreshSounds(sw.b.manager.State())
		}, sw.window)
	})

	footer := container.NewVBox(
		sw.progress,
		container.NewHBox(download, preview, remove, layout.NewSpacer(), sw.cacheLabel, clearAll),
	)
	return container.NewPadded(container.NewBorder(nil, footer, nil, nil, sw.soundsList))
}

func soundStatusText(a models.BellAudioAsset) string {
	text := string(a.LocalStatus)
	if a.Status == models.AssetMissing {
		text += ", missing upstream"
	}
	if a.Size > 0 {
		text += ", " + humanize.Bytes(uint64(a.Size))
	}
	return text
}

func (sw *SettingsWindow) selectedSoundID() (string, bool) {
	if sw.selectedSound < 0 || sw.selectedSound >= len(sw.sounds) {
		dialog.ShowInformation("No Selection", "Please select a sound from the list.", sw.window)
		return "", false
	}
	return sw.sounds[sw.selectedSound].ID, true
}

func (sw *SettingsWindow) refreshSounds(state models.BellManagerState) {
	sw.sounds = sw.b.sounds.WithCacheStatus(state.AudioAssets)
	if sw.selectedSound >= len(sw.sounds) {
		sw.selectedSound = -1
	}
	sw.cacheLabel.SetText("Cached: " + humanize.Bytes(uint64(sw.b.sounds.CachedSize())))
	sw.soundsList.Refresh()
}

func (sw *SettingsWindow) download(soundID string) {
	sw.progress.SetValue(0)
	sw.progress.Show()
	sw.refreshSounds(sw.b.manager.State())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), downloadWait)
		defer cancel()
		ok := sw.b.engine.Download(ctx, soundID, func(p audio.Progress) {
			fyne.Do(func() { sw.progress.SetValue(p.Percent / 100) })
		})
		fyne.Do(func() {
			sw.progress.Hide()
			if !ok {
				dialog.ShowError(fmt.Errorf("download %s: %v", soundID, sw.b.sounds.LastError()), sw.window)
			}
			sw.refreshSounds(sw.b.manager.State())
		})
	}()
}

func (sw *SettingsWindow) preview(soundID string) {
	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()
	if sw.b.engine.Preview(ctx, soundID) == audio.OutcomeFailed {
		sw.b.notify("Could not play the sound: no audio output")
	}
}

func (sw *SettingsWindow) buildGeneralTab() fyne.CanvasObject {
	sw.backgroundCheck = widget.NewCheck("Keep ringing in the background", func(checked bool) {
		if checked != sw.b.manager.State().BackgroundExecution {
			sw.b.manager.SetBackgroundExecution(checked)
		}
	})
	sw.widgetCheck = widget.NewCheck("Show the status widget", func(checked bool) {
		if checked != sw.b.manager.State().WidgetVisible {
			sw.b.manager.SetWidgetVisibility(checked)
		}
	})

	backgroundHelp := widget.NewLabel("Bells still ring when the app is not in the foreground, if the active schedule allows it")
	backgroundHelp.Wrapping = fyne.TextWrapWord
	backgroundHelp.Importance = widget.MediumImportance

	autostart := "off"
	if sw.b.cfg.Autostart {
		autostart = "on"
	}
	autostartHelp := widget.NewLabel("Start at login is " + autostart + ". Change it with the autostart config key.")
	autostartHelp.Importance = widget.MediumImportance

	dataDir := widget.NewEntry()
	dataDir.SetText(sw.b.cfg.DataDir)
	dataDir.Disable()
	openButton := widget.NewButton("Open in File Manager", func() {
		if err := openFileManager(sw.b.cfg.DataDir); err != nil {
			sw.b.log.Warning("[SETTINGS] open %s: %v", sw.b.cfg.DataDir, err)
		}
	})

	form := container.New(layout.NewFormLayout(),
		widget.NewLabel("Background:"), container.NewVBox(sw.backgroundCheck, backgroundHelp),
		widget.NewLabel("Widget:"), sw.widgetCheck,
		widget.NewLabel("Auto Start:"), autostartHelp,
		widget.NewLabel("Data Location:"), container.NewBorder(nil, container.NewPadded(openButton), nil, nil, dataDir),
	)
	return container.NewPadded(container.NewVScroll(form))
}

func openFileManager(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

// showSettings opens the settings window, reusing it when already open.
func (b *Bells) showSettings() {
	if b.settings == nil {
		b.settings = newSettingsWindow(b)
		b.settings.window.SetOnClosed(func() {
			b.settings = nil
		})
	}
	b.settings.Show()
}
