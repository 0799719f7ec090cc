package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

// ErrNoBells is returned when a calendar yields no importable events.
var ErrNoBells = errors.New("calendar contains no recurring bell events")

// Importer turns iCalendar feeds into bell schedules.
type Importer struct {
	Client *http.Client
	Logger logger.Logger
	Now    func() time.Time
}

// NewImporter returns an Importer with a 30 second HTTP timeout.
func NewImporter(l logger.Logger) *Importer {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Importer{
		Client: &http.Client{Timeout: 30 * time.Second},
		Logger: l,
		Now:    time.Now,
	}
}

// ImportSchedule fetches icalURL and converts it with a default Importer.
func ImportSchedule(ctx context.Context, icalURL, name string) (models.BellSchedule, error) {
	return NewImporter(logger.NewStandardLogger(nil)).Import(ctx, icalURL, name)
}

// ParseSchedule converts an iCalendar stream with a default Importer.
func ParseSchedule(r io.Reader, name string) (models.BellSchedule, error) {
	return NewImporter(logger.NewStandardLogger(nil)).Parse(r, name)
}

// Import downloads the feed at icalURL and converts it into a schedule.
func (im *Importer) Import(ctx context.Context, icalURL, name string) (models.BellSchedule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, icalURL, nil)
	if err != nil {
		return models.BellSchedule{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := im.Client.Do(req)
	if err != nil {
		return models.BellSchedule{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.BellSchedule{}, fmt.Errorf("HTTP request failed: %s", resp.Status)
	}

	return im.Parse(resp.Body, name)
}

// Parse converts every recurring VEVENT in r into a bell event. One-off,
// cancelled and duplicate events are skipped and counted in the log.
func (im *Importer) Parse(r io.Reader, name string) (models.BellSchedule, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return models.BellSchedule{}, fmt.Errorf("read calendar: %w", err)
	}
	bodyStr := string(body)
	if err := validateICalFormat(bodyStr); err != nil {
		return models.BellSchedule{}, err
	}

	decoder := ical.NewDecoder(strings.NewReader(bodyStr))
	events := []models.BellEvent{}
	seenIDs := make(map[string]bool)
	seenKeys := make(map[string]bool) // title + time + days
	stats := &filterStats{}

	for {
		cal, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.BellSchedule{}, fmt.Errorf("failed to decode calendar: %w", err)
		}

		for _, comp := range cal.Children {
			stats.totalComponents++
			if comp.Name != ical.CompEvent {
				continue
			}
			stats.totalEvents++

			raw := parseEvent(comp)
			if !shouldIncludeEvent(raw, stats, im.Logger) {
				continue
			}
			rec, err := recurrenceFromRRule(raw.RRule, raw.Start)
			if err != nil {
				stats.filteredUnsupported++
				im.Logger.Info("  [FILTERED] [Unsupported] - Event: %q: %v", raw.Title, err)
				continue
			}

			bell := models.BellEvent{
				ID:         raw.UID,
				Title:      raw.Title,
				Time:       models.FormatTimeOfDay(raw.Start.Hour(), raw.Start.Minute()),
				Category:   categoryOf(raw),
				Recurrence: rec,
				Enabled:    true,
				Notes:      raw.Notes,
			}
			if bell.Title == "" {
				bell.Title = "Bell " + bell.Time
			}
			if bell.ID == "" {
				bell.ID = uuid.NewString()
			}
			if isDuplicate(bell, seenIDs, seenKeys, stats, im.Logger) {
				continue
			}
			im.Logger.Info("  [INCLUDED] Event: %q at %s (%s)", bell.Title, bell.Time, bell.Category)
			events = append(events, bell)
		}
	}
	stats.logSummary(len(events), im.Logger)

	if len(events) == 0 {
		return models.BellSchedule{}, ErrNoBells
	}

	now := im.Now()
	return models.BellSchedule{
		ID:            uuid.NewString(),
		Name:          name,
		Events:        events,
		Enabled:       true,
		ToneProfileID: models.DefaultToneProfileID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validateICalFormat(bodyStr string) error {
	upperBody := strings.ToUpper(strings.TrimSpace(bodyStr))
	if strings.HasPrefix(upperBody, "<!DOCTYPE") || strings.HasPrefix(upperBody, "<HTML") {
		return fmt.Errorf("received HTML instead of iCalendar data - check if URL requires authentication")
	}
	if !strings.HasPrefix(strings.TrimSpace(bodyStr), "BEGIN:VCALENDAR") {
		previewLen := 100
		if len(bodyStr) < previewLen {
			previewLen = len(bodyStr)
		}
		return fmt.Errorf("invalid iCalendar format - expected BEGIN:VCALENDAR, got: %s",
			strings.TrimSpace(bodyStr[:previewLen]))
	}
	return nil
}

func isDuplicate(event models.BellEvent, seenIDs, seenKeys map[string]bool, stats *filterStats, l logger.Logger) bool {
	if seenIDs[event.ID] {
		stats.filteredDuplicates++
		l.Info("  [FILTERED] Duplicate (ID) - Event: %q (ID: %s)", event.Title, event.ID)
		return true
	}
	key := fmt.Sprintf("%s|%s|%v", event.Title, event.Time, event.Recurrence.AllowedDays())
	if seenKeys[key] {
		stats.filteredDuplicates++
		l.Info("  [FILTERED] Duplicate (Title+Time) - Event: %q at %s", event.Title, event.Time)
		return true
	}
	seenIDs[event.ID] = true
	seenKeys[key] = true
	return false
}
