package calendar

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// icsEvent is the subset of a VEVENT that matters for a bell.
type icsEvent struct {
	UID        string
	Title      string
	Start      time.Time
	Status     string
	RRule      string
	Categories []string
	Notes      string
}

func parseEvent(comp *ical.Component) icsEvent {
	normalizeComponentTimezones(comp)
	event := icsEvent{}

	if uidProp := comp.Props.Get(ical.PropUID); uidProp != nil {
		event.UID = uidProp.Value
	}
	if summaryProp := comp.Props.Get(ical.PropSummary); summaryProp != nil {
		event.Title = strings.TrimSpace(summaryProp.Value)
	}
	if descProp := comp.Props.Get(ical.PropDescription); descProp != nil {
		event.Notes = strings.TrimSpace(descProp.Value)
	}
	if startProp := comp.Props.Get(ical.PropDateTimeStart); startProp != nil {
		if t, err := parseDateTimeProperty(startProp, timezoneOf(comp)); err == nil {
			event.Start = t
		}
	}
	if statusProp := comp.Props.Get(ical.PropStatus); statusProp != nil {
		event.Status = strings.ToUpper(statusProp.Value)
	}
	if event.Status != "CANCELLED" && isCancelledTitle(event.Title) {
		event.Status = "CANCELLED"
	}
	if rruleProp := comp.Props.Get(ical.PropRecurrenceRule); rruleProp != nil {
		event.RRule = rruleProp.Value
	}
	for _, catProp := range comp.Props.Values(ical.PropCategories) {
		for _, c := range strings.Split(catProp.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				event.Categories = append(event.Categories, c)
			}
		}
	}
	return event
}

// parseDateTimeProperty reads a date-time property and converts it to the
// host's local clock, since bells ring on local wall-clock time.
func parseDateTimeProperty(prop *ical.Prop, loc *time.Location) (time.Time, error) {
	if t, err := prop.DateTime(loc); err == nil {
		return t.In(time.Local), nil
	}

	formats := []string{
		"20060102T150405",
		"20060102T150405Z",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, prop.Value, loc); err == nil {
			return t.In(time.Local), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime value: %s", prop.Value)
}

// recurrenceFromRRule maps an RRULE onto the weekday recurrence a bell
// supports. DAILY without BYDAY is every day; DAILY or WEEKLY with BYDAY is
// the listed days; WEEKLY without BYDAY is the weekday of start.
func recurrenceFromRRule(value string, start time.Time) (models.Recurrence, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return models.Recurrence{}, fmt.Errorf("parse RRULE %q: %w", value, err)
	}
	if opt.Interval > 1 {
		return models.Recurrence{}, fmt.Errorf("unsupported RRULE interval %d", opt.Interval)
	}

	switch opt.Freq {
	case rrule.DAILY, rrule.WEEKLY:
	default:
		return models.Recurrence{}, fmt.Errorf("unsupported RRULE frequency in %q", value)
	}

	if len(opt.Byweekday) > 0 {
		days := make([]time.Weekday, 0, len(opt.Byweekday))
		for i := range opt.Byweekday {
			// rrule numbers weekdays from Monday = 0.
			days = append(days, time.Weekday((opt.Byweekday[i].Day()+1)%7))
		}
		rec := models.OnDays(days...)
		if len(rec.AllowedDays()) == 7 {
			return models.Daily(), nil
		}
		return rec, nil
	}
	if opt.Freq == rrule.DAILY {
		return models.Daily(), nil
	}
	return models.OnDays(start.Weekday()), nil
}

var categoryKeywords = []struct {
	keyword  string
	category models.Category
}{
	{"prayer", models.CategoryPrayer},
	{"salah", models.CategoryPrayer},
	{"break", models.CategoryBreak},
	{"recess", models.CategoryBreak},
	{"end", models.CategoryLessonEnd},
	{"dismiss", models.CategoryLessonEnd},
	{"lesson", models.CategoryLessonStart},
	{"period", models.CategoryLessonStart},
	{"class", models.CategoryLessonStart},
}

// categoryOf picks a bell category from CATEGORIES, falling back to
// keywords in the title.
func categoryOf(event icsEvent) models.Category {
	for _, c := range event.Categories {
		if cat := models.Category(strings.ToLower(c)); cat.Valid() {
			return cat
		}
	}
	haystack := strings.ToLower(strings.Join(append([]string{event.Title}, event.Categories...), " "))
	for _, kw := range categoryKeywords {
		if strings.Contains(haystack, kw.keyword) {
			return kw.category
		}
	}
	return models.CategoryCustom
}

func isCancelledTitle(title string) bool {
	cleanTitle := regexp.MustCompile(`[^a-zA-Z0-9]+`).ReplaceAllString(strings.ToLower(title), "")
	return strings.HasPrefix(cleanTitle, "canceled") || strings.HasPrefix(cleanTitle, "cancelled")
}
