package calendar

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// Windows zone names that calendar exports from Outlook/Exchange use instead
// of IANA names.
var windowsToIANA = map[string]string{
	"Arab Standard Time":           "Asia/Riyadh",
	"Arabian Standard Time":        "Asia/Dubai",
	"Arabic Standard Time":         "Asia/Baghdad",
	"Egypt Standard Time":          "Africa/Cairo",
	"Jordan Standard Time":         "Asia/Amman",
	"Turkey Standard Time":         "Europe/Istanbul",
	"GMT Standard Time":            "Europe/London",
	"Central Europe Standard Time": "Europe/Paris",
	"Eastern Standard Time":        "America/New_York",
	"Pacific Standard Time":        "America/Los_Angeles",
	"India Standard Time":          "Asia/Kolkata",
	"China Standard Time":          "Asia/Shanghai",
}

// normalizeComponentTimezones rewrites Windows TZIDs on the date properties
// of comp to their IANA equivalents.
func normalizeComponentTimezones(comp *ical.Component) {
	for _, name := range []string{ical.PropDateTimeStart, ical.PropDateTimeEnd} {
		if prop := comp.Props.Get(name); prop != nil {
			normalizeTZID(prop)
		}
	}
	for _, name := range []string{ical.PropExceptionDates, ical.PropRecurrenceDates} {
		props := comp.Props.Values(name)
		for i := range props {
			normalizeTZID(&props[i])
		}
	}
}

func normalizeTZID(prop *ical.Prop) {
	tzid := prop.Params.Get(ical.ParamTimezoneID)
	if tzid == "" {
		return
	}
	if ianaName, ok := windowsToIANA[tzid]; ok {
		prop.Params.Set(ical.ParamTimezoneID, ianaName)
	}
}

// timezoneOf returns the zone DTSTART is expressed in, defaulting to local.
func timezoneOf(comp *ical.Component) *time.Location {
	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return time.Local
	}
	if tzid := dtstart.Params.Get(ical.ParamTimezoneID); tzid != "" {
		if ianaName, ok := windowsToIANA[tzid]; ok {
			tzid = ianaName
		}
		if loc, err := time.LoadLocation(tzid); err == nil {
			return loc
		}
	}
	if strings.HasSuffix(dtstart.Value, "Z") {
		return time.UTC
	}
	return time.Local
}
