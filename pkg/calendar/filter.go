package calendar

import (
	"github.com/albarqi19/alraed-sub006/pkg/logger"
)

type filterStats struct {
	totalComponents     int
	totalEvents         int
	filteredMissingTime int
	filteredCancelled   int
	filteredOneOff      int
	filteredUnsupported int
	filteredDuplicates  int
}

// shouldIncludeEvent keeps events that can become a recurring bell: they
// need a start time, must not be cancelled, and must carry an RRULE.
func shouldIncludeEvent(event icsEvent, stats *filterStats, l logger.Logger) bool {
	if event.Start.IsZero() {
		stats.filteredMissingTime++
		l.Info("  [FILTERED] Missing time - Event: %q", event.Title)
		return false
	}
	if event.Status == "CANCELLED" {
		stats.filteredCancelled++
		l.Info("  [FILTERED] [Cancelled] - Event: %q (Start: %s)", event.Title, event.Start.Format("2006-01-02 15:04"))
		return false
	}
	if event.RRule == "" {
		stats.filteredOneOff++
		l.Info("  [FILTERED] [One-off] - Event: %q (Start: %s)", event.Title, event.Start.Format("2006-01-02 15:04"))
		return false
	}
	return true
}

func (s *filterStats) logSummary(includedCount int, l logger.Logger) {
	totalFiltered := s.filteredMissingTime + s.filteredCancelled + s.filteredOneOff + s.filteredUnsupported + s.filteredDuplicates
	l.Info("  [SUMMARY] Total components: %d, Events: %d, Included: %d, Filtered: %d",
		s.totalComponents, s.totalEvents, includedCount, totalFiltered)
	if totalFiltered > 0 {
		l.Info("  Filtered breakdown: %d cancelled, %d one-off, %d unsupported rule, %d missing time, %d duplicates",
			s.filteredCancelled, s.filteredOneOff, s.filteredUnsupported, s.filteredMissingTime, s.filteredDuplicates)
	}
}
