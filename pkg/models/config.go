package models

import "time"

// DefaultToneProfileID identifies the built-in tone profile.
const DefaultToneProfileID = "standard"

// BellManagerState is the aggregate root owned by the state manager. It is
// the wire shape of both the local snapshot and the remote sync payload.
type BellManagerState struct {
	Schedules                []BellSchedule   `json:"schedules" validate:"dive"`
	ActiveScheduleID         string           `json:"activeScheduleId,omitempty"`
	AudioAssets              []BellAudioAsset `json:"audioAssets" validate:"dive"`
	ToneProfiles             []ToneProfile    `json:"toneProfiles" validate:"dive"`
	BackgroundExecution      bool             `json:"backgroundExecution"`
	WidgetVisible            bool             `json:"widgetVisible"`
	InstallReminderDismissed bool             `json:"installReminderDismissed"`
}

// DefaultToneProfile is used when no valid profile survives loading.
func DefaultToneProfile() ToneProfile {
	return ToneProfile{
		ID:      DefaultToneProfileID,
		Name:    "Standard",
		Default: "classic-bell",
		Sounds: map[Category]string{
			CategoryLessonStart: "classic-bell",
			CategoryLessonEnd:   "classic-bell",
			CategoryBreak:       "break-chime",
			CategoryPrayer:      "prayer-chime",
		},
	}
}

// DefaultState is the state used on first start or when the local
// snapshot is missing or unreadable.
func DefaultState() BellManagerState {
	return BellManagerState{
		Schedules:    []BellSchedule{},
		ToneProfiles: []ToneProfile{DefaultToneProfile()},
		AudioAssets: []BellAudioAsset{
			{ID: "classic-bell", Title: "Classic bell", Status: AssetPending},
			{ID: "break-chime", Title: "Break chime", Status: AssetPending},
			{ID: "prayer-chime", Title: "Prayer chime", Status: AssetPending},
		},
		WidgetVisible: true,
	}
}

// Clone returns a deep copy so callers can never alias manager-owned slices.
func (s BellManagerState) Clone() BellManagerState {
	out := s
	out.Schedules = make([]BellSchedule, len(s.Schedules))
	for i, sched := range s.Schedules {
		events := make([]BellEvent, len(sched.Events))
		for j, e := range sched.Events {
			if e.Recurrence.Days != nil {
				e.Recurrence.Days = append([]time.Weekday(nil), e.Recurrence.Days...)
			}
			events[j] = e
		}
		sched.Events = events
		out.Schedules[i] = sched
	}
	out.AudioAssets = make([]BellAudioAsset, len(s.AudioAssets))
	for i, a := range s.AudioAssets {
		if a.LastSync != nil {
			t := *a.LastSync
			a.LastSync = &t
		}
		out.AudioAssets[i] = a
	}
	out.ToneProfiles = make([]ToneProfile, len(s.ToneProfiles))
	for i, p := range s.ToneProfiles {
		out.ToneProfiles[i] = p.clone()
	}
	return out
}

// ActiveSchedule returns the schedule referenced by ActiveScheduleID.
func (s BellManagerState) ActiveSchedule() (BellSchedule, bool) {
	return s.Schedule(s.ActiveScheduleID)
}

// Schedule finds a schedule by id.
func (s BellManagerState) Schedule(id string) (BellSchedule, bool) {
	if id == "" {
		return BellSchedule{}, false
	}
	for _, sched := range s.Schedules {
		if sched.ID == id {
			return sched, true
		}
	}
	return BellSchedule{}, false
}

// ToneProfile finds a tone profile by id.
func (s BellManagerState) ToneProfile(id string) (ToneProfile, bool) {
	for _, p := range s.ToneProfiles {
		if p.ID == id {
			return p, true
		}
	}
	return ToneProfile{}, false
}

// AudioAsset finds an audio asset by id.
func (s BellManagerState) AudioAsset(id string) (BellAudioAsset, bool) {
	for _, a := range s.AudioAssets {
		if a.ID == id {
			return a, true
		}
	}
	return BellAudioAsset{}, false
}
