package models

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidState is wrapped by every validation failure.
var ErrInvalidState = errors.New("invalid bell configuration")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
			_, _, err := ParseTimeOfDay(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

func invalid(what, id string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", ErrInvalidState, what, id, err)
}

// ValidateEvent checks a single bell event.
func ValidateEvent(e BellEvent) error {
	if err := validatorInstance().Struct(e); err != nil {
		return invalid("event", e.ID, err)
	}
	return nil
}

// ValidateSchedule checks a schedule and all of its events. Event ids must
// be unique inside a schedule because they are part of the dedup key.
func ValidateSchedule(s BellSchedule) error {
	if err := validatorInstance().Struct(s); err != nil {
		return invalid("schedule", s.ID, err)
	}
	seen := make(map[string]bool, len(s.Events))
	for _, e := range s.Events {
		if seen[e.ID] {
			return invalid("schedule", s.ID, fmt.Errorf("duplicate event id %q", e.ID))
		}
		seen[e.ID] = true
	}
	return nil
}

// ValidateToneProfile checks that every mapped key is a known category and
// that the generic fallback is present, so the mapping is exhaustive.
func ValidateToneProfile(p ToneProfile) error {
	if err := validatorInstance().Struct(p); err != nil {
		return invalid("tone profile", p.ID, err)
	}
	for c := range p.Sounds {
		if !c.Valid() {
			return invalid("tone profile", p.ID, fmt.Errorf("unknown category %q", c))
		}
	}
	return nil
}

// ValidateState checks the whole aggregate and fails on the first problem.
func ValidateState(s BellManagerState) error {
	for _, p := range s.ToneProfiles {
		if err := ValidateToneProfile(p); err != nil {
			return err
		}
	}
	if len(s.ToneProfiles) == 0 {
		return fmt.Errorf("%w: at least one tone profile is required", ErrInvalidState)
	}
	for _, sched := range s.Schedules {
		if err := ValidateSchedule(sched); err != nil {
			return err
		}
	}
	for _, a := range s.AudioAssets {
		if err := validatorInstance().Struct(a); err != nil {
			return invalid("audio asset", a.ID, err)
		}
	}
	return nil
}

// Sanitize drops the invalid parts of a loaded state instead of rejecting it
// wholesale, and returns one message per dropped item. It guarantees at
// least one tone profile exists. A dangling active schedule id is reported
// but kept: it simply selects no schedule until a matching one appears.
func Sanitize(s BellManagerState) (BellManagerState, []string) {
	var problems []string

	profiles := make([]ToneProfile, 0, len(s.ToneProfiles))
	for _, p := range s.ToneProfiles {
		if err := ValidateToneProfile(p); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 {
		profiles = append(profiles, DefaultToneProfile())
	}
	s.ToneProfiles = profiles

	schedules := make([]BellSchedule, 0, len(s.Schedules))
	for _, sched := range s.Schedules {
		if err := ValidateSchedule(sched); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		schedules = append(schedules, sched)
	}
	s.Schedules = schedules

	assets := make([]BellAudioAsset, 0, len(s.AudioAssets))
	for _, a := range s.AudioAssets {
		if err := validatorInstance().Struct(a); err != nil {
			problems = append(problems, invalid("audio asset", a.ID, err).Error())
			continue
		}
		assets = append(assets, a)
	}
	s.AudioAssets = assets

	if _, ok := s.ActiveSchedule(); !ok && s.ActiveScheduleID != "" {
		problems = append(problems, fmt.Sprintf("active schedule %q not found", s.ActiveScheduleID))
	}
	return s, problems
}
