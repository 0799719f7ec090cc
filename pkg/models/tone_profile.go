package models

// ToneProfile maps event categories to sound ids. Default is the mandatory
// generic fallback used for any category without an explicit entry.
type ToneProfile struct {
	ID      string              `json:"id" validate:"required"`
	Name    string              `json:"name" validate:"required"`
	Sounds  map[Category]string `json:"sounds,omitempty"`
	Default string              `json:"default" validate:"required"`
}

// SoundFor resolves the sound id for a category.
func (p ToneProfile) SoundFor(c Category) string {
	if id, ok := p.Sounds[c]; ok && id != "" {
		return id
	}
	return p.Default
}

// Assign returns a copy of s where every event without a sound id gets the
// profile's sound for its category.
func (p ToneProfile) Assign(s BellSchedule) BellSchedule {
	events := make([]BellEvent, len(s.Events))
	for i, e := range s.Events {
		if e.SoundID == "" {
			e.SoundID = p.SoundFor(e.Category)
		}
		events[i] = e
	}
	s.Events = events
	return s
}

func (p ToneProfile) clone() ToneProfile {
	if p.Sounds != nil {
		sounds := make(map[Category]string, len(p.Sounds))
		for k, v := range p.Sounds {
			sounds[k] = v
		}
		p.Sounds = sounds
	}
	return p
}
