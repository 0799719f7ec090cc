package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	ToneFrequency = 660.0
	ToneDuration  = 5 * time.Second
	toneAttack    = 50 * time.Millisecond
	toneDecay     = 600 * time.Millisecond
	toneGain      = 0.35
)

// Tone is a fallback cue that needs no sound asset.
type Tone interface {
	Play(ctx context.Context) error
}

// ToneGenerator synthesizes the fallback tone once and plays it on a Device.
type ToneGenerator struct {
	device Device
	once   sync.Once
	clip   *Clip
}

func NewToneGenerator(device Device) *ToneGenerator {
	return &ToneGenerator{device: device}
}

// Play resumes the output and plays the tone. Any failure, including an
// output that cannot be created or resumed, is returned as an error.
func (g *ToneGenerator) Play(ctx context.Context) error {
	if g.device == nil {
		return ErrNoDevice
	}
	if err := g.device.Resume(); err != nil {
		return fmt.Errorf("fallback tone: %w", err)
	}
	g.once.Do(func() {
		g.clip = SynthesizeTone(ToneFrequency, ToneDuration, OutputFormat.SampleRate)
	})
	if err := g.device.Play(ctx, g.clip); err != nil {
		return fmt.Errorf("fallback tone: %w", err)
	}
	return nil
}

// SynthesizeTone renders a mono 16 bit triangle wave with a linear attack,
// a flat sustain and a linear decay to silence.
func SynthesizeTone(freq float64, d time.Duration, sampleRate int) *Clip {
	n := int(d.Seconds() * float64(sampleRate))
	attack := int(toneAttack.Seconds() * float64(sampleRate))
	decay := int(toneDecay.Seconds() * float64(sampleRate))
	pcm := make([]byte, n*2)

	for i := 0; i < n; i++ {
		phase := float64(i) * freq / float64(sampleRate)
		tri := 4*math.Abs(phase-math.Floor(phase+0.5)) - 1

		gain := toneGain
		switch {
		case i < attack:
			gain *= float64(i) / float64(attack)
		case i >= n-decay:
			gain *= float64(n-i) / float64(decay)
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(tri*gain*math.MaxInt16)))
	}
	return &Clip{
		SoundID: "fallback-tone",
		Format:  Format{SampleRate: sampleRate, Channels: 1, BitDepth: 16},
		PCM:     pcm,
	}
}
