package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/ebitengine/oto/v3"
)

// Device plays clips on an audio output.
type Device interface {
	// Resume wakes the output, creating it on first use.
	Resume() error
	// Play blocks until the clip has finished or ctx is done.
	Play(ctx context.Context, clip *Clip) error
}

// OutputFormat is the format of the shared oto context. Clips in any other
// format are converted before playback.
var OutputFormat = Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

// oto allows a single context per process.
var (
	globalAudioCtx     *oto.Context
	globalAudioCtxErr  error
	globalAudioCtxOnce sync.Once
)

func initAudioContext(l logger.Logger) (*oto.Context, error) {
	globalAudioCtxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   OutputFormat.SampleRate,
			ChannelCount: OutputFormat.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			globalAudioCtxErr = fmt.Errorf("%w: %v", ErrNoDevice, err)
			l.Error("[AUDIO] Failed to initialize audio context: %v", err)
			return
		}

		// Wait for the hardware audio devices to be ready
		<-readyChan

		globalAudioCtx = ctx
		l.Info("[AUDIO] Audio context initialized successfully")
	})
	return globalAudioCtx, globalAudioCtxErr
}

// OtoDevice plays clips through the process-wide oto context.
type OtoDevice struct {
	log logger.Logger
	mu  sync.Mutex // one clip at a time
}

// NewOtoDevice returns a device; the oto context is created lazily.
func NewOtoDevice(l logger.Logger) *OtoDevice {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &OtoDevice{log: l}
}

func (d *OtoDevice) Resume() error {
	ctx, err := initAudioContext(d.log)
	if err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return fmt.Errorf("resume audio context: %w", err)
	}
	return nil
}

func (d *OtoDevice) Play(ctx context.Context, clip *Clip) error {
	if err := d.Resume(); err != nil {
		return err
	}
	pcm := convert(clip, OutputFormat)
	if len(pcm) == 0 {
		return fmt.Errorf("play %s: empty clip", clip.SoundID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	player := globalAudioCtx.NewPlayer(bytes.NewReader(pcm))
	defer func() {
		if err := player.Close(); err != nil {
			d.log.Warning("[AUDIO] Failed to close audio player: %v", err)
		}
	}()
	player.Play()

	// Wait for the sound to finish playing or cancellation
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := player.Err(); err != nil {
		return fmt.Errorf("play %s: %w", clip.SoundID, err)
	}
	return nil
}
