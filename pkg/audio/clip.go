package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Clip is a decoded, ready-to-play sound. It is the playable handle the
// resolver memoizes per sound id.
type Clip struct {
	SoundID string
	Format  Format
	PCM     []byte
}

// Duration is the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	frame := c.Format.Channels * c.Format.BitDepth / 8
	if frame == 0 || c.Format.SampleRate == 0 {
		return 0
	}
	frames := len(c.PCM) / frame
	return time.Duration(frames) * time.Second / time.Duration(c.Format.SampleRate)
}

// Decode sniffs data and decodes WAV (8 or 16 bit PCM) or MP3.
func Decode(soundID string, data []byte) (*Clip, error) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		format, pcm, err := parseWAV(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", soundID, err)
		}
		return &Clip{SoundID: soundID, Format: *format, PCM: pcm}, nil
	case looksLikeMP3(data):
		clip, err := decodeMP3(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", soundID, err)
		}
		clip.SoundID = soundID
		return clip, nil
	default:
		return nil, fmt.Errorf("decode %s: %w", soundID, ErrUnsupportedFormat)
	}
}

func looksLikeMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	// MPEG audio frame sync
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeMP3(data []byte) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	// go-mp3 always produces 16 bit stereo
	return &Clip{Format: Format{SampleRate: dec.SampleRate(), Channels: 2, BitDepth: 16}, PCM: pcm}, nil
}

// parseWAV parses a WAV file and returns the format and audio data
func parseWAV(data []byte) (*Format, []byte, error) {
	reader := bytes.NewReader(data)

	header := make([]byte, 12)
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, nil, fmt.Errorf("read RIFF header: %w", err)
	}

	var format *Format
	for {
		chunkID := make([]byte, 4)
		if _, err := io.ReadFull(reader, chunkID); err != nil {
			return nil, nil, fmt.Errorf("no data chunk: %w", err)
		}
		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return nil, nil, err
		}

		switch string(chunkID) {
		case "fmt ":
			if chunkSize < 16 {
				return nil, nil, fmt.Errorf("short fmt chunk (%d bytes)", chunkSize)
			}
			var fmtChunk struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(reader, binary.LittleEndian, &fmtChunk); err != nil {
				return nil, nil, err
			}
			if fmtChunk.AudioFormat != 1 {
				return nil, nil, fmt.Errorf("%w: WAV encoding %d", ErrUnsupportedFormat, fmtChunk.AudioFormat)
			}
			if fmtChunk.BitsPerSample != 8 && fmtChunk.BitsPerSample != 16 {
				return nil, nil, fmt.Errorf("%w: %d bit WAV", ErrUnsupportedFormat, fmtChunk.BitsPerSample)
			}
			format = &Format{
				SampleRate: int(fmtChunk.SampleRate),
				Channels:   int(fmtChunk.NumChannels),
				BitDepth:   int(fmtChunk.BitsPerSample),
			}
			// Skip any extra format bytes
			if _, err := reader.Seek(int64(chunkSize-16+chunkSize%2), io.SeekCurrent); err != nil {
				return nil, nil, err
			}
		case "data":
			if format == nil {
				return nil, nil, fmt.Errorf("data chunk before fmt chunk")
			}
			size := int(chunkSize)
			if size > reader.Len() {
				size = reader.Len()
			}
			audioData := make([]byte, size)
			if _, err := io.ReadFull(reader, audioData); err != nil {
				return nil, nil, err
			}
			return format, audioData, nil
		default:
			// chunks are word aligned
			if _, err := reader.Seek(int64(chunkSize+chunkSize%2), io.SeekCurrent); err != nil {
				return nil, nil, err
			}
		}
	}
}

// convert returns c's samples as 16 bit PCM in the target rate and channel
// count. Resampling is nearest-neighbour, which is enough for bells.
func convert(c *Clip, target Format) []byte {
	if c.Format == target {
		return c.PCM
	}

	inCh := c.Format.Channels
	if inCh < 1 {
		inCh = 1
	}
	bytesPerSample := c.Format.BitDepth / 8
	if bytesPerSample < 1 || bytesPerSample > 2 {
		return nil
	}
	frames := len(c.PCM) / (inCh * bytesPerSample)

	sample := func(frame, ch int) int16 {
		if ch >= inCh {
			ch = inCh - 1
		}
		off := (frame*inCh + ch) * bytesPerSample
		if bytesPerSample == 1 {
			return int16(int(c.PCM[off])-128) << 8
		}
		return int16(binary.LittleEndian.Uint16(c.PCM[off:]))
	}

	outFrames := frames
	if c.Format.SampleRate != target.SampleRate && c.Format.SampleRate > 0 {
		outFrames = int(int64(frames) * int64(target.SampleRate) / int64(c.Format.SampleRate))
	}

	out := make([]byte, outFrames*target.Channels*2)
	for i := 0; i < outFrames; i++ {
		src := i
		if outFrames != frames {
			src = int(int64(i) * int64(c.Format.SampleRate) / int64(target.SampleRate))
		}
		for ch := 0; ch < target.Channels; ch++ {
			v := sample(src, ch)
			if inCh > 1 && target.Channels == 1 {
				v = int16((int32(sample(src, 0)) + int32(sample(src, 1))) / 2)
			}
			binary.LittleEndian.PutUint16(out[(i*target.Channels+ch)*2:], uint16(v))
		}
	}
	return out
}
