package audio

import "errors"

var (
	// ErrNoSound means the event has no sound id assigned.
	ErrNoSound = errors.New("no sound assigned")
	// ErrUnknownSound means the sound id is not in the asset catalog.
	ErrUnknownSound = errors.New("sound not in catalog")
	// ErrAssetMissing means the catalog marks the asset as missing.
	ErrAssetMissing = errors.New("audio asset is missing")
	// ErrNoURL means the asset has no remote URL to load from.
	ErrNoURL = errors.New("audio asset has no URL")
	// ErrUnsupportedFormat is returned for audio that cannot be decoded.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNoDevice means no audio output could be opened.
	ErrNoDevice = errors.New("audio output unavailable")
)
