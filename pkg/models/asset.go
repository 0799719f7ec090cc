package models

import "time"

// AssetStatus is the catalog readiness of a sound.
type AssetStatus string

const (
	AssetReady   AssetStatus = "ready"
	AssetPending AssetStatus = "pending"
	AssetMissing AssetStatus = "missing"
)

// CacheStatus is observed by probing the asset cache. It is never
// authoritative state and is recomputed on every read.
type CacheStatus string

const (
	CacheNotCached   CacheStatus = "not-cached"
	CacheDownloading CacheStatus = "downloading"
	CacheCached      CacheStatus = "cached"
	CacheError       CacheStatus = "error"
)

// BellAudioAsset describes one playable sound in the catalog.
type BellAudioAsset struct {
	ID          string      `json:"id" validate:"required"`
	Title       string      `json:"title"`
	Duration    float64     `json:"duration,omitempty"` // seconds
	Size        int64       `json:"size,omitempty"`     // bytes
	Status      AssetStatus `json:"status" validate:"omitempty,oneof=ready pending missing"`
	URL         string      `json:"url,omitempty" validate:"omitempty,url"`
	LastSync    *time.Time  `json:"lastSync,omitempty"`
	LocalStatus CacheStatus `json:"localStatus,omitempty"`
}
