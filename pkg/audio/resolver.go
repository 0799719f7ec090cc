package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/cache"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"golang.org/x/sync/singleflight"
)

const (
	loadTimeout     = 2 * time.Minute
	downloadTimeout = 10 * time.Minute
)

// Outcome is the only result a playback attempt surfaces to callers.
type Outcome string

const (
	OutcomePlayed         Outcome = "played"
	OutcomeFallbackPlayed Outcome = "fallback-played"
	OutcomeFailed         Outcome = "failed"
)

// Catalog looks up audio assets. The state manager is the catalog of record;
// the cache never decides which sounds exist.
type Catalog interface {
	AudioAsset(id string) (models.BellAudioAsset, bool)
}

// Progress is reported while a download streams in.
type Progress struct {
	Received int64
	Total    int64
	Percent  float64
}

// Options configures a Resolver. Cache, Catalog and Device are required.
type Options struct {
	Cache   cache.Store
	Catalog Catalog
	Device  Device
	Tone    Tone // defaults to a ToneGenerator on Device
	Client  *http.Client
	Logger  logger.Logger
	Now     func() time.Time
}

// Resolver turns sound ids into sound: cache first, then the asset URL,
// then the fallback tone.
type Resolver struct {
	cache   cache.Store
	catalog Catalog
	device  Device
	tone    Tone
	client  *http.Client
	log     logger.Logger
	now     func() time.Time

	loads     singleflight.Group
	downloads singleflight.Group

	mu          sync.Mutex
	clips       map[string]*Clip
	downloading map[string]bool
	failed      map[string]bool
	lastErr     error
	watchers    map[string]map[int]func(Progress)
	nextWatcher int
}

func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		cache:       opts.Cache,
		catalog:     opts.Catalog,
		device:      opts.Device,
		tone:        opts.Tone,
		client:      opts.Client,
		log:         opts.Logger,
		now:         opts.Now,
		clips:       make(map[string]*Clip),
		downloading: make(map[string]bool),
		failed:      make(map[string]bool),
		watchers:    make(map[string]map[int]func(Progress)),
	}
	if r.cache == nil {
		r.cache = cache.Unavailable{}
	}
	if r.tone == nil {
		r.tone = NewToneGenerator(r.device)
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: 2 * time.Minute}
	}
	if r.log == nil {
		r.log = logger.NewNopLogger()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// PlayEvent plays the sound assigned to event.
func (r *Resolver) PlayEvent(ctx context.Context, event models.BellEvent) Outcome {
	outcome, _ := r.Play(ctx, event.SoundID)
	return outcome
}

// PreviewSound plays soundID through the same tiers as a scheduled bell.
func (r *Resolver) PreviewSound(ctx context.Context, soundID string) Outcome {
	outcome, _ := r.Play(ctx, soundID)
	return outcome
}

// Play resolves and plays soundID. The returned error explains why the
// original sound could not be played; it is set for fallback-played and
// failed outcomes and nil for played.
func (r *Resolver) Play(ctx context.Context, soundID string) (Outcome, error) {
	cause := r.playSound(ctx, soundID)
	if cause == nil {
		return OutcomePlayed, nil
	}
	r.log.Warning("[PLAYBACK] %s unavailable, using fallback tone: %v", soundID, cause)

	if err := r.tone.Play(ctx); err != nil {
		err = errors.Join(cause, err)
		r.setLastError(err)
		r.log.Error("[PLAYBACK] fallback tone failed: %v", err)
		return OutcomeFailed, err
	}
	r.setLastError(cause)
	return OutcomeFallbackPlayed, cause
}

func (r *Resolver) playSound(ctx context.Context, soundID string) error {
	if soundID == "" {
		return ErrNoSound
	}
	clip, err := r.load(ctx, soundID)
	if err != nil {
		return err
	}
	if r.device == nil {
		return ErrNoDevice
	}
	if err := r.device.Play(ctx, clip); err != nil {
		return fmt.Errorf("play %s: %w", soundID, err)
	}
	return nil
}

// load returns the memoized clip for soundID, loading it at most once even
// when called concurrently. The shared load is not tied to any one caller,
// so a caller giving up does not fail the others waiting on it.
func (r *Resolver) load(ctx context.Context, soundID string) (*Clip, error) {
	r.mu.Lock()
	clip, ok := r.clips[soundID]
	r.mu.Unlock()
	if ok {
		return clip, nil
	}

	ch := r.loads.DoChan(soundID, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		clip, err := r.loadUncached(lctx, soundID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.clips[soundID] = clip
		r.mu.Unlock()
		return clip, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Clip), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("load %s: %w", soundID, ctx.Err())
	}
}

func (r *Resolver) loadUncached(ctx context.Context, soundID string) (*Clip, error) {
	if blob, ok := r.cache.Get(soundID); ok {
		clip, err := Decode(soundID, blob)
		if err == nil {
			return clip, nil
		}
		r.log.Warning("[PLAYBACK] cached %s is unreadable, trying remote: %v", soundID, err)
	}

	url, err := r.remoteURL(soundID)
	if err != nil {
		return nil, err
	}
	resp, err := r.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", soundID, err)
	}
	return Decode(soundID, blob)
}

func (r *Resolver) remoteURL(soundID string) (string, error) {
	if r.catalog == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownSound, soundID)
	}
	asset, ok := r.catalog.AudioAsset(soundID)
	switch {
	case !ok:
		return "", fmt.Errorf("%w: %s", ErrUnknownSound, soundID)
	case asset.Status == models.AssetMissing:
		return "", fmt.Errorf("%w: %s", ErrAssetMissing, soundID)
	case asset.URL == "":
		return "", fmt.Errorf("%w: %s", ErrNoURL, soundID)
	}
	return asset.URL, nil
}

func (r *Resolver) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	return resp, nil
}

// DownloadAudio streams soundID's remote file into the cache. Concurrent
// calls for the same id share one download and each gets its progress.
// onProgress may be nil and is only called when the server reports a
// content length. A caller whose ctx ends gets false without aborting the
// shared download.
func (r *Resolver) DownloadAudio(ctx context.Context, soundID string, onProgress func(Progress)) bool {
	if onProgress != nil {
		defer r.watchProgress(soundID, onProgress)()
	}
	ch := r.downloads.DoChan(soundID, func() (interface{}, error) {
		r.setDownloading(soundID, true)
		defer r.setDownloading(soundID, false)

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), downloadTimeout)
		defer cancel()
		err := r.download(dctx, soundID, func(p Progress) { r.reportProgress(soundID, p) })
		r.mu.Lock()
		r.failed[soundID] = err != nil
		r.mu.Unlock()
		if err != nil {
			r.setLastError(err)
			r.log.Error("[DOWNLOAD] %s: %v", soundID, err)
			return false, nil
		}
		r.log.Info("[DOWNLOAD] %s cached", soundID)
		return true, nil
	})
	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

func (r *Resolver) watchProgress(soundID string, fn func(Progress)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextWatcher
	r.nextWatcher++
	if r.watchers[soundID] == nil {
		r.watchers[soundID] = make(map[int]func(Progress))
	}
	r.watchers[soundID][id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers[soundID], id)
		if len(r.watchers[soundID]) == 0 {
			delete(r.watchers, soundID)
		}
	}
}

func (r *Resolver) reportProgress(soundID string, p Progress) {
	r.mu.Lock()
	fns := make([]func(Progress), 0, len(r.watchers[soundID]))
	for _, fn := range r.watchers[soundID] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (r *Resolver) download(ctx context.Context, soundID string, onProgress func(Progress)) error {
	url, err := r.remoteURL(soundID)
	if err != nil {
		return err
	}
	resp, err := r.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if resp.ContentLength > 0 {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, fn: onProgress}
	}
	blob, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("download %s: %w", soundID, err)
	}

	meta := cache.Metadata{URL: url, ContentType: resp.Header.Get("Content-Type"), CachedAt: r.now()}
	if !r.cache.Put(soundID, blob, meta) {
		return fmt.Errorf("download %s: cache write failed", soundID)
	}
	return nil
}

type progressReader struct {
	r        io.Reader
	received int64
	total    int64
	fn       func(Progress)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.received += int64(n)
		p.fn(Progress{
			Received: p.received,
			Total:    p.total,
			Percent:  float64(p.received) * 100 / float64(p.total),
		})
	}
	return n, err
}

func (r *Resolver) setDownloading(soundID string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on {
		r.downloading[soundID] = true
	} else {
		delete(r.downloading, soundID)
	}
}

func (r *Resolver) setLastError(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// LastError returns the most recent resolution, playback or download error.
func (r *Resolver) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// IsCached reports whether soundID has a blob in the cache.
func (r *Resolver) IsCached(soundID string) bool {
	return r.cache.Exists(soundID)
}

// CacheStatus reports where soundID stands in the cache.
func (r *Resolver) CacheStatus(soundID string) models.CacheStatus {
	r.mu.Lock()
	downloading, failed := r.downloading[soundID], r.failed[soundID]
	r.mu.Unlock()
	switch {
	case downloading:
		return models.CacheDownloading
	case r.cache.Exists(soundID):
		return models.CacheCached
	case failed:
		return models.CacheError
	default:
		return models.CacheNotCached
	}
}

// WithCacheStatus returns a copy of assets with LocalStatus filled in.
func (r *Resolver) WithCacheStatus(assets []models.BellAudioAsset) []models.BellAudioAsset {
	out := make([]models.BellAudioAsset, len(assets))
	for i, a := range assets {
		a.LocalStatus = r.CacheStatus(a.ID)
		out[i] = a
	}
	return out
}

// RemoveCached drops soundID from the cache and from memory.
func (r *Resolver) RemoveCached(soundID string) bool {
	r.mu.Lock()
	delete(r.clips, soundID)
	delete(r.failed, soundID)
	r.mu.Unlock()
	return r.cache.Delete(soundID)
}

// ClearCache empties the cache and every loaded clip.
func (r *Resolver) ClearCache() bool {
	r.mu.Lock()
	r.clips = make(map[string]*Clip)
	r.failed = make(map[string]bool)
	r.mu.Unlock()
	return r.cache.DeleteAll()
}

// CachedSize is the total size of cached blobs in bytes.
func (r *Resolver) CachedSize() int64 {
	return r.cache.TotalSize()
}

// CachedEntries lists the cache contents.
func (r *Resolver) CachedEntries() []cache.Entry {
	return r.cache.ListAll()
}
