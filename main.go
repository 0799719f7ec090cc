package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/albarqi19/alraed-sub006/pkg/api"
	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/cache"
	"github.com/albarqi19/alraed-sub006/pkg/config"
	"github.com/albarqi19/alraed-sub006/pkg/engine"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/platform"
	"github.com/albarqi19/alraed-sub006/pkg/remote"
	"github.com/albarqi19/alraed-sub006/pkg/scheduler"
	"github.com/albarqi19/alraed-sub006/pkg/store"
	"github.com/spf13/afero"
)

const (
	appID      = "edu.alraed.bells"
	appName    = "Alraed Bells"
	remoteWait = 15 * time.Second
)

// Bells is one running instance: state, playback, scheduling and the
// optional desktop and HTTP surfaces around them.
type Bells struct {
	cfg     *config.Config
	log     logger.Logger
	app     fyne.App // nil when headless
	manager *store.Manager
	blobs   cache.Store
	sounds  *audio.Resolver
	engine  *engine.Engine
	api     *api.Server

	widget      *statusWidget
	settings    *SettingsWindow
	trayMu      sync.Mutex
	trayKey     string
	unsubscribe func()
	closeOnce   sync.Once
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// openBells wires every component from cfg. fyneApp may be nil; it is only
// required by the preferences state backend and the desktop surfaces.
func openBells(ctx context.Context, cfg *config.Config, fyneApp fyne.App, l logger.Logger) (*Bells, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	local, err := openLocalStore(cfg, fyneApp)
	if err != nil {
		return nil, err
	}

	var rem store.Remote = remote.Nop{}
	if cfg.RemoteURL != "" {
		rem = remote.NewClient(cfg.RemoteURL, cfg.RemoteToken, remoteWait)
	}

	b := &Bells{cfg: cfg, log: l, app: fyneApp}
	b.manager = store.NewManager(ctx, store.Options{
		Local:    local,
		Remote:   rem,
		Logger:   l,
		Debounce: cfg.RemoteDebounce,
	})
	b.blobs = cache.Open(cfg.CacheDir(), l)
	b.sounds = audio.NewResolver(audio.Options{
		Cache:   b.blobs,
		Catalog: b.manager,
		Device:  audio.NewOtoDevice(l),
		Logger:  l,
	})
	b.engine = engine.New(engine.Options{
		Manager:   b.manager,
		Scheduler: scheduler.New(scheduler.Options{Logger: l}),
		Player:    b.sounds,
		Logger:    l,
	})
	if cfg.APIListen != "" {
		b.api = api.NewServer(&api.Options{
			Address:        cfg.APIListen,
			DisableReqLogs: true,
			Engine:         b.engine,
			Sounds:         b.sounds,
			Logger:         l,
		})
	}
	return b, nil
}

func openLocalStore(cfg *config.Config, fyneApp fyne.App) (store.LocalStore, error) {
	switch cfg.StateBackend {
	case config.BackendPreferences:
		if fyneApp == nil {
			return nil, errors.New("the preferences state backend needs the desktop app, use --state file")
		}
		return store.NewPreferencesStore(fyneApp), nil
	case config.BackendFile:
		return store.NewFileStore(afero.NewOsFs(), cfg.StateFile), nil
	default:
		return &store.MemoryStore{}, nil
	}
}

// commandLogger sends log lines to a file in the data dir so command output
// stays readable.
func commandLogger(cfg *config.Config) logger.Logger {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return logger.NewNopLogger()
	}
	l, err := logger.NewFileLogger(filepath.Join(cfg.DataDir, "alraed-bells.log"))
	if err != nil {
		return logger.NewNopLogger()
	}
	return l
}

// runDesktop shows the tray and, when enabled, the status widget, and
// blocks until the user quits.
func (b *Bells) runDesktop() {
	if err := syncAutostart(b.cfg.Autostart, b.log); err != nil {
		b.log.Warning("[AUTOSTART] %v", err)
	}

	b.widget = newStatusWidget(b)
	b.setupSystemTray()

	lc := b.app.Lifecycle()
	lc.SetOnStarted(func() {
		b.applyWidgetVisibility()
	})
	lc.SetOnEnteredForeground(func() {
		b.engine.SetForeground(true)
	})
	lc.SetOnExitedForeground(func() {
		// a desktop process keeps running with its windows unfocused
		if fyne.CurrentDevice().IsMobile() {
			b.engine.SetForeground(false)
		}
	})

	b.unsubscribe = b.manager.Subscribe(func() {
		fyne.Do(b.refreshSurfaces)
	})
	b.engine.Start()
	b.startAPI()
	b.app.Run()
}

// runHeadless serves the engine and API until ctx is cancelled or the
// process is signalled.
func (b *Bells) runHeadless(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b.engine.Start()
	b.startAPI()
	b.log.Info("[ENGINE] running headless")
	<-ctx.Done()
	return nil
}

func (b *Bells) startAPI() {
	if b.api == nil {
		return
	}
	go func() {
		if err := b.api.Start(); err != nil {
			b.log.Error("[API] %v", err)
		}
	}()
}

func (b *Bells) refreshSurfaces() {
	b.updateSystemTrayMenu()
	if b.widget != nil {
		b.widget.refresh()
	}
	if b.settings != nil {
		b.settings.refresh()
	}
	b.applyWidgetVisibility()
}

func (b *Bells) applyWidgetVisibility() {
	if b.widget == nil {
		return
	}
	visible := b.manager.State().WidgetVisible
	if visible == b.widget.visible {
		return
	}
	platform.SetDockIconVisible(visible)
	if visible {
		b.widget.show()
		platform.BringToFront()
	} else {
		b.widget.hide()
	}
}

// Close stops the engine, pushes any pending state and releases resources.
func (b *Bells) Close() {
	b.closeOnce.Do(b.close)
}

func (b *Bells) close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	if b.api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.api.Stop(ctx); err != nil {
			b.log.Warning("[API] shutdown: %v", err)
		}
		cancel()
	}
	b.engine.Stop()
	b.manager.Close()
	if err := b.blobs.Close(); err != nil {
		b.log.Warning("[CACHE] close: %v", err)
	}
	_ = b.log.Close()
}

func (b *Bells) quit() {
	b.Close()
	if b.app != nil {
		b.app.Quit()
	}
}

func newDesktopApp() fyne.App {
	return app.NewWithID(appID)
}
