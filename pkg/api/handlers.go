package api

import (
	"context"
	"net/http"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/cache"
	"github.com/albarqi19/alraed-sub006/pkg/engine"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/albarqi19/alraed-sub006/pkg/store"
	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// manualPlayTimeout bounds a hand-rung bell once it no longer follows the
// request that started it.
const manualPlayTimeout = 2 * time.Minute

type handlers struct {
	engine  *engine.Engine
	manager *store.Manager
	sounds  *audio.Resolver
	log     logger.Logger
}

type (
	activeScheduleRequest struct {
		ID string `json:"id"`
	}

	toggleRequest struct {
		Enabled *bool `json:"enabled" validate:"required"`
	}

	widgetRequest struct {
		Visible *bool `json:"visible" validate:"required"`
	}

	outcomeResponse struct {
		Outcome audio.Outcome `json:"outcome"`
	}

	cacheResponse struct {
		Entries        []cache.Entry           `json:"entries"`
		TotalSize      int64                   `json:"totalSize"`
		TotalSizeHuman string                  `json:"totalSizeHuman"`
		Assets         []models.BellAudioAsset `json:"assets"`
	}
)

func (h *handlers) bind(ctx echo.Context, dst interface{}) error {
	if err := ctx.Bind(dst); err != nil {
		return err
	}
	return ctx.Validate(dst)
}

func (h *handlers) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, h.engine.Status())
}

func (h *handlers) runLog(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, h.manager.RunLog())
}

func (h *handlers) state(ctx echo.Context) error {
	st := h.manager.State()
	st.AudioAssets = h.sounds.WithCacheStatus(st.AudioAssets)
	return ctx.JSON(http.StatusOK, st)
}

func (h *handlers) cacheList(ctx echo.Context) error {
	entries := h.sounds.CachedEntries()
	if entries == nil {
		entries = []cache.Entry{}
	}
	size := h.sounds.CachedSize()
	return ctx.JSON(http.StatusOK, cacheResponse{
		Entries:        entries,
		TotalSize:      size,
		TotalSizeHuman: humanize.Bytes(uint64(size)),
		Assets:         h.sounds.WithCacheStatus(h.manager.State().AudioAssets),
	})
}

// replaceState is the generic updater: the body replaces the whole state
// when it validates.
func (h *handlers) replaceState(ctx echo.Context) error {
	next := new(models.BellManagerState)
	if err := ctx.Bind(next); err != nil {
		return err
	}
	st, err := h.manager.UpdateValidated(func(models.BellManagerState) models.BellManagerState {
		return *next
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (h *handlers) setActiveSchedule(ctx echo.Context) error {
	req := new(activeScheduleRequest)
	if err := h.bind(ctx, req); err != nil {
		return err
	}
	if err := h.manager.SetActiveSchedule(req.ID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, h.engine.Status())
}

func (h *handlers) setBackground(ctx echo.Context) error {
	req := new(toggleRequest)
	if err := h.bind(ctx, req); err != nil {
		return err
	}
	h.manager.SetBackgroundExecution(*req.Enabled)
	return ctx.JSON(http.StatusOK, h.engine.Status())
}

func (h *handlers) setWidget(ctx echo.Context) error {
	req := new(widgetRequest)
	if err := h.bind(ctx, req); err != nil {
		return err
	}
	h.manager.SetWidgetVisibility(*req.Visible)
	return ctx.JSON(http.StatusOK, echo.Map{"visible": *req.Visible})
}

// playEvent rings a bell by hand. The ring is logged, so it plays out even
// when the client disconnects first.
func (h *handlers) playEvent(ctx echo.Context) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx.Request().Context()), manualPlayTimeout)
	defer cancel()
	outcome, err := h.engine.TriggerManual(pctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, outcomeResponse{Outcome: outcome})
}

func (h *handlers) previewSound(ctx echo.Context) error {
	outcome := h.engine.Preview(ctx.Request().Context(), ctx.Param("id"))
	return ctx.JSON(http.StatusOK, outcomeResponse{Outcome: outcome})
}

func (h *handlers) downloadSound(ctx echo.Context) error {
	id := ctx.Param("id")
	if h.engine.Download(ctx.Request().Context(), id, nil) {
		return ctx.JSON(http.StatusOK, echo.Map{"downloaded": true, "status": h.sounds.CacheStatus(id)})
	}
	msg := "download failed"
	if err := h.sounds.LastError(); err != nil {
		msg = err.Error()
	}
	return echo.NewHTTPError(http.StatusBadGateway, msg)
}

func (h *handlers) removeCached(ctx echo.Context) error {
	id := ctx.Param("id")
	if !h.sounds.RemoveCached(id) {
		return echo.NewHTTPError(http.StatusNotFound, "sound not cached: "+id)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (h *handlers) clearCache(ctx echo.Context) error {
	if !h.sounds.ClearCache() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "cache unavailable")
	}
	return ctx.NoContent(http.StatusNoContent)
}
