// Package api exposes the bell engine over HTTP: read views, commands and a
// websocket feed of run log changes.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/engine"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Engine         *engine.Engine
		Sounds         *audio.Resolver
		Logger         logger.Logger
	}

	Server struct {
		opts *Options
		app  *echo.Echo
		log  logger.Logger
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(opts *Options) *Server {
	s := &Server{
		opts: opts,
		app:  echo.New(),
		log:  opts.Logger,
	}
	if s.log == nil {
		s.log = logger.NewNopLogger()
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: glog.ERROR}))
	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.log)
	s.app.Validator = &requestValidator{v: validator.New()}

	h := &handlers{engine: s.opts.Engine, manager: s.opts.Engine.Manager(), sounds: s.opts.Sounds, log: s.log}
	g := s.app.Group("/api")

	g.GET("/status", h.status)
	g.GET("/log", h.runLog)
	g.GET("/cache", h.cacheList)
	g.GET("/state", h.state)
	g.GET("/feed", h.feed)

	g.PUT("/state", h.replaceState)
	g.PUT("/active-schedule", h.setActiveSchedule)
	g.PUT("/background", h.setBackground)
	g.PUT("/widget", h.setWidget)

	g.POST("/events/:id/play", h.playEvent)
	g.POST("/sounds/:id/preview", h.previewSound)
	g.POST("/sounds/:id/download", h.downloadSound)
	g.DELETE("/sounds/:id/cache", h.removeCached)
	g.DELETE("/cache", h.clearCache)
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.Info("[API] listening on %s", s.opts.Address)
	if err := s.app.Start(s.opts.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}
