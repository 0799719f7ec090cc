package api

import (
	"context"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/engine"
	cws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
)

const (
	feedBuffer       = 32
	feedWriteTimeout = 5 * time.Second
)

// feed streams engine feed events to a websocket client until either side
// goes away. Events are dropped for clients that fall behind.
func (h *handlers) feed(ctx echo.Context) error {
	conn, err := cws.Accept(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// Accept already wrote the error response
		h.log.Warning("[API] feed handshake failed: %v", err)
		return nil
	}
	defer conn.CloseNow()

	events := make(chan engine.FeedEvent, feedBuffer)
	unsubscribe := h.engine.SubscribeFeed(func(ev engine.FeedEvent) {
		select {
		case events <- ev:
		default:
			h.log.Warning("[API] feed client is slow, dropping %s event", ev.Kind)
		}
	})
	defer unsubscribe()

	// the client never sends; CloseRead handles pings and cancels on close
	readCtx := conn.CloseRead(ctx.Request().Context())

	if err := h.writeFeed(readCtx, conn, engine.FeedEvent{Kind: engine.FeedUpcoming, Upcoming: h.engine.Status().Upcoming}); err != nil {
		return nil
	}
	for {
		select {
		case <-readCtx.Done():
			return nil
		case ev := <-events:
			if err := h.writeFeed(readCtx, conn, ev); err != nil {
				return nil
			}
		}
	}
}

func (h *handlers) writeFeed(ctx context.Context, conn *cws.Conn, ev engine.FeedEvent) error {
	wctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, ev); err != nil {
		h.log.Info("[API] feed client gone: %v", err)
		return err
	}
	return nil
}
