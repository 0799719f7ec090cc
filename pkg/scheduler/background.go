package scheduler

import (
	"context"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/clock"
	"github.com/albarqi19/alraed-sub006/pkg/logger"
)

// maxSleepCap bounds each background sleep so clock steps, DST changes and
// host suspend are noticed within a minute.
const maxSleepCap = 60 * time.Second

// Background is the actor behind the background clock. Its state lives only
// in the run goroutine.
type Background struct {
	inbox chan Message
	wake  chan struct{}
	out   chan TriggerMsg
	ctx   context.Context
	clock clock.Clock
	log   logger.Logger
}

// StartBackground starts the actor. post receives every trigger on a
// dedicated goroutine. Both goroutines exit when ctx is cancelled.
func StartBackground(ctx context.Context, clk clock.Clock, l logger.Logger, post func(TriggerMsg)) *Background {
	b := &Background{
		inbox: make(chan Message, 64),
		wake:  make(chan struct{}, 1),
		out:   make(chan TriggerMsg, 16),
		ctx:   ctx,
		clock: clk,
		log:   l,
	}
	go b.run()
	go b.deliver(post)
	return b
}

// Send enqueues msg for the actor.
func (b *Background) Send(msg Message) {
	select {
	case b.inbox <- msg:
	case <-b.ctx.Done():
	}
}

func (b *Background) deliver(post func(TriggerMsg)) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg := <-b.out:
			post(msg)
		}
	}
}

func (b *Background) run() {
	var armed *ScheduleMsg
	var timer clock.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	// resetTimer sleeps until the armed target, at most maxSleepCap.
	resetTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
		if armed == nil {
			return
		}
		dur := armed.Target.Sub(b.clock.Now())
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = b.clock.AfterFunc(dur, func() {
			select {
			case b.wake <- struct{}{}:
			default:
				// a wake-up is already pending
			}
		})
	}

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg := <-b.inbox:
			switch m := msg.(type) {
			case ScheduleMsg:
				armed = &m
				b.log.Info("[BACKGROUND] armed %s at %s", m.EventID, m.Target.Format(time.RFC3339))
			case CancelMsg:
				armed = nil
			}
			resetTimer()

		case <-b.wake:
			if armed == nil {
				continue
			}
			now := b.clock.Now()
			if now.Before(armed.Target) {
				resetTimer()
				continue
			}
			trig := TriggerMsg{EventID: armed.EventID, Target: armed.Target, FiredAt: now}
			armed = nil
			timer = nil
			select {
			case b.out <- trig:
			case <-b.ctx.Done():
				return
			}
		}
	}
}
