package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/example/ridebot/internal/messenger"
	"github.com/example/ridebot/internal/observability"
)

// Source yields inbound chat turns.
type Source interface {
	Events(ctx context.Context) (<-chan messenger.Event, error)
}

// Handler processes one turn.
type Handler interface {
	Handle(ctx context.Context, ev messenger.Event)
}

// Dispatcher fans inbound turns out to goroutines. Each chat has a queue
// drained by a single worker, so turns of one chat run one at a time in
// arrival order; different chats run concurrently.
type Dispatcher struct {
	source  Source
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[int64]*chatQueue
	wg     sync.WaitGroup
}

// chatQueue holds turns that arrived while the chat's worker was busy.
type chatQueue struct {
	pending []messenger.Event
}

func New(source Source, handler Handler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{source: source, handler: handler, logger: logger, queues: make(map[int64]*chatQueue)}
}

// Run consumes turns until ctx is done or the source closes, then waits for
// in-flight and queued turns to finish. Turns already accepted are not
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	in, err := d.source.Events(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}
	turnCtx := context.WithoutCancel(ctx)
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			d.enqueue(turnCtx, ev)
		}
	}
}

// enqueue appends ev to its chat's queue, starting a worker when the chat
// has none. It never blocks on a busy chat.
func (d *Dispatcher) enqueue(ctx context.Context, ev messenger.Event) {
	d.mu.Lock()
	if q, ok := d.queues[ev.ChatID]; ok {
		q.pending = append(q.pending, ev)
		observability.DispatchQueued.Inc()
		d.mu.Unlock()
		return
	}
	d.queues[ev.ChatID] = &chatQueue{}
	d.mu.Unlock()

	d.wg.Add(1)
	go d.drain(ctx, ev)
}

// drain runs first and then every turn queued behind it for the same chat.
// The worker exits, and the queue is dropped, once the queue is empty.
func (d *Dispatcher) drain(ctx context.Context, first messenger.Event) {
	defer d.wg.Done()
	chatID := first.ChatID
	ev := first
	for {
		d.dispatch(ctx, ev)

		d.mu.Lock()
		q := d.queues[chatID]
		if len(q.pending) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		ev = q.pending[0]
		q.pending[0] = messenger.Event{}
		q.pending = q.pending[1:]
		observability.DispatchQueued.Dec()
		d.mu.Unlock()
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev messenger.Event) {
	kind := "text"
	if ev.IsCallback {
		kind = "callback"
	}
	observability.TurnsTotal.WithLabelValues(kind).Inc()
	start := time.Now()
	defer func() {
		observability.TurnDuration.Observe(time.Since(start).Seconds())
		if rec := recover(); rec != nil {
			observability.TurnPanics.Inc()
			d.logger.Error("panic recovered", "chat_id", ev.ChatID, "error", rec, "stack", string(debug.Stack()))
		}
	}()
	d.handler.Handle(ctx, ev)
}

// activeChats reports how many chats have a running worker.
func (d *Dispatcher) activeChats() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}
