package dispatch

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/ridebot/internal/logging"
	"github.com/example/ridebot/internal/messenger"
)

// chanSource implements Source over a test-owned channel
type chanSource struct {
	ch chan messenger.Event
}

func (s *chanSource) Events(ctx context.Context) (<-chan messenger.Event, error) {
	return s.ch, nil
}

// trackingHandler records the peak number of concurrent turns per chat
type trackingHandler struct {
	mu       sync.Mutex
	inFlight map[int64]int
	peak     map[int64]int
	handled  atomic.Int32
	delay    time.Duration
	panicOn  string
}

func newTrackingHandler(delay time.Duration) *trackingHandler {
	return &trackingHandler{inFlight: map[int64]int{}, peak: map[int64]int{}, delay: delay}
}

func (h *trackingHandler) Handle(ctx context.Context, ev messenger.Event) {
	defer h.handled.Add(1)
	if ev.Text == h.panicOn && h.panicOn != "" {
		panic("boom")
	}
	h.mu.Lock()
	h.inFlight[ev.ChatID]++
	if h.inFlight[ev.ChatID] > h.peak[ev.ChatID] {
		h.peak[ev.ChatID] = h.inFlight[ev.ChatID]
	}
	h.mu.Unlock()

	time.Sleep(h.delay)

	h.mu.Lock()
	h.inFlight[ev.ChatID]--
	h.mu.Unlock()
}

func TestSameChatTurnsNeverOverlap(t *testing.T) {
	src := &chanSource{ch: make(chan messenger.Event)}
	h := newTrackingHandler(2 * time.Millisecond)
	d := New(src, h, logging.Discard())

	done := make(chan error)
	go func() { done <- d.Run(context.Background()) }()

	for i := 0; i < 20; i++ {
		src.ch <- messenger.Event{ChatID: int64(1 + i%2), Text: "x"}
	}
	close(src.ch)
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := h.handled.Load(); got != 20 {
		t.Fatalf("expected 20 turns handled before Run returned, got %d", got)
	}
	for chat, peak := range h.peak {
		if peak != 1 {
			t.Fatalf("chat %d had %d concurrent turns", chat, peak)
		}
	}
	if n := d.activeChats(); n != 0 {
		t.Fatalf("expected chat queues to be released, %d left", n)
	}
}

// orderHandler records the sequence number of every turn in the order seen
type orderHandler struct {
	mu   sync.Mutex
	seen map[int64][]int
}

func (h *orderHandler) Handle(ctx context.Context, ev messenger.Event) {
	n, _ := strconv.Atoi(ev.Text)
	h.mu.Lock()
	h.seen[ev.ChatID] = append(h.seen[ev.ChatID], n)
	h.mu.Unlock()
}

func TestSameChatTurnsKeepArrivalOrder(t *testing.T) {
	src := &chanSource{ch: make(chan messenger.Event)}
	h := &orderHandler{seen: map[int64][]int{}}
	d := New(src, h, logging.Discard())

	done := make(chan error)
	go func() { done <- d.Run(context.Background()) }()

	const perChat = 1000
	for i := 0; i < perChat; i++ {
		src.ch <- messenger.Event{ChatID: 7, Text: strconv.Itoa(i)}
		src.ch <- messenger.Event{ChatID: 8, Text: strconv.Itoa(i)}
	}
	close(src.ch)
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, chat := range []int64{7, 8} {
		got := h.seen[chat]
		if len(got) != perChat {
			t.Fatalf("chat %d: expected %d turns, got %d", chat, perChat, len(got))
		}
		for i, n := range got {
			if n != i {
				t.Fatalf("chat %d: turn %d handled at position %d", chat, n, i)
			}
		}
	}
	if n := d.activeChats(); n != 0 {
		t.Fatalf("expected chat queues to be released, %d left", n)
	}
}

func TestPanickingTurnDoesNotStopDispatcher(t *testing.T) {
	src := &chanSource{ch: make(chan messenger.Event)}
	h := newTrackingHandler(0)
	h.panicOn = "explode"
	d := New(src, h, logging.Discard())

	done := make(chan error)
	go func() { done <- d.Run(context.Background()) }()

	src.ch <- messenger.Event{ChatID: 1, Text: "explode"}
	src.ch <- messenger.Event{ChatID: 1, Text: "after"}
	close(src.ch)
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := h.handled.Load(); got != 2 {
		t.Fatalf("expected both turns handled, got %d", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &chanSource{ch: make(chan messenger.Event)}
	d := New(src, newTrackingHandler(0), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
