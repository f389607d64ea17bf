package chat

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is an immutable view of the active conversation.
type Snapshot struct {
	Chat     string    `json:"chat"`
	Messages []Message `json:"messages"`
	InFlight int       `json:"in_flight"`
}

// snapshotBuffer is the per-subscriber queue length. A subscriber that falls
// behind loses the oldest snapshots; the newest always wins.
const snapshotBuffer = 16

var snapshotDrops = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "chatd",
	Subsystem: "chat",
	Name:      "snapshot_drops_total",
	Help:      "Snapshots discarded because a subscriber fell behind",
})

func init() {
	prometheus.MustRegister(snapshotDrops)
}

type hub struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Snapshot
	closed bool
}

func newHub() *hub { return &hub{subs: make(map[int]chan Snapshot)} }

func (h *hub) subscribe() (<-chan Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Snapshot, snapshotBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// seed delivers the first snapshot to a fresh subscriber.
func (h *hub) seed(ch <-chan Snapshot, s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.subs {
		if (<-chan Snapshot)(c) == ch {
			select {
			case c <- s:
			default:
			}
			return
		}
	}
}

// publish never blocks.
func (h *hub) publish(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		for {
			select {
			case ch <- s:
			default:
				select {
				case <-ch:
					snapshotDrops.Inc()
				default:
				}
				continue
			}
			break
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
