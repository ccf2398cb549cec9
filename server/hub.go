package server

import (
	"sync"

	"github.com/onnwee/livechat-tender/livechat"
	"github.com/onnwee/livechat-tender/telemetry"
)

// DefaultHubBuffer is the per-subscriber queue length.
const DefaultHubBuffer = 64

// Hub fans comments out to the SSE subscribers of each broadcast. A slow
// subscriber whose queue is full misses comments instead of blocking the recorder.
type Hub struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[chan livechat.Comment]struct{}
}

// NewHub returns an empty hub; buffer <= 0 selects DefaultHubBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultHubBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[string]map[chan livechat.Comment]struct{})}
}

// Subscribe registers a subscriber for broadcastID. The returned cancel
// function unregisters it and closes the channel; it may be called more than once.
func (h *Hub) Subscribe(broadcastID string) (<-chan livechat.Comment, func()) {
	ch := make(chan livechat.Comment, h.buffer)
	h.mu.Lock()
	set, ok := h.subs[broadcastID]
	if !ok {
		set = make(map[chan livechat.Comment]struct{})
		h.subs[broadcastID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()
	telemetry.AddSSEClients(1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[broadcastID], ch)
			if len(h.subs[broadcastID]) == 0 {
				delete(h.subs, broadcastID)
			}
			close(ch)
			h.mu.Unlock()
			telemetry.AddSSEClients(-1)
		})
	}
}

// Broadcast delivers c to every subscriber of broadcastID without blocking.
func (h *Hub) Broadcast(broadcastID string, c livechat.Comment) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[broadcastID] {
		select {
		case ch <- c:
		default:
			telemetry.IncSinkFailure("sse")
		}
	}
}

// Subscribers returns the number of subscribers of broadcastID.
func (h *Hub) Subscribers(broadcastID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[broadcastID])
}
