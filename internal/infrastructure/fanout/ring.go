package fanout

import (
	"sync"

	"streamcast/internal/core/domain"
)

// MessageRing is a fixed-capacity ring buffer of chat messages. Once full,
// the oldest message is overwritten.
type MessageRing struct {
	buf   []domain.ChatMessage
	start int
	count int
	mu    sync.RWMutex
}

func NewMessageRing(capacity int) *MessageRing {
	if capacity <= 0 {
		capacity = domain.ChatRingCapacity
	}
	return &MessageRing{
		buf: make([]domain.ChatMessage, capacity),
	}
}

// Append stores a message, evicting the oldest when the ring is full.
func (r *MessageRing) Append(msg domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.start + r.count) % len(r.buf)
	r.buf[idx] = msg

	if r.count < len(r.buf) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
}

// Last returns up to n most recent messages in chronological order.
func (r *MessageRing) Last(n int) []domain.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	out := make([]domain.ChatMessage, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// Len returns the number of stored messages.
func (r *MessageRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
