package health

import (
	"sync"
	"time"
)

// Cycle records the outcome of one refresh cycle.
type Cycle struct {
	At         time.Time         `json:"at"`
	Generation uint64            `json:"generation"`
	Kinds      int               `json:"kinds"`
	Failed     int               `json:"failed"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// History keeps the most recent refresh cycles in a fixed-size ring. Once
// full, each Add overwrites the oldest entry.
type History struct {
	mu    sync.Mutex
	data  []Cycle
	head  int // next write position
	count int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{data: make([]Cycle, size)}
}

func (h *History) Add(c Cycle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data[h.head] = c
	h.head = (h.head + 1) % len(h.data)
	if h.count < len(h.data) {
		h.count++
	}
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Last returns the most recent cycle.
func (h *History) Last() (Cycle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return Cycle{}, false
	}
	return h.data[(h.head-1+len(h.data))%len(h.data)], true
}

// Slice returns the recorded cycles, oldest first.
func (h *History) Slice() []Cycle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return nil
	}
	out := make([]Cycle, h.count)
	if h.count < len(h.data) {
		copy(out, h.data[:h.count])
		return out
	}
	tail := len(h.data) - h.head
	copy(out, h.data[h.head:])
	copy(out[tail:], h.data[:h.head])
	return out
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head = 0
	h.count = 0
}
