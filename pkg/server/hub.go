package server

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"clusterwatch/pkg/reconcile"
)

// Hub fans tree batches out to watch subscribers. A subscriber whose buffer
// is full is dropped and its channel closed.
type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]chan reconcile.Batch
	buffer int
	closed bool
	log    *log.Entry
}

func NewHub(buffer int, logger *log.Entry) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Hub{
		subs:   make(map[uuid.UUID]chan reconcile.Batch),
		buffer: buffer,
		log:    logger.WithField("component", "hub"),
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() (uuid.UUID, <-chan reconcile.Batch) {
	id := uuid.New()
	ch := make(chan reconcile.Batch, h.buffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[id] = ch
	}
	h.mu.Unlock()
	h.log.WithField("subscriber", id).Debug("watch subscribed")
	return id, ch
}

// Unsubscribe removes id. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish hands b to every subscriber without blocking.
func (h *Hub) Publish(b reconcile.Batch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- b:
		default:
			delete(h.subs, id)
			close(ch)
			h.log.WithField("subscriber", id).Warn("dropping watch subscriber that fell behind")
		}
	}
}

// Close ends every subscription. Later subscribers get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Closed reports whether Close was called.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Len is the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
