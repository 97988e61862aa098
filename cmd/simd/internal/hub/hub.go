package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/protocol"
	"github.com/dnckss/cryptox-sub000/pkg/models"
)

// Viewer is one connected streaming client.
type Viewer interface {
	ID() string
	SendBytes(b []byte)
	Close()
}

// PriceFeed is the slice of the simulation engine the hub needs. The hub
// only reads; it never mutates price state.
type PriceFeed interface {
	SnapshotAll() []models.CoinQuote
}

// Hub fans price state out to all connected viewers. It polls the feed at a
// fixed cadence and diffs against its own last-sent cache, so the engine
// knows nothing about delivery.
type Hub struct {
	feed     PriceFeed
	logger   *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	viewers  map[Viewer]bool
	lastSent map[string]float64
}

func NewHub(feed PriceFeed, interval time.Duration, logger *zap.Logger) *Hub {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Hub{
		feed:     feed,
		logger:   logger,
		interval: interval,
		viewers:  make(map[Viewer]bool),
		lastSent: make(map[string]float64),
	}
}

// Register adds a viewer and immediately pushes the full snapshot so it need
// not wait for the next poll cycle.
func (h *Hub) Register(v Viewer) {
	quotes := h.feed.SnapshotAll()
	payload, err := json.Marshal(protocol.Message{Type: protocol.TypeInitial, Data: quotes})
	if err != nil {
		h.logger.Error("marshal initial snapshot", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.viewers[v] = true
	h.mu.Unlock()

	v.SendBytes(payload)
	h.logger.Debug("viewer connected", zap.String("viewer", v.ID()))
}

// Unregister drops a viewer. Safe to call more than once; delivery to other
// viewers is unaffected.
func (h *Hub) Unregister(v Viewer) {
	h.mu.Lock()
	_, ok := h.viewers[v]
	delete(h.viewers, v)
	h.mu.Unlock()

	if ok {
		v.Close()
		h.logger.Debug("viewer disconnected", zap.String("viewer", v.ID()))
	}
}

// Run polls the feed until the context is cancelled, then closes all
// remaining viewers.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("broadcast hub started", zap.Duration("interval", h.interval))

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("broadcast hub stopped")
			return
		case <-ticker.C:
			h.Poll()
		}
	}
}

// Poll runs one diff cycle: any coin whose price moved since the last cycle
// is included in an update frame; if nothing moved, no frame is sent.
func (h *Hub) Poll() {
	quotes := h.feed.SnapshotAll()

	var changed []models.CoinQuote
	for _, q := range quotes {
		if last, ok := h.lastSent[q.CoinID]; !ok || last != q.Price {
			changed = append(changed, q)
			h.lastSent[q.CoinID] = q.Price
		}
	}

	if len(changed) == 0 {
		return
	}

	payload, err := json.Marshal(protocol.Message{Type: protocol.TypeUpdate, Data: changed})
	if err != nil {
		h.logger.Error("marshal update", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for v := range h.viewers {
		v.SendBytes(payload)
	}
}

func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.viewers {
		v.Close()
		delete(h.viewers, v)
	}
}
