package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dnckss/cryptox-sub000/pkg/models"
)

// RedisClient abstracts the output storage connection
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Pipeline() redis.Pipeliner
	Close() error
}

// QuoteSource is the engine slice the mirror polls.
type QuoteSource interface {
	SnapshotAll() []models.CoinQuote
}

// Mirror periodically copies changed prices into Redis so storage-side
// consumers (trade settlement, account views) can read "current price for
// X" without touching the engine. Each changed symbol gets an atomic
// SET + PUBLISH with a per-symbol monotonic sequence id.
type Mirror struct {
	source   QuoteSource
	rdb      RedisClient
	logger   *zap.Logger
	interval time.Duration
	ttl      time.Duration

	lastPrice map[string]float64
	seq       map[string]int64
}

func NewMirror(source QuoteSource, rdb RedisClient, interval, ttl time.Duration, logger *zap.Logger) *Mirror {
	if interval <= 0 {
		interval = 1 * time.Second
	}
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &Mirror{
		source:    source,
		rdb:       rdb,
		logger:    logger,
		interval:  interval,
		ttl:       ttl,
		lastPrice: make(map[string]float64),
		seq:       make(map[string]int64),
	}
}

// Run publishes until the context is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("price mirror started", zap.Duration("interval", m.interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("price mirror stopped")
			return
		case <-ticker.C:
			m.Sync(ctx)
		}
	}
}

// Sync writes every symbol whose price moved since the previous cycle.
func (m *Mirror) Sync(ctx context.Context) {
	quotes := m.source.SnapshotAll()

	pipe := m.rdb.Pipeline()
	queued := 0

	for _, q := range quotes {
		if last, ok := m.lastPrice[q.Symbol]; ok && last == q.Price {
			continue
		}
		m.lastPrice[q.Symbol] = q.Price
		m.seq[q.Symbol]++

		update := models.PriceUpdate{
			Symbol:    q.Symbol,
			Price:     q.Price,
			Timestamp: time.Now().UnixMicro(),
			SeqID:     m.seq[q.Symbol],
		}

		payload, err := json.Marshal(update)
		if err != nil {
			m.logger.Error("JSON Marshal Error", zap.Error(err))
			continue
		}

		key := fmt.Sprintf("price:%s", q.Symbol)
		pipe.Set(ctx, key, payload, m.ttl)
		pipe.Publish(ctx, fmt.Sprintf("prices.%s", q.Symbol), payload)
		queued++
	}

	if queued == 0 {
		return
	}

	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Error("Redis Pipeline Error", zap.Error(err), zap.Int("queued", queued))
		return
	}
	m.logger.Debug("mirrored prices", zap.Int("symbols", queued))
}
