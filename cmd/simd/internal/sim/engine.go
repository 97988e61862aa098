package sim

import (
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/catalog"
	"github.com/dnckss/cryptox-sub000/pkg/models"
)

// ErrUnknownInstrument is returned for ids that do not resolve in the catalog.
var ErrUnknownInstrument = errors.New("unknown instrument")

// pausedHorizon is how far a paused instrument's next jump is pushed out.
// Resume regenerates the schedule, so the pushed-out change never fires.
const pausedHorizon = 100 * 365 * 24 * time.Hour

type Config struct {
	PriceFloor       float64
	MinDelay         time.Duration
	MaxDelay         time.Duration
	HistoryRetention time.Duration
	RandBucket       time.Duration
}

type sample struct {
	price float64
	ts    time.Time
}

// scheduledChange holds the parameters of the next drift jump for one coin.
// At most one is pending per coin; consuming it draws the next.
type scheduledChange struct {
	magnitude float64 // percent
	direction float64 // +1 or -1
	dueAt     time.Time
}

type coinState struct {
	mu          sync.Mutex
	initialized bool
	price       float64
	updatedAt   time.Time
	paused      bool
	sched       scheduledChange
	history     []sample
}

// Engine owns all mutable price state. Callers never see the maps directly,
// only the operations below. Each coin has its own lock so drift evaluation
// for one coin never blocks another.
type Engine struct {
	cat     *catalog.Catalog
	cfg     Config
	clock   Clock
	randSrc RandSource
	logger  *zap.Logger

	mu     sync.RWMutex
	states map[string]*coinState
}

func NewEngine(cat *catalog.Catalog, cfg Config, clock Clock, logger *zap.Logger) *Engine {
	if cfg.PriceFloor <= 0 {
		cfg.PriceFloor = 0.001
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 1 * time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay + 6*time.Second
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 7 * 24 * time.Hour
	}
	if cfg.RandBucket <= 0 {
		cfg.RandBucket = 10 * time.Second
	}

	return &Engine{
		cat:     cat,
		cfg:     cfg,
		clock:   clock,
		randSrc: DefaultRandSource,
		logger:  logger,
		states:  make(map[string]*coinState),
	}
}

// WithRandSource swaps the pseudo-random source. For tests.
func (e *Engine) WithRandSource(src RandSource) *Engine {
	e.randSrc = src
	return e
}

// CurrentPrice returns the live price for a coin, applying any due scheduled
// change first. Paused coins return their frozen price with no side effects.
func (e *Engine) CurrentPrice(id string) (float64, error) {
	inst, ok := e.cat.ByID(id)
	if !ok {
		return 0, ErrUnknownInstrument
	}

	st := e.state(inst.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	e.ensureInit(inst, st)
	e.advance(inst, st, e.clock.Now())

	return st.price, nil
}

// ResolvePrice is the settlement read path: key may be a catalog id or a
// ticker symbol.
func (e *Engine) ResolvePrice(key string) (float64, error) {
	inst, ok := e.cat.Resolve(key)
	if !ok {
		return 0, ErrUnknownInstrument
	}
	return e.CurrentPrice(inst.ID)
}

// Snapshot returns the full quote for one coin: live price, trailing changes
// against the nearest historical sample to each window, and synthetic
// market-cap/volume drift.
func (e *Engine) Snapshot(id string) (models.CoinQuote, error) {
	inst, ok := e.cat.ByID(id)
	if !ok {
		return models.CoinQuote{}, ErrUnknownInstrument
	}

	st := e.state(inst.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	e.ensureInit(inst, st)
	now := e.clock.Now()
	e.advance(inst, st, now)

	q := models.CoinQuote{
		CoinID:    inst.ID,
		Symbol:    inst.Symbol,
		Price:     st.price,
		Change1h:  pctChange(st, now, time.Hour),
		Change24h: pctChange(st, now, 24*time.Hour),
		Change1w:  pctChange(st, now, 7*24*time.Hour),
	}

	// Market cap and volume track the 24h move plus a small independent
	// jitter, both bounded so derived numbers stay plausible.
	r := e.randSrc(inst.ID, e.bucket(now))
	jitter := (r.Float64() - 0.5) * 0.02
	capDrift := clamp(q.Change24h/100, -0.5, 0.5)
	volDrift := clamp(math.Abs(q.Change24h)/100, 0, 0.5)

	q.MarketCap = inst.MarketCapBase * (1 + capDrift) * (1 + jitter)
	q.Volume24h = inst.VolumeBase * (1 + volDrift) * (1 + jitter)

	return q, nil
}

// SnapshotAll returns quotes for every coin in catalog order.
func (e *Engine) SnapshotAll() []models.CoinQuote {
	quotes := make([]models.CoinQuote, 0, e.cat.Len())
	for _, inst := range e.cat.All() {
		q, err := e.Snapshot(inst.ID)
		if err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes
}

// SetPrice applies an administrative override immediately. The stored price
// is floor-clamped and returned. Unless paused, the drift schedule is
// regenerated so the next jump moves off the new price, not the old
// trajectory.
func (e *Engine) SetPrice(id string, price float64) (float64, error) {
	inst, ok := e.cat.ByID(id)
	if !ok {
		return 0, ErrUnknownInstrument
	}

	st := e.state(inst.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	e.ensureInit(inst, st)
	now := e.clock.Now()

	st.price = e.clampFloor(price)
	st.updatedAt = now
	e.appendSample(st, now)

	if !st.paused {
		st.sched = e.nextChange(inst, now)
	}

	e.logger.Info("price override applied",
		zap.String("symbol", inst.Symbol),
		zap.Float64("price", st.price))

	return st.price, nil
}

// Pause freezes a coin. The pending change is pushed out rather than
// deleted; Resume regenerates a fresh one.
func (e *Engine) Pause(id string) error {
	inst, ok := e.cat.ByID(id)
	if !ok {
		return ErrUnknownInstrument
	}

	st := e.state(inst.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	e.ensureInit(inst, st)
	st.paused = true
	st.sched.dueAt = e.clock.Now().Add(pausedHorizon)

	e.logger.Info("instrument paused", zap.String("symbol", inst.Symbol))
	return nil
}

// Resume re-enables autonomous drift, scheduling the next jump from now.
func (e *Engine) Resume(id string) error {
	inst, ok := e.cat.ByID(id)
	if !ok {
		return ErrUnknownInstrument
	}

	st := e.state(inst.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	e.ensureInit(inst, st)
	st.paused = false
	st.sched = e.nextChange(inst, e.clock.Now())

	e.logger.Info("instrument resumed", zap.String("symbol", inst.Symbol))
	return nil
}

func (e *Engine) IsPaused(id string) (bool, error) {
	inst, ok := e.cat.ByID(id)
	if !ok {
		return false, ErrUnknownInstrument
	}

	st := e.state(inst.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	e.ensureInit(inst, st)
	return st.paused, nil
}

// state returns the coinState for an id, creating it if needed. The entry is
// created empty; initialization happens under the per-coin lock so two
// concurrent first reads cannot double-initialize.
func (e *Engine) state(id string) *coinState {
	e.mu.RLock()
	st, ok := e.states[id]
	e.mu.RUnlock()
	if ok {
		return st
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[id]; ok {
		return st
	}
	st = &coinState{}
	e.states[id] = st
	return st
}

// ensureInit seeds price, history backfill and the first scheduled change.
// Caller holds st.mu.
func (e *Engine) ensureInit(inst catalog.Instrument, st *coinState) {
	if st.initialized {
		return
	}

	now := e.clock.Now()
	r := e.randSrc(inst.ID, 0)

	// Walk an hourly random path forward from the base price so the trailing
	// change windows have something to compare against.
	steps := int(e.cfg.HistoryRetention / time.Hour)
	price := inst.BasePrice
	for k := steps; k >= 1; k-- {
		ts := now.Add(-time.Duration(k) * time.Hour)
		st.history = append(st.history, sample{price: price, ts: ts})
		drift := (r.Float64() - 0.5) * 0.04 * (0.5 + inst.Volatility)
		price = e.clampFloor(price * (1 + drift))
	}

	st.price = e.clampFloor(price)
	st.updatedAt = now
	st.history = append(st.history, sample{price: st.price, ts: now})
	st.sched = e.nextChange(inst, now)
	st.initialized = true
}

// advance applies every scheduled change that has come due. Caller holds
// st.mu. Each applied change draws the next, whose due time is strictly in
// the future, so the loop terminates.
func (e *Engine) advance(inst catalog.Instrument, st *coinState, now time.Time) {
	if st.paused {
		return
	}

	for !st.sched.dueAt.After(now) {
		factor := 1 + st.sched.direction*st.sched.magnitude/100
		st.price = e.clampFloor(st.price * factor)
		st.updatedAt = now
		e.appendSample(st, now)
		st.sched = e.nextChange(inst, now)
	}
}

// nextChange draws the parameters of the next jump. Magnitude comes from one
// of two disjoint bands (1-5% or 6-10%) with equal probability, scaled by
// the coin's volatility class; direction is a fair coin flip.
func (e *Engine) nextChange(inst catalog.Instrument, now time.Time) scheduledChange {
	r := e.randSrc(inst.ID, e.bucket(now))

	var magnitude float64
	if r.Intn(2) == 0 {
		magnitude = 1 + r.Float64()*4
	} else {
		magnitude = 6 + r.Float64()*4
	}
	magnitude *= 0.5 + inst.Volatility

	direction := 1.0
	if r.Intn(2) == 1 {
		direction = -1.0
	}

	span := e.cfg.MaxDelay - e.cfg.MinDelay
	delay := e.cfg.MinDelay + time.Duration(r.Float64()*float64(span))

	return scheduledChange{
		magnitude: magnitude,
		direction: direction,
		dueAt:     now.Add(delay),
	}
}

// appendSample records the current price and prunes samples older than the
// retention window. Caller holds st.mu.
func (e *Engine) appendSample(st *coinState, now time.Time) {
	st.history = append(st.history, sample{price: st.price, ts: now})

	cutoff := now.Add(-e.cfg.HistoryRetention)
	drop := 0
	for drop < len(st.history) && st.history[drop].ts.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		st.history = append(st.history[:0], st.history[drop:]...)
	}
}

func (e *Engine) bucket(now time.Time) int64 {
	return now.UnixNano() / int64(e.cfg.RandBucket)
}

func (e *Engine) clampFloor(price float64) float64 {
	if price < e.cfg.PriceFloor || math.IsNaN(price) {
		return e.cfg.PriceFloor
	}
	return price
}

// pctChange compares the current price against the historical sample closest
// to now-window. Nearest timestamp match, no interpolation.
func pctChange(st *coinState, now time.Time, window time.Duration) float64 {
	if len(st.history) == 0 {
		return 0
	}

	target := now.Add(-window)
	best := st.history[0]
	bestDist := absDuration(best.ts.Sub(target))
	for _, s := range st.history[1:] {
		d := absDuration(s.ts.Sub(target))
		if d < bestDist {
			best = s
			bestDist = d
		}
	}

	if best.price == 0 {
		return 0
	}
	return (st.price - best.price) / best.price * 100
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
