package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/catalog"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/sim"
)

const defaultDelaySeconds = 3

// Recorder receives an audit event for every applied override. Best effort:
// a recording failure never fails the request.
type Recorder interface {
	Record(event OverrideEvent)
}

// OverrideEvent is what gets written to the audit trail.
type OverrideEvent struct {
	Symbol    string  `json:"symbol"`
	Action    string  `json:"action"` // "pause", "resume", "set_price"
	Percent   float64 `json:"percent,omitempty"`
	NewPrice  float64 `json:"newPrice,omitempty"`
	Timestamp int64   `json:"timestamp"` // unix micro
}

type Handler struct {
	engine *sim.Engine
	cat    *catalog.Catalog
	audit  Recorder
	clock  sim.Clock
	logger *zap.Logger

	// schedule defers a function by d; swapped for a synchronous version in
	// tests. Delayed shocks are caller-scheduled, the engine always applies
	// immediately.
	schedule func(d time.Duration, fn func())
}

func NewHandler(engine *sim.Engine, cat *catalog.Catalog, audit Recorder, clock sim.Clock, logger *zap.Logger) *Handler {
	return &Handler{
		engine:   engine,
		cat:      cat,
		audit:    audit,
		clock:    clock,
		logger:   logger,
		schedule: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// WithScheduler overrides delayed-shock scheduling. For tests.
func (h *Handler) WithScheduler(schedule func(d time.Duration, fn func())) *Handler {
	h.schedule = schedule
	return h
}

func (h *Handler) InitRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/quotes", h.ListQuotes)
	r.GET("/api/price/:key", h.GetPrice)

	adm := r.Group("/admin/coins/:symbol")
	adm.POST("/pause", h.PauseCoin)
	adm.POST("/resume", h.ResumeCoin)
	adm.GET("/pause", h.PauseStatus)
	adm.POST("/price", h.SetPrice)

	return r
}

// ListQuotes returns the full snapshot, same payload as the stream's initial
// message.
func (h *Handler) ListQuotes(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.engine.SnapshotAll())
}

// GetPrice is the settlement read contract: key resolves as catalog id or
// ticker symbol.
func (h *Handler) GetPrice(ctx *gin.Context) {
	key := ctx.Param("key")

	price, err := h.engine.ResolvePrice(key)
	if errors.Is(err, sim.ErrUnknownInstrument) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return
	}

	inst, _ := h.cat.Resolve(key)
	ctx.JSON(http.StatusOK, gin.H{
		"coinId": inst.ID,
		"symbol": inst.Symbol,
		"price":  price,
	})
}

func (h *Handler) PauseCoin(ctx *gin.Context) {
	inst, ok := h.resolveSymbol(ctx)
	if !ok {
		return
	}

	if err := h.engine.Pause(inst.ID); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return
	}

	h.audit.Record(OverrideEvent{
		Symbol:    inst.Symbol,
		Action:    "pause",
		Timestamp: h.clock.Now().UnixMicro(),
	})

	ctx.JSON(http.StatusOK, gin.H{"symbol": inst.Symbol, "paused": true})
}

func (h *Handler) ResumeCoin(ctx *gin.Context) {
	inst, ok := h.resolveSymbol(ctx)
	if !ok {
		return
	}

	if err := h.engine.Resume(inst.ID); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return
	}

	h.audit.Record(OverrideEvent{
		Symbol:    inst.Symbol,
		Action:    "resume",
		Timestamp: h.clock.Now().UnixMicro(),
	})

	ctx.JSON(http.StatusOK, gin.H{"symbol": inst.Symbol, "paused": false})
}

func (h *Handler) PauseStatus(ctx *gin.Context) {
	inst, ok := h.resolveSymbol(ctx)
	if !ok {
		return
	}

	paused, err := h.engine.IsPaused(inst.ID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"symbol": inst.Symbol, "paused": paused})
}

type setPriceRequest struct {
	PriceChangePercent *float64 `json:"priceChangePercent"`
	DelaySeconds       *float64 `json:"delaySeconds"`
	CurrentPrice       *float64 `json:"currentPrice"`
	NewPrice           *float64 `json:"newPrice"`
}

// SetPrice applies a percentage-based override. If the caller supplies
// currentPrice/newPrice they are trusted verbatim, so the number an admin
// previewed is exactly the number applied. The delay is honored here, not in
// the engine.
func (h *Handler) SetPrice(ctx *gin.Context) {
	inst, ok := h.resolveSymbol(ctx)
	if !ok {
		return
	}

	var req setPriceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.PriceChangePercent == nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "priceChangePercent is required"})
		return
	}

	delaySeconds := float64(defaultDelaySeconds)
	if req.DelaySeconds != nil {
		if *req.DelaySeconds < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "delaySeconds must be >= 0"})
			return
		}
		delaySeconds = *req.DelaySeconds
	}

	var currentPrice float64
	if req.CurrentPrice != nil {
		currentPrice = *req.CurrentPrice
	} else {
		p, err := h.engine.CurrentPrice(inst.ID)
		if err != nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
			return
		}
		currentPrice = p
	}

	newPrice := currentPrice * (1 + *req.PriceChangePercent/100)
	if req.NewPrice != nil {
		newPrice = *req.NewPrice
	}

	delay := time.Duration(delaySeconds * float64(time.Second))
	apply := func() {
		stored, err := h.engine.SetPrice(inst.ID, newPrice)
		if err != nil {
			h.logger.Error("delayed override failed",
				zap.String("symbol", inst.Symbol), zap.Error(err))
			return
		}
		h.audit.Record(OverrideEvent{
			Symbol:    inst.Symbol,
			Action:    "set_price",
			Percent:   *req.PriceChangePercent,
			NewPrice:  stored,
			Timestamp: h.clock.Now().UnixMicro(),
		})
	}

	if delay <= 0 {
		apply()
	} else {
		h.schedule(delay, apply)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"symbol":             inst.Symbol,
		"currentPrice":       currentPrice,
		"newPrice":           newPrice,
		"priceChangePercent": *req.PriceChangePercent,
		"delaySeconds":       delaySeconds,
		"appliedAt":          h.clock.Now().Add(delay).UnixMicro(),
	})
}

func (h *Handler) resolveSymbol(ctx *gin.Context) (catalog.Instrument, bool) {
	inst, ok := h.cat.BySymbol(ctx.Param("symbol"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return catalog.Instrument{}, false
	}
	return inst, true
}
