package mirror_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/catalog"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/mirror"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/sim"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/testutils"
	"github.com/dnckss/cryptox-sub000/pkg/models"
)

func setup(t *testing.T) (*mirror.Mirror, *sim.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cat := catalog.FromInstruments([]catalog.Instrument{
		{ID: "coin-001", Symbol: "XAA", BasePrice: 100, Volatility: 0.5, MarketCapBase: 1e8, VolumeBase: 5e6},
		{ID: "coin-002", Symbol: "XAB", BasePrice: 1000, Volatility: 0.5, MarketCapBase: 1e9, VolumeBase: 5e7},
	})
	clock := testutils.NewMockClock(time.Unix(1_700_000_000, 0))
	engine := sim.NewEngine(cat, sim.Config{PriceFloor: 0.001}, clock, zap.NewNop()).
		WithRandSource(testutils.FixedRandSource(0, 0.5))

	m := mirror.NewMirror(engine, rdb, time.Second, time.Hour, zap.NewNop())
	return m, engine, mr
}

func getUpdate(t *testing.T, mr *miniredis.Miniredis, symbol string) models.PriceUpdate {
	t.Helper()
	raw, err := mr.Get("price:" + symbol)
	if err != nil {
		t.Fatalf("missing mirrored key for %s: %v", symbol, err)
	}
	var update models.PriceUpdate
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		t.Fatalf("invalid mirrored payload %q: %v", raw, err)
	}
	return update
}

func TestMirror_FirstSyncWritesAllSymbols(t *testing.T) {
	m, _, mr := setup(t)

	m.Sync(context.Background())

	for symbol, want := range map[string]float64{"XAA": 100, "XAB": 1000} {
		update := getUpdate(t, mr, symbol)
		if update.Price != want {
			t.Errorf("%s: expected price %v, got %v", symbol, want, update.Price)
		}
		if update.SeqID != 1 {
			t.Errorf("%s: expected seq 1, got %d", symbol, update.SeqID)
		}
	}
}

func TestMirror_SkipsUnchangedPrices(t *testing.T) {
	m, _, mr := setup(t)

	m.Sync(context.Background())
	m.Sync(context.Background())
	m.Sync(context.Background())

	if update := getUpdate(t, mr, "XAA"); update.SeqID != 1 {
		t.Errorf("unchanged prices must not be rewritten, seq went to %d", update.SeqID)
	}
}

func TestMirror_PublishesChangesWithMonotonicSeq(t *testing.T) {
	m, engine, mr := setup(t)

	m.Sync(context.Background())

	if _, err := engine.SetPrice("coin-001", 120); err != nil {
		t.Fatal(err)
	}
	m.Sync(context.Background())

	update := getUpdate(t, mr, "XAA")
	if update.Price != 120 {
		t.Errorf("expected mirrored price 120, got %v", update.Price)
	}
	if update.SeqID != 2 {
		t.Errorf("expected seq 2 after one change, got %d", update.SeqID)
	}

	// Untouched symbol keeps its first write
	if other := getUpdate(t, mr, "XAB"); other.SeqID != 1 {
		t.Errorf("untouched symbol seq should stay 1, got %d", other.SeqID)
	}
}
