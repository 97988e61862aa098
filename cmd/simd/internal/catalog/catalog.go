package catalog

import (
	"fmt"
	"math"
	"strings"
)

const (
	MinBasePrice = 0.001
	MaxBasePrice = 2e8
)

// Instrument is one synthetic coin. Immutable after generation.
type Instrument struct {
	ID            string
	Name          string
	Symbol        string
	BasePrice     float64
	Volatility    float64 // 0..1, higher for cheaper coins
	MarketCapBase float64
	VolumeBase    float64
}

// Catalog is the read-only instrument set, indexed by id and symbol.
type Catalog struct {
	instruments []Instrument
	byID        map[string]int
	bySymbol    map[string]int
}

// Generate builds n instruments with base prices at equal steps in log-space
// across [MinBasePrice, MaxBasePrice]. Pure function of n: the same n always
// yields the same catalog.
func Generate(n int) *Catalog {
	c := &Catalog{
		instruments: make([]Instrument, 0, n),
		byID:        make(map[string]int, n),
		bySymbol:    make(map[string]int, n),
	}

	logMin := math.Log(MinBasePrice)
	logMax := math.Log(MaxBasePrice)

	for i := 0; i < n; i++ {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		price := math.Exp(logMin + t*(logMax-logMin))

		symbol := symbolFor(i)
		supply := 1e8 * float64(1+i%7)

		inst := Instrument{
			ID:            fmt.Sprintf("coin-%03d", i+1),
			Name:          fmt.Sprintf("Synthetic %s", symbol),
			Symbol:        symbol,
			BasePrice:     price,
			Volatility:    volatilityFor(price),
			MarketCapBase: price * supply,
			VolumeBase:    price * supply * 0.05,
		}

		c.byID[inst.ID] = len(c.instruments)
		c.bySymbol[inst.Symbol] = len(c.instruments)
		c.instruments = append(c.instruments, inst)
	}

	return c
}

// FromInstruments builds a catalog from an explicit instrument set. Used by
// tests and fixtures that need specific base prices.
func FromInstruments(instruments []Instrument) *Catalog {
	c := &Catalog{
		instruments: make([]Instrument, 0, len(instruments)),
		byID:        make(map[string]int, len(instruments)),
		bySymbol:    make(map[string]int, len(instruments)),
	}
	for _, inst := range instruments {
		if inst.Volatility == 0 {
			inst.Volatility = volatilityFor(inst.BasePrice)
		}
		c.byID[inst.ID] = len(c.instruments)
		c.bySymbol[strings.ToUpper(inst.Symbol)] = len(c.instruments)
		c.instruments = append(c.instruments, inst)
	}
	return c
}

// volatilityFor assigns the volatility class by price bracket: cheap coins
// are noisier, expensive coins are calmer.
func volatilityFor(price float64) float64 {
	switch {
	case price < 0.01:
		return 1.0
	case price < 1:
		return 0.85
	case price < 100:
		return 0.65
	case price < 10_000:
		return 0.45
	case price < 1_000_000:
		return 0.25
	default:
		return 0.1
	}
}

// symbolFor encodes the index as a 3-letter ticker: XAA, XAB, ...
func symbolFor(i int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	return string([]byte{'X', letters[(i/26)%26], letters[i%26]})
}

// All returns instruments in generation order.
func (c *Catalog) All() []Instrument {
	return c.instruments
}

func (c *Catalog) Len() int {
	return len(c.instruments)
}

// ByID looks up an instrument by its catalog id.
func (c *Catalog) ByID(id string) (Instrument, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Instrument{}, false
	}
	return c.instruments[idx], true
}

// BySymbol looks up an instrument by ticker symbol (case-insensitive).
func (c *Catalog) BySymbol(symbol string) (Instrument, bool) {
	idx, ok := c.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Instrument{}, false
	}
	return c.instruments[idx], true
}

// Resolve accepts either a catalog id or a ticker symbol. Settlement callers
// use both forms.
func (c *Catalog) Resolve(key string) (Instrument, bool) {
	if inst, ok := c.ByID(key); ok {
		return inst, true
	}
	return c.BySymbol(key)
}
