package models

// CoinQuote is the full view of one instrument as sent to viewers and
// returned by the snapshot endpoints.
type CoinQuote struct {
	CoinID    string  `json:"coinId"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change1h  float64 `json:"change1h"`
	Change24h float64 `json:"change24h"`
	Change1w  float64 `json:"change1w"`
	MarketCap float64 `json:"marketCap"`
	Volume24h float64 `json:"volume24h"`
}

// PriceUpdate is the compact tick mirrored to Redis for storage-side readers
type PriceUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix micro
	SeqID     int64   `json:"seq_id"`    // monotonic counter per symbol
}
