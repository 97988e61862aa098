package protocol

import (
	"github.com/dnckss/cryptox-sub000/pkg/models"
)

const (
	// TypeInitial carries the full catalog snapshot sent once per connection
	TypeInitial = "initial"
	// TypeUpdate carries only the instruments whose price changed since the
	// previous poll cycle
	TypeUpdate = "update"
)

// Message is the server-push frame sent to every viewer.
type Message struct {
	Type string             `json:"type"`
	Data []models.CoinQuote `json:"data"`
}
