package trades

import (
	"time"
)

// Direction is the side of a trade
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// AssetClass is the instrument family a trade belongs to
type AssetClass string

const (
	AssetStocks  AssetClass = "stocks"
	AssetOptions AssetClass = "options"
	AssetFutures AssetClass = "futures"
	AssetForex   AssetClass = "forex"
	AssetCrypto  AssetClass = "crypto"
)

// Trade is a journal entry. PnL is nil while the trade is open.
type Trade struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`
	Direction  Direction  `json:"direction"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  *float64   `json:"exit_price"`
	Size       float64    `json:"size"`
	Fees       float64    `json:"fees"`
	PnL        *float64   `json:"pnl"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at"`
	Setup      string     `json:"setup,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsClosed reports whether the trade has a realized PnL.
func (t *Trade) IsClosed() bool {
	return t.PnL != nil
}
