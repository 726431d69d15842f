package trades

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"tradevera/internal/apperr"
	"tradevera/internal/validation"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9./:_-]*$`)

func init() {
	validation.RegisterTag("trade_symbol", func(fl validator.FieldLevel) bool {
		return symbolPattern.MatchString(fl.Field().String())
	}, "contains invalid characters")
}

// CreateRequest is the body of a trade creation call. Decoding normalizes it,
// so binding tags see the canonical values.
type CreateRequest struct {
	Symbol     string     `json:"symbol" binding:"required,max=32,trade_symbol"`
	AssetClass string     `json:"asset_class" binding:"required,oneof=stocks options futures forex crypto"`
	Direction  string     `json:"direction" binding:"required,oneof=long short"`
	EntryPrice *float64   `json:"entry_price" binding:"required,gt=0"`
	ExitPrice  *float64   `json:"exit_price" binding:"omitempty,gt=0"`
	Size       *float64   `json:"size" binding:"required,gt=0"`
	Fees       *float64   `json:"fees" binding:"omitempty,gte=0"`
	OpenedAt   *time.Time `json:"opened_at" binding:"required"`
	ClosedAt   *time.Time `json:"closed_at"`
	Setup      string     `json:"setup" binding:"max=64"`
	Notes      string     `json:"notes" binding:"max=4000"`
}

func (r *CreateRequest) UnmarshalJSON(data []byte) error {
	type plain CreateRequest
	if err := json.Unmarshal(data, (*plain)(r)); err != nil {
		return err
	}
	r.Normalize()
	return nil
}

// Normalize trims text fields, upper-cases the symbol and fills defaults.
func (r *CreateRequest) Normalize() {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.AssetClass = strings.ToLower(strings.TrimSpace(r.AssetClass))
	if r.AssetClass == "" {
		r.AssetClass = string(AssetStocks)
	}
	r.Direction = strings.ToLower(strings.TrimSpace(r.Direction))
	r.Setup = strings.TrimSpace(r.Setup)
	r.Notes = strings.TrimSpace(r.Notes)
}

// Validate runs the binding tags plus the rules that span fields, and reports
// every invalid field at once.
func (r *CreateRequest) Validate() error {
	verr := &apperr.ValidationError{}
	if err := validation.Struct(r); err != nil && !errors.As(err, &verr) {
		return err
	}

	if r.OpenedAt != nil && r.OpenedAt.IsZero() {
		verr.Add("opened_at", "is required")
	}
	if r.OpenedAt != nil && r.ClosedAt != nil && r.ClosedAt.Before(*r.OpenedAt) {
		verr.Add("closed_at", "must not be before opened_at")
	}

	return verr.OrNil()
}

// ToTrade builds the trade to persist, with PnL computed. The request must be valid.
func (r *CreateRequest) ToTrade(id, userID string, now time.Time) *Trade {
	t := &Trade{
		ID:         id,
		UserID:     userID,
		Symbol:     r.Symbol,
		AssetClass: AssetClass(r.AssetClass),
		Direction:  Direction(r.Direction),
		EntryPrice: *r.EntryPrice,
		Size:       *r.Size,
		OpenedAt:   r.OpenedAt.UTC(),
		Setup:      r.Setup,
		Notes:      r.Notes,
		CreatedAt:  now,
	}
	if r.Fees != nil {
		t.Fees = *r.Fees
	}
	if r.ExitPrice != nil {
		exit := *r.ExitPrice
		t.ExitPrice = &exit
	}
	if r.ClosedAt != nil {
		closed := r.ClosedAt.UTC()
		t.ClosedAt = &closed
	}
	t.PnL = ComputePnL(t)
	return t
}
