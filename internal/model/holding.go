package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const DateLayout = "2006-01-02"

var ErrInvalidHolding = errors.New("invalid holding")

type AssetClass string

const (
	Gold   AssetClass = "gold"
	Stocks AssetClass = "stocks"
	Crypto AssetClass = "crypto"
	Cash   AssetClass = "cash"
)

func (a AssetClass) Valid() bool {
	switch a {
	case Gold, Stocks, Crypto, Cash:
		return true
	default:
		return false
	}
}

// IsPriced reports whether holdings of this class have a market price.
func (a AssetClass) IsPriced() bool {
	return a.Valid() && a != Cash
}

// RequiresSymbol reports whether a quote lookup needs the holding's ticker.
func (a AssetClass) RequiresSymbol() bool {
	return a == Stocks || a == Crypto
}

// Valuation is the priced state of a holding. A nil *Valuation means the
// holding was never priced, so the derived fields exist together or not at all.
type Valuation struct {
	CurrentPrice float64
	CurrentValue float64
	ProfitLoss   float64
	// nil when the cost basis is zero
	ProfitLossPercent *float64
}

type Holding struct {
	ID            string
	AssetClass    AssetClass
	Name          string
	Symbol        string
	Quantity      float64
	PurchasePrice float64 // total amount for cash, per unit otherwise
	PurchaseDate  string

	Valuation *Valuation
}

// CostBasis is quantity times purchase price.
func (h Holding) CostBasis() float64 {
	return h.Quantity * h.PurchasePrice
}

func (h Holding) IsPriced() bool {
	return h.Valuation != nil
}

// Normalize applies the per-class input rules: cash is tracked as a single
// unit and neither cash nor gold carry a symbol.
func (h Holding) Normalize() Holding {
	h.Symbol = strings.TrimSpace(h.Symbol)
	h.Name = strings.TrimSpace(h.Name)
	switch h.AssetClass {
	case Cash:
		h.Quantity = 1
		h.Symbol = ""
	case Gold:
		h.Symbol = ""
	case Stocks, Crypto:
		h.Symbol = strings.ToUpper(h.Symbol)
	}
	return h
}

func (h Holding) Validate() error {
	if !h.AssetClass.Valid() {
		return fmt.Errorf("%w: unknown asset class %q", ErrInvalidHolding, h.AssetClass)
	}
	if h.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidHolding)
	}
	if h.PurchasePrice < 0 {
		return fmt.Errorf("%w: purchase price can't be negative", ErrInvalidHolding)
	}
	if h.AssetClass.RequiresSymbol() && h.Symbol == "" {
		return fmt.Errorf("%w: symbol is required for %s", ErrInvalidHolding, h.AssetClass)
	}
	if h.PurchaseDate != "" {
		if _, err := time.Parse(DateLayout, h.PurchaseDate); err != nil {
			return fmt.Errorf("%w: purchase date %q", ErrInvalidHolding, h.PurchaseDate)
		}
	}
	return nil
}

type holdingJSON struct {
	ID                string     `json:"id"`
	Type              AssetClass `json:"type"`
	Name              string     `json:"name"`
	Symbol            string     `json:"symbol,omitempty"`
	Quantity          float64    `json:"quantity"`
	PurchasePrice     float64    `json:"purchasePrice"`
	PurchaseDate      string     `json:"purchaseDate"`
	CurrentPrice      *float64   `json:"currentPrice,omitempty"`
	CurrentValue      *float64   `json:"currentValue,omitempty"`
	ProfitLoss        *float64   `json:"profitLoss,omitempty"`
	ProfitLossPercent *float64   `json:"profitLossPercent,omitempty"`
}

func (h Holding) MarshalJSON() ([]byte, error) {
	out := holdingJSON{
		ID:            h.ID,
		Type:          h.AssetClass,
		Name:          h.Name,
		Symbol:        h.Symbol,
		Quantity:      h.Quantity,
		PurchasePrice: h.PurchasePrice,
		PurchaseDate:  h.PurchaseDate,
	}
	if v := h.Valuation; v != nil {
		out.CurrentPrice = &v.CurrentPrice
		out.CurrentValue = &v.CurrentValue
		out.ProfitLoss = &v.ProfitLoss
		out.ProfitLossPercent = v.ProfitLossPercent
	}
	return sonic.Marshal(out)
}

// UnmarshalJSON reads the flat wire form. The holding is priced only when
// currentPrice is present; stray derived fields without it are dropped.
func (h *Holding) UnmarshalJSON(data []byte) error {
	var in holdingJSON
	if err := sonic.Unmarshal(data, &in); err != nil {
		return err
	}

	*h = Holding{
		ID:            in.ID,
		AssetClass:    in.Type,
		Name:          in.Name,
		Symbol:        in.Symbol,
		Quantity:      in.Quantity,
		PurchasePrice: in.PurchasePrice,
		PurchaseDate:  normalizeDate(in.PurchaseDate),
	}
	if in.CurrentPrice != nil {
		h.Valuation = &Valuation{
			CurrentPrice:      *in.CurrentPrice,
			CurrentValue:      deref(in.CurrentValue),
			ProfitLoss:        deref(in.ProfitLoss),
			ProfitLossPercent: in.ProfitLossPercent,
		}
	}
	return nil
}

// normalizeDate accepts both plain dates and RFC 3339 timestamps, which the
// backend returns for date columns.
func normalizeDate(s string) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(DateLayout)
	}
	return s
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
