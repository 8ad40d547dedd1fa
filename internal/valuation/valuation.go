// Package valuation derives current value and profit/loss of holdings from
// resolved unit prices. Everything here is pure.
package valuation

import (
	"github.com/STTM-NSU/investracker/internal/model"
	"github.com/shopspring/decimal"
)

// Recompute returns a copy of h priced at the given unit price. The input is
// left untouched; the percentage stays nil when the cost basis is zero.
func Recompute(h model.Holding, price float64) model.Holding {
	currentValue := h.Quantity * price
	purchaseValue := h.Quantity * h.PurchasePrice
	profitLoss := currentValue - purchaseValue

	v := &model.Valuation{
		CurrentPrice: price,
		CurrentValue: currentValue,
		ProfitLoss:   profitLoss,
	}
	if purchaseValue != 0 {
		percent := profitLoss / purchaseValue * 100
		v.ProfitLossPercent = &percent
	}

	h.Valuation = v
	return h
}

// Invested is the amount put into a holding. Cash is stored as one unit of
// its total amount.
func Invested(h model.Holding) float64 {
	if h.AssetClass == model.Cash {
		return h.PurchasePrice
	}
	return h.CostBasis()
}

// Worth is the holding's last known value, falling back to its cost when it
// was never priced.
func Worth(h model.Holding) float64 {
	if h.AssetClass == model.Cash {
		return h.PurchasePrice
	}
	if h.Valuation != nil {
		return h.Valuation.CurrentValue
	}
	return h.CostBasis()
}

func Summarize(holdings []model.Holding) model.Summary {
	invested := decimal.Zero
	current := decimal.Zero
	priced := 0

	for _, h := range holdings {
		invested = invested.Add(decimal.NewFromFloat(Invested(h)))
		current = current.Add(decimal.NewFromFloat(Worth(h)))
		if h.Valuation != nil {
			priced++
		}
	}

	profitLoss := current.Sub(invested)
	s := model.Summary{
		TotalInvested: invested.InexactFloat64(),
		CurrentValue:  current.InexactFloat64(),
		ProfitLoss:    profitLoss.InexactFloat64(),
		Holdings:      len(holdings),
		Priced:        priced,
	}
	if invested.IsPositive() {
		s.ProfitLossPercent = profitLoss.Div(invested).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return s
}
