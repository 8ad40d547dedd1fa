package holdings

import (
	"database/sql"
	"testing"

	"github.com/STTM-NSU/investracker/internal/model"
	"github.com/STTM-NSU/investracker/internal/valuation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldingRowUnpriced(t *testing.T) {
	h := holdingRow{ID: "1", AssetClass: "cash", Quantity: 1, PurchasePrice: 100}.toModel()

	assert.Equal(t, model.Cash, h.AssetClass)
	assert.Nil(t, h.Valuation)
}

func TestHoldingRowPriced(t *testing.T) {
	r := holdingRow{
		ID:                "2",
		AssetClass:        "gold",
		Quantity:          10,
		CurrentPrice:      sql.NullFloat64{Float64: 50, Valid: true},
		CurrentValue:      sql.NullFloat64{Float64: 500, Valid: true},
		ProfitLoss:        sql.NullFloat64{Float64: 500, Valid: true},
		ProfitLossPercent: sql.NullFloat64{},
	}

	h := r.toModel()
	require.NotNil(t, h.Valuation)
	assert.Equal(t, 500.0, h.Valuation.CurrentValue)
	assert.Nil(t, h.Valuation.ProfitLossPercent)
}

func TestValuationArgs(t *testing.T) {
	price, value, pl, pct := valuationArgs(nil)
	assert.False(t, price.Valid)
	assert.False(t, value.Valid)
	assert.False(t, pl.Valid)
	assert.False(t, pct.Valid)

	h := valuation.Recompute(model.Holding{AssetClass: model.Stocks, Symbol: "TCS", Quantity: 2, PurchasePrice: 100}, 150)
	price, value, pl, pct = valuationArgs(h.Valuation)
	assert.Equal(t, sql.NullFloat64{Float64: 150, Valid: true}, price)
	assert.Equal(t, sql.NullFloat64{Float64: 300, Valid: true}, value)
	assert.Equal(t, sql.NullFloat64{Float64: 100, Valid: true}, pl)
	assert.Equal(t, sql.NullFloat64{Float64: 50, Valid: true}, pct)
}
