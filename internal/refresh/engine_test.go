package refresh

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/STTM-NSU/investracker/internal/config"
	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/model"
	"github.com/STTM-NSU/investracker/internal/pricing"
	"github.com/STTM-NSU/investracker/internal/quotes"
	"github.com/STTM-NSU/investracker/internal/valuation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves crypto, stock and gold prices from maps. Symbols listed
// in fail return an error; symbols in panics make the source blow up.
type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   map[string]bool
	panics map[string]bool
	delay  time.Duration
	calls  map[string]int
}

func (f *fakeSource) get(symbol string) (model.Quote, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[symbol]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics[symbol] {
		var broken map[string]float64
		broken[symbol] = 1
	}
	if f.fail[symbol] {
		return model.Quote{}, fmt.Errorf("upstream error for %s", symbol)
	}
	p, ok := f.prices[symbol]
	if !ok {
		return model.Quote{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return model.Quote{Price: p, Currency: "INR"}, nil
}

func (f *fakeSource) GetCryptoPrice(_ context.Context, symbol string) (model.Quote, error) {
	return f.get(symbol)
}

func (f *fakeSource) GetStockPrice(_ context.Context, symbol string) (model.Quote, error) {
	return f.get(symbol)
}

func (f *fakeSource) GetGoldPrice(_ context.Context) (model.Quote, error) {
	return f.get("GOLD")
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func newEngine(src *fakeSource) *Engine {
	l := logger.NewNopLogger()
	return NewEngine(pricing.NewResolver(src, src, src, 0, l), l)
}

func TestRefreshPricesScenario(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"BTC": 2500000}}
	in := []model.Holding{{ID: "1", AssetClass: model.Crypto, Symbol: "BTC", Quantity: 0.5, PurchasePrice: 2000000}}

	out, err := newEngine(src).RefreshPrices(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)

	v := out[0].Valuation
	require.NotNil(t, v)
	assert.Equal(t, 2500000.0, v.CurrentPrice)
	assert.Equal(t, 1250000.0, v.CurrentValue)
	assert.Equal(t, 250000.0, v.ProfitLoss)
	require.NotNil(t, v.ProfitLossPercent)
	assert.Equal(t, 25.0, *v.ProfitLossPercent)

	assert.Nil(t, in[0].Valuation, "input must not be mutated")
}

func TestRefreshPricesZeroCost(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"GOLD": 50}}
	in := []model.Holding{{ID: "g", AssetClass: model.Gold, Quantity: 10, PurchasePrice: 0}}

	out, err := newEngine(src).RefreshPrices(context.Background(), in)
	require.NoError(t, err)

	v := out[0].Valuation
	require.NotNil(t, v)
	assert.Equal(t, 500.0, v.CurrentValue)
	assert.Equal(t, 500.0, v.ProfitLoss)
	assert.Nil(t, v.ProfitLossPercent)
}

func TestRefreshPricesCashPassthrough(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"": 1, "GOLD": 1}}
	in := []model.Holding{
		{ID: "c1", AssetClass: model.Cash, Quantity: 1, PurchasePrice: 5000},
		{ID: "c2", AssetClass: model.Cash, Quantity: 1, PurchasePrice: 0},
	}

	out, err := newEngine(src).RefreshPrices(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, in, out)
	for _, h := range out {
		assert.Nil(t, h.Valuation)
	}
	assert.Zero(t, src.callCount())
}

func TestRefreshPricesPartialFailure(t *testing.T) {
	src := &fakeSource{
		prices: map[string]float64{"BTC": 300, "ETH": 20, "SOL": 5, "TCS": 40, "GOLD": 7000},
		fail:   map[string]bool{"ETH": true},
	}
	in := []model.Holding{
		{ID: "1", AssetClass: model.Crypto, Symbol: "BTC", Quantity: 1, PurchasePrice: 200},
		{ID: "2", AssetClass: model.Crypto, Symbol: "ETH", Quantity: 2, PurchasePrice: 10},
		{ID: "3", AssetClass: model.Crypto, Symbol: "SOL", Quantity: 4, PurchasePrice: 5},
		{ID: "4", AssetClass: model.Stocks, Symbol: "TCS", Quantity: 3, PurchasePrice: 50},
		{ID: "5", AssetClass: model.Gold, Quantity: 2, PurchasePrice: 6000},
	}

	out, err := newEngine(src).RefreshPrices(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.Nil(t, out[1].Valuation)
	assert.Equal(t, in[1], out[1])

	for _, i := range []int{0, 2, 3, 4} {
		require.NotNil(t, out[i].Valuation, "holding %s", out[i].ID)
	}
	assert.Equal(t, 300.0, out[0].Valuation.CurrentValue)
	assert.Equal(t, 20.0, out[2].Valuation.CurrentValue)
	assert.Equal(t, 0.0, *out[2].Valuation.ProfitLossPercent)
	assert.Equal(t, -30.0, out[3].Valuation.ProfitLoss)
	assert.Equal(t, 14000.0, out[4].Valuation.CurrentValue)
}

func TestRefreshPricesMissingSymbol(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"": 10}}
	in := []model.Holding{
		{ID: "1", AssetClass: model.Crypto, Quantity: 1, PurchasePrice: 1},
		{ID: "2", AssetClass: model.Stocks, Quantity: 1, PurchasePrice: 1},
	}

	out, err := newEngine(src).RefreshPrices(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, in, out)
	assert.Zero(t, src.callCount())
}

func TestRefreshPricesKeepsStaleValuation(t *testing.T) {
	prev := valuation.Recompute(model.Holding{ID: "1", AssetClass: model.Stocks, Symbol: "INFY", Quantity: 2, PurchasePrice: 80}, 100)
	src := &fakeSource{fail: map[string]bool{"INFY": true}}

	out, err := newEngine(src).RefreshPrices(context.Background(), []model.Holding{prev})
	require.NoError(t, err)

	require.NotNil(t, out[0].Valuation)
	assert.Equal(t, 100.0, out[0].Valuation.CurrentPrice)
	assert.Equal(t, 200.0, out[0].Valuation.CurrentValue)
	assert.Equal(t, 40.0, out[0].Valuation.ProfitLoss)
	assert.Equal(t, 25.0, *out[0].Valuation.ProfitLossPercent)
}

func TestRefreshPricesOrderAndCoherence(t *testing.T) {
	prices := make(map[string]float64)
	in := make([]model.Holding, 0, 60)
	for i := 0; i < 60; i++ {
		sym := fmt.Sprintf("S%02d", i)
		class := model.Stocks
		switch i % 4 {
		case 1:
			class = model.Crypto
		case 2:
			class = model.Gold
			sym = ""
		case 3:
			class = model.Cash
			sym = ""
		}
		if sym != "" && i%5 != 0 {
			prices[sym] = float64(i + 1)
		}
		in = append(in, model.Holding{
			ID:            fmt.Sprintf("h%d", i),
			AssetClass:    class,
			Symbol:        sym,
			Quantity:      float64(i%7 + 1),
			PurchasePrice: float64(i % 3 * 10),
		})
	}
	prices["GOLD"] = 6500
	src := &fakeSource{prices: prices, delay: time.Millisecond}

	out, err := newEngine(src).RefreshPrices(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	for i, h := range out {
		assert.Equal(t, in[i].ID, h.ID)
		if h.AssetClass == model.Cash {
			assert.Nil(t, h.Valuation)
		}
		if v := h.Valuation; v != nil {
			assert.Equal(t, h.Quantity*v.CurrentPrice, v.CurrentValue)
			assert.Equal(t, v.CurrentValue-h.Quantity*h.PurchasePrice, v.ProfitLoss)
			assert.Equal(t, h.Quantity*h.PurchasePrice != 0, v.ProfitLossPercent != nil)
		}
	}
}

func TestRefreshPricesRunsConcurrently(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"A": 1, "B": 1, "C": 1, "D": 1}, delay: 100 * time.Millisecond}
	in := []model.Holding{
		{ID: "1", AssetClass: model.Crypto, Symbol: "A", Quantity: 1},
		{ID: "2", AssetClass: model.Crypto, Symbol: "B", Quantity: 1},
		{ID: "3", AssetClass: model.Stocks, Symbol: "C", Quantity: 1},
		{ID: "4", AssetClass: model.Stocks, Symbol: "D", Quantity: 1},
	}

	start := time.Now()
	_, err := newEngine(src).RefreshPrices(context.Background(), in)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestRefreshPricesSourcePanicIsPartialFailure(t *testing.T) {
	src := &fakeSource{
		prices: map[string]float64{"BTC": 300, "ETH": 20, "TCS": 40, "GOLD": 7000},
		panics: map[string]bool{"BAD": true},
	}
	in := []model.Holding{
		{ID: "1", AssetClass: model.Crypto, Symbol: "BTC", Quantity: 1, PurchasePrice: 200},
		{ID: "2", AssetClass: model.Crypto, Symbol: "BAD", Quantity: 2, PurchasePrice: 10},
		{ID: "3", AssetClass: model.Crypto, Symbol: "ETH", Quantity: 4, PurchasePrice: 5},
		{ID: "4", AssetClass: model.Stocks, Symbol: "TCS", Quantity: 3, PurchasePrice: 50},
		{ID: "5", AssetClass: model.Gold, Quantity: 2, PurchasePrice: 6000},
	}

	out, err := newEngine(src).RefreshPrices(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.Equal(t, in[1], out[1])
	assert.Equal(t, 300.0, out[0].Valuation.CurrentValue)
	assert.Equal(t, 80.0, out[2].Valuation.CurrentValue)
	assert.Equal(t, 120.0, out[3].Valuation.CurrentValue)
	assert.Equal(t, 14000.0, out[4].Valuation.CurrentValue)
}

type brokenResolver struct{}

func (brokenResolver) Resolve(context.Context, model.AssetClass, string) (model.Quote, bool) {
	panic("resolver bug")
}

func TestRefreshPricesInternalFault(t *testing.T) {
	in := []model.Holding{
		{ID: "1", AssetClass: model.Gold, Quantity: 1, PurchasePrice: 1},
		{ID: "2", AssetClass: model.Crypto, Symbol: "BTC", Quantity: 1, PurchasePrice: 1},
	}

	out, err := NewEngine(brokenResolver{}, logger.NewNopLogger()).RefreshPrices(context.Background(), in)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Nil(t, out)
}

func TestRefreshPricesRateLimitedHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price":10,"currency":"INR"}`))
	}))
	defer srv.Close()

	l := logger.NewNopLogger()
	source := quotes.NewHTTPSource(config.QuotesConfig{Address: srv.URL, Timeout: time.Second}, l)
	// 10ms between lookups: the last of 40 is admitted well after the timeout
	resolver := pricing.NewResolver(source, source, source, 100*time.Millisecond, l).
		SetRateLimits(config.RateLimits{Crypto: 6000})

	in := make([]model.Holding, 40)
	for i := range in {
		in[i] = model.Holding{ID: fmt.Sprint(i), AssetClass: model.Crypto, Symbol: fmt.Sprintf("C%d", i), Quantity: 1, PurchasePrice: 5}
	}

	out, err := NewEngine(resolver, l).RefreshPrices(context.Background(), in)
	require.NoError(t, err)

	for _, h := range out {
		require.NotNil(t, h.Valuation, "holding %s left unpriced", h.ID)
		assert.Equal(t, 10.0, h.Valuation.CurrentValue)
	}
}

func TestRefreshPricesEmpty(t *testing.T) {
	out, err := newEngine(&fakeSource{}).RefreshPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRefreshGoldPrices(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"GOLD": 7000, "BTC": 100}}
	in := []model.Holding{
		{ID: "1", AssetClass: model.Gold, Quantity: 10, PurchasePrice: 6000},
		{ID: "2", AssetClass: model.Crypto, Symbol: "BTC", Quantity: 1, PurchasePrice: 50},
		{ID: "3", AssetClass: model.Gold, Quantity: 5, PurchasePrice: 6500},
		{ID: "4", AssetClass: model.Cash, Quantity: 1, PurchasePrice: 100},
	}

	out, err := newEngine(src).RefreshGoldPrices(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 70000.0, out[0].Valuation.CurrentValue)
	assert.Equal(t, 35000.0, out[2].Valuation.CurrentValue)
	assert.Nil(t, out[1].Valuation)
	assert.Nil(t, out[3].Valuation)
	assert.Equal(t, 1, src.callCount())
}
