// Package refresh re-prices a whole holdings list in one batch.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/model"
	"github.com/STTM-NSU/investracker/internal/valuation"
)

var ErrRefreshFailed = errors.New("price refresh failed")

type PriceResolver interface {
	Resolve(ctx context.Context, class model.AssetClass, symbol string) (model.Quote, bool)
}

type Engine struct {
	resolver PriceResolver
	logger   logger.Logger
}

func NewEngine(resolver PriceResolver, logger logger.Logger) *Engine {
	return &Engine{
		resolver: resolver,
		logger:   logger,
	}
}

// RefreshPrices resolves a price for every priceable holding concurrently and
// recomputes its valuation. The result keeps the input order. Holdings whose
// lookup failed come back unchanged, stale valuation included. The only error
// is ErrRefreshFailed, for faults not tied to a single lookup; no list is
// returned with it.
func (e *Engine) RefreshPrices(ctx context.Context, holdings []model.Holding) ([]model.Holding, error) {
	return e.refresh(ctx, holdings, func(h model.Holding) (model.Quote, bool) {
		return e.resolver.Resolve(ctx, h.AssetClass, h.Symbol)
	}, eligible)
}

// RefreshGoldPrices re-prices gold holdings only, with a single gold lookup
// shared by the batch. Everything else passes through.
func (e *Engine) RefreshGoldPrices(ctx context.Context, holdings []model.Holding) ([]model.Holding, error) {
	isGold := func(h model.Holding) bool { return h.AssetClass == model.Gold }

	var (
		once  sync.Once
		quote model.Quote
		ok    bool
	)
	return e.refresh(ctx, holdings, func(model.Holding) (model.Quote, bool) {
		once.Do(func() {
			quote, ok = e.resolver.Resolve(ctx, model.Gold, "")
		})
		return quote, ok
	}, isGold)
}

func eligible(h model.Holding) bool {
	if !h.AssetClass.IsPriced() {
		return false
	}
	if h.AssetClass.RequiresSymbol() && h.Symbol == "" {
		return false
	}
	return true
}

func (e *Engine) refresh(
	ctx context.Context,
	holdings []model.Holding,
	resolve func(model.Holding) (model.Quote, bool),
	include func(model.Holding) bool,
) (updated []model.Holding, err error) {
	defer func() {
		if p := recover(); p != nil {
			updated, err = nil, fmt.Errorf("%w: %v", ErrRefreshFailed, p)
		}
	}()

	updated = make([]model.Holding, len(holdings))
	copy(updated, holdings)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		faults []error
		priced int
	)
	for i := range updated {
		if !include(updated[i]) {
			continue
		}

		wg.Add(1)
		go func(i int, h model.Holding) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					mu.Lock()
					faults = append(faults, fmt.Errorf("holding %s: %v", h.ID, p))
					mu.Unlock()
				}
			}()

			q, ok := resolve(h)
			if !ok {
				e.logger.Debugf("no price for holding %s (%s %s), keeping last valuation", h.ID, h.AssetClass, h.Symbol)
				return
			}

			e.logger.Debugf("holding %s priced at %f %s", h.ID, q.Price, q.Currency)

			// each goroutine owns its own slot
			updated[i] = valuation.Recompute(h, q.Price)

			mu.Lock()
			priced++
			mu.Unlock()
		}(i, updated[i])
	}
	wg.Wait()

	if len(faults) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, errors.Join(faults...))
	}

	e.logger.Infof("refreshed prices for %d of %d holdings", priced, len(holdings))

	return updated, nil
}
