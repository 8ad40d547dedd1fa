// Package pricing turns asset classes and symbols into unit prices. A failed
// lookup is reported as unavailable and never as an error.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/STTM-NSU/investracker/internal/config"
	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/model"
	"golang.org/x/time/rate"
)

type CryptoSource interface {
	GetCryptoPrice(ctx context.Context, symbol string) (model.Quote, error)
}

type StockSource interface {
	GetStockPrice(ctx context.Context, symbol string) (model.Quote, error)
}

// GoldSource quotes gold per gram.
type GoldSource interface {
	GetGoldPrice(ctx context.Context) (model.Quote, error)
}

type Resolver struct {
	crypto CryptoSource
	stocks StockSource
	gold   GoldSource

	cryptoLimiter *rate.Limiter
	stocksLimiter *rate.Limiter
	goldLimiter   *rate.Limiter

	lookupTimeout time.Duration
	logger        logger.Logger
}

// NewResolver builds a resolver. A zero lookupTimeout leaves lookups unbounded.
func NewResolver(crypto CryptoSource, stocks StockSource, gold GoldSource, lookupTimeout time.Duration, logger logger.Logger) *Resolver {
	return &Resolver{
		crypto:        crypto,
		stocks:        stocks,
		gold:          gold,
		cryptoLimiter: rate.NewLimiter(rate.Inf, 1),
		stocksLimiter: rate.NewLimiter(rate.Inf, 1),
		goldLimiter:   rate.NewLimiter(rate.Inf, 1),
		lookupTimeout: lookupTimeout,
		logger:        logger,
	}
}

// SetRateLimits caps lookups per minute for each class. Waiting for a slot
// doesn't count against the lookup timeout.
func (r *Resolver) SetRateLimits(limits config.RateLimits) *Resolver {
	r.cryptoLimiter = newLimiter(limits.Crypto)
	r.stocksLimiter = newLimiter(limits.Stocks)
	r.goldLimiter = newLimiter(limits.Gold)
	return r
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Resolve returns the current unit price for the class and symbol. ok is
// false when no price could be obtained, including when the symbol is
// missing for crypto or stocks; in that case no source is called.
func (r *Resolver) Resolve(ctx context.Context, class model.AssetClass, symbol string) (model.Quote, bool) {
	switch class {
	case model.Crypto:
		if symbol == "" || r.crypto == nil {
			return model.Quote{}, false
		}
		return r.lookup(ctx, class, symbol, r.cryptoLimiter, func(ctx context.Context) (model.Quote, error) {
			return r.crypto.GetCryptoPrice(ctx, symbol)
		})
	case model.Stocks:
		if symbol == "" || r.stocks == nil {
			return model.Quote{}, false
		}
		return r.lookup(ctx, class, symbol, r.stocksLimiter, func(ctx context.Context) (model.Quote, error) {
			return r.stocks.GetStockPrice(ctx, symbol)
		})
	case model.Gold:
		if r.gold == nil {
			return model.Quote{}, false
		}
		return r.lookup(ctx, class, "", r.goldLimiter, r.gold.GetGoldPrice)
	default:
		return model.Quote{}, false
	}
}

func (r *Resolver) lookup(
	ctx context.Context,
	class model.AssetClass,
	symbol string,
	limiter *rate.Limiter,
	fetch func(context.Context) (model.Quote, error),
) (q model.Quote, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warnf("%v: %s price source failed for %s", p, class, symbol)
			q, ok = model.Quote{}, false
		}
	}()

	if err := limiter.Wait(ctx); err != nil {
		r.logger.Warnf("%s: no slot for %s price %s", err, class, symbol)
		return model.Quote{}, false
	}

	q, err := r.fetchWithTimeout(ctx, fetch)
	if err != nil {
		r.logger.Warnf("%s: can't get %s price %s", err, class, symbol)
		return model.Quote{}, false
	}
	if q.Price <= 0 {
		r.logger.Warnf("non-positive %s price %s: %f", class, symbol, q.Price)
		return model.Quote{}, false
	}

	return q, true
}

type fetchResult struct {
	q   model.Quote
	err error
}

// fetchWithTimeout stops waiting once the lookup timeout fires, even for
// sources that don't watch ctx. A late answer is dropped.
func (r *Resolver) fetchWithTimeout(ctx context.Context, fetch func(context.Context) (model.Quote, error)) (model.Quote, error) {
	if r.lookupTimeout <= 0 {
		return fetch(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	ch := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- fetchResult{err: fmt.Errorf("source panic: %v", p)}
			}
		}()
		q, err := fetch(ctx)
		ch <- fetchResult{q: q, err: err}
	}()

	select {
	case <-ctx.Done():
		return model.Quote{}, ctx.Err()
	case res := <-ch:
		return res.q, res.err
	}
}
