// Package tracker wires holdings storage to the price refresh engine.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/STTM-NSU/investracker/internal/holdings"
	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/model"
	"github.com/STTM-NSU/investracker/internal/valuation"
	"github.com/google/uuid"
)

var ErrRefreshInProgress = errors.New("refresh already in progress")

type Refresher interface {
	RefreshPrices(ctx context.Context, holdings []model.Holding) ([]model.Holding, error)
	RefreshGoldPrices(ctx context.Context, holdings []model.Holding) ([]model.Holding, error)
}

type Service struct {
	store  holdings.Store
	engine Refresher
	logger logger.Logger

	refreshing sync.Mutex
	// writes orders CRUD against the save step of a refresh
	writes sync.Mutex

	mu          sync.RWMutex
	lastUpdated time.Time
}

func NewService(store holdings.Store, engine Refresher, logger logger.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

func (s *Service) List(ctx context.Context) ([]model.Holding, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (model.Holding, error) {
	return s.store.Get(ctx, id)
}

// Create normalizes and validates the holding and assigns it a new ID.
// Valuation fields from the caller are ignored.
func (s *Service) Create(ctx context.Context, h model.Holding) (model.Holding, error) {
	h = h.Normalize()
	if err := h.Validate(); err != nil {
		return model.Holding{}, err
	}
	h.ID = uuid.NewString()
	h.Valuation = nil

	s.writes.Lock()
	defer s.writes.Unlock()

	created, err := s.store.Create(ctx, h)
	if err != nil {
		return model.Holding{}, fmt.Errorf("%w: can't create holding", err)
	}
	return created, nil
}

// Update replaces the user-entered fields of a holding. Its asset class is
// fixed at creation. A priced holding is revalued at its last known price.
func (s *Service) Update(ctx context.Context, h model.Holding) (model.Holding, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	current, err := s.store.Get(ctx, h.ID)
	if err != nil {
		return model.Holding{}, err
	}
	if h.AssetClass == "" {
		h.AssetClass = current.AssetClass
	}
	if h.AssetClass != current.AssetClass {
		return model.Holding{}, fmt.Errorf("%w: asset class can't change", model.ErrInvalidHolding)
	}

	h = h.Normalize()
	if err := h.Validate(); err != nil {
		return model.Holding{}, err
	}
	h.Valuation = nil
	if current.Valuation != nil && h.AssetClass.IsPriced() {
		h = valuation.Recompute(h, current.Valuation.CurrentPrice)
	}

	updated, err := s.store.Update(ctx, h)
	if err != nil {
		return model.Holding{}, fmt.Errorf("%w: can't update holding", err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.writes.Lock()
	defer s.writes.Unlock()

	return s.store.Delete(ctx, id)
}

func (s *Service) Summary(ctx context.Context) (model.Summary, error) {
	hs, err := s.store.List(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	return valuation.Summarize(hs), nil
}

func (s *Service) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Refresh re-prices every holding and bulk-saves the result. Nothing is
// saved when the engine fails. Holdings deleted or edited while prices were
// being fetched keep the user's change.
func (s *Service) Refresh(ctx context.Context) ([]model.Holding, error) {
	return s.runBatch(ctx, s.engine.RefreshPrices)
}

// RefreshGold re-prices gold holdings only.
func (s *Service) RefreshGold(ctx context.Context) ([]model.Holding, error) {
	return s.runBatch(ctx, s.engine.RefreshGoldPrices)
}

func (s *Service) runBatch(ctx context.Context, refresh func(context.Context, []model.Holding) ([]model.Holding, error)) ([]model.Holding, error) {
	if !s.refreshing.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer s.refreshing.Unlock()

	hs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: can't load holdings", err)
	}

	refreshed, err := refresh(ctx, hs)
	if err != nil {
		return nil, err
	}

	s.writes.Lock()
	defer s.writes.Unlock()

	current, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: can't reload holdings", err)
	}
	updated := mergeValuations(current, refreshed)

	if err := s.store.SaveAll(ctx, updated); err != nil {
		return nil, fmt.Errorf("%w: can't save refreshed holdings", err)
	}

	s.mu.Lock()
	s.lastUpdated = time.Now()
	s.mu.Unlock()

	return updated, nil
}

// mergeValuations applies the prices found by a refresh to the current list.
// Holdings missing from current stay deleted; edited ones are revalued with
// their new quantity and purchase price.
func mergeValuations(current, refreshed []model.Holding) []model.Holding {
	prices := make(map[string]float64, len(refreshed))
	for _, h := range refreshed {
		if h.Valuation != nil {
			prices[h.ID] = h.Valuation.CurrentPrice
		}
	}

	merged := make([]model.Holding, len(current))
	for i, h := range current {
		price, ok := prices[h.ID]
		if !ok || !h.AssetClass.IsPriced() {
			merged[i] = h
			continue
		}
		merged[i] = valuation.Recompute(h, price)
	}
	return merged
}

// Run refreshes prices every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.Errorf("%s: error refreshing prices", err)
			}
		}
	}
}
