package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/model"
	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	investapi "github.com/russianinvestments/invest-api-go-sdk/proto"
	"go.uber.org/ratelimit"
)

var (
	NotExistError = errors.New("instrument doesn't exist")
	NotFoundError = errors.New("instrument not found")
)

type instrument struct {
	FIGI     string
	Ticker   string
	Currency string
}

// TInvestSource resolves stock prices through the T-Invest API by ticker.
type TInvestSource struct {
	instrClient *investgo.InstrumentsServiceClient
	mdClient    *investgo.MarketDataServiceClient

	instrLimiter ratelimit.Limiter
	mdLimiter    ratelimit.Limiter // 600 T/M but we stay below
	logger       logger.Logger

	mu               sync.Mutex
	instrumentsCache map[string]instrument
}

func NewTInvestSource(c *investgo.Client, logger logger.Logger) *TInvestSource {
	return &TInvestSource{
		instrClient:      c.NewInstrumentsServiceClient(),
		mdClient:         c.NewMarketDataServiceClient(),
		instrLimiter:     ratelimit.New(200, ratelimit.Per(1*time.Minute)),
		mdLimiter:        ratelimit.New(500, ratelimit.Per(1*time.Minute)),
		logger:           logger,
		instrumentsCache: make(map[string]instrument),
	}
}

// The SDK calls are not context aware, so ctx only guards the start of a lookup.
func (s *TInvestSource) GetStockPrice(ctx context.Context, symbol string) (model.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return model.Quote{}, ErrEmptySymbol
	}
	if err := ctx.Err(); err != nil {
		return model.Quote{}, err
	}

	i, err := s.findInstrument(symbol)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: can't find instrument %s", err, symbol)
	}

	s.mdLimiter.Take()
	resp, err := s.mdClient.GetLastPrices([]string{i.FIGI})
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: can't get last price", err)
	}
	price, err := lastPrice(resp.GetLastPrices(), symbol)
	if err != nil {
		return model.Quote{}, err
	}

	return model.Quote{Price: price, Currency: i.Currency}, nil
}

func lastPrice(prices []*investapi.LastPrice, symbol string) (float64, error) {
	if len(prices) == 0 || prices[0].GetPrice() == nil {
		return 0, fmt.Errorf("empty last price for instrument %s", symbol)
	}

	price := prices[0].GetPrice().ToFloat()
	if price <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %f for %s", ErrBadQuote, price, symbol)
	}
	return price, nil
}

func (s *TInvestSource) findInstrument(ticker string) (instrument, error) {
	s.mu.Lock()
	if v, ok := s.instrumentsCache[ticker]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	s.instrLimiter.Take()
	resp, err := s.instrClient.FindInstrument(ticker)
	if err != nil {
		return instrument{}, fmt.Errorf("%w: can't get instrument", err)
	}

	instruments := resp.GetInstruments()
	if len(instruments) == 0 {
		return instrument{}, NotExistError
	}

	for _, found := range instruments {
		if !found.GetApiTradeAvailableFlag() || !strings.EqualFold(found.GetTicker(), ticker) {
			continue
		}

		s.instrLimiter.Take()
		info, err := s.instrClient.InstrumentByFigi(found.GetFigi())
		if err != nil {
			s.logger.Warnf("%s: can't get info for figi=%s", err, found.GetFigi())
			continue
		}

		i := instrument{
			FIGI:     info.GetInstrument().GetFigi(),
			Ticker:   info.GetInstrument().GetTicker(),
			Currency: strings.ToUpper(info.GetInstrument().GetCurrency()),
		}

		s.mu.Lock()
		s.instrumentsCache[ticker] = i
		s.mu.Unlock()

		return i, nil
	}

	return instrument{}, NotFoundError
}
