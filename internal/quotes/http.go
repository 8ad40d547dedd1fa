package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/STTM-NSU/investracker/internal/config"
	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/model"
	"resty.dev/v3"
)

const (
	_cryptoPriceURL = "/prices/crypto/{symbol}"
	_stockPriceURL  = "/prices/stock/{symbol}"
	_goldPriceURL   = "/prices/gold"
)

var (
	ErrEmptySymbol = errors.New("empty symbol")
	ErrBadQuote    = errors.New("bad quote")
)

// HTTPSource reads prices from the quote server. Gold is quoted per gram.
// Callers pace requests; see pricing.Resolver.SetRateLimits.
type HTTPSource struct {
	c      *resty.Client
	logger logger.Logger
}

func NewHTTPSource(cfg config.QuotesConfig, logger logger.Logger) *HTTPSource {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.Address).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &HTTPSource{
		c:      client,
		logger: logger,
	}
}

// curl -X GET "http://localhost:5000/prices/crypto/BTC" -H "accept: application/json"
func (s *HTTPSource) GetCryptoPrice(ctx context.Context, symbol string) (model.Quote, error) {
	if strings.TrimSpace(symbol) == "" {
		return model.Quote{}, ErrEmptySymbol
	}
	return s.getQuote(ctx, _cryptoPriceURL, symbol)
}

func (s *HTTPSource) GetStockPrice(ctx context.Context, symbol string) (model.Quote, error) {
	if strings.TrimSpace(symbol) == "" {
		return model.Quote{}, ErrEmptySymbol
	}
	return s.getQuote(ctx, _stockPriceURL, symbol)
}

func (s *HTTPSource) GetGoldPrice(ctx context.Context) (model.Quote, error) {
	return s.getQuote(ctx, _goldPriceURL, "")
}

func (s *HTTPSource) getQuote(ctx context.Context, url, symbol string) (model.Quote, error) {
	req := s.c.R().
		SetResult(&model.Quote{}).
		SetError(&model.QuoteErrorResponse{}).
		SetContext(ctx)
	if symbol != "" {
		req.SetPathParam("symbol", symbol)
	}

	resp, err := req.Get(url)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: can't send quote request", err)
	}
	defer resp.Body.Close()

	s.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	if resp.IsError() {
		if e, ok := resp.Error().(*model.QuoteErrorResponse); ok && e.Message != "" {
			return model.Quote{}, fmt.Errorf("%s: quote request error %s", e.Message, resp.Status())
		}
		return model.Quote{}, fmt.Errorf("quote request error: %s", resp.Status())
	}
	if !resp.IsSuccess() {
		return model.Quote{}, fmt.Errorf("quote unexpected request error: %s", resp.Status())
	}

	q, ok := resp.Result().(*model.Quote)
	if !ok || q == nil {
		return model.Quote{}, fmt.Errorf("%w: empty body", ErrBadQuote)
	}
	if q.Price <= 0 {
		return model.Quote{}, fmt.Errorf("%w: non-positive price %f", ErrBadQuote, q.Price)
	}

	return *q, nil
}
