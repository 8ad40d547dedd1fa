package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/STTM-NSU/investracker/internal/config"
	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, h http.HandlerFunc) *HTTPSource {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.QuotesConfig{
		Address: srv.URL,
		Token:   "token",
		Timeout: 2 * time.Second,
	}
	return NewHTTPSource(cfg, logger.NewNopLogger())
}

func TestHTTPSourceCrypto(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices/crypto/BTC", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price":2500000,"currency":"INR"}`))
	})

	q, err := s.GetCryptoPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 2500000.0, q.Price)
	assert.Equal(t, "INR", q.Currency)
}

func TestHTTPSourceStockAndGold(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/prices/stock/RELIANCE":
			_, _ = w.Write([]byte(`{"price":2900.5,"currency":"INR"}`))
		case "/prices/gold":
			_, _ = w.Write([]byte(`{"price":7200,"currency":"INR"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	q, err := s.GetStockPrice(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 2900.5, q.Price)

	q, err = s.GetGoldPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7200.0, q.Price)
}

func TestHTTPSourceErrors(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/prices/crypto/NOPE":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"unknown symbol"}`))
		case "/prices/crypto/ZERO":
			_, _ = w.Write([]byte(`{"price":0,"currency":"INR"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	_, err := s.GetCryptoPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown symbol")

	_, err = s.GetCryptoPrice(context.Background(), "ZERO")
	assert.ErrorIs(t, err, ErrBadQuote)

	_, err = s.GetGoldPrice(context.Background())
	assert.Error(t, err)

	_, err = s.GetStockPrice(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptySymbol)
}

func TestHTTPSourceContextCanceled(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"price":1,"currency":"INR"}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.GetGoldPrice(ctx)
	assert.Error(t, err)
}
