package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/STTM-NSU/investracker/internal/backend"
	"github.com/STTM-NSU/investracker/internal/config"
	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/pricing"
	"github.com/STTM-NSU/investracker/internal/quotes"
	"github.com/STTM-NSU/investracker/internal/refresh"
	"github.com/STTM-NSU/investracker/internal/tracker"
	"github.com/joho/godotenv"
)

func main() {
	cfgPath := flag.String("config", "./configs/tracker.yaml", "tracker config file")
	goldOnly := flag.Bool("gold", false, "refresh gold holdings only")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.LoadTrackerConfig(*cfgPath)
	if err != nil {
		log.Fatalf("%s: can't load tracker cfg", err)
	}

	zapLogger, loggerSync, err := logger.NewZapLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	if envErr != nil {
		zapLogger.Warnf("can't detect .env file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := backend.NewClient(cfg.Backend, zapLogger)
	user, err := client.Login(ctx, cfg.Backend.Email, cfg.Backend.Password)
	if err != nil {
		zapLogger.Fatalf("%s: can't login to backend", err)
	}

	// the price routes accept the session token like the web client sent it
	source := quotes.NewHTTPSource(cfg.Quotes.WithFallbackToken(client.Token()), zapLogger)
	resolver := pricing.NewResolver(source, source, source, cfg.Refresh.LookupTimeout, zapLogger).
		SetRateLimits(cfg.Quotes.RateLimits)
	svc := tracker.NewService(client, refresh.NewEngine(resolver, zapLogger), zapLogger)

	if *goldOnly {
		_, err = svc.RefreshGold(ctx)
	} else {
		_, err = svc.Refresh(ctx)
	}
	if err != nil {
		zapLogger.Fatalf("%s: refresh failed", err)
	}

	s, err := svc.Summary(ctx)
	if err != nil {
		zapLogger.Fatalf("%s: can't load summary", err)
	}

	zapLogger.Infof("portfolio of %s: %d holdings, %d priced", user.Name, s.Holdings, s.Priced)
	zapLogger.Infof("invested: %.2f, current value: %.2f", s.TotalInvested, s.CurrentValue)
	zapLogger.Infof("profit/loss: %.2f (%.2f%%)", s.ProfitLoss, s.ProfitLossPercent)
}
