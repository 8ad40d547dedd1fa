package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/STTM-NSU/investracker/internal/backend"
	"github.com/STTM-NSU/investracker/internal/config"
	"github.com/STTM-NSU/investracker/internal/holdings"
	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/postgres"
	"github.com/STTM-NSU/investracker/internal/pricing"
	"github.com/STTM-NSU/investracker/internal/quotes"
	"github.com/STTM-NSU/investracker/internal/refresh"
	"github.com/STTM-NSU/investracker/internal/server"
	"github.com/STTM-NSU/investracker/internal/tracker"
	"github.com/joho/godotenv"
	"github.com/russianinvestments/invest-api-go-sdk/investgo"
)

const (
	_trackerCfgFilePath = "./configs/tracker.yaml"
	_investCfgFilePath  = "./configs/invest.yaml"
)

func main() {
	// secrets may live in .env, load it before reading the config
	envErr := godotenv.Load()

	cfg, err := config.LoadTrackerConfig(_trackerCfgFilePath)
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

	var (
		store        holdings.Store
		sessionToken string
	)
	switch cfg.Storage {
	case config.PostgresStorage:
		pgConfig := postgres.NewConfigFromEnv().Setup()
		zapLogger.Debugf("trying to connect to db with: %s", pgConfig)
		db, err := postgres.NewDB(ctx, pgConfig)
		if err != nil {
			zapLogger.Fatalf("%s: can't connect to db", err)
		}
		defer db.Close()

		pgStore := holdings.NewPostgresStore(db, pgConfig.AccountID, zapLogger)
		if err := pgStore.Migrate(ctx); err != nil {
			zapLogger.Fatalf("%s: can't migrate holdings", err)
		}
		store = pgStore
	case config.BackendStorage:
		client := backend.NewClient(cfg.Backend, zapLogger)
		if _, err := client.Login(ctx, cfg.Backend.Email, cfg.Backend.Password); err != nil {
			zapLogger.Fatalf("%s: can't login to backend", err)
		}
		store = client
		sessionToken = client.Token()
	}

	httpSource := quotes.NewHTTPSource(cfg.Quotes.WithFallbackToken(sessionToken), zapLogger)
	var stocks pricing.StockSource = httpSource
	if cfg.Quotes.StocksProvider == config.TInvestProvider {
		investCfg, err := config.LoadInvestConfig(_investCfgFilePath)
		if err != nil {
			zapLogger.Fatalf("%s: can't load invest cfg", err)
		}

		investClient, err := investgo.NewClient(ctx, investCfg, zapLogger)
		if err != nil {
			zapLogger.Fatalf("%s: can't create invest client", err)
		}
		defer func() {
			if err := investClient.Stop(); err != nil {
				zapLogger.Errorf("%s: can't stop invest client", err)
			}
		}()

		stocks = quotes.NewTInvestSource(investClient, zapLogger)
	}

	resolver := pricing.NewResolver(httpSource, stocks, httpSource, cfg.Refresh.LookupTimeout, zapLogger).
		SetRateLimits(cfg.Quotes.RateLimits)
	engine := refresh.NewEngine(resolver, zapLogger)
	svc := tracker.NewService(store, engine, zapLogger)

	go svc.Run(ctx, cfg.Refresh.Interval)

	srv := server.NewHTTPServer(ctx, cfg.Server.Port, server.NewHandler(svc, zapLogger), zapLogger)
	if err := srv.Run(ctx); err != nil {
		zapLogger.Errorf("%s: server stopped", err)
	}

	zapLogger.Infoln("graceful shutdown done")
}
