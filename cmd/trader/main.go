// Command trader launches the exchange connector: the market data consumer,
// the order gateway, and the user-data stream wired around the three
// engine-facing queues.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/praveen686/omlaxmiquant/internal/auth"
	"github.com/praveen686/omlaxmiquant/internal/config"
	"github.com/praveen686/omlaxmiquant/internal/gateway"
	"github.com/praveen686/omlaxmiquant/internal/marketdata"
	"github.com/praveen686/omlaxmiquant/internal/observability"
	"github.com/praveen686/omlaxmiquant/internal/queue"
	"github.com/praveen686/omlaxmiquant/internal/schema"
	"github.com/praveen686/omlaxmiquant/internal/symbol"
	"github.com/praveen686/omlaxmiquant/internal/transport"
	"github.com/praveen686/omlaxmiquant/internal/userdata"
	"github.com/praveen686/omlaxmiquant/lib/telemetry"
)

const (
	telemetryShutdownTimeout = 5 * time.Second
	meterScope               = "omlaxmiquant"
)

func main() {
	cfgPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	appCfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewZapLogger(appCfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialise logger: %v\n", err)
		os.Exit(1)
	}
	observability.SetLogger(logger)
	defer func() {
		_ = logger.Sync()
	}()
	log := observability.Log()

	providers, telemetryShutdown, err := telemetry.Init(ctx,
		appCfg.Telemetry.OTLPEndpoint, appCfg.Telemetry.ServiceName)
	if err != nil {
		log.Error("initialise telemetry", observability.F("error", err.Error()))
		os.Exit(1)
	}
	observability.SetMetrics(telemetry.NewMeter(providers.MeterProvider, meterScope))

	authn, err := auth.New(appCfg.CredentialsPath)
	if err != nil {
		// No credentials, no order gateway. Refuse startup outright.
		log.Error("load credentials", observability.F("error", err.Error()))
		os.Exit(1)
	}
	tickerFile, err := config.LoadTickers(appCfg.TickersPath)
	if err != nil {
		log.Error("load tickers", observability.F("error", err.Error()))
		os.Exit(1)
	}
	log.Info("configuration initialised",
		observability.F("testnet", authn.UseTestnet()),
		observability.F("tickers", len(tickerFile.Binance.Tickers)))

	rest := transport.NewRESTClient(appCfg.HTTPTimeout)
	if err := rest.Ping(ctx, authn.RESTBaseURL()); err != nil {
		log.Error("exchange unreachable", observability.F("error", err.Error()))
		os.Exit(1)
	}
	log.Info("exchange reachable", observability.F("host", authn.RESTBaseURL()))

	catalog := symbol.NewCatalog(rest, authn.RESTBaseURL(), tickerFile.Binance.Tickers,
		time.Duration(tickerFile.Binance.CacheSettings.ExchangeInfoTTLMinutes)*time.Minute)

	requests := queue.NewSPSC[schema.ClientRequest](appCfg.Queues.Requests)
	responses := queue.NewSPSC[schema.ClientResponse](appCfg.Queues.Responses)
	updates := queue.NewSPSC[schema.MarketUpdate](appCfg.Queues.MarketUpdates)

	consumer := marketdata.NewConsumer(marketdata.Config{
		REST:             rest,
		RESTBase:         authn.RESTBaseURL(),
		WSBase:           authn.WSBaseURL(),
		Catalog:          catalog,
		Updates:          updates,
		SnapshotDepth:    appCfg.SnapshotDepth,
		SnapshotInterval: appCfg.SnapshotInterval,
		Reconnect:        appCfg.Reconnect,
	})

	gw, err := gateway.New(gateway.Config{
		REST:       rest,
		Auth:       authn,
		RESTBase:   authn.RESTBaseURL(),
		Catalog:    catalog,
		Requests:   requests,
		Responses:  responses,
		LastPrice:  consumer.LastPrice,
		UseTestnet: authn.UseTestnet(),
		RecvWindow: tickerFile.Binance.OrderGateway.RecvWindowMillis,
	})
	if err != nil {
		log.Error("initialise order gateway", observability.F("error", err.Error()))
		os.Exit(1)
	}

	userStream := userdata.NewStream(userdata.Config{
		REST:              rest,
		Auth:              authn,
		RESTBase:          authn.RESTBaseURL(),
		WSBase:            authn.WSBaseURL(),
		Handler:           gw.OnUserData,
		KeepAliveInterval: appCfg.KeepAliveInterval,
		Reconnect: config.ReconnectConfig{
			InitialDelay: appCfg.Reconnect.InitialDelay,
			MaxDelay:     appCfg.Reconnect.MaxDelay,
			MaxAttempts:  tickerFile.Binance.OrderGateway.MaxReconnectAttempts,
		},
	})

	consumer.Start(ctx)
	gw.Start(ctx)
	userStream.Start(ctx)
	log.Info("trader started; awaiting shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownStart := time.Now()
	userStream.Stop()
	consumer.Stop()
	gw.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer shutdownCancel()
	if err := observability.AggregateErrors("shutdown", []error{
		telemetryShutdown(shutdownCtx),
	}); err != nil {
		log.Warn("shutdown incomplete", observability.F("error", err.Error()))
	}
	log.Info("shutdown completed",
		observability.F("elapsed", time.Since(shutdownStart).String()),
		observability.F("responses_emitted", gw.ResponsesEmitted()))
}

func parseFlags() string {
	cfgPath := flag.String("config", "", "path to the application configuration file")
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
