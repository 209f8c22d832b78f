package main

import (
	"context"
	"flag"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"chaser/internal/book"
	"chaser/internal/config"
	"chaser/internal/durable"
	"chaser/internal/gateway"
	"chaser/internal/history"
	"chaser/internal/ingest"
	"chaser/internal/obs"
	"chaser/internal/risk"
	"chaser/internal/shm"
	"chaser/internal/strategy"
	"chaser/internal/symbols"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logs.Warnf("load .env failed, err: %+v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logs.Errorf("startup failed, err: %+v", err)
		os.Exit(1)
	}
	logs.Info("engine stopped cleanly")
}

func run(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
		cancel()
	}()

	if cfg.Profile.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "chaser",
			ServerAddress:   cfg.Profile.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseObjects,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	books := book.NewManager()
	subbed := symbols.NewSet()

	var (
		bookPub   *shm.Publisher
		signalPub *shm.Publisher
		orderPub  *shm.Publisher
	)
	if cfg.Durable.Enabled {
		driver, err := shm.NewDriver(shm.Config{
			Dir:      cfg.Durable.Dir,
			RingSize: cfg.Durable.RingSize,
			Channel:  cfg.Durable.Channel,
		})
		if err != nil {
			return err
		}
		defer driver.Close()

		if bookPub, err = driver.Publisher(cfg.Durable.BookStream); err != nil {
			return err
		}
		if signalPub, err = driver.Publisher(cfg.Durable.SignalStream); err != nil {
			return err
		}
		if orderPub, err = driver.Publisher(cfg.Durable.OrderStream); err != nil {
			return err
		}

		defer func() {
			logs.Infof("durable streams closed, published: %d/%d/%d",
				bookPub.Published(), signalPub.Published(), orderPub.Published())
		}()

		buffer := durable.NewBuffer(orderPub)
		if err := buffer.Restore(func(fn func(payload []byte) bool) error {
			return driver.Scan(cfg.Durable.OrderStream, fn)
		}); err != nil {
			return err
		}
		return runEngine(ctx, cfg, books, subbed, buffer, bookPub, signalPub, metrics)
	}

	return runEngine(ctx, cfg, books, subbed, durable.NewBuffer(nil), nil, nil, metrics)
}

func runEngine(
	ctx context.Context,
	cfg config.Config,
	books *book.Manager,
	subbed *symbols.Set,
	buffer *durable.Buffer,
	bookPub, signalPub *shm.Publisher,
	metrics *obs.Metrics,
) error {
	gw := gateway.New(gateway.Config{
		URL:             cfg.Trade.URL,
		APIKey:          cfg.APIKey,
		APISecret:       cfg.APISecret,
		Category:        cfg.Trade.Category,
		OrderRatePerSec: cfg.Trade.OrderRatePerSec,
		AuthTimeout:     cfg.Trade.AuthTimeout(),
	}, metrics)

	var trades strategy.TradeRecorder
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History)
		if err != nil {
			return err
		}
		defer store.Close()
		trades = store
	}

	deps := strategy.Deps{
		Books:   books,
		Subbed:  subbed,
		Venue:   gw,
		Mirror:  buffer,
		Risk:    risk.NewEngine(cfg.Risk.Engine()),
		Trades:  trades,
		Metrics: metrics,
	}
	if signalPub != nil {
		deps.Signals = signalPub
	}
	engine := strategy.New(strategy.Config{
		Symbol:           cfg.Symbol,
		QtyBase:          cfg.Chaser.QtyBase,
		StepMax:          cfg.Chaser.StepMax,
		TpPct:            cfg.Chaser.TpPct,
		SlPct:            cfg.Chaser.SlPct,
		EpsilonTick:      cfg.Chaser.EpsilonTick,
		EpsilonSafe:      cfg.Chaser.EpsilonSafe,
		ChaseDelta:       cfg.Chaser.ChaseDelta,
		TickSize:         cfg.Chaser.TickSize,
		CloseTicks:       cfg.Chaser.CloseTicks,
		OrderTimeout:     time.Duration(cfg.Chaser.TOrderMs) * time.Millisecond,
		StaleTimeout:     time.Duration(cfg.Chaser.TStaleMs) * time.Millisecond,
		GracePeriod:      time.Duration(cfg.Chaser.TGraceMs) * time.Millisecond,
		InitialDirection: initialDirection(cfg.Chaser.ShortFirst),
	}, deps)
	gw.SetStatusSink(engine.OnOrderStatus)

	runner := ingest.NewRunner(ctx, ingest.Config{
		URL:     cfg.Feed.URL,
		Symbols: []string{cfg.Symbol},
		Depth:   cfg.Feed.Depth,
	}, books, subbed, bookPub, metrics)
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Close()

	if cfg.Trade.Enabled {
		go executionLoop(ctx, gw)
	} else {
		logs.Warn("trading disabled, running dry")
	}

	go obs.NewMonitor(metrics, 0).Run(ctx)

	logs.Infof("martingale chaser running, symbol: %s, tp: %.4f%%, sl: %.4f%%",
		cfg.Symbol, cfg.Chaser.TpPct*100, cfg.Chaser.SlPct*100)
	engine.Run(ctx, time.Duration(cfg.Chaser.TickEveryMs)*time.Millisecond)
	return nil
}

// executionLoop keeps the private session alive. The venue forgets the
// session on disconnect, so every reconnect re-authenticates and
// re-subscribes before resuming.
func executionLoop(ctx context.Context, gw *gateway.Gateway) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for ctx.Err() == nil {
		err := connectOnce(ctx, gw)
		if ctx.Err() != nil {
			return
		}
		logs.Warnf("execution session down, retry in %s, err: %+v", backoff, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func connectOnce(ctx context.Context, gw *gateway.Gateway) error {
	if err := gw.Connect(ctx); err != nil {
		return err
	}
	if err := gw.Authenticate(ctx); err != nil {
		gw.Close()
		return err
	}
	if err := gw.SubscribeExecutions(); err != nil {
		gw.Close()
		return err
	}
	return gw.Run(ctx)
}

func initialDirection(shortFirst bool) strategy.Direction {
	if shortFirst {
		return strategy.DirectionShort
	}
	return strategy.DirectionLong
}
