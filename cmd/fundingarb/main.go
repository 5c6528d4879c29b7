package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fundingarb/internal/config"
	"fundingarb/internal/engine"
	"fundingarb/internal/exchange"
	"fundingarb/internal/exchange/binance"
	"fundingarb/internal/exchange/bitget"
	"fundingarb/internal/exchange/bybit"
	"fundingarb/internal/exchange/bybit/ws"
	"fundingarb/internal/exchange/gateio"
	"fundingarb/internal/logger"
	"fundingarb/internal/models"
	"fundingarb/internal/notify"
	"fundingarb/internal/store"
	"fundingarb/internal/store/memory"
	"fundingarb/internal/store/postgres"
)

func main() {
	var (
		flagPairs      = flag.String("pairs", "", "comma-separated exchange:symbol pairs, e.g. bybit:BTCUSDT,binance:ETHUSDT")
		flagExchange   = flag.String("exchange", "bybit", "exchange for a single-pair run")
		flagSymbol     = flag.String("symbol", "", "symbol for a single-pair run, overrides config")
		flagThreshold  = flag.Float64("threshold", 0, "funding-rate entry threshold, overrides config when non-zero")
		flagDirection  = flag.String("direction", "", "funding direction: negative or positive, overrides config")
		flagNotional   = flag.Float64("notional", 0, "order notional in quote currency, overrides config when non-zero")
		flagLeverage   = flag.Int("leverage", 0, "leverage, overrides config when non-zero")
		flagManualTime = flag.String("manual-time", "", "RFC3339 instant to start the clock at, for rehearsal runs")
		flagLogLevel   = flag.String("log-level", "", "log level, overrides config")
		flagDryRun     = flag.Bool("dry-run", false, "trade records go to memory instead of postgres")
	)
	flag.Parse()

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	applyFlags(cfg, *flagSymbol, *flagThreshold, *flagDirection, *flagNotional, *flagLeverage, *flagDryRun)

	level := cfg.Runtime.Log.Level
	if *flagLogLevel != "" {
		level = *flagLogLevel
	}
	log := logger.New(logger.Config{
		Level:      level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	if err := cfg.Trade.Validate(); err != nil {
		log.WithError(err).Fatal("invalid trade configuration")
	}

	clock := engine.NewRealClock()
	if *flagManualTime != "" {
		origin, err := time.Parse(time.RFC3339, *flagManualTime)
		if err != nil {
			log.WithError(err).Fatal("invalid -manual-time")
		}
		clock = engine.NewOffsetClock(origin)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Warn("shutdown signal received, cancelling tasks")
		cancel()
	}()

	recorder, cleanup, err := buildRecorder(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("recorder setup failed")
	}
	defer cleanup()

	notifier := buildNotifier(cfg, log)

	pairs, err := parsePairs(*flagPairs, *flagExchange, cfg.Trade.Symbol)
	if err != nil {
		log.WithError(err).Fatal("invalid pair list")
	}

	registry := engine.NewRegistry()
	g, gctx := errgroup.WithContext(ctx)
	failed := false

	for _, p := range pairs {
		p := p
		g.Go(func() error {
			adapter, marks, closer, err := buildAdapter(gctx, p.exchange, p.symbol, cfg, log)
			if err != nil {
				return fmt.Errorf("%s: %w", p.exchange, err)
			}
			if closer != nil {
				defer closer()
			}

			trade := cfg.Trade
			trade.Symbol = p.symbol
			exec := engine.NewExecutor(trade, adapter, recorder, notifier, clock, marks, log)

			outcome, err := registry.Run(gctx, exec)
			if err != nil {
				log.WithExchange(p.exchange).WithError(err).Error("cycle failed")
				return err
			}
			log.WithExchange(p.exchange).WithFields(map[string]interface{}{
				"symbol": p.symbol, "outcome": string(outcome),
			}).Info("cycle finished")
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}

type pair struct {
	exchange string
	symbol   string
}

func parsePairs(list, exchange, symbol string) ([]pair, error) {
	if list == "" {
		if symbol == "" {
			return nil, fmt.Errorf("no symbol configured, set trade.symbol or -symbol")
		}
		return []pair{{exchange: exchange, symbol: symbol}}, nil
	}
	var pairs []pair
	for _, item := range strings.Split(list, ",") {
		parts := strings.SplitN(strings.TrimSpace(item), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed pair %q, want exchange:symbol", item)
		}
		pairs = append(pairs, pair{exchange: strings.ToLower(parts[0]), symbol: parts[1]})
	}
	return pairs, nil
}

func applyFlags(cfg *config.Config, symbol string, threshold float64, direction string, notional float64, leverage int, dryRun bool) {
	if symbol != "" {
		cfg.Trade.Symbol = symbol
	}
	if threshold != 0 {
		cfg.Trade.Threshold = threshold
	}
	if direction != "" {
		cfg.Trade.Direction = direction
	}
	if notional != 0 {
		cfg.Trade.Notional = notional
	}
	if leverage != 0 {
		cfg.Trade.Leverage = leverage
	}
	if dryRun {
		cfg.Runtime.DryRun = true
	}
}

func buildRecorder(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Recorder, func(), error) {
	if cfg.Runtime.DryRun || cfg.Database.DSN == "" {
		log.WithComponent("store").Info("using in-memory trade records")
		return memory.NewRecorder(), func() {}, nil
	}
	pool, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewRecorder(pool), pool.Close, nil
}

func buildNotifier(cfg *config.Config, log *logger.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.WeComWebhook != "" {
		senders = append(senders, notify.NewWeComSender(cfg.Notify.WeComWebhook, cfg.Notify.Mentions))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChat != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChat))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.New(log, senders...)
}

// buildAdapter wires the REST shim for one exchange, plus the mark-price
// stream where one exists (bybit only; the others fall back to REST polling
// in the stop-loss watch).
func buildAdapter(ctx context.Context, name, symbol string, cfg *config.Config, log *logger.Logger) (exchange.Adapter, <-chan models.MarkPrice, func(), error) {
	ex, ok := cfg.Exchanges[name]
	if !ok {
		return nil, nil, nil, fmt.Errorf("no configuration for exchange %q", name)
	}
	timeout := cfg.Trade.CallTimeout

	switch name {
	case "bybit":
		adapter := bybit.New(ex.BaseUrl, ex.ApiKey, ex.Secret, timeout, log)
		if ex.WSUrl != "" {
			stream := ws.New(ex.WSUrl, symbol, log)
			if err := stream.Connect(ctx); err != nil {
				log.WithComponent("ws").WithError(err).Warn("mark stream unavailable, using REST fallback only")
				return adapter, nil, nil, nil
			}
			return adapter, stream.Prices(), stream.Close, nil
		}
		return adapter, nil, nil, nil
	case "binance":
		return binance.New(ex.BaseUrl, ex.ApiKey, ex.Secret, timeout, log), nil, nil, nil
	case "gateio":
		return gateio.New(ex.BaseUrl, ex.ApiKey, ex.Secret, timeout, log), nil, nil, nil
	case "bitget":
		return bitget.New(ex.BaseUrl, ex.ApiKey, ex.Secret, ex.Passphrase, timeout, log), nil, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown exchange %q", name)
	}
}
