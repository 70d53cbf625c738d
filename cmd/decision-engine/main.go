package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradequorum/internal/bus"
	"github.com/ajitpratap0/tradequorum/internal/cache"
	"github.com/ajitpratap0/tradequorum/internal/config"
	"github.com/ajitpratap0/tradequorum/internal/engine"
	"github.com/ajitpratap0/tradequorum/internal/metrics"
	"github.com/ajitpratap0/tradequorum/internal/opinion"
	"github.com/ajitpratap0/tradequorum/internal/portfolio"
	"github.com/ajitpratap0/tradequorum/internal/producers"
	"github.com/ajitpratap0/tradequorum/internal/sizing"
	"github.com/ajitpratap0/tradequorum/internal/store"
)

// portfolioID keys the cached risk report for the single managed book.
const portfolioID = "main"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	interval := flag.Duration("interval", 30*time.Second, "Evaluation interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, "console")
	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting decision engine")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
	}

	decisionStore := setupStore(ctx, cfg)
	reportCache := setupCache(cfg)
	if reportCache != nil {
		// A report left by a previous process may have been computed
		// under a different configuration; the first round runs
		// without a risk stance instead.
		if err := reportCache.Invalidate(ctx, portfolioID); err != nil {
			log.Warn().Err(err).Msg("Failed to drop stale risk report")
		}
	}

	producerSet := []engine.Producer{
		producers.NewTechnical(newRandomWalkSource(), log.Logger),
	}
	if reportCache != nil {
		// The risk stance for each round comes from the previous
		// round's cached report.
		producerSet = append(producerSet, producers.NewRisk(reportCache, portfolioID, log.Logger))
	}

	busProducerIDs := []string{opinion.ProducerTrading, opinion.ProducerSentiment, opinion.ProducerNews}
	if reportCache == nil {
		busProducerIDs = append(busProducerIDs, opinion.ProducerRisk)
	}

	var opinionBus *bus.Bus
	if cfg.NATS.Enabled {
		opinionBus, err = bus.New(bus.Config{NATSURL: cfg.NATS.URL})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer opinionBus.Close()

		for _, id := range busProducerIDs {
			bp := newBusProducer(id)
			if _, err := opinionBus.Subscribe(id, "*", bp.handle); err != nil {
				log.Fatal().Err(err).Str("producer", id).Msg("Failed to subscribe to opinions")
			}
			producerSet = append(producerSet, bp)
		}
	}

	eng := engine.New(producerSet, engine.Options{
		ProducerTimeout: time.Duration(cfg.Engine.ProducerTimeoutMS) * time.Millisecond,
		MaxConcurrency:  cfg.Engine.MaxConcurrency,
		RatePerSecond:   cfg.Engine.RatePerSecond,
		Weights:         cfg.Weights,
		SizingConfig: sizing.Config{
			RiskFraction:        cfg.Sizing.RiskFraction,
			MaxPositionFraction: cfg.Sizing.MaxPositionFraction,
		},
		HistoryCapacity: cfg.History.Capacity,
		Store:           decisionStore,
	}, log.Logger)

	symbols := splitSymbols(cfg.Engine.Symbols)
	book := portfolio.New(10000)

	logLastDecisions(ctx, decisionStore, symbols)

	run(ctx, eng, book, reportCache, symbols, *interval)

	log.Info().Msg("Shutting down")
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
}

func run(ctx context.Context, eng *engine.Engine, book *portfolio.Portfolio, reportCache *cache.ReportCache, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var returns []float64
	prevValue := 0.0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := book.Snapshot()
			if prevValue > 0 {
				returns = append(returns, snap.TotalValue/prevValue-1)
				if len(returns) > 252 {
					returns = returns[len(returns)-252:]
				}
			}
			prevValue = snap.TotalValue

			reqs := make([]engine.Request, len(symbols))
			for i, symbol := range symbols {
				reqs[i] = engine.Request{
					Symbol:   symbol,
					Snapshot: snap,
					Returns:  returns,
				}
			}
			results, err := eng.EvaluateBatch(ctx, reqs)
			if err != nil {
				log.Error().Err(err).Msg("Evaluation batch completed with failures")
			}
			for _, result := range results {
				if result == nil {
					continue
				}
				if reportCache != nil {
					if err := reportCache.Set(ctx, portfolioID, result.RiskReport); err != nil {
						log.Warn().Err(err).Msg("Failed to cache risk report")
					}
				}
			}
		}
	}
}

// logLastDecisions surfaces the most recent persisted decision per
// symbol at startup so an operator can see where the engine left off.
func logLastDecisions(ctx context.Context, decisionStore *store.DecisionStore, symbols []string) {
	if decisionStore == nil {
		return
	}
	for _, symbol := range symbols {
		records, err := decisionStore.RecentBySymbol(ctx, symbol, 1)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to load last persisted decision")
			continue
		}
		if len(records) == 0 {
			continue
		}
		log.Info().
			Str("symbol", symbol).
			Str("action", records[0].Action).
			Float64("overall_score", records[0].OverallScore).
			Time("at", records[0].CreatedAt).
			Msg("Last persisted decision")
	}
}

func setupStore(ctx context.Context, cfg *config.Config) *store.DecisionStore {
	if !cfg.Database.Enabled {
		return nil
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.Database, cfg.Database.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse database config")
	}
	poolCfg.MaxConns = int32(cfg.Database.PoolSize)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	log.Info().Msg("Database connection pool created")
	return store.NewDecisionStoreWithPool(pool)
}

func setupCache(cfg *config.Config) *cache.ReportCache {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return cache.NewReportCache(client, time.Duration(cfg.Redis.TTLSec)*time.Second)
}

func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = []string{"BTC-USD"}
	}
	return out
}

// busProducer serves the most recent opinion seen on the bus for one
// producer. It fails the opinion when nothing has arrived yet or the
// last message is stale.
type busProducer struct {
	id     string
	mu     sync.RWMutex
	latest map[string]*bus.Envelope
}

const maxOpinionAge = 5 * time.Minute

func newBusProducer(id string) *busProducer {
	return &busProducer{id: id, latest: make(map[string]*bus.Envelope)}
}

func (p *busProducer) handle(env *bus.Envelope) error {
	p.mu.Lock()
	p.latest[env.Symbol] = env
	p.mu.Unlock()
	return nil
}

func (p *busProducer) ID() string { return p.id }

func (p *busProducer) Opinion(ctx context.Context, symbol string) (opinion.RawOpinion, error) {
	p.mu.RLock()
	env := p.latest[symbol]
	p.mu.RUnlock()

	if env == nil {
		return opinion.RawOpinion{}, fmt.Errorf("no opinion received from %s for %s", p.id, symbol)
	}
	if time.Since(env.Timestamp) > maxOpinionAge {
		return opinion.RawOpinion{}, fmt.Errorf("last opinion from %s for %s is stale", p.id, symbol)
	}
	return env.Opinion, nil
}

// randomWalkSource synthesizes a price series for paper evaluation
// when no market data feed is wired in.
type randomWalkSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	series map[string][]float64
}

func newRandomWalkSource() *randomWalkSource {
	return &randomWalkSource{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		series: make(map[string][]float64),
	}
}

func (s *randomWalkSource) Closes(ctx context.Context, symbol string, limit int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prices := s.series[symbol]
	if len(prices) == 0 {
		prices = []float64{100}
	}
	for len(prices) < limit {
		last := prices[len(prices)-1]
		prices = append(prices, last*(1+s.rng.NormFloat64()*0.01))
	}
	// Advance the walk one step per call.
	last := prices[len(prices)-1]
	prices = append(prices, last*(1+s.rng.NormFloat64()*0.01))
	if len(prices) > limit {
		prices = prices[len(prices)-limit:]
	}
	s.series[symbol] = prices

	out := make([]float64, len(prices))
	copy(out, prices)
	return out, nil
}
