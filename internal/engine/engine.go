// Package engine runs the full decision pipeline: it gathers producer
// opinions concurrently, synthesizes them into a directional decision,
// applies the risk constraint gate, sizes the resulting position, and
// records the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/tradequorum/internal/gate"
	"github.com/ajitpratap0/tradequorum/internal/history"
	"github.com/ajitpratap0/tradequorum/internal/metrics"
	"github.com/ajitpratap0/tradequorum/internal/opinion"
	"github.com/ajitpratap0/tradequorum/internal/portfolio"
	"github.com/ajitpratap0/tradequorum/internal/risk"
	"github.com/ajitpratap0/tradequorum/internal/sizing"
	"github.com/ajitpratap0/tradequorum/internal/store"
	"github.com/ajitpratap0/tradequorum/internal/synthesis"
)

// Producer supplies one opinion per evaluation. Implementations must
// honor the context deadline; the engine converts errors and timeouts
// into failed opinions rather than aborting the evaluation.
type Producer interface {
	ID() string
	Opinion(ctx context.Context, symbol string) (opinion.RawOpinion, error)
}

// Circuit breaker settings for producer calls.
const (
	producerMinRequests     = 5
	producerFailureRatio    = 0.6
	producerOpenTimeout     = 30 * time.Second
	producerHalfOpenMaxReqs = 3
	producerCountInterval   = 10 * time.Second
)

// Options configures the engine.
type Options struct {
	ProducerTimeout time.Duration
	MaxConcurrency  int
	RatePerSecond   int
	Weights         map[string]float64
	SizingConfig    sizing.Config
	HistoryCapacity int
	Store           *store.DecisionStore // optional persistence
}

// Request is one evaluation of a symbol against a portfolio state.
type Request struct {
	Symbol     string
	Snapshot   portfolio.Snapshot
	Returns    []float64 // portfolio return series for risk analytics
	EntryPrice float64   // proposed entry, 0 to skip sizing
	StopLoss   float64   // proposed stop, 0 to skip sizing
}

// Result is the full pipeline output for one request.
type Result struct {
	Decision   gate.GatedDecision
	Sizing     *sizing.PositionSizing // nil unless a directional entry was sized
	RiskReport *risk.Report
	Opinions   []opinion.AgentOpinion
	Elapsed    time.Duration
}

// Engine orchestrates the decision pipeline. Safe for concurrent use.
type Engine struct {
	producers   []Producer
	synthesizer *synthesis.Synthesizer
	calculator  *sizing.Calculator
	analyzer    *risk.Analyzer
	history     *history.Log
	store       *store.DecisionStore
	limiter     *rate.Limiter
	breakers    map[string]*gobreaker.CircuitBreaker
	timeout     time.Duration
	concurrency int
	log         zerolog.Logger
}

// New creates an engine over the given producers.
func New(producers []Producer, opts Options, logger zerolog.Logger) *Engine {
	if opts.ProducerTimeout <= 0 {
		opts.ProducerTimeout = 5 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 3
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(producers))
	for _, p := range producers {
		breakers[p.ID()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        p.ID(),
			MaxRequests: producerHalfOpenMaxReqs,
			Interval:    producerCountInterval,
			Timeout:     producerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= producerMinRequests && failureRatio >= producerFailureRatio
			},
		})
	}

	return &Engine{
		producers:   producers,
		synthesizer: synthesis.NewSynthesizer(opts.Weights),
		calculator:  sizing.NewCalculator(opts.SizingConfig),
		analyzer:    risk.NewAnalyzer(),
		history:     history.NewLog(opts.HistoryCapacity),
		store:       opts.Store,
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond),
		breakers:    breakers,
		timeout:     opts.ProducerTimeout,
		concurrency: opts.MaxConcurrency,
		log:         logger.With().Str("component", "engine").Logger(),
	}
}

// History exposes the engine's decision log.
func (e *Engine) History() *history.Log {
	return e.history
}

// Evaluate runs the full pipeline for one request.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	opinions := e.collect(ctx, req.Symbol)

	decision, err := e.synthesizer.Synthesize(opinions)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed for %s: %w", req.Symbol, err)
	}
	metrics.OverallScore.Set(decision.OverallScore)

	riskOp := findRiskOpinion(opinions)
	gated := gate.Apply(decision, riskOp, &gate.PortfolioContext{
		TotalValue:    req.Snapshot.TotalValue,
		AvailableCash: req.Snapshot.CashBalance,
	})
	metrics.DecisionsTotal.WithLabelValues(string(gated.Action)).Inc()
	if gated.OverrideReason != gate.ReasonNone {
		metrics.GateOverridesTotal.WithLabelValues(gated.OverrideReason).Inc()
	}

	report, err := e.analyzer.Analyze(req.Snapshot, req.Returns)
	if err != nil {
		return nil, fmt.Errorf("risk analysis failed for %s: %w", req.Symbol, err)
	}
	metrics.CompositeRiskScore.Set(report.CompositeScore)
	metrics.PortfolioValue.Set(req.Snapshot.TotalValue)
	metrics.RiskReportsTotal.WithLabelValues(string(report.RiskLevel)).Inc()

	result := &Result{
		Decision:   gated,
		RiskReport: report,
		Opinions:   opinions,
	}

	if isDirectional(gated.Action) && req.EntryPrice > 0 && req.StopLoss > 0 {
		ps, err := e.calculator.RiskBased(req.EntryPrice, req.StopLoss, req.Snapshot.TotalValue, req.Snapshot.CashBalance)
		if err != nil {
			return nil, fmt.Errorf("position sizing failed for %s: %w", req.Symbol, err)
		}
		result.Sizing = ps
		metrics.SizingsTotal.WithLabelValues(string(ps.LimitingConstraint)).Inc()
		e.history.Append(history.KindSizing, req.Symbol, ps)
	}

	e.history.Append(history.KindDecision, req.Symbol, gated)
	e.history.Append(history.KindRiskReport, req.Symbol, report)

	result.Elapsed = time.Since(start)
	metrics.DecisionLatency.Observe(float64(result.Elapsed.Milliseconds()))

	e.persist(ctx, req.Symbol, result)

	e.log.Info().
		Str("symbol", req.Symbol).
		Str("action", string(gated.Action)).
		Float64("confidence", gated.Confidence).
		Float64("overall_score", gated.OverallScore).
		Str("override_reason", gated.OverrideReason).
		Str("risk_level", string(report.RiskLevel)).
		Dur("elapsed", result.Elapsed).
		Msg("Evaluation complete")

	return result, nil
}

// maxBatchConcurrency bounds simultaneous symbol evaluations in a batch.
const maxBatchConcurrency = 3

// EvaluateBatch evaluates several symbols concurrently, at most
// maxBatchConcurrency at a time. Results align with the request slice;
// a failed symbol leaves a nil result and its error is joined into the
// returned error while the remaining symbols still complete.
func (e *Engine) EvaluateBatch(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(maxBatchConcurrency)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := e.Evaluate(ctx, req)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// collect gathers one opinion per producer with bounded concurrency.
// Producer errors, timeouts, and open circuit breakers all degrade to
// failed opinions so synthesis sees the complete producer roster.
func (e *Engine) collect(ctx context.Context, symbol string) []opinion.AgentOpinion {
	raws := make([]opinion.RawOpinion, len(e.producers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, p := range e.producers {
		i, p := i, p
		g.Go(func() error {
			raws[i] = e.callProducer(gctx, p, symbol)
			return nil
		})
	}
	// Producer failures are captured in the opinions, never returned.
	_ = g.Wait()

	opinions := make([]opinion.AgentOpinion, len(raws))
	for i, raw := range raws {
		opinions[i] = opinion.Normalize(raw)
		if !opinions[i].OK {
			metrics.ProducerFailuresTotal.WithLabelValues(opinions[i].ProducerID).Inc()
		}
	}
	return opinions
}

func (e *Engine) callProducer(ctx context.Context, p Producer, symbol string) opinion.RawOpinion {
	if err := e.limiter.Wait(ctx); err != nil {
		return failedOpinion(p.ID(), err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	breaker := e.breakers[p.ID()]
	raw, err := breaker.Execute(func() (interface{}, error) {
		done := make(chan struct{})
		var (
			result opinion.RawOpinion
			opErr  error
		)
		go func() {
			result, opErr = p.Opinion(callCtx, symbol)
			close(done)
		}()

		select {
		case <-done:
			if opErr != nil {
				return nil, opErr
			}
			if !result.OK && result.Error == "" {
				return nil, errors.New("producer reported failure without detail")
			}
			return result, nil
		case <-callCtx.Done():
			return nil, fmt.Errorf("producer %s timed out: %w", p.ID(), callCtx.Err())
		}
	})
	if err != nil {
		e.log.Warn().
			Err(err).
			Str("producer", p.ID()).
			Str("symbol", symbol).
			Msg("Producer call failed")
		return failedOpinion(p.ID(), err)
	}

	return raw.(opinion.RawOpinion)
}

func (e *Engine) persist(ctx context.Context, symbol string, result *Result) {
	if e.store == nil {
		return
	}

	quantity := 0.0
	if result.Sizing != nil {
		quantity = result.Sizing.RecommendedQuantity
	}
	record := &store.DecisionRecord{
		ID:             uuid.New(),
		Symbol:         symbol,
		Action:         string(result.Decision.Action),
		Confidence:     result.Decision.Confidence,
		OverallScore:   result.Decision.OverallScore,
		OverrideReason: result.Decision.OverrideReason,
		Quantity:       quantity,
		Reasoning:      result.Decision.Reasoning,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.Insert(ctx, record); err != nil {
		e.log.Error().
			Err(err).
			Str("symbol", symbol).
			Msg("Failed to persist decision")
	}
}

func findRiskOpinion(opinions []opinion.AgentOpinion) opinion.AgentOpinion {
	for _, op := range opinions {
		if op.IsRisk() {
			return op
		}
	}
	// Absent risk producer behaves like a failed one: the gate skips
	// the risk rules and keeps the cash constraint.
	return opinion.AgentOpinion{ProducerID: opinion.ProducerRisk, OK: false, Error: "no risk opinion"}
}

func isDirectional(a opinion.Action) bool {
	switch a {
	case opinion.ActionStrongBuy, opinion.ActionBuy, opinion.ActionSell, opinion.ActionStrongSell:
		return true
	default:
		return false
	}
}

func failedOpinion(producerID string, err error) opinion.RawOpinion {
	return opinion.RawOpinion{
		ProducerID: producerID,
		OK:         false,
		Error:      err.Error(),
	}
}
