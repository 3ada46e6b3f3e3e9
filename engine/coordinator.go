// Package engine runs the rebalance and signal jobs: it guards each run
// with the period mark, the circuit breaker and the trade cap, plans
// orders, clamps them through the risk gate and submits them, journaling
// every attempt.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/journal"
	"github.com/rustyeddy/rebalancer/market"
	"github.com/rustyeddy/rebalancer/pkg/id"
	"github.com/rustyeddy/rebalancer/planner"
	"github.com/rustyeddy/rebalancer/risk"
	"github.com/rustyeddy/rebalancer/signal"
)

type Job string

const (
	JobRun       Job = "run"
	JobRebalance Job = "rebalance"
)

// Skip reasons produced by the signal job.
const (
	SkipNoData = "no_data"
)

// DefaultLookback is how much daily history the signal job requests when
// no start date is configured.
const DefaultLookback = 400 * 24 * time.Hour

// Recorder observes finished runs.
type Recorder interface {
	ObserveRun(r Result)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(Result) {}

type Options struct {
	AccountID string
	// Tag prefixes client order ids, e.g. "paper" or "live".
	Tag string

	Limits   risk.Limits
	Cooldown time.Duration
	// RequireMarketOpen gates the rebalance job only. Signal runs submit
	// day bracket orders and may be scheduled before the open.
	RequireMarketOpen bool

	RunCadence       PeriodFunc
	RebalanceCadence PeriodFunc

	// Rebalance job. Explicit Targets win over Groups.
	Groups  []planner.Group
	Targets []planner.Target

	// Signal job.
	Tickers      []string
	HistoryStart time.Time
	Lookback     time.Duration
	ParamsPath   string
}

func (o Options) Validate() error {
	if strings.TrimSpace(o.AccountID) == "" {
		return fmt.Errorf("%w: account id is required", ErrConfiguration)
	}
	if err := o.Limits.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

type Coordinator struct {
	broker broker.Broker
	market market.Provider
	store  journal.Store
	opts   Options

	gate    risk.Gate
	breaker *risk.Breaker
	lock    *RunLock
	rec     Recorder
	now     func() time.Time
	log     *zap.Logger
}

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.rec = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLock shares a RunLock between coordinators of the same account.
func WithLock(l *RunLock) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.lock = l
		}
	}
}

func New(b broker.Broker, md market.Provider, store journal.Store, opts Options, options ...Option) *Coordinator {
	if opts.RunCadence == nil {
		opts.RunCadence = Daily
	}
	if opts.RebalanceCadence == nil {
		opts.RebalanceCadence = Weekly
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}

	c := &Coordinator{
		broker: b,
		market: md,
		store:  store,
		opts:   opts,
		gate:   risk.NewGate(opts.Limits),
		lock:   NewRunLock(),
		rec:    nopRecorder{},
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, o := range options {
		o(c)
	}
	c.breaker = risk.NewBreaker(store, opts.AccountID, opts.Limits.MaxDailyLoss, opts.Cooldown, c.log)
	return c
}

// Rebalance moves holdings toward the configured dollar targets.
func (c *Coordinator) Rebalance(ctx context.Context) Result {
	return c.execute(ctx, JobRebalance, c.planRebalance)
}

// Run buys the tickers whose signal fires, sized by risk with bracket exits.
func (c *Coordinator) Run(ctx context.Context) Result {
	return c.execute(ctx, JobRun, c.planSignals)
}

func (c *Coordinator) cadence(job Job) PeriodFunc {
	if job == JobRebalance {
		return c.opts.RebalanceCadence
	}
	return c.opts.RunCadence
}

type batch struct {
	intents   []risk.Intent
	positions []broker.Position
	outcomes  []Outcome
}

type planFunc func(ctx context.Context, acct broker.Account) (batch, error)

func (r *Result) fail(err error) {
	r.State = Failed
	r.Err = err
	r.Reason = err.Error()
}

func (r *Result) skip(s State, reason string) {
	r.State = s
	r.Reason = reason
}

func (c *Coordinator) execute(ctx context.Context, job Job, plan planFunc) (res Result) {
	start := c.now()
	res = Result{Job: job, AccountID: c.opts.AccountID, StartedAt: start, State: Idle}
	log := c.log.With(zap.String("account", c.opts.AccountID), zap.String("job", string(job)))

	defer func() {
		res.FinishedAt = c.now()
		res.Status = statusOf(res.State)
		if res.Details == nil {
			res.Details = []Outcome{}
		}
		c.rec.ObserveRun(res)

		fields := []zap.Field{
			zap.String("period", res.Period),
			zap.String("status", res.Status),
			zap.String("state", string(res.State)),
			zap.Int("submitted", res.Count(OutcomeSubmitted)),
			zap.Int("errors", res.Count(OutcomeError)),
			zap.Duration("took", res.Duration()),
		}
		if res.Reason != "" {
			fields = append(fields, zap.String("reason", res.Reason))
		}
		if res.State == Failed {
			log.Error("run failed", append(fields, zap.Error(res.Err))...)
			return
		}
		log.Info("run finished", fields...)
	}()

	if err := c.opts.Validate(); err != nil {
		res.fail(err)
		return
	}

	period := c.cadence(job)(start)
	res.Period = period

	unlock, err := c.lock.Lock(ctx, c.opts.AccountID)
	if err != nil {
		res.fail(fmt.Errorf("acquire run lock: %w", err))
		return
	}
	defer unlock()

	res.State = CheckingPeriod
	last, err := c.store.LastPeriod(ctx, c.opts.AccountID, string(job))
	if err != nil {
		res.fail(err)
		return
	}
	if last == period {
		res.skip(SkippedAlreadyRun, "already_run")
		return
	}

	acct, err := c.broker.GetAccount(ctx)
	if err != nil {
		res.fail(fmt.Errorf("fetch account: %w", err))
		return
	}
	if !(acct.Equity > 0) {
		res.fail(fmt.Errorf("%w: equity %v", ErrInvalidEquity, acct.Equity))
		return
	}

	if job == JobRebalance && c.opts.RequireMarketOpen {
		clock, err := c.broker.GetClock(ctx)
		switch {
		case err != nil:
			log.Warn("market clock unavailable, continuing", zap.Error(err))
		case !clock.IsOpen:
			res.skip(SkippedMarketClosed, "market_closed")
			return
		}
	}

	res.State = CheckingCircuitBreaker
	d, err := c.breaker.Evaluate(ctx, start, acct)
	if err != nil {
		res.fail(err)
		return
	}
	if d.Halt {
		until := d.Until
		res.Until = &until
		res.skip(SkippedHalted, d.Reason)
		return
	}

	if limit := c.opts.Limits.MaxDailyTrades; limit > 0 {
		day := start.UTC().Format(journal.DayLayout)
		n, err := c.store.CountExecutions(ctx, c.opts.AccountID, day, journal.StatusSubmitted)
		if err != nil {
			res.fail(err)
			return
		}
		if n >= limit {
			res.skip(SkippedTradeCapReached, "daily_trade_cap")
			return
		}
	}

	res.State = Planning
	b, err := plan(ctx, acct)
	if err != nil {
		res.fail(err)
		return
	}
	res.Details = append(res.Details, b.outcomes...)

	res.State = Gating
	accepted, rejected := c.gate.Check(b.intents, acct, b.positions)
	for _, r := range rejected {
		log.Info("intent rejected", zap.String("symbol", r.Intent.Symbol), zap.String("reason", r.Reason), zap.String("detail", r.Msg))
		res.Details = append(res.Details, Outcome{
			Symbol: r.Intent.Symbol,
			Side:   string(r.Intent.Side),
			Status: skipped(r.Reason),
			Qty:    r.Intent.Qty,
			Price:  r.Intent.RefPrice,
			Note:   r.Msg,
		})
	}

	res.State = Executing
	if err := c.submit(ctx, log, &res, accepted); err != nil {
		res.fail(err)
		return
	}

	if err := c.store.MarkPeriod(ctx, c.opts.AccountID, string(job), last, period); err != nil {
		res.fail(err)
		return
	}
	res.State = Done
	return
}

// submit sends intents one at a time. Every attempt is journaled before the
// next one starts; a failed order never stops the batch but a failed
// journal write or a cancelled context does.
func (c *Coordinator) submit(ctx context.Context, log *zap.Logger, res *Result, intents []risk.Intent) error {
	abandon := func(rest []risk.Intent, note string) {
		for _, in := range rest {
			res.Details = append(res.Details, Outcome{
				Symbol: in.Symbol,
				Side:   string(in.Side),
				Status: OutcomeCancelled,
				Qty:    in.Qty,
				Price:  in.RefPrice,
				Note:   note,
			})
		}
	}

	for i, in := range intents {
		if err := ctx.Err(); err != nil {
			abandon(intents[i:], err.Error())
			return fmt.Errorf("execution interrupted after %d of %d orders: %w", i, len(intents), err)
		}

		now := c.now()
		req := broker.OrderRequest{
			Symbol:        in.Symbol,
			Qty:           in.Qty,
			Side:          in.Side,
			Type:          broker.Market,
			TimeInForce:   broker.Day,
			ClientOrderID: id.ClientOrderID(c.opts.Tag, in.Symbol, now),
			TakeProfit:    in.TakeProfit,
			StopLoss:      in.StopLoss,
		}

		out := Outcome{
			Symbol:   in.Symbol,
			Side:     string(in.Side),
			Qty:      in.Qty,
			Price:    in.RefPrice,
			ClientID: req.ClientOrderID,
		}
		rec := journal.Execution{
			AccountID: c.opts.AccountID,
			Job:       string(res.Job),
			Period:    res.Period,
			Timestamp: now,
			Symbol:    in.Symbol,
			Side:      string(in.Side),
			Qty:       float64(in.Qty),
			Price:     in.RefPrice,
			ClientID:  req.ClientOrderID,
		}

		ack, err := c.broker.SubmitOrder(ctx, req)
		if err != nil {
			out.Status = OutcomeError
			out.Note = err.Error()
			rec.Status = journal.StatusError
			rec.Note = err.Error()
			log.Warn("order failed",
				zap.String("symbol", in.Symbol),
				zap.String("client_id", req.ClientOrderID),
				zap.Bool("rejected", errors.Is(err, ErrBrokerRejection)),
				zap.Error(err))
		} else {
			out.Status = OutcomeSubmitted
			out.BrokerID = ack.BrokerOrderID
			out.Note = in.Note
			rec.Status = journal.StatusSubmitted
			rec.BrokerID = ack.BrokerOrderID
			rec.Note = in.Note
			log.Info("order submitted",
				zap.String("symbol", in.Symbol),
				zap.String("side", string(in.Side)),
				zap.Int64("qty", in.Qty),
				zap.String("client_id", req.ClientOrderID),
				zap.String("broker_id", ack.BrokerOrderID))
		}
		res.Details = append(res.Details, out)

		// the attempt happened; record it even if ctx was cancelled meanwhile
		if err := c.store.AppendExecution(context.WithoutCancel(ctx), rec); err != nil {
			abandon(intents[i+1:], "ledger unavailable")
			return err
		}
	}
	return nil
}

func (c *Coordinator) planRebalance(ctx context.Context, acct broker.Account) (batch, error) {
	positions, err := c.broker.GetPositions(ctx)
	if err != nil {
		return batch{}, fmt.Errorf("fetch positions: %w", err)
	}

	targets := c.opts.Targets
	if len(targets) == 0 {
		targets = planner.Targets(acct.Equity, c.opts.Groups, c.opts.Limits)
	}

	p, err := planner.New(c.market, c.opts.Limits.MinOrderUSD, c.log).Plan(ctx, targets, positions, acct)
	if err != nil {
		return batch{}, fmt.Errorf("plan: %w", err)
	}

	b := batch{intents: p.Intents, positions: positions}
	for _, s := range p.Skipped {
		b.outcomes = append(b.outcomes, Outcome{Symbol: s.Symbol, Status: skipped(s.Reason), Note: s.Note})
	}
	return b, nil
}

func (c *Coordinator) planSignals(ctx context.Context, acct broker.Account) (batch, error) {
	params := signal.ParamSet{}
	if c.opts.ParamsPath != "" {
		ps, err := signal.LoadParams(c.opts.ParamsPath)
		if err != nil {
			c.log.Warn("best params unreadable, using defaults", zap.Error(err))
		} else {
			params = ps
		}
	}

	positions, err := c.broker.GetPositions(ctx)
	if err != nil {
		return batch{}, fmt.Errorf("fetch positions: %w", err)
	}

	end := c.now()
	start := c.opts.HistoryStart
	if start.IsZero() {
		start = end.Add(-c.opts.Lookback)
	}

	l := c.opts.Limits
	b := batch{positions: positions}
	for _, raw := range c.opts.Tickers {
		if err := ctx.Err(); err != nil {
			return batch{}, err
		}
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" {
			continue
		}

		series, err := c.market.GetHistory(ctx, sym, start, end)
		if err == nil {
			series.Symbol = sym
		}
		var d signal.Decision
		if err == nil {
			d, err = signal.Decide(series, params.For(sym))
		}
		if err != nil {
			c.log.Warn("no signal", zap.String("symbol", sym), zap.Error(err))
			b.outcomes = append(b.outcomes, Outcome{Symbol: sym, Status: skipped(SkipNoData), Note: err.Error()})
			continue
		}
		if d.Action != signal.Buy {
			b.outcomes = append(b.outcomes, Outcome{Symbol: sym, Status: OutcomeHold})
			continue
		}

		lookup, err := c.broker.GetPosition(ctx, sym)
		if err != nil {
			b.outcomes = append(b.outcomes, Outcome{Symbol: sym, Status: OutcomeError, Note: fmt.Sprintf("position lookup: %v", err)})
			continue
		}
		if lookup.Found && lookup.Qty != 0 {
			b.outcomes = append(b.outcomes, Outcome{Symbol: sym, Status: OutcomeAlreadyPosition})
			continue
		}

		qty := risk.SizeByRisk(d.Entry, d.Stop, l.RiskPerTrade, l.MaxPositionPct, l.MaxTotalExposure, acct.Equity)
		if qty <= 0 {
			b.outcomes = append(b.outcomes, Outcome{Symbol: sym, Side: string(broker.Buy), Status: skipped(risk.ReasonQty0), Price: d.Entry})
			continue
		}

		tp, sl := cents(d.TakeProfit), cents(d.Stop)
		atRisk := risk.RiskAmount(qty, d.Entry, sl)
		rr := risk.RR(d.Entry, sl, tp)
		c.log.Info("signal sized",
			zap.String("symbol", sym),
			zap.Int64("qty", qty),
			zap.Float64("entry", d.Entry),
			zap.Float64("risk_usd", atRisk),
			zap.Float64("rr", rr))
		b.intents = append(b.intents, risk.Intent{
			Symbol:     sym,
			Side:       broker.Buy,
			Qty:        qty,
			RefPrice:   d.Entry,
			TakeProfit: &tp,
			StopLoss:   &sl,
			Note:       fmt.Sprintf("risk=%.2f rr=%.2f", atRisk, rr),
		})
	}
	return b, nil
}

func cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
