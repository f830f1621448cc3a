package position

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/pkg/id"
)

// Ledger owns the open positions and closed-position history for one
// session. It is not safe for concurrent use on its own: the owning
// coordinator serializes all mutations (single-writer per session).
//
// Per symbol the lifecycle is absent -> open -> (add/reduce)* -> closed.
// With pyramiding enabled, a second open on the same symbol merges into the
// existing record at the weighted-average entry price; there is always at
// most one open position per symbol.
type Ledger struct {
	cfg *config.Session
	log *zap.Logger

	positions map[string]*Position
	closed    []ClosedPosition
	events    []TradeEvent

	nowFn func() time.Time
}

// NewLedger creates an empty ledger bound to a session config. The ledger
// mutates cfg.CurrentCapital as margin is committed and released.
func NewLedger(cfg *config.Session, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		cfg:       cfg,
		log:       log,
		positions: make(map[string]*Position),
		nowFn:     time.Now,
	}
}

// OpenRequest carries everything needed to open a position. RiskAmount is
// the committed risk in quote currency, pre-validated by the risk model.
type OpenRequest struct {
	Symbol       string
	Side         Side
	Quantity     float64
	EntryPrice   float64
	StopLoss     float64
	ProfitTarget float64
	Ladder       []TakeProfitLevel
	Invalidation Invalidation
	MaxHold      time.Duration
	Leverage     int
	Confidence   float64
	RiskAmount   float64
	SignalID     string
}

func (r OpenRequest) validate(cfg *config.Session) error {
	if r.Symbol == "" || r.Quantity <= 0 || r.EntryPrice <= 0 {
		return fmt.Errorf("%w: symbol/quantity/entry must be set", ErrInvalidOpen)
	}
	if r.Side != Long && r.Side != Short {
		return fmt.Errorf("%w: side must be long or short", ErrInvalidOpen)
	}
	if r.Leverage < cfg.MinLeverage || r.Leverage > cfg.MaxLeverage {
		return fmt.Errorf("%w: leverage %d outside [%d, %d]",
			ErrInvalidOpen, r.Leverage, cfg.MinLeverage, cfg.MaxLeverage)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be in [0, 1]", ErrInvalidOpen)
	}
	// Stop and target must sit on the correct side of entry.
	if r.Side == Long {
		if r.StopLoss > 0 && r.StopLoss >= r.EntryPrice {
			return fmt.Errorf("%w: long stop must be below entry", ErrInvalidOpen)
		}
		if r.ProfitTarget > 0 && r.ProfitTarget <= r.EntryPrice {
			return fmt.Errorf("%w: long target must be above entry", ErrInvalidOpen)
		}
	} else {
		if r.StopLoss > 0 && r.StopLoss <= r.EntryPrice {
			return fmt.Errorf("%w: short stop must be above entry", ErrInvalidOpen)
		}
		if r.ProfitTarget > 0 && r.ProfitTarget >= r.EntryPrice {
			return fmt.Errorf("%w: short target must be below entry", ErrInvalidOpen)
		}
	}
	return nil
}

// Open opens a new position, committing margin = notional / leverage against
// session capital. If the symbol already has an open position the call fails
// with ErrDuplicateOpenPosition, unless pyramiding is enabled and the sides
// match, in which case the open merges into the existing record.
func (l *Ledger) Open(req OpenRequest) (*Position, error) {
	if err := req.validate(l.cfg); err != nil {
		return nil, err
	}

	if existing, ok := l.positions[req.Symbol]; ok {
		if !l.cfg.AllowPyramiding || existing.Side != req.Side {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOpenPosition, req.Symbol)
		}
		return l.AddTo(req.Symbol, req.Quantity, req.EntryPrice, req.SignalID)
	}

	notional := req.Quantity * req.EntryPrice
	margin := notional / float64(req.Leverage)
	if margin > l.cfg.CurrentCapital {
		return nil, fmt.Errorf("%w: margin %.2f exceeds available %.2f",
			ErrInsufficientCapital, margin, l.cfg.CurrentCapital)
	}

	now := l.nowFn().UTC()
	reward := req.Quantity * math.Abs(req.ProfitTarget-req.EntryPrice)
	rr := 0.0
	if req.RiskAmount > 0 {
		rr = reward / req.RiskAmount
	}

	p := &Position{
		ID:              id.New(),
		SessionID:       l.cfg.SessionID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Quantity:        req.Quantity,
		NotionalValue:   notional,
		Leverage:        req.Leverage,
		EntryPrice:      req.EntryPrice,
		ProfitTarget:    req.ProfitTarget,
		StopLoss:        req.StopLoss,
		Ladder:          append([]TakeProfitLevel(nil), req.Ladder...),
		Invalidation:    req.Invalidation,
		MaxHold:         req.MaxHold,
		RiskAmount:      req.RiskAmount,
		RewardPotential: reward,
		RiskReward:      rr,
		Confidence:      req.Confidence,
		baseQuantity:    req.Quantity,
		OpenedAt:        now,
		EntrySignalID:   req.SignalID,
	}
	p.MarkPrice(req.EntryPrice, now)

	l.positions[req.Symbol] = p
	l.cfg.CurrentCapital -= margin
	l.cfg.LastUpdated = now
	l.appendEvent(p, OpOpen, req.Quantity, req.EntryPrice, nil, now)

	l.log.Info("opened position",
		zap.String("symbol", p.Symbol),
		zap.String("side", string(p.Side)),
		zap.Float64("quantity", p.Quantity),
		zap.Float64("entry", p.EntryPrice),
		zap.Int("leverage", p.Leverage),
		zap.Float64("risk", p.RiskAmount))
	return p, nil
}

// Close fully closes the open position on symbol at exitPrice, releasing
// margin plus realized P&L back to available capital. It produces the
// position's single ClosedPosition record.
func (l *Ledger) Close(symbol string, exitPrice float64, reason ExitReason, signalID string) (ClosedPosition, error) {
	p, ok := l.positions[symbol]
	if !ok {
		return ClosedPosition{}, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}

	realized := p.Side.Sign() * (exitPrice - p.EntryPrice) * p.Quantity
	pct := 0.0
	if p.NotionalValue > 0 {
		pct = realized / p.NotionalValue * 100
	}

	now := l.nowFn().UTC()
	cp := ClosedPosition{
		ID:             p.ID,
		SessionID:      p.SessionID,
		Symbol:         p.Symbol,
		Side:           p.Side,
		Quantity:       p.Quantity,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      exitPrice,
		RealizedPnL:    realized,
		RealizedPnLPct: pct,
		OpenedAt:       p.OpenedAt,
		ClosedAt:       now,
		HoldingHours:   now.Sub(p.OpenedAt).Hours(),
		ExitReason:     reason,
		ExitSignalID:   signalID,
	}

	l.cfg.CurrentCapital += p.Margin() + realized
	l.cfg.LastUpdated = now
	delete(l.positions, symbol)
	l.closed = append(l.closed, cp)
	l.appendEvent(p, OpClose, cp.Quantity, exitPrice, &realized, now)

	l.log.Info("closed position",
		zap.String("symbol", symbol),
		zap.String("reason", string(reason)),
		zap.Float64("exit", exitPrice),
		zap.Float64("realized_pnl", realized))
	return cp, nil
}

// AddTo increases the open position on symbol, recomputing the
// weighted-average entry price. Requires pyramiding to be enabled.
func (l *Ledger) AddTo(symbol string, quantity, price float64, signalID string) (*Position, error) {
	if !l.cfg.AllowPyramiding {
		return nil, ErrPyramidingDisabled
	}
	p, ok := l.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	if quantity <= 0 || price <= 0 {
		return nil, fmt.Errorf("%w: add quantity and price must be positive", ErrInvalidOpen)
	}

	addMargin := quantity * price / float64(p.Leverage)
	if addMargin > l.cfg.CurrentCapital {
		return nil, fmt.Errorf("%w: margin %.2f exceeds available %.2f",
			ErrInsufficientCapital, addMargin, l.cfg.CurrentCapital)
	}

	now := l.nowFn().UTC()
	totalCost := p.Quantity*p.EntryPrice + quantity*price
	p.Quantity += quantity
	p.EntryPrice = totalCost / p.Quantity
	p.NotionalValue = p.Quantity * p.EntryPrice
	p.baseQuantity += quantity
	if p.StopLoss > 0 {
		p.RiskAmount = p.Quantity * math.Abs(p.EntryPrice-p.StopLoss)
	}
	p.MarkPrice(price, now)

	l.cfg.CurrentCapital -= addMargin
	l.cfg.LastUpdated = now
	l.appendEvent(p, OpAdd, quantity, price, nil, now)

	l.log.Info("added to position",
		zap.String("symbol", symbol),
		zap.Float64("quantity", p.Quantity),
		zap.Float64("avg_entry", p.EntryPrice))
	return p, nil
}

// Reduce realizes P&L on a slice of the position. A reduce quantity at or
// above the open quantity closes the whole position; the returned Position is
// nil in that case. Only a non-positive quantity is an error.
func (l *Ledger) Reduce(symbol string, quantity, exitPrice float64, reason ExitReason) (*Position, float64, error) {
	p, ok := l.positions[symbol]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	if quantity <= 0 {
		return nil, 0, fmt.Errorf("%w: got %f", ErrReduceExceedsPosition, quantity)
	}

	if quantity >= p.Quantity {
		cp, err := l.Close(symbol, exitPrice, reason, "")
		if err != nil {
			return nil, 0, err
		}
		return nil, cp.RealizedPnL, nil
	}

	now := l.nowFn().UTC()
	partial := p.Side.Sign() * (exitPrice - p.EntryPrice) * quantity
	marginReturned := quantity * p.EntryPrice / float64(p.Leverage)

	p.Quantity -= quantity
	p.NotionalValue = p.Quantity * p.EntryPrice
	if p.StopLoss > 0 {
		p.RiskAmount = p.Quantity * math.Abs(p.EntryPrice-p.StopLoss)
	}
	p.MarkPrice(exitPrice, now)

	l.cfg.CurrentCapital += marginReturned + partial
	l.cfg.LastUpdated = now
	l.appendEvent(p, OpReduce, quantity, exitPrice, &partial, now)

	l.log.Info("reduced position",
		zap.String("symbol", symbol),
		zap.String("reason", string(reason)),
		zap.Float64("remaining", p.Quantity),
		zap.Float64("partial_pnl", partial))
	return p, partial, nil
}

// Update marks every open position that has a fresh price, then evaluates
// exits in fixed priority: stop-loss, take-profit ladder, full profit
// target, time stop. Stop-loss wins when a single tick straddles both stop
// and target. Executed ladder levels are skipped, so overlapping sweeps are
// idempotent. Symbols without a price update are left untouched.
//
// Returns the positions fully closed by this sweep.
func (l *Ledger) Update(prices map[string]float64) []ClosedPosition {
	symbols := make([]string, 0, len(l.positions))
	for s := range l.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var out []ClosedPosition
	now := l.nowFn().UTC()

	for _, symbol := range symbols {
		p := l.positions[symbol]
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}
		p.MarkPrice(price, now)

		if p.stopHit(price) {
			cp, err := l.Close(symbol, price, ReasonStopLoss, "")
			if err == nil {
				out = append(out, cp)
			}
			continue
		}

		closed := false
		for i := range p.Ladder {
			lvl := &p.Ladder[i]
			if lvl.Executed || !p.ladderHit(*lvl, price) {
				continue
			}
			lvl.Executed = true
			reduceQty := lvl.Fraction * p.baseQuantity
			if reduceQty >= p.Quantity {
				cp, err := l.Close(symbol, price, ReasonTakeProfit, "")
				if err == nil {
					out = append(out, cp)
				}
				closed = true
				break
			}
			_, _, _ = l.Reduce(symbol, reduceQty, price, ReasonPartialTakeProfit)
		}
		if closed {
			continue
		}

		if p.targetHit(price) {
			cp, err := l.Close(symbol, price, ReasonTakeProfit, "")
			if err == nil {
				out = append(out, cp)
			}
			continue
		}

		if p.MaxHold > 0 && now.Sub(p.OpenedAt) >= p.MaxHold {
			cp, err := l.Close(symbol, price, ReasonTimeStop, "")
			if err == nil {
				out = append(out, cp)
			}
		}
	}
	return out
}

// CheckInvalidation evaluates the position's invalidation predicate against
// recent candles. The caller decides whether to close.
func (l *Ledger) CheckInvalidation(symbol string, recent []Candle) bool {
	p, ok := l.positions[symbol]
	if !ok {
		return false
	}
	return p.Invalidation.Triggered(recent)
}

// Get returns the open position for symbol, if any.
func (l *Ledger) Get(symbol string) (*Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

// OpenPositions returns the open positions ordered by symbol.
func (l *Ledger) OpenPositions() []*Position {
	out := make([]*Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ClosedPositions returns the session's closed-position history, oldest first.
func (l *Ledger) ClosedPositions() []ClosedPosition {
	return append([]ClosedPosition(nil), l.closed...)
}

// TotalRealizedPnL sums realized P&L over the closed history.
func (l *Ledger) TotalRealizedPnL() float64 {
	var total float64
	for _, cp := range l.closed {
		total += cp.RealizedPnL
	}
	return total
}

// TotalUnrealizedPnL sums unrealized P&L over open positions.
func (l *Ledger) TotalUnrealizedPnL() float64 {
	var total float64
	for _, p := range l.positions {
		total += p.UnrealizedPnL
	}
	return total
}

// Events returns the full append-only event history.
func (l *Ledger) Events() []TradeEvent {
	return l.events
}

// Seed installs positions loaded from durable storage without touching
// capital; the stored session config already reflects their margin.
func (l *Ledger) Seed(positions []*Position) {
	for _, p := range positions {
		if p.baseQuantity <= 0 {
			p.baseQuantity = p.Quantity
		}
		l.positions[p.Symbol] = p
	}
}

// SeedClosed installs closed-position history loaded from durable storage.
func (l *Ledger) SeedClosed(closed []ClosedPosition) {
	l.closed = append(l.closed, closed...)
}

// Checkpoint captures the state a single-symbol mutation can touch, so the
// coordinator can roll the mutation back if persistence fails.
type Checkpoint struct {
	symbol    string
	pos       *Position
	capital   float64
	updated   time.Time
	closedLen int
	eventsLen int
}

// Checkpoint snapshots capital, event/closed history length, and the open
// position (if any) for symbol.
func (l *Ledger) Checkpoint(symbol string) Checkpoint {
	cp := Checkpoint{
		symbol:    symbol,
		capital:   l.cfg.CurrentCapital,
		updated:   l.cfg.LastUpdated,
		closedLen: len(l.closed),
		eventsLen: len(l.events),
	}
	if p, ok := l.positions[symbol]; ok {
		cp.pos = p.clone()
	}
	return cp
}

// Restore rewinds the ledger to a checkpoint taken before a failed mutation.
func (l *Ledger) Restore(cp Checkpoint) {
	l.cfg.CurrentCapital = cp.capital
	l.cfg.LastUpdated = cp.updated
	l.closed = l.closed[:cp.closedLen]
	l.events = l.events[:cp.eventsLen]
	if cp.pos != nil {
		l.positions[cp.symbol] = cp.pos
	} else {
		delete(l.positions, cp.symbol)
	}
}

func (l *Ledger) appendEvent(p *Position, action Operation, qty, price float64, pnl *float64, now time.Time) {
	l.events = append(l.events, TradeEvent{
		ID:         id.New(),
		SessionID:  l.cfg.SessionID,
		PositionID: p.ID,
		Time:       now,
		Action:     action,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Quantity:   qty,
		Price:      price,
		PnL:        pnl,
	})
}
