// Package portfolio coordinates session-level capital, risk admission, the
// position ledger, and persistence. One Coordinator instance exclusively
// owns all mutable state for one session.
package portfolio

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/performance"
	"github.com/quantor/papertrade/position"
	"github.com/quantor/papertrade/risk"
	"github.com/quantor/papertrade/store"
)

// sweep persistence retry bounds; an automatic exit must never be lost.
const (
	sweepPersistAttempts = 3
	sweepPersistBackoff  = 50 * time.Millisecond
)

// Coordinator is the single writer for one session. Mutations (Open, Close,
// AddTo, Reduce, Sweep) take the write lock for their full duration,
// persistence included; reads (Snapshot, MarginStatus, Statistics) share a
// read lock and observe a consistent point-in-time view.
//
// Persistence policy: a mutation is applied in memory, then written
// durably; if the write fails the in-memory change is rolled back and
// ErrPersistenceFailure returned, so memory and storage never diverge.
// Sweep is the exception — see Sweep.
type Coordinator struct {
	mu sync.RWMutex

	cfg    *config.Session
	ledger *position.Ledger
	gw     store.Gateway
	log    *zap.Logger

	// persisted is the watermark into the ledger's event log; events past
	// it have not reached storage yet.
	persisted int

	// pendingClosed holds sweep exits whose durable write failed; they are
	// retried on the next persisting call.
	pendingClosed []position.ClosedPosition
}

// New creates a coordinator for a fresh session and persists the session row.
func New(cfg *config.Session, gw store.Gateway, log *zap.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		cfg:    cfg,
		ledger: position.NewLedger(cfg, log),
		gw:     gw,
		log:    log.With(zap.String("session", cfg.SessionID)),
	}
	if err := gw.SaveSession(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return c, nil
}

// Restore rebuilds a coordinator from durable state: session config, open
// positions, and closed history. The in-memory ledger is a cache over the
// store and must be reconciled this way on restart.
func Restore(st *store.Store, sessionID string, log *zap.Logger) (*Coordinator, error) {
	cfg, err := st.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Coordinator{
		cfg:    cfg,
		ledger: position.NewLedger(cfg, log),
		gw:     st,
		log:    log.With(zap.String("session", sessionID)),
	}

	open, err := st.ListOpenPositions(sessionID)
	if err != nil {
		return nil, err
	}
	c.ledger.Seed(open)

	closed, err := st.ListClosedPositions(sessionID)
	if err != nil {
		return nil, err
	}
	c.ledger.SeedClosed(closed)

	c.log.Info("restored session",
		zap.Int("open_positions", len(open)),
		zap.Int("closed_positions", len(closed)),
		zap.Float64("available_capital", cfg.CurrentCapital))
	return c, nil
}

// CanOpen is the single source of truth for "can I trade": it runs the full
// risk assessment against current ledger state for a prospective open of the
// given dollar size.
func (c *Coordinator) CanOpen(symbol string, notionalUSD float64) (bool, risk.Decision) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := risk.Assess(risk.Intent{
		Operation:     position.OpOpen,
		Symbol:        symbol,
		NotionalValue: notionalUSD,
	}, c.ledger.OpenPositions(), c.cfg, c.cfg.CurrentCapital)
	return d.Acceptable, d
}

// Open validates the request against the risk model and opens the position.
// A refusal returns *RejectionError with the full violation list.
func (c *Coordinator) Open(req position.OpenRequest) (*position.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := risk.Assess(risk.Intent{
		Operation:  position.OpOpen,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		EntryPrice: req.EntryPrice,
		StopLoss:   req.StopLoss,
	}, c.ledger.OpenPositions(), c.cfg, c.cfg.CurrentCapital)
	if !d.Acceptable {
		return nil, &RejectionError{Decision: d}
	}
	for _, w := range d.Warnings {
		c.log.Warn("risk warning", zap.String("symbol", req.Symbol), zap.String("warning", w))
	}

	chk := c.ledger.Checkpoint(req.Symbol)
	p, err := c.ledger.Open(req)
	if err != nil {
		return nil, err
	}
	if err := c.persistLocked([]*position.Position{p}, nil); err != nil {
		c.ledger.Restore(chk)
		return nil, err
	}
	return p, nil
}

// Close fully closes the position on symbol at exitPrice.
func (c *Coordinator) Close(symbol string, exitPrice float64, reason position.ExitReason, signalID string) (position.ClosedPosition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chk := c.ledger.Checkpoint(symbol)
	cp, err := c.ledger.Close(symbol, exitPrice, reason, signalID)
	if err != nil {
		return position.ClosedPosition{}, err
	}
	if err := c.persistLocked(nil, []position.ClosedPosition{cp}); err != nil {
		c.ledger.Restore(chk)
		return position.ClosedPosition{}, err
	}
	return cp, nil
}

// AddTo grows an open position (pyramiding) after re-validating risk.
func (c *Coordinator) AddTo(symbol string, quantity, price float64, signalID string) (*position.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := risk.Assess(risk.Intent{
		Operation:  position.OpAdd,
		Symbol:     symbol,
		Quantity:   quantity,
		EntryPrice: price,
	}, c.ledger.OpenPositions(), c.cfg, c.cfg.CurrentCapital)
	if !d.Acceptable {
		return nil, &RejectionError{Decision: d}
	}

	chk := c.ledger.Checkpoint(symbol)
	p, err := c.ledger.AddTo(symbol, quantity, price, signalID)
	if err != nil {
		return nil, err
	}
	if err := c.persistLocked([]*position.Position{p}, nil); err != nil {
		c.ledger.Restore(chk)
		return nil, err
	}
	return p, nil
}

// Reduce realizes P&L on part of a position; reducing by the full quantity
// closes it (remainder nil).
func (c *Coordinator) Reduce(symbol string, quantity, exitPrice float64, reason position.ExitReason) (*position.Position, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chk := c.ledger.Checkpoint(symbol)
	closedBefore := len(c.ledger.ClosedPositions())

	p, pnl, err := c.ledger.Reduce(symbol, quantity, exitPrice, reason)
	if err != nil {
		return nil, 0, err
	}

	var touched []*position.Position
	if p != nil {
		touched = append(touched, p)
	}
	newClosed := c.ledger.ClosedPositions()[closedBefore:]
	if err := c.persistLocked(touched, newClosed); err != nil {
		c.ledger.Restore(chk)
		return nil, 0, err
	}
	return p, pnl, nil
}

// Sweep runs the periodic position update: mark prices, trigger stop/ladder/
// target/time exits, then check invalidation conditions against the supplied
// candles. Every resulting close is persisted before Sweep returns.
//
// Sweep is idempotent with respect to already-closed positions and executed
// ladder levels, so duplicate timer triggers are safe; an overlapping sweep
// on the same session fails fast with ErrConcurrencyConflict instead of
// queueing. If persistence still fails after retries the in-memory exits
// stand, the error is returned, and the unpersisted closed records and
// events are retried on the next persisting call — a triggered exit is
// never lost.
func (c *Coordinator) Sweep(prices map[string]float64, candles map[string][]position.Candle) ([]position.ClosedPosition, error) {
	if !c.mu.TryLock() {
		return nil, ErrConcurrencyConflict
	}
	defer c.mu.Unlock()

	closed := c.ledger.Update(prices)

	for _, p := range c.ledger.OpenPositions() {
		recent, ok := candles[p.Symbol]
		if !ok || len(recent) == 0 {
			continue
		}
		if !c.ledger.CheckInvalidation(p.Symbol, recent) {
			continue
		}
		exitPrice := recent[len(recent)-1].Close
		cp, err := c.ledger.Close(p.Symbol, exitPrice, position.ReasonInvalidation, "")
		if err != nil {
			continue
		}
		c.log.Warn("invalidation triggered",
			zap.String("symbol", p.Symbol),
			zap.String("condition", p.Invalidation.Description),
			zap.Float64("exit", exitPrice))
		closed = append(closed, cp)
	}

	var err error
	for attempt := 1; attempt <= sweepPersistAttempts; attempt++ {
		if err = c.persistLocked(c.ledger.OpenPositions(), closed); err == nil {
			break
		}
		time.Sleep(time.Duration(attempt) * sweepPersistBackoff)
	}
	if err != nil {
		c.pendingClosed = append(c.pendingClosed, closed...)
		c.log.Error("sweep persistence failed after retries",
			zap.Int("attempts", sweepPersistAttempts),
			zap.Int("closed", len(closed)),
			zap.Error(err))
		return closed, err
	}
	return closed, nil
}

// Snapshot aggregates ledger and performance state into a point-in-time
// rollup. Pure read; safe to call concurrently with Sweep.
func (c *Coordinator) Snapshot() store.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// SaveSnapshot takes a snapshot and persists it.
func (c *Coordinator) SaveSnapshot() (store.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.snapshotLocked()
	if err := c.gw.SaveSnapshot(snap); err != nil {
		return snap, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return snap, nil
}

func (c *Coordinator) snapshotLocked() store.Snapshot {
	open := c.ledger.OpenPositions()
	totalNotional := risk.TotalExposure(open)
	available := c.cfg.CurrentCapital
	totalCapital := available + totalNotional

	unrealized := c.ledger.TotalUnrealizedPnL()
	realized := c.ledger.TotalRealizedPnL()
	totalPnL := unrealized + realized

	snap := store.Snapshot{
		SessionID:        c.cfg.SessionID,
		Timestamp:        time.Now().UTC(),
		TotalCapital:     totalCapital,
		AvailableCapital: available,
		CommittedCapital: totalNotional,
		OpenPositions:    len(open),
		TotalNotional:    totalNotional,
		UnrealizedPnL:    unrealized,
		RealizedPnL:      realized,
		TotalPnL:         totalPnL,
		PortfolioHeat:    risk.PortfolioHeat(open, totalCapital),
	}
	if c.cfg.InitialCapital > 0 {
		snap.TotalReturnPct = totalPnL / c.cfg.InitialCapital * 100
	}
	if totalCapital > 0 {
		snap.ExposurePct = totalNotional / totalCapital * 100
	}

	stats := performance.Statistics(c.ledger.ClosedPositions())
	snap.TotalTrades = stats.TotalTrades
	snap.WinRate = stats.WinRate
	snap.AvgWin = stats.AvgWin
	snap.AvgLoss = stats.AvgLoss
	snap.ProfitFactor = stats.ProfitFactor
	return snap
}

// MarginStatus reports committed margin against available capital, with
// warning and critical thresholds at 80% and 90% usage.
type MarginStatus struct {
	Used      float64 `json:"used"`
	Available float64 `json:"available"`
	UsagePct  float64 `json:"usage_pct"`
	Warning   bool    `json:"warning"`
	Critical  bool    `json:"critical"`
}

// MarginStatus returns current margin usage.
func (c *Coordinator) MarginStatus() MarginStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var used float64
	for _, p := range c.ledger.OpenPositions() {
		used += p.Margin()
	}
	available := c.cfg.CurrentCapital

	ms := MarginStatus{Used: used, Available: available}
	switch {
	case available > 0:
		ms.UsagePct = used / available * 100
	case used > 0:
		// No free capital left but margin committed: report saturated.
		ms.UsagePct = 100
	}
	ms.Warning = ms.UsagePct >= 80
	ms.Critical = ms.UsagePct >= 90
	return ms
}

// Statistics derives trade statistics from the closed-position history.
func (c *Coordinator) Statistics() performance.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return performance.Statistics(c.ledger.ClosedPositions())
}

// Session returns a copy of the session config (capital included).
func (c *Coordinator) Session() config.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.cfg
}

// OpenPositions returns the current open positions, ordered by symbol.
func (c *Coordinator) OpenPositions() []*position.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.OpenPositions()
}

// ClosedPositions returns the session's closed history, oldest first.
func (c *Coordinator) ClosedPositions() []position.ClosedPosition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.ClosedPositions()
}

// persistLocked writes the touched open positions, new closed records, the
// session row, and any unpersisted trade events as one atomic gateway call:
// a failure leaves the durable store exactly where it was, never half a
// mutation ahead of memory. Pending closed records from an earlier failed
// sweep ride along; the writes are keyed upserts, so re-running one is
// harmless. The event watermark only advances when everything lands.
func (c *Coordinator) persistLocked(touched []*position.Position, closed []position.ClosedPosition) error {
	allClosed := append(append([]position.ClosedPosition(nil), c.pendingClosed...), closed...)
	events := c.ledger.Events()

	if err := c.gw.SaveMutation(c.cfg, touched, allClosed, events[c.persisted:]); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	c.pendingClosed = nil
	c.persisted = len(events)
	return nil
}
