package portfolio

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/position"
	"github.com/quantor/papertrade/store"
)

// flakyGateway fails every write while failing is set.
type flakyGateway struct {
	failing bool
	saved   []string
}

var errStorage = errors.New("disk on fire")

func (g *flakyGateway) write(kind string) error {
	if g.failing {
		return errStorage
	}
	g.saved = append(g.saved, kind)
	return nil
}

func (g *flakyGateway) SaveSession(*config.Session) error { return g.write("session") }
func (g *flakyGateway) SaveSnapshot(store.Snapshot) error { return g.write("snapshot") }
func (g *flakyGateway) Close() error                      { return nil }

func (g *flakyGateway) SaveMutation(cfg *config.Session, touched []*position.Position, closed []position.ClosedPosition, events []position.TradeEvent) error {
	if g.failing {
		return errStorage
	}
	for range closed {
		g.saved = append(g.saved, "closed")
	}
	for range touched {
		g.saved = append(g.saved, "position")
	}
	g.saved = append(g.saved, "session")
	for range events {
		g.saved = append(g.saved, "event")
	}
	return nil
}

func testConfig() *config.Session {
	cfg := config.Default()
	cfg.SessionID = "sess-1"
	return cfg
}

func newTestCoordinator(t *testing.T) (*Coordinator, *flakyGateway) {
	t.Helper()
	gw := &flakyGateway{}
	c, err := New(testConfig(), gw, nil)
	require.NoError(t, err)
	return c, gw
}

func btcRequest() position.OpenRequest {
	return position.OpenRequest{
		Symbol:     "BTCUSDT",
		Side:       position.Long,
		Quantity:   0.4,
		EntryPrice: 50000,
		StopLoss:   49000,
		Leverage:   10,
		Confidence: 0.7,
		RiskAmount: 400,
	}
}

func TestOpen_PersistsPositionAndEvents(t *testing.T) {
	t.Parallel()

	c, gw := newTestCoordinator(t)
	p, err := c.Open(btcRequest())
	require.NoError(t, err)

	assert.InDelta(t, 98000.0, c.Session().CurrentCapital, 1e-9)
	assert.NotNil(t, p)
	assert.Contains(t, gw.saved, "position")
	assert.Contains(t, gw.saved, "event")
}

func TestOpen_Rejected(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t)
	req := btcRequest()
	req.Quantity = 1 // 50k notional against a 20k single-position cap

	_, err := c.Open(req)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.NotEmpty(t, rej.Decision.Reasons())
	assert.InDelta(t, 100000.0, c.Session().CurrentCapital, 1e-9)
	assert.Empty(t, c.OpenPositions())
}

func TestOpen_PersistenceFailureRollsBack(t *testing.T) {
	t.Parallel()

	c, gw := newTestCoordinator(t)
	gw.failing = true

	_, err := c.Open(btcRequest())
	require.ErrorIs(t, err, ErrPersistenceFailure)

	// The rejected mutation must leave no trace in memory, so retrying
	// after storage recovers behaves like a first attempt.
	assert.InDelta(t, 100000.0, c.Session().CurrentCapital, 1e-9)
	assert.Empty(t, c.OpenPositions())

	gw.failing = false
	_, err = c.Open(btcRequest())
	require.NoError(t, err)
	assert.Len(t, c.OpenPositions(), 1)
}

func TestClose_PersistenceFailureRollsBack(t *testing.T) {
	t.Parallel()

	c, gw := newTestCoordinator(t)
	_, err := c.Open(btcRequest())
	require.NoError(t, err)

	gw.failing = true
	_, err = c.Close("BTCUSDT", 52000, position.ReasonManual, "")
	require.ErrorIs(t, err, ErrPersistenceFailure)

	assert.Len(t, c.OpenPositions(), 1, "position must survive a failed close")
	assert.InDelta(t, 98000.0, c.Session().CurrentCapital, 1e-9)
	assert.Empty(t, c.ClosedPositions())

	gw.failing = false
	cp, err := c.Close("BTCUSDT", 52000, position.ReasonManual, "")
	require.NoError(t, err)
	assert.InDelta(t, 800.0, cp.RealizedPnL, 1e-9)
	assert.InDelta(t, 100800.0, c.Session().CurrentCapital, 1e-9)
}

// brownoutStore passes session bootstrap through to real SQLite but fails
// every mutation write, simulating storage going down mid-session.
type brownoutStore struct {
	*store.Store
	failing bool
}

func (b *brownoutStore) SaveMutation(cfg *config.Session, touched []*position.Position, closed []position.ClosedPosition, events []position.TradeEvent) error {
	if b.failing {
		return errStorage
	}
	return b.Store.SaveMutation(cfg, touched, closed, events)
}

func TestOpen_FailedPersistLeavesDurableStateClean(t *testing.T) {
	t.Parallel()

	st, err := store.Open(filepath.Join(t.TempDir(), "brownout.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	gw := &brownoutStore{Store: st, failing: true}
	c, err := New(testConfig(), gw, nil)
	require.NoError(t, err)

	_, err = c.Open(btcRequest())
	require.ErrorIs(t, err, ErrPersistenceFailure)

	// A restart must see the pre-open state: no position row and the
	// original capital. Anything else means durable state ran ahead of the
	// rolled-back ledger.
	restored, err := Restore(st, "sess-1", nil)
	require.NoError(t, err)
	assert.Empty(t, restored.OpenPositions())
	assert.InDelta(t, 100000.0, restored.Session().CurrentCapital, 1e-9)

	open, err := st.ListOpenPositions("sess-1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCanOpen(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t)

	ok, d := c.CanOpen("BTCUSDT", 15000)
	assert.True(t, ok)
	assert.Empty(t, d.Violations)

	ok, d = c.CanOpen("BTCUSDT", 500000)
	assert.False(t, ok)
	assert.NotEmpty(t, d.Violations)
}

func TestAddTo_AssessedAndPersisted(t *testing.T) {
	t.Parallel()

	gw := &flakyGateway{}
	cfg := testConfig()
	cfg.AllowPyramiding = true
	c, err := New(cfg, gw, nil)
	require.NoError(t, err)

	_, err = c.Open(btcRequest())
	require.NoError(t, err)

	p, err := c.AddTo("BTCUSDT", 0.2, 53000, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p.Quantity, 1e-9)
	assert.InDelta(t, 51000.0, p.EntryPrice, 1e-9)
}

func TestReduce_FullCloseThroughCoordinator(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t)
	_, err := c.Open(btcRequest())
	require.NoError(t, err)

	p, pnl, err := c.Reduce("BTCUSDT", 0.4, 52000, position.ReasonSignal)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.InDelta(t, 800.0, pnl, 1e-9)
	assert.Len(t, c.ClosedPositions(), 1)
}

func TestSweep_StopLossExit(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t)
	_, err := c.Open(btcRequest())
	require.NoError(t, err)

	closed, err := c.Sweep(map[string]float64{"BTCUSDT": 48500}, nil)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, position.ReasonStopLoss, closed[0].ExitReason)
	assert.Empty(t, c.OpenPositions())
}

func TestSweep_InvalidationExit(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t)
	req := btcRequest()
	req.Invalidation = position.Invalidation{
		Description:  "two closes below 49500",
		Type:         position.CloseBelow,
		TriggerPrice: 49500,
		CandleCloses: 2,
	}
	_, err := c.Open(req)
	require.NoError(t, err)

	candles := map[string][]position.Candle{
		"BTCUSDT": {{Close: 49400}, {Close: 49300}},
	}
	closed, err := c.Sweep(map[string]float64{"BTCUSDT": 49300}, candles)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, position.ReasonInvalidation, closed[0].ExitReason)
	assert.InDelta(t, 49300.0, closed[0].ExitPrice, 1e-9)
}

func TestSweep_PersistenceFailureKeepsExit(t *testing.T) {
	t.Parallel()

	c, gw := newTestCoordinator(t)
	_, err := c.Open(btcRequest())
	require.NoError(t, err)

	gw.failing = true
	closed, err := c.Sweep(map[string]float64{"BTCUSDT": 48500}, nil)
	require.ErrorIs(t, err, ErrPersistenceFailure)
	require.Len(t, closed, 1, "triggered exit must stand even when storage is down")
	assert.Empty(t, c.OpenPositions())

	// Next sweep retries the unpersisted closed record and events.
	gw.failing = false
	_, err = c.Sweep(nil, nil)
	require.NoError(t, err)
	assert.Contains(t, gw.saved, "closed")
	assert.Contains(t, gw.saved, "event")
}

func TestSweep_ConcurrencyConflict(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t)
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.Sweep(map[string]float64{"BTCUSDT": 50000}, nil)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t)
	_, err := c.Open(btcRequest())
	require.NoError(t, err)

	_, err = c.Sweep(map[string]float64{"BTCUSDT": 50500}, nil)
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, 1, snap.OpenPositions)
	assert.InDelta(t, 98000.0, snap.AvailableCapital, 1e-9)
	assert.InDelta(t, 20000.0, snap.CommittedCapital, 1e-9)
	assert.InDelta(t, 118000.0, snap.TotalCapital, 1e-9)
	assert.InDelta(t, 200.0, snap.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 200.0, snap.TotalPnL, 1e-9)
	assert.InDelta(t, 0.2, snap.TotalReturnPct, 1e-9)
	assert.InDelta(t, 400.0/118000.0, snap.PortfolioHeat, 1e-9)
}

func TestSaveSnapshot(t *testing.T) {
	t.Parallel()

	c, gw := newTestCoordinator(t)
	_, err := c.SaveSnapshot()
	require.NoError(t, err)
	assert.Contains(t, gw.saved, "snapshot")

	gw.failing = true
	_, err = c.SaveSnapshot()
	assert.ErrorIs(t, err, ErrPersistenceFailure)
}

func TestMarginStatus(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.InitialCapital = 10000
	cfg.CurrentCapital = 10000
	c, err := New(cfg, &flakyGateway{}, nil)
	require.NoError(t, err)

	ms := c.MarginStatus()
	assert.Zero(t, ms.Used)
	assert.False(t, ms.Warning)

	// 0.8 * 2000 notional at 1x leverage commits 1600 margin.
	_, err = c.Open(position.OpenRequest{
		Symbol:     "BTCUSDT",
		Side:       position.Long,
		Quantity:   0.8,
		EntryPrice: 2000,
		StopLoss:   1900,
		Leverage:   1,
	})
	require.NoError(t, err)

	ms = c.MarginStatus()
	assert.InDelta(t, 1600.0, ms.Used, 1e-9)
	assert.InDelta(t, 8400.0, ms.Available, 1e-9)
	assert.False(t, ms.Critical)
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t)
	_, err := c.Open(btcRequest())
	require.NoError(t, err)
	_, err = c.Close("BTCUSDT", 52000, position.ReasonManual, "")
	require.NoError(t, err)

	s := c.Statistics()
	assert.Equal(t, 1, s.TotalTrades)
	assert.InDelta(t, 800.0, s.TotalPnL, 1e-9)
}

func TestRestore_RoundTrip(t *testing.T) {
	t.Parallel()

	st, err := store.Open(filepath.Join(t.TempDir(), "restore.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	cfg := testConfig()
	cfg.AllowPyramiding = true
	c, err := New(cfg, st, nil)
	require.NoError(t, err)

	_, err = c.Open(btcRequest())
	require.NoError(t, err)
	_, err = c.Open(position.OpenRequest{
		Symbol:     "ETHUSDT",
		Side:       position.Short,
		Quantity:   2,
		EntryPrice: 3000,
		StopLoss:   3100,
		Leverage:   5,
	})
	require.NoError(t, err)
	_, err = c.Close("ETHUSDT", 2900, position.ReasonSignal, "")
	require.NoError(t, err)

	want := c.Session()

	// A fresh process rebuilds the same view from storage.
	restored, err := Restore(st, "sess-1", nil)
	require.NoError(t, err)

	got := restored.Session()
	assert.InDelta(t, want.CurrentCapital, got.CurrentCapital, 1e-9)

	open := restored.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "BTCUSDT", open[0].Symbol)
	assert.InDelta(t, 0.4, open[0].BaseQuantity(), 1e-12)

	closed := restored.ClosedPositions()
	require.Len(t, closed, 1)
	assert.InDelta(t, 200.0, closed[0].RealizedPnL, 1e-9)
	assert.Equal(t, 1, restored.Statistics().TotalTrades)
}

func TestRestore_UnknownSession(t *testing.T) {
	t.Parallel()

	st, err := store.Open(filepath.Join(t.TempDir(), "missing.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	_, err = Restore(st, "nope", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	st, err := store.Open(filepath.Join(t.TempDir(), "registry.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	r := NewRegistry(st, nil)

	c, err := r.Create(testConfig())
	require.NoError(t, err)

	_, err = r.Create(testConfig())
	assert.ErrorIs(t, err, ErrDuplicateSession)

	got, err := r.Get("sess-1")
	require.NoError(t, err)
	assert.Same(t, c, got)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, []string{"sess-1"}, r.Sessions())
}

func TestRegistry_GetRestoresFromStore(t *testing.T) {
	t.Parallel()

	st, err := store.Open(filepath.Join(t.TempDir(), "lazy.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	cfg := testConfig()
	_, err = New(cfg, st, nil)
	require.NoError(t, err)

	// A separate registry (fresh process) finds the session lazily.
	r := NewRegistry(st, nil)
	c, err := r.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", c.Session().SessionID)
}

func TestSweep_TimeStop(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t)
	req := btcRequest()
	req.MaxHold = time.Nanosecond
	_, err := c.Open(req)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	closed, err := c.Sweep(map[string]float64{"BTCUSDT": 50100}, nil)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, position.ReasonTimeStop, closed[0].ExitReason)
}
