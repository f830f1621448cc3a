// Package store is the persistence gateway: the only component that touches
// storage. It keeps five durable collections — sessions, open positions,
// closed positions, portfolio snapshots, and an append-only trade-event log —
// in SQLite. The in-memory ledger is a cache over this store and is
// reconciled from it on restart.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/position"
)

// Snapshot is a point-in-time portfolio rollup, immutable once stored and
// ordered by timestamp per session.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	TotalCapital     float64 `json:"total_capital"`
	AvailableCapital float64 `json:"available_capital"`
	CommittedCapital float64 `json:"committed_capital"`

	OpenPositions int     `json:"open_positions_count"`
	TotalNotional float64 `json:"total_notional"`

	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	RealizedPnL    float64 `json:"realized_pnl"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalReturnPct float64 `json:"total_return_pct"`

	PortfolioHeat float64 `json:"portfolio_heat"`
	ExposurePct   float64 `json:"exposure_pct"`

	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
}

// Gateway is the write surface the coordinator persists through. *Store is
// the SQLite implementation; tests substitute failing fakes.
//
// SaveMutation is all-or-nothing: either every row of a ledger mutation
// reaches storage or none does, so a failed write can never leave durable
// state half a mutation ahead of memory.
type Gateway interface {
	SaveSession(cfg *config.Session) error
	SaveMutation(cfg *config.Session, touched []*position.Position, closed []position.ClosedPosition, events []position.TradeEvent) error
	SaveSnapshot(s Snapshot) error
	Close() error
}

// Store is the SQLite persistence gateway.
type Store struct {
	db *sql.DB
}

var _ Gateway = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// execer is satisfied by both *sql.DB and *sql.Tx, so the row writers below
// serve the single-row methods and the transactional SaveMutation alike.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// SaveSession upserts the session row. The full config travels as JSON; the
// hot columns (capital, active flag) are duplicated for querying.
func (s *Store) SaveSession(cfg *config.Session) error {
	return saveSession(s.db, cfg)
}

func saveSession(e execer, cfg *config.Session) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = e.Exec(`
		INSERT OR REPLACE INTO trading_sessions
		(session_id, user_id, initial_capital, current_capital, config_json, created_at, last_updated, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.SessionID, cfg.UserID, cfg.InitialCapital, cfg.CurrentCapital,
		string(blob), cfg.CreatedAt, cfg.LastUpdated, cfg.IsActive,
	)
	return err
}

// SavePosition upserts an open position.
func (s *Store) SavePosition(p *position.Position) error {
	return savePosition(s.db, p)
}

func savePosition(e execer, p *position.Position) error {
	ladder, err := json.Marshal(p.Ladder)
	if err != nil {
		return fmt.Errorf("marshal ladder: %w", err)
	}
	inval, err := json.Marshal(p.Invalidation)
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	_, err = e.Exec(`
		INSERT OR REPLACE INTO positions
		(position_id, session_id, symbol, side, quantity, base_quantity, notional_value,
		 leverage, entry_price, current_price, profit_target, stop_loss_price,
		 ladder_json, invalidation_json, max_hold_seconds, risk_amount, reward_potential,
		 risk_reward, confidence, unrealized_pnl, unrealized_pnl_pct, opened_at,
		 last_updated, entry_signal_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open')`,
		p.ID, p.SessionID, p.Symbol, string(p.Side), p.Quantity, p.BaseQuantity(),
		p.NotionalValue, p.Leverage, p.EntryPrice, p.CurrentPrice, p.ProfitTarget,
		p.StopLoss, string(ladder), string(inval), int64(p.MaxHold/time.Second),
		p.RiskAmount, p.RewardPotential, p.RiskReward, p.Confidence,
		p.UnrealizedPnL, p.UnrealizedPnLPct, p.OpenedAt, p.LastUpdated, p.EntrySignalID,
	)
	return err
}

// SaveClosedPosition records the immutable closed record and flips the
// originating position row to closed, in one transaction.
func (s *Store) SaveClosedPosition(cp position.ClosedPosition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveClosedPosition(tx, cp); err != nil {
		return err
	}
	return tx.Commit()
}

func saveClosedPosition(e execer, cp position.ClosedPosition) error {
	if _, err := e.Exec(`
		INSERT OR REPLACE INTO closed_positions
		(position_id, session_id, symbol, side, quantity, entry_price, exit_price,
		 realized_pnl, realized_pnl_pct, opened_at, closed_at, holding_hours,
		 exit_reason, exit_signal_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, cp.Symbol, string(cp.Side), cp.Quantity,
		cp.EntryPrice, cp.ExitPrice, cp.RealizedPnL, cp.RealizedPnLPct,
		cp.OpenedAt, cp.ClosedAt, cp.HoldingHours, string(cp.ExitReason), cp.ExitSignalID,
	); err != nil {
		return err
	}
	_, err := e.Exec(`UPDATE positions SET status = 'closed' WHERE position_id = ?`, cp.ID)
	return err
}

// SaveMutation writes one ledger mutation — closed records, touched open
// positions, the session row, and new trade events — in a single
// transaction. A failure anywhere rolls the whole write back, so the
// durable store observes either the pre-mutation or post-mutation state,
// never a mix.
func (s *Store) SaveMutation(cfg *config.Session, touched []*position.Position, closed []position.ClosedPosition, events []position.TradeEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, cp := range closed {
		if err := saveClosedPosition(tx, cp); err != nil {
			return fmt.Errorf("save closed position %s: %w", cp.Symbol, err)
		}
	}
	for _, p := range touched {
		if err := savePosition(tx, p); err != nil {
			return fmt.Errorf("save position %s: %w", p.Symbol, err)
		}
	}
	if err := saveSession(tx, cfg); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	for _, ev := range events {
		if err := appendTradeEvent(tx, ev); err != nil {
			return fmt.Errorf("append trade event: %w", err)
		}
	}
	return tx.Commit()
}

// SaveSnapshot stores a portfolio snapshot. The (session, timestamp) pair is
// unique; replaying the same snapshot is a no-op overwrite.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO portfolio_snapshots
		(session_id, timestamp, total_capital, available_capital, unrealized_pnl,
		 realized_pnl, total_pnl, total_return_pct, snapshot_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, snap.Timestamp, snap.TotalCapital, snap.AvailableCapital,
		snap.UnrealizedPnL, snap.RealizedPnL, snap.TotalPnL, snap.TotalReturnPct,
		string(blob),
	)
	return err
}

// AppendTradeEvent appends to the audit log. Event ids are ULIDs, so
// replaying an event on retry overwrites the identical row.
func (s *Store) AppendTradeEvent(ev position.TradeEvent) error {
	return appendTradeEvent(s.db, ev)
}

func appendTradeEvent(e execer, ev position.TradeEvent) error {
	_, err := e.Exec(`
		INSERT OR REPLACE INTO trade_events
		(event_id, session_id, position_id, timestamp, action, symbol, side, quantity, price, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, ev.PositionID, ev.Time, string(ev.Action),
		ev.Symbol, string(ev.Side), ev.Quantity, ev.Price, ev.PnL,
	)
	return err
}
