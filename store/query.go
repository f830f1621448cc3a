package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/position"
)

// GetSession loads a session config by id. Returns (nil, nil) when the
// session does not exist.
func (s *Store) GetSession(sessionID string) (*config.Session, error) {
	var blob string
	err := s.db.QueryRow(`
		SELECT config_json FROM trading_sessions WHERE session_id = ?`,
		sessionID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session %q: %w", sessionID, err)
	}

	cfg := &config.Session{}
	if err := json.Unmarshal([]byte(blob), cfg); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", sessionID, err)
	}
	return cfg, nil
}

// ListOpenPositions loads the session's open positions, ordered by symbol.
func (s *Store) ListOpenPositions(sessionID string) ([]*position.Position, error) {
	rows, err := s.db.Query(`
		SELECT position_id, session_id, symbol, side, quantity, base_quantity,
		       notional_value, leverage, entry_price, current_price, profit_target,
		       stop_loss_price, ladder_json, invalidation_json, max_hold_seconds,
		       risk_amount, reward_potential, risk_reward, confidence,
		       unrealized_pnl, unrealized_pnl_pct, opened_at, last_updated, entry_signal_id
		FROM positions
		WHERE session_id = ? AND status = 'open'
		ORDER BY symbol ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*position.Position
	for rows.Next() {
		var (
			p              position.Position
			side           string
			baseQty        float64
			ladder, inval  string
			maxHoldSeconds int64
			signalID       sql.NullString
		)
		if err := rows.Scan(
			&p.ID, &p.SessionID, &p.Symbol, &side, &p.Quantity, &baseQty,
			&p.NotionalValue, &p.Leverage, &p.EntryPrice, &p.CurrentPrice,
			&p.ProfitTarget, &p.StopLoss, &ladder, &inval, &maxHoldSeconds,
			&p.RiskAmount, &p.RewardPotential, &p.RiskReward, &p.Confidence,
			&p.UnrealizedPnL, &p.UnrealizedPnLPct, &p.OpenedAt, &p.LastUpdated, &signalID,
		); err != nil {
			return nil, err
		}
		p.Side = position.Side(side)
		p.MaxHold = time.Duration(maxHoldSeconds) * time.Second
		p.EntrySignalID = signalID.String
		p.SetBaseQuantity(baseQty)
		if err := json.Unmarshal([]byte(ladder), &p.Ladder); err != nil {
			return nil, fmt.Errorf("decode ladder for %s: %w", p.ID, err)
		}
		if err := json.Unmarshal([]byte(inval), &p.Invalidation); err != nil {
			return nil, fmt.Errorf("decode invalidation for %s: %w", p.ID, err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListClosedPositions returns closed positions for a session, oldest first.
func (s *Store) ListClosedPositions(sessionID string) ([]position.ClosedPosition, error) {
	rows, err := s.db.Query(`
		SELECT position_id, session_id, symbol, side, quantity, entry_price,
		       exit_price, realized_pnl, realized_pnl_pct, opened_at, closed_at,
		       holding_hours, exit_reason, exit_signal_id
		FROM closed_positions
		WHERE session_id = ?
		ORDER BY closed_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []position.ClosedPosition
	for rows.Next() {
		var (
			cp           position.ClosedPosition
			side, reason string
			signalID     sql.NullString
		)
		if err := rows.Scan(
			&cp.ID, &cp.SessionID, &cp.Symbol, &side, &cp.Quantity,
			&cp.EntryPrice, &cp.ExitPrice, &cp.RealizedPnL, &cp.RealizedPnLPct,
			&cp.OpenedAt, &cp.ClosedAt, &cp.HoldingHours, &reason, &signalID,
		); err != nil {
			return nil, err
		}
		cp.Side = position.Side(side)
		cp.ExitReason = position.ExitReason(reason)
		cp.ExitSignalID = signalID.String
		out = append(out, cp)
	}
	return out, rows.Err()
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *Store) ListSnapshots(sessionID string, limit int) ([]Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT snapshot_json FROM portfolio_snapshots
		WHERE session_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(blob), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ListTradeEvents returns the session's audit log in chronological order.
func (s *Store) ListTradeEvents(sessionID string) ([]position.TradeEvent, error) {
	rows, err := s.db.Query(`
		SELECT event_id, session_id, position_id, timestamp, action, symbol, side, quantity, price, pnl
		FROM trade_events
		WHERE session_id = ?
		ORDER BY timestamp ASC, event_id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []position.TradeEvent
	for rows.Next() {
		var (
			ev           position.TradeEvent
			action, side string
			pnl          sql.NullFloat64
		)
		if err := rows.Scan(
			&ev.ID, &ev.SessionID, &ev.PositionID, &ev.Time, &action,
			&ev.Symbol, &side, &ev.Quantity, &ev.Price, &pnl,
		); err != nil {
			return nil, err
		}
		ev.Action = position.Operation(action)
		ev.Side = position.Side(side)
		if pnl.Valid {
			v := pnl.Float64
			ev.PnL = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
