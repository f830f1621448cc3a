package position

import "time"

// Side is the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign returns +1 for long, -1 for short. P&L for either side is
// sign * (exit - entry) * quantity.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// Operation is a ledger-mutating action type.
type Operation string

const (
	OpOpen   Operation = "open"
	OpAdd    Operation = "add"
	OpReduce Operation = "reduce"
	OpClose  Operation = "close"
	OpHold   Operation = "hold"
)

// ExitReason enumerates why a position (or a slice of it) was closed.
type ExitReason string

const (
	ReasonStopLoss          ExitReason = "stop_loss"
	ReasonTakeProfit        ExitReason = "take_profit"
	ReasonPartialTakeProfit ExitReason = "partial_take_profit"
	ReasonTimeStop          ExitReason = "time_stop"
	ReasonInvalidation      ExitReason = "invalidation_triggered"
	ReasonSignal            ExitReason = "signal"
	ReasonManual            ExitReason = "manual"
	ReasonLiquidation       ExitReason = "liquidation"
)

// Candle is one OHLCV bar, used for invalidation checks.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// InvalidationType selects the predicate an Invalidation evaluates.
type InvalidationType string

const (
	CloseBelow InvalidationType = "price_close_below"
	CloseAbove InvalidationType = "price_close_above"
)

// Invalidation is a structured early-exit condition, independent of the
// price-based stop: "N consecutive candle closes beyond level L". Timeframe
// records which candle feed the condition was authored against; the
// predicate itself only sees the candles it is handed, so the caller is
// responsible for passing bars of that timeframe.
type Invalidation struct {
	Description  string           `json:"description"`
	Type         InvalidationType `json:"condition_type"`
	TriggerPrice float64          `json:"trigger_price"`
	Timeframe    string           `json:"timeframe"`
	CandleCloses int              `json:"candle_closes"`
}

// Triggered reports whether the condition holds over the most recent
// CandleCloses bars. Too few bars means not triggered.
func (iv Invalidation) Triggered(recent []Candle) bool {
	n := iv.CandleCloses
	if n <= 0 {
		n = 1
	}
	if iv.TriggerPrice <= 0 || len(recent) < n {
		return false
	}

	tail := recent[len(recent)-n:]
	switch iv.Type {
	case CloseBelow:
		for _, c := range tail {
			if c.Close >= iv.TriggerPrice {
				return false
			}
		}
		return true
	case CloseAbove:
		for _, c := range tail {
			if c.Close <= iv.TriggerPrice {
				return false
			}
		}
		return true
	}
	return false
}

// TakeProfitLevel is one rung of a partial take-profit ladder. Fraction is
// relative to the position's base quantity (quantity at open, grown by adds).
// Executed levels are skipped on later sweeps.
type TakeProfitLevel struct {
	Price      float64 `json:"price"`
	Fraction   float64 `json:"fraction"`
	RiskReward float64 `json:"risk_reward"`
	Executed   bool    `json:"executed"`
}

// Position is an open holding in one symbol within one session.
type Position struct {
	ID        string `json:"position_id"`
	SessionID string `json:"session_id"`
	Symbol    string `json:"symbol"`
	Side      Side   `json:"side"`

	Quantity      float64 `json:"quantity"`
	NotionalValue float64 `json:"notional_value"`
	Leverage      int     `json:"leverage"`

	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`

	ProfitTarget float64           `json:"profit_target"`
	StopLoss     float64           `json:"stop_loss_price"`
	Ladder       []TakeProfitLevel `json:"take_profit_ladder,omitempty"`
	Invalidation Invalidation      `json:"invalidation_condition"`
	MaxHold      time.Duration     `json:"max_hold,omitempty"`

	RiskAmount      float64 `json:"risk_amount"`
	RewardPotential float64 `json:"reward_potential"`
	RiskReward      float64 `json:"risk_reward_ratio"`
	Confidence      float64 `json:"confidence"`

	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`

	// baseQuantity anchors ladder fractions; it only grows (open + adds).
	baseQuantity float64

	OpenedAt    time.Time `json:"opened_at"`
	LastUpdated time.Time `json:"last_updated"`

	EntrySignalID string `json:"entry_signal_id,omitempty"`
}

// Margin is the capital committed against the position: notional / leverage.
func (p *Position) Margin() float64 {
	if p.Leverage < 1 {
		return p.NotionalValue
	}
	return p.NotionalValue / float64(p.Leverage)
}

// MarkPrice records a new observed price and recomputes unrealized P&L.
func (p *Position) MarkPrice(price float64, now time.Time) {
	p.CurrentPrice = price
	p.UnrealizedPnL = p.Side.Sign() * (price - p.EntryPrice) * p.Quantity
	if p.NotionalValue > 0 {
		p.UnrealizedPnLPct = p.UnrealizedPnL / p.NotionalValue * 100
	} else {
		p.UnrealizedPnLPct = 0
	}
	p.LastUpdated = now
}

func (p *Position) stopHit(price float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Side == Long {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

func (p *Position) targetHit(price float64) bool {
	if p.ProfitTarget <= 0 {
		return false
	}
	if p.Side == Long {
		return price >= p.ProfitTarget
	}
	return price <= p.ProfitTarget
}

func (p *Position) ladderHit(level TakeProfitLevel, price float64) bool {
	if p.Side == Long {
		return price >= level.Price
	}
	return price <= level.Price
}

// clone deep-copies the position, including the ladder.
func (p *Position) clone() *Position {
	cp := *p
	cp.Ladder = append([]TakeProfitLevel(nil), p.Ladder...)
	return &cp
}

// BaseQuantity reports the ladder anchor quantity. Exposed for persistence.
func (p *Position) BaseQuantity() float64 { return p.baseQuantity }

// SetBaseQuantity restores the ladder anchor when rebuilding from storage.
func (p *Position) SetBaseQuantity(q float64) { p.baseQuantity = q }

// ClosedPosition is the immutable record produced when a position reaches
// zero quantity. It is created exactly once and never mutated.
type ClosedPosition struct {
	ID        string `json:"position_id"`
	SessionID string `json:"session_id"`
	Symbol    string `json:"symbol"`
	Side      Side   `json:"side"`

	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`

	RealizedPnL    float64 `json:"realized_pnl"`
	RealizedPnLPct float64 `json:"realized_pnl_pct"`

	OpenedAt     time.Time `json:"opened_at"`
	ClosedAt     time.Time `json:"closed_at"`
	HoldingHours float64   `json:"holding_hours"`

	ExitReason   ExitReason `json:"exit_reason"`
	ExitSignalID string     `json:"exit_signal_id,omitempty"`
}

// TradeEvent is one entry of the append-only audit log. Every ledger
// mutation produces one.
type TradeEvent struct {
	ID         string    `json:"event_id"`
	SessionID  string    `json:"session_id"`
	PositionID string    `json:"position_id"`
	Time       time.Time `json:"time"`
	Action     Operation `json:"action"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	PnL        *float64  `json:"pnl,omitempty"`
}
