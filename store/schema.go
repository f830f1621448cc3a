package store

const schema = `
CREATE TABLE IF NOT EXISTS trading_sessions (
	session_id TEXT PRIMARY KEY,
	user_id TEXT,
	initial_capital REAL NOT NULL,
	current_capital REAL NOT NULL,
	config_json TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_updated DATETIME NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS positions (
	position_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	base_quantity REAL NOT NULL,
	notional_value REAL NOT NULL,
	leverage INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	current_price REAL NOT NULL,
	profit_target REAL NOT NULL,
	stop_loss_price REAL NOT NULL,
	ladder_json TEXT NOT NULL,
	invalidation_json TEXT NOT NULL,
	max_hold_seconds INTEGER NOT NULL DEFAULT 0,
	risk_amount REAL NOT NULL,
	reward_potential REAL NOT NULL,
	risk_reward REAL NOT NULL,
	confidence REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	unrealized_pnl_pct REAL NOT NULL,
	opened_at DATETIME NOT NULL,
	last_updated DATETIME NOT NULL,
	entry_signal_id TEXT,
	status TEXT NOT NULL DEFAULT 'open',
	FOREIGN KEY (session_id) REFERENCES trading_sessions(session_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_symbol
	ON positions(session_id, symbol) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);

CREATE TABLE IF NOT EXISTS closed_positions (
	position_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	realized_pnl_pct REAL NOT NULL,
	opened_at DATETIME NOT NULL,
	closed_at DATETIME NOT NULL,
	holding_hours REAL NOT NULL,
	exit_reason TEXT NOT NULL,
	exit_signal_id TEXT,
	FOREIGN KEY (session_id) REFERENCES trading_sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_closed_positions_session
	ON closed_positions(session_id, closed_at DESC);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	total_capital REAL NOT NULL,
	available_capital REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	total_pnl REAL NOT NULL,
	total_return_pct REAL NOT NULL,
	snapshot_json TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES trading_sessions(session_id),
	UNIQUE(session_id, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_session_time
	ON portfolio_snapshots(session_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS trade_events (
	event_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	position_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	action TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	pnl REAL,
	FOREIGN KEY (session_id) REFERENCES trading_sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_trade_events_session
	ON trade_events(session_id, timestamp);
`
