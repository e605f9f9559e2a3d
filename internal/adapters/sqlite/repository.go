package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeLedger and ports.DecisionEventStore
// using SQLite. Every mutation is its own committed statement, so the last
// acknowledged state survives a crash.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_pilot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode keeps readers unblocked while the single writer commits.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, the Go driver benefits from a single connection
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist. The partial unique
// index backs the one-open-record-per-symbol invariant at the storage level.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		size REAL NOT NULL,
		leverage INTEGER NOT NULL,
		take_profit REAL NOT NULL,
		stop_loss REAL NOT NULL,
		reason TEXT NULL,
		exit_price REAL DEFAULT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		pnl REAL DEFAULT NULL,
		exit_reason TEXT NULL,
		status TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_open_symbol ON trades (symbol) WHERE status = 'open';
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_entry_time ON trades (symbol, entry_time);

	CREATE TABLE IF NOT EXISTS decision_events (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		symbol TEXT NOT NULL,
		requested_side TEXT NULL,
		holding_side TEXT NULL,
		answer TEXT NOT NULL,
		reason TEXT NULL,
		executed INTEGER NOT NULL DEFAULT 0,
		entry_price REAL DEFAULT NULL,
		current_price REAL DEFAULT NULL,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decision_events_symbol_created ON decision_events (symbol, created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeLedger Implementation ---

// Create saves a new open record. An existing open record for the same
// symbol rejects the insert with ErrStateConflict, both here and at the
// unique index should a concurrent writer slip past the check.
func (r *Repository) Create(ctx context.Context, rec *domain.TradeRecord) error {
	existing, err := r.FindOpenBySymbol(ctx, rec.Symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("open record %s exists for symbol %s: %w", existing.ID, rec.Symbol, ports.ErrStateConflict)
	}

	const query = `
	INSERT INTO trades (id, symbol, side, entry_price, entry_time, size, leverage,
	                    take_profit, stop_loss, reason, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Symbol, rec.Side, rec.EntryPrice, rec.EntryTime, rec.Size, rec.Leverage,
		rec.TakeProfit, rec.StopLoss, rec.Reason, domain.StatusOpen)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("open record exists for symbol %s: %w", rec.Symbol, ports.ErrStateConflict)
		}
		return fmt.Errorf("failed to insert trade record for symbol %s: %w", rec.Symbol, err)
	}
	rec.Status = domain.StatusOpen
	r.logger.Debug(ctx, "Trade record created", map[string]interface{}{"tradeID": rec.ID, "symbol": rec.Symbol, "side": rec.Side})
	return nil
}

// FindOpenBySymbol retrieves the currently open record for a symbol, if any.
// More than one open row means the storage invariant was violated; that is
// logged loudly and the newest record is returned.
func (r *Repository) FindOpenBySymbol(ctx context.Context, symbol string) (*domain.TradeRecord, error) {
	const query = `
	SELECT id, symbol, side, entry_price, entry_time, size, leverage,
	       take_profit, stop_loss, COALESCE(reason, ''), COALESCE(exit_price, 0),
	       exit_time, COALESCE(pnl, 0), exit_reason, status
	FROM trades
	WHERE symbol = ? AND status = ?
	ORDER BY entry_time DESC`

	rows, err := r.db.QueryContext(ctx, query, symbol, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open record for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	records := make([]*domain.TradeRecord, 0, 1)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open record for symbol %s: %w", symbol, err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open records for symbol %s: %w", symbol, err)
	}

	switch len(records) {
	case 0:
		return nil, nil
	case 1:
		return records[0], nil
	default:
		r.logger.Warn(ctx, "Multiple open records found for symbol, data corruption suspected",
			map[string]interface{}{"symbol": symbol, "count": len(records), "returnedID": records[0].ID})
		return records[0], nil
	}
}

// CloseRecord transitions a record from open to closed. Closing an
// already-closed record is a no-op; closing an unknown ID is ErrNotFound.
func (r *Repository) CloseRecord(ctx context.Context, id string, exitPrice float64, exitTime time.Time, pnl float64, reason domain.CloseReason) error {
	const query = `
	UPDATE trades
	SET exit_price = ?, exit_time = ?, pnl = ?, exit_reason = ?, status = ?
	WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query,
		exitPrice, exitTime, pnl, reason, domain.StatusClosed, id, domain.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to close trade record %s: %w: %w", id, ports.ErrUpdateFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected closing record %s: %w", id, err)
	}
	if rowsAffected == 0 {
		var status string
		err := r.db.QueryRowContext(ctx, `SELECT status FROM trades WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("trade record %s not found for close: %w", id, ports.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check status of record %s: %w", id, err)
		}
		r.logger.Debug(ctx, "Trade record already closed, close is a no-op", map[string]interface{}{"tradeID": id})
		return nil
	}
	r.logger.Debug(ctx, "Trade record closed", map[string]interface{}{"tradeID": id, "exitPrice": exitPrice, "pnl": pnl, "reason": reason})
	return nil
}

// FindByID retrieves a record by its unique ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.TradeRecord, error) {
	const query = `
	SELECT id, symbol, side, entry_price, entry_time, size, leverage,
	       take_profit, stop_loss, COALESCE(reason, ''), COALESCE(exit_price, 0),
	       exit_time, COALESCE(pnl, 0), exit_reason, status
	FROM trades
	WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query record by ID %s: %w", id, err)
	}
	return rec, nil
}

// FindBySymbol retrieves the most recent records for a symbol, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeRecord, error) {
	const query = `
	SELECT id, symbol, side, entry_price, entry_time, size, leverage,
	       take_profit, stop_loss, COALESCE(reason, ''), COALESCE(exit_price, 0),
	       exit_time, COALESCE(pnl, 0), exit_reason, status
	FROM trades
	WHERE symbol = ? ORDER BY entry_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// FindAll retrieves all records, ordered by entry time descending.
func (r *Repository) FindAll(ctx context.Context) ([]*domain.TradeRecord, error) {
	const query = `
	SELECT id, symbol, side, entry_price, entry_time, size, leverage,
	       take_profit, stop_loss, COALESCE(reason, ''), COALESCE(exit_price, 0),
	       exit_time, COALESCE(pnl, 0), exit_reason, status
	FROM trades
	ORDER BY entry_time DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query all records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// GetTotalProfit calculates the sum of PnL over all closed records.
func (r *Repository) GetTotalProfit(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE status = ?`
	var total float64
	err := r.db.QueryRowContext(ctx, query, domain.StatusClosed).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate total profit: %w", err)
	}
	return total, nil
}

// --- DecisionEventStore Implementation ---

// RecordEvent appends one advisor consultation.
func (r *Repository) RecordEvent(ctx context.Context, ev *domain.DecisionEvent) error {
	const query = `
	INSERT INTO decision_events (id, event, symbol, requested_side, holding_side, answer,
	                             reason, executed, entry_price, current_price, response_time_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		ev.ID, ev.Event, ev.Symbol, string(ev.RequestedSide), string(ev.HoldingSide), ev.Answer,
		ev.Reason, ev.Executed, ev.EntryPrice, ev.CurrentPrice, ev.ResponseTime.Milliseconds(), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert decision event for symbol %s: %w", ev.Symbol, err)
	}
	r.logger.Debug(ctx, "Decision event recorded", map[string]interface{}{"eventID": ev.ID, "symbol": ev.Symbol, "answer": ev.Answer})
	return nil
}

// RecentEvents retrieves the most recent events, newest first.
func (r *Repository) RecentEvents(ctx context.Context, limit int) ([]*domain.DecisionEvent, error) {
	const query = `
	SELECT id, event, symbol, COALESCE(requested_side, ''), COALESCE(holding_side, ''), answer,
	       COALESCE(reason, ''), executed, COALESCE(entry_price, 0), COALESCE(current_price, 0),
	       response_time_ms, created_at
	FROM decision_events
	ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.DecisionEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision event: %w", err)
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision events: %w", err)
	}
	return events, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a domain.TradeRecord struct.
func scanRecord(s scanner) (*domain.TradeRecord, error) {
	rec := &domain.TradeRecord{}
	var side, status string
	var exitTime sql.NullTime
	var exitReason sql.NullString
	err := s.Scan(
		&rec.ID, &rec.Symbol, &side, &rec.EntryPrice, &rec.EntryTime, &rec.Size, &rec.Leverage,
		&rec.TakeProfit, &rec.StopLoss, &rec.Reason, &rec.ExitPrice,
		&exitTime, &rec.PnL, &exitReason, &status)
	if err != nil {
		return nil, err // sql.ErrNoRows is handled by the caller
	}
	rec.Side = domain.Side(side)
	rec.Status = domain.RecordStatus(status)
	if exitTime.Valid {
		rec.ExitTime = exitTime.Time
	}
	if exitReason.Valid {
		rec.ExitReason = domain.CloseReason(exitReason.String)
	}
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]*domain.TradeRecord, error) {
	records := make([]*domain.TradeRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade records: %w", err)
	}
	return records, nil
}

// scanEvent scans a row into a domain.DecisionEvent struct.
func scanEvent(s scanner) (*domain.DecisionEvent, error) {
	ev := &domain.DecisionEvent{}
	var requested, holding string
	var responseMs int64
	err := s.Scan(
		&ev.ID, &ev.Event, &ev.Symbol, &requested, &holding, &ev.Answer,
		&ev.Reason, &ev.Executed, &ev.EntryPrice, &ev.CurrentPrice,
		&responseMs, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	ev.RequestedSide = domain.Side(requested)
	ev.HoldingSide = domain.Side(holding)
	ev.ResponseTime = time.Duration(responseMs) * time.Millisecond
	return ev, nil
}
