package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// Journal persists every order attempt to SQLite for audit and the /trades endpoint.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite trade log.
func NewJournal(dbPath string) (*Journal, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trade_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp   TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		type        TEXT NOT NULL,
		side        TEXT NOT NULL,
		intent      TEXT NOT NULL,
		quantity    REAL NOT NULL,
		price       REAL,
		status      TEXT NOT NULL,
		reason      TEXT NOT NULL,
		message     TEXT,
		order_id    TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trade_logs_timestamp ON trade_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_trade_logs_status ON trade_logs(status);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("trade journal opened", "component", "journal", "path", dbPath)
	return &Journal{db: db}, nil
}

// LogTradeAttempt persists one attempt.
func (j *Journal) LogTradeAttempt(ctx context.Context, a model.TradeAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var price sql.NullFloat64
	if a.Price != nil {
		price = sql.NullFloat64{Float64: *a.Price, Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trade_logs (timestamp, symbol, type, side, intent, quantity, price, status, reason, message, order_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Timestamp.UTC().Format(time.RFC3339Nano),
		a.Symbol,
		string(a.Type),
		string(a.Side),
		string(a.Intent),
		a.Quantity,
		price,
		string(a.Status),
		string(a.Reason),
		a.Message,
		a.OrderID,
	)
	if err != nil {
		return fmt.Errorf("insert trade log: %w", err)
	}
	return nil
}

// RecentTrades returns the last limit attempts, newest first.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]model.TradeAttempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, timestamp, symbol, type, side, intent, quantity, price, status, reason, message, order_id
		 FROM trade_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]model.TradeAttempt, 0, limit)
	for rows.Next() {
		var (
			a                                  model.TradeAttempt
			ts, typ, side, intent, status, rsn string
			price                              sql.NullFloat64
			msg, oid                           sql.NullString
		)
		if err := rows.Scan(&a.ID, &ts, &a.Symbol, &typ, &side, &intent, &a.Quantity, &price,
			&status, &rsn, &msg, &oid); err != nil {
			return nil, err
		}
		a.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		a.Type = model.OrderType(typ)
		a.Side = model.Side(side)
		a.Intent = model.TradeIntent(intent)
		a.Status = model.OrderStatus(status)
		a.Reason = model.ReasonCode(rsn)
		a.Message = msg.String
		a.OrderID = oid.String
		if price.Valid {
			p := price.Float64
			a.Price = &p
		}
		trades = append(trades, a)
	}
	return trades, rows.Err()
}

// Ping checks the database handle.
func (j *Journal) Ping(ctx context.Context) error { return j.db.PingContext(ctx) }

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
