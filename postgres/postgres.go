// Package postgres implements the x402.Ledger interface backed by
// PostgreSQL. The unique constraint on the nonce column gives TryConsume
// its linearizable check-and-set semantics, so multiple gate processes can
// share one ledger safely.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	x402 "github.com/itsA-D/Bindu"
)

// Compile-time check that Ledger implements x402.Ledger.
var _ x402.Ledger = (*Ledger)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS consumed_nonces (
	nonce       TEXT PRIMARY KEY,
	invoice_id  TEXT NOT NULL,
	consumed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS consumed_nonces_invoice_id_idx
	ON consumed_nonces (invoice_id);
`

// Ledger is a nonce ledger backed by a PostgreSQL table.
type Ledger struct {
	db *sql.DB
}

// Open connects to the PostgreSQL database at the given URL, configures the
// connection pool, and creates the ledger schema if it does not exist.
func Open(databaseURL string) (*Ledger, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// NewWithDB wraps an existing database handle. The caller owns the handle's
// lifecycle and schema.
func NewWithDB(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// TryConsume implements x402.Ledger. The insert is atomic at the database:
// ON CONFLICT DO NOTHING inserts zero rows when the nonce already exists,
// which reports as ErrAlreadyConsumed without mutating anything.
func (l *Ledger) TryConsume(ctx context.Context, nonce x402.Nonce, invoiceID string) error {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO consumed_nonces (nonce, invoice_id, consumed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (nonce) DO NOTHING`,
		nonce.Hex(), invoiceID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	if rows == 0 {
		return x402.NewGateError(x402.CodeReplayDetected,
			"nonce "+nonce.Hex(), x402.ErrAlreadyConsumed).
			WithDetails("invoiceId", invoiceID)
	}
	return nil
}

// ByInvoice implements x402.Ledger.
func (l *Ledger) ByInvoice(ctx context.Context, invoiceID string) ([]x402.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT nonce, invoice_id, consumed_at
		 FROM consumed_nonces
		 WHERE invoice_id = $1
		 ORDER BY consumed_at`,
		invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []x402.LedgerEntry
	for rows.Next() {
		var (
			nonceHex   string
			id         string
			consumedAt time.Time
		)
		if err := rows.Scan(&nonceHex, &id, &consumedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		nonce, err := x402.NonceFromHex(nonceHex)
		if err != nil {
			return nil, fmt.Errorf("corrupt nonce in ledger: %w", err)
		}
		entries = append(entries, x402.LedgerEntry{
			Nonce:      nonce,
			InvoiceID:  id,
			ConsumedAt: consumedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
