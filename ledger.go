package x402

import (
	"context"
	"sync"
	"time"
)

// LedgerEntry records one consumed nonce. Once written it is immutable.
type LedgerEntry struct {
	// Nonce is the consumed nonce.
	Nonce Nonce

	// InvoiceID is the invoice the nonce was bound to.
	InvoiceID string

	// ConsumedAt is when the nonce was consumed.
	ConsumedAt time.Time
}

// Ledger is the monotonically-growing set of consumed nonces. TryConsume is
// the single atomic operation in the whole core: it must be linearizable
// across concurrent callers, because it is the only defense against two
// requests racing to redeem the same invoice.
type Ledger interface {
	// TryConsume atomically records the nonce as consumed for the given
	// invoice. If the nonce is already present it returns an error wrapping
	// ErrAlreadyConsumed and makes no change. There is no un-consume: a
	// rejected proof whose nonce was never consumed simply never enters the
	// ledger.
	TryConsume(ctx context.Context, nonce Nonce, invoiceID string) error

	// ByInvoice returns the entries recorded for an invoice, for
	// diagnostics. Nonces are unique per invoice, so the result has at most
	// one entry under normal operation.
	ByInvoice(ctx context.Context, invoiceID string) ([]LedgerEntry, error)
}

// MemoryLedger is a mutex-protected in-process Ledger. Suitable for
// single-process hosts; multi-process deployments want the postgres
// implementation, which gets the same atomicity from a unique constraint.
type MemoryLedger struct {
	mu        sync.Mutex
	entries   map[Nonce]LedgerEntry
	byInvoice map[string][]Nonce
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries:   make(map[Nonce]LedgerEntry),
		byInvoice: make(map[string][]Nonce),
	}
}

// TryConsume implements Ledger with a mutex-protected check-and-set.
func (l *MemoryLedger) TryConsume(_ context.Context, nonce Nonce, invoiceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[nonce]; ok {
		return NewGateError(CodeReplayDetected, "nonce "+nonce.Hex(), ErrAlreadyConsumed).
			WithDetails("invoiceId", invoiceID)
	}

	l.entries[nonce] = LedgerEntry{
		Nonce:      nonce,
		InvoiceID:  invoiceID,
		ConsumedAt: time.Now().UTC(),
	}
	l.byInvoice[invoiceID] = append(l.byInvoice[invoiceID], nonce)
	return nil
}

// ByInvoice implements Ledger.
func (l *MemoryLedger) ByInvoice(_ context.Context, invoiceID string) ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	nonces := l.byInvoice[invoiceID]
	entries := make([]LedgerEntry, 0, len(nonces))
	for _, n := range nonces {
		entries = append(entries, l.entries[n])
	}
	return entries, nil
}

// Len returns the number of consumed nonces.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
