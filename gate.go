package x402

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Status is the lifecycle state of a gate session.
type Status int

const (
	// StatusUnchallenged is the implicit state of a request the gate has
	// not seen yet. Sessions are created directly into StatusChallenged.
	StatusUnchallenged Status = iota

	// StatusChallenged means an invoice was issued and awaits a proof.
	StatusChallenged

	// StatusVerifying means a proof is being checked.
	StatusVerifying

	// StatusPaid means the proof validated and the response was released.
	// Terminal and single-use.
	StatusPaid

	// StatusRejected means the proof was rejected. Terminal.
	StatusRejected

	// StatusExpired means the invoice expired before redemption. Terminal.
	StatusExpired
)

// String returns the status as a short label.
func (s Status) String() string {
	switch s {
	case StatusUnchallenged:
		return "unchallenged"
	case StatusChallenged:
		return "challenged"
	case StatusVerifying:
		return "verifying"
	case StatusPaid:
		return "paid"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status allows no further transitions.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusRejected || s == StatusExpired
}

// session is the per-request transient state behind one challenge. It is
// owned exclusively by the gate and never outlives the request-response
// exchange plus the invoice's validity window.
type session struct {
	fingerprint string
	status      Status
	invoice     Invoice
	createdAt   time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger used for gate decisions.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithEventCallback sets a callback invoked on every gate event.
func WithEventCallback(cb EventCallback) GateOption {
	return func(g *Gate) { g.onEvent = cb }
}

// WithClock overrides the gate's clock. Intended for tests.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// Gate is the access-control layer sequencing challenge issuance and proof
// redemption. It owns the registry of live sessions, keyed by invoice id
// with an index by request fingerprint; the registry is populated on
// challenge and cleared on expiry sweeps, never left to grow unbounded.
//
// Gate methods are safe for concurrent use. Exactly-one-release under
// concurrent redemption is guaranteed solely by the ledger's TryConsume
// atomicity, not by any lock held across verification.
type Gate struct {
	cfg      Config
	ledger   Ledger
	verifier *Verifier
	logger   *slog.Logger
	onEvent  EventCallback
	now      func() time.Time

	mu            sync.Mutex
	sessions      map[string]*session
	byFingerprint map[string]string
}

// NewGate creates a Gate with the given configuration, nonce ledger, and
// proof verifier.
func NewGate(cfg Config, ledger Ledger, verifier *Verifier, opts ...GateOption) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, errors.New("x402: gate requires a ledger")
	}
	if verifier == nil {
		return nil, errors.New("x402: gate requires a verifier")
	}

	g := &Gate{
		cfg:           cfg,
		ledger:        ledger,
		verifier:      verifier,
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
		sessions:      make(map[string]*session),
		byFingerprint: make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ChallengeOrVerify is the single entry point hosts invoke per request.
//
// With no proof attached it issues an Invoice and returns it as a challenge
// (OutcomeChallenge). With a proof attached it verifies the proof against
// the challenged invoice, consumes the nonce, and returns OutcomeGranted or
// OutcomeDenied.
//
// The returned error is non-nil only for infrastructure failures (ledger
// I/O); protocol failures are always expressed as an outcome.
func (g *Gate) ChallengeOrVerify(ctx context.Context, fingerprint string, proof *PaymentProof, pricing Pricing) (Outcome, error) {
	if proof == nil {
		return g.challenge(fingerprint, pricing)
	}
	return g.redeem(ctx, fingerprint, *proof)
}

func (g *Gate) challenge(fingerprint string, pricing Pricing) (Outcome, error) {
	now := g.now()

	if existing, ok := g.liveChallenge(fingerprint, now); ok {
		return Outcome{Kind: OutcomeChallenge, Invoice: &existing}, nil
	}

	inv, err := issueAt(pricing, g.cfg.TTL, now)
	if err != nil {
		var gerr *GateError
		if !errors.As(err, &gerr) {
			// nonce generation failed; crypto/rand is broken
			return Outcome{}, err
		}
		g.emit(Event{
			Type:        EventDeny,
			Timestamp:   now,
			Fingerprint: fingerprint,
			Reason:      gerr.Code,
			Err:         gerr,
		})
		return Outcome{Kind: OutcomeDenied, Reason: gerr.Code, Err: gerr}, nil
	}

	g.mu.Lock()
	// Lost a race issuing for the same fingerprint: hand out the winner's
	// invoice and drop ours. It never entered any ledger.
	if existing, ok := g.liveChallengeLocked(fingerprint, now); ok {
		g.mu.Unlock()
		return Outcome{Kind: OutcomeChallenge, Invoice: &existing}, nil
	}
	if g.cfg.MaxSessions > 0 && len(g.sessions) >= g.cfg.MaxSessions {
		g.sweepLocked(now)
		if len(g.sessions) >= g.cfg.MaxSessions {
			g.mu.Unlock()
			return Outcome{}, ErrTooManySessions
		}
	}
	g.sessions[inv.ID] = &session{
		fingerprint: fingerprint,
		status:      StatusChallenged,
		invoice:     inv,
		createdAt:   now,
	}
	g.byFingerprint[fingerprint] = inv.ID
	g.mu.Unlock()

	g.logger.Info("payment challenge issued",
		"invoiceId", inv.ID,
		"amount", inv.Amount.String(),
		"asset", inv.Asset,
		"expiresAt", inv.ExpiresAt)
	g.emit(Event{
		Type:        EventChallenge,
		Timestamp:   now,
		Fingerprint: fingerprint,
		InvoiceID:   inv.ID,
		Amount:      inv.Amount.String(),
		Asset:       inv.Asset,
	})
	return Outcome{Kind: OutcomeChallenge, Invoice: &inv}, nil
}

func (g *Gate) liveChallenge(fingerprint string, now time.Time) (Invoice, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.liveChallengeLocked(fingerprint, now)
}

func (g *Gate) liveChallengeLocked(fingerprint string, now time.Time) (Invoice, bool) {
	id, ok := g.byFingerprint[fingerprint]
	if !ok {
		return Invoice{}, false
	}
	s, ok := g.sessions[id]
	if !ok || s.status != StatusChallenged || s.invoice.Expired(now) {
		return Invoice{}, false
	}
	return s.invoice, true
}

func (g *Gate) redeem(ctx context.Context, fingerprint string, proof PaymentProof) (Outcome, error) {
	start := g.now()

	g.mu.Lock()
	s, ok := g.sessions[proof.InvoiceID]
	if !ok {
		// The proof names an invoice the gate never issued. If this
		// fingerprint still has a live challenge, verify against it so the
		// caller learns the proof is for the wrong invoice rather than an
		// unknown one; the challenge stays open.
		challenged, live := g.liveChallengeLocked(fingerprint, start)
		g.mu.Unlock()
		if live {
			verr := g.verifier.Verify(proof, challenged, start)
			if verr == nil {
				// Cannot happen: a valid proof carries the invoice id it
				// was signed over, and that id has no session.
				verr = NewGateError(CodeUnknownInvoice,
					"no active session for invoice "+proof.InvoiceID, ErrUnknownInvoice)
			}
			return g.deny(fingerprint, proof, &challenged, asGateError(verr), start), nil
		}
		gerr := NewGateError(CodeUnknownInvoice,
			"no active session for invoice "+proof.InvoiceID, ErrUnknownInvoice)
		return g.deny(fingerprint, proof, nil, gerr, start), nil
	}
	inv := s.invoice
	switch s.status {
	case StatusPaid:
		g.mu.Unlock()
		gerr := NewGateError(CodeAlreadyFulfilled,
			"invoice "+proof.InvoiceID+" was already redeemed", ErrAlreadyFulfilled)
		return g.deny(fingerprint, proof, &inv, gerr, start), nil
	case StatusRejected, StatusExpired:
		// Terminal sessions never come back; the caller must request a
		// fresh challenge and may never reuse the old invoice id.
		terminal := s.status
		g.mu.Unlock()
		gerr := NewGateError(CodeUnknownInvoice,
			"invoice "+proof.InvoiceID+" is in terminal state "+terminal.String(), ErrUnknownInvoice)
		return g.deny(fingerprint, proof, &inv, gerr, start), nil
	}
	s.status = StatusVerifying
	g.mu.Unlock()

	// Signature checking is the expensive step; it runs without any lock.
	if verr := g.verifier.Verify(proof, inv, start); verr != nil {
		final := StatusRejected
		if errors.Is(verr, ErrInvoiceExpired) {
			final = StatusExpired
		}
		g.settle(s, final)
		gerr := asGateError(verr)
		return g.deny(fingerprint, proof, &inv, gerr, start), nil
	}

	// Verify first, consume second: a malformed proof never burns a nonce.
	if cerr := g.ledger.TryConsume(ctx, inv.Nonce, inv.ID); cerr != nil {
		if errors.Is(cerr, ErrAlreadyConsumed) {
			// A concurrent redemption won the nonce, or this is an
			// attempted double-spend. Either way the nonce only ever
			// belonged to this invoice, so the invoice is spent; settling
			// paid keeps late resubmissions on the already-fulfilled path.
			g.settle(s, StatusPaid)
			gerr := NewGateError(CodeReplayDetected,
				"nonce for invoice "+inv.ID+" already consumed", ErrReplayDetected).
				WithDetails("invoiceId", inv.ID)
			return g.deny(fingerprint, proof, &inv, gerr, start), nil
		}
		// Ledger I/O failure. Put the session back so the caller can retry
		// with the same invoice.
		g.mu.Lock()
		if s.status == StatusVerifying {
			s.status = StatusChallenged
		}
		g.mu.Unlock()
		return Outcome{}, cerr
	}

	g.settle(s, StatusPaid)
	g.logger.Info("payment accepted",
		"invoiceId", inv.ID,
		"payer", proof.Payer,
		"scheme", proof.Scheme,
		"amount", proof.Amount.String())
	g.emit(Event{
		Type:        EventGrant,
		Timestamp:   g.now(),
		Fingerprint: fingerprint,
		InvoiceID:   inv.ID,
		Amount:      inv.Amount.String(),
		Asset:       inv.Asset,
		Payer:       proof.Payer,
		Scheme:      proof.Scheme,
		Duration:    g.now().Sub(start),
	})
	return Outcome{Kind: OutcomeGranted}, nil
}

// settle moves a session to a final status. A session that already reached
// StatusPaid stays paid: the ledger is authoritative and the winner of the
// nonce must not be clobbered by a losing racer.
func (g *Gate) settle(s *session, final Status) {
	g.mu.Lock()
	if s.status != StatusPaid {
		s.status = final
	}
	g.mu.Unlock()
}

func (g *Gate) deny(fingerprint string, proof PaymentProof, inv *Invoice, gerr *GateError, start time.Time) Outcome {
	ev := Event{
		Type:        EventDeny,
		Timestamp:   g.now(),
		Fingerprint: fingerprint,
		InvoiceID:   proof.InvoiceID,
		Payer:       proof.Payer,
		Scheme:      proof.Scheme,
		Reason:      gerr.Code,
		Replay:      gerr.Code == CodeReplayDetected,
		Err:         gerr,
		Duration:    g.now().Sub(start),
	}
	if inv != nil {
		ev.Amount = inv.Amount.String()
		ev.Asset = inv.Asset
	}

	if ev.Replay {
		g.logger.Warn("replay detected",
			"invoiceId", proof.InvoiceID,
			"payer", proof.Payer,
			"scheme", proof.Scheme)
	} else {
		g.logger.Info("payment denied",
			"invoiceId", proof.InvoiceID,
			"payer", proof.Payer,
			"reason", gerr.Code)
	}
	g.emit(ev)
	return Outcome{Kind: OutcomeDenied, Reason: gerr.Code, Err: gerr}
}

func (g *Gate) emit(ev Event) {
	if g.onEvent != nil {
		g.onEvent(ev)
	}
}

// asGateError wraps err in a GateError if it is not one already.
func asGateError(err error) *GateError {
	var gerr *GateError
	if errors.As(err, &gerr) {
		return gerr
	}
	return NewGateError(CodeFor(err), err.Error(), err)
}

// Cancel marks a pending session rejected before its invoice expires,
// freeing its bookkeeping early. Reports whether a non-terminal session was
// found. The nonce was never consumed, so nothing is written to the ledger.
func (g *Gate) Cancel(invoiceID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[invoiceID]
	if !ok || s.status.Terminal() {
		return false
	}
	s.status = StatusRejected
	return true
}

// Sweep removes sessions whose invoices expired before now and returns how
// many were removed. Sweeping is pure garbage collection: expiry is also
// evaluated at every verification attempt, so correctness never depends on
// it.
func (g *Gate) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sweepLocked(now)
}

func (g *Gate) sweepLocked(now time.Time) int {
	removed := 0
	for id, s := range g.sessions {
		if !s.invoice.Expired(now) {
			continue
		}
		delete(g.sessions, id)
		if g.byFingerprint[s.fingerprint] == id {
			delete(g.byFingerprint, s.fingerprint)
		}
		removed++
	}
	return removed
}

// Run sweeps expired sessions every Config.SweepInterval until the context
// is canceled. Optional; hosts that prefer their own scheduling can call
// Sweep directly.
func (g *Gate) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(g.now()); n > 0 {
				g.logger.Debug("swept expired sessions", "count", n)
			}
		}
	}
}

// Sessions returns the number of live sessions. Diagnostics only.
func (g *Gate) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}
