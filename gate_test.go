package x402_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	x402 "github.com/itsA-D/Bindu"
	"github.com/itsA-D/Bindu/schemes/evm"
)

// testPrivateKey is the Foundry/Anvil first default account private key.
// This is a well-known test key - NEVER use in production.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// fakeClock drives gate time deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func usdcPricing(t *testing.T) x402.Pricing {
	t.Helper()
	return x402.Pricing{
		Amount:    decimal.RequireFromString("0.01"),
		Asset:     "USDC",
		Recipient: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	}
}

type gateFixture struct {
	gate   *x402.Gate
	ledger *x402.MemoryLedger
	clock  *fakeClock
	signer *evm.Signer
	events []x402.Event
	mu     sync.Mutex
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	f := &gateFixture{
		ledger: x402.NewMemoryLedger(),
		clock:  newFakeClock(),
	}

	signer, err := evm.NewSigner(testPrivateKey)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	f.signer = signer

	cfg := x402.DefaultConfig.WithTTL(300 * time.Second)
	gate, err := x402.NewGate(cfg, f.ledger, x402.NewVerifier(evm.New()),
		x402.WithClock(f.clock.Now),
		x402.WithEventCallback(func(ev x402.Event) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, ev)
		}),
	)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}
	f.gate = gate
	return f
}

// challenge runs the no-proof path and returns the issued invoice.
func (f *gateFixture) challenge(t *testing.T, fingerprint string) x402.Invoice {
	t.Helper()
	out, err := f.gate.ChallengeOrVerify(context.Background(), fingerprint, nil, usdcPricing(t))
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	if out.Kind != x402.OutcomeChallenge {
		t.Fatalf("Expected challenge outcome, got %v", out.Kind)
	}
	if out.Invoice == nil {
		t.Fatal("Expected challenge to carry an invoice")
	}
	return *out.Invoice
}

func (f *gateFixture) submit(t *testing.T, fingerprint string, proof *x402.PaymentProof) x402.Outcome {
	t.Helper()
	out, err := f.gate.ChallengeOrVerify(context.Background(), fingerprint, proof, usdcPricing(t))
	if err != nil {
		t.Fatalf("Submission failed: %v", err)
	}
	return out
}

func TestGateChallengeWithoutProof(t *testing.T) {
	f := newGateFixture(t)

	inv := f.challenge(t, "req-1")
	if got := inv.Amount.String(); got != "0.01" {
		t.Errorf("Expected amount 0.01, got %s", got)
	}
	if inv.Asset != "USDC" {
		t.Errorf("Expected asset USDC, got %s", inv.Asset)
	}
	if got, want := inv.ExpiresAt.Sub(inv.IssuedAt), 300*time.Second; got != want {
		t.Errorf("Expected ttl %v, got %v", want, got)
	}

	// a resubmission without proof reuses the open challenge
	again := f.challenge(t, "req-1")
	if again.ID != inv.ID {
		t.Errorf("Expected same invoice %s on repeat challenge, got %s", inv.ID, again.ID)
	}

	// a different request gets its own invoice and nonce
	other := f.challenge(t, "req-2")
	if other.ID == inv.ID {
		t.Error("Expected distinct invoices for distinct fingerprints")
	}
	if other.Nonce == inv.Nonce {
		t.Error("Expected distinct nonces for distinct invoices")
	}
}

func TestGateGrantAndAlreadyFulfilled(t *testing.T) {
	f := newGateFixture(t)
	inv := f.challenge(t, "req-1")

	f.clock.Advance(10 * time.Second)
	proof, err := f.signer.Prove(inv)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}

	out := f.submit(t, "req-1", proof)
	if out.Kind != x402.OutcomeGranted {
		t.Fatalf("Expected granted, got %v (%v)", out.Kind, out.Err)
	}

	// the identical proof must never release twice
	again := f.submit(t, "req-1", proof)
	if again.Kind != x402.OutcomeDenied {
		t.Fatalf("Expected denial on resubmission, got %v", again.Kind)
	}
	if again.Reason != x402.CodeAlreadyFulfilled {
		t.Errorf("Expected %s, got %s", x402.CodeAlreadyFulfilled, again.Reason)
	}
	if !errors.Is(again.Err, x402.ErrAlreadyFulfilled) {
		t.Errorf("Expected ErrAlreadyFulfilled, got %v", again.Err)
	}

	if f.ledger.Len() != 1 {
		t.Errorf("Expected exactly 1 consumed nonce, got %d", f.ledger.Len())
	}
}

func TestGateInvoiceMismatch(t *testing.T) {
	f := newGateFixture(t)
	f.challenge(t, "req-1")

	// correctly signed proof, but for a different invoice
	other, err := x402.Issue(usdcPricing(t), 300*time.Second)
	if err != nil {
		t.Fatalf("Failed to issue other invoice: %v", err)
	}
	proof, err := f.signer.Prove(other)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}

	out := f.submit(t, "req-1", proof)
	if out.Kind != x402.OutcomeDenied {
		t.Fatalf("Expected denial, got %v", out.Kind)
	}
	if out.Reason != x402.CodeInvoiceMismatch {
		t.Errorf("Expected %s, got %s", x402.CodeInvoiceMismatch, out.Reason)
	}

	// the challenge survives a mismatched proof
	inv := f.challenge(t, "req-1")
	good, err := f.signer.Prove(inv)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}
	if got := f.submit(t, "req-1", good); got.Kind != x402.OutcomeGranted {
		t.Errorf("Expected grant after mismatch, got %v (%v)", got.Kind, got.Err)
	}
}

func TestGateInvoiceExpired(t *testing.T) {
	f := newGateFixture(t)
	inv := f.challenge(t, "req-1")

	proof, err := f.signer.Prove(inv)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}

	f.clock.Advance(301 * time.Second)
	out := f.submit(t, "req-1", proof)
	if out.Kind != x402.OutcomeDenied {
		t.Fatalf("Expected denial, got %v", out.Kind)
	}
	if out.Reason != x402.CodeInvoiceExpired {
		t.Errorf("Expected %s, got %s", x402.CodeInvoiceExpired, out.Reason)
	}
	if f.ledger.Len() != 0 {
		t.Errorf("Expected no consumed nonces after expiry, got %d", f.ledger.Len())
	}

	// the old invoice id is gone for good; the caller gets a fresh one
	retry := f.submit(t, "req-1", proof)
	if retry.Reason != x402.CodeUnknownInvoice {
		t.Errorf("Expected %s on terminal session, got %s", x402.CodeUnknownInvoice, retry.Reason)
	}
	fresh := f.challenge(t, "req-1")
	if fresh.ID == inv.ID {
		t.Error("Expected a fresh invoice after expiry")
	}
}

func TestGateBadSignatureDoesNotConsume(t *testing.T) {
	f := newGateFixture(t)
	inv := f.challenge(t, "req-1")

	proof, err := f.signer.Prove(inv)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}
	proof.Signature[10] ^= 0xff

	out := f.submit(t, "req-1", proof)
	if out.Reason != x402.CodeBadSignature {
		t.Errorf("Expected %s, got %s", x402.CodeBadSignature, out.Reason)
	}
	if f.ledger.Len() != 0 {
		t.Errorf("Expected untouched ledger after bad signature, got %d entries", f.ledger.Len())
	}
}

func TestGateUnderpayment(t *testing.T) {
	f := newGateFixture(t)
	inv := f.challenge(t, "req-1")

	proof, err := f.signer.ProveAmount(inv, decimal.RequireFromString("0.005"))
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}

	out := f.submit(t, "req-1", proof)
	if out.Reason != x402.CodeInsufficientPayment {
		t.Errorf("Expected %s, got %s", x402.CodeInsufficientPayment, out.Reason)
	}
	if f.ledger.Len() != 0 {
		t.Errorf("Expected untouched ledger after underpayment, got %d entries", f.ledger.Len())
	}
}

func TestGateUnknownInvoice(t *testing.T) {
	f := newGateFixture(t)

	other, err := x402.Issue(usdcPricing(t), 300*time.Second)
	if err != nil {
		t.Fatalf("Failed to issue invoice: %v", err)
	}
	proof, err := f.signer.Prove(other)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}

	// no challenge exists for this fingerprint at all
	out := f.submit(t, "req-1", proof)
	if out.Reason != x402.CodeUnknownInvoice {
		t.Errorf("Expected %s, got %s", x402.CodeUnknownInvoice, out.Reason)
	}
}

func TestGateReplayDetected(t *testing.T) {
	f := newGateFixture(t)
	inv := f.challenge(t, "req-1")

	// consume the nonce out from under the session, as a racing process
	// sharing the ledger would
	if err := f.ledger.TryConsume(context.Background(), inv.Nonce, inv.ID); err != nil {
		t.Fatalf("Failed to pre-consume nonce: %v", err)
	}

	proof, err := f.signer.Prove(inv)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}

	out := f.submit(t, "req-1", proof)
	if out.Reason != x402.CodeReplayDetected {
		t.Errorf("Expected %s, got %s", x402.CodeReplayDetected, out.Reason)
	}
	if !errors.Is(out.Err, x402.ErrReplayDetected) {
		t.Errorf("Expected ErrReplayDetected, got %v", out.Err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	replayEvents := 0
	for _, ev := range f.events {
		if ev.Type == x402.EventDeny && ev.Replay {
			replayEvents++
		}
	}
	if replayEvents != 1 {
		t.Errorf("Expected 1 replay event, got %d", replayEvents)
	}
}

func TestGateConcurrentRedemption(t *testing.T) {
	const racers = 16

	f := newGateFixture(t)
	inv := f.challenge(t, "req-1")
	proof, err := f.signer.Prove(inv)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}

	start := make(chan struct{})
	outcomes := make(chan x402.Outcome, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := f.gate.ChallengeOrVerify(context.Background(), "req-1", proof, usdcPricing(t))
			if err != nil {
				t.Errorf("Submission failed: %v", err)
				return
			}
			outcomes <- out
		}()
	}
	close(start)
	wg.Wait()
	close(outcomes)

	granted := 0
	for out := range outcomes {
		switch out.Kind {
		case x402.OutcomeGranted:
			granted++
		case x402.OutcomeDenied:
			if out.Reason != x402.CodeReplayDetected && out.Reason != x402.CodeAlreadyFulfilled {
				t.Errorf("Unexpected denial reason %s", out.Reason)
			}
		default:
			t.Errorf("Unexpected outcome %v", out.Kind)
		}
	}

	if granted != 1 {
		t.Errorf("Expected exactly 1 grant, got %d", granted)
	}
	if f.ledger.Len() != 1 {
		t.Errorf("Expected exactly 1 consumed nonce, got %d", f.ledger.Len())
	}
}

func TestGateInvalidPricing(t *testing.T) {
	f := newGateFixture(t)

	out, err := f.gate.ChallengeOrVerify(context.Background(), "req-1", nil, x402.Pricing{
		Amount: decimal.Zero, Asset: "USDC", Recipient: "0xabc",
	})
	if err != nil {
		t.Fatalf("Expected denial outcome, got error %v", err)
	}
	if out.Kind != x402.OutcomeDenied {
		t.Fatalf("Expected denial, got %v", out.Kind)
	}
	if out.Reason != x402.CodeInvalidPricing {
		t.Errorf("Expected %s, got %s", x402.CodeInvalidPricing, out.Reason)
	}
}

func TestGateCancel(t *testing.T) {
	f := newGateFixture(t)
	inv := f.challenge(t, "req-1")

	if !f.gate.Cancel(inv.ID) {
		t.Fatal("Expected cancel to find the session")
	}
	if f.gate.Cancel(inv.ID) {
		t.Error("Expected second cancel to report no live session")
	}

	proof, err := f.signer.Prove(inv)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}
	out := f.submit(t, "req-1", proof)
	if out.Reason != x402.CodeUnknownInvoice {
		t.Errorf("Expected %s after cancel, got %s", x402.CodeUnknownInvoice, out.Reason)
	}
}

func TestGateSweep(t *testing.T) {
	f := newGateFixture(t)
	f.challenge(t, "req-1")
	f.challenge(t, "req-2")

	if n := f.gate.Sweep(f.clock.Now()); n != 0 {
		t.Errorf("Expected nothing to sweep yet, got %d", n)
	}

	f.clock.Advance(301 * time.Second)
	if n := f.gate.Sweep(f.clock.Now()); n != 2 {
		t.Errorf("Expected 2 swept sessions, got %d", n)
	}
	if f.gate.Sessions() != 0 {
		t.Errorf("Expected empty registry, got %d sessions", f.gate.Sessions())
	}
}

func TestGateSessionCap(t *testing.T) {
	f := newGateFixture(t)

	cfg := x402.DefaultConfig.WithTTL(300 * time.Second).WithMaxSessions(1)
	gate, err := x402.NewGate(cfg, f.ledger, x402.NewVerifier(evm.New()),
		x402.WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	if _, err := gate.ChallengeOrVerify(context.Background(), "req-1", nil, usdcPricing(t)); err != nil {
		t.Fatalf("First challenge failed: %v", err)
	}
	_, err = gate.ChallengeOrVerify(context.Background(), "req-2", nil, usdcPricing(t))
	if !errors.Is(err, x402.ErrTooManySessions) {
		t.Errorf("Expected ErrTooManySessions, got %v", err)
	}

	// expired sessions are reclaimed inline
	f.clock.Advance(301 * time.Second)
	if _, err := gate.ChallengeOrVerify(context.Background(), "req-2", nil, usdcPricing(t)); err != nil {
		t.Errorf("Expected challenge after inline sweep, got %v", err)
	}
}

func TestGateEvents(t *testing.T) {
	f := newGateFixture(t)
	inv := f.challenge(t, "req-1")

	proof, err := f.signer.Prove(inv)
	if err != nil {
		t.Fatalf("Failed to build proof: %v", err)
	}
	f.submit(t, "req-1", proof)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(f.events))
	}
	if f.events[0].Type != x402.EventChallenge {
		t.Errorf("Expected challenge event first, got %s", f.events[0].Type)
	}
	if f.events[1].Type != x402.EventGrant {
		t.Errorf("Expected grant event second, got %s", f.events[1].Type)
	}
	if f.events[1].InvoiceID != inv.ID {
		t.Errorf("Expected event invoice %s, got %s", inv.ID, f.events[1].InvoiceID)
	}
	if f.events[1].Payer != f.signer.Address() {
		t.Errorf("Expected event payer %s, got %s", f.signer.Address(), f.events[1].Payer)
	}
}
