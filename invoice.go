package x402

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NonceSize is the size of an invoice nonce in bytes. 32 bytes of
// cryptographic randomness makes nonce collisions statistically impossible
// for the lifetime of any ledger.
const NonceSize = 32

// Nonce is a random single-use token bound to one invoice. Its presence in
// the Nonce Ledger is the sole replay-prevention signal.
type Nonce [NonceSize]byte

// NewNonce generates a fresh nonce from crypto/rand.
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return n, nil
}

// Hex returns the nonce as a 0x-prefixed hex string.
func (n Nonce) Hex() string {
	return "0x" + hex.EncodeToString(n[:])
}

// NonceFromHex parses a 0x-prefixed hex string into a Nonce.
func NonceFromHex(s string) (Nonce, error) {
	var n Nonce
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return n, fmt.Errorf("invalid nonce hex: %w", err)
	}
	if len(b) != NonceSize {
		return n, fmt.Errorf("invalid nonce length: %d bytes, want %d", len(b), NonceSize)
	}
	copy(n[:], b)
	return n, nil
}

// MarshalJSON encodes the nonce as a 0x-prefixed hex string.
func (n Nonce) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Hex())
}

// UnmarshalJSON decodes a 0x-prefixed hex string.
func (n *Nonce) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NonceFromHex(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Invoice is a server-issued, time-bounded payment demand. It is immutable
// after issuance; the gate holds it in the session registry and the caller
// receives a copy as the challenge.
type Invoice struct {
	// ID is an opaque unique identifier for the invoice.
	ID string `json:"invoiceId"`

	// Amount is the price in decimal units of Asset. Always positive.
	Amount decimal.Decimal `json:"amount"`

	// Asset is the token symbol or contract/mint identifier.
	Asset string `json:"asset"`

	// Recipient is the address the payment must be made to.
	Recipient string `json:"recipient"`

	// Nonce is the single-use token consumed when the invoice is redeemed.
	Nonce Nonce `json:"nonce"`

	// IssuedAt is when the invoice was created.
	IssuedAt time.Time `json:"issuedAt"`

	// ExpiresAt is when the invoice stops being redeemable.
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issue builds a fresh invoice for the given pricing, valid for ttl from
// now. It generates the nonce and invoice id; it does not write to any
// ledger. Nonces enter the ledger only at consumption.
func Issue(pricing Pricing, ttl time.Duration) (Invoice, error) {
	return issueAt(pricing, ttl, time.Now().UTC())
}

// issueAt is Issue with an injected clock, for the gate and for tests.
func issueAt(pricing Pricing, ttl time.Duration, now time.Time) (Invoice, error) {
	if pricing.Amount.Sign() <= 0 {
		return Invoice{}, NewGateError(CodeInvalidPricing,
			"amount must be positive, got "+pricing.Amount.String(), ErrInvalidPricing)
	}
	if pricing.Asset == "" {
		return Invoice{}, NewGateError(CodeInvalidPricing, "asset cannot be empty", ErrInvalidPricing)
	}
	if pricing.Recipient == "" {
		return Invoice{}, NewGateError(CodeInvalidPricing, "recipient cannot be empty", ErrInvalidPricing)
	}
	if ttl <= 0 {
		return Invoice{}, NewGateError(CodeInvalidPricing,
			fmt.Sprintf("ttl must be positive, got %v", ttl), ErrInvalidPricing)
	}

	nonce, err := NewNonce()
	if err != nil {
		return Invoice{}, err
	}

	return Invoice{
		ID:        uuid.NewString(),
		Amount:    pricing.Amount,
		Asset:     pricing.Asset,
		Recipient: pricing.Recipient,
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Expired reports whether the invoice's validity window has passed at now.
func (inv Invoice) Expired(now time.Time) bool {
	return !now.Before(inv.ExpiresAt)
}
