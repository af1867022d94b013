// Package x402 implements the payment-gated access protocol used by Bindu
// agent endpoints.
//
// A request to a protected endpoint is challenged with an Invoice (a
// time-bounded payment demand carrying a single-use nonce). The caller
// resubmits with a PaymentProof, a signed assertion that the invoice has
// been satisfied. The Gate verifies the proof, consumes the nonce exactly
// once, and releases the downstream response.
//
// The package is transport-neutral: hosts map Gate outcomes onto their own
// wire surface (an HTTP 402 response, an agent protocol message, and so on).
// Settlement itself happens outside this package; proofs arrive as opaque
// signed payloads and are checked against the invoice terms only.
package x402

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pricing describes the payment terms for one protected request: how much,
// in what asset, and to whom. It is supplied by the host (typically from a
// fixed price table, see PricingPolicy) and copied into the issued Invoice.
type Pricing struct {
	// Amount is the price in decimal units of the asset (e.g., "0.01").
	Amount decimal.Decimal `json:"amount"`

	// Asset is the token symbol or contract/mint identifier.
	Asset string `json:"asset"`

	// Recipient is the address payments must be made to.
	Recipient string `json:"recipient"`
}

// PaymentProof is a payer's signed assertion that an invoice has been
// satisfied. A proof is meaningful only in association with exactly one
// Invoice, named by InvoiceID.
type PaymentProof struct {
	// InvoiceID names the invoice this proof redeems.
	InvoiceID string `json:"invoiceId"`

	// Payer is the address whose key produced Signature. Its format depends
	// on Scheme (hex for "evm", base58 for "svm").
	Payer string `json:"payer"`

	// Amount is the amount the payer signed for. It must meet or exceed the
	// invoice amount.
	Amount decimal.Decimal `json:"amount"`

	// Scheme selects the signature scheme used to produce Signature
	// (e.g., "evm", "svm").
	Scheme string `json:"scheme"`

	// Signature is the raw signature bytes over the canonical encoding of
	// the invoice fields plus Payer and Amount. See CanonicalPayload.
	Signature []byte `json:"signature"`

	// SubmittedAt is when the caller produced the proof. Informational;
	// expiry is always evaluated against the verifier's clock.
	SubmittedAt time.Time `json:"submittedAt"`
}

// OutcomeKind discriminates the three results a Gate can produce.
type OutcomeKind int

const (
	// OutcomeChallenge means no valid proof was attached; the Invoice in the
	// outcome must be surfaced to the caller as a payment-required response.
	OutcomeChallenge OutcomeKind = iota + 1

	// OutcomeGranted means the proof validated and its nonce was consumed.
	// The host forwards the original request to the protected handler
	// exactly once.
	OutcomeGranted

	// OutcomeDenied means the proof was rejected. Reason carries the error
	// kind for the host's error response.
	OutcomeDenied
)

// String returns the outcome kind as a short label.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeChallenge:
		return "challenge"
	case OutcomeGranted:
		return "granted"
	case OutcomeDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Outcome is the result of Gate.ChallengeOrVerify.
type Outcome struct {
	// Kind discriminates which of the remaining fields are set.
	Kind OutcomeKind

	// Invoice is the challenge to surface to the caller. Set only for
	// OutcomeChallenge.
	Invoice *Invoice

	// Reason is the error kind behind a denial. Set only for OutcomeDenied.
	Reason ErrorCode

	// Err carries denial detail, wrapping one of the package sentinel
	// errors. Set only for OutcomeDenied.
	Err error
}
