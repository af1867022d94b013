package x402

import (
	"fmt"
	"time"
)

// SignatureScheme verifies proof signatures for one signature scheme.
// Implementations exist per scheme (secp256k1 for EVM payers, ed25519 for
// SVM payers) and are selected by the Scheme field on the proof.
type SignatureScheme interface {
	// Scheme returns the scheme identifier (e.g., "evm", "svm").
	Scheme() string

	// Verify checks that signature was produced over payload by the key
	// behind the payer address. Returns an error wrapping ErrBadSignature
	// when it does not verify.
	Verify(payload []byte, signature []byte, payer string) error
}

// Verifier validates payment proofs against invoice terms. It is pure with
// respect to state: it never touches the Nonce Ledger. Verification is the
// expensive step and runs without holding any lock; consumption is the
// gate's job afterwards.
type Verifier struct {
	schemes map[string]SignatureScheme
}

// NewVerifier creates a Verifier with the given signature schemes
// registered.
func NewVerifier(schemes ...SignatureScheme) *Verifier {
	v := &Verifier{schemes: make(map[string]SignatureScheme, len(schemes))}
	for _, s := range schemes {
		v.Register(s)
	}
	return v
}

// Register adds a signature scheme, replacing any previous scheme with the
// same identifier. Not safe for concurrent use with Verify; register
// everything up front.
func (v *Verifier) Register(s SignatureScheme) {
	v.schemes[s.Scheme()] = s
}

// Verify checks a proof against an invoice at the given time. Checks run in
// a fixed order and short-circuit on the first failure:
//
//  1. proof and invoice reference the same invoice id (ErrInvoiceMismatch)
//  2. the invoice has not expired at now (ErrInvoiceExpired)
//  3. the signature verifies over the canonical payload under the claimed
//     payer key (ErrBadSignature)
//  4. the signed amount meets the invoice amount (ErrInsufficientPayment)
//
// A nil error means the proof is valid; whether its nonce is still
// consumable is a separate question answered by the ledger.
func (v *Verifier) Verify(proof PaymentProof, inv Invoice, now time.Time) error {
	if proof.InvoiceID != inv.ID {
		return NewGateError(CodeInvoiceMismatch,
			fmt.Sprintf("proof is for invoice %s, not %s", proof.InvoiceID, inv.ID),
			ErrInvoiceMismatch)
	}

	if inv.Expired(now) {
		return NewGateError(CodeInvoiceExpired,
			"invoice expired at "+inv.ExpiresAt.Format(time.RFC3339),
			ErrInvoiceExpired).WithDetails("invoiceId", inv.ID)
	}

	scheme, ok := v.schemes[proof.Scheme]
	if !ok {
		return NewGateError(CodeBadSignature,
			fmt.Sprintf("no verifier registered for scheme %q", proof.Scheme),
			ErrBadSignature)
	}

	payload := CanonicalPayload(inv, proof.Payer, proof.Amount)
	if err := scheme.Verify(payload, proof.Signature, proof.Payer); err != nil {
		return err
	}

	if proof.Amount.Cmp(inv.Amount) < 0 {
		return NewGateError(CodeInsufficientPayment,
			fmt.Sprintf("signed amount %s below invoice amount %s",
				proof.Amount.String(), inv.Amount.String()),
			ErrInsufficientPayment).WithDetails("invoiceId", inv.ID)
	}

	return nil
}
