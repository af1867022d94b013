// Package svm implements the "svm" signature scheme for x402 payment
// proofs: ed25519 over the raw canonical payload, with base58 Solana
// addresses as payer identities.
package svm

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	x402 "github.com/itsA-D/Bindu"
)

// SchemeID is the scheme identifier carried in PaymentProof.Scheme.
const SchemeID = "svm"

// Scheme verifies SVM payment proof signatures.
type Scheme struct{}

// New creates the SVM signature scheme.
func New() *Scheme {
	return &Scheme{}
}

// Scheme implements x402.SignatureScheme.
func (*Scheme) Scheme() string {
	return SchemeID
}

// Verify implements x402.SignatureScheme. The payer is a base58 Solana
// public key and the signature is 64 raw ed25519 bytes over the payload.
// Any failure wraps x402.ErrBadSignature.
func (*Scheme) Verify(payload []byte, signature []byte, payer string) error {
	pub, err := solana.PublicKeyFromBase58(payer)
	if err != nil {
		return fmt.Errorf("%w: invalid payer address: %v", x402.ErrBadSignature, err)
	}

	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature is %d bytes, want %d",
			x402.ErrBadSignature, len(signature), ed25519.SignatureSize)
	}

	if !ed25519.Verify(ed25519.PublicKey(pub[:]), payload, signature) {
		return fmt.Errorf("%w: signature does not verify under payer %s",
			x402.ErrBadSignature, payer)
	}

	return nil
}

// Signer produces SVM payment proofs. It is the payer side of the scheme,
// used by clients and tests.
type Signer struct {
	privateKey solana.PrivateKey
	address    string
}

// NewSigner creates a signer from a base58-encoded private key.
func NewSigner(privateKeyBase58 string) (*Signer, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewSignerFromKey(privateKey), nil
}

// NewSignerFromKey creates a signer from an existing private key.
func NewSignerFromKey(key solana.PrivateKey) *Signer {
	return &Signer{
		privateKey: key,
		address:    key.PublicKey().String(),
	}
}

// Address returns the signer's base58 address.
func (s *Signer) Address() string {
	return s.address
}

// Sign signs the raw payload with ed25519.
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	sig, err := s.privateKey.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	return sig[:], nil
}

// Prove builds a complete payment proof redeeming the invoice at its face
// amount.
func (s *Signer) Prove(inv x402.Invoice) (*x402.PaymentProof, error) {
	return s.ProveAmount(inv, inv.Amount)
}

// ProveAmount builds a payment proof signing for the given amount, which
// may differ from the invoice amount.
func (s *Signer) ProveAmount(inv x402.Invoice, amount decimal.Decimal) (*x402.PaymentProof, error) {
	payload := x402.CanonicalPayload(inv, s.address, amount)
	signature, err := s.Sign(payload)
	if err != nil {
		return nil, err
	}
	return &x402.PaymentProof{
		InvoiceID:   inv.ID,
		Payer:       s.address,
		Amount:      amount,
		Scheme:      SchemeID,
		Signature:   signature,
		SubmittedAt: time.Now().UTC(),
	}, nil
}
