// Package evm implements the "evm" signature scheme for x402 payment
// proofs: secp256k1 ECDSA over the EIP-191 personal-sign digest of the
// canonical payload, with recover-and-compare verification against the
// claimed payer address.
package evm

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	x402 "github.com/itsA-D/Bindu"
	"github.com/itsA-D/Bindu/validation"
)

// SchemeID is the scheme identifier carried in PaymentProof.Scheme.
const SchemeID = "evm"

// signatureLength is the expected signature size: 32 bytes r, 32 bytes s,
// 1 byte v.
const signatureLength = 65

// Scheme verifies EVM payment proof signatures.
type Scheme struct{}

// New creates the EVM signature scheme.
func New() *Scheme {
	return &Scheme{}
}

// Scheme implements x402.SignatureScheme.
func (*Scheme) Scheme() string {
	return SchemeID
}

// Verify implements x402.SignatureScheme. It recovers the signer address
// from the signature over the EIP-191 digest of payload and compares it to
// the claimed payer. Any failure wraps x402.ErrBadSignature.
func (*Scheme) Verify(payload []byte, signature []byte, payer string) error {
	if err := validation.ValidateAddress(payer, SchemeID); err != nil {
		return fmt.Errorf("%w: %v", x402.ErrBadSignature, err)
	}

	if len(signature) != signatureLength {
		return fmt.Errorf("%w: signature is %d bytes, want %d",
			x402.ErrBadSignature, len(signature), signatureLength)
	}

	// Normalize v from the 27/28 convention wallets use to the 0/1 the
	// recovery code expects, without mutating the caller's slice.
	sig := make([]byte, signatureLength)
	copy(sig, signature)
	if sig[64] == 27 || sig[64] == 28 {
		sig[64] -= 27
	}

	pubkey, err := crypto.Ecrecover(digest(payload), sig)
	if err != nil {
		return fmt.Errorf("%w: recover failed: %v", x402.ErrBadSignature, err)
	}

	recovered, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		return fmt.Errorf("%w: invalid recovered pubkey: %v", x402.ErrBadSignature, err)
	}

	signer := crypto.PubkeyToAddress(*recovered)
	if !strings.EqualFold(signer.Hex(), payer) {
		return fmt.Errorf("%w: signer %s does not match payer %s",
			x402.ErrBadSignature, signer.Hex(), payer)
	}

	return nil
}

// digest applies the EIP-191 personal-sign prefix and Keccak-256.
func digest(payload []byte) []byte {
	prefixed := fmt.Appendf(nil, "\x19Ethereum Signed Message:\n%d", len(payload))
	prefixed = append(prefixed, payload...)
	return crypto.Keccak256(prefixed)
}

// Signer produces EVM payment proofs. It is the payer side of the scheme,
// used by clients and tests.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewSigner creates a signer from a hex-encoded private key. The 0x prefix
// is optional.
func NewSigner(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewSignerFromKey(privateKey), nil
}

// NewSignerFromKey creates a signer from an existing private key.
func NewSignerFromKey(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

// Address returns the signer's hex address.
func (s *Signer) Address() string {
	return s.address
}

// Sign signs the payload with the EIP-191 digest and returns the 65-byte
// r||s||v signature with v in the 27/28 convention.
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest(payload), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	signature[64] += 27
	return signature, nil
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
