// Package validation provides validation utilities for x402 gate data.
// It validates pricing, payer addresses per signature scheme, and proof
// structures before they reach the verifier.
package validation

import (
	"fmt"
	"regexp"

	x402 "github.com/itsA-D/Bindu"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// svmAddressRegex matches Solana base58 addresses (32-44 chars, base58 charset)
	svmAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// ValidatePricing validates payment terms before an invoice is issued.
// Returns an error wrapping x402.ErrInvalidPricing on any violation.
func ValidatePricing(p x402.Pricing) error {
	if p.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", x402.ErrInvalidPricing, p.Amount.String())
	}
	if p.Asset == "" {
		return fmt.Errorf("%w: asset cannot be empty", x402.ErrInvalidPricing)
	}
	if p.Recipient == "" {
		return fmt.Errorf("%w: recipient cannot be empty", x402.ErrInvalidPricing)
	}
	return nil
}

// ValidateAddress validates an address for the given signature scheme.
func ValidateAddress(address string, scheme string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch scheme {
	case "evm":
		if !evmAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
		}
		return nil

	case "svm":
		if !svmAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid Solana address format: %s (expected base58 string 32-44 chars)", address)
		}
		return nil

	default:
		return fmt.Errorf("unsupported scheme for address validation: %s", scheme)
	}
}

// ValidateProof performs structural validation of a payment proof. It does
// not check the signature; that is the verifier's job.
func ValidateProof(proof x402.PaymentProof) error {
	if proof.InvoiceID == "" {
		return fmt.Errorf("invoice id cannot be empty")
	}
	if proof.Scheme == "" {
		return fmt.Errorf("scheme cannot be empty")
	}
	if err := ValidateAddress(proof.Payer, proof.Scheme); err != nil {
		return fmt.Errorf("invalid proof: payer %w", err)
	}
	if len(proof.Signature) == 0 {
		return fmt.Errorf("signature cannot be empty")
	}
	if proof.Amount.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got %s", proof.Amount.String())
	}
	return nil
}
