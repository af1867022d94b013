// Package encoding provides utilities for encoding and decoding x402 gate
// data. It handles base64 and JSON marshaling for invoices and payment
// proofs so hosts can carry them in headers or protocol messages without
// inventing their own envelope.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/itsA-D/Bindu"
)

// EncodeInvoice converts an Invoice to a base64-encoded JSON string. Hosts
// use this to surface a challenge in a payment-required response header.
//
// Returns an error if JSON marshaling fails.
func EncodeInvoice(inv x402.Invoice) (string, error) {
	invoiceJSON, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("failed to marshal invoice: %w", err)
	}
	return base64.StdEncoding.EncodeToString(invoiceJSON), nil
}

// DecodeInvoice converts a base64-encoded JSON string to an Invoice.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodeInvoice(encoded string) (x402.Invoice, error) {
	var inv x402.Invoice

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return inv, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &inv); err != nil {
		return inv, fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	return inv, nil
}

// EncodeProof converts a PaymentProof to a base64-encoded JSON string.
// Callers use this to attach a proof to their resubmission.
//
// Returns an error if JSON marshaling fails.
func EncodeProof(proof x402.PaymentProof) (string, error) {
	proofJSON, err := json.Marshal(proof)
	if err != nil {
		return "", fmt.Errorf("failed to marshal proof: %w", err)
	}
	return base64.StdEncoding.EncodeToString(proofJSON), nil
}

// DecodeProof converts a base64-encoded JSON string to a PaymentProof.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodeProof(encoded string) (x402.PaymentProof, error) {
	var proof x402.PaymentProof

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return proof, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &proof); err != nil {
		return proof, fmt.Errorf("failed to unmarshal proof: %w", err)
	}

	return proof, nil
}
