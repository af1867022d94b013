package x402

import (
	"encoding/binary"
	"strconv"

	"github.com/shopspring/decimal"
)

// canonicalTag is the ASCII domain tag prefixed to every signed payload. It
// namespaces signatures so a proof can never double as a signature over
// anything else, and versions the layout.
const canonicalTag = "bindu-x402-proof/1"

// CanonicalPayload builds the deterministic byte encoding that payment
// proofs are signed over. Signer and verifier must agree on it exactly; any
// divergence breaks all proofs silently, so the layout below is the wire
// contract:
//
//	"bindu-x402-proof/1"
//	then, for each field in this fixed order, a uvarint byte length
//	followed by the field's UTF-8 bytes:
//	  1. invoice id
//	  2. amount the payer signs for, as its exact decimal wire string
//	  3. asset
//	  4. recipient
//	  5. nonce, 0x-prefixed hex
//	  6. issuedAt, unix seconds base-10
//	  7. expiresAt, unix seconds base-10
//	  8. payer address
//
// Length prefixes keep field boundaries unambiguous: no concatenation of
// different field values can produce the same payload. Timestamps are
// signed at second precision; sub-second precision is not part of the
// contract.
//
// Schemes digest the payload their own way (the EVM scheme applies the
// EIP-191 personal-sign prefix and Keccak-256, the SVM scheme signs the raw
// payload with ed25519) but all schemes sign these bytes.
func CanonicalPayload(inv Invoice, payer string, amount decimal.Decimal) []byte {
	fields := []string{
		inv.ID,
		amount.String(),
		inv.Asset,
		inv.Recipient,
		inv.Nonce.Hex(),
		strconv.FormatInt(inv.IssuedAt.Unix(), 10),
		strconv.FormatInt(inv.ExpiresAt.Unix(), 10),
		payer,
	}

	payload := make([]byte, 0, 64+len(canonicalTag))
	payload = append(payload, canonicalTag...)
	for _, f := range fields {
		payload = binary.AppendUvarint(payload, uint64(len(f)))
		payload = append(payload, f...)
	}
	return payload
}
