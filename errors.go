package x402

import "errors"

// Sentinel errors for x402 gate operations. All of them are recoverable at
// the protocol boundary: a failure yields a Denied or Challenge outcome to
// the caller, never a fault of the host process.
var (
	// ErrInvalidPricing indicates pricing with a non-positive amount or
	// missing asset/recipient.
	ErrInvalidPricing = errors.New("x402: invalid pricing")

	// ErrInvoiceMismatch indicates a proof that references a different
	// invoice than the one being redeemed.
	ErrInvoiceMismatch = errors.New("x402: proof references a different invoice")

	// ErrInvoiceExpired indicates the invoice's validity window has passed.
	ErrInvoiceExpired = errors.New("x402: invoice expired")

	// ErrBadSignature indicates the proof signature does not verify under
	// the claimed payer key.
	ErrBadSignature = errors.New("x402: signature verification failed")

	// ErrInsufficientPayment indicates the signed amount is below the
	// invoice amount.
	ErrInsufficientPayment = errors.New("x402: signed amount below invoice amount")

	// ErrAlreadyConsumed indicates the invoice nonce is already present in
	// the ledger. Returned by Ledger.TryConsume.
	ErrAlreadyConsumed = errors.New("x402: nonce already consumed")

	// ErrReplayDetected indicates a valid proof lost the race to consume its
	// nonce: either a concurrent redemption or an attempted double-spend.
	ErrReplayDetected = errors.New("x402: payment proof replayed")

	// ErrUnknownInvoice indicates a proof for an invoice the gate has never
	// issued, or whose session already reached a terminal state.
	ErrUnknownInvoice = errors.New("x402: unknown or finished invoice")

	// ErrAlreadyFulfilled indicates a resubmission against an invoice that
	// was already paid and released.
	ErrAlreadyFulfilled = errors.New("x402: invoice already fulfilled")

	// ErrTooManySessions indicates the gate's pending-session cap is
	// reached and no expired sessions could be reclaimed.
	ErrTooManySessions = errors.New("x402: too many pending sessions")
)

// ErrorCode identifies an error kind for programmatic handling. Hosts put
// the code in the body of the error response they map a denial to.
type ErrorCode string

const (
	// CodeInvalidPricing indicates invalid pricing input.
	CodeInvalidPricing ErrorCode = "INVALID_PRICING"

	// CodeInvoiceMismatch indicates a proof/invoice id mismatch.
	CodeInvoiceMismatch ErrorCode = "INVOICE_MISMATCH"

	// CodeInvoiceExpired indicates an expired invoice.
	CodeInvoiceExpired ErrorCode = "INVOICE_EXPIRED"

	// CodeBadSignature indicates a signature that does not verify.
	CodeBadSignature ErrorCode = "BAD_SIGNATURE"

	// CodeInsufficientPayment indicates an underpaying proof.
	CodeInsufficientPayment ErrorCode = "INSUFFICIENT_PAYMENT"

	// CodeReplayDetected indicates a nonce that was already consumed.
	CodeReplayDetected ErrorCode = "REPLAY_DETECTED"

	// CodeUnknownInvoice indicates an unknown or finished invoice.
	CodeUnknownInvoice ErrorCode = "UNKNOWN_INVOICE"

	// CodeAlreadyFulfilled indicates a resubmission against a paid invoice.
	CodeAlreadyFulfilled ErrorCode = "ALREADY_FULFILLED"
)

// CodeFor maps an error to its ErrorCode. Unrecognized errors map to
// CodeBadSignature, the most conservative denial.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrInvalidPricing):
		return CodeInvalidPricing
	case errors.Is(err, ErrInvoiceMismatch):
		return CodeInvoiceMismatch
	case errors.Is(err, ErrInvoiceExpired):
		return CodeInvoiceExpired
	case errors.Is(err, ErrInsufficientPayment):
		return CodeInsufficientPayment
	case errors.Is(err, ErrReplayDetected), errors.Is(err, ErrAlreadyConsumed):
		return CodeReplayDetected
	case errors.Is(err, ErrUnknownInvoice):
		return CodeUnknownInvoice
	case errors.Is(err, ErrAlreadyFulfilled):
		return CodeAlreadyFulfilled
	default:
		return CodeBadSignature
	}
}

// GateError provides structured error information.
type GateError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *GateError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *GateError) Unwrap() error {
	return e.Err
}

// NewGateError creates a new GateError with the given code and message.
func NewGateError(code ErrorCode, message string, err error) *GateError {
	return &GateError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *GateError) WithDetails(key string, value interface{}) *GateError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
