package x402

import "time"

// EventType represents the type of gate event.
type EventType string

const (
	// EventChallenge indicates an invoice was issued as a challenge.
	EventChallenge EventType = "challenge"

	// EventGrant indicates a proof validated and the response was released.
	EventGrant EventType = "grant"

	// EventDeny indicates a proof was rejected.
	EventDeny EventType = "deny"
)

// Event represents a gate lifecycle event. Hosts use events for logging,
// metrics, and debugging; the metrics package ships a Prometheus collector
// built on them.
type Event struct {
	// Type is the event type (challenge, grant, deny).
	Type EventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Fingerprint is the request fingerprint the session is keyed by.
	Fingerprint string

	// InvoiceID is the invoice involved, when one exists.
	InvoiceID string

	// Amount is the invoice amount as a decimal string.
	Amount string

	// Asset is the invoice asset identifier.
	Asset string

	// Payer is the claimed payer address (grant and deny only).
	Payer string

	// Scheme is the proof's signature scheme (grant and deny only).
	Scheme string

	// Reason is the error kind behind a denial.
	Reason ErrorCode

	// Replay marks denials caused by a consumed nonce: a race or an
	// attempted double-spend. Never swallow these silently; they must stay
	// distinguishable from ordinary signature rejections.
	Replay bool

	// Err contains denial detail.
	Err error

	// Duration is the time taken to process the submission.
	Duration time.Duration
}

// EventCallback is a function that handles gate events. Callbacks are
// invoked synchronously during gate processing, so they should be fast to
// avoid blocking the request path. For longer operations, consider using
// goroutines within the callback.
type EventCallback func(Event)
