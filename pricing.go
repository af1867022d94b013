package x402

import "context"

// PricingPolicy supplies the payment terms for a given request. It is an
// external collaborator: the gate consumes it, it does not define it. The
// fingerprint is whatever key the host prices by (a route, a tool name, a
// resource path).
type PricingPolicy interface {
	// Price returns the pricing for the fingerprint, or an error wrapping
	// ErrInvalidPricing when nothing is configured for it.
	Price(fingerprint string) (Pricing, error)
}

// FixedPricing is a PricingPolicy backed by a static price table with an
// optional fallback for fingerprints not in the table.
type FixedPricing struct {
	prices   map[string]Pricing
	fallback *Pricing
}

// FixedPricingOption configures a FixedPricing.
type FixedPricingOption func(*FixedPricing)

// WithFallback sets the pricing used for fingerprints absent from the
// table.
func WithFallback(p Pricing) FixedPricingOption {
	return func(f *FixedPricing) { f.fallback = &p }
}

// NewFixedPricing creates a price table policy. The map is copied.
func NewFixedPricing(prices map[string]Pricing, opts ...FixedPricingOption) *FixedPricing {
	f := &FixedPricing{prices: make(map[string]Pricing, len(prices))}
	for k, v := range prices {
		f.prices[k] = v
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Price implements PricingPolicy.
func (f *FixedPricing) Price(fingerprint string) (Pricing, error) {
	if p, ok := f.prices[fingerprint]; ok {
		return p, nil
	}
	if f.fallback != nil {
		return *f.fallback, nil
	}
	return Pricing{}, NewGateError(CodeInvalidPricing,
		"no pricing configured for "+fingerprint, ErrInvalidPricing)
}

// ChallengeOrVerifyPriced is ChallengeOrVerify with the pricing resolved
// through a policy. A policy error yields a Denied outcome with
// CodeInvalidPricing.
func (g *Gate) ChallengeOrVerifyPriced(ctx context.Context, fingerprint string, proof *PaymentProof, policy PricingPolicy) (Outcome, error) {
	pricing, err := policy.Price(fingerprint)
	if err != nil {
		gerr := asGateError(err)
		g.emit(Event{
			Type:        EventDeny,
			Timestamp:   g.now(),
			Fingerprint: fingerprint,
			Reason:      gerr.Code,
			Err:         gerr,
		})
		return Outcome{Kind: OutcomeDenied, Reason: gerr.Code, Err: gerr}, nil
	}
	return g.ChallengeOrVerify(ctx, fingerprint, proof, pricing)
}
