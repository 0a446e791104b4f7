package entity

import "context"

// PaymentProvider is a contract-only seam for the Non-goal named in §1:
// "payment capture (abstract PaymentProvider only)". No implementation
// ships in this repository; wiring a real processor would capture payments,
// which the spec explicitly excludes.
type PaymentProvider interface {
	CreateCheckoutLink(ctx context.Context, teamID, subjectID string, amountMinor int64, currency string) (url string, err error)
}
