package payment

import (
	"github.com/moneta-pay/moneta/internal/domain/invoice"
)

// Confirmation requirements per speed policy. Unknown policies fall back to
// the most conservative value.
const (
	confirmationsHighSpeed      int64 = 0
	confirmationsMediumSpeed    int64 = 1
	confirmationsLowMediumSpeed int64 = 2
	confirmationsLowSpeed       int64 = 6
)

// RequiredConfirmations computes how many confirmations a payment needs
// before it settles. Evaluated in strict priority order: a lock-time-gated
// transfer is never confirmed enough before its lock expires, regardless of
// policy; then the invoice-level override; then the speed policy mapping.
func RequiredConfirmations(details Details, speedPolicy invoice.SpeedPolicy) int64 {
	switch {
	case details.Confirmations < details.LockTime:
		return details.LockTime - details.Confirmations
	case details.SettledConfirmationThreshold != nil:
		return *details.SettledConfirmationThreshold
	}

	switch speedPolicy {
	case invoice.SpeedPolicyHigh:
		return confirmationsHighSpeed
	case invoice.SpeedPolicyMedium:
		return confirmationsMediumSpeed
	case invoice.SpeedPolicyLowMedium:
		return confirmationsLowMediumSpeed
	case invoice.SpeedPolicyLow:
		return confirmationsLowSpeed
	default:
		return confirmationsLowSpeed
	}
}

// StatusFor returns Settled iff the observed confirmation count reached the
// required threshold, Processing otherwise.
func StatusFor(details Details, speedPolicy invoice.SpeedPolicy) Status {
	if details.Confirmations >= RequiredConfirmations(details, speedPolicy) {
		return StatusSettled
	}
	return StatusProcessing
}
