package policy

import (
	"errors"
	"time"

	"github.com/stayware/booking/internal/booking"
)

type Type string

const (
	TypeFlexible Type = "flexible"
	TypeModerate Type = "moderate"
	TypeStrict   Type = "strict"
)

var ErrUnknownType = errors.New("unknown cancellation policy type")

// Policy describes a unit's cancellation terms. The core never moves money;
// quotes produced here are advisory figures for the caller, the actual refund
// is executed by an external payment collaborator.
type Policy struct {
	Type              Type    `json:"type"`
	Description       string  `json:"description"`
	RefundPercentage  float64 `json:"refund_percentage"`
	DaysBeforeCheckIn int     `json:"days_before_check_in"`
}

var defaults = map[Type]Policy{
	TypeFlexible: {
		Type:              TypeFlexible,
		Description:       "Full refund up to 1 day before check-in",
		RefundPercentage:  100,
		DaysBeforeCheckIn: 1,
	},
	TypeModerate: {
		Type:              TypeModerate,
		Description:       "50% refund up to 5 days before check-in",
		RefundPercentage:  50,
		DaysBeforeCheckIn: 5,
	},
	TypeStrict: {
		Type:              TypeStrict,
		Description:       "No refund within 14 days of check-in",
		RefundPercentage:  0,
		DaysBeforeCheckIn: 14,
	},
}

func ForType(t Type) (Policy, error) {
	p, ok := defaults[t]
	if !ok {
		//nolint:exhaustruct
		return Policy{}, ErrUnknownType
	}

	return p, nil
}

// RefundQuote returns the advisory refund for cancelling a reservation of
// totalAmount at now. Cancelling outside the policy's notice window refunds
// the policy percentage; inside the window nothing is refunded.
func (p Policy) RefundQuote(checkIn time.Time, totalAmount float64, now time.Time) float64 {
	deadline := booking.TruncateToDay(checkIn).AddDate(0, 0, -p.DaysBeforeCheckIn)

	if now.UTC().Before(deadline) {
		return totalAmount * p.RefundPercentage / 100 //nolint:gomnd
	}

	return 0
}
