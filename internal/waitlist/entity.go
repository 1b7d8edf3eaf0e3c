package waitlist

import (
	"time"

	"github.com/stayware/booking/internal/booking"
)

type EntryStatus string

const (
	EntryPending  EntryStatus = "pending"
	EntryNotified EntryStatus = "notified"
	EntryBooked   EntryStatus = "booked"
	EntryExpired  EntryStatus = "expired"
)

// IsActive reports whether the entry still counts toward the idempotent
// enrollment constraint: one {pending, notified} entry per tuple.
func (s EntryStatus) IsActive() bool {
	return s == EntryPending || s == EntryNotified
}

type Entry struct {
	ID         string           `json:"id"`
	UnitID     string           `json:"unit_id"`
	GuestID    string           `json:"guest_id"`
	GuestEmail string           `json:"guest_email"`
	Interval   booking.Interval `json:"interval"`
	Status     EntryStatus      `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	NotifiedAt *time.Time       `json:"notified_at,omitempty"`
}

type JoinInput struct {
	UnitID     string    `json:"unit_id"`
	GuestID    string    `json:"guest_id"`
	GuestEmail string    `json:"guest_email"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
}
