package booking

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

// IsActive reports whether the reservation still occupies its interval.
// Only active reservations take part in overlap checks.
func (s ReservationStatus) IsActive() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

type Reservation struct {
	ID          string            `json:"id"`
	UnitID      string            `json:"unit_id"`
	GuestID     string            `json:"guest_id"`
	GuestEmail  string            `json:"guest_email"`
	Interval    Interval          `json:"interval"`
	TotalAmount float64           `json:"total_amount"`
	Status      ReservationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

type BookInput struct {
	UnitID      string    `json:"unit_id"`
	GuestID     string    `json:"guest_id"`
	GuestEmail  string    `json:"guest_email"`
	CheckIn     time.Time `json:"check_in"`
	CheckOut    time.Time `json:"check_out"`
	TotalAmount float64   `json:"total_amount"`
}
