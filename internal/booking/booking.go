package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/stayware/booking/internal/logger"
	"github.com/stayware/booking/internal/notify"
)

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type storageReader interface {
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	GetReservationByIdempotencyKey(ctx context.Context) (*Reservation, error)
	ListActiveReservations(ctx context.Context, unitID string) ([]*Reservation, error)
	ListReservationsByGuest(ctx context.Context, guestID string) ([]*Reservation, error)
	ListDueCompletion(ctx context.Context, now time.Time) ([]*Reservation, error)
}

type storageWriter interface {
	BeginUnitSection(ctx context.Context, unitID string) (context.Context, error)
	CommitSection(ctx context.Context) error
	RollbackSection(ctx context.Context) error
	SaveReservation(ctx context.Context, res *Reservation) error
	UpdateReservationStatus(ctx context.Context, id string, status ReservationStatus) error
}

type storage interface {
	storageReader
	storageWriter
}

type notifier interface {
	Enqueue(msg notify.Message)
}

// releaseListener receives the released interval after a successful
// cancellation, exactly once per cancellation.
type releaseListener interface {
	OnUnitFreed(ctx context.Context, unitID string, freed Interval) error
}

const defaultMaxRetries = 3

type Manager struct {
	l           *logger.Logger
	storage     storage
	idGenerator idGenerator
	notifier    notifier
	released    releaseListener
	maxRetries  int
	now         func() time.Time
}

func New(l *logger.Logger, storage storage, idGenerator idGenerator, notifier notifier) *Manager {
	//nolint:exhaustruct
	return &Manager{
		l:           l,
		storage:     storage,
		idGenerator: idGenerator,
		notifier:    notifier,
		maxRetries:  defaultMaxRetries,
		now:         time.Now,
	}
}

// SetReleaseListener wires the waiting-list promotion hook. Set after
// construction because the listener reads reservations through the same
// storage this manager writes.
func (m *Manager) SetReleaseListener(rl releaseListener) {
	m.released = rl
}

func (b *BookInput) validate(now time.Time) error {
	inputErr := newInputError()

	if b.UnitID == "" {
		inputErr.addError("unit_id", "provide unit_id")
	}

	if b.GuestID == "" {
		inputErr.addError("guest_id", "provide guest_id")
	}

	if _, err := mail.ParseAddress(b.GuestEmail); err != nil {
		inputErr.addError("guest_email", "provide valid email")
	}

	iv := NewInterval(b.CheckIn, b.CheckOut)

	if !iv.IsValid() {
		inputErr.addError("check_in", "check_in must be before check_out")
	}

	if iv.CheckIn.Before(TruncateToDay(now)) {
		inputErr.addError("check_in", "check_in must not be in the past")
	}

	if b.TotalAmount <= 0 {
		inputErr.addError("total_amount", "total_amount must be greater than 0")
	}

	if inputErr.fieldsCount() > 0 {
		return inputErr
	}

	return nil
}

func (m *Manager) buildReservation(ctx context.Context, input *BookInput) (*Reservation, error) {
	id, err := m.idGenerator.GetID(ctx)
	if err != nil {
		return nil, ErrNextID
	}

	return &Reservation{
		ID:          id,
		UnitID:      input.UnitID,
		GuestID:     input.GuestID,
		GuestEmail:  input.GuestEmail,
		Interval:    NewInterval(input.CheckIn, input.CheckOut),
		TotalAmount: input.TotalAmount,
		Status:      ReservationConfirmed,
		CreatedAt:   m.now().UTC(),
	}, nil
}

// FindOverlapping returns the active reservations on unitID whose intervals
// overlap candidate. The result is only trustworthy for a commit decision
// while the caller holds the unit's section.
func (m *Manager) FindOverlapping(ctx context.Context, unitID string, candidate Interval) ([]*Reservation, error) {
	active, err := m.storage.ListActiveReservations(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("list active reservations for unit %v: %w", unitID, err)
	}

	var conflicts []*Reservation

	for _, res := range active {
		if res.Interval.Overlaps(candidate) {
			conflicts = append(conflicts, res)
		}
	}

	return conflicts, nil
}

// withUnitSection runs fn inside the unit's critical section, committing on
// success and rolling back on error or panic.
func (m *Manager) withUnitSection(ctx context.Context, unitID string, fn func(ctx context.Context) error) (err error) {
	ctx, err = m.storage.BeginUnitSection(ctx, unitID)
	if err != nil {
		return fmt.Errorf("begin section for unit %v: %w", unitID, err)
	}

	defer func() {
		if p := recover(); p != nil {
			if err = m.storage.RollbackSection(ctx); err != nil {
				m.l.LogErrorf("Could not rollback unit section after panic %v", p)
			}

			panic(p)
		}

		if err != nil {
			if rbErr := m.storage.RollbackSection(ctx); rbErr != nil {
				m.l.LogErrorf("Could not rollback unit section after error: %v", rbErr.Error())
			}

			return
		}

		err = m.storage.CommitSection(ctx)
	}()

	return fn(ctx)
}

// RequestBooking decides atomically whether the requested interval can be
// admitted on the unit. Exactly one of a set of racing overlapping requests
// wins; the rest observe *UnavailableError. Confirmation delivery happens
// outside the critical section and never affects the admission outcome.
func (m *Manager) RequestBooking(ctx context.Context, input *BookInput) (*Reservation, error) {
	if err := input.validate(m.now().UTC()); err != nil {
		return nil, err
	}

	existing, err := m.storage.GetReservationByIdempotencyKey(ctx)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("get reservation by idempotency key: %w", err)
	}

	if err == nil {
		return existing, nil
	}

	candidate := NewInterval(input.CheckIn, input.CheckOut)

	var reservation *Reservation

	for attempt := 0; attempt < m.maxRetries; attempt++ {
		err = m.withUnitSection(ctx, input.UnitID, func(ctx context.Context) error {
			conflicts, err := m.FindOverlapping(ctx, input.UnitID, candidate)
			if err != nil {
				return err
			}

			if len(conflicts) > 0 {
				unavailableErr := NewUnavailableError(input.UnitID, candidate)
				for _, conflict := range conflicts {
					unavailableErr.AddConflict(conflict.Interval)
				}

				return unavailableErr
			}

			reservation, err = m.buildReservation(ctx, input)
			if err != nil {
				return fmt.Errorf("build reservation: %w", err)
			}

			if err := m.storage.SaveReservation(ctx, reservation); err != nil {
				return fmt.Errorf("save reservation: %w", err)
			}

			return nil
		})

		if errors.Is(err, ErrTxConflict) {
			m.l.LogWarnf(
				"Unit section conflict on unit %v, attempt %d of %d",
				input.UnitID,
				attempt+1,
				m.maxRetries,
			)

			continue
		}

		if err != nil {
			return nil, err
		}

		m.notifier.Enqueue(notify.Message{
			Kind:          notify.KindBookingConfirmed,
			To:            reservation.GuestEmail,
			GuestID:       reservation.GuestID,
			UnitID:        reservation.UnitID,
			ReservationID: reservation.ID,
			CheckIn:       reservation.Interval.CheckIn,
			CheckOut:      reservation.Interval.CheckOut,
			TotalAmount:   reservation.TotalAmount,
		})

		return reservation, nil
	}

	return nil, ErrConcurrencyConflict
}

// Cancel releases a reservation's interval and re-evaluates the unit's
// waiting list exactly once. Refund amounts are not decided here.
func (m *Manager) Cancel(ctx context.Context, reservationID string) error {
	res, err := m.storage.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("get reservation %v: %w", reservationID, err)
	}

	if !res.Status.IsActive() {
		return ErrNotFound
	}

	for attempt := 0; attempt < m.maxRetries; attempt++ {
		err = m.withUnitSection(ctx, res.UnitID, func(ctx context.Context) error {
			current, err := m.storage.GetReservation(ctx, reservationID)
			if err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					return ErrNotFound
				}

				return fmt.Errorf("re-read reservation %v: %w", reservationID, err)
			}

			if !current.Status.IsActive() {
				return ErrNotFound
			}

			if err := m.storage.UpdateReservationStatus(ctx, reservationID, ReservationCancelled); err != nil {
				return fmt.Errorf("mark reservation %v cancelled: %w", reservationID, err)
			}

			return nil
		})

		if errors.Is(err, ErrTxConflict) {
			continue
		}

		if err != nil {
			return err
		}

		if m.released != nil {
			if err := m.released.OnUnitFreed(ctx, res.UnitID, res.Interval); err != nil {
				m.l.LogErrorf(
					"Could not re-evaluate waiting list for unit %v after cancellation %v: %v",
					res.UnitID,
					reservationID,
					err.Error(),
				)
			}
		}

		return nil
	}

	return ErrConcurrencyConflict
}

// Get returns a reservation by ID.
func (m *Manager) Get(ctx context.Context, reservationID string) (*Reservation, error) {
	res, err := m.storage.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("get reservation %v: %w", reservationID, err)
	}

	return res, nil
}

// ListByGuest returns the guest's reservations, newest first.
func (m *Manager) ListByGuest(ctx context.Context, guestID string) ([]*Reservation, error) {
	if guestID == "" {
		inputErr := newInputError()
		inputErr.addError("guest_id", "provide guest_id")

		return nil, inputErr
	}

	reservations, err := m.storage.ListReservationsByGuest(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("list reservations for guest %v: %w", guestID, err)
	}

	return reservations, nil
}

// CompleteElapsed marks confirmed reservations whose checkout has passed as
// completed. Invoked by the scheduled sweep.
func (m *Manager) CompleteElapsed(ctx context.Context, now time.Time) (int, error) {
	due, err := m.storage.ListDueCompletion(ctx, TruncateToDay(now))
	if err != nil {
		return 0, fmt.Errorf("list reservations due completion: %w", err)
	}

	completed := 0

	for _, res := range due {
		if err := m.storage.UpdateReservationStatus(ctx, res.ID, ReservationCompleted); err != nil {
			m.l.LogErrorf("Could not complete reservation %v: %v", res.ID, err.Error())

			continue
		}

		completed++
	}

	return completed, nil
}
