package waitlist

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/stayware/booking/internal/booking"
	"github.com/stayware/booking/internal/logger"
	"github.com/stayware/booking/internal/notify"
)

var (
	// ErrDuplicateEntry is returned when the guest already has a pending or
	// notified entry for the identical unit and date range.
	ErrDuplicateEntry = errors.New("already on the waiting list for these dates")

	ErrEntryNotFound = errors.New("waiting list entry not found")

	// ErrNotNotified guards MarkBooked: only a notified entry can be booked.
	ErrNotNotified = errors.New("entry has not been notified")
)

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type storage interface {
	BeginUnitSection(ctx context.Context, unitID string) (context.Context, error)
	CommitSection(ctx context.Context) error
	RollbackSection(ctx context.Context) error

	ListActiveReservations(ctx context.Context, unitID string) ([]*booking.Reservation, error)

	SaveEntry(ctx context.Context, entry *Entry) error
	GetEntry(ctx context.Context, id string) (*Entry, error)
	FindActiveEntry(ctx context.Context, unitID, guestID string, iv booking.Interval) (*Entry, error)
	ListActiveEntriesByUnit(ctx context.Context, unitID string) ([]*Entry, error)
	ListActiveEntries(ctx context.Context) ([]*Entry, error)
	ListEntriesByGuest(ctx context.Context, guestID, unitID string) ([]*Entry, error)
	UpdateEntryStatus(ctx context.Context, id string, status EntryStatus, notifiedAt *time.Time) error
}

type notifier interface {
	Enqueue(msg notify.Message)
}

const defaultResponseWindow = 48 * time.Hour

type Manager struct {
	l              *logger.Logger
	storage        storage
	idGenerator    idGenerator
	notifier       notifier
	responseWindow time.Duration
	now            func() time.Time
}

type Config struct {
	L           *logger.Logger
	Storage     storage
	IDGenerator idGenerator
	Notifier    notifier
	// ResponseWindow bounds how long a notified entry stays claimable.
	ResponseWindow time.Duration
}

func New(conf Config) *Manager {
	window := conf.ResponseWindow
	if window <= 0 {
		window = defaultResponseWindow
	}

	return &Manager{
		l:              conf.L,
		storage:        conf.Storage,
		idGenerator:    conf.IDGenerator,
		notifier:       conf.Notifier,
		responseWindow: window,
		now:            time.Now,
	}
}

func (j *JoinInput) validate(now time.Time) error {
	inputErr := booking.NewInputError()

	if j.UnitID == "" {
		inputErr.AddError("unit_id", "provide unit_id")
	}

	if j.GuestID == "" {
		inputErr.AddError("guest_id", "provide guest_id")
	}

	if _, err := mail.ParseAddress(j.GuestEmail); err != nil {
		inputErr.AddError("guest_email", "provide valid email")
	}

	iv := booking.NewInterval(j.CheckIn, j.CheckOut)

	if !iv.IsValid() {
		inputErr.AddError("check_in", "check_in must be before check_out")
	}

	if iv.CheckIn.Before(booking.TruncateToDay(now)) {
		inputErr.AddError("check_in", "check_in must not be in the past")
	}

	if inputErr.HasErrors() {
		return inputErr
	}

	return nil
}

// withUnitSection mirrors the admission path's critical-section handling so
// enrollment and promotion serialize with admissions on the same unit.
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

// Join enrolls the guest for a unit and date range. Enrollment is idempotent:
// a second call with an identical tuple while the first entry is still
// pending or notified fails with ErrDuplicateEntry.
func (m *Manager) Join(ctx context.Context, input *JoinInput) (*Entry, error) {
	if err := input.validate(m.now().UTC()); err != nil {
		return nil, err
	}

	iv := booking.NewInterval(input.CheckIn, input.CheckOut)

	var entry *Entry

	err := m.withUnitSection(ctx, input.UnitID, func(ctx context.Context) error {
		existing, err := m.storage.FindActiveEntry(ctx, input.UnitID, input.GuestID, iv)
		if err != nil && !errors.Is(err, booking.ErrRecordNotFound) {
			return fmt.Errorf("look up existing entry: %w", err)
		}

		if existing != nil {
			return ErrDuplicateEntry
		}

		id, err := m.idGenerator.GetID(ctx)
		if err != nil {
			return booking.ErrNextID
		}

		//nolint:exhaustruct
		entry = &Entry{
			ID:         id,
			UnitID:     input.UnitID,
			GuestID:    input.GuestID,
			GuestEmail: input.GuestEmail,
			Interval:   iv,
			Status:     EntryPending,
			CreatedAt:  m.now().UTC(),
		}

		if err := m.storage.SaveEntry(ctx, entry); err != nil {
			return fmt.Errorf("save entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// OnUnitFreed re-evaluates the unit's pending entries after a reservation
// released the freed interval. Entries are considered in ascending creation
// order; an entry is promoted to notified only when its full requested
// interval is clear of both active reservations and intervals already held by
// notified entries. Partially free ranges are never offered.
func (m *Manager) OnUnitFreed(ctx context.Context, unitID string, freed booking.Interval) error {
	var promoted []*Entry

	err := m.withUnitSection(ctx, unitID, func(ctx context.Context) error {
		entries, err := m.storage.ListActiveEntriesByUnit(ctx, unitID)
		if err != nil {
			return fmt.Errorf("list entries for unit %v: %w", unitID, err)
		}

		active, err := m.storage.ListActiveReservations(ctx, unitID)
		if err != nil {
			return fmt.Errorf("list active reservations for unit %v: %w", unitID, err)
		}

		held := make([]booking.Interval, 0, len(active)+len(entries))

		for _, res := range active {
			held = append(held, res.Interval)
		}

		// Intervals promised to already-notified guests count as taken until
		// they book or expire.
		for _, entry := range entries {
			if entry.Status == EntryNotified {
				held = append(held, entry.Interval)
			}
		}

		now := m.now().UTC()

		for _, entry := range entries {
			if entry.Status != EntryPending {
				continue
			}

			if overlapsAny(entry.Interval, held) {
				continue
			}

			notifiedAt := now
			if err := m.storage.UpdateEntryStatus(ctx, entry.ID, EntryNotified, &notifiedAt); err != nil {
				return fmt.Errorf("promote entry %v: %w", entry.ID, err)
			}

			entry.Status = EntryNotified
			entry.NotifiedAt = &notifiedAt
			held = append(held, entry.Interval)
			promoted = append(promoted, entry)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.l.LogInfo(
		"Re-evaluated waiting list for unit %v after release of [%v, %v): %d promoted",
		unitID,
		freed.CheckIn.Format(time.DateOnly),
		freed.CheckOut.Format(time.DateOnly),
		len(promoted),
	)

	for _, entry := range promoted {
		m.notifier.Enqueue(notify.Message{
			Kind:     notify.KindSpotAvailable,
			To:       entry.GuestEmail,
			GuestID:  entry.GuestID,
			UnitID:   entry.UnitID,
			EntryID:  entry.ID,
			CheckIn:  entry.Interval.CheckIn,
			CheckOut: entry.Interval.CheckOut,
		})
	}

	return nil
}

func overlapsAny(iv booking.Interval, held []booking.Interval) bool {
	for _, h := range held {
		if iv.Overlaps(h) {
			return true
		}
	}

	return false
}

// ExpireStale transitions entries that can no longer be honored: notified
// entries whose response window elapsed, and any active entry whose check-in
// has passed. Driven by the scheduled sweep.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	entries, err := m.storage.ListActiveEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active entries: %w", err)
	}

	today := booking.TruncateToDay(now)
	expired := 0

	for _, entry := range entries {
		stale := entry.Interval.CheckIn.Before(today)

		if !stale && entry.Status == EntryNotified && entry.NotifiedAt != nil {
			stale = !now.Before(entry.NotifiedAt.Add(m.responseWindow))
		}

		if !stale {
			continue
		}

		if err := m.storage.UpdateEntryStatus(ctx, entry.ID, EntryExpired, nil); err != nil {
			m.l.LogErrorf("Could not expire entry %v: %v", entry.ID, err.Error())

			continue
		}

		expired++
	}

	return expired, nil
}

// MarkBooked records that a notified guest completed their reservation.
func (m *Manager) MarkBooked(ctx context.Context, entryID string) error {
	entry, err := m.storage.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, booking.ErrRecordNotFound) {
			return ErrEntryNotFound
		}

		return fmt.Errorf("get entry %v: %w", entryID, err)
	}

	if entry.Status != EntryNotified {
		return ErrNotNotified
	}

	if err := m.storage.UpdateEntryStatus(ctx, entryID, EntryBooked, nil); err != nil {
		return fmt.Errorf("mark entry %v booked: %w", entryID, err)
	}

	return nil
}

// ListByGuest returns the guest's entries, newest first. unitID is optional.
func (m *Manager) ListByGuest(ctx context.Context, guestID, unitID string) ([]*Entry, error) {
	if guestID == "" {
		inputErr := booking.NewInputError()
		inputErr.AddError("guest_id", "provide guest_id")

		return nil, inputErr
	}

	entries, err := m.storage.ListEntriesByGuest(ctx, guestID, unitID)
	if err != nil {
		return nil, fmt.Errorf("list entries for guest %v: %w", guestID, err)
	}

	return entries, nil
}
