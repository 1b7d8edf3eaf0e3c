package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stayware/booking/internal/booking"
	"github.com/stayware/booking/internal/catalog"
	"github.com/stayware/booking/internal/logger"
	"github.com/stayware/booking/internal/waitlist"
)

type Config struct {
	L *logger.Logger
}

// section is one open per-unit critical section. Mutations performed inside
// it apply immediately and are undone via rollbackActions if the section does
// not commit.
type section struct {
	id               string
	unitID           string
	rollbackActions  []func()
	savedReservation *booking.Reservation
}

// DB is an in-memory store. mu guards the maps; each unit additionally owns a
// section mutex so admission decisions on different units never contend.
type DB struct {
	mu              sync.Mutex
	l               *logger.Logger
	units           map[string]*catalog.Unit
	reservations    map[string]*booking.Reservation
	entries         map[string]*waitlist.Entry
	idempotencyKeys map[string]*booking.Reservation
	unitLocks       map[string]*sync.Mutex
	sections        map[string]*section
	nextSectionID   int64
}

func New(conf Config) *DB {
	//nolint:exhaustruct
	return &DB{
		l:               conf.L,
		units:           make(map[string]*catalog.Unit),
		reservations:    make(map[string]*booking.Reservation),
		entries:         make(map[string]*waitlist.Entry),
		idempotencyKeys: make(map[string]*booking.Reservation),
		unitLocks:       make(map[string]*sync.Mutex),
		sections:        make(map[string]*section),
	}
}

func (db *DB) unitLock(unitID string) *sync.Mutex {
	db.mu.Lock()
	defer db.mu.Unlock()

	lock, ok := db.unitLocks[unitID]
	if !ok {
		lock = &sync.Mutex{}
		db.unitLocks[unitID] = lock
	}

	return lock
}

// BeginUnitSection acquires the unit's section lock. The lock is held until
// CommitSection or RollbackSection, serializing every read-then-write
// sequence on the unit.
func (db *DB) BeginUnitSection(ctx context.Context, unitID string) (context.Context, error) {
	db.unitLock(unitID).Lock()

	db.mu.Lock()
	defer db.mu.Unlock()

	sectionID := fmt.Sprintf("section-%d", db.nextSectionID)
	db.nextSectionID++

	//nolint:exhaustruct
	db.sections[sectionID] = &section{
		id:              sectionID,
		unitID:          unitID,
		rollbackActions: []func(){},
	}

	return withSectionID(ctx, sectionID), nil
}

func (db *DB) takeSection(ctx context.Context) (*section, error) {
	sectionID, ok := sectionIDFromContext(ctx)
	if !ok || sectionID == "" {
		return nil, ErrSectionIDNotFoundInCtx
	}

	sec, exists := db.sections[sectionID]
	if !exists {
		return nil, fmt.Errorf("section %s not found: %w", sectionID, ErrSectionNotFound)
	}

	return sec, nil
}

func (db *DB) CommitSection(ctx context.Context) error {
	db.mu.Lock()

	sec, err := db.takeSection(ctx)
	if err != nil {
		db.mu.Unlock()

		return err
	}

	if sec.savedReservation != nil {
		if key, ok := booking.IdempotencyKeyFromContext(ctx); ok && key != "" {
			db.idempotencyKeys[key] = sec.savedReservation
		}
	}

	delete(db.sections, sec.id)
	db.mu.Unlock()

	db.unitLock(sec.unitID).Unlock()

	return nil
}

func (db *DB) RollbackSection(ctx context.Context) error {
	db.mu.Lock()

	sec, err := db.takeSection(ctx)
	if err != nil {
		db.mu.Unlock()

		return err
	}

	for i := len(sec.rollbackActions) - 1; i >= 0; i-- {
		sec.rollbackActions[i]()
	}

	delete(db.sections, sec.id)
	db.mu.Unlock()

	db.unitLock(sec.unitID).Unlock()

	return nil
}

// currentSection returns the open section when the ctx carries one. Sweep
// operations run without a section; their single-map updates are atomic under
// mu anyway.
func (db *DB) currentSection(ctx context.Context) *section {
	sectionID, ok := sectionIDFromContext(ctx)
	if !ok || sectionID == "" {
		return nil
	}

	return db.sections[sectionID]
}

func (db *DB) SaveReservation(ctx context.Context, res *booking.Reservation) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := *res
	db.reservations[res.ID] = &stored

	if sec := db.currentSection(ctx); sec != nil {
		sec.savedReservation = &stored
		sec.rollbackActions = append(sec.rollbackActions, func() {
			delete(db.reservations, stored.ID)
		})
	}

	return nil
}

func (db *DB) GetReservation(_ context.Context, id string) (*booking.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, exists := db.reservations[id]
	if !exists {
		return nil, booking.ErrRecordNotFound
	}

	out := *res

	return &out, nil
}

func (db *DB) GetReservationByIdempotencyKey(ctx context.Context) (*booking.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key, ok := booking.IdempotencyKeyFromContext(ctx)
	if !ok || key == "" {
		// No key means no dedup requested.
		return nil, booking.ErrRecordNotFound
	}

	res, exists := db.idempotencyKeys[key]
	if !exists {
		return nil, booking.ErrRecordNotFound
	}

	out := *res

	return &out, nil
}

func (db *DB) ListActiveReservations(_ context.Context, unitID string) ([]*booking.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []*booking.Reservation

	for _, res := range db.reservations {
		if res.UnitID == unitID && res.Status.IsActive() {
			out := *res
			result = append(result, &out)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Interval.CheckIn.Before(result[j].Interval.CheckIn)
	})

	return result, nil
}

func (db *DB) ListReservationsByGuest(_ context.Context, guestID string) ([]*booking.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []*booking.Reservation

	for _, res := range db.reservations {
		if res.GuestID == guestID {
			out := *res
			result = append(result, &out)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (db *DB) ListDueCompletion(_ context.Context, now time.Time) ([]*booking.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []*booking.Reservation

	for _, res := range db.reservations {
		if res.Status == booking.ReservationConfirmed && !res.Interval.CheckOut.After(now) {
			out := *res
			result = append(result, &out)
		}
	}

	return result, nil
}

func (db *DB) UpdateReservationStatus(ctx context.Context, id string, status booking.ReservationStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, exists := db.reservations[id]
	if !exists {
		return booking.ErrRecordNotFound
	}

	previous := res.Status
	res.Status = status

	if sec := db.currentSection(ctx); sec != nil {
		sec.rollbackActions = append(sec.rollbackActions, func() {
			res.Status = previous
		})
	}

	return nil
}

func (db *DB) SaveEntry(ctx context.Context, entry *waitlist.Entry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := *entry
	db.entries[entry.ID] = &stored

	if sec := db.currentSection(ctx); sec != nil {
		sec.rollbackActions = append(sec.rollbackActions, func() {
			delete(db.entries, stored.ID)
		})
	}

	return nil
}

func (db *DB) GetEntry(_ context.Context, id string) (*waitlist.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	entry, exists := db.entries[id]
	if !exists {
		return nil, booking.ErrRecordNotFound
	}

	out := *entry

	return &out, nil
}

func (db *DB) FindActiveEntry(
	_ context.Context,
	unitID, guestID string,
	iv booking.Interval,
) (*waitlist.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, entry := range db.entries {
		if entry.UnitID == unitID &&
			entry.GuestID == guestID &&
			entry.Status.IsActive() &&
			entry.Interval.CheckIn.Equal(iv.CheckIn) &&
			entry.Interval.CheckOut.Equal(iv.CheckOut) {
			out := *entry

			return &out, nil
		}
	}

	return nil, booking.ErrRecordNotFound
}

func (db *DB) ListActiveEntriesByUnit(_ context.Context, unitID string) ([]*waitlist.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []*waitlist.Entry

	for _, entry := range db.entries {
		if entry.UnitID == unitID && entry.Status.IsActive() {
			out := *entry
			result = append(result, &out)
		}
	}

	sortEntriesAscending(result)

	return result, nil
}

func (db *DB) ListActiveEntries(_ context.Context) ([]*waitlist.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []*waitlist.Entry

	for _, entry := range db.entries {
		if entry.Status.IsActive() {
			out := *entry
			result = append(result, &out)
		}
	}

	sortEntriesAscending(result)

	return result, nil
}

func (db *DB) ListEntriesByGuest(_ context.Context, guestID, unitID string) ([]*waitlist.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []*waitlist.Entry

	for _, entry := range db.entries {
		if entry.GuestID != guestID {
			continue
		}

		if unitID != "" && entry.UnitID != unitID {
			continue
		}

		out := *entry
		result = append(result, &out)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (db *DB) UpdateEntryStatus(
	ctx context.Context,
	id string,
	status waitlist.EntryStatus,
	notifiedAt *time.Time,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	entry, exists := db.entries[id]
	if !exists {
		return booking.ErrRecordNotFound
	}

	previousStatus := entry.Status
	previousNotifiedAt := entry.NotifiedAt

	entry.Status = status
	if notifiedAt != nil {
		at := *notifiedAt
		entry.NotifiedAt = &at
	}

	if sec := db.currentSection(ctx); sec != nil {
		sec.rollbackActions = append(sec.rollbackActions, func() {
			entry.Status = previousStatus
			entry.NotifiedAt = previousNotifiedAt
		})
	}

	return nil
}

func (db *DB) SaveUnit(_ context.Context, unit *catalog.Unit) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := *unit
	db.units[unit.ID] = &stored

	return nil
}

func (db *DB) GetUnit(_ context.Context, id string) (*catalog.Unit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	unit, exists := db.units[id]
	if !exists {
		return nil, booking.ErrRecordNotFound
	}

	out := *unit

	return &out, nil
}

func (db *DB) SearchUnits(_ context.Context, filter catalog.Filter) ([]*catalog.Unit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []*catalog.Unit

	for _, unit := range db.units {
		if !matchesFilter(unit, filter) {
			continue
		}

		out := *unit
		result = append(result, &out)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func matchesFilter(unit *catalog.Unit, filter catalog.Filter) bool {
	if filter.Query != "" {
		q := strings.ToLower(filter.Query)
		if !strings.Contains(strings.ToLower(unit.Name), q) &&
			!strings.Contains(strings.ToLower(unit.Description), q) {
			return false
		}
	}

	if filter.Location != "" {
		if !strings.Contains(strings.ToLower(unit.Location), strings.ToLower(filter.Location)) {
			return false
		}
	}

	if filter.MinPrice > 0 && unit.NightlyRate < filter.MinPrice {
		return false
	}

	if filter.MaxPrice > 0 && unit.NightlyRate > filter.MaxPrice {
		return false
	}

	return true
}

func sortEntriesAscending(entries []*waitlist.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
