package waitlist

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayware/booking/internal/booking"
	"github.com/stayware/booking/internal/idgen/seq"
	"github.com/stayware/booking/internal/logger"
	"github.com/stayware/booking/internal/notify"
)

type fakeStore struct {
	mu           sync.Mutex
	entries      []*Entry
	reservations []*booking.Reservation
}

func (f *fakeStore) BeginUnitSection(ctx context.Context, _ string) (context.Context, error) {
	return ctx, nil
}

func (f *fakeStore) CommitSection(context.Context) error { return nil }

func (f *fakeStore) RollbackSection(context.Context) error { return nil }

func (f *fakeStore) ListActiveReservations(_ context.Context, unitID string) ([]*booking.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*booking.Reservation

	for _, res := range f.reservations {
		if res.UnitID == unitID && res.Status.IsActive() {
			out = append(out, res)
		}
	}

	return out, nil
}

func (f *fakeStore) SaveEntry(_ context.Context, entry *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, entry)

	return nil
}

func (f *fakeStore) GetEntry(_ context.Context, id string) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.entries {
		if entry.ID == id {
			return entry, nil
		}
	}

	return nil, booking.ErrRecordNotFound
}

func (f *fakeStore) FindActiveEntry(_ context.Context, unitID, guestID string, iv booking.Interval) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.entries {
		if entry.UnitID == unitID && entry.GuestID == guestID &&
			entry.Interval == iv && entry.Status.IsActive() {
			return entry, nil
		}
	}

	return nil, booking.ErrRecordNotFound
}

func (f *fakeStore) ListActiveEntriesByUnit(_ context.Context, unitID string) ([]*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Entries are appended in creation order, which is what FIFO promotion
	// relies on.
	var out []*Entry

	for _, entry := range f.entries {
		if entry.UnitID == unitID && entry.Status.IsActive() {
			out = append(out, entry)
		}
	}

	return out, nil
}

func (f *fakeStore) ListActiveEntries(context.Context) ([]*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*Entry

	for _, entry := range f.entries {
		if entry.Status.IsActive() {
			out = append(out, entry)
		}
	}

	return out, nil
}

func (f *fakeStore) ListEntriesByGuest(_ context.Context, guestID, unitID string) ([]*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*Entry

	for _, entry := range f.entries {
		if entry.GuestID != guestID {
			continue
		}

		if unitID != "" && entry.UnitID != unitID {
			continue
		}

		out = append(out, entry)
	}

	return out, nil
}

func (f *fakeStore) UpdateEntryStatus(_ context.Context, id string, status EntryStatus, notifiedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.entries {
		if entry.ID == id {
			entry.Status = status

			if notifiedAt != nil {
				entry.NotifiedAt = notifiedAt
			}

			return nil
		}
	}

	return booking.ErrRecordNotFound
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Enqueue(msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.msgs = append(n.msgs, msg)
}

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestManager(t *testing.T) (*Manager, *fakeStore, *recordingNotifier) {
	t.Helper()

	store := &fakeStore{}
	notifier := &recordingNotifier{}

	m := New(Config{
		L:           logger.New(log.Default()),
		Storage:     store,
		IDGenerator: seq.New("entry"),
		Notifier:    notifier,
	})
	m.now = func() time.Time { return testNow }

	return m, store, notifier
}

func joinInput(guestID string, checkIn, checkOut time.Time) *JoinInput {
	return &JoinInput{
		UnitID:     "unit-1",
		GuestID:    guestID,
		GuestEmail: guestID + "@example.com",
		CheckIn:    checkIn,
		CheckOut:   checkOut,
	}
}

func TestJoin(t *testing.T) {
	m, _, _ := newTestManager(t)

	entry, err := m.Join(context.Background(), joinInput("guest-1", date(2026, time.June, 10), date(2026, time.June, 12)))
	require.NoError(t, err)

	assert.Equal(t, EntryPending, entry.Status)
	assert.Equal(t, "unit-1", entry.UnitID)
	assert.Nil(t, entry.NotifiedAt)
}

func TestJoin_Validation(t *testing.T) {
	m, _, _ := newTestManager(t)

	input := joinInput("", date(2026, time.June, 12), date(2026, time.June, 10))
	input.GuestEmail = "nope"

	_, err := m.Join(context.Background(), input)

	inputErr := booking.IsInputError(err)
	require.NotNil(t, inputErr)
	assert.Contains(t, inputErr.Fields(), "guest_id")
	assert.Contains(t, inputErr.Fields(), "guest_email")
	assert.Contains(t, inputErr.Fields(), "check_in")
}

func TestJoin_DuplicateEntry(t *testing.T) {
	m, _, _ := newTestManager(t)

	input := joinInput("guest-1", date(2026, time.June, 10), date(2026, time.June, 12))

	_, err := m.Join(context.Background(), input)
	require.NoError(t, err)

	_, err = m.Join(context.Background(), input)
	require.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestJoin_DifferentDatesNotDuplicate(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Join(context.Background(), joinInput("guest-1", date(2026, time.June, 10), date(2026, time.June, 12)))
	require.NoError(t, err)

	_, err = m.Join(context.Background(), joinInput("guest-1", date(2026, time.June, 12), date(2026, time.June, 14)))
	require.NoError(t, err)
}

// Three guests wait on overlapping ranges. When one reservation frees the
// unit, only the oldest entry whose full interval is clear gets notified:
// intervals promised to it count as held against the younger entries.
func TestOnUnitFreed_PromotesOldestClearEntryOnly(t *testing.T) {
	m, _, notifier := newTestManager(t)

	ctx := context.Background()

	e1, err := m.Join(ctx, joinInput("guest-1", date(2026, time.June, 10), date(2026, time.June, 12)))
	require.NoError(t, err)

	e2, err := m.Join(ctx, joinInput("guest-2", date(2026, time.June, 11), date(2026, time.June, 13)))
	require.NoError(t, err)

	e3, err := m.Join(ctx, joinInput("guest-3", date(2026, time.June, 10), date(2026, time.June, 11)))
	require.NoError(t, err)

	freed := booking.NewInterval(date(2026, time.June, 10), date(2026, time.June, 12))
	require.NoError(t, m.OnUnitFreed(ctx, "unit-1", freed))

	assert.Equal(t, EntryNotified, e1.Status)
	require.NotNil(t, e1.NotifiedAt)
	assert.Equal(t, EntryPending, e2.Status)
	assert.Equal(t, EntryPending, e3.Status)

	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, notify.KindSpotAvailable, notifier.msgs[0].Kind)
	assert.Equal(t, e1.ID, notifier.msgs[0].EntryID)
	assert.Equal(t, "guest-1@example.com", notifier.msgs[0].To)
}

func TestOnUnitFreed_SkipsEntriesBlockedByReservations(t *testing.T) {
	m, store, notifier := newTestManager(t)

	ctx := context.Background()

	// unit-1 still has an active stay covering June 10-12.
	store.reservations = append(store.reservations, &booking.Reservation{
		ID:       "res-1",
		UnitID:   "unit-1",
		GuestID:  "guest-0",
		Interval: booking.NewInterval(date(2026, time.June, 10), date(2026, time.June, 12)),
		Status:   booking.ReservationConfirmed,
	})

	blocked, err := m.Join(ctx, joinInput("guest-1", date(2026, time.June, 11), date(2026, time.June, 13)))
	require.NoError(t, err)

	unblocked, err := m.Join(ctx, joinInput("guest-2", date(2026, time.June, 12), date(2026, time.June, 14)))
	require.NoError(t, err)

	freed := booking.NewInterval(date(2026, time.June, 12), date(2026, time.June, 14))
	require.NoError(t, m.OnUnitFreed(ctx, "unit-1", freed))

	// The older entry needs June 11, which is still occupied. Partially
	// free ranges are never offered, so the younger clear entry wins.
	assert.Equal(t, EntryPending, blocked.Status)
	assert.Equal(t, EntryNotified, unblocked.Status)

	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, unblocked.ID, notifier.msgs[0].EntryID)
}

func TestOnUnitFreed_PromotesDisjointEntriesTogether(t *testing.T) {
	m, _, notifier := newTestManager(t)

	ctx := context.Background()

	e1, err := m.Join(ctx, joinInput("guest-1", date(2026, time.June, 10), date(2026, time.June, 12)))
	require.NoError(t, err)

	e2, err := m.Join(ctx, joinInput("guest-2", date(2026, time.June, 12), date(2026, time.June, 14)))
	require.NoError(t, err)

	freed := booking.NewInterval(date(2026, time.June, 10), date(2026, time.June, 14))
	require.NoError(t, m.OnUnitFreed(ctx, "unit-1", freed))

	assert.Equal(t, EntryNotified, e1.Status)
	assert.Equal(t, EntryNotified, e2.Status)
	assert.Len(t, notifier.msgs, 2)
}

func TestExpireStale(t *testing.T) {
	m, store, _ := newTestManager(t)

	ctx := context.Background()

	past, err := m.Join(ctx, joinInput("guest-1", date(2026, time.April, 1), date(2026, time.April, 3)))
	require.NoError(t, err)

	windowElapsed, err := m.Join(ctx, joinInput("guest-2", date(2026, time.June, 10), date(2026, time.June, 12)))
	require.NoError(t, err)

	fresh, err := m.Join(ctx, joinInput("guest-3", date(2026, time.June, 20), date(2026, time.June, 22)))
	require.NoError(t, err)

	notifiedAt := date(2026, time.April, 10)
	require.NoError(t, store.UpdateEntryStatus(ctx, windowElapsed.ID, EntryNotified, &notifiedAt))

	// Sweep well past both the first entry's check-in and the second
	// entry's 48h response window.
	expired, err := m.ExpireStale(ctx, date(2026, time.May, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	assert.Equal(t, EntryExpired, past.Status)
	assert.Equal(t, EntryExpired, windowElapsed.Status)
	assert.Equal(t, EntryPending, fresh.Status)
}

func TestExpireStale_KeepsNotifiedInsideWindow(t *testing.T) {
	m, store, _ := newTestManager(t)

	ctx := context.Background()

	entry, err := m.Join(ctx, joinInput("guest-1", date(2026, time.June, 10), date(2026, time.June, 12)))
	require.NoError(t, err)

	notifiedAt := testNow
	require.NoError(t, store.UpdateEntryStatus(ctx, entry.ID, EntryNotified, &notifiedAt))

	expired, err := m.ExpireStale(ctx, testNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Equal(t, EntryNotified, entry.Status)
}

func TestMarkBooked(t *testing.T) {
	m, store, _ := newTestManager(t)

	ctx := context.Background()

	entry, err := m.Join(ctx, joinInput("guest-1", date(2026, time.June, 10), date(2026, time.June, 12)))
	require.NoError(t, err)

	// Only a notified entry can be claimed.
	require.ErrorIs(t, m.MarkBooked(ctx, entry.ID), ErrNotNotified)

	notifiedAt := testNow
	require.NoError(t, store.UpdateEntryStatus(ctx, entry.ID, EntryNotified, &notifiedAt))

	require.NoError(t, m.MarkBooked(ctx, entry.ID))
	assert.Equal(t, EntryBooked, entry.Status)

	require.ErrorIs(t, m.MarkBooked(ctx, "missing"), ErrEntryNotFound)
}

func TestListByGuest(t *testing.T) {
	m, _, _ := newTestManager(t)

	ctx := context.Background()

	_, err := m.Join(ctx, joinInput("guest-1", date(2026, time.June, 10), date(2026, time.June, 12)))
	require.NoError(t, err)

	other := joinInput("guest-1", date(2026, time.June, 10), date(2026, time.June, 12))
	other.UnitID = "unit-2"

	_, err = m.Join(ctx, other)
	require.NoError(t, err)

	all, err := m.ListByGuest(ctx, "guest-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := m.ListByGuest(ctx, "guest-1", "unit-2")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "unit-2", scoped[0].UnitID)

	_, err = m.ListByGuest(ctx, "", "")
	require.NotNil(t, booking.IsInputError(err))
}
