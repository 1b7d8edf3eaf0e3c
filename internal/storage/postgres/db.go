package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/stayware/booking/internal/booking"
	"github.com/stayware/booking/internal/catalog"
	"github.com/stayware/booking/internal/logger"
	"github.com/stayware/booking/internal/policy"
	"github.com/stayware/booking/internal/waitlist"
)

// Store implements the booking, waitlist and catalog storage contracts on
// PostgreSQL. See schema.sql for the expected tables.
type Store struct {
	db *sql.DB
	l  *logger.Logger
}

func New(db *sql.DB, l *logger.Logger) *Store {
	return &Store{db: db, l: l}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// q returns the open section's transaction when the ctx carries one, the
// pool otherwise.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}

	return s.db
}

var ErrNoOpenSection = errors.New("no open unit section in ctx")

// BeginUnitSection opens a transaction and takes a per-unit advisory lock, so
// read-then-write sequences on the same unit serialize while different units
// proceed independently.
func (s *Store) BeginUnitSection(ctx context.Context, unitID string) (context.Context, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
		ReadOnly:  false,
	})
	if err != nil {
		return ctx, fmt.Errorf("begin tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, unitID); err != nil {
		_ = tx.Rollback()

		return ctx, fmt.Errorf("lock unit %v: %w", unitID, err)
	}

	return withTx(ctx, tx), nil
}

func (s *Store) CommitSection(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrNoOpenSection
	}

	if err := tx.Commit(); err != nil {
		return mapConflict(err)
	}

	return nil
}

func (s *Store) RollbackSection(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrNoOpenSection
	}

	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}

	return nil
}

// mapConflict translates serialization and uniqueness failures into the
// sentinel the admission manager retries on.
func mapConflict(err error) error {
	var pqErr *pq.Error

	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505", "23P01":
			return fmt.Errorf("%v: %w", pqErr.Code, booking.ErrTxConflict)
		}
	}

	return fmt.Errorf("commit tx: %w", err)
}

const reservationColumns = `id, unit_id, guest_id, guest_email, check_in, check_out, total_amount, status, created_at`

func scanReservation(row interface{ Scan(dest ...any) error }) (*booking.Reservation, error) {
	var res booking.Reservation

	err := row.Scan(
		&res.ID,
		&res.UnitID,
		&res.GuestID,
		&res.GuestEmail,
		&res.Interval.CheckIn,
		&res.Interval.CheckOut,
		&res.TotalAmount,
		&res.Status,
		&res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

func (s *Store) SaveReservation(ctx context.Context, res *booking.Reservation) error {
	var key *string

	if k, ok := booking.IdempotencyKeyFromContext(ctx); ok && k != "" {
		key = &k
	}

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO reservation (id, unit_id, guest_id, guest_email, check_in, check_out, total_amount, status, created_at, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		res.ID,
		res.UnitID,
		res.GuestID,
		res.GuestEmail,
		res.Interval.CheckIn,
		res.Interval.CheckOut,
		res.TotalAmount,
		res.Status,
		res.CreatedAt,
		key,
	)
	if err != nil {
		return mapConflict(err)
	}

	return nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (*booking.Reservation, error) {
	res, err := scanReservation(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservation WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrRecordNotFound
		}

		return nil, fmt.Errorf("query reservation %v: %w", id, err)
	}

	return res, nil
}

func (s *Store) GetReservationByIdempotencyKey(ctx context.Context) (*booking.Reservation, error) {
	key, ok := booking.IdempotencyKeyFromContext(ctx)
	if !ok || key == "" {
		return nil, booking.ErrRecordNotFound
	}

	res, err := scanReservation(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservation WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrRecordNotFound
		}

		return nil, fmt.Errorf("query reservation by idempotency key: %w", err)
	}

	return res, nil
}

func (s *Store) listReservations(ctx context.Context, query string, args ...any) ([]*booking.Reservation, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var result []*booking.Reservation

	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}

		result = append(result, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}

	return result, nil
}

func (s *Store) ListActiveReservations(ctx context.Context, unitID string) ([]*booking.Reservation, error) {
	return s.listReservations(ctx, `
		SELECT `+reservationColumns+`
		FROM reservation
		WHERE unit_id = $1 AND status IN ('pending', 'confirmed')
		ORDER BY check_in`,
		unitID,
	)
}

func (s *Store) ListReservationsByGuest(ctx context.Context, guestID string) ([]*booking.Reservation, error) {
	return s.listReservations(ctx, `
		SELECT `+reservationColumns+`
		FROM reservation
		WHERE guest_id = $1
		ORDER BY created_at DESC`,
		guestID,
	)
}

func (s *Store) ListDueCompletion(ctx context.Context, now time.Time) ([]*booking.Reservation, error) {
	return s.listReservations(ctx, `
		SELECT `+reservationColumns+`
		FROM reservation
		WHERE status = 'confirmed' AND check_out <= $1`,
		now,
	)
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id string, status booking.ReservationStatus) error {
	result, err := s.q(ctx).ExecContext(ctx,
		`UPDATE reservation SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update reservation %v status: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return booking.ErrRecordNotFound
	}

	return nil
}

const entryColumns = `id, unit_id, guest_id, guest_email, check_in, check_out, status, created_at, notified_at`

func scanEntry(row interface{ Scan(dest ...any) error }) (*waitlist.Entry, error) {
	var (
		entry      waitlist.Entry
		notifiedAt sql.NullTime
	)

	err := row.Scan(
		&entry.ID,
		&entry.UnitID,
		&entry.GuestID,
		&entry.GuestEmail,
		&entry.Interval.CheckIn,
		&entry.Interval.CheckOut,
		&entry.Status,
		&entry.CreatedAt,
		&notifiedAt,
	)
	if err != nil {
		return nil, err
	}

	if notifiedAt.Valid {
		entry.NotifiedAt = &notifiedAt.Time
	}

	return &entry, nil
}

func (s *Store) SaveEntry(ctx context.Context, entry *waitlist.Entry) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO waitlist_entry (id, unit_id, guest_id, guest_email, check_in, check_out, status, created_at, notified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID,
		entry.UnitID,
		entry.GuestID,
		entry.GuestEmail,
		entry.Interval.CheckIn,
		entry.Interval.CheckOut,
		entry.Status,
		entry.CreatedAt,
		entry.NotifiedAt,
	)
	if err != nil {
		return mapConflict(err)
	}

	return nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (*waitlist.Entry, error) {
	entry, err := scanEntry(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM waitlist_entry WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrRecordNotFound
		}

		return nil, fmt.Errorf("query entry %v: %w", id, err)
	}

	return entry, nil
}

func (s *Store) FindActiveEntry(
	ctx context.Context,
	unitID, guestID string,
	iv booking.Interval,
) (*waitlist.Entry, error) {
	entry, err := scanEntry(s.q(ctx).QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entry
		WHERE unit_id = $1 AND guest_id = $2 AND check_in = $3 AND check_out = $4
		  AND status IN ('pending', 'notified')
		LIMIT 1`,
		unitID, guestID, iv.CheckIn, iv.CheckOut,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrRecordNotFound
		}

		return nil, fmt.Errorf("query active entry: %w", err)
	}

	return entry, nil
}

func (s *Store) listEntries(ctx context.Context, query string, args ...any) ([]*waitlist.Entry, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var result []*waitlist.Entry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		result = append(result, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return result, nil
}

func (s *Store) ListActiveEntriesByUnit(ctx context.Context, unitID string) ([]*waitlist.Entry, error) {
	return s.listEntries(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entry
		WHERE unit_id = $1 AND status IN ('pending', 'notified')
		ORDER BY created_at`,
		unitID,
	)
}

func (s *Store) ListActiveEntries(ctx context.Context) ([]*waitlist.Entry, error) {
	return s.listEntries(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entry
		WHERE status IN ('pending', 'notified')
		ORDER BY created_at`,
	)
}

func (s *Store) ListEntriesByGuest(ctx context.Context, guestID, unitID string) ([]*waitlist.Entry, error) {
	if unitID != "" {
		return s.listEntries(ctx, `
			SELECT `+entryColumns+`
			FROM waitlist_entry
			WHERE guest_id = $1 AND unit_id = $2
			ORDER BY created_at DESC`,
			guestID, unitID,
		)
	}

	return s.listEntries(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entry
		WHERE guest_id = $1
		ORDER BY created_at DESC`,
		guestID,
	)
}

func (s *Store) UpdateEntryStatus(
	ctx context.Context,
	id string,
	status waitlist.EntryStatus,
	notifiedAt *time.Time,
) error {
	var (
		result sql.Result
		err    error
	)

	if notifiedAt != nil {
		result, err = s.q(ctx).ExecContext(ctx,
			`UPDATE waitlist_entry SET status = $2, notified_at = $3 WHERE id = $1`,
			id, status, *notifiedAt)
	} else {
		result, err = s.q(ctx).ExecContext(ctx,
			`UPDATE waitlist_entry SET status = $2 WHERE id = $1`, id, status)
	}

	if err != nil {
		return fmt.Errorf("update entry %v status: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return booking.ErrRecordNotFound
	}

	return nil
}

func (s *Store) SaveUnit(ctx context.Context, unit *catalog.Unit) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO unit (id, name, description, location, nightly_rate, policy_type, policy_description, refund_percentage, days_before_check_in, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			location = EXCLUDED.location,
			nightly_rate = EXCLUDED.nightly_rate,
			policy_type = EXCLUDED.policy_type,
			policy_description = EXCLUDED.policy_description,
			refund_percentage = EXCLUDED.refund_percentage,
			days_before_check_in = EXCLUDED.days_before_check_in`,
		unit.ID,
		unit.Name,
		unit.Description,
		unit.Location,
		unit.NightlyRate,
		unit.CancellationPolicy.Type,
		unit.CancellationPolicy.Description,
		unit.CancellationPolicy.RefundPercentage,
		unit.CancellationPolicy.DaysBeforeCheckIn,
		unit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save unit %v: %w", unit.ID, err)
	}

	return nil
}

const unitColumns = `id, name, description, location, nightly_rate, policy_type, policy_description, refund_percentage, days_before_check_in, created_at`

func scanUnit(row interface{ Scan(dest ...any) error }) (*catalog.Unit, error) {
	var (
		unit       catalog.Unit
		policyType string
	)

	err := row.Scan(
		&unit.ID,
		&unit.Name,
		&unit.Description,
		&unit.Location,
		&unit.NightlyRate,
		&policyType,
		&unit.CancellationPolicy.Description,
		&unit.CancellationPolicy.RefundPercentage,
		&unit.CancellationPolicy.DaysBeforeCheckIn,
		&unit.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	unit.CancellationPolicy.Type = policy.Type(policyType)

	return &unit, nil
}

func (s *Store) GetUnit(ctx context.Context, id string) (*catalog.Unit, error) {
	unit, err := scanUnit(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM unit WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrRecordNotFound
		}

		return nil, fmt.Errorf("query unit %v: %w", id, err)
	}

	return unit, nil
}

func (s *Store) SearchUnits(ctx context.Context, filter catalog.Filter) ([]*catalog.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM unit WHERE 1=1`

	var args []any

	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		query += fmt.Sprintf(` AND (name ILIKE $%d OR description ILIKE $%d)`, len(args), len(args))
	}

	if filter.Location != "" {
		args = append(args, "%"+filter.Location+"%")
		query += fmt.Sprintf(` AND location ILIKE $%d`, len(args))
	}

	if filter.MinPrice > 0 {
		args = append(args, filter.MinPrice)
		query += fmt.Sprintf(` AND nightly_rate >= $%d`, len(args))
	}

	if filter.MaxPrice > 0 {
		args = append(args, filter.MaxPrice)
		query += fmt.Sprintf(` AND nightly_rate <= $%d`, len(args))
	}

	query += ` ORDER BY created_at DESC`

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	var result []*catalog.Unit

	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}

		result = append(result, unit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}

	return result, nil
}
