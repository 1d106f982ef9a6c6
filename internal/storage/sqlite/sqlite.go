package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/andresedu1996/agenda-backend/internal/storage/models"
	apperrors "github.com/andresedu1996/agenda-backend/pkg/errors"
	"github.com/andresedu1996/agenda-backend/pkg/metrics"

	_ "modernc.org/sqlite"
)

// SQLiteStorage implements the Storage interface on SQLite.
type SQLiteStorage struct {
	db  *sql.DB
	hub *changeHub
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single write connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	storage := &SQLiteStorage{db: db, hub: newChangeHub()}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return storage, nil
}

// migrate applies the schema.
func (s *SQLiteStorage) migrate() error {
	// WAL mode for better concurrency
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if _, err := s.db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			service_area TEXT NOT NULL,
			capacity INTEGER NOT NULL DEFAULT 1,
			offer_slots TEXT NOT NULL DEFAULT '{}',
			contact TEXT NOT NULL DEFAULT '',
			approved INTEGER NOT NULL DEFAULT 0,
			approved_by TEXT NOT NULL DEFAULT '',
			approved_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS requesters (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			contact TEXT NOT NULL DEFAULT '',
			chat_id INTEGER NOT NULL DEFAULT 0,
			waiting INTEGER NOT NULL DEFAULT 0,
			last_booking_id TEXT NOT NULL DEFAULT '',
			last_booking_date TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			requester_id TEXT NOT NULL,
			provider_name TEXT NOT NULL DEFAULT '',
			requester_name TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL,
			slot TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'medium',
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			resolved_at DATETIME,
			FOREIGN KEY(provider_id) REFERENCES providers(id),
			FOREIGN KEY(requester_id) REFERENCES requesters(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_provider_date ON bookings(provider_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_requester ON bookings(requester_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requesters_name ON requesters(name)`,
		`CREATE INDEX IF NOT EXISTS idx_providers_area ON providers(service_area)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// statusPlaceholders builds a "?,?,..." list and the matching args for an
// IN clause over statuses.
func statusPlaceholders(statuses []models.Status) (string, []interface{}) {
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	return strings.Join(placeholders, ","), args
}

// ---- providers ----

// CreateProvider inserts a new provider.
func (s *SQLiteStorage) CreateProvider(ctx context.Context, p *models.Provider) error {
	offer, err := json.Marshal(p.OfferSlots)
	if err != nil {
		return fmt.Errorf("failed to encode offer slots: %w", err)
	}

	query := `INSERT INTO providers (id, name, service_area, capacity, offer_slots, contact, approved, approved_by, approved_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var approvedAt interface{}
	if p.ApprovedAt != nil {
		approvedAt = *p.ApprovedAt
	}

	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.ServiceArea, p.EffectiveCapacity(), string(offer), p.Contact,
		p.Approved, p.ApprovedBy, approvedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		metrics.RecordDatabaseOperation("insert", "providers", "error")
		return fmt.Errorf("failed to create provider: %w", err)
	}

	metrics.RecordDatabaseOperation("insert", "providers", "ok")
	return nil
}

const providerColumns = `id, name, service_area, capacity, offer_slots, contact, approved, approved_by, approved_at, created_at, updated_at`

// scanProvider scans one provider row.
func scanProvider(row interface{ Scan(...interface{}) error }) (*models.Provider, error) {
	p := &models.Provider{}
	var offer string
	var approvedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.Name, &p.ServiceArea, &p.Capacity, &offer, &p.Contact,
		&p.Approved, &p.ApprovedBy, &approvedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if approvedAt.Valid {
		t := approvedAt.Time
		p.ApprovedAt = &t
	}

	if err := json.Unmarshal([]byte(offer), &p.OfferSlots); err != nil {
		// Malformed offer definitions degrade to an empty offer instead
		// of failing the read.
		p.OfferSlots = models.OfferSlots{}
	}

	return p, nil
}

// GetProviderByID fetches a provider by id.
func (s *SQLiteStorage) GetProviderByID(ctx context.Context, id string) (*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = ?`

	p, err := scanProvider(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return p, nil
}

// ListProviders lists providers, optionally filtered by service area and
// approval state, ordered by name.
func (s *SQLiteStorage) ListProviders(ctx context.Context, serviceArea string, approvedOnly bool) ([]*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers`
	var conds []string
	var args []interface{}

	if serviceArea != "" {
		conds = append(conds, "service_area = ?")
		args = append(args, serviceArea)
	}
	if approvedOnly {
		conds = append(conds, "approved = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}

	return providers, rows.Err()
}

// ApproveProvider flips the approval flag and records who approved and when.
func (s *SQLiteStorage) ApproveProvider(ctx context.Context, id, approvedBy string, approvedAt time.Time) error {
	query := `UPDATE providers SET approved = 1, approved_by = ?, approved_at = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, approvedBy, approvedAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to approve provider: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrProviderNotFound
	}

	return nil
}

// ---- requesters ----

// CreateRequester inserts a new requester.
func (s *SQLiteStorage) CreateRequester(ctx context.Context, r *models.Requester) error {
	query := `INSERT INTO requesters (id, name, contact, chat_id, waiting, last_booking_id, last_booking_date, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Name, r.Contact, r.ChatID, r.Waiting, r.LastBookingID, r.LastBookingDate,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		metrics.RecordDatabaseOperation("insert", "requesters", "error")
		return fmt.Errorf("failed to create requester: %w", err)
	}

	metrics.RecordDatabaseOperation("insert", "requesters", "ok")
	return nil
}

const requesterColumns = `id, name, contact, chat_id, waiting, last_booking_id, last_booking_date, created_at, updated_at`

// scanRequester scans one requester row.
func scanRequester(row interface{ Scan(...interface{}) error }) (*models.Requester, error) {
	r := &models.Requester{}
	err := row.Scan(
		&r.ID, &r.Name, &r.Contact, &r.ChatID, &r.Waiting, &r.LastBookingID,
		&r.LastBookingDate, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRequesterByID fetches a requester by id.
func (s *SQLiteStorage) GetRequesterByID(ctx context.Context, id string) (*models.Requester, error) {
	query := `SELECT ` + requesterColumns + ` FROM requesters WHERE id = ?`

	r, err := scanRequester(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrRequesterNotFound
		}
		return nil, fmt.Errorf("failed to get requester: %w", err)
	}

	return r, nil
}

// FindRequesterByIdentifier looks a requester up by exact id first, then by
// exact name. A miss returns (nil, nil) so callers can auto-provision.
func (s *SQLiteStorage) FindRequesterByIdentifier(ctx context.Context, identifier string) (*models.Requester, error) {
	query := `SELECT ` + requesterColumns + ` FROM requesters WHERE id = ?`

	r, err := scanRequester(s.db.QueryRowContext(ctx, query, identifier))
	if err == nil {
		return r, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to find requester by id: %w", err)
	}

	query = `SELECT ` + requesterColumns + ` FROM requesters WHERE name = ? LIMIT 1`

	r, err = scanRequester(s.db.QueryRowContext(ctx, query, identifier))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find requester by name: %w", err)
	}

	return r, nil
}

// UpdateRequesterDenormalized refreshes the requester's cached waiting flag
// and last-booking reference.
func (s *SQLiteStorage) UpdateRequesterDenormalized(ctx context.Context, id string, waiting bool, lastBookingID, lastBookingDate string) error {
	query := `UPDATE requesters SET waiting = ?, last_booking_id = ?, last_booking_date = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, waiting, lastBookingID, lastBookingDate, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update requester: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrRequesterNotFound
	}

	return nil
}

// ---- bookings ----

const bookingColumns = `id, provider_id, requester_id, provider_name, requester_name, date, slot, priority, status, reason, notes, created_at, resolved_at`

// scanBooking scans one booking row.
func scanBooking(row interface{ Scan(...interface{}) error }) (*models.Booking, error) {
	b := &models.Booking{}
	var resolvedAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.ProviderID, &b.RequesterID, &b.ProviderName, &b.RequesterName,
		&b.Date, &b.Slot, &b.Priority, &b.Status, &b.Reason, &b.Notes,
		&b.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		b.ResolvedAt = &t
	}

	return b, nil
}

// CreateBookingIfSlotAvailable inserts the booking only while the pending
// occupancy of its (provider, date, slot) is below capacity. The occupancy
// check and the insert share one transaction, so two concurrent attempts at
// the last free seat cannot both commit.
func (s *SQLiteStorage) CreateBookingIfSlotAvailable(ctx context.Context, b *models.Booking, capacity int) error {
	if capacity <= 0 {
		capacity = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.ErrStoreUnavailable.WithError(err)
	}
	defer tx.Rollback()

	inClause, args := statusPlaceholders(models.PendingStatuses)
	countQuery := `SELECT COUNT(*) FROM bookings WHERE provider_id = ? AND date = ? AND slot = ? AND status IN (` + inClause + `)`
	countArgs := append([]interface{}{b.ProviderID, b.Date, b.Slot}, args...)

	var used int
	if err := tx.QueryRowContext(ctx, countQuery, countArgs...).Scan(&used); err != nil {
		return fmt.Errorf("failed to count slot occupancy: %w", err)
	}

	if used >= capacity {
		metrics.RecordSlotConflict()
		return apperrors.ErrSlotExhausted
	}

	insertQuery := `INSERT INTO bookings (id, provider_id, requester_id, provider_name, requester_name, date, slot, priority, status, reason, notes, created_at, resolved_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`

	_, err = tx.ExecContext(ctx, insertQuery,
		b.ID, b.ProviderID, b.RequesterID, b.ProviderName, b.RequesterName,
		b.Date, b.Slot, string(b.Priority), string(b.Status), b.Reason, b.Notes,
		b.CreatedAt,
	)
	if err != nil {
		metrics.RecordDatabaseOperation("insert", "bookings", "error")
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordDatabaseOperation("insert", "bookings", "error")
		return apperrors.ErrStoreUnavailable.WithError(err)
	}

	metrics.RecordDatabaseOperation("insert", "bookings", "ok")
	s.hub.broadcast()
	return nil
}

// GetBookingByID fetches a booking by id.
func (s *SQLiteStorage) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`

	b, err := scanBooking(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return b, nil
}

// queryBookings runs a booking query and scans all rows.
func (s *SQLiteStorage) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}

// ListBookingsForProviderOnDate lists a provider's bookings on a date in
// the given statuses, ordered by slot.
func (s *SQLiteStorage) ListBookingsForProviderOnDate(ctx context.Context, providerID, date string, statuses []models.Status) ([]*models.Booking, error) {
	inClause, args := statusPlaceholders(statuses)
	query := `SELECT ` + bookingColumns + ` FROM bookings
			  WHERE provider_id = ? AND date = ? AND status IN (` + inClause + `)
			  ORDER BY slot, created_at`

	return s.queryBookings(ctx, query, append([]interface{}{providerID, date}, args...)...)
}

// ListBookingsByStatus lists all bookings in the given statuses, oldest
// first.
func (s *SQLiteStorage) ListBookingsByStatus(ctx context.Context, statuses []models.Status) ([]*models.Booking, error) {
	inClause, args := statusPlaceholders(statuses)
	query := `SELECT ` + bookingColumns + ` FROM bookings
			  WHERE status IN (` + inClause + `)
			  ORDER BY created_at, id`

	return s.queryBookings(ctx, query, args...)
}

// ListBookingsForRequester lists a requester's bookings in the given
// statuses, newest first.
func (s *SQLiteStorage) ListBookingsForRequester(ctx context.Context, requesterID string, statuses []models.Status) ([]*models.Booking, error) {
	inClause, args := statusPlaceholders(statuses)
	query := `SELECT ` + bookingColumns + ` FROM bookings
			  WHERE requester_id = ? AND status IN (` + inClause + `)
			  ORDER BY created_at DESC, id`

	return s.queryBookings(ctx, query, append([]interface{}{requesterID}, args...)...)
}

// TransitionBookingStatus conditionally moves a booking between statuses.
// Zero affected rows with an existing booking is not an error: the
// transition already happened.
func (s *SQLiteStorage) TransitionBookingStatus(ctx context.Context, id string, from []models.Status, to models.Status, resolvedAt *time.Time) (bool, error) {
	inClause, args := statusPlaceholders(from)
	query := `UPDATE bookings SET status = ?, resolved_at = ? WHERE id = ? AND status IN (` + inClause + `)`

	var resolved interface{}
	if resolvedAt != nil {
		resolved = *resolvedAt
	}

	result, err := s.db.ExecContext(ctx, query, append([]interface{}{string(to), resolved, id}, args...)...)
	if err != nil {
		return false, fmt.Errorf("failed to transition booking status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		// Distinguish "already transitioned" from "no such booking".
		if _, err := s.GetBookingByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	s.hub.broadcast()
	return true, nil
}

// UpdateBookingPriority changes a booking's priority tier.
func (s *SQLiteStorage) UpdateBookingPriority(ctx context.Context, id string, priority models.Priority) error {
	query := `UPDATE bookings SET priority = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, string(priority), id)
	if err != nil {
		return fmt.Errorf("failed to update booking priority: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrBookingNotFound
	}

	s.hub.broadcast()
	return nil
}

// WatchBookingsByStatus re-queries and delivers the full matching set on
// every booking mutation until ctx is cancelled.
func (s *SQLiteStorage) WatchBookingsByStatus(ctx context.Context, statuses []models.Status) (<-chan []*models.Booking, error) {
	// Subscribe before the initial query: a mutation committed between the
	// two leaves a pending signal instead of being lost.
	signal, unsubscribe := s.hub.subscribe()

	initial, err := s.ListBookingsByStatus(ctx, statuses)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	out := make(chan []*models.Booking, 1)
	out <- initial

	go func() {
		defer close(out)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				set, err := s.ListBookingsByStatus(ctx, statuses)
				if err != nil {
					// The query only fails once the store or context is
					// going away; stop the subscription.
					return
				}
				select {
				case out <- set:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
