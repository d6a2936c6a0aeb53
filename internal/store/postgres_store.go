package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
)

// PostgresStore implements Store against the saga_records/
// saga_dead_letters tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, r *domain.SagaRecord) error {
	stepsJSON, err := json.Marshal(r.CompletedSteps)
	if err != nil {
		return fmt.Errorf("failed to marshal completed steps: %w", err)
	}

	query := `
		INSERT INTO saga_records (
			request_id, user_id, total_amount, original_request, status,
			completed_steps, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		r.RequestID, r.UserID, r.TotalAmount, r.OriginalRequest, r.Status.String(),
		stepsJSON, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSagaAlreadyExists
		}
		return fmt.Errorf("failed to create saga record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByRequestID(ctx context.Context, requestID string) (*domain.SagaRecord, error) {
	row := s.pool.QueryRow(ctx, selectColumns+" WHERE request_id = $1", requestID)
	return scanRecord(row)
}

func (s *PostgresStore) FindByBookingID(ctx context.Context, bookingID string) (*domain.SagaRecord, error) {
	row := s.pool.QueryRow(ctx, selectColumns+" WHERE booking_id = $1", bookingID)
	return scanRecord(row)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, requestID string, status domain.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE saga_records SET status = $2, updated_at = NOW() WHERE request_id = $1`,
		requestID, status.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSagaNotFound
	}
	return nil
}

// UpdateReservationID atomically sets <leg>_reservation_id and
// appends stepMarker to completed_steps (a no-op append if already
// present), in a single statement — the durable-store half of the
// join-point test.
func (s *PostgresStore) UpdateReservationID(ctx context.Context, requestID string, leg domain.Leg, reservationID, stepMarker string) (*domain.SagaRecord, error) {
	column, err := legColumn(leg)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE saga_records
		SET %s = $2,
			completed_steps = CASE
				WHEN completed_steps @> to_jsonb($3::text)
				THEN completed_steps
				ELSE completed_steps || to_jsonb($3::text)
			END,
			updated_at = NOW()
		WHERE request_id = $1
	`, column)

	tag, err := s.pool.Exec(ctx, query, requestID, reservationID, stepMarker)
	if err != nil {
		return nil, fmt.Errorf("failed to update reservation id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrSagaNotFound
	}

	return s.FindByRequestID(ctx, requestID)
}

// ConfirmAggregate performs the first-writer-wins transition to
// Confirmed, guarded on booking_id IS NULL so a concurrent second
// aggregator's write affects zero rows instead of violating the
// unique constraint.
func (s *PostgresStore) ConfirmAggregate(ctx context.Context, requestID, bookingID string) (*domain.SagaRecord, bool, error) {
	query := `
		UPDATE saga_records
		SET booking_id = $2,
			status = $3,
			completed_steps = CASE
				WHEN completed_steps @> to_jsonb($4::text)
				THEN completed_steps
				ELSE completed_steps || to_jsonb($4::text)
			END,
			updated_at = NOW()
		WHERE request_id = $1 AND booking_id IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, requestID, bookingID, domain.StatusConfirmed.String(), domain.StepAggregated)
	if err != nil {
		if isUniqueViolation(err) {
			record, loadErr := s.FindByRequestID(ctx, requestID)
			return record, true, loadErr
		}
		return nil, false, fmt.Errorf("failed to confirm aggregate: %w", err)
	}

	if tag.RowsAffected() == 0 {
		record, loadErr := s.FindByRequestID(ctx, requestID)
		return record, true, loadErr
	}

	record, err := s.FindByRequestID(ctx, requestID)
	return record, false, err
}

func (s *PostgresStore) SetError(ctx context.Context, requestID string, status domain.Status, errMessage, errStack string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE saga_records SET status = $2, error_message = $3, error_stack = $4, updated_at = NOW() WHERE request_id = $1`,
		requestID, status.String(), errMessage, errStack,
	)
	if err != nil {
		return fmt.Errorf("failed to set error: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindPending(ctx context.Context, olderThan time.Time) ([]*domain.SagaRecord, error) {
	rows, err := s.pool.Query(ctx,
		selectColumns+` WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC`,
		domain.StatusPending.String(), olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending sagas: %w", err)
	}
	defer rows.Close()

	var out []*domain.SagaRecord
	for rows.Next() {
		r, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AggregateStatsByUser(ctx context.Context, userID string) (*UserStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4),
			COALESCE(SUM(total_amount), 0)
		FROM saga_records WHERE user_id = $1
	`
	stats := &UserStats{UserID: userID}
	err := s.pool.QueryRow(ctx, query, userID,
		domain.StatusConfirmed.String(), domain.StatusFailed.String(), domain.StatusCompensated.String(),
	).Scan(&stats.TotalSagas, &stats.Confirmed, &stats.Failed, &stats.Compensated, &stats.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) SaveDeadLetter(ctx context.Context, dl *DeadLetter) error {
	query := `
		INSERT INTO saga_dead_letters (request_id, leg, reservation_id, error_message, error_stack, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query, dl.RequestID, string(dl.Leg), dl.ReservationID, dl.ErrorMessage, dl.ErrorStack, dl.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUnprocessedDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error) {
	query := `
		SELECT id, request_id, leg, reservation_id, error_message, error_stack, retry_count, created_at
		FROM saga_dead_letters WHERE processed = FALSE ORDER BY created_at ASC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var out []*DeadLetter
	for rows.Next() {
		var dl DeadLetter
		var leg string
		var reservationID, errStack *string
		if err := rows.Scan(&dl.ID, &dl.RequestID, &leg, &reservationID, &dl.ErrorMessage, &errStack, &dl.RetryCount, &dl.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		dl.Leg = domain.Leg(leg)
		if reservationID != nil {
			dl.ReservationID = *reservationID
		}
		if errStack != nil {
			dl.ErrorStack = *errStack
		}
		out = append(out, &dl)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkDeadLetterProcessed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE saga_dead_letters SET processed = TRUE, processed_at = NOW() WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark dead letter processed: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT request_id, booking_id, user_id, total_amount, original_request, status,
		flight_reservation_id, hotel_reservation_id, car_reservation_id,
		completed_steps, error_message, error_stack, created_at, updated_at
	FROM saga_records
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row pgx.Row) (*domain.SagaRecord, error) {
	return scanRecordRow(row)
}

func scanRecordRow(row rowScanner) (*domain.SagaRecord, error) {
	var r domain.SagaRecord
	var statusStr string
	var bookingID, flightID, hotelID, carID, errMsg, errStack *string
	var stepsJSON []byte

	err := row.Scan(
		&r.RequestID, &bookingID, &r.UserID, &r.TotalAmount, &r.OriginalRequest, &statusStr,
		&flightID, &hotelID, &carID,
		&stepsJSON, &errMsg, &errStack, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSagaNotFound
		}
		return nil, fmt.Errorf("failed to scan saga record: %w", err)
	}

	if err := (&r.Status).UnmarshalJSON([]byte(`"` + statusStr + `"`)); err != nil {
		return nil, fmt.Errorf("invalid status in storage: %w", err)
	}
	if bookingID != nil {
		r.BookingID = *bookingID
	}
	if flightID != nil {
		r.FlightReservationID = *flightID
	}
	if hotelID != nil {
		r.HotelReservationID = *hotelID
	}
	if carID != nil {
		r.CarReservationID = *carID
	}
	if errMsg != nil {
		r.ErrorMessage = *errMsg
	}
	if errStack != nil {
		r.ErrorStack = *errStack
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &r.CompletedSteps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal completed steps: %w", err)
		}
	}

	return &r, nil
}

func legColumn(l domain.Leg) (string, error) {
	switch l {
	case domain.LegFlight:
		return "flight_reservation_id", nil
	case domain.LegHotel:
		return "hotel_reservation_id", nil
	case domain.LegCar:
		return "car_reservation_id", nil
	default:
		return "", domain.ErrInvalidLeg
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
