package repository

import (
	"context"
	"database/sql"
	"errors"

	"parkgate/internal/models"
)

// ErrSessionNotFound indicates no matching parking session.
var ErrSessionNotFound = errors.New("parking session not found")

// SessionRepository persists parking sessions in Postgres.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert stores a freshly created session.
func (r *SessionRepository) Insert(ctx context.Context, session *models.ParkingSession) error {
	const query = `
		INSERT INTO parking_sessions (id, plate, zone, entry_time, exit_time, is_paid, amount_due, image_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		session.ID,
		session.Plate,
		session.Zone,
		session.EntryTime,
		session.ExitTime,
		session.IsPaid,
		session.AmountDue,
		session.ImagePath,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
}

// FindActiveByPlate returns the active session whose plate matches exactly.
func (r *SessionRepository) FindActiveByPlate(ctx context.Context, plate string) (*models.ParkingSession, error) {
	const query = `
		SELECT id, plate, zone, entry_time, exit_time, is_paid, amount_due, image_path, created_at, updated_at
		FROM parking_sessions
		WHERE plate = $1 AND exit_time IS NULL
		ORDER BY entry_time ASC
		LIMIT 1
	`
	var s models.ParkingSession
	err := r.db.QueryRowContext(ctx, query, plate).Scan(
		&s.ID,
		&s.Plate,
		&s.Zone,
		&s.EntryTime,
		&s.ExitTime,
		&s.IsPaid,
		&s.AmountDue,
		&s.ImagePath,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListActive returns all active sessions in a stable order (oldest entry first).
func (r *SessionRepository) ListActive(ctx context.Context) ([]models.ParkingSession, error) {
	const query = `
		SELECT id, plate, zone, entry_time, exit_time, is_paid, amount_due, image_path, created_at, updated_at
		FROM parking_sessions
		WHERE exit_time IS NULL
		ORDER BY entry_time ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ParkingSession
	for rows.Next() {
		var s models.ParkingSession
		if err := rows.Scan(
			&s.ID,
			&s.Plate,
			&s.Zone,
			&s.EntryTime,
			&s.ExitTime,
			&s.IsPaid,
			&s.AmountDue,
			&s.ImagePath,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Update rewrites mutable session fields (exit time, payment state).
func (r *SessionRepository) Update(ctx context.Context, session *models.ParkingSession) error {
	const query = `
		UPDATE parking_sessions
		SET exit_time = $2,
		    is_paid = $3,
		    amount_due = $4,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.ExitTime,
		session.IsPaid,
		session.AmountDue,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}
