package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

const appointmentColumns = `id, user_id, appointment_date, appointment_time, purpose,
	notes, status, cancel_reason, created_at, updated_at`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

func (r *appointmentRepository) ListByDate(ctx context.Context, date string) ([]model.Appointment, error) {
	query := r.db.Rebind(`
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE appointment_date = ?
		ORDER BY appointment_time ASC
	`)

	appointments := []model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, date); err != nil {
		return nil, fmt.Errorf("failed to list appointments for %s: %w", date, err)
	}
	return appointments, nil
}

func (r *appointmentRepository) countOccupying(ctx context.Context, tx *sqlx.Tx, date string, exclude *uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM appointments WHERE appointment_date = ? AND status <> ?`
	args := []interface{}{date, model.AppointmentStatusCancelled}
	if exclude != nil {
		query += ` AND id <> ?`
		args = append(args, *exclude)
	}

	var n int
	if err := tx.GetContext(ctx, &n, tx.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return n, nil
}

func (r *appointmentRepository) guardCapacity(ctx context.Context, tx *sqlx.Tx, date string, capacity int, exclude *uuid.UUID) error {
	if err := r.lockDay(ctx, tx, date); err != nil {
		return err
	}
	n, err := r.countOccupying(ctx, tx, date, exclude)
	if err != nil {
		return err
	}
	if n >= capacity {
		return repository.ErrDateFullyBooked
	}
	return nil
}

func (r *appointmentRepository) CreateWithinCapacity(ctx context.Context, apt *model.Appointment, capacity int, event *model.OutboxEvent) error {
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	now := time.Now().UTC()
	apt.CreatedAt = now
	apt.UpdatedAt = now

	return r.withLockingTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.guardCapacity(ctx, tx, apt.Date, capacity, nil); err != nil {
			return err
		}

		query := tx.Rebind(`
			INSERT INTO appointments (` + appointmentColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		_, err := tx.ExecContext(ctx, query,
			apt.ID,
			apt.UserID,
			apt.Date,
			apt.Time,
			apt.Purpose,
			apt.Notes,
			apt.Status,
			apt.CancelReason,
			apt.CreatedAt,
			apt.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create appointment: %w", err)
		}

		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *appointmentRepository) MoveWithinCapacity(ctx context.Context, apt *model.Appointment, capacity int, event *model.OutboxEvent) error {
	return r.withLockingTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.guardCapacity(ctx, tx, apt.Date, capacity, &apt.ID); err != nil {
			return err
		}
		if err := r.update(ctx, tx, apt); err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := r.db.Rebind(`SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`)

	var apt model.Appointment
	if err := r.db.GetContext(ctx, &apt, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) update(ctx context.Context, tx *sqlx.Tx, apt *model.Appointment) error {
	apt.UpdatedAt = time.Now().UTC()

	query := tx.Rebind(`
		UPDATE appointments
		SET appointment_date = ?, appointment_time = ?, purpose = ?, notes = ?,
			status = ?, cancel_reason = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := tx.ExecContext(ctx, query,
		apt.Date,
		apt.Time,
		apt.Purpose,
		apt.Notes,
		apt.Status,
		apt.CancelReason,
		apt.UpdatedAt,
		apt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return checkAffected(result)
}

func (r *appointmentRepository) Update(ctx context.Context, apt *model.Appointment, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.update(ctx, tx, apt); err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, apt *model.Appointment, event *model.OutboxEvent) error {
	apt.UpdatedAt = time.Now().UTC()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			UPDATE appointments SET status = ?, cancel_reason = ?, updated_at = ?
			WHERE id = ?
		`)
		result, err := tx.ExecContext(ctx, query, apt.Status, apt.CancelReason, apt.UpdatedAt, apt.ID)
		if err != nil {
			return fmt.Errorf("failed to update appointment status: %w", err)
		}
		if err := checkAffected(result); err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM appointments WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete appointment: %w", err)
		}
		if err := checkAffected(result); err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if filters == nil {
		filters = &model.AppointmentFilters{}
	}
	if filters.UserID != uuid.Nil {
		where = append(where, "user_id = ?")
		args = append(args, filters.UserID)
	}
	if filters.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filters.Status)
	}
	if filters.StartDate != "" {
		where = append(where, "appointment_date >= ?")
		args = append(args, filters.StartDate)
	}
	if filters.EndDate != "" {
		where = append(where, "appointment_date <= ?")
		args = append(args, filters.EndDate)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM appointments` + clause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	query := r.db.Rebind(`SELECT ` + appointmentColumns + ` FROM appointments` + clause +
		` ORDER BY appointment_date ASC, appointment_time ASC LIMIT ? OFFSET ?`)
	args = append(args, filters.Limit(), filters.Offset())

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, total, nil
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
