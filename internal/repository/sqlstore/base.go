package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

const deadlockRetries = 2

// withLockingTx runs fn in a transaction and retries it when the database
// aborts it as a deadlock victim.
func (r *BaseRepository) withLockingTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	backoff := retry.WithMaxRetries(deadlockRetries, retry.NewExponential(20*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := r.WithTx(ctx, fn)
		if isDeadlock(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// dayLockStatements returns the statement that creates the lock row for a
// date and whether a SELECT ... FOR UPDATE is needed afterwards. On MySQL the
// no-op ON DUPLICATE KEY UPDATE already takes the exclusive row lock; INSERT
// IGNORE would take a shared one and deadlock on the upgrade.
func dayLockStatements(driver string) (string, bool) {
	if driver == DriverMySQL {
		return `INSERT INTO appointment_day_locks (lock_date) VALUES (?)
			ON DUPLICATE KEY UPDATE lock_date = lock_date`, false
	}
	return `INSERT INTO appointment_day_locks (lock_date) VALUES (?)
		ON CONFLICT (lock_date) DO NOTHING`, true
}

// lockDay serialises writers for one calendar date until the transaction ends.
func (r *BaseRepository) lockDay(ctx context.Context, tx *sqlx.Tx, date string) error {
	upsert, selectForUpdate := dayLockStatements(r.db.DriverName())
	if _, err := tx.ExecContext(ctx, tx.Rebind(upsert), date); err != nil {
		return fmt.Errorf("failed to create day lock: %w", err)
	}
	if !selectForUpdate {
		return nil
	}

	var locked string
	query := tx.Rebind(`SELECT lock_date FROM appointment_day_locks WHERE lock_date = ? FOR UPDATE`)
	if err := tx.GetContext(ctx, &locked, query, date); err != nil {
		return fmt.Errorf("failed to lock day: %w", err)
	}
	return nil
}

func insertOutboxEvent(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	if event == nil {
		return nil
	}
	query := tx.Rebind(`
		INSERT INTO outbox_events (
			id, event_type, payload, status, retry_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := tx.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		string(event.Payload),
		event.Status,
		event.RetryCount,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}
