package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDateFullyBooked is returned by the capacity-guarded writes when the
	// date already holds as many occupying appointments as its capacity.
	ErrDateFullyBooked = errors.New("no appointment slots remain for this date")
	ErrDuplicate       = errors.New("record already exists")
)

// All repository interfaces in one file
type (
	AppointmentRepository interface {
		// ListByDate returns every appointment on date, cancelled included, ordered by time.
		ListByDate(ctx context.Context, date string) ([]model.Appointment, error)
		// CreateWithinCapacity inserts apt and event in one transaction, serialised
		// per date, and fails with ErrDateFullyBooked when the date is full.
		CreateWithinCapacity(ctx context.Context, apt *model.Appointment, capacity int, event *model.OutboxEvent) error
		// MoveWithinCapacity saves an edit that changes apt's date, applying the
		// same guard against the new date.
		MoveWithinCapacity(ctx context.Context, apt *model.Appointment, capacity int, event *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, apt *model.Appointment, event *model.OutboxEvent) error
		UpdateStatus(ctx context.Context, apt *model.Appointment, event *model.OutboxEvent) error
		Delete(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int, error)
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
