package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/slot"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const (
	MsgFullyBooked     = "No appointment slots remain for this date"
	MsgUnavailable     = "could not verify slot availability"
	MsgValidation      = "appointment validation failed"
	MsgNotEditable     = "appointment can no longer be edited"
	MsgNotAllowed      = "you are not allowed to access this appointment"
	MsgStaffOnly       = "only clinic staff can change appointment status"
	MsgInvalidDateArgs = "date must be formatted as YYYY-MM-DD"
)

// Event payload written to the outbox for every booking mutation.
type appointmentEvent struct {
	AppointmentID  uuid.UUID               `json:"appointment_id"`
	UserID         uuid.UUID               `json:"user_id"`
	ActorID        uuid.UUID               `json:"actor_id"`
	Date           string                  `json:"date"`
	Time           string                  `json:"time"`
	Status         model.AppointmentStatus `json:"status"`
	PreviousStatus model.AppointmentStatus `json:"previous_status,omitempty"`
	PreviousDate   string                  `json:"previous_date,omitempty"`
	Reason         *string                 `json:"reason,omitempty"`
}

type Service struct {
	repo      repository.AppointmentRepository
	validator *slot.Validator
	metrics   *metrics.Metrics
	log       *logger.Logger
}

func NewService(repo repository.AppointmentRepository, validator *slot.Validator, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		validator: validator,
		metrics:   m,
		log:       log,
	}
}

func (s *Service) outcome(name string) {
	if s.metrics != nil {
		s.metrics.BookingOutcomes.WithLabelValues(name).Inc()
	}
}

// normalize rewrites date and time into their canonical layouts. Inputs have
// already passed validation, which ignores surrounding whitespace.
func normalize(date, t string) (string, string) {
	date, t = strings.TrimSpace(date), strings.TrimSpace(t)
	if d, err := time.Parse(slot.DateLayout, date); err == nil {
		date = d.Format(slot.DateLayout)
	}
	for _, layout := range []string{slot.TimeLayout, "15:04:05"} {
		if parsed, err := time.Parse(layout, t); err == nil {
			return date, parsed.Format(slot.TimeLayout)
		}
	}
	return date, t
}

func (s *Service) validate(date, t string) error {
	if errs := s.validator.ValidateAppointmentTime(date, t); len(errs) > 0 {
		s.outcome("invalid")
		return apperrors.Unprocessable(errs[0], errs)
	}
	return nil
}

// ensureCapacity reads the date's availability so a failed lookup blocks the
// booking. The guarded write re-checks capacity atomically.
func (s *Service) ensureCapacity(ctx context.Context, date string) error {
	summary, err := s.validator.AvailableSlotsForDate(ctx, date)
	if err != nil {
		if errors.Is(err, slot.ErrInvalidDate) {
			return apperrors.BadRequest(MsgInvalidDateArgs, err)
		}
		s.outcome("unavailable")
		return apperrors.Unavailable(MsgUnavailable, err)
	}
	if summary.IsFullyBooked {
		s.outcome("full")
		return apperrors.Conflict(MsgFullyBooked, repository.ErrDateFullyBooked)
	}
	return nil
}

func (s *Service) mapWriteError(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrDateFullyBooked):
		s.outcome("full")
		return apperrors.Conflict(MsgFullyBooked, err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("appointment", err)
	default:
		s.outcome("error")
		return apperrors.Internal(fmt.Errorf("failed to %s appointment: %w", op, err))
	}
}

func newEvent(eventType string, payload appointmentEvent) (*model.OutboxEvent, error) {
	evt, err := model.NewOutboxEvent(eventType, payload)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to build %s event: %w", eventType, err))
	}
	return evt, nil
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.AppointmentRequest) (*model.Appointment, error) {
	if err := s.validate(req.Date, req.Time); err != nil {
		return nil, err
	}
	date, t := normalize(req.Date, req.Time)

	if err := s.ensureCapacity(ctx, date); err != nil {
		return nil, err
	}

	apt := &model.Appointment{
		Base:    model.Base{ID: uuid.New()},
		UserID:  actor.UserID,
		Date:    date,
		Time:    t,
		Purpose: req.Purpose,
		Notes:   req.Notes,
		Status:  model.AppointmentStatusPending,
	}

	evt, err := newEvent(model.EventAppointmentCreated, appointmentEvent{
		AppointmentID: apt.ID,
		UserID:        apt.UserID,
		ActorID:       actor.UserID,
		Date:          apt.Date,
		Time:          apt.Time,
		Status:        apt.Status,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateWithinCapacity(ctx, apt, s.validator.Config().DailyCapacity, evt); err != nil {
		return nil, s.mapWriteError(err, "create")
	}

	s.outcome("created")
	s.log.Info("appointment booked",
		"appointment_id", apt.ID.String(),
		"user_id", apt.UserID.String(),
		"date", apt.Date)

	return apt, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to get appointment: %w", err))
	}
	return apt, nil
}

// loadOwned loads the appointment and requires the actor to own it or be an admin.
func (s *Service) loadOwned(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(apt) && !actor.IsAdmin() {
		return nil, apperrors.Forbidden(MsgNotAllowed)
	}
	return apt, nil
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(apt) && !actor.IsClinicStaff() {
		return nil, apperrors.Forbidden(MsgNotAllowed)
	}
	return apt, nil
}

// Update edits date, time, purpose and notes while the booking is still
// pending or scheduled. Moving to another date re-applies the capacity guard.
func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.AppointmentRequest) (*model.Appointment, error) {
	apt, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !apt.Status.Editable() {
		return nil, apperrors.Conflict(MsgNotEditable, nil)
	}

	if err := s.validate(req.Date, req.Time); err != nil {
		return nil, err
	}
	date, t := normalize(req.Date, req.Time)

	previousDate := apt.Date
	moved := date != previousDate
	if moved {
		if err := s.ensureCapacity(ctx, date); err != nil {
			return nil, err
		}
	}

	apt.Date = date
	apt.Time = t
	apt.Purpose = req.Purpose
	apt.Notes = req.Notes

	payload := appointmentEvent{
		AppointmentID: apt.ID,
		UserID:        apt.UserID,
		ActorID:       actor.UserID,
		Date:          apt.Date,
		Time:          apt.Time,
		Status:        apt.Status,
	}
	if moved {
		payload.PreviousDate = previousDate
	}
	evt, err := newEvent(model.EventAppointmentUpdated, payload)
	if err != nil {
		return nil, err
	}

	if moved {
		err = s.repo.MoveWithinCapacity(ctx, apt, s.validator.Config().DailyCapacity, evt)
	} else {
		err = s.repo.Update(ctx, apt, evt)
	}
	if err != nil {
		return nil, s.mapWriteError(err, "update")
	}

	return apt, nil
}

func (s *Service) transition(ctx context.Context, actor model.Actor, apt *model.Appointment, next model.AppointmentStatus, reason *string) (*model.Appointment, error) {
	if !next.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown status %q", next), nil)
	}
	if !apt.Status.CanTransitionTo(next) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot change status from %s to %s", apt.Status, next), nil)
	}

	previous := apt.Status
	apt.Status = next
	if next == model.AppointmentStatusCancelled {
		apt.CancelReason = reason
	}

	evt, err := newEvent(model.EventAppointmentStatusChanged, appointmentEvent{
		AppointmentID:  apt.ID,
		UserID:         apt.UserID,
		ActorID:        actor.UserID,
		Date:           apt.Date,
		Time:           apt.Time,
		Status:         next,
		PreviousStatus: previous,
		Reason:         reason,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, apt, evt); err != nil {
		return nil, s.mapWriteError(err, "update status of")
	}

	s.log.Info("appointment status changed",
		"appointment_id", apt.ID.String(),
		"from", string(previous),
		"to", string(next),
		"actor_id", actor.UserID.String())

	return apt, nil
}

// UpdateStatus moves a booking along its lifecycle. Clinic staff only.
func (s *Service) UpdateStatus(ctx context.Context, actor model.Actor, id uuid.UUID, status model.AppointmentStatus, reason *string) (*model.Appointment, error) {
	if !actor.IsClinicStaff() {
		return nil, apperrors.Forbidden(MsgStaffOnly)
	}
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, apt, status, reason)
}

func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason *string) (*model.Appointment, error) {
	apt, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, apt, model.AppointmentStatusCancelled, reason)
}

func (s *Service) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	apt, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return err
	}

	evt, err := newEvent(model.EventAppointmentDeleted, appointmentEvent{
		AppointmentID: apt.ID,
		UserID:        apt.UserID,
		ActorID:       actor.UserID,
		Date:          apt.Date,
		Time:          apt.Time,
		Status:        apt.Status,
	})
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, apt.ID, evt); err != nil {
		return s.mapWriteError(err, "delete")
	}
	return nil
}

// List returns a page of bookings. Users outside the clinic staff only see their own.
func (s *Service) List(ctx context.Context, actor model.Actor, filters model.AppointmentFilters) ([]*model.Appointment, int, error) {
	if !actor.IsClinicStaff() {
		filters.UserID = actor.UserID
	}
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, 0, apperrors.BadRequest(fmt.Sprintf("unknown status %q", filters.Status), nil)
	}

	items, total, err := s.repo.List(ctx, &filters)
	if err != nil {
		return nil, 0, apperrors.Internal(fmt.Errorf("failed to list appointments: %w", err))
	}
	return items, total, nil
}

func (s *Service) Availability(ctx context.Context, date string) (model.SlotSummary, error) {
	summary, err := s.validator.AvailableSlotsForDate(ctx, date)
	if err != nil {
		if errors.Is(err, slot.ErrInvalidDate) {
			return model.SlotSummary{}, apperrors.BadRequest(MsgInvalidDateArgs, err)
		}
		return model.SlotSummary{}, apperrors.Unavailable(MsgUnavailable, err)
	}
	return summary, nil
}

// Validate lists every rule a candidate date and time break. It never
// touches the store.
func (s *Service) Validate(date, t string) []string {
	return s.validator.ValidateAppointmentTime(date, t)
}

// Check reports the validation errors of a candidate date and time together
// with the date's capacity.
func (s *Service) Check(ctx context.Context, date, t string) (model.SlotAvailability, error) {
	avail, err := s.validator.Check(ctx, date, t)
	if err != nil {
		return avail, apperrors.Unavailable(MsgUnavailable, err)
	}
	return avail, nil
}

func (s *Service) Hours() model.ClinicHours {
	return s.validator.Hours()
}
