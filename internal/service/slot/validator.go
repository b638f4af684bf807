package slot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const (
	MsgDateRequired = "Appointment date is required"
	MsgInvalidDate  = "Invalid appointment date format"
	MsgWeekend      = "Clinic is closed on weekends"
	MsgPastDate     = "Appointment date cannot be in the past"
)

var (
	// ErrAvailabilityUnavailable means the booked count could not be read.
	// Callers must treat the date as not bookable.
	ErrAvailabilityUnavailable = errors.New("could not verify slot availability")
	ErrInvalidDate             = errors.New("invalid date, expected YYYY-MM-DD")
)

// AppointmentLister returns the appointments booked on a date, ordered by time.
type AppointmentLister interface {
	ListByDate(ctx context.Context, date string) ([]model.Appointment, error)
}

// Validator checks candidate appointment dates and times against the clinic's
// rules and reports per-date capacity. It holds no mutable state.
type Validator struct {
	cfg           Config
	store         AppointmentLister
	now           func() time.Time
	breaker       *circuitbreaker.CircuitBreaker
	metrics       *metrics.Metrics
	log           *logger.Logger
	lookupTimeout time.Duration
}

type Option func(*Validator)

func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(v *Validator) { v.breaker = cb }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(v *Validator) { v.log = l }
}

func WithLookupTimeout(d time.Duration) Option {
	return func(v *Validator) { v.lookupTimeout = d }
}

func NewValidator(cfg Config, store AppointmentLister, opts ...Option) *Validator {
	v := &Validator{
		cfg:   cfg,
		store: store,
		now:   time.Now,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) Config() Config {
	return v.cfg
}

func (v *Validator) parseDate(date string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(date), v.cfg.location())
}

// IsWeekday reports whether the clinic is open on date. Unparseable input is false.
func (v *Validator) IsWeekday(date string) bool {
	d, err := v.parseDate(date)
	if err != nil {
		return false
	}
	return v.cfg.isOpenDay(d.Weekday())
}

// IsWithinOperatingHours reports whether t ("15:04" or "15:04:05") falls
// within opening hours, both bounds inclusive. Missing or malformed is false.
func (v *Validator) IsWithinOperatingHours(t string) bool {
	secs, ok := secondsOfDay(t)
	if !ok {
		return false
	}
	return secs >= v.cfg.OpenHour*3600 && secs <= v.cfg.CloseHour*3600
}

func secondsOfDay(t string) (int, bool) {
	t = strings.TrimSpace(t)
	if t == "" {
		return 0, false
	}
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		parsed, err := time.Parse(layout, t)
		if err == nil {
			return parsed.Hour()*3600 + parsed.Minute()*60 + parsed.Second(), true
		}
	}
	return 0, false
}

// MinimumAllowedDate is today in clinic-local time.
func (v *Validator) MinimumAllowedDate() string {
	return v.now().In(v.cfg.location()).Format(DateLayout)
}

// ValidateAppointmentTime returns every rule the candidate breaks, in check
// order: presence, open day, operating hours, past date. Empty means valid.
func (v *Validator) ValidateAppointmentTime(date, t string) []string {
	errs := make([]string, 0)

	var (
		day       time.Time
		dateKnown bool
	)
	if strings.TrimSpace(date) == "" {
		errs = append(errs, MsgDateRequired)
	} else if parsed, err := v.parseDate(date); err != nil {
		errs = append(errs, MsgInvalidDate)
	} else {
		day, dateKnown = parsed, true
	}

	if dateKnown && !v.cfg.isOpenDay(day.Weekday()) {
		errs = append(errs, closedDayMessage(day.Weekday()))
	}

	if !v.IsWithinOperatingHours(t) {
		errs = append(errs, v.cfg.HoursMessage())
	}

	if dateKnown && day.Format(DateLayout) < v.MinimumAllowedDate() {
		errs = append(errs, MsgPastDate)
	}

	return errs
}

func closedDayMessage(d time.Weekday) string {
	if d == time.Saturday || d == time.Sunday {
		return MsgWeekend
	}
	return fmt.Sprintf("Clinic is closed on %ss", d)
}

// AvailableSlotsForDate reads the bookings for date and compares the number
// that occupy a slot with the daily capacity. A failed read is returned
// wrapped in ErrAvailabilityUnavailable, never reported as free capacity.
func (v *Validator) AvailableSlotsForDate(ctx context.Context, date string) (model.SlotSummary, error) {
	d, err := v.parseDate(date)
	if err != nil {
		return model.SlotSummary{}, ErrInvalidDate
	}
	date = d.Format(DateLayout)

	appointments, err := v.lookup(ctx, date)
	if err != nil {
		v.log.Error(err, "slot availability lookup failed", "date", date)
		return model.SlotSummary{}, fmt.Errorf("%w: %w", ErrAvailabilityUnavailable, err)
	}

	booked := 0
	for _, apt := range appointments {
		if apt.Status.OccupiesSlot() {
			booked++
		}
	}

	return model.NewSlotSummary(date, booked, v.cfg.DailyCapacity), nil
}

func (v *Validator) lookup(ctx context.Context, date string) ([]model.Appointment, error) {
	if v.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.lookupTimeout)
		defer cancel()
	}

	ctx, span := otel.Tracer("clinic-api/slot").Start(ctx, "slot.ListByDate")
	span.SetAttributes(attribute.String("appointment.date", date))
	defer span.End()

	start := time.Now()
	var appointments []model.Appointment
	call := func() error {
		var err error
		appointments, err = v.store.ListByDate(ctx, date)
		return err
	}

	var err error
	if v.breaker != nil {
		err = v.breaker.Execute(call)
	} else {
		err = call()
	}

	if v.metrics != nil {
		v.metrics.AvailabilityLookupLatency.Observe(time.Since(start).Seconds())
		result := "ok"
		switch {
		case errors.Is(err, circuitbreaker.ErrOpen):
			result = "rejected"
		case err != nil:
			result = "error"
		}
		v.metrics.AvailabilityLookups.WithLabelValues(result).Inc()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
	}

	return appointments, err
}

// Check combines ValidateAppointmentTime with the capacity of the date. The
// capacity part is skipped when the date itself is missing or malformed.
func (v *Validator) Check(ctx context.Context, date, t string) (model.SlotAvailability, error) {
	avail := model.SlotAvailability{
		Date:                   strings.TrimSpace(date),
		IsWeekday:              v.IsWeekday(date),
		IsWithinOperatingHours: v.IsWithinOperatingHours(t),
		Capacity:               v.cfg.DailyCapacity,
		Remaining:              v.cfg.DailyCapacity,
		Errors:                 v.ValidateAppointmentTime(date, t),
	}

	if _, err := v.parseDate(date); err != nil {
		return avail, nil
	}

	summary, err := v.AvailableSlotsForDate(ctx, date)
	if err != nil {
		return avail, err
	}

	avail.Date = summary.Date
	avail.BookedCount = summary.BookedCount
	avail.Remaining = summary.Remaining
	avail.IsFullyBooked = summary.IsFullyBooked
	return avail, nil
}

// Hours describes the clinic's schedule for display.
func (v *Validator) Hours() model.ClinicHours {
	return model.ClinicHours{
		OpenHour:      v.cfg.OpenHour,
		CloseHour:     v.cfg.CloseHour,
		DailyCapacity: v.cfg.DailyCapacity,
		OpenDays:      v.cfg.OpenDayNames(),
		MinimumDate:   v.MinimumAllowedDate(),
	}
}
