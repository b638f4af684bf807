package model

import (
	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending    AppointmentStatus = "pending"
	AppointmentStatusScheduled  AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed  AppointmentStatus = "confirmed"
	AppointmentStatusInProgress AppointmentStatus = "in_progress"
	AppointmentStatusDone       AppointmentStatus = "done"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"
)

// allowed status transitions; done and cancelled are terminal
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:    {AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusCancelled},
	AppointmentStatusScheduled:  {AppointmentStatusConfirmed, AppointmentStatusInProgress, AppointmentStatusCancelled},
	AppointmentStatusConfirmed:  {AppointmentStatusInProgress, AppointmentStatusCancelled},
	AppointmentStatusInProgress: {AppointmentStatusDone},
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusScheduled, AppointmentStatusConfirmed,
		AppointmentStatusInProgress, AppointmentStatusDone, AppointmentStatusCancelled:
		return true
	}
	return false
}

// OccupiesSlot reports whether an appointment in this status counts against
// the daily capacity. Only cancelled appointments free their slot.
func (s AppointmentStatus) OccupiesSlot() bool {
	return s != AppointmentStatusCancelled
}

// Editable reports whether the owner may still change date, time, purpose or notes.
func (s AppointmentStatus) Editable() bool {
	return s == AppointmentStatusPending || s == AppointmentStatusScheduled
}

// CanTransitionTo reports whether staff may move an appointment from s to next.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type AppointmentPurpose string

const (
	PurposeConsultation       AppointmentPurpose = "consultation"
	PurposeFollowUp           AppointmentPurpose = "follow_up"
	PurposeMedicalCertificate AppointmentPurpose = "medical_certificate"
	PurposeDental             AppointmentPurpose = "dental"
	PurposeLaboratory         AppointmentPurpose = "laboratory"
	PurposeVaccination        AppointmentPurpose = "vaccination"
	PurposeOther              AppointmentPurpose = "other"
)

// Appointment is a booked clinic visit. Date is a clinic-local calendar date
// (YYYY-MM-DD) and Time a wall-clock time (HH:MM); neither carries a zone.
type Appointment struct {
	Base
	UserID       uuid.UUID          `db:"user_id" json:"user_id"`
	Date         string             `db:"appointment_date" json:"date"`
	Time         string             `db:"appointment_time" json:"time"`
	Purpose      AppointmentPurpose `db:"purpose" json:"purpose"`
	Notes        *string            `db:"notes" json:"notes,omitempty"`
	Status       AppointmentStatus  `db:"status" json:"status"`
	CancelReason *string            `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// AppointmentRequest is the booking form payload, used for both create and edit.
// Date and time are checked by the slot validator so that every broken rule
// is reported, not only the first binding failure.
type AppointmentRequest struct {
	Date    string             `json:"date"`
	Time    string             `json:"time"`
	Purpose AppointmentPurpose `json:"purpose" binding:"required,oneof=consultation follow_up medical_certificate dental laboratory vaccination other"`
	Notes   *string            `json:"notes" binding:"omitempty,max=1000"`
}

// ValidateTimeRequest asks for the validation errors of a candidate date/time
// without booking. Fields are optional so that presence errors come back as
// validation messages rather than binding failures.
type ValidateTimeRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type UpdateStatusRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,oneof=pending scheduled confirmed in_progress done cancelled"`
	Reason *string           `json:"reason" binding:"omitempty,max=500"`
}

type CancelAppointmentRequest struct {
	Reason *string `json:"reason" binding:"omitempty,max=500"`
}

type AppointmentFilters struct {
	UserID    uuid.UUID
	Status    AppointmentStatus
	StartDate string
	EndDate   string
	Pagination
}
