package model

import (
	"github.com/google/uuid"
)

// Role constants. Portal users are one of the four campus roles.
const (
	RoleAdmin   = "admin"
	RoleFaculty = "faculty"
	RoleStudent = "student"
	RoleStaff   = "staff"
)

// User represents a portal user
type User struct {
	Base
	Email        string `json:"email" db:"email"`
	Name         string `json:"name" db:"name"`
	PasswordHash string `json:"-" db:"password_hash"`
	Role         string `json:"role" db:"role"`
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin reports whether the actor has unrestricted access.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsClinicStaff reports whether the actor may see all bookings and move their status.
func (a Actor) IsClinicStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}

// Owns reports whether the actor booked the appointment.
func (a Actor) Owns(apt *Appointment) bool {
	return apt != nil && apt.UserID == a.UserID
}
