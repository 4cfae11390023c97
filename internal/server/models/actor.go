// Package models defines server-side data models persisted in the database.
package models

import "time"

// Actor roles.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleNurse   = "nurse"
	RoleAdmin   = "admin"
)

// ValidRole reports whether role is one of the known actor roles.
func ValidRole(role string) bool {
	switch role {
	case RolePatient, RoleDoctor, RoleNurse, RoleAdmin:
		return true
	}
	return false
}

// ClinicianRole reports whether role may author records and certificates.
func ClinicianRole(role string) bool {
	return role == RoleDoctor || role == RoleNurse
}

// Actor is a portal account: a patient, a clinician or an administrator.
// Salt and Verifier hold the argon2id password material; the password itself
// is never stored.
type Actor struct {
	ID               string
	Email            string
	Salt             []byte
	Verifier         []byte
	FirstName        string
	LastName         string
	Role             string
	Phone            string
	Active           bool
	TwoFactorEnabled bool
	CreatedAt        time.Time
	LastLogin        *time.Time
}
