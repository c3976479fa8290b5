package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleNone       Role = ""
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// ParseRole maps free-form input onto the closed role set. Anything
// unrecognized resolves to RoleNone rather than an error.
func ParseRole(value string) Role {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "student":
		return RoleStudent
	case "instructor":
		return RoleInstructor
	case "admin":
		return RoleAdmin
	default:
		return RoleNone
	}
}

type ClassStatus string

const (
	ClassPending  ClassStatus = "pending"
	ClassApproved ClassStatus = "approved"
	ClassDenied   ClassStatus = "denied"
)

type User struct {
	ID        string
	Email     string
	Name      string
	PhotoURL  *string
	Role      Role
	CreatedAt time.Time
}

type Class struct {
	ID              string
	Name            string
	Image           *string
	InstructorName  string
	InstructorEmail string
	AvailableSeats  int
	NumStudents     int
	Price           float64
	Status          ClassStatus
	CreatedAt       time.Time
}

type Selection struct {
	ID        string
	Email     string
	ClassID   string
	ClassName string
	Image     *string
	Price     float64
	CreatedAt time.Time
}

type Payment struct {
	ID            string
	Email         string
	TransactionID string
	Amount        float64
	ClassID       *string
	ClassName     *string
	PaidAt        time.Time
}
