package scheduling

import (
	"time"

	"github.com/shopspring/decimal"
)

// VisitType enumerates the kinds of field work.
type VisitType string

const (
	VisitInstallation VisitType = "installation"
	VisitSupport      VisitType = "support"
	VisitRemoval      VisitType = "removal"
)

// VisitStatus enumerates visit lifecycle states.
type VisitStatus string

const (
	VisitScheduled VisitStatus = "scheduled"
	VisitCompleted VisitStatus = "completed"
	VisitCancelled VisitStatus = "cancelled"
)

// Visit is a technician appointment at a client's premises.
type Visit struct {
	ID          int64
	ClientID    int64
	Type        VisitType
	Status      VisitStatus
	ScheduledAt time.Time
	Technician  string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// CompletionInput closes out a visit. A positive Fee is billed to the
// client's account (support call-out, cabling materials).
type CompletionInput struct {
	VisitID     int64
	CompletedAt time.Time
	Fee         decimal.Decimal
	Report      string
}
