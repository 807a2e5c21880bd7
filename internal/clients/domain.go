package clients

import "time"

// Status enumerates client lifecycle states. Prospects become clients
// at conversion; rejected is terminal.
type Status string

const (
	StatusProspect  Status = "prospect"
	StatusClient    Status = "client"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Client is a person or business in the CRM, from first contact
// through active service.
type Client struct {
	ID          int64
	Name        string
	Phone       string
	Email       string
	Address     string
	Zone        string
	PlanName    string
	Status      Status
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConvertedAt *time.Time
}
