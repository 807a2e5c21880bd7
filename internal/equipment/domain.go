package equipment

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatus enumerates equipment lifecycle states.
type ItemStatus string

const (
	ItemInStock  ItemStatus = "in_stock"
	ItemAssigned ItemStatus = "assigned"
	ItemRetired  ItemStatus = "retired"
)

// Item is a physical unit (router, ONT, antenna) tracked per serial.
type Item struct {
	ID           int64
	Model        string
	SerialNumber string
	Status       ItemStatus
	ClientID     *int64
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AssignmentInput captures an equipment handover to a client. A
// positive ChangeFee is billed to the client's account.
type AssignmentInput struct {
	ItemID    int64
	ClientID  int64
	ChangeFee decimal.Decimal
	Note      string
}
