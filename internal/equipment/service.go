package equipment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/velanet/velanet-crm/internal/billing"
)

// RepositoryPort defines data access methods for equipment.
type RepositoryPort interface {
	Create(ctx context.Context, item *Item) (*Item, error)
	Get(ctx context.Context, id int64) (*Item, error)
	List(ctx context.Context, status ItemStatus) ([]Item, error)
	ListByClient(ctx context.Context, clientID int64) ([]Item, error)
	Assign(ctx context.Context, itemID, clientID int64) error
	Return(ctx context.Context, itemID int64) error
	Retire(ctx context.Context, itemID int64) error
}

// BillingPort lets equipment changes bill the client's account.
type BillingPort interface {
	ChargeClient(ctx context.Context, clientID int64, description string, amount decimal.Decimal) (*billing.Charge, error)
}

// Service handles equipment stock and assignment logic.
type Service struct {
	repo    RepositoryPort
	billing BillingPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, billingSvc BillingPort) *Service {
	return &Service{repo: repo, billing: billingSvc}
}

// RegisterItem adds a unit to stock.
func (s *Service) RegisterItem(ctx context.Context, model, serial, notes string) (*Item, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("equipment: model required")
	}
	if strings.TrimSpace(serial) == "" {
		return nil, errors.New("equipment: serial number required")
	}
	return s.repo.Create(ctx, &Item{
		Model:        strings.TrimSpace(model),
		SerialNumber: strings.TrimSpace(serial),
		Status:       ItemInStock,
		Notes:        notes,
	})
}

// GetItem returns an item by ID.
func (s *Service) GetItem(ctx context.Context, id int64) (*Item, error) {
	return s.repo.Get(ctx, id)
}

// ListItems returns items, optionally filtered by status.
func (s *Service) ListItems(ctx context.Context, status ItemStatus) ([]Item, error) {
	return s.repo.List(ctx, status)
}

// ListClientEquipment returns the units a client currently holds.
func (s *Service) ListClientEquipment(ctx context.Context, clientID int64) ([]Item, error) {
	return s.repo.ListByClient(ctx, clientID)
}

// Assign hands an in-stock item to a client. A positive change fee is
// billed to the client's account; the fee charge is created before the
// status flip so a billing failure leaves the unit in stock.
func (s *Service) Assign(ctx context.Context, in AssignmentInput) (*Item, error) {
	if in.ClientID == 0 {
		return nil, errors.New("equipment: client ID required")
	}
	if in.ChangeFee.IsNegative() {
		return nil, errors.New("equipment: change fee cannot be negative")
	}
	item, err := s.repo.Get(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Status != ItemInStock {
		return nil, ErrNotAvailable
	}

	if in.ChangeFee.IsPositive() {
		desc := fmt.Sprintf("Equipment change: %s %s", item.Model, item.SerialNumber)
		if _, err := s.billing.ChargeClient(ctx, in.ClientID, desc, in.ChangeFee); err != nil {
			return nil, fmt.Errorf("equipment: bill change fee: %w", err)
		}
	}
	if err := s.repo.Assign(ctx, in.ItemID, in.ClientID); err != nil {
		return nil, err
	}
	item.Status = ItemAssigned
	item.ClientID = &in.ClientID
	return item, nil
}

// Return takes an assigned unit back into stock.
func (s *Service) Return(ctx context.Context, itemID int64) (*Item, error) {
	if err := s.repo.Return(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, itemID)
}

// Retire removes a unit from circulation.
func (s *Service) Retire(ctx context.Context, itemID int64) error {
	return s.repo.Retire(ctx, itemID)
}
