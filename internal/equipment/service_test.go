package equipment

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/velanet/velanet-crm/internal/billing"
)

type memoryItemRepo struct {
	mu      sync.Mutex
	nextID  int64
	items   map[int64]*Item
	serials map[string]bool
}

func newMemoryItemRepo() *memoryItemRepo {
	return &memoryItemRepo{items: map[int64]*Item{}, serials: map[string]bool{}}
}

func (m *memoryItemRepo) Create(_ context.Context, item *Item) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.serials[item.SerialNumber] {
		return nil, ErrDuplicateSerial
	}
	m.nextID++
	item.ID = m.nextID
	cp := *item
	m.items[item.ID] = &cp
	m.serials[item.SerialNumber] = true
	return item, nil
}

func (m *memoryItemRepo) Get(_ context.Context, id int64) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memoryItemRepo) List(_ context.Context, status ItemStatus) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for id := int64(1); id <= m.nextID; id++ {
		it, ok := m.items[id]
		if !ok {
			continue
		}
		if status != "" && it.Status != status {
			continue
		}
		out = append(out, *it)
	}
	return out, nil
}

func (m *memoryItemRepo) ListByClient(_ context.Context, clientID int64) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for id := int64(1); id <= m.nextID; id++ {
		it, ok := m.items[id]
		if !ok || it.Status != ItemAssigned || it.ClientID == nil || *it.ClientID != clientID {
			continue
		}
		out = append(out, *it)
	}
	return out, nil
}

func (m *memoryItemRepo) Assign(_ context.Context, itemID, clientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.Status != ItemInStock {
		return ErrNotAvailable
	}
	it.Status = ItemAssigned
	it.ClientID = &clientID
	return nil
}

func (m *memoryItemRepo) Return(_ context.Context, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.Status != ItemAssigned {
		return ErrNotAssigned
	}
	it.Status = ItemInStock
	it.ClientID = nil
	return nil
}

func (m *memoryItemRepo) Retire(_ context.Context, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.Status != ItemInStock {
		return ErrNotAvailable
	}
	it.Status = ItemRetired
	return nil
}

type chargeCall struct {
	clientID    int64
	description string
	amount      decimal.Decimal
}

type fakeCharger struct {
	calls []chargeCall
	fail  error
}

func (f *fakeCharger) ChargeClient(_ context.Context, clientID int64, description string, amount decimal.Decimal) (*billing.Charge, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.calls = append(f.calls, chargeCall{clientID: clientID, description: description, amount: amount})
	return &billing.Charge{ID: int64(len(f.calls)), Description: description, Amount: amount, Status: billing.ChargePending}, nil
}

func registerTestItem(t *testing.T, svc *Service) *Item {
	t.Helper()
	item, err := svc.RegisterItem(context.Background(), "AX1800", "SN-0001", "")
	require.NoError(t, err)
	return item
}

func TestRegisterItem(t *testing.T) {
	svc := NewService(newMemoryItemRepo(), &fakeCharger{})

	item := registerTestItem(t, svc)
	require.Equal(t, ItemInStock, item.Status)

	_, err := svc.RegisterItem(context.Background(), "AX1800", "SN-0001", "")
	require.ErrorIs(t, err, ErrDuplicateSerial)

	_, err = svc.RegisterItem(context.Background(), "", "SN-0002", "")
	require.Error(t, err)
}

func TestAssignWithChangeFeeBillsClient(t *testing.T) {
	charger := &fakeCharger{}
	svc := NewService(newMemoryItemRepo(), charger)
	item := registerTestItem(t, svc)

	fee, _ := decimal.NewFromString("99.90")
	assigned, err := svc.Assign(context.Background(), AssignmentInput{
		ItemID:    item.ID,
		ClientID:  42,
		ChangeFee: fee,
	})
	require.NoError(t, err)
	require.Equal(t, ItemAssigned, assigned.Status)
	require.NotNil(t, assigned.ClientID)
	require.Equal(t, int64(42), *assigned.ClientID)

	require.Len(t, charger.calls, 1)
	require.Equal(t, int64(42), charger.calls[0].clientID)
	require.Contains(t, charger.calls[0].description, "SN-0001")
	require.True(t, charger.calls[0].amount.Equal(fee))
}

func TestAssignWithoutFeeSkipsBilling(t *testing.T) {
	charger := &fakeCharger{}
	svc := NewService(newMemoryItemRepo(), charger)
	item := registerTestItem(t, svc)

	_, err := svc.Assign(context.Background(), AssignmentInput{ItemID: item.ID, ClientID: 7})
	require.NoError(t, err)
	require.Empty(t, charger.calls)
}

func TestAssignUnavailableItem(t *testing.T) {
	charger := &fakeCharger{}
	svc := NewService(newMemoryItemRepo(), charger)
	item := registerTestItem(t, svc)

	_, err := svc.Assign(context.Background(), AssignmentInput{ItemID: item.ID, ClientID: 7})
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), AssignmentInput{ItemID: item.ID, ClientID: 8})
	require.ErrorIs(t, err, ErrNotAvailable)
}

func TestAssignBillingFailureLeavesItemInStock(t *testing.T) {
	charger := &fakeCharger{fail: billing.ErrProfileNotActive}
	svc := NewService(newMemoryItemRepo(), charger)
	item := registerTestItem(t, svc)

	fee, _ := decimal.NewFromString("50")
	_, err := svc.Assign(context.Background(), AssignmentInput{ItemID: item.ID, ClientID: 9, ChangeFee: fee})
	require.ErrorIs(t, err, billing.ErrProfileNotActive)

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, ItemInStock, got.Status)
}

func TestReturnAndRetire(t *testing.T) {
	svc := NewService(newMemoryItemRepo(), &fakeCharger{})
	item := registerTestItem(t, svc)

	// Cannot return what was never assigned.
	_, err := svc.Return(context.Background(), item.ID)
	require.ErrorIs(t, err, ErrNotAssigned)

	_, err = svc.Assign(context.Background(), AssignmentInput{ItemID: item.ID, ClientID: 3})
	require.NoError(t, err)

	returned, err := svc.Return(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, ItemInStock, returned.Status)
	require.Nil(t, returned.ClientID)

	require.NoError(t, svc.Retire(context.Background(), item.ID))
	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, ItemRetired, got.Status)
}

func TestListClientEquipment(t *testing.T) {
	svc := NewService(newMemoryItemRepo(), &fakeCharger{})
	a := registerTestItem(t, svc)
	b, err := svc.RegisterItem(context.Background(), "ONT-G240", "SN-0002", "")
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), AssignmentInput{ItemID: a.ID, ClientID: 5})
	require.NoError(t, err)
	_, err = svc.Assign(context.Background(), AssignmentInput{ItemID: b.ID, ClientID: 6})
	require.NoError(t, err)

	items, err := svc.ListClientEquipment(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, a.ID, items[0].ID)
}
