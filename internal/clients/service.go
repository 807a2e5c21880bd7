package clients

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velanet/velanet-crm/internal/billing"
	"github.com/velanet/velanet-crm/internal/shared"
)

// RepositoryPort defines data access methods for clients.
type RepositoryPort interface {
	Create(ctx context.Context, c *Client) (*Client, error)
	Get(ctx context.Context, id int64) (*Client, error)
	List(ctx context.Context, status Status, search string, page, perPage int) ([]Client, shared.Pagination, error)
	UpdateContact(ctx context.Context, c *Client) error
	SetStatus(ctx context.Context, id int64, from, to Status, convertedAt *time.Time) error
}

// BillingPort is the slice of the billing service the conversion flow
// needs.
type BillingPort interface {
	OnboardAccount(ctx context.Context, in billing.OnboardInput) (*billing.Profile, billing.ProrationResult, error)
	GetProfileByClient(ctx context.Context, clientID int64) (*billing.Profile, error)
}

// Service handles client lifecycle business logic.
type Service struct {
	repo    RepositoryPort
	billing BillingPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, billingSvc BillingPort) *Service {
	return &Service{repo: repo, billing: billingSvc}
}

// ProspectInput captures a new prospect from intake.
type ProspectInput struct {
	Name     string
	Phone    string
	Email    string
	Address  string
	Zone     string
	PlanName string
	Notes    string
}

// CreateProspect registers a new prospect.
func (s *Service) CreateProspect(ctx context.Context, in ProspectInput) (*Client, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.New("clients: name required")
	}
	if strings.TrimSpace(in.Phone) == "" {
		return nil, errors.New("clients: phone required")
	}
	return s.repo.Create(ctx, &Client{
		Name:     strings.TrimSpace(in.Name),
		Phone:    strings.TrimSpace(in.Phone),
		Email:    strings.TrimSpace(in.Email),
		Address:  in.Address,
		Zone:     in.Zone,
		PlanName: in.PlanName,
		Status:   StatusProspect,
		Notes:    in.Notes,
	})
}

// GetClient returns a client by ID.
func (s *Service) GetClient(ctx context.Context, id int64) (*Client, error) {
	return s.repo.Get(ctx, id)
}

// ListClients returns a filtered, paginated client listing.
func (s *Service) ListClients(ctx context.Context, status Status, search string, page, perPage int) ([]Client, shared.Pagination, error) {
	return s.repo.List(ctx, status, search, page, perPage)
}

// UpdateContact replaces the mutable contact fields of a client.
func (s *Service) UpdateContact(ctx context.Context, id int64, in ProspectInput) (*Client, error) {
	client, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) != "" {
		client.Name = strings.TrimSpace(in.Name)
	}
	if strings.TrimSpace(in.Phone) != "" {
		client.Phone = strings.TrimSpace(in.Phone)
	}
	client.Email = strings.TrimSpace(in.Email)
	client.Address = in.Address
	client.Zone = in.Zone
	client.Notes = in.Notes
	if err := s.repo.UpdateContact(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// ConvertInput carries the installation terms agreed at conversion.
type ConvertInput struct {
	ClientID          int64
	InstallationDate  time.Time
	BillingDay        int
	MonthlyFee        decimal.Decimal
	InstallationCost  decimal.Decimal
	AdditionalCharges []billing.ChargeRecord
}

// ConvertResult bundles what conversion produced.
type ConvertResult struct {
	Client    *Client
	Profile   *billing.Profile
	Proration billing.ProrationResult
}

// Convert turns a prospect into a client and opens its billing account
// with the prorated first period.
func (s *Service) Convert(ctx context.Context, in ConvertInput) (*ConvertResult, error) {
	client, err := s.repo.Get(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if client.Status != StatusProspect {
		return nil, ErrNotProspect
	}

	profile, proration, err := s.billing.OnboardAccount(ctx, billing.OnboardInput{
		ClientID:          client.ID,
		InstallationDate:  in.InstallationDate,
		BillingDay:        in.BillingDay,
		MonthlyFee:        in.MonthlyFee,
		InstallationCost:  in.InstallationCost,
		AdditionalCharges: in.AdditionalCharges,
	})
	if errors.Is(err, billing.ErrAlreadyOnboarded) {
		// A previous conversion opened the account but died before the
		// status flip. Resume with the existing profile.
		profile, err = s.billing.GetProfileByClient(ctx, client.ID)
		if err == nil {
			proration, err = billing.CalculateProration(profile.InstallationDate, profile.BillingDay, profile.MonthlyFee)
		}
	}
	if err != nil {
		return nil, err
	}

	convertedAt := in.InstallationDate
	if err := s.repo.SetStatus(ctx, client.ID, StatusProspect, StatusClient, &convertedAt); err != nil {
		return nil, err
	}
	client.Status = StatusClient
	client.ConvertedAt = &convertedAt
	return &ConvertResult{Client: client, Profile: profile, Proration: proration}, nil
}

// RejectProspect marks a prospect as rejected. Terminal.
func (s *Service) RejectProspect(ctx context.Context, id int64) error {
	client, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if client.Status != StatusProspect {
		return ErrNotProspect
	}
	return s.repo.SetStatus(ctx, id, StatusProspect, StatusRejected, nil)
}

// CancelClient ends service for an active client.
func (s *Service) CancelClient(ctx context.Context, id int64) error {
	client, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if client.Status != StatusClient {
		return ErrAlreadyInactive
	}
	return s.repo.SetStatus(ctx, id, StatusClient, StatusCancelled, nil)
}
