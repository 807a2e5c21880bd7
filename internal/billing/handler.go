package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/velanet/velanet-crm/internal/platform/httpx"
	"github.com/velanet/velanet-crm/internal/shared"
)

// Handler wires the billing JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	idem      *shared.IdempotencyStore
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. The idempotency store may
// be nil; payment deduplication is then skipped.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, validator: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/proration/preview", h.previewProration)

	r.Route("/accounts/{profileID}", func(r chi.Router) {
		r.Get("/", h.getSummary)
		r.Get("/charges", h.listCharges)
		r.Post("/charges", h.createCharge)

		// Payments mutate balances; keep a tighter lid on them.
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			r.Post("/payments", h.recordPayment)
			r.Post("/payments/preview", h.previewPayment)
		})
	})
}

type prorationRequest struct {
	InstallationDate string          `json:"installation_date" validate:"required,datetime=2006-01-02"`
	BillingDay       int             `json:"billing_day" validate:"required,min=1,max=28"`
	MonthlyFee       decimal.Decimal `json:"monthly_fee"`
}

type prorationResponse struct {
	ProratedAmount   decimal.Decimal `json:"prorated_amount"`
	DaysCharged      int             `json:"days_charged"`
	FirstBillingDate string          `json:"first_billing_date"`
}

func (h *Handler) previewProration(w http.ResponseWriter, r *http.Request) {
	var req prorationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	installDate, _ := time.Parse("2006-01-02", req.InstallationDate)

	result, err := CalculateProration(installDate, req.BillingDay, req.MonthlyFee)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, prorationResponse{
		ProratedAmount:   result.ProratedAmount,
		DaysCharged:      result.DaysCharged,
		FirstBillingDate: result.FirstBillingDate.Format("2006-01-02"),
	})
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	profileID, err := profileIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "profile ID must be numeric")
		return
	}
	summary, err := h.service.GetAccountSummary(r.Context(), profileID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

type chargeResponse struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Status      ChargeStatus    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	PaidDate    *time.Time      `json:"paid_date,omitempty"`
	PaymentID   *int64          `json:"payment_id,omitempty"`
}

func (h *Handler) listCharges(w http.ResponseWriter, r *http.Request) {
	profileID, err := profileIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "profile ID must be numeric")
		return
	}
	status := ChargeStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	charges, err := h.service.ListCharges(r.Context(), profileID, status, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]chargeResponse, 0, len(charges))
	for _, c := range charges {
		out = append(out, chargeResponse{
			ID:          c.ID,
			Description: c.Description,
			Amount:      c.Amount,
			Status:      c.Status,
			CreatedAt:   c.CreatedAt,
			PaidDate:    c.PaidDate,
			PaymentID:   c.PaymentID,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"charges": out})
}

type createChargeRequest struct {
	Description string          `json:"description" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
}

func (h *Handler) createCharge(w http.ResponseWriter, r *http.Request) {
	profileID, err := profileIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "profile ID must be numeric")
		return
	}
	var req createChargeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	charge, err := h.service.CreateCharge(r.Context(), profileID, req.Description, req.Amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, charge)
}

type paymentRequest struct {
	CashAmount  decimal.Decimal `json:"cash_amount"`
	CreditToUse decimal.Decimal `json:"credit_to_use"`
	Method      string          `json:"method" validate:"required,oneof=cash transfer card"`
	Note        string          `json:"note" validate:"max=500"`
	PaidAt      string          `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) paymentInput(r *http.Request) (RecordPaymentInput, error) {
	profileID, err := profileIDParam(r)
	if err != nil {
		return RecordPaymentInput{}, errors.New("profile ID must be numeric")
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return RecordPaymentInput{}, err
	}
	if err := h.validator.Struct(req); err != nil {
		return RecordPaymentInput{}, err
	}
	paidAt := time.Now().UTC()
	if req.PaidAt != "" {
		paidAt, _ = time.Parse("2006-01-02", req.PaidAt)
	}
	return RecordPaymentInput{
		ProfileID:   profileID,
		CashAmount:  req.CashAmount,
		CreditToUse: req.CreditToUse,
		Method:      req.Method,
		Note:        req.Note,
		PaidAt:      paidAt,
	}, nil
}

type allocationResponse struct {
	Payment        *Payment        `json:"payment,omitempty"`
	ChargesPaid    []PaidCharge    `json:"charges_paid"`
	AdvanceCharges []AdvanceCharge `json:"advance_charges"`
	NewBalance     decimal.Decimal `json:"new_balance"`
	Summary        string          `json:"summary"`
}

func (h *Handler) previewPayment(w http.ResponseWriter, r *http.Request) {
	in, err := h.paymentInput(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.PreviewPayment(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocationResponse{
		ChargesPaid:    result.ChargesToMarkPaid,
		AdvanceCharges: result.AdvanceCharges,
		NewBalance:     result.NewBalance,
		Summary:        result.Summary.Describe(),
	})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	in, err := h.paymentInput(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if h.idem != nil && idemKey != "" {
		if err := h.idem.CheckAndInsert(r.Context(), idemKey, "billing.payments"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "payment with this idempotency key was already processed")
				return
			}
			h.respondError(w, r, err)
			return
		}
	}
	payment, result, err := h.service.RecordPayment(r.Context(), in)
	if err != nil {
		if h.idem != nil && idemKey != "" {
			_ = h.idem.Delete(r.Context(), idemKey)
		}
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("payment recorded",
		slog.Int64("profile_id", in.ProfileID),
		slog.String("number", payment.Number),
		slog.Int("charges_paid", result.Summary.ChargesCovered),
		slog.Int("advance_months", result.Summary.AdvanceMonths))
	httpx.JSON(w, http.StatusCreated, allocationResponse{
		Payment:        payment,
		ChargesPaid:    result.ChargesToMarkPaid,
		AdvanceCharges: result.AdvanceCharges,
		NewBalance:     result.NewBalance,
		Summary:        result.Summary.Describe(),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidBillingDay),
		errors.Is(err, ErrNegativeFee),
		errors.Is(err, ErrNegativeAmount),
		errors.Is(err, ErrEmptyPayment),
		errors.Is(err, ErrCreditExceedsAvailable),
		errors.Is(err, ErrProfileNotActive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Billing Rule Violation", err.Error())
	case errors.Is(err, ErrChargeConflict), errors.Is(err, ErrAlreadyBilled):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("billing request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func profileIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "profileID"), 10, 64)
}
