package clients

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/velanet/velanet-crm/internal/platform/httpx"
)

// Handler wires the clients JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createProspect)
	r.Get("/", h.list)
	r.Route("/{clientID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.updateContact)
		r.Post("/convert", h.convert)
		r.Post("/reject", h.reject)
		r.Post("/cancel", h.cancel)
	})
}

type prospectRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"required,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address" validate:"max=300"`
	Zone     string `json:"zone" validate:"max=60"`
	PlanName string `json:"plan_name" validate:"max=60"`
	Notes    string `json:"notes" validate:"max=500"`
}

func (h *Handler) createProspect(w http.ResponseWriter, r *http.Request) {
	var req prospectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	client, err := h.service.CreateProspect(r.Context(), ProspectInput{
		Name: req.Name, Phone: req.Phone, Email: req.Email,
		Address: req.Address, Zone: req.Zone, PlanName: req.PlanName, Notes: req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, client)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := clientIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client ID must be numeric")
		return
	}
	client, err := h.service.GetClient(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	list, pg, err := h.service.ListClients(r.Context(), Status(q.Get("status")), q.Get("search"), page, perPage)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"clients":    list,
		"pagination": pg,
	})
}

func (h *Handler) updateContact(w http.ResponseWriter, r *http.Request) {
	id, err := clientIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client ID must be numeric")
		return
	}
	var req prospectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	client, err := h.service.UpdateContact(r.Context(), id, ProspectInput{
		Name: req.Name, Phone: req.Phone, Email: req.Email,
		Address: req.Address, Zone: req.Zone, Notes: req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

type convertRequest struct {
	InstallationDate string          `json:"installation_date" validate:"required,datetime=2006-01-02"`
	BillingDay       int             `json:"billing_day" validate:"required,min=1,max=28"`
	MonthlyFee       decimal.Decimal `json:"monthly_fee"`
	InstallationCost decimal.Decimal `json:"installation_cost"`
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, err := clientIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client ID must be numeric")
		return
	}
	var req convertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	installDate, _ := time.Parse("2006-01-02", req.InstallationDate)

	result, err := h.service.Convert(r.Context(), ConvertInput{
		ClientID:         id,
		InstallationDate: installDate,
		BillingDay:       req.BillingDay,
		MonthlyFee:       req.MonthlyFee,
		InstallationCost: req.InstallationCost,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("prospect converted",
		slog.Int64("client_id", id),
		slog.Int64("profile_id", result.Profile.ID),
		slog.Int("days_charged", result.Proration.DaysCharged))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"client":             result.Client,
		"profile_id":         result.Profile.ID,
		"initial_balance":    result.Profile.Balance,
		"prorated_amount":    result.Proration.ProratedAmount,
		"days_charged":       result.Proration.DaysCharged,
		"first_billing_date": result.Proration.FirstBillingDate.Format("2006-01-02"),
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.RejectProspect)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelClient)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) error) {
	id, err := clientIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client ID must be numeric")
		return
	}
	if err := fn(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicatePhone):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrNotProspect), errors.Is(err, ErrAlreadyInactive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	default:
		h.logger.Error("clients request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func clientIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
}
