package scheduling

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/velanet/velanet-crm/internal/billing"
	"github.com/velanet/velanet-crm/internal/platform/httpx"
)

// Handler wires the scheduling JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers visit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.schedule)
	r.Get("/agenda", h.agenda)
	r.Route("/{visitID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/complete", h.complete)
		r.Post("/cancel", h.cancel)
	})
}

type scheduleRequest struct {
	ClientID    int64  `json:"client_id" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=installation support removal"`
	ScheduledAt string `json:"scheduled_at" validate:"required"`
	Technician  string `json:"technician" validate:"max=120"`
	Notes       string `json:"notes" validate:"max=500"`
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "scheduled_at must be RFC3339")
		return
	}
	visit, err := h.service.ScheduleVisit(r.Context(), ScheduleInput{
		ClientID:    req.ClientID,
		Type:        VisitType(req.Type),
		ScheduledAt: scheduledAt,
		Technician:  req.Technician,
		Notes:       req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, visit)
}

func (h *Handler) agenda(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	visits, err := h.service.DayAgenda(r.Context(), day)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"visits": visits})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := visitIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "visit ID must be numeric")
		return
	}
	visit, err := h.service.GetVisit(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, visit)
}

type completeRequest struct {
	Fee    decimal.Decimal `json:"fee"`
	Report string          `json:"report" validate:"max=1000"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := visitIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "visit ID must be numeric")
		return
	}
	var req completeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	visit, err := h.service.CompleteVisit(r.Context(), CompletionInput{
		VisitID: id,
		Fee:     req.Fee,
		Report:  req.Report,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("visit completed",
		slog.Int64("visit_id", id),
		slog.Int64("client_id", visit.ClientID),
		slog.String("type", string(visit.Type)))
	httpx.JSON(w, http.StatusOK, visit)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := visitIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "visit ID must be numeric")
		return
	}
	if err := h.service.CancelVisit(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, billing.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotScheduled), errors.Is(err, ErrPastDate), errors.Is(err, billing.ErrProfileNotActive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	default:
		h.logger.Error("scheduling request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func visitIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "visitID"), 10, 64)
}
