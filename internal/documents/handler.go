package documents

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/billing/internal/platform/httpx"
)

// Handler exposes document endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/totals", h.totals)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Put("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/status", h.status)
		r.Post("/convert/proforma", h.convertProforma)
		r.Post("/convert/invoice", h.convertInvoice)
		r.Post("/convert/credit-note", h.convertCreditNote)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListRequest{}
	if v := q.Get("type"); v != "" {
		t := DocumentType(v)
		req.Type = &t
	}
	if v := q.Get("status"); v != "" {
		st := Status(v)
		req.Status = &st
	}
	if v := q.Get("client_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Client ID", err.Error())
			return
		}
		req.ClientID = &id
	}
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))

	docs, total, err := h.service.ListDocuments(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	httpx.JSON(w, http.StatusOK, ListResponse{Documents: docs, Total: total, Limit: limit, Offset: req.Offset})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	doc, err := h.service.CreateDocument(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	var req TotalsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	lines, totals, err := h.service.ComputeTotals(req.Lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, TotalsResponse{Lines: lines, Totals: totals})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req UpdateDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	doc, err := h.service.UpdateDocument(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDocument(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := validateRequest(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var (
		doc *Document
		err error
	)
	if req.Status == StatusSent {
		doc, err = h.service.Send(r.Context(), id)
	} else {
		doc, err = h.service.TransitionStatus(r.Context(), id, req.Status)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) convertProforma(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.ConvertQuoteToProforma(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) convertInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.ConvertToInvoice(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) convertCreditNote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req CreditNoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	doc, err := h.service.ConvertInvoiceToCreditNote(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.RespondError(w, err,
		httpx.ErrorMapping{Target: ErrInvalidDocumentType, Status: http.StatusNotFound, Title: "Invalid Document Type"},
		httpx.ErrorMapping{Target: ErrDocumentNotFound, Status: http.StatusNotFound, Title: "Not Found"},
		httpx.ErrorMapping{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
		httpx.ErrorMapping{Target: ErrInvalidStateTransition, Status: http.StatusConflict, Title: "Invalid State Transition"},
		httpx.ErrorMapping{Target: ErrAlreadyConverted, Status: http.StatusConflict, Title: "Already Converted"},
	) {
		return
	}
	h.logger.ErrorContext(r.Context(), "document request failed",
		slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.InternalError(w)
}
