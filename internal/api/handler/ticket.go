package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pizza-nz/ticket-printer/internal/api"
	"github.com/pizza-nz/ticket-printer/internal/models"
)

// TicketPrinter runs print jobs. *service.PrintService satisfies it.
type TicketPrinter interface {
	PrintQueue(ctx context.Context, t models.QueueTicket) models.PrintResponse
	PrintConsolidated(ctx context.Context, t models.OrderTicket) models.PrintResponse
	PrintSplit(ctx context.Context, t models.OrderTicket) models.PrintResponse
	CheckStatus(ctx context.Context, req models.PrinterStatusRequest) models.PrinterStatusResponse
}

// TicketHandler exposes the print endpoints.
type TicketHandler struct {
	printer TicketPrinter
	logger  *slog.Logger
}

func NewTicketHandler(printer TicketPrinter, logger *slog.Logger) *TicketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketHandler{
		printer: printer,
		logger:  logger,
	}
}

func (h *TicketHandler) RegisterRoutes(r chi.Router) {
	r.Post("/ticket/print", h.PrintQueue)
	r.Post("/ticket/print-full", h.PrintConsolidated)
	r.Post("/ticket/print-divided", h.PrintSplit)
	r.Post("/printer/status", h.PrinterStatus)
}

// PrintQueue handles POST /ticket/print.
func (h *TicketHandler) PrintQueue(w http.ResponseWriter, r *http.Request) {
	var ticket models.QueueTicket
	if !h.decode(w, r, &ticket) {
		return
	}
	h.respond(w, h.printer.PrintQueue(r.Context(), ticket))
}

// PrintConsolidated handles POST /ticket/print-full.
func (h *TicketHandler) PrintConsolidated(w http.ResponseWriter, r *http.Request) {
	var ticket models.OrderTicket
	if !h.decode(w, r, &ticket) {
		return
	}
	h.respond(w, h.printer.PrintConsolidated(r.Context(), ticket))
}

// PrintSplit handles POST /ticket/print-divided.
func (h *TicketHandler) PrintSplit(w http.ResponseWriter, r *http.Request) {
	var ticket models.OrderTicket
	if !h.decode(w, r, &ticket) {
		return
	}
	h.respond(w, h.printer.PrintSplit(r.Context(), ticket))
}

// PrinterStatus handles POST /printer/status.
func (h *TicketHandler) PrinterStatus(w http.ResponseWriter, r *http.Request) {
	var req models.PrinterStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp := h.printer.CheckStatus(r.Context(), req)
	status := http.StatusOK
	if resp.Error != nil {
		status = http.StatusInternalServerError
	}
	api.RespondJSON(w, status, resp)
}

type validator interface {
	Validate() error
}

// decode reads a JSON body into v and validates it. On failure it writes a
// 400 and returns false.
func (h *TicketHandler) decode(w http.ResponseWriter, r *http.Request, v validator) bool {
	r.Body = http.MaxBytesReader(w, r.Body, api.MaxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, fmt.Sprintf("request body larger than %d bytes", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return false
		}
		api.BadRequest(w, "Invalid request body: "+err.Error())
		return false
	}

	if err := v.Validate(); err != nil {
		api.BadRequest(w, err.Error())
		return false
	}
	return true
}

func (h *TicketHandler) respond(w http.ResponseWriter, resp models.PrintResponse) {
	status := http.StatusOK
	if resp.Error != nil {
		status = http.StatusInternalServerError
	}
	api.RespondJSON(w, status, resp)
}
