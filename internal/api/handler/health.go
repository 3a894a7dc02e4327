package handler

import (
	"net/http"

	"github.com/pizza-nz/ticket-printer/internal/api"
)

// Health handles GET /healthz.
func Health(w http.ResponseWriter, r *http.Request) {
	api.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
