package rest

import (
	"net/http"
	"strings"

	"vereinskasse/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Nicht angemeldet")
		return
	}

	exports, err := h.exportList.GetExports(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Nicht angemeldet")
		return
	}

	exportID := chi.URLParam(r, "export_id")
	if exportID == "" {
		ErrorBadRequest(w, "export_id fehlt")
		return
	}
	if !strings.HasPrefix(exportID, h.exportPrefix) {
		exportID = h.exportPrefix + exportID
	}

	export, err := h.exportList.GetExport(r.Context(), exportID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "", export)
}

func (h *Handler) exportPaymentOverview(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Nicht angemeldet")
		return
	}

	tier, err := ValidateExportOverviewRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	exportID, err := h.exporter.StartExport(r.Context(), userID, tier)
	if err != nil {
		writeError(w, r, err)
		return
	}

	SuccessAccepted(w, "Export wurde gestartet", map[string]interface{}{
		"export_id": exportID,
	})
}
