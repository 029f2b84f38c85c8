package rest

import "net/http"

func (h *Handler) paymentOverview(w http.ResponseWriter, r *http.Request) {
	overviews, err := h.reminders.Overview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "", toOverviewDTOs(overviews))
}

func (h *Handler) paymentDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.reminders.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "", toDashboardDTO(d))
}
