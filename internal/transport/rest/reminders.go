package rest

import (
	"net/http"
)

func (h *Handler) memberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := idParam(r, "member_id")
	if err != nil {
		ErrorBadRequest(w, "Ungültige Mitglieds-ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) reminderIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := idParam(r, "reminder_id")
	if err != nil {
		ErrorBadRequest(w, "Ungültige Erinnerungs-ID")
		return 0, 0, false
	}
	return memberID, id, true
}

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	status, err := ValidateStatusFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.reminders.List(r.Context(), memberID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "", toMemberRemindersDTO(*res))
}

func (h *Handler) draftReminder(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}

	d, err := h.reminders.Draft(r.Context(), memberID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "", draftDTO{MemberID: d.MemberID, Amount: moneyPtr(d.Amount)})
}

func (h *Handler) getReminder(w http.ResponseWriter, r *http.Request) {
	memberID, id, ok := h.reminderIDs(w, r)
	if !ok {
		return
	}

	v, err := h.reminders.Get(r.Context(), memberID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "", toReminderDTO(*v))
}

func (h *Handler) createReminder(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	in, err := ValidateCreateReminderRequest(r, h.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.reminders.Create(r.Context(), memberID, *in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	SuccessCreated(w, "Zahlungserinnerung angelegt", toMutationDTO(res))
}

func (h *Handler) updateReminder(w http.ResponseWriter, r *http.Request) {
	memberID, id, ok := h.reminderIDs(w, r)
	if !ok {
		return
	}
	in, err := ValidateUpdateReminderRequest(r, h.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.reminders.Update(r.Context(), memberID, id, *in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "Zahlungserinnerung gespeichert", toMutationDTO(res))
}

func (h *Handler) sendReminder(w http.ResponseWriter, r *http.Request) {
	memberID, id, ok := h.reminderIDs(w, r)
	if !ok {
		return
	}

	res, err := h.reminders.Send(r.Context(), memberID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "Zahlungserinnerung versendet", toMutationDTO(res))
}

func (h *Handler) deleteReminder(w http.ResponseWriter, r *http.Request) {
	memberID, id, ok := h.reminderIDs(w, r)
	if !ok {
		return
	}

	res, err := h.reminders.Delete(r.Context(), memberID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	Success(w, "Zahlungserinnerung gelöscht", toMutationDTO(res))
}
