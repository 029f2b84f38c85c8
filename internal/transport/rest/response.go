package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"vereinskasse/internal/domain"
	"vereinskasse/internal/service"
)

type APIResponse struct {
	ErrorCode int         `json:"error_code"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

func Response(w http.ResponseWriter, message string, data interface{}, errorCode int, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		ErrorCode: errorCode,
		Status:    status,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func Success(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusCreated)
}

func SuccessAccepted(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusAccepted)
}

func Error(w http.ResponseWriter, message string, errorCode int, httpStatus int) {
	Response(w, message, nil, errorCode, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, 400, http.StatusBadRequest)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, 401, http.StatusUnauthorized)
}

func ErrorNotFound(w http.ResponseWriter, message string) {
	Error(w, message, 404, http.StatusNotFound)
}

func ErrorConflict(w http.ResponseWriter, message string) {
	Error(w, message, 409, http.StatusConflict)
}

func ErrorUnprocessable(w http.ResponseWriter, message string) {
	Error(w, message, 422, http.StatusUnprocessableEntity)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, 500, http.StatusInternalServerError)
}

func ErrorBadGateway(w http.ResponseWriter, message string) {
	Error(w, message, 502, http.StatusBadGateway)
}

func ErrorUnavailable(w http.ResponseWriter, message string) {
	Error(w, message, 503, http.StatusServiceUnavailable)
}

// writeError maps service errors onto the response envelope. Validation
// messages are shown to the user as they are.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *domain.ValidationError
	var dErr *domain.DeliveryError

	switch {
	case errors.As(err, &vErr):
		ErrorBadRequest(w, vErr.Message)
	case errors.Is(err, domain.ErrMemberNotFound):
		ErrorNotFound(w, "Mitglied nicht gefunden")
	case errors.Is(err, domain.ErrReminderNotFound):
		ErrorNotFound(w, "Zahlungserinnerung nicht gefunden")
	case errors.Is(err, service.ErrExportNotFound):
		ErrorNotFound(w, "Export nicht gefunden")
	case errors.Is(err, domain.ErrReminderPaid):
		ErrorConflict(w, "Die Zahlungserinnerung ist bereits bezahlt")
	case errors.Is(err, domain.ErrSendInProgress):
		ErrorConflict(w, "Die Zahlungserinnerung wird gerade versendet")
	case errors.Is(err, domain.ErrNoEmail):
		ErrorUnprocessable(w, "Für dieses Mitglied ist keine E-Mail-Adresse hinterlegt")
	case errors.As(err, &dErr):
		slog.Warn("reminder delivery failed", "path", r.URL.Path, "error", err)
		ErrorBadGateway(w, "Die E-Mail konnte nicht versendet werden. Bitte später erneut versuchen.")
	case errors.Is(err, service.ErrExportsUnavailable):
		ErrorUnavailable(w, "Exporte sind derzeit nicht verfügbar")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		ErrorInternal(w, "Interner Fehler")
	}
}
