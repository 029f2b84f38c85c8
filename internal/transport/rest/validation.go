package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vereinskasse/internal/domain"
	"vereinskasse/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 64 << 10

type rawCreateReminderRequest struct {
	Amount  interface{} `json:"amount"`
	DueDate interface{} `json:"due_date"`
	Notes   interface{} `json:"notes"`
}

type rawUpdateReminderRequest struct {
	Status  interface{} `json:"status"`
	Amount  interface{} `json:"amount"`
	DueDate interface{} `json:"due_date"`
	Notes   interface{} `json:"notes"`
}

type rawExportOverviewRequest struct {
	Tier string `json:"tier"`
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("body", "Ungültiges JSON.")
	}
	return nil
}

// germanAmount matches "12,50" and "1.234,56": comma decimals with
// optional dot grouping.
var germanAmount = regexp.MustCompile(`^-?(\d{1,3}(\.\d{3})+|\d+),\d+$`)

// toAmount accepts decimal strings ("12.50", German "1.234,56") and JSON
// numbers, without going through float64.
func toAmount(v interface{}) (*decimal.Decimal, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		if germanAmount.MatchString(s) {
			s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
	default:
		return nil, domain.NewValidationError("amount", "Der Betrag muss eine Zahl sein.")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, domain.NewValidationError("amount", "Der Betrag %q ist keine gültige Zahl.", s)
	}
	return &d, nil
}

// toDate accepts an ISO 8601 date or date-time. Date-times are read in loc
// so the calendar day is the club's.
func toDate(field string, v interface{}, loc *time.Location) (*time.Time, error) {
	s, ok := v.(string)
	if v == nil || (ok && strings.TrimSpace(s) == "") {
		return nil, nil
	}
	if !ok {
		return nil, domain.NewValidationError(field, "Das Datum muss als Text angegeben werden.")
	}
	s = strings.TrimSpace(s)

	if d, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return &d, nil
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		d = d.In(loc)
		return &d, nil
	}
	if d, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return &d, nil
	}
	return nil, domain.NewValidationError(field, "Ungültiges Datum %q, erwartet JJJJ-MM-TT.", s)
}

func toNotes(v interface{}) (*string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &t, nil
	default:
		return nil, domain.NewValidationError("notes", "Notizen müssen Text sein.")
	}
}

func toStatus(v interface{}) (*domain.ReminderStatus, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		st := domain.ReminderStatus(strings.TrimSpace(t))
		return &st, nil
	default:
		return nil, domain.NewValidationError("status", "Der Status muss Text sein.")
	}
}

func ValidateCreateReminderRequest(r *http.Request, loc *time.Location) (*service.CreateReminderInput, error) {
	var raw rawCreateReminderRequest
	if err := decodeBody(r, &raw); err != nil {
		return nil, err
	}

	amount, err := toAmount(raw.Amount)
	if err != nil {
		return nil, err
	}
	dueDate, err := toDate("due_date", raw.DueDate, loc)
	if err != nil {
		return nil, err
	}
	notes, err := toNotes(raw.Notes)
	if err != nil {
		return nil, err
	}

	return &service.CreateReminderInput{Amount: amount, DueDate: dueDate, Notes: notes}, nil
}

func ValidateUpdateReminderRequest(r *http.Request, loc *time.Location) (*service.UpdateReminderInput, error) {
	var raw rawUpdateReminderRequest
	if err := decodeBody(r, &raw); err != nil {
		return nil, err
	}

	status, err := toStatus(raw.Status)
	if err != nil {
		return nil, err
	}
	amount, err := toAmount(raw.Amount)
	if err != nil {
		return nil, err
	}
	if amount == nil && raw.Amount != nil {
		return nil, domain.NewValidationError("amount", "Bitte einen Betrag angeben.")
	}
	dueDate, err := toDate("due_date", raw.DueDate, loc)
	if err != nil {
		return nil, err
	}
	if dueDate == nil && raw.DueDate != nil {
		return nil, domain.NewValidationError("due_date", "Bitte ein Fälligkeitsdatum angeben.")
	}
	notes, err := toNotes(raw.Notes)
	if err != nil {
		return nil, err
	}

	return &service.UpdateReminderInput{Status: status, Amount: amount, DueDate: dueDate, Notes: notes}, nil
}

func ValidateStatusFilter(r *http.Request) (domain.ReminderStatus, error) {
	s := strings.TrimSpace(r.URL.Query().Get("status"))
	if s == "" {
		return "", nil
	}
	st, ok := domain.ParseReminderStatus(s)
	if !ok {
		return "", domain.NewValidationError("status", "Unbekannter Status %q.", s)
	}
	return st, nil
}

func ValidateExportOverviewRequest(r *http.Request) (*service.Tier, error) {
	var raw rawExportOverviewRequest
	if err := decodeBody(r, &raw); err != nil {
		return nil, err
	}
	tier, ok := service.ParseTier(strings.TrimSpace(raw.Tier))
	if !ok {
		return nil, domain.NewValidationError("tier", "tier muss overdue, open oder paid_up sein.")
	}
	return tier, nil
}

var errInvalidID = errors.New("invalid id")

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s: %w", name, errInvalidID)
	}
	return id, nil
}
