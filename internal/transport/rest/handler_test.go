package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vereinskasse/internal/domain"
	"vereinskasse/internal/service"
	"vereinskasse/internal/transport/auth"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReminders struct {
	err error

	listStatus domain.ReminderStatus
	created    *service.CreateReminderInput
	updated    *service.UpdateReminderInput
	calledID   int64
	calledMID  int64

	mutation  *service.Mutation
	overviews []domain.MemberPaymentOverview
}

func (f *fakeReminders) Draft(ctx context.Context, memberID int64) (*service.Draft, error) {
	if f.err != nil {
		return nil, f.err
	}
	fee := decimal.RequireFromString("12.5")
	return &service.Draft{MemberID: memberID, Amount: &fee}, nil
}

func (f *fakeReminders) List(ctx context.Context, memberID int64, status domain.ReminderStatus) (*service.MemberReminders, error) {
	f.calledMID = memberID
	f.listStatus = status
	if f.err != nil {
		return nil, f.err
	}
	return &f.mutation.Member, nil
}

func (f *fakeReminders) Get(ctx context.Context, memberID, id int64) (*service.ReminderView, error) {
	f.calledMID, f.calledID = memberID, id
	if f.err != nil {
		return nil, f.err
	}
	return f.mutation.Reminder, nil
}

func (f *fakeReminders) Create(ctx context.Context, memberID int64, in service.CreateReminderInput) (*service.Mutation, error) {
	f.calledMID = memberID
	f.created = &in
	return f.mutation, f.err
}

func (f *fakeReminders) Update(ctx context.Context, memberID, id int64, in service.UpdateReminderInput) (*service.Mutation, error) {
	f.calledMID, f.calledID = memberID, id
	f.updated = &in
	return f.mutation, f.err
}

func (f *fakeReminders) Send(ctx context.Context, memberID, id int64) (*service.Mutation, error) {
	f.calledMID, f.calledID = memberID, id
	return f.mutation, f.err
}

func (f *fakeReminders) Delete(ctx context.Context, memberID, id int64) (*service.Mutation, error) {
	f.calledMID, f.calledID = memberID, id
	if f.err != nil {
		return nil, f.err
	}
	return &service.Mutation{Member: f.mutation.Member}, nil
}

func (f *fakeReminders) Overview(ctx context.Context) ([]domain.MemberPaymentOverview, error) {
	return f.overviews, f.err
}

func (f *fakeReminders) Dashboard(ctx context.Context) (*service.Dashboard, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := service.BuildDashboard(f.overviews)
	return &d, nil
}

type fakeExports struct {
	tier  *service.Tier
	views map[string]service.ExportView
}

func (f *fakeExports) StartExport(ctx context.Context, userID int64, tier *service.Tier) (string, error) {
	f.tier = tier
	return "exports:abc", nil
}

func (f *fakeExports) GetExports(ctx context.Context, userID int64) ([]service.ExportView, error) {
	out := []service.ExportView{}
	for _, v := range f.views {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeExports) GetExport(ctx context.Context, exportID string, userID int64) (*service.ExportView, error) {
	v, ok := f.views[exportID]
	if !ok {
		return nil, service.ErrExportNotFound
	}
	return &v, nil
}

func sampleMutation() *service.Mutation {
	email := "anna@example.org"
	fee := decimal.RequireFromString("12.50")
	notes := "März"
	rem := service.ReminderView{
		PaymentReminder: domain.PaymentReminder{
			ID:        5,
			MemberID:  1,
			Amount:    decimal.RequireFromString("1234.5"),
			DueDate:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			Status:    domain.StatusSent,
			Notes:     &notes,
			CreatedAt: time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
		},
		Effective: domain.StatusOverdue,
	}
	return &service.Mutation{
		Reminder: &rem,
		Member: service.MemberReminders{
			Member:    domain.Member{ID: 1, FirstName: "Anna", LastName: "Berg", Email: &email, BeitragMonthly: &fee},
			Reminders: []service.ReminderView{rem},
			Summary:   service.MemberSummary{OpenReminders: 1, OverdueCount: 1, TotalDue: rem.Amount},
		},
	}
}

func withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), auth.UserIDKey, int64(9))))
	})
}

func newTestServer(t *testing.T, reminders *fakeReminders, exports *fakeExports) *httptest.Server {
	t.Helper()
	if exports == nil {
		exports = &fakeExports{}
	}
	h := NewHandler(reminders, exports, exports, "exports:", time.UTC)
	srv := httptest.NewServer(h.InitRouterWithAuth(withUser))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, APIResponse, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw struct {
		APIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))

	var data map[string]any
	if len(raw.Data) > 0 && raw.Data[0] == '{' {
		require.NoError(t, json.Unmarshal(raw.Data, &data))
	}
	return resp.StatusCode, raw.APIResponse, data
}

func TestHandler_ListReminders(t *testing.T) {
	f := &fakeReminders{mutation: sampleMutation()}
	srv := newTestServer(t, f, nil)

	code, resp, data := do(t, srv, http.MethodGet, "/members/1/reminders?status=overdue", "")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, domain.StatusOverdue, f.listStatus)
	assert.Equal(t, int64(1), f.calledMID)

	summary := data["summary"].(map[string]any)
	assert.Equal(t, "1234.50", summary["total_due"])
	assert.Equal(t, float64(1), summary["overdue_count"])

	reminders := data["reminders"].([]any)
	require.Len(t, reminders, 1)
	first := reminders[0].(map[string]any)
	assert.Equal(t, "1234.50", first["amount"])
	assert.Equal(t, "1.234,50 €", first["amount_formatted"])
	assert.Equal(t, "2025-03-01", first["due_date"])
	assert.Equal(t, "sent", first["status"])
	assert.Equal(t, "overdue", first["effective_status"])

	member := data["member"].(map[string]any)
	assert.Equal(t, "Anna Berg", member["name"])
	assert.Equal(t, "12.50", member["beitrag_monthly"])
}

func TestHandler_ListRejectsUnknownStatus(t *testing.T) {
	srv := newTestServer(t, &fakeReminders{mutation: sampleMutation()}, nil)

	code, resp, _ := do(t, srv, http.MethodGet, "/members/1/reminders?status=cancelled", "")

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "cancelled")
}

func TestHandler_InvalidMemberID(t *testing.T) {
	srv := newTestServer(t, &fakeReminders{mutation: sampleMutation()}, nil)

	code, _, _ := do(t, srv, http.MethodGet, "/members/abc/reminders", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_CreateReminder(t *testing.T) {
	f := &fakeReminders{mutation: sampleMutation()}
	srv := newTestServer(t, f, nil)

	code, resp, data := do(t, srv, http.MethodPost, "/members/1/reminders",
		`{"amount":"0.10","due_date":"2025-04-01","notes":"April"}`)

	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Zahlungserinnerung angelegt", resp.Message)
	require.NotNil(t, f.created)
	assert.Equal(t, "0.1", f.created.Amount.String())
	assert.Equal(t, "2025-04-01", f.created.DueDate.Format("2006-01-02"))
	assert.Equal(t, "April", *f.created.Notes)
	assert.NotNil(t, data["reminder"])
	assert.NotNil(t, data["member_reminders"])
}

func TestHandler_CreateReminderParsesInputs(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		amount string
		due    string
	}{
		{"json number keeps precision", `{"amount":19.99,"due_date":"2025-04-01"}`, "19.99", "2025-04-01"},
		{"german decimal comma", `{"amount":"12,50","due_date":"2025-04-01"}`, "12.5", "2025-04-01"},
		{"german thousands grouping", `{"amount":"1.234,56","due_date":"2025-04-01"}`, "1234.56", "2025-04-01"},
		{"amount omitted", `{"due_date":"2025-04-01T23:30:00Z"}`, "", "2025-04-01"},
		{"date-time keeps its day", `{"amount":"5","due_date":"2025-04-01T08:00:00+02:00"}`, "5", "2025-04-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeReminders{mutation: sampleMutation()}
			srv := newTestServer(t, f, nil)

			code, _, _ := do(t, srv, http.MethodPost, "/members/1/reminders", tt.body)
			require.Equal(t, http.StatusCreated, code)

			if tt.amount == "" {
				assert.Nil(t, f.created.Amount)
			} else {
				assert.Equal(t, tt.amount, f.created.Amount.String())
			}
			assert.Equal(t, tt.due, f.created.DueDate.Format("2006-01-02"))
		})
	}
}

func TestHandler_CreateReminderBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"amount":`},
		{"amount not a number", `{"amount":"zwölf","due_date":"2025-04-01"}`},
		{"amount with english grouping", `{"amount":"1,234.56","due_date":"2025-04-01"}`},
		{"amount wrong type", `{"amount":true,"due_date":"2025-04-01"}`},
		{"date garbage", `{"amount":"5","due_date":"01.04.2025"}`},
		{"notes wrong type", `{"amount":"5","due_date":"2025-04-01","notes":12}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeReminders{mutation: sampleMutation()}
			srv := newTestServer(t, f, nil)

			code, resp, _ := do(t, srv, http.MethodPost, "/members/1/reminders", tt.body)

			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, resp.Message)
			assert.Nil(t, f.created)
		})
	}
}

func TestHandler_UpdateMarksPaid(t *testing.T) {
	f := &fakeReminders{mutation: sampleMutation()}
	srv := newTestServer(t, f, nil)

	code, _, _ := do(t, srv, http.MethodPut, "/members/1/reminders/5", `{"status":"paid"}`)

	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, f.updated)
	assert.Equal(t, domain.StatusPaid, *f.updated.Status)
	assert.Nil(t, f.updated.Amount)
	assert.Equal(t, int64(5), f.calledID)
}

func TestHandler_UpdateRejectsNullAmount(t *testing.T) {
	f := &fakeReminders{mutation: sampleMutation()}
	srv := newTestServer(t, f, nil)

	code, _, _ := do(t, srv, http.MethodPut, "/members/1/reminders/5", `{"amount":""}`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Nil(t, f.updated)
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		code   int
	}{
		{"validation", domain.NewValidationError("amount", "Der Betrag muss größer als 0 sein."), http.MethodPut, "/members/1/reminders/5", http.StatusBadRequest},
		{"member missing", domain.ErrMemberNotFound, http.MethodGet, "/members/1/reminders", http.StatusNotFound},
		{"reminder missing", domain.ErrReminderNotFound, http.MethodDelete, "/members/1/reminders/5", http.StatusNotFound},
		{"paid", domain.ErrReminderPaid, http.MethodPost, "/members/1/reminders/5/send", http.StatusConflict},
		{"in progress", domain.ErrSendInProgress, http.MethodPost, "/members/1/reminders/5/send", http.StatusConflict},
		{"no email", domain.ErrNoEmail, http.MethodPost, "/members/1/reminders/5/send", http.StatusUnprocessableEntity},
		{"delivery", &domain.DeliveryError{ReminderID: 5, Err: errors.New("502 from gateway")}, http.MethodPost, "/members/1/reminders/5/send", http.StatusBadGateway},
		{"unexpected", errors.New("connection reset"), http.MethodGet, "/members/payment-overview", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeReminders{mutation: sampleMutation(), err: tt.err}, nil)

			code, resp, _ := do(t, srv, tt.method, tt.path, "")

			assert.Equal(t, tt.code, code)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.code, resp.ErrorCode)
			assert.NotContains(t, resp.Message, "connection reset")
		})
	}
}

func TestHandler_DeleteReturnsMemberState(t *testing.T) {
	f := &fakeReminders{mutation: sampleMutation()}
	srv := newTestServer(t, f, nil)

	code, _, data := do(t, srv, http.MethodDelete, "/members/1/reminders/5", "")

	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, data["reminder"])
	assert.NotNil(t, data["member_reminders"])
}

func TestHandler_Draft(t *testing.T) {
	srv := newTestServer(t, &fakeReminders{mutation: sampleMutation()}, nil)

	code, _, data := do(t, srv, http.MethodGet, "/members/3/reminders/draft", "")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), data["member_id"])
	assert.Equal(t, "12.50", data["amount"])
}

func TestHandler_PaymentOverviewAndDashboard(t *testing.T) {
	f := &fakeReminders{overviews: []domain.MemberPaymentOverview{
		{MemberID: 1, MemberName: "Anna Berg", TotalDue: decimal.Zero},
		{MemberID: 2, MemberName: "Bernd Kurz", OpenReminders: 1, TotalDue: decimal.RequireFromString("10.05")},
		{MemberID: 3, MemberName: "Charlie Vogt", OpenReminders: 2, OverdueCount: 1, TotalDue: decimal.RequireFromString("5.46")},
	}}
	srv := newTestServer(t, f, nil)

	resp, err := http.Get(srv.URL + "/members/payment-overview")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list struct {
		Data []overviewDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Data, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{list.Data[0].MemberID, list.Data[1].MemberID, list.Data[2].MemberID})
	assert.Equal(t, "0.00", list.Data[0].TotalDue)

	code, _, data := do(t, srv, http.MethodGet, "/members/payment-overview/dashboard", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "15.51", data["total_due"])
	assert.Equal(t, "15,51 €", data["total_due_formatted"])
	assert.Equal(t, float64(1), data["overdue_member_count"])
	assert.Equal(t, float64(2), data["members_with_open_reminders_count"])

	members := data["members"].([]any)
	require.Len(t, members, 3)
	assert.Equal(t, float64(3), members[0].(map[string]any)["member_id"])
	assert.Equal(t, "overdue", members[0].(map[string]any)["tier"])
	assert.Equal(t, "paid_up", members[2].(map[string]any)["tier"])
}

func TestHandler_Exports(t *testing.T) {
	exports := &fakeExports{views: map[string]service.ExportView{
		"exports:abc": {Key: "exports:abc", Type: "payment_overview", Progress: 100},
	}}
	srv := newTestServer(t, &fakeReminders{mutation: sampleMutation()}, exports)

	code, _, data := do(t, srv, http.MethodPost, "/export/payment-overview", `{"tier":"overdue"}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "exports:abc", data["export_id"])
	require.NotNil(t, exports.tier)
	assert.Equal(t, service.TierOverdue, *exports.tier)

	code, _, _ = do(t, srv, http.MethodPost, "/export/payment-overview", `{"tier":"everyone"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, data = do(t, srv, http.MethodGet, "/export/abc", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(100), data["progress"])

	code, _, _ = do(t, srv, http.MethodGet, "/export/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
}
