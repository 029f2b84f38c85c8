package rest

import (
	"context"
	"net/http"
	"time"

	"vereinskasse/internal/domain"
	"vereinskasse/internal/service"
	"vereinskasse/internal/transport/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ReminderService interface {
	Draft(ctx context.Context, memberID int64) (*service.Draft, error)
	List(ctx context.Context, memberID int64, status domain.ReminderStatus) (*service.MemberReminders, error)
	Get(ctx context.Context, memberID, id int64) (*service.ReminderView, error)
	Create(ctx context.Context, memberID int64, in service.CreateReminderInput) (*service.Mutation, error)
	Update(ctx context.Context, memberID, id int64, in service.UpdateReminderInput) (*service.Mutation, error)
	Send(ctx context.Context, memberID, id int64) (*service.Mutation, error)
	Delete(ctx context.Context, memberID, id int64) (*service.Mutation, error)
	Overview(ctx context.Context) ([]domain.MemberPaymentOverview, error)
	Dashboard(ctx context.Context) (*service.Dashboard, error)
}

type OverviewExporter interface {
	StartExport(ctx context.Context, userID int64, tier *service.Tier) (string, error)
}

type ExportListService interface {
	GetExports(ctx context.Context, userID int64) ([]service.ExportView, error)
	GetExport(ctx context.Context, exportID string, userID int64) (*service.ExportView, error)
}

type Handler struct {
	reminders    ReminderService
	exporter     OverviewExporter
	exportList   ExportListService
	exportPrefix string
	loc          *time.Location
}

func NewHandler(reminders ReminderService, exporter OverviewExporter, exportList ExportListService, exportPrefix string, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	if exportPrefix == "" {
		exportPrefix = "exports:"
	}
	return &Handler{
		reminders:    reminders,
		exporter:     exporter,
		exportList:   exportList,
		exportPrefix: exportPrefix,
		loc:          loc,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		auth.QueryToken,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}

	r.Route("/members", func(r chi.Router) {
		r.Get("/payment-overview", h.paymentOverview)
		r.Get("/payment-overview/dashboard", h.paymentDashboard)

		r.Route("/{member_id}/reminders", func(r chi.Router) {
			r.Get("/", h.listReminders)
			r.Post("/", h.createReminder)
			r.Get("/draft", h.draftReminder)

			r.Route("/{reminder_id}", func(r chi.Router) {
				r.Get("/", h.getReminder)
				r.Put("/", h.updateReminder)
				r.Delete("/", h.deleteReminder)
				r.Post("/send", h.sendReminder)
			})
		})
	})

	r.Route("/export", func(r chi.Router) {
		r.Get("/", h.listExports)
		r.Get("/{export_id}", h.getExport)
		r.Post("/payment-overview", h.exportPaymentOverview)
	})

	return r
}
