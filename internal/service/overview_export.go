package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vereinskasse/internal/domain"
	"vereinskasse/internal/metrics"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	overviewExportType  = "payment_overview"
	overviewSheet       = "Beitragsübersicht"
	overviewExportLimit = 2 * time.Minute
)

type OverviewSource interface {
	Overview(ctx context.Context) ([]domain.MemberPaymentOverview, error)
}

// ExportStore persists a finished workbook and hands out its link.
// LocalStorage and S3Client satisfy it.
type ExportStore interface {
	Store(ctx context.Context, fileName string, data []byte) (string, error)
	URL(ctx context.Context, key string) (string, error)
}

type ExportNotifier interface {
	NotifyExportProgress(ctx context.Context, userID int64, exportID string, progress float64, stage string) error
	NotifyExportComplete(ctx context.Context, userID int64, exportID string, url string, filename string) error
	NotifyExportFailed(ctx context.Context, userID int64, exportID string, errMsg string) error
}

type OverviewExportService struct {
	*ExportService

	source   OverviewSource
	store    ExportStore
	notifier ExportNotifier
	metrics  *metrics.Metrics
	prefix   string
	loc      *time.Location

	wg sync.WaitGroup
}

func NewOverviewExportService(
	exports *ExportService,
	source OverviewSource,
	store ExportStore,
	notifier ExportNotifier,
	m *metrics.Metrics,
	prefix string,
	loc *time.Location,
) *OverviewExportService {
	if prefix == "" {
		prefix = "exports:"
	}
	if loc == nil {
		loc = time.Local
	}
	return &OverviewExportService{
		ExportService: exports,
		source:        source,
		store:         store,
		notifier:      notifier,
		metrics:       m,
		prefix:        prefix,
		loc:           loc,
	}
}

// ParseTier reads a tier filter; empty means every member.
func ParseTier(s string) (*Tier, bool) {
	var t Tier
	switch s {
	case "":
		return nil, true
	case "overdue":
		t = TierOverdue
	case "open":
		t = TierOpen
	case "paid_up":
		t = TierPaidUp
	default:
		return nil, false
	}
	return &t, true
}

// StartExport records a new job and builds the workbook in the
// background. The returned id is the job's status key.
func (s *OverviewExportService) StartExport(ctx context.Context, userID int64, tier *Tier) (string, error) {
	if s.store == nil {
		return "", ErrExportsUnavailable
	}

	filters := map[string]any{"tier": nil}
	if tier != nil {
		filters["tier"] = tier.String()
	}

	status := &ExportStatus{
		Key:     s.prefix + uuid.NewString(),
		Type:    overviewExportType,
		UserID:  userID,
		Filters: filters,
		Created: s.now(),
	}
	if err := s.save(ctx, status); err != nil {
		return "", fmt.Errorf("save export status: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), overviewExportLimit)
		defer cancel()
		s.run(jobCtx, status, tier)
	}()

	return status.Key, nil
}

// Wait blocks until running exports have finished or ctx is done.
func (s *OverviewExportService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *OverviewExportService) progress(ctx context.Context, st *ExportStatus, progress float64, stage string) {
	st.Progress = progress
	if err := s.save(ctx, st); err != nil {
		slog.Warn("save export status failed", "export_id", st.Key, "error", err)
	}
	if s.notifier != nil {
		_ = s.notifier.NotifyExportProgress(ctx, st.UserID, st.Key, progress, stage)
	}
}

func (s *OverviewExportService) fail(ctx context.Context, st *ExportStatus, err error) {
	slog.Error("payment overview export failed", "export_id", st.Key, "user_id", st.UserID, "error", err)
	s.metrics.ObserveExport(metrics.OutcomeFailed)

	st.Error = "Export fehlgeschlagen"
	if saveErr := s.save(ctx, st); saveErr != nil {
		slog.Warn("save export status failed", "export_id", st.Key, "error", saveErr)
	}
	if s.notifier != nil {
		_ = s.notifier.NotifyExportFailed(ctx, st.UserID, st.Key, st.Error)
	}
}

func (s *OverviewExportService) run(ctx context.Context, st *ExportStatus, tier *Tier) {
	s.progress(ctx, st, 5, "loading")

	overviews, err := s.source.Overview(ctx)
	if err != nil {
		s.fail(ctx, st, err)
		return
	}

	rows := OrderByTier(overviews)
	if tier != nil {
		filtered := rows[:0]
		for _, o := range rows {
			if TierOf(o) == *tier {
				filtered = append(filtered, o)
			}
		}
		rows = filtered
	}

	s.progress(ctx, st, 30, "generating")

	created := st.Created.In(s.loc)
	data, err := buildOverviewWorkbook(rows, created, st.UserID)
	if err != nil {
		s.fail(ctx, st, err)
		return
	}

	s.progress(ctx, st, 90, "uploading")

	fileName := fmt.Sprintf("beitragsuebersicht_%s.xlsx", created.Format("20060102_150405"))
	key, err := s.store.Store(ctx, fileName, data)
	if err != nil {
		s.fail(ctx, st, err)
		return
	}
	url, err := s.store.URL(ctx, key)
	if err != nil {
		s.fail(ctx, st, err)
		return
	}

	st.FileURL = &url
	st.FileName = fileName
	s.progress(ctx, st, 100, "ready")
	s.metrics.ObserveExport(metrics.OutcomeOK)

	if s.notifier != nil {
		_ = s.notifier.NotifyExportComplete(ctx, st.UserID, st.Key, url, fileName)
	}
	slog.Info("payment overview export finished", "export_id", st.Key, "rows", len(rows))
}

func tierLabel(t Tier) string {
	switch t {
	case TierOverdue:
		return "Überfällig"
	case TierOpen:
		return "Offen"
	default:
		return "Bezahlt"
	}
}

var overviewHeaders = []string{
	"Mitglied",
	"E-Mail",
	"Monatsbeitrag",
	"Offene Erinnerungen",
	"Davon überfällig",
	"Offener Betrag",
	"Status",
}

// buildOverviewWorkbook writes one row per member and a totals row.
// Amounts are numeric cells with a euro number format.
func buildOverviewWorkbook(rows []domain.MemberPaymentOverview, created time.Time, userID int64) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), overviewSheet); err != nil {
		return nil, err
	}
	_ = f.SetDocProps(&excelize.DocProperties{
		Creator: fmt.Sprintf("user_%d", userID),
		Title:   "Beitragsübersicht " + FormatDate(created),
	})

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	euroFmt := `#,##0.00 "€"`
	euro, err := f.NewStyle(&excelize.Style{CustomNumFmt: &euroFmt})
	if err != nil {
		return nil, err
	}
	euroBold, err := f.NewStyle(&excelize.Style{CustomNumFmt: &euroFmt, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	header := make([]any, len(overviewHeaders))
	for i, h := range overviewHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(overviewSheet, "A1", &header); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(overviewSheet, "A1", "G1", bold)

	dashboard := BuildDashboard(rows)
	rowIdx := 2
	for _, o := range rows {
		var email, fee any = "", ""
		if o.Email != nil {
			email = *o.Email
		}
		if o.BeitragMonthly != nil {
			fee = o.BeitragMonthly.InexactFloat64()
		}

		cell, _ := excelize.CoordinatesToCellName(1, rowIdx)
		row := []any{
			o.MemberName,
			email,
			fee,
			o.OpenReminders,
			o.OverdueCount,
			o.TotalDue.InexactFloat64(),
			tierLabel(TierOf(o)),
		}
		if err := f.SetSheetRow(overviewSheet, cell, &row); err != nil {
			return nil, err
		}
		c, _ := excelize.CoordinatesToCellName(3, rowIdx)
		_ = f.SetCellStyle(overviewSheet, c, c, euro)
		c, _ = excelize.CoordinatesToCellName(6, rowIdx)
		_ = f.SetCellStyle(overviewSheet, c, c, euro)
		rowIdx++
	}

	totalRow := rowIdx + 1
	cell, _ := excelize.CoordinatesToCellName(1, totalRow)
	totals := []any{
		"Summe",
		"",
		"",
		dashboard.MembersWithOpenRemindersCount,
		dashboard.OverdueMemberCount,
		dashboard.TotalDue.InexactFloat64(),
	}
	if err := f.SetSheetRow(overviewSheet, cell, &totals); err != nil {
		return nil, err
	}
	start, _ := excelize.CoordinatesToCellName(1, totalRow)
	end, _ := excelize.CoordinatesToCellName(5, totalRow)
	_ = f.SetCellStyle(overviewSheet, start, end, bold)
	c, _ := excelize.CoordinatesToCellName(6, totalRow)
	_ = f.SetCellStyle(overviewSheet, c, c, euroBold)

	_ = f.SetColWidth(overviewSheet, "A", "B", 28)
	_ = f.SetColWidth(overviewSheet, "C", "G", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
