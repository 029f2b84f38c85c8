package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"vereinskasse/internal/clients"
)

var (
	ErrExportNotFound     = errors.New("export not found")
	ErrExportsUnavailable = errors.New("export status store not configured")
)

const (
	exportSetKey = "export_ids"
	exportTTL    = 20 * time.Minute
)

// ExportCache keeps export job status. RedisClient satisfies it.
type ExportCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SAdd(ctx context.Context, key string, members ...any) error
	SRem(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

type ExportStatus struct {
	Key      string         `json:"key"`
	Type     string         `json:"type"`
	UserID   int64          `json:"user_id"`
	Filters  map[string]any `json:"filters"`
	Progress float64        `json:"progress"`
	FileURL  *string        `json:"file_url"`
	FileName string         `json:"file_name,omitempty"`
	Error    string         `json:"error,omitempty"`
	Created  time.Time      `json:"created_at"`
}

// ExportView is an ExportStatus as the API shows it.
type ExportView struct {
	Key          string         `json:"key"`
	Type         string         `json:"type"`
	Progress     float64        `json:"progress"`
	FileURL      *string        `json:"file_url"`
	FileName     string         `json:"file_name,omitempty"`
	Error        string         `json:"error,omitempty"`
	Filters      map[string]any `json:"filters"`
	CreatedAt    time.Time      `json:"created_at"`
	CreatedHuman string         `json:"created_human"`
}

type ExportService struct {
	cache ExportCache
	now   func() time.Time
}

func NewExportService(cache ExportCache) *ExportService {
	return &ExportService{
		cache: cache,
		now:   time.Now,
	}
}

func (s *ExportService) save(ctx context.Context, st *ExportStatus) error {
	if s.cache == nil {
		return ErrExportsUnavailable
	}

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, st.Key, string(data), exportTTL); err != nil {
		return err
	}
	return s.cache.SAdd(ctx, exportSetKey, st.Key)
}

func (s *ExportService) load(ctx context.Context, key string) (*ExportStatus, error) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var st ExportStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("parse export status: %w", err)
	}
	return &st, nil
}

func (s *ExportService) toView(st ExportStatus) ExportView {
	return ExportView{
		Key:          st.Key,
		Type:         st.Type,
		Progress:     st.Progress,
		FileURL:      st.FileURL,
		FileName:     st.FileName,
		Error:        st.Error,
		Filters:      st.Filters,
		CreatedAt:    st.Created,
		CreatedHuman: humanizeDeAgo(st.Created, s.now()),
	}
}

// GetExports lists the user's unexpired exports, newest first. Keys whose
// status already expired are pruned from the index.
func (s *ExportService) GetExports(ctx context.Context, userID int64) ([]ExportView, error) {
	if s.cache == nil {
		return nil, ErrExportsUnavailable
	}

	keys, err := s.cache.SMembers(ctx, exportSetKey)
	if err != nil {
		return nil, fmt.Errorf("get export keys: %w", err)
	}

	var statuses []ExportStatus
	for _, key := range keys {
		st, err := s.load(ctx, key)
		if errors.Is(err, clients.ErrCacheMiss) {
			_ = s.cache.SRem(ctx, exportSetKey, key)
			continue
		}
		if err != nil {
			slog.Warn("load export status failed", "export_id", key, "error", err)
			continue
		}
		if st.UserID == userID {
			statuses = append(statuses, *st)
		}
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})

	out := make([]ExportView, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, s.toView(st))
	}
	return out, nil
}

func (s *ExportService) GetExport(ctx context.Context, exportID string, userID int64) (*ExportView, error) {
	if s.cache == nil {
		return nil, ErrExportsUnavailable
	}

	st, err := s.load(ctx, exportID)
	if err != nil || st.UserID != userID {
		return nil, ErrExportNotFound
	}

	v := s.toView(*st)
	return &v, nil
}

func humanizeDeAgo(t, now time.Time) string {
	if t.After(now) {
		return "gerade eben"
	}

	minutes := int(now.Sub(t).Minutes())
	if minutes < 1 {
		return "gerade eben"
	}
	if minutes < 60 {
		return fmt.Sprintf("vor %d %s", minutes, dePlural(minutes, "Minute", "Minuten"))
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("vor %d %s", hours, dePlural(hours, "Stunde", "Stunden"))
	}
	days := hours / 24
	if days < 30 {
		return fmt.Sprintf("vor %d %s", days, dePlural(days, "Tag", "Tagen"))
	}
	return t.Format("02.01.2006 15:04")
}

func dePlural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
