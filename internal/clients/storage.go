package clients

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrFileNotFound is returned by Open for names outside the export dir or
// files that no longer exist.
var ErrFileNotFound = errors.New("file not found")

// LocalStorage keeps generated exports on disk and serves them under
// PublicPrefix.
type LocalStorage struct {
	BaseDir      string
	PublicPrefix string
	BaseURL      string
}

func NewLocalStorage(baseDir, publicPrefix, baseURL string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if publicPrefix == "" {
		publicPrefix = "/files"
	}
	if !strings.HasPrefix(publicPrefix, "/") {
		publicPrefix = "/" + publicPrefix
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure storage dir %q: %w", baseDir, err)
	}

	return &LocalStorage{
		BaseDir:      baseDir,
		PublicPrefix: strings.TrimSuffix(publicPrefix, "/"),
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Store writes data under a collision-free name and returns that name.
func (s *LocalStorage) Store(ctx context.Context, fileName string, data []byte) (string, error) {
	fileName = filepath.Base(fileName)

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("generate file name: %w", err)
	}
	final := hex.EncodeToString(randBytes) + "_" + fileName

	path := filepath.Join(s.BaseDir, final)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize file: %w", err)
	}

	return final, nil
}

// URL builds the download link for a stored name. Without BaseURL the
// link is relative.
func (s *LocalStorage) URL(ctx context.Context, key string) (string, error) {
	return s.BaseURL + s.PublicPrefix + "/" + key, nil
}

// Open resolves a stored name to its path and the filename the user
// originally asked for.
func (s *LocalStorage) Open(key string) (path string, downloadName string, err error) {
	if key == "" || key != filepath.Base(key) || strings.HasSuffix(key, ".tmp") {
		return "", "", ErrFileNotFound
	}

	path = filepath.Join(s.BaseDir, key)
	if _, err := os.Stat(path); err != nil {
		return "", "", ErrFileNotFound
	}

	downloadName = key
	if idx := strings.IndexByte(key, '_'); idx >= 0 {
		downloadName = key[idx+1:]
	}
	return path, downloadName, nil
}

// CleanupOlderThan removes exports older than d and returns how many were
// deleted.
func (s *LocalStorage) CleanupOlderThan(d time.Duration) (int, error) {
	now := time.Now()
	removed := 0

	err := filepath.WalkDir(s.BaseDir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) <= d {
			return nil
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("remove expired export failed", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})

	return removed, err
}
