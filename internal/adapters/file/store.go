package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/sealgate/pkg/domain"
)

// Store implements ports.SessionStore using the local filesystem.
// It stores sessions as JSON files in a configured directory, one file per key.
// File modification times drive idle eviction.
type Store struct {
	BasePath string
	TTL      time.Duration
	now      func() time.Time
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".sealgate/sessions".
func New(basePath string, ttl time.Duration) *Store {
	if basePath == "" {
		basePath = filepath.Join(".sealgate", "sessions")
	}
	return &Store{BasePath: basePath, TTL: ttl, now: time.Now}
}

func (s *Store) path(key domain.SessionKey) (string, error) {
	if !key.Valid() {
		return "", fmt.Errorf("incomplete session key %q", key.String())
	}
	return filepath.Join(s.BasePath, url.PathEscape(key.String())+".json"), nil
}

func (s *Store) expired(info os.FileInfo) bool {
	return s.TTL > 0 && s.now().Sub(info.ModTime()) > s.TTL
}

// Put persists the session to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Put(ctx context.Context, key domain.SessionKey, session *domain.Session) error {
	destPath, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0o700); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-*.json.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// os.Rename replaces atomically on POSIX; Windows needs the target gone first.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing session file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to session file: %w", err)
	}
	return nil
}

// Get reads the session file and refreshes its idle timer.
func (s *Store) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	filePath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.NewBackendError("stat session file", err)
	}
	if s.expired(info) {
		_ = os.Remove(filePath)
		return nil, domain.ErrSessionNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.NewBackendError("read session file", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}

	now := s.now()
	_ = os.Chtimes(filePath, now, now)
	return &session, nil
}

// Delete removes the session file.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// Size counts session files that have not been idle past the TTL.
func (s *Store) Size(ctx context.Context) (int64, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	var n int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil || s.expired(info) {
			continue
		}
		n++
	}
	return n, nil
}
