package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the session as a JSON file readable only by the owner.
// A missing file means no one is logged in.
type FileStore struct {
	path string
	mu   sync.Mutex
	log  *slog.Logger
}

// NewFileStore creates a file-backed store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		log:  slog.Default().With(slog.String("component", "session-file")),
	}
}

// DefaultPath returns the credentials file for a named config context
func DefaultPath(contextName string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	filename := fmt.Sprintf("credentials-%s.json", contextName)
	return filepath.Join(homeDir, ".config", "prodpro", filename), nil
}

// Path returns the location of the credentials file
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Set(_ context.Context, pair Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := writeFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	f.log.Debug("credentials saved", slog.String("path", f.path))
	return nil
}

func (f *FileStore) Access(_ context.Context) (string, error) {
	pair, err := f.load()
	return pair.Access, err
}

func (f *FileStore) Refresh(_ context.Context) (string, error) {
	pair, err := f.load()
	return pair.Refresh, err
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

func (f *FileStore) load() (Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Pair{}, nil
		}
		return Pair{}, fmt.Errorf("failed to read credentials: %w", err)
	}

	var pair Pair
	if err := json.Unmarshal(data, &pair); err != nil {
		return Pair{}, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return pair, nil
}

// writeFileAtomic replaces path with data so that concurrent readers see
// either the old or the new contents, never a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := writeAndSync(tmp, data); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func writeAndSync(tmp *os.File, data []byte) error {
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	return tmp.Close()
}
