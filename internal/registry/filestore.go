package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// FileStore persists a Snapshot as indented JSON, writing to a temp file
// and renaming into place so a crash mid-write never corrupts state.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore rooted at path (e.g. <state-dir>/documents.json).
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Save(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return orcherr.Wrap(orcherr.Fatal, "marshal document registry snapshot", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return orcherr.Wrap(orcherr.Fatal, "create state directory", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return orcherr.Wrap(orcherr.Fatal, "write temp snapshot file", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return orcherr.Wrap(orcherr.Fatal, "rename snapshot into place", err)
	}
	return nil
}

func (f *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Fatal, "read snapshot file", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, orcherr.Wrap(orcherr.Fatal, "unmarshal snapshot file", err)
	}
	return &snap, nil
}
