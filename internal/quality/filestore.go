package quality

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// FileStore persists gate reports as indented JSON, writing to a temp
// file and renaming into place (same atomic-persist idiom as
// internal/registry.FileStore).
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore rooted at path (e.g. <state-dir>/gate_reports.json).
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Save(ctx context.Context, reports map[string]*models.GateReport) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return orcherr.Wrap(orcherr.Fatal, "marshal gate reports", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return orcherr.Wrap(orcherr.Fatal, "create state directory", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return orcherr.Wrap(orcherr.Fatal, "write temp gate reports file", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return orcherr.Wrap(orcherr.Fatal, "rename gate reports into place", err)
	}
	return nil
}

func (f *FileStore) Load(ctx context.Context) (map[string]*models.GateReport, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Fatal, "read gate reports file", err)
	}

	var reports map[string]*models.GateReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, orcherr.Wrap(orcherr.Fatal, "unmarshal gate reports file", err)
	}
	return reports, nil
}
