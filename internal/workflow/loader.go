package workflow

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

// LoadDefinitions reads every *.yaml/*.yml file in dir and parses it as a
// models.WorkflowDefinition.
func LoadDefinitions(dir string) ([]models.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var defs []models.WorkflowDefinition
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		def, err := loadDefinitionFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Default().Warn("skipping unparsable workflow definition", "file", entry.Name(), "error", err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func loadDefinitionFile(path string) (models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.WorkflowDefinition{}, err
	}
	var def models.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return models.WorkflowDefinition{}, err
	}
	return def, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// DefinitionWatcher watches a directory of workflow definition files and
// re-registers whatever changed on the bound Engine, debouncing rapid
// successive writes from the same save.
type DefinitionWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	engine  *Engine
	dir     string

	debounce    map[string]time.Time
	debounceDur time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDefinitionWatcher builds a watcher bound to dir and engine.
func NewDefinitionWatcher(dir string, engine *Engine) (*DefinitionWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DefinitionWatcher{
		watcher:     w,
		engine:      engine,
		dir:         dir,
		debounce:    make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start loads every existing definition then begins watching dir for
// subsequent changes, non-blocking (runs its loop on its own goroutine).
func (w *DefinitionWatcher) Start() error {
	defs, err := LoadDefinitions(w.dir)
	if err != nil {
		return err
	}
	for _, def := range defs {
		w.engine.RegisterWorkflow(def)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		slog.Default().Warn("workflow definitions directory could not be created", "dir", w.dir, "error", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		slog.Default().Warn("workflow definitions directory watch failed", "dir", w.dir, "error", err)
	}

	go w.run()
	return nil
}

// Stop halts the watch loop and releases the underlying fsnotify watcher.
func (w *DefinitionWatcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *DefinitionWatcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			w.debounce[event.Name] = time.Now()
			w.mu.Unlock()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-ticker.C:
			w.reloadSettled()
		}
	}
}

func (w *DefinitionWatcher) reloadSettled() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounce {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounce, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		def, err := loadDefinitionFile(path)
		if err != nil {
			slog.Default().Warn("workflow definition hot-reload failed to parse file", "file", path, "error", err)
			continue
		}
		w.engine.RegisterWorkflow(def)
		slog.Default().Info("workflow definition reloaded", "id", def.ID, "file", path)
	}
}
