// internal/snapshot/snapshot.go
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"addons-catalog/internal/model"
)

// Exporter writes the aggregate result of a run to flat snapshot files,
// named per version label. Both files are full overwrites.
type Exporter struct {
	dir     string
	version string
	logger  *slog.Logger
}

// NewExporter creates a new Exporter instance writing into dir.
func NewExporter(dir, version string, logger *slog.Logger) *Exporter {
	return &Exporter{dir: dir, version: version, logger: logger}
}

// FullPath is where the full-metadata snapshot lands.
func (e *Exporter) FullPath() string {
	return filepath.Join(e.dir, fmt.Sprintf("modules-%s.json", e.version))
}

// NamesPath is where the module-name listing lands.
func (e *Exporter) NamesPath() string {
	return filepath.Join(e.dir, fmt.Sprintf("module-names-%s.json", e.version))
}

// Export serializes the full per-organization, per-repository module map,
// then reduces it to sorted module-name listings and writes those too.
func (e *Exporter) Export(result *model.RunResult) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	if err := writeJSON(e.FullPath(), result.Modules); err != nil {
		return err
	}
	if err := writeJSON(e.NamesPath(), Names(result)); err != nil {
		return err
	}
	e.logger.Info("Snapshots written", "full", e.FullPath(), "names", e.NamesPath())
	return nil
}

// Names reduces the full metadata map to sorted module names per
// organization and repository.
func Names(result *model.RunResult) map[string]map[string][]string {
	names := make(map[string]map[string][]string, len(result.Modules))
	for org, repos := range result.Modules {
		names[org] = make(map[string][]string, len(repos))
		for repo, modules := range repos {
			list := make([]string, 0, len(modules))
			for name := range modules {
				list = append(list, name)
			}
			sort.Strings(list)
			names[org][repo] = list
		}
	}
	return names
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}
