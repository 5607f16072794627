// internal/manifest/manifest.go
package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	custom_errors "addons-catalog/internal/errors"
	"addons-catalog/internal/model"
	"addons-catalog/internal/pyliteral"
)

// Manifest file names probed at a module's root, newest convention first.
var manifestNames = []string{"__manifest__.py", "__openerp__.py"}

// descriptionPath is the conventional location of a module's long HTML
// description, relative to the module directory.
var descriptionPath = filepath.Join("static", "description", "index.html")

// Extractor turns module directories into metadata records.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a new Extractor instance.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses the manifest of the module at dir. The second return value
// is false when the directory is not an installable module: no manifest file
// present, or the manifest carries a falsy installable value (default True).
// A manifest that exists but cannot be parsed, or that lacks a required
// field, is an error; the caller decides whether to skip or abort.
func (e *Extractor) Extract(dir string) (*model.ModuleMeta, bool, error) {
	path, ok := findManifest(dir)
	if !ok {
		return nil, false, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read manifest: %w", err)
	}

	// Manifests are untrusted third-party content: literal evaluation only.
	d, err := pyliteral.ParseDict(raw)
	if err != nil {
		return nil, false, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if v, present := d["installable"]; present && !truthy(v) {
		return nil, false, nil
	}

	title, ok := d["name"].(string)
	if !ok || title == "" {
		return nil, false, &custom_errors.ErrMissingField{Field: "name", Path: path}
	}
	author, ok := d["author"].(string)
	if !ok || author == "" {
		return nil, false, &custom_errors.ErrMissingField{Field: "author", Path: path}
	}

	depends, err := stringList(d, "depends")
	if err != nil {
		return nil, false, fmt.Errorf("manifest %s: %w", path, err)
	}
	// Historical key fallback: some manifests carry the singular spelling.
	maintainers, err := stringList(d, "maintainers")
	if err != nil {
		return nil, false, fmt.Errorf("manifest %s: %w", path, err)
	}
	if _, present := d["maintainers"]; !present {
		maintainers, err = stringList(d, "maintainer")
		if err != nil {
			return nil, false, fmt.Errorf("manifest %s: %w", path, err)
		}
	}

	meta := &model.ModuleMeta{
		Title:             title,
		Author:            author,
		Depends:           depends,
		Maintainers:       maintainers,
		DevelopmentStatus: optString(d, "development_status"),
		Summary:           optString(d, "summary"),
		Description:       readDescription(dir),
	}
	return meta, true, nil
}

// ScanRepository enumerates every immediate subdirectory of root as a
// candidate module and extracts each one. Directories without a manifest or
// marked non-installable are left out; a malformed manifest is logged and
// skipped so one bad module cannot abort the repository scan.
func (e *Extractor) ScanRepository(root string) (map[string]model.ModuleMeta, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan repository %s: %w", root, err)
	}

	modules := make(map[string]model.ModuleMeta)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, ok, err := e.Extract(filepath.Join(root, entry.Name()))
		if err != nil {
			e.logger.Warn("Skipping module with malformed manifest", "module", entry.Name(), "error", err)
			continue
		}
		if !ok {
			continue
		}
		modules[entry.Name()] = *meta
	}
	return modules, nil
}

func findManifest(dir string) (string, bool) {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func readDescription(dir string) string {
	raw, err := os.ReadFile(filepath.Join(dir, descriptionPath))
	if err != nil {
		return ""
	}
	return string(raw)
}

// truthy mirrors Python truthiness for manifest flags: False, zero numbers,
// None and empty strings or sequences all read as false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

func optString(d map[string]any, key string) string {
	s, _ := d[key].(string)
	return s
}

func stringList(d map[string]any, key string) ([]string, error) {
	v, present := d[key]
	if !present || v == nil {
		return []string{}, nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q is %T, expected a sequence", key, v)
	}
	out := make([]string, 0, len(seq))
	for _, item := range seq {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("field %q contains %T, expected strings", key, item)
		}
		out = append(out, s)
	}
	return out, nil
}
