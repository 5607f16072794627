// internal/store/bootstrap.go
package store

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

var bootstrapClient = &http.Client{Timeout: 2 * time.Minute}

// EnsureLocal prepares the store file at path before it is opened. With
// clean set, any existing file is removed so the run starts from an empty
// store. Otherwise, if no local file exists, a previously published snapshot
// is fetched from url — best effort, a failed download is logged and the run
// falls back to a fresh store.
func EnsureLocal(path, url string, clean bool, logger *slog.Logger) {
	if clean {
		if err := os.Remove(path); err == nil {
			logger.Info("Removed existing store for a clean run", "path", path)
		}
		return
	}
	if _, err := os.Stat(path); err == nil {
		return
	}

	logger.Info("No local store found, fetching published snapshot", "url", url)
	resp, err := bootstrapClient.Get(url)
	if err != nil {
		logger.Warn("Store bootstrap download failed, starting empty", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Warn("Store bootstrap download failed, starting empty", "status", resp.Status)
		return
	}

	f, err := os.Create(path)
	if err != nil {
		logger.Warn("Cannot create store file, starting empty", "error", err)
		return
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		logger.Warn("Store bootstrap download interrupted, starting empty", "error", err)
		os.Remove(path)
		return
	}
	logger.Info("Store bootstrap complete", "path", path)
}
