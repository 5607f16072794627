// internal/api/handler.go
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"addons-catalog/internal/model"
)

// Catalog is the read side of the store the API serves from.
type Catalog interface {
	GetRepositoryByOrgAndName(ctx context.Context, organization, name string) (model.Repository, error)
	ListModules(ctx context.Context, repositoryID int64) ([]model.Module, error)
	ListCommits(ctx context.Context, repositoryID int64) ([]model.Commit, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(catalog Catalog, logger *slog.Logger) http.Handler {
	h := &Handler{catalog: catalog, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/orgs/{org}/repos/{name}/modules", h.getModules)
		r.Get("/orgs/{org}/repos/{name}/commits", h.getCommits)
	})

	return r
}

type moduleResponse struct {
	Name              string   `json:"name"`
	Title             string   `json:"title"`
	Author            string   `json:"author"`
	Depends           []string `json:"depends"`
	Maintainers       []string `json:"maintainers"`
	DevelopmentStatus string   `json:"development_status,omitempty"`
	Summary           string   `json:"summary,omitempty"`
}

type commitResponse struct {
	Hash        string    `json:"hash"`
	Date        time.Time `json:"date"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	Subject     string    `json:"subject"`
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getModules lists a repository's installable modules.
// GET /v1/orgs/{org}/repos/{name}/modules
func (h *Handler) getModules(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}

	modules, err := h.catalog.ListModules(r.Context(), repo.ID)
	if err != nil {
		h.logger.Error("Failed to list modules", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]moduleResponse, 0, len(modules))
	for _, m := range modules {
		out = append(out, moduleResponse{
			Name:              m.Name,
			Title:             m.Title,
			Author:            m.Author,
			Depends:           m.Depends,
			Maintainers:       m.Maintainers,
			DevelopmentStatus: m.DevelopmentStatus,
			Summary:           m.Summary,
		})
	}
	respondWithJSON(w, http.StatusOK, out)
}

// getCommits lists a repository's commits in insertion order.
// GET /v1/orgs/{org}/repos/{name}/commits
func (h *Handler) getCommits(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}

	commits, err := h.catalog.ListCommits(r.Context(), repo.ID)
	if err != nil {
		h.logger.Error("Failed to list commits", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]commitResponse, 0, len(commits))
	for _, c := range commits {
		out = append(out, commitResponse{
			Hash:        c.Hash,
			Date:        c.Date,
			AuthorName:  c.AuthorName,
			AuthorEmail: c.AuthorEmail,
			Subject:     c.Subject,
		})
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) lookupRepo(w http.ResponseWriter, r *http.Request) (model.Repository, bool) {
	org := chi.URLParam(r, "org")
	name := chi.URLParam(r, "name")

	repo, err := h.catalog.GetRepositoryByOrgAndName(r.Context(), org, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return model.Repository{}, false
		}
		h.logger.Error("Failed to get repository", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return model.Repository{}, false
	}
	return repo, true
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
