package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/ue5query/internal/search"
	"github.com/Aman-CERP/ue5query/pkg/version"
)

// HealthChecker reports the subsystems GET /health summarizes.
type HealthChecker struct {
	DatabaseOK   func() bool
	EmbeddingsOK func() bool
	GPUAvailable func() bool
}

// HTTPServerConfig configures the server variant's HTTP surface.
type HTTPServerConfig struct {
	Addr   string
	APIKey string // if non-empty, requests must carry it as a Bearer token
}

// NewHTTPHandler builds the chi router for spec §6's HTTP surface:
// POST /search and GET /health, with an optional bearer API key gate.
func NewHTTPHandler(engine *search.Engine, health HealthChecker, cfg HTTPServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(60 * time.Second))

	if cfg.APIKey != "" {
		r.Use(bearerAuth(cfg.APIKey))
	}

	r.Get("/health", handleHealth(health))
	r.Post("/search", handleSearch(engine))

	return r
}

func bearerAuth(apiKey string) func(http.Handler) http.Handler {
	const prefix = "Bearer "
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			auth := req.Header.Get("Authorization")
			if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != apiKey {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	Database   bool   `json:"database"`
	Embeddings bool   `json:"embeddings"`
	GPU        bool   `json:"gpu"`
	Version    string `json:"version"`
}

func handleHealth(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Version: version.Version}
		if health.DatabaseOK != nil {
			resp.Database = health.DatabaseOK()
		}
		if health.EmbeddingsOK != nil {
			resp.Embeddings = health.EmbeddingsOK()
		}
		if health.GPUAvailable != nil {
			resp.GPU = health.GPUAvailable()
		}
		resp.Status = "ok"
		if !resp.Database || !resp.Embeddings {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type searchRequest struct {
	Question    string `json:"question"`
	TopK        int    `json:"top_k"`
	Scope       string `json:"scope"`
	UseReranker bool   `json:"use_reranker"`
}

func handleSearch(engine *search.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		opts := search.DefaultQueryOptions()
		if req.TopK > 0 {
			opts.TopK = req.TopK
		}
		if req.Scope != "" {
			opts.Scope = search.Scope(req.Scope)
		}
		opts.UseReranker = req.UseReranker

		result, err := engine.Query(r.Context(), req.Question, opts)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}
