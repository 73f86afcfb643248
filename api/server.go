// Package api exposes the identification pipeline over HTTP: one POST
// endpoint accepting a multipart photo, the static mobile UI, health and
// metrics. In-band failures (bad photo, low confidence) render as content
// with HTTP 200, never as error statuses.
package api

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/partfinder/identify/models"
	"github.com/partfinder/identify/store"
)

// maxUploadBytes caps the multipart photo upload.
const maxUploadBytes = 12 << 20

// Identifier is the pipeline contract consumed by the server.
type Identifier interface {
	Identify(ctx context.Context, photo []byte, userContext string) (*models.Report, *models.FailureReport)
}

// Config contains server configuration.
type Config struct {
	Addr            string
	CORSEnabled     bool
	IdentifyTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		CORSEnabled:     true,
		IdentifyTimeout: 90 * time.Second,
	}
}

// Server is the HTTP front of the service.
type Server struct {
	config   Config
	pipeline Identifier
	cache    *store.Store
	mux      *http.ServeMux
	server   *http.Server
}

// NewServer creates the API server around an already-wired pipeline.
func NewServer(config Config, pipeline Identifier, cache *store.Store) *Server {
	if config.IdentifyTimeout <= 0 {
		config.IdentifyTimeout = DefaultConfig().IdentifyTimeout
	}
	s := &Server{
		config:   config,
		pipeline: pipeline,
		cache:    cache,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      otelhttp.NewHandler(s.middleware(s.mux), "partfinder-api"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleHome)
	s.mux.HandleFunc("/identify", s.handleIdentify)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Handler exposes the full middleware chain. Test hook.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server.
func (s *Server) Start() error {
	slog.Info("starting API server", "addr", s.config.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// middleware applies CORS and request logging to all routes.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.CORSEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			slog.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}

// handleHome serves the static mobile UI.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, homePage)
}

// handleHealth returns server health plus the validation store size.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","cached_validations":%d,"time":%q}`, s.cache.Count(), time.Now().Format(time.RFC3339))
}

// handleIdentify accepts a multipart photo + optional context text, runs the
// pipeline, and renders the result fragment. The response is always 200 with
// a body; quality failures and low-confidence refusals are content.
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	photo, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		http.Error(w, "failed to read image", http.StatusBadRequest)
		return
	}
	userContext := r.FormValue("context")

	ctx, cancel := context.WithTimeout(r.Context(), s.config.IdentifyTimeout)
	defer cancel()

	report, failure := s.pipeline.Identify(ctx, photo, userContext)

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if failure != nil {
			writeJSON(w, failure)
			return
		}
		writeJSON(w, report)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if failure != nil {
		if err := failureTmpl.Execute(w, failure); err != nil {
			slog.Error("failure render error", "error", err)
		}
		return
	}
	if err := reportTmpl.Execute(w, report); err != nil {
		slog.Error("report render error", "error", err)
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

var reportTmpl = template.Must(template.New("report").Parse(`
<div class="section"><h3>🔧 Matériau</h3><p>{{.Classification.Material}}</p></div>
<div class="section"><h3>📏 Standard probable</h3><p>{{.Classification.TechnicalStandard}}</p></div>
<div class="section web"><h3>🛒 Où acheter ?</h3>
{{if .Sourcing.Error}}<p>{{.Sourcing.Error}}</p>{{else if .Sourcing.Results}}
{{if .Sourcing.Degraded}}<p class="note">Liens non vérifiés, affichés à titre indicatif :</p>{{end}}
<ul>
{{range .Sourcing.Results}}<li><a href="{{.Candidate.URL}}" target="_blank" rel="noopener">{{if .Candidate.Name}}{{.Candidate.Name}}{{else}}{{.Candidate.SourceDomain}}{{end}}</a>{{if .Candidate.Price}} · {{.Candidate.Price}}{{end}} <span class="domain">({{.Candidate.SourceDomain}})</span></li>
{{end}}</ul>
{{else}}<p>Aucun lien d'achat trouvé pour cette pièce.</p>{{end}}
{{range .Warnings}}<p class="note">{{.}}</p>{{end}}
</div>`))

var failureTmpl = template.Must(template.New("failure").Parse(`
<div class="section error"><h3>⚠️ Identification impossible</h3><p>{{.Message}}</p></div>`))
