package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrich/internal/enrich"
	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/monitoring"
	"github.com/sells-group/lead-enrich/internal/store"
)

const (
	maxBodyBytes      = 1 << 20
	maxBatchCompanies = 500
	shutdownTimeout   = 30 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enrichment HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnrich(ctx, "serve")
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(&api{svc: env.Orchestrator, store: env.Store}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(env.Orchestrator, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		err = srv.ListenAndServe()

		cleanupCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		env.Close(cleanupCtx)

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// enrichService is the orchestrator surface the API exposes.
type enrichService interface {
	EnrichCompany(ctx context.Context, company, domain string, forceRefresh bool) *model.EnrichmentResult
	ProcessBatch(ctx context.Context, companies []model.Company, maxConcurrent int) map[string]*model.EnrichmentResult
	Metrics() enrich.MetricsSnapshot
	ExportResults(ctx context.Context, opts enrich.ExportOptions) string
}

type api struct {
	svc   enrichService
	store store.ResultStore // may be nil
}

func newRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/enrich", a.handleEnrich)
		r.Post("/batch", a.handleBatch)
		r.Get("/companies/{company}/contacts", a.handleContacts)
		r.Get("/metrics", a.handleMetrics)
		r.Post("/export", a.handleExport)
	})

	return r
}

// requestLogger logs each request through zap with chi's request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zap.L().Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

type enrichRequest struct {
	Company      string `json:"company"`
	Domain       string `json:"domain"`
	ForceRefresh bool   `json:"force_refresh"`
}

func (a *api) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Company == "" {
		writeError(w, http.StatusBadRequest, "company is required")
		return
	}

	res := a.svc.EnrichCompany(r.Context(), req.Company, req.Domain, req.ForceRefresh)
	status := http.StatusOK
	if res.Failed() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

type batchRequest struct {
	Companies     []model.Company `json:"companies"`
	MaxConcurrent int             `json:"max_concurrent"`
}

type batchResponse struct {
	Results   map[string]*model.EnrichmentResult `json:"results"`
	Succeeded int                                `json:"succeeded"`
	Failed    int                                `json:"failed"`
	Contacts  int                                `json:"contacts"`
}

func (a *api) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Companies) == 0 {
		writeError(w, http.StatusBadRequest, "companies is required")
		return
	}
	if len(req.Companies) > maxBatchCompanies {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d companies per batch", maxBatchCompanies))
		return
	}
	for _, c := range req.Companies {
		if c.Name == "" {
			writeError(w, http.StatusBadRequest, "every company needs a name")
			return
		}
	}

	results := a.svc.ProcessBatch(r.Context(), req.Companies, req.MaxConcurrent)
	s := summarize(results)
	writeJSON(w, http.StatusOK, batchResponse{
		Results:   results,
		Succeeded: s.succeeded,
		Failed:    s.failed,
		Contacts:  s.contacts,
	})
}

func (a *api) handleContacts(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "result store not configured")
		return
	}
	company := chi.URLParam(r, "company")
	if unescaped, err := url.PathUnescape(company); err == nil {
		company = unescaped
	}

	records, err := a.store.GetCompanyResults(r.Context(), company)
	if err != nil {
		zap.L().Error("load company results", zap.String("company", company), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"company":  company,
		"contacts": records,
	})
}

func (a *api) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Metrics())
}

type exportRequest struct {
	Format         string `json:"format"`
	IncludeMetrics *bool  `json:"include_metrics"`
}

func (a *api) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Format {
	case "":
		req.Format = enrich.FormatCSV
	case enrich.FormatCSV, enrich.FormatExcel, "xlsx":
	default:
		writeError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}
	includeMetrics := true
	if req.IncludeMetrics != nil {
		includeMetrics = *req.IncludeMetrics
	}

	path := a.svc.ExportResults(r.Context(), enrich.ExportOptions{Format: req.Format, IncludeMetrics: includeMetrics})
	if path == "" {
		writeError(w, http.StatusNotFound, "no results exported")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
