package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/model"
	"github.com/sells-group/policy-audit/internal/pipeline"
	"github.com/sells-group/policy-audit/internal/store"
)

// RunIDHeader carries the persisted run ID on upload responses.
const RunIDHeader = "X-Audit-Run-ID"

var servePort int

// auditRunner audits an uploaded document.
type auditRunner interface {
	Run(ctx context.Context, source, path string) (*model.AuditRun, error)
}

// runReader reads persisted audit runs.
type runReader interface {
	GetRun(ctx context.Context, id string) (*model.AuditRun, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.AuditRun, error)
}

type routerOptions struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	ExposeRunID    bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the audit upload server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAudit(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		router := buildRouter(env.Pipeline, env.Store, routerOptions{
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			ExposeRunID:    cfg.Audit.PersistRuns,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func buildRouter(runner auditRunner, runs runReader, opts routerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{RunIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/upload-audit-pdf", uploadHandler(runner, opts))
	r.Get("/audits", listRunsHandler(runs))
	r.Get("/audits/{id}", getRunHandler(runs))
	return r
}

func uploadHandler(runner auditRunner, opts routerOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if opts.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, opts.MaxUploadBytes)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			writeError(w, http.StatusBadRequest, "No file part")
			return
		}
		defer r.MultipartForm.RemoveAll() //nolint:errcheck

		file, header, err := r.FormFile("file")
		if err != nil {
			// A part named "file" without a filename is parsed as a plain value.
			if _, ok := r.MultipartForm.Value["file"]; ok {
				writeError(w, http.StatusBadRequest, "No selected file")
				return
			}
			writeError(w, http.StatusBadRequest, "No file part")
			return
		}
		defer file.Close() //nolint:errcheck

		if header.Filename == "" {
			writeError(w, http.StatusBadRequest, "No selected file")
			return
		}
		if runner == nil {
			writeError(w, http.StatusInternalServerError, "audit pipeline is not configured")
			return
		}

		path, err := spoolUpload(file)
		if err != nil {
			zap.L().Error("upload: could not store file", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer os.Remove(path) //nolint:errcheck

		source := filepath.Base(header.Filename)
		run, err := runner.Run(r.Context(), source, path)
		if err != nil {
			if errors.Is(err, pipeline.ErrNoQuestions) {
				writeError(w, http.StatusBadRequest, "Could not extract questions.")
				return
			}
			zap.L().Error("upload: audit failed", zap.String("source", source), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if opts.ExposeRunID && run.ID != "" {
			w.Header().Set(RunIDHeader, run.ID)
		}
		verdicts := run.Verdicts
		if verdicts == nil {
			verdicts = []model.Verdict{}
		}
		writeJSON(w, http.StatusOK, verdicts)
	}
}

// spoolUpload copies an uploaded document to a temporary file.
func spoolUpload(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "audit-upload-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "upload: create temp file")
	}
	_, err = io.Copy(tmp, src)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "upload: write temp file")
	}
	return tmp.Name(), nil
}

func listRunsHandler(runs runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runs == nil {
			writeError(w, http.StatusServiceUnavailable, "run history is not available")
			return
		}

		q := r.URL.Query()
		filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
		for _, p := range []struct {
			name string
			dst  *int
		}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
			raw := q.Get(p.name)
			if raw == "" {
				continue
			}
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", p.name))
				return
			}
			*p.dst = n
		}

		list, err := runs.ListRuns(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []model.AuditRun{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getRunHandler(runs runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runs == nil {
			writeError(w, http.StatusServiceUnavailable, "run history is not available")
			return
		}

		run, err := runs.GetRun(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
