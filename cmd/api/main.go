package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"accent-analyzer-go/internal/aggregator"
	"accent-analyzer-go/internal/bootstrap"
	"accent-analyzer-go/internal/config"
	"accent-analyzer-go/internal/dataset"
	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/processor"
	"accent-analyzer-go/internal/source"
	"accent-analyzer-go/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "accent-analyzer").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	analyzer, err := bootstrap.NewAnalyzer(cfg, log, nil)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      newMux(cfg, analyzer),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func newMux(cfg config.Config, analyzer interface {
	processor.Analyzer
	WorkDir() string
}) *http.ServeMux {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Debug("health check")
		fmt.Fprint(w, "ok")
	})

	// analyze endpoint: ?url=, form field url, or multipart file
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "analyze")
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		src, status, err := sourceFromRequest(r, analyzer.WorkDir(), cfg.MaxUploadBytes())
		if err != nil {
			reqLog.WithField("error", err.Error()).Warn("bad analyze request")
			http.Error(w, err.Error(), status)
			return
		}
		reqLog = reqLog.WithField("source_kind", src.Kind).WithField("video_url", src.RawURL)
		reqLog.Info("analyze request received")

		res := processor.ProcessSingle(r.Context(), analyzer, src)
		reqLog.WithField("duration_ms", res.DurationMs).Info("analysis finished")
		code := http.StatusOK
		if res.Error != nil {
			code = statusFor(res.Error.Kind)
		}
		writeJSON(w, code, res, reqLog)
	})

	// batch endpoint: runs rows of a spreadsheet sequentially
	mux.HandleFunc("/batch", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "batch")
		path := r.URL.Query().Get("dataset_path")
		if path == "" {
			path = cfg.DatasetPath
		}
		limit := 5
		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 0 {
				reqLog.WithField("limit", l).Warn("bad batch limit")
				http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
				return
			}
			limit = n
		}
		reqLog = reqLog.WithField("dataset_path", path).WithField("limit", limit)
		reqLog.Info("batch invoked")

		records, err := dataset.Load(path)
		if err != nil {
			reqLog.WithField("error", err.Error()).Error("dataset load error")
			http.Error(w, "dataset load error", http.StatusBadRequest)
			return
		}
		results := processor.ProcessBatch(r.Context(), analyzer, records, limit, logger.New(), nil)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"results": results,
			"summary": aggregator.Aggregate(results),
		}, reqLog)
	})

	return mux
}

// sourceFromRequest prefers an uploaded file over a url, like the form it serves.
func sourceFromRequest(r *http.Request, workDir string, maxBytes int64) (types.SourceReference, int, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBytes+(1<<20))
		file, _, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			path, err := processor.Materialize(workDir, file, maxBytes)
			if errors.Is(err, processor.ErrUploadTooLarge) {
				return types.SourceReference{}, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: %s", err, humanize.IBytes(uint64(maxBytes)))
			}
			if err != nil {
				return types.SourceReference{}, http.StatusInternalServerError, fmt.Errorf("error saving uploaded file: %w", err)
			}
			return source.Local(path), 0, nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return types.SourceReference{}, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: %s", processor.ErrUploadTooLarge, humanize.IBytes(uint64(maxBytes)))
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return types.SourceReference{}, http.StatusBadRequest, fmt.Errorf("read upload: %w", err)
		}
	}
	raw := strings.TrimSpace(r.FormValue("url"))
	if raw == "" {
		return types.SourceReference{}, http.StatusBadRequest, errors.New("please provide a valid video url or upload a file")
	}
	return types.SourceReference{Kind: types.SourceRemote, RawURL: raw}, 0, nil
}

func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.ErrInvalidSource:
		return http.StatusBadRequest
	case types.ErrPrerequisiteMissing:
		return http.StatusServiceUnavailable
	case types.ErrDownload:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}, log *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithField("error", err.Error()).Error("failed to write response")
	}
}
