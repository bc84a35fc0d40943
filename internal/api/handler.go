package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/fraudscope/internal/cache"
	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/pipeline"
	"github.com/opensource-finance/fraudscope/internal/report"
	"github.com/opensource-finance/fraudscope/internal/repository"
	"github.com/opensource-finance/fraudscope/internal/traces"
)

// maxMultipartMemory is the in-memory part of a parsed multipart form.
const maxMultipartMemory = 32 << 20

// unreadableColumns is shown when no header could be read from the upload.
const unreadableColumns = "Unable to read columns from the file."

// Handler holds dependencies for API handlers.
type Handler struct {
	processor *pipeline.Processor
	repo      domain.Repository
	cache     domain.Cache
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(processor *pipeline.Processor, repo domain.Repository, cache domain.Cache, version string) *Handler {
	return &Handler{
		processor: processor,
		repo:      repo,
		cache:     cache,
		version:   version,
	}
}

// AnalyzeRequest is the JSON body for POST /analyze.
type AnalyzeRequest struct {
	// Contents is a data URL, e.g. "data:text/csv;base64,...".
	Contents string `json:"contents"`
	Filename string `json:"filename"`
}

// TableView is a table rendered for display.
type TableView struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Download is a file offered to the browser as a data URI.
type Download struct {
	Filename string `json:"filename"`
	DataURI  string `json:"dataUri"`
}

// AnalyzeResponse is the response for POST /analyze.
type AnalyzeResponse struct {
	RunID        string `json:"runId"`
	ModelVersion string `json:"modelVersion"`
	RowCount     int    `json:"rowCount"`

	Results TableView `json:"results"`
	TopRisk TableView `json:"topRisk"`

	Distribution         domain.LabelDistribution `json:"distribution"`
	RiskCounts           map[domain.RiskLevel]int `json:"riskCounts"`
	PreventedLoss        domain.LossEstimate      `json:"preventedLoss"`
	PreventedLossDisplay string                   `json:"preventedLossDisplay"`

	Trend      *domain.Trend       `json:"trend,omitempty"`
	Evaluation *domain.Evaluation  `json:"evaluation,omitempty"`
	Alerts     []domain.AlertMatch `json:"alerts,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`

	Charts   report.Charts `json:"charts"`
	Download Download      `json:"download"`

	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// ErrorPanel is the response for a failed analysis.
type ErrorPanel struct {
	Error           string   `json:"error"`
	Kind            string   `json:"kind"`
	Details         string   `json:"details"`
	ExpectedColumns []string `json:"expectedColumns,omitempty"`
	ActualColumns   []string `json:"actualColumns,omitempty"`
	Note            string   `json:"note,omitempty"`
}

// Analyze handles POST /analyze requests.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	data, filename, err := readAnalyzeUpload(r)
	if err != nil {
		writeUploadError(w, err)
		return
	}

	bundle, err := h.processor.Process(ctx, &pipeline.RunInput{
		Data:     data,
		Filename: filename,
		Source:   pipeline.SourceAnalyze,
	})
	if err != nil {
		status := http.StatusUnprocessableEntity
		if domain.ErrorKind(err) == domain.KindInternal {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorPanel(err))
		return
	}

	resp := AnalyzeResponse{
		RunID:                bundle.RunID,
		ModelVersion:         bundle.ModelVersion,
		RowCount:             bundle.RowCount,
		Distribution:         bundle.Distribution,
		RiskCounts:           bundle.RiskCounts,
		PreventedLoss:        bundle.PreventedLoss,
		PreventedLossDisplay: report.FormatCurrency(bundle.PreventedLoss.Amount),
		Trend:                bundle.Trend,
		Evaluation:           bundle.Evaluation,
		Alerts:               bundle.Alerts,
		Warnings:             bundle.Warnings,
	}
	resp.Results.Columns, resp.Results.Rows = pipeline.Results(bundle.Table, bundle.Table.Rows)
	resp.TopRisk.Columns, resp.TopRisk.Rows = pipeline.Results(bundle.Table, bundle.TopRisk)

	_, span := traces.StartSpan(ctx, "report.render", traces.RunID(bundle.RunID))
	charts, err := report.RenderCharts(bundle)
	span.End()
	if err != nil {
		slog.Warn("chart rendering failed",
			"run_id", bundle.RunID,
			"error", err,
		)
		resp.Warnings = append(resp.Warnings, "charts unavailable: "+err.Error())
	}
	resp.Charts = charts

	csv, err := pipeline.ResultsCSV(bundle.Table)
	if err != nil {
		slog.Error("failed to encode results", "run_id", bundle.RunID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode results",
		})
		return
	}
	resp.Download = Download{
		Filename: pipeline.ResultsFilename,
		DataURI:  report.DataURI("text/csv", csv),
	}

	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// PredictCSV handles POST /predict_csv requests. Responses are plain text,
// or the scored CSV on success.
func (h *Handler) PredictCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "No file part in the request", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		// A part named "file" without a filename is parsed as a plain value.
		if _, ok := r.MultipartForm.Value["file"]; ok {
			http.Error(w, "No selected file", http.StatusBadRequest)
			return
		}
		http.Error(w, "No file part in the request", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		http.Error(w, "No selected file", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error processing file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		http.Error(w, "No selected file", http.StatusBadRequest)
		return
	}

	bundle, err := h.processor.Process(r.Context(), &pipeline.RunInput{
		Data:     data,
		Filename: header.Filename,
		Source:   pipeline.SourcePredictCSV,
	})
	if err != nil {
		http.Error(w, "Error processing file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out, err := pipeline.PredictionsCSV(bundle.Table)
	if err != nil {
		http.Error(w, "Error processing file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+pipeline.ResultsFilename)
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// Health handles GET /health requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready handles GET /ready requests.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Model handles GET /model requests.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	features := h.processor.Artifacts().Schema
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":  h.processor.ModelVersion(),
		"features": features,
		"count":    len(features),
	})
}

// ListPolicies handles GET /policies requests.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := []*domain.AlertPolicy{}
	if engine := h.processor.Engine(); engine != nil {
		policies = engine.GetLoadedPolicies()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": policies,
		"count":    len(policies),
	})
}

// ListRuns handles GET /runs requests.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	runs, err := h.repo.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /runs/{id} requests. The cache is read first.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.cache != nil {
		run, err := cache.GetRun(ctx, h.cache, runID)
		if err != nil {
			slog.Debug("run cache read failed", "run_id", runID, "error", err)
		} else if run != nil {
			writeJSON(w, http.StatusOK, run)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get run", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get run",
		})
		return
	}

	if h.cache != nil {
		if err := cache.SetRun(ctx, h.cache, run, 0); err != nil {
			slog.Debug("run cache write failed", "run_id", runID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, run)
}

// errUpload is a client error reading the upload.
type errUpload struct {
	status int
	msg    string
}

func (e *errUpload) Error() string { return e.msg }

// readAnalyzeUpload reads the CSV bytes from a multipart "file" field or a
// JSON body carrying a data URL.
func readAnalyzeUpload(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, "", err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", &errUpload{http.StatusBadRequest, "file is required"}
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, header.Filename, nil
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", err
		}
		return nil, "", &errUpload{http.StatusBadRequest, "invalid JSON request body"}
	}
	if req.Contents == "" {
		return nil, "", &errUpload{http.StatusBadRequest, "contents is required"}
	}

	data, err := decodeDataURL(req.Contents)
	if err != nil {
		return nil, "", &errUpload{http.StatusBadRequest, err.Error()}
	}
	return data, req.Filename, nil
}

// decodeDataURL decodes a base64 data URL such as "data:text/csv;base64,...".
func decodeDataURL(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, fmt.Errorf("contents must be a data URL")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("contents must be a data URL")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("contents must be base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 contents: %w", err)
	}
	return data, nil
}

func writeUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": "upload too large",
		})
		return
	}

	var upload *errUpload
	if errors.As(err, &upload) {
		writeJSON(w, upload.status, map[string]string{
			"error": upload.msg,
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": "failed to read upload: " + err.Error(),
	})
}

// errorPanel describes a failed run for display.
func errorPanel(err error) ErrorPanel {
	panel := ErrorPanel{
		Error:   "Error processing file",
		Kind:    domain.ErrorKind(err),
		Details: err.Error(),
	}
	panel.ExpectedColumns, panel.ActualColumns = domain.Columns(err)
	if panel.Kind == domain.KindSchema && panel.ActualColumns == nil {
		panel.Note = unreadableColumns
	}
	return panel
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
