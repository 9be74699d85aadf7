// Package handlers provides HTTP request handlers for the fetchguard API.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fetchguard/fetchguard/internal/config"
	"github.com/fetchguard/fetchguard/internal/fetcher"
	"github.com/fetchguard/fetchguard/internal/guard"
	"github.com/fetchguard/fetchguard/internal/metrics"
	"github.com/fetchguard/fetchguard/internal/types"
	"github.com/fetchguard/fetchguard/internal/upload"
	"github.com/fetchguard/fetchguard/pkg/version"
)

// fetchExecutor performs the outbound request for an allowed verdict.
// Satisfied by *fetcher.Fetcher; tests substitute a stub to prove no
// outbound request happens for rejected URLs.
type fetchExecutor interface {
	Fetch(ctx context.Context, verdict guard.Verdict) (*fetcher.Result, error)
}

// Handler handles all fetchguard API requests.
type Handler struct {
	config    *config.Config
	validator *guard.Validator
	fetch     fetchExecutor
	uploads   *upload.Validator
}

// New creates a Handler wired from the config.
func New(cfg *config.Config) *Handler {
	resolver := guard.NewResolver(cfg.ResolveTimeout)
	return &Handler{
		config:    cfg,
		validator: guard.NewValidator(resolver, cfg.HostnameDenylist),
		fetch: fetcher.New(fetcher.Config{
			ConnectTimeout:   cfg.ConnectTimeout,
			FetchTimeout:     cfg.FetchTimeout,
			MaxResponseBytes: cfg.MaxResponseBytes,
		}),
		uploads: upload.NewValidator(cfg.MaxUploadBytes, cfg.AllowedExtensions),
	}
}

// HandleHealth handles the /health endpoint.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	resp := types.Response{
		Status:    types.StatusOK,
		Message:   "fetchguard is ready",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
	metrics.RecordRequest("health", "ok")
}

// HandleFetch handles POST /v1/fetch: validate the URL, then fetch it
// against the pinned address from the verdict.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Limit request body size to prevent memory exhaustion (1MB max)
	const maxBodySize = 1 << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	// Parse request using pooled buffer to reduce GC pressure
	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		log.Warn().Err(err).Msg("Failed to read request body")
		h.writeErrorWithStatus(w, http.StatusBadRequest, "Failed to read request", startTime)
		metrics.RecordRequest("fetch", "error")
		return
	}

	var req types.FetchRequest
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request")
		h.writeErrorWithStatus(w, http.StatusBadRequest, "Invalid JSON request", startTime)
		metrics.RecordRequest("fetch", "error")
		return
	}

	if err := req.Validate(); err != nil {
		h.writeRejected(w, types.ReasonInvalidURL, err.Error(), nil, startTime)
		metrics.RecordRequest("fetch", "rejected")
		return
	}

	log.Info().
		Str("url", sanitizeURLForLogging(req.URL)).
		Msg("Fetch request received")

	verdict := h.validator.Validate(r.Context(), req.URL)
	metrics.RecordVerdict(verdict.Allowed, string(verdict.Reason))
	if !verdict.Allowed {
		log.Warn().
			Str("url", sanitizeURLForLogging(req.URL)).
			Str("reason", string(verdict.Reason)).
			Str("detail", verdict.Detail).
			Msg("URL rejected")
		h.writeRejected(w, verdict.Reason, verdict.Detail, nil, startTime)
		metrics.RecordRequest("fetch", "rejected")
		return
	}

	fetchStart := time.Now()
	result, err := h.fetch.Fetch(r.Context(), verdict)
	if err != nil {
		h.handleFetchError(w, req.URL, err, fetchStart, startTime)
		return
	}
	metrics.RecordFetch("ok", time.Since(fetchStart))

	resp := types.Response{
		Status:    types.StatusOK,
		Message:   "Fetch completed",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Fetch: &types.FetchResult{
			URL:             result.URL,
			ResolvedAddress: result.PinnedAddr.String(),
			StatusCode:      result.StatusCode,
			ContentType:     result.ContentType,
			Body:            base64.StdEncoding.EncodeToString(result.Body),
		},
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
	metrics.RecordRequest("fetch", "ok")
}

// handleFetchError maps fetcher errors onto the response envelope.
func (h *Handler) handleFetchError(w http.ResponseWriter, url string, err error, fetchStart, startTime time.Time) {
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		log.Error().Err(err).Str("url", sanitizeURLForLogging(url)).Msg("Fetch failed")
		h.writeErrorWithStatus(w, http.StatusBadGateway, err.Error(), startTime)
		metrics.RecordFetch("error", time.Since(fetchStart))
		metrics.RecordRequest("fetch", "error")
		return
	}

	log.Warn().
		Str("url", sanitizeURLForLogging(url)).
		Str("reason", string(fe.Reason)).
		Msg("Fetch not completed")

	var result *types.FetchResult
	if fe.Reason == types.ReasonRedirectNotFollowed {
		result = &types.FetchResult{URL: url, RedirectLocation: fe.Location}
	}
	h.writeRejected(w, fe.Reason, fe.Message, result, startTime)
	metrics.RecordFetch(string(fe.Reason), time.Since(fetchStart))
	metrics.RecordRequest("fetch", "rejected")
}

// HandleUpload handles POST /v1/upload: a multipart form with a "file" part.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// One MiB of headroom over the payload cap for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+(1<<20))
	defer r.Body.Close()

	file, header, err := r.FormFile("file")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read multipart upload")
		h.writeErrorWithStatus(w, http.StatusBadRequest, "Multipart form with a 'file' part is required", startTime)
		metrics.RecordRequest("upload", "error")
		return
	}
	defer file.Close()

	if len(header.Filename) > types.MaxFilenameLength {
		h.writeErrorWithStatus(w, http.StatusBadRequest, "Filename too long", startTime)
		metrics.RecordRequest("upload", "error")
		return
	}

	desc := upload.NewDescriptor(header.Filename, header.Size)
	verdict := h.uploads.Validate(desc, upload.SeekerSize(file))
	metrics.RecordUpload(verdict.Allowed, string(verdict.Reason))
	if !verdict.Allowed {
		log.Warn().
			Str("filename", header.Filename).
			Str("reason", string(verdict.Reason)).
			Str("detail", verdict.Detail).
			Msg("Upload rejected")
		h.writeRejected(w, verdict.Reason, verdict.Detail, nil, startTime)
		metrics.RecordRequest("upload", "rejected")
		return
	}

	log.Info().
		Str("filename", header.Filename).
		Int64("size", verdict.SizeBytes).
		Msg("Upload accepted")

	resp := types.Response{
		Status:    types.StatusOK,
		Message:   "Upload accepted",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Upload: &types.UploadResult{
			Filename:  header.Filename,
			SizeBytes: verdict.SizeBytes,
			Extension: desc.Extension,
		},
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
	metrics.RecordRequest("upload", "ok")
}

// HandleMethodNotAllowed handles requests with unsupported HTTP methods.
func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusMethodNotAllowed, "Method not allowed", time.Now())
}

// HandleNotFound handles requests to unknown paths.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusNotFound, "Not found", time.Now())
}

// httpStatusForReason maps a rejection reason to an HTTP status code.
func httpStatusForReason(reason types.Reason) int {
	switch reason {
	case types.ReasonInvalidURL, types.ReasonInvalidScheme,
		types.ReasonMissingHostname, types.ReasonUnresolvableHostname:
		return http.StatusBadRequest
	case types.ReasonDeniedHostname, types.ReasonDisallowedAddress:
		return http.StatusForbidden
	case types.ReasonTimeout:
		return http.StatusGatewayTimeout
	case types.ReasonRedirectNotFollowed, types.ReasonConnectionFailed,
		types.ReasonResponseTooLarge:
		return http.StatusBadGateway
	case types.ReasonOversizeUpload:
		return http.StatusRequestEntityTooLarge
	case types.ReasonDisallowedExtension:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

// writeRejected writes a policy rejection with its machine-readable reason.
func (h *Handler) writeRejected(w http.ResponseWriter, reason types.Reason, detail string, result *types.FetchResult, startTime time.Time) {
	resp := types.Response{
		Status:    types.StatusRejected,
		Message:   detail,
		Reason:    reason,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Fetch:     result,
	}
	h.writeJSONResponse(w, httpStatusForReason(reason), resp)
}

// writeErrorWithStatus writes an error response with a specific HTTP status code.
func (h *Handler) writeErrorWithStatus(w http.ResponseWriter, statusCode int, message string, startTime time.Time) {
	resp := types.Response{
		Status:    types.StatusError,
		Message:   message,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, statusCode, resp)
}

// writeJSONResponse buffers JSON before writing to ensure encoding errors are
// caught before headers are sent.
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, resp interface{}) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"internal encoding error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	_, _ = w.Write(buf.Bytes())
}
