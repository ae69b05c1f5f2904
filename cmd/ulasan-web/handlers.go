package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/matthewjhunter/ulasan"
	"github.com/matthewjhunter/ulasan/internal/auth"
	"go.uber.org/zap"
)

// uploadField is the multipart field the dashboard uploader posts files under.
const uploadField = "jsonFiles"

// uploadRunTimeout bounds one upload's ingest run. Batches still queued when
// it expires fail with the deadline error.
const uploadRunTimeout = 2 * time.Minute

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine         *ulasan.Engine
	issuer         *auth.Issuer
	maxUploadBytes int64
	logger         *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeQueryError maps engine errors onto status codes. Storage failures
// are logged and reported without detail.
func (h *handlers) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ulasan.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ulasan.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ulasan.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("query failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// parseInt64Param reads an optional integer query parameter. Absent means 0.
func parseInt64Param(r *http.Request, name string) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ulasan.ErrInvalidQuery, name, s)
	}
	return v, nil
}

// --- Dimensions ---

func (h *handlers) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.engine.Platforms(r.Context())
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, platforms)
}

func (h *handlers) handleAspects(w http.ResponseWriter, r *http.Request) {
	aspects, err := h.engine.Aspects(r.Context())
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aspects)
}

// --- Dashboard queries ---

func (h *handlers) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	platformID, err := parseInt64Param(r, "platformId")
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	aspectID, err := parseInt64Param(r, "aspectId")
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	q := r.URL.Query()
	points, err := h.engine.SentimentTimeSeries(r.Context(), ulasan.TimeSeriesQuery{
		PlatformID: platformID,
		AspectID:   aspectID,
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
	})
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *handlers) handleAggregate(w http.ResponseWriter, r *http.Request) {
	aspectID, err := parseInt64Param(r, "aspectId")
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	q := r.URL.Query()
	totals, err := h.engine.AggregatedSentiment(r.Context(), ulasan.TotalsQuery{
		AspectID:  aspectID,
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	})
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (h *handlers) handleDistribution(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	shares, err := h.engine.AspectDistribution(r.Context(), ulasan.DistributionQuery{
		SentimentType: q.Get("sentimentType"),
		StartDate:     q.Get("startDate"),
		EndDate:       q.Get("endDate"),
	})
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

func (h *handlers) handleVersions(w http.ResponseWriter, r *http.Request) {
	platformID, err := parseInt64Param(r, "platformId")
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	q := r.URL.Query()
	versions, err := h.engine.VersionHistory(r.Context(), ulasan.VersionQuery{
		PlatformID: platformID,
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
	})
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *handlers) handleDay(w http.ResponseWriter, r *http.Request) {
	platformID, err := parseInt64Param(r, "platformId")
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	day, err := h.engine.DailyBreakdown(r.Context(), platformID, r.URL.Query().Get("date"))
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (h *handlers) handleWordCloud(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u, err := h.engine.WordCloudURL(q.Get("platform"), q.Get("date"), q.Get("aspect"))
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// --- Writes and model calls ---

// requireUploadToken rejects requests without a valid bearer token. It is a
// pass-through when no upload secret is configured.
func (h *handlers) requireUploadToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.issuer == nil {
			next(w, r)
			return
		}
		claims, err := h.issuer.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Debug("upload authorized", zap.String("subject", claims.Subject))
		next(w, r)
	}
}

// handleUpload ingests every file posted under uploadField as one run. The
// run result is returned with 200 even when batches fail; callers check
// its success flag.
func (h *handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[uploadField]
	payloads := make([]ulasan.Payload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to open %s: %v", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read %s: %v", fh.Filename, err))
			return
		}
		payloads = append(payloads, ulasan.Payload{Name: fh.Filename, Data: data})
	}

	// The run must not die with the client connection halfway through.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), uploadRunTimeout)
	defer cancel()

	writeJSON(w, http.StatusOK, h.engine.Ingest(ctx, payloads))
}

type analyzeRequest struct {
	ReviewText string `json:"reviewText"`
}

func (h *handlers) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.engine.Analyze(r.Context(), req.ReviewText)
	if err != nil {
		if errors.Is(err, ulasan.ErrEmptyReview) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Warn("analysis failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Gagal menganalisis ulasan.")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Operations ---

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.engine.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
