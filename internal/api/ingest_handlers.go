package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/caption"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/dedup"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/ingest"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/vision"
)

const multipartMemory = 32 << 20

type parseRequest struct {
	PostText string `json:"postText"`
	PostURL  string `json:"postUrl"`
}

type storedEvent struct {
	Title         string `json:"title"`
	StartDatetime string `json:"start_datetime"`
}

func summarize(records []events.Record) []storedEvent {
	out := make([]storedEvent, 0, len(records))
	for _, r := range records {
		out = append(out, storedEvent{Title: r.Title, StartDatetime: events.FormatNaive(r.Start)})
	}
	return out
}

// parseCaption handles POST /api/instagram/parse {postText, postUrl}. Events
// whose external id is already stored are skipped.
func (s *Server) parseCaption(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}
	result, err := s.deps.Ingest.IngestCaption(r.Context(), req.PostText, req.PostURL)
	switch {
	case errors.Is(err, caption.ErrMissingInput):
		writeError(w, http.StatusBadRequest, "Post text is required", "")
		return
	case errors.Is(err, caption.ErrNoEvents):
		writeError(w, http.StatusBadRequest, caption.ErrNoEvents.Error(), "")
		return
	case err != nil:
		s.logger.Error("caption ingestion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save events", err.Error())
		return
	}
	if len(result.Stored) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"count":   0,
			"message": "All events already exist in database",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(result.Stored),
		"events":  summarize(result.Stored),
	})
}

// visionUpload handles POST /api/instagram/vision as multipart form data:
// images (repeated, in story order), channelName and an optional
// channelLogo.
func (s *Server) visionUpload(w http.ResponseWriter, r *http.Request) {
	if maxBytes := int64(s.cfg.Server.MaxUploadMB) << 20; maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("remove multipart files failed", zap.Error(err))
		}
	}()

	var files []*multipart.FileHeader
	files = append(files, r.MultipartForm.File["images"]...)
	files = append(files, r.MultipartForm.File["images[]"]...)
	images := make([]vision.Image, 0, len(files))
	for _, fh := range files {
		img, err := readImage(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid image upload", err.Error())
			return
		}
		images = append(images, img)
	}

	var logo *ingest.Logo
	if logos := r.MultipartForm.File["channelLogo"]; len(logos) > 0 {
		img, err := readImage(logos[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid logo upload", err.Error())
			return
		}
		logo = &ingest.Logo{MimeType: img.MimeType, Data: bytes.NewReader(img.Data)}
	}

	result, err := s.deps.Ingest.IngestVision(r.Context(), r.FormValue("channelName"), images, logo)
	switch {
	case errors.Is(err, ingest.ErrMissingChannel), errors.Is(err, ingest.ErrNoImages):
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	case errors.Is(err, ingest.ErrVisionDisabled), errors.Is(err, vision.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "vision extraction unavailable", err.Error())
		return
	case err != nil:
		s.logger.Error("vision ingestion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to process images", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"count":        len(result.Stored),
		"skipped":      result.Skipped,
		"failedImages": result.FailedImages,
		"logoUrl":      result.LogoURL,
		"events":       summarize(result.Stored),
	})
}

func readImage(fh *multipart.FileHeader) (vision.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return vision.Image{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return vision.Image{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if len(data) == 0 {
		return vision.Image{}, fmt.Errorf("%s is empty", fh.Filename)
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return vision.Image{Name: fh.Filename, MimeType: mimeType, Data: data}, nil
}

type dedupResponse struct {
	Events []events.Record `json:"events"`
	Stats  dedup.Stats     `json:"stats"`
}

// dedup handles POST /api/admin/dedup with a JSON array of event payloads.
// Nothing is persisted.
func (s *Server) dedup(w http.ResponseWriter, r *http.Request) {
	var records []events.Record
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload", err.Error())
		return
	}
	merged, stats := s.deps.Ingest.Dedup(records)
	writeJSON(w, http.StatusOK, dedupResponse{Events: merged, Stats: stats})
}

// scrape handles POST /api/admin/scrape?source=. Without a source every
// configured source is scraped.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var (
		runs []events.ScrapeRun
		err  error
	)
	if name := strings.TrimSpace(r.URL.Query().Get("source")); name != "" {
		var run events.ScrapeRun
		run, err = s.deps.Ingest.ScrapeSource(r.Context(), name)
		if run.ID != "" {
			runs = append(runs, run)
		}
	} else {
		runs, err = s.deps.Ingest.ScrapeAll(r.Context())
	}
	if runs == nil {
		runs = []events.ScrapeRun{}
	}
	switch {
	case errors.Is(err, ingest.ErrUnknownSource):
		writeError(w, http.StatusNotFound, "source not found", err.Error())
	case errors.Is(err, ingest.ErrScraperDisabled):
		writeError(w, http.StatusServiceUnavailable, "scraper unavailable", err.Error())
	case err != nil:
		s.logger.Warn("scrape finished with errors", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"runs": runs, "error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

// dailyContent handles GET /api/admin/content.
func (s *Server) dailyContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bundle, err := s.deps.Content.Build(ctx)
	if err != nil {
		s.logger.Error("build content bundle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build content", err.Error())
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, bundle)
}
