package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/content"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/render"
)

// generateCard handles GET /api/generate-card?title=&venue=&date=&time=&price=&type=&image=.
func (s *Server) generateCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	card := render.Card{
		Type:     render.CardType(strings.TrimSpace(q.Get("type"))),
		Title:    q.Get("title"),
		Venue:    q.Get("venue"),
		Date:     q.Get("date"),
		Time:     q.Get("time"),
		Price:    q.Get("price"),
		ImageURL: q.Get("image"),
	}
	png, err := s.deps.Renderer.Card(r.Context(), card)
	if err != nil {
		s.renderFailed(w, "card", err)
		return
	}
	writePNG(w, png)
}

// generateStory handles GET /api/generate-story?type=today|weekend|free|highlight.
func (s *Server) generateStory(w http.ResponseWriter, r *http.Request) {
	kind := render.ParseStoryType(r.URL.Query().Get("type"))
	records, err := s.deps.Queries.StoryEvents(r.Context(), kind)
	if err != nil {
		s.logger.Error("story query failed", zap.String("type", string(kind)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load story events", err.Error())
		return
	}
	png, err := s.deps.Renderer.Story(r.Context(), kind, content.StoryItems(records))
	if err != nil {
		s.renderFailed(w, "story", err)
		return
	}
	writePNG(w, png)
}

func (s *Server) renderFailed(w http.ResponseWriter, kind string, err error) {
	if errors.Is(err, render.ErrDisabled) {
		writeError(w, http.StatusServiceUnavailable, "image rendering unavailable", err.Error())
		return
	}
	s.logger.Error("render failed", zap.String("kind", kind), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to generate image", err.Error())
}

func writePNG(w http.ResponseWriter, png []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		zap.L().Warn("write png failed", zap.Error(err))
	}
}
