package api

import (
	"encoding/xml"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/store"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 500
	listingGrace      = 4 * time.Hour
	allCategories     = "Todos"
)

type eventDTO struct {
	events.Payload
	// Link is the click tracking redirect for the event.
	Link string `json:"link"`
}

type eventsResponse struct {
	Events        []eventDTO `json:"events"`
	Count         int        `json:"count"`
	LastUpdatedAt *time.Time `json:"last_updated_at"`
}

// listEvents handles GET /api/events?categoria=&data=&busca=&limit=. Records
// stored by different sources for the same event are merged before they are
// returned.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r, s.deps.Clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	records, err := s.deps.Events.ListUpcoming(r.Context(), filter)
	if err != nil {
		s.logger.Error("list events failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list events", err.Error())
		return
	}
	merged, _ := s.deps.Ingest.Dedup(records)

	resp := eventsResponse{
		Events:        make([]eventDTO, 0, len(merged)),
		Count:         len(merged),
		LastUpdatedAt: s.runs.LastUpdated(r.Context()),
	}
	for _, rec := range merged {
		resp.Events = append(resp.Events, eventDTO{Payload: rec.Payload(), Link: redirectPath(rec)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func listFilter(r *http.Request, now time.Time) (store.ListFilter, error) {
	q := r.URL.Query()
	limit, err := parseLimit(r, defaultEventLimit, maxEventLimit)
	if err != nil {
		return store.ListFilter{}, err
	}
	filter := store.ListFilter{
		From:   now.Add(-listingGrace),
		Search: strings.TrimSpace(q.Get("busca")),
		Limit:  limit,
	}
	if cat := strings.TrimSpace(q.Get("categoria")); cat != "" && cat != allCategories {
		filter.Category = cat
	}
	today := events.Day(now)
	switch strings.TrimSpace(q.Get("data")) {
	case "":
	case "today":
		filter.To = today.AddDate(0, 0, 1)
	case "week":
		filter.To = today.AddDate(0, 0, 7)
	case "month":
		filter.To = today.AddDate(0, 1, 0)
	default:
		return store.ListFilter{}, errors.New("data must be one of today, week, month")
	}
	return filter, nil
}

func redirectPath(r events.Record) string {
	ids := r.JoinedIDs()
	if ids == "" {
		return ""
	}
	return "/r/" + ids
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod"`
	ChangeFreq string  `xml:"changefreq"`
	Priority   float64 `xml:"priority"`
}

func (s *Server) sitemap(w http.ResponseWriter, _ *http.Request) {
	base := strings.TrimRight(s.cfg.Server.PublicBaseURL, "/")
	lastMod := s.deps.Clock.Now().In(events.Local).Format("2006-01-02")
	set := sitemapURLSet{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{
			{Loc: base + "/", LastMod: lastMod, ChangeFreq: "hourly", Priority: 1},
			{Loc: base + "/api/events?data=today", LastMod: lastMod, ChangeFreq: "hourly", Priority: 0.8},
			{Loc: base + "/api/events?data=week", LastMod: lastMod, ChangeFreq: "daily", Priority: 0.5},
		},
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(set); err != nil {
		s.logger.Error("write sitemap failed", zap.Error(err))
	}
}
