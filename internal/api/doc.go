// Package api hosts the HTTP server, middleware, and REST handlers of the
// agenda service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/events for the public listing and GET /r/{id} for click
//     tracking redirects.
//   - POST /api/instagram/... for caption and story screenshot ingestion.
//   - /api/admin/... for dedup dry runs, scrapes, scrape run history and the
//     daily content bundle, guarded by the API key when auth is enabled.
//   - GET /api/generate-card and /api/generate-story for rendered PNGs.
package api
