// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/date for quota-gated date lookups.
//   - GET/POST /v1/cache and GET /v1/httpdate for cache access.
//   - /v1/quota, /v1/license, /v1/preferences for account state.
package api
