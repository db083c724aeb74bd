// Package api provides the HTTP server for the Anysite generation service.
//
// # Architecture
//
// The server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// Health probes (/health) bypass the middleware stack via a top-level
// mux, ensuring they remain fast and unauthenticated.
//
// # Endpoints
//
// Health probe (no middleware):
//   - GET /health: returns {"status":"ok"}
//
// Generation pipeline (SSE responses):
//   - POST /api/generate-code: stream rendered document snapshots, commit a version
//   - POST /api/improve-prompt: stream refined prompt text
//
// Version history:
//   - GET /api/versions: list history, newest first
//   - GET /api/versions/{id}: get one version by ID
//   - PATCH /api/versions/{id}: replace a version's code
//   - DELETE /api/versions: clear the history
//
// Auth:
//   - GET /api/auth/check-bypass: "true" while the anonymous allowance holds
//   - GET /api/login: redirect to the OAuth provider (optional)
//   - GET /api/auth/login: OAuth callback, sets the token cookie (optional)
//
// Sharing:
//   - POST /api/share-link: upload code to the gallery (optional)
package api
