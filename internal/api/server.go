package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/parthib/anysite/internal/auth"
	"github.com/parthib/anysite/internal/generate"
	"github.com/parthib/anysite/internal/share"
	"github.com/parthib/anysite/internal/version"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger   *slog.Logger
	Resolver *auth.Resolver   // Required
	Runner   *generate.Runner // Required
	Versions *version.Store   // Required
	OAuth    *auth.OAuth      // Optional: nil disables the login endpoints
	Gallery  *share.Client    // Optional: nil disables sharing

	CORSOrigins []string // Allowed origins for CORS
	IsDev       bool     // Disables HSTS (no HTTPS in dev)
	TrustProxy  bool     // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst   int      // Rate limiter burst size per IP (0 = default 60)
}

// Server is the HTTP server for the generation service.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("credential resolver is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("generation runner is required")
	}
	if cfg.Versions == nil {
		return nil, errors.New("version store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gh := &generateHandler{resolver: cfg.Resolver, runner: cfg.Runner, logger: logger}
	ih := &improveHandler{resolver: cfg.Resolver, runner: cfg.Runner, logger: logger}
	vh := &versionHandler{versions: cfg.Versions, logger: logger}

	mux := http.NewServeMux()

	// Generation pipeline
	mux.HandleFunc("POST /api/generate-code", gh.generateCode)
	mux.HandleFunc("POST /api/improve-prompt", ih.improvePrompt)

	// Version history
	mux.HandleFunc("GET /api/versions", vh.list)
	mux.HandleFunc("GET /api/versions/{id}", vh.get)
	mux.HandleFunc("PATCH /api/versions/{id}", vh.edit)
	mux.HandleFunc("DELETE /api/versions", vh.clear)

	// Anonymous-allowance probe
	mux.HandleFunc("GET /api/auth/check-bypass", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if cfg.Resolver.CanBypass(r) {
			w.Write([]byte("true"))
			return
		}
		w.Write([]byte("false"))
	})

	// Login flow (optional, only registered if OAuth is configured)
	if cfg.OAuth != nil {
		mux.HandleFunc("GET /api/login", cfg.OAuth.RedirectToProvider)
		mux.HandleFunc("GET /api/auth/login", cfg.OAuth.Callback)
	}

	// Gallery sharing (optional)
	if cfg.Gallery != nil {
		sh := &shareHandler{gallery: cfg.Gallery, versions: cfg.Versions, logger: logger}
		mux.HandleFunc("POST /api/share-link", sh.shareLink)
	}

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newIPLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Wrap with security headers
	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Use a top-level mux to separate health probes from middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
