package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parthib/anysite/internal/api"
	"github.com/parthib/anysite/internal/auth"
	"github.com/parthib/anysite/internal/config"
	"github.com/parthib/anysite/internal/generate"
	"github.com/parthib/anysite/internal/inference"
	"github.com/parthib/anysite/internal/log"
	"github.com/parthib/anysite/internal/quota"
	"github.com/parthib/anysite/internal/share"
	"github.com/parthib/anysite/internal/version"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute // generation streams run long
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{JSON: cfg.LogJSON})
	logger.Info("starting HTTP API server", "version", AppVersion)

	kv, err := version.NewFileKV(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}
	versions := version.NewStore(kv)

	gate := quota.NewGate(nil,
		cfg.QuotaLimit,
		time.Duration(cfg.QuotaWindowHours)*time.Hour,
		logger.With("component", "quota"),
	)
	resolver := auth.NewResolver(gate,
		cfg.FingerprintSecret,
		cfg.TrustProxy,
		cfg.BypassToken,
		cfg.InferenceToken,
	)

	runner := generate.NewRunner(
		inference.NewClient(cfg.InferenceEndpointURL),
		versions,
		0,
		logger.With("component", "generate"),
	)

	var oauth *auth.OAuth
	if cfg.OAuthClientID != "" {
		oauth = auth.NewOAuth(auth.OAuthConfig{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			AuthorizeURL: cfg.OAuthAuthorizeURL,
			TokenURL:     cfg.OAuthTokenURL,
			RedirectURI:  cfg.RedirectURI,
		}, logger.With("component", "oauth"))
	}

	var gallery *share.Client
	if cfg.GalleryBaseURL != "" {
		gallery = share.NewClient(cfg.GalleryBaseURL, cfg.GalleryAuthToken)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Resolver:    resolver,
		Runner:      runner,
		Versions:    versions,
		OAuth:       oauth,
		Gallery:     gallery,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr,
		"api", "/api/*",
		"health", "/health",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
