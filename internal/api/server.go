// Package api provides the REST API server for appointments, video
// sessions and certificates, plus the HTTP client services use to reach
// it.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sozodigi/telecare/internal/session"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB     *gorm.DB
	Issuer *session.TokenIssuer
	Port   int
	// RPS and Burst tune the per-client rate limiter; zero disables it.
	RPS   float64
	Burst int
	Out   io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("api: db is required")
	}
	if opts.Issuer == nil {
		return fmt.Errorf("api: token issuer is required")
	}
	if opts.Port <= 0 {
		opts.Port = 5000
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.RPS > 0 {
		router.Use(NewRateLimiter(opts.RPS, opts.Burst).Middleware())
	}

	registerRoutes(router, opts.DB, opts.Issuer)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
