// Package netx runs the HTTP servers of rtmp-auth and holds middleware shared
// by their routers.
package netx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
)

// ShutdownTimeout bounds how long Serve waits for open requests on stop.
const ShutdownTimeout = 5 * time.Second

// Serve listens on srv.Addr and serves until ctx is done, then shuts the
// server down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger logging.Logger) error {
	listen, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, srv, listen, logger)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, srv *http.Server, listen net.Listener, logger logging.Logger) error {
	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Stopping HTTP server...", "address", listen.Addr().String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}

// RequestLogger logs one line per request at debug level, or at warn level
// for server errors.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote", c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn(c.Request.Context(), "request failed", args...)
			return
		}
		logger.Debug(c.Request.Context(), "request", args...)
	}
}
