// Package api serves the callbacks streaming servers use to authorize
// publishers: nginx-rtmp on_publish/on_publish_done, srtrelay and SRS
// http_hooks. A successful callback answers 200 with body "0", which SRS
// requires; everything else answers 401.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
	"github.com/dmitrijs2005/rtmp-auth/internal/netx"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
)

// Store is the part of store.Store the callbacks use.
type Store interface {
	Auth(ctx context.Context, app, name, key string) (string, error)
	SetActive(ctx context.Context, id string) error
	SetInactive(ctx context.Context, app, name string) error
	Snapshot(ctx context.Context) (*models.State, error)
}

// Handler implements the callback endpoints.
type Handler struct {
	store   Store
	logger  logging.Logger
	metrics *Metrics
}

func NewHandler(s Store, l logging.Logger) *Handler {
	return &Handler{
		store:   s,
		logger:  l.With("module", "api"),
		metrics: NewMetrics(s.Snapshot),
	}
}

// Metrics returns the collectors updated by the handler.
func (h *Handler) Metrics() *Metrics {
	return h.metrics
}

// Router builds the gin engine of the API listener.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), netx.RequestLogger(h.logger))

	r.POST("/publish", h.Publish)
	r.POST("/unpublish", h.Unpublish)
	r.GET("/metrics", h.metrics.Handler())
	r.GET("/healthz", h.Health)
	return r
}

func unauthorized(c *gin.Context) {
	c.String(http.StatusUnauthorized, "401 Unauthorized")
}

// Publish authorizes a publisher and marks its stream live.
func (h *Handler) Publish(c *gin.Context) {
	ctx := c.Request.Context()

	cb, err := parseCallback(c, ActionPublish)
	if err != nil {
		h.logger.Warn(ctx, "failed to parse publish data", "error", err)
		h.metrics.observePublish(ResultInvalid)
		unauthorized(c)
		return
	}
	reqLog := h.logger.With("app", cb.App, "name", cb.Name)

	id, err := h.store.Auth(ctx, cb.App, cb.Name, cb.Auth)
	if err != nil {
		result := ResultUnauthorized
		switch {
		case errors.Is(err, common.ErrBlocked):
			result = ResultBlocked
		case errors.Is(err, common.ErrAlreadyActive):
			result = ResultAlreadyLive
		case !errors.Is(err, common.ErrUnauthorized):
			result = ResultError
			reqLog.Error(ctx, "auth failed", "error", err)
		}
		reqLog.Info(ctx, "publish unauthorized", "id", id, "reason", err.Error())
		h.metrics.observePublish(result)
		unauthorized(c)
		return
	}

	if err := h.store.SetActive(ctx, id); err != nil {
		reqLog.Error(ctx, "failed to mark stream active", "id", id, "error", err)
		h.metrics.observePublish(ResultError)
		unauthorized(c)
		return
	}

	reqLog.Info(ctx, "publish ok", "id", id)
	h.metrics.observePublish(ResultOK)
	c.String(http.StatusOK, "0")
}

// Unpublish clears the live flag of app/name.
func (h *Handler) Unpublish(c *gin.Context) {
	ctx := c.Request.Context()

	cb, err := parseCallback(c, ActionUnpublish)
	if err != nil {
		h.logger.Warn(ctx, "failed to parse unpublish data", "error", err)
		h.metrics.observeUnpublish(ResultInvalid)
		unauthorized(c)
		return
	}

	if err := h.store.SetInactive(ctx, cb.App, cb.Name); err != nil && !errors.Is(err, common.ErrNotFound) {
		h.logger.Error(ctx, "failed to mark stream inactive", "app", cb.App, "name", cb.Name, "error", err)
		h.metrics.observeUnpublish(ResultError)
	} else {
		h.metrics.observeUnpublish(ResultOK)
	}

	h.logger.Info(ctx, "unpublish ok", "app", cb.App, "name", cb.Name)
	c.String(http.StatusOK, "0")
}

// Health answers 200 while the state can be read.
func (h *Handler) Health(c *gin.Context) {
	if _, err := h.store.Snapshot(c.Request.Context()); err != nil {
		c.String(http.StatusServiceUnavailable, "unavailable")
		return
	}
	c.String(http.StatusOK, "ok")
}
