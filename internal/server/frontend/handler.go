// Package frontend serves the admin page used to manage stream keys. All
// page routes are protected by a double-submit CSRF token and, when a
// password hash is configured, by HTTP basic auth.
package frontend

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
	"github.com/dmitrijs2005/rtmp-auth/internal/netx"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/frontend/assets"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
	"github.com/dmitrijs2005/rtmp-auth/internal/timex"
)

const defaultUsername = "admin"

var pageTemplate = template.Must(template.ParseFS(assets.Templates, "form.html"))

// Store is the part of store.Store the admin page uses.
type Store interface {
	Snapshot(ctx context.Context) (*models.State, error)
	AddStream(ctx context.Context, stream *models.Stream) (*models.Stream, error)
	RemoveStream(ctx context.Context, id string) error
	SetBlocked(ctx context.Context, id string, blocked bool) (*models.Stream, error)
	Secret() []byte
	Applications() []string
}

// Handler renders the admin page and handles its forms.
type Handler struct {
	store        Store
	logger       logging.Logger
	clock        timex.Clock
	prefix       string
	insecure     bool
	username     string
	passwordHash string
}

// Option configures a Handler.
type Option func(*Handler)

// WithPrefix mounts the page below prefix, e.g. "/admin".
func WithPrefix(prefix string) Option {
	return func(h *Handler) { h.prefix = strings.TrimRight(prefix, "/") }
}

// WithInsecure allows the CSRF cookie over plain HTTP.
func WithInsecure(insecure bool) Option {
	return func(h *Handler) { h.insecure = insecure }
}

// WithPassword enables basic auth for user with a bcrypt password hash. An
// empty user defaults to "admin".
func WithPassword(user, hash string) Option {
	return func(h *Handler) {
		if user == "" {
			user = defaultUsername
		}
		h.username = user
		h.passwordHash = hash
	}
}

func WithClock(c timex.Clock) Option {
	return func(h *Handler) { h.clock = c }
}

func NewHandler(s Store, l logging.Logger, opts ...Option) *Handler {
	h := &Handler{
		store:    s,
		logger:   l.With("module", "frontend"),
		clock:    timex.RealClock{},
		username: defaultUsername,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) cookiePath() string {
	return h.prefix + "/"
}

// Router builds the gin engine of the frontend listener.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), netx.RequestLogger(h.logger))
	r.SetHTMLTemplate(pageTemplate)

	public, err := fs.Sub(assets.Public, "public")
	if err != nil {
		panic(err)
	}
	r.Group(h.prefix).StaticFS("/public", http.FS(public))

	pages := r.Group(h.prefix, h.basicAuth(), h.csrfMiddleware())
	pages.GET("/", h.Index)
	pages.POST("/add", h.Add)
	pages.POST("/remove", h.Remove)
	pages.POST("/block", h.Block)
	return r
}

// addForm holds the submitted add form so it can be shown again on errors.
type addForm struct {
	Application string
	Name        string
	AuthKey     string
	AuthExpire  string
	Notes       string
}

type pageData struct {
	Prefix       string
	CSRFToken    string
	Applications []string
	Streams      []*streamRow
	Errors       []string
	Form         addForm
}

// streamRow is one table row. Its expiry cell is rendered through
// timex.Renderer, the same way the page script refreshes it in the browser.
type streamRow struct {
	models.Stream
	text string
}

func newStreamRow(s *models.Stream) *streamRow {
	row := &streamRow{Stream: *s}
	if s.AuthExpire == models.NeverExpires {
		row.text = "never"
	}
	return row
}

func (r *streamRow) RawExpiry() string {
	return strconv.FormatInt(r.AuthExpire, 10)
}

func (r *streamRow) SetText(text string) {
	r.text = text
}

func (r *streamRow) Text() string {
	return r.text
}

func (h *Handler) render(c *gin.Context, status int, form addForm, errs ...string) {
	ctx := c.Request.Context()

	state, err := h.store.Snapshot(ctx)
	if err != nil {
		h.logger.Error(ctx, "failed to load state", "error", err)
		errs = append(errs, "failed to load streams: "+err.Error())
		state = &models.State{}
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
	}

	rows := make([]*streamRow, 0, len(state.Streams))
	fields := make([]timex.Field, 0, len(state.Streams))
	for _, s := range state.Streams {
		row := newStreamRow(s)
		rows = append(rows, row)
		fields = append(fields, row)
	}
	timex.NewRenderer(h.clock, fields).Refresh()

	token, _ := c.Get(csrfCtxKey)
	tokenString, _ := token.(string)

	c.HTML(status, "form.html", pageData{
		Prefix:       h.prefix,
		CSRFToken:    tokenString,
		Applications: h.store.Applications(),
		Streams:      rows,
		Errors:       errs,
		Form:         form,
	})
}

func (h *Handler) redirectHome(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, h.prefix+"/")
}

// Index renders the stream table and the add form.
func (h *Handler) Index(c *gin.Context) {
	h.render(c, http.StatusOK, addForm{})
}

// Add creates a stream from the add form.
func (h *Handler) Add(c *gin.Context) {
	ctx := c.Request.Context()
	form := addForm{
		Application: c.PostForm("application"),
		Name:        strings.TrimSpace(c.PostForm("name")),
		AuthKey:     c.PostForm("auth_key"),
		AuthExpire:  c.PostForm("auth_expire"),
		Notes:       c.PostForm("notes"),
	}

	var errs []string
	expiry, err := ParseExpiry(form.AuthExpire, h.clock.Now())
	if err != nil {
		errs = append(errs, err.Error())
	}
	if form.Name == "" {
		errs = append(errs, "stream name must be set")
	}
	if len(errs) > 0 {
		h.render(c, http.StatusBadRequest, form, errs...)
		return
	}

	stream, err := h.store.AddStream(ctx, &models.Stream{
		Application: form.Application,
		Name:        form.Name,
		AuthKey:     form.AuthKey,
		AuthExpire:  expiry,
		Notes:       form.Notes,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, common.ErrValidation) || errors.Is(err, common.ErrInvalidExpiry) {
			status = http.StatusBadRequest
		} else {
			h.logger.Error(ctx, "failed to add stream", "error", err)
		}
		h.render(c, status, form, errorMessages("failed to add stream", err)...)
		return
	}

	h.logger.Info(ctx, "added stream", "id", stream.ID, "stream", stream.Path())
	h.redirectHome(c)
}

// Remove deletes the stream named by the id form field.
func (h *Handler) Remove(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.PostForm("id")

	if err := h.store.RemoveStream(ctx, id); err != nil {
		h.logger.Warn(ctx, "failed to remove stream", "id", id, "error", err)
		h.render(c, statusFor(err), addForm{}, errorMessages("failed to remove stream", err)...)
		return
	}

	h.logger.Info(ctx, "removed stream", "id", id)
	h.redirectHome(c)
}

// Block toggles the blocked flag. The form carries the current state.
func (h *Handler) Block(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.PostForm("id")
	current, _ := strconv.ParseBool(c.PostForm("blocked"))

	action := "block"
	if current {
		action = "unblock"
	}

	stream, err := h.store.SetBlocked(ctx, id, !current)
	if err != nil {
		h.logger.Warn(ctx, "failed to "+action+" stream", "id", id, "error", err)
		h.render(c, statusFor(err), addForm{}, errorMessages("failed to "+action+" stream "+id, err)...)
		return
	}

	h.logger.Info(ctx, action+"ed stream", "id", id, "stream", stream.Path())
	h.redirectHome(c)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorMessages flattens joined errors into one message each.
func errorMessages(prefix string, err error) []string {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, prefix+": "+e.Error())
	}
	return out
}
