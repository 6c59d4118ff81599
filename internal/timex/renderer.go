package timex

import (
	"context"
	"time"
)

// DefaultRefreshInterval is how often Run re-renders expiry fields.
const DefaultRefreshInterval = 5 * time.Second

// Field is an element that displays an expiry. RawExpiry returns the stored
// Unix seconds (or Never), SetText replaces what is displayed.
type Field interface {
	RawExpiry() string
	SetText(text string)
}

// Renderer re-formats a fixed set of expiry fields against a clock.
type Renderer struct {
	clock     Clock
	fields    []Field
	onRefresh func()
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithOnRefresh registers fn to run after every Refresh performed by Run.
func WithOnRefresh(fn func()) RendererOption {
	return func(r *Renderer) {
		r.onRefresh = fn
	}
}

func NewRenderer(clock Clock, fields []Field, opts ...RendererOption) *Renderer {
	if clock == nil {
		clock = RealClock{}
	}
	r := &Renderer{clock: clock, fields: fields}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh re-reads every field's raw expiry and overwrites its text. Fields
// that never expire or carry malformed values keep their current text.
func (r *Renderer) Refresh() {
	now := r.clock.Now()
	for _, f := range r.fields {
		if text, ok := FormatExpiry(f.RawExpiry(), now); ok {
			f.SetText(text)
		}
	}
}

// Run refreshes once immediately and then on every tick of interval until ctx
// is done. A non-positive interval uses DefaultRefreshInterval.
func (r *Renderer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	r.tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Renderer) tick() {
	r.Refresh()
	if r.onRefresh != nil {
		r.onRefresh()
	}
}
