// Package store implements the stream key operations of rtmp-auth on top of
// a backends.Backend. Every mutation is a read-modify-write of the whole
// state that is retried when the backend reports a concurrent change.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/cryptox"
	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/backends"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
	"github.com/dmitrijs2005/rtmp-auth/internal/timex"
)

// DefaultExpiryInterval is how often RunExpiry removes expired streams.
const DefaultExpiryInterval = 5 * time.Minute

// errUnchanged ends a mutation without writing.
var errUnchanged = errors.New("unchanged")

// Store serializes access to the state of one rtmp-auth process.
type Store struct {
	backend    backends.Backend
	apps       []string
	clock      timex.Clock
	logger     logging.Logger
	newBackOff func() backoff.BackOff

	mu     sync.Mutex
	secret []byte
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for expiry checks.
func WithClock(c timex.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithBackOff sets the retry policy for conflicting writes. fn is called
// once per mutation.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *Store) { s.newBackOff = fn }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return backoff.WithMaxRetries(b, 5)
}

// New loads the state from backend, clears stale live flags and creates the
// token secret on first start.
func New(ctx context.Context, backend backends.Backend, apps []string, opts ...Option) (*Store, error) {
	s := &Store{
		backend:    backend,
		apps:       slices.Clone(apps),
		clock:      timex.RealClock{},
		logger:     logging.Nop(),
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "store")

	err := s.mutate(ctx, func(state *models.State) error {
		changed := false
		for _, stream := range state.Streams {
			if stream.Active {
				stream.Active = false
				changed = true
			}
		}
		if len(state.Secret) == 0 {
			secret, err := cryptox.GenerateSecret(cryptox.SecretSize)
			if err != nil {
				return err
			}
			state.Secret = secret
			changed = true
		}
		s.secret = slices.Clone(state.Secret)
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}
	return s, nil
}

// mutate applies fn to a fresh copy of the state and writes it back. fn may
// run several times when the write conflicts.
func (s *Store) mutate(ctx context.Context, fn func(*models.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := func() error {
		state, err := s.backend.Read(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read state: %w", err))
		}
		if err := fn(state); err != nil {
			return backoff.Permanent(err)
		}
		err = s.backend.Write(ctx, state)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, common.ErrConflict):
			s.logger.Debug(ctx, "state conflict, retrying")
			return err
		default:
			return backoff.Permanent(fmt.Errorf("write state: %w", err))
		}
	}

	err := backoff.Retry(op, backoff.WithContext(s.newBackOff(), ctx))
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

func (s *Store) read(ctx context.Context) (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	return state, nil
}

// Auth looks up the stream for app/name/key and returns its id.
//
// Blocked streams fail with ErrBlocked, expired keys with ErrUnauthorized.
// When a different stream is already live on the same app/name the result
// is ErrAlreadyActive; the matched stream itself may reconnect.
func (s *Store) Auth(ctx context.Context, app, name, key string) (string, error) {
	state, err := s.read(ctx)
	if err != nil {
		return "", err
	}

	now := s.clock.Now().Unix()
	for _, stream := range state.Streams {
		if stream.Application != app || stream.Name != name || stream.AuthKey != key {
			continue
		}
		if stream.Blocked {
			return stream.ID, common.ErrBlocked
		}
		if stream.Expired(now) {
			return stream.ID, fmt.Errorf("%w: key expired", common.ErrUnauthorized)
		}
		if !stream.Active && appNameActive(state, app, name) {
			return stream.ID, common.ErrAlreadyActive
		}
		return stream.ID, nil
	}
	return "", common.ErrUnauthorized
}

func appNameActive(state *models.State, app, name string) bool {
	for _, stream := range state.Streams {
		if stream.Application == app && stream.Name == name && stream.Active {
			return true
		}
	}
	return false
}

// SetActive marks the stream with id as live.
func (s *Store) SetActive(ctx context.Context, id string) error {
	return s.mutate(ctx, func(state *models.State) error {
		stream, _ := state.FindByID(id)
		if stream == nil {
			return fmt.Errorf("stream %s: %w", id, common.ErrNotFound)
		}
		if stream.Active {
			return errUnchanged
		}
		stream.Active = true
		return nil
	})
}

// SetInactive clears the live flag of every stream on app/name.
func (s *Store) SetInactive(ctx context.Context, app, name string) error {
	return s.mutate(ctx, func(state *models.State) error {
		found, changed := false, false
		for _, stream := range state.Streams {
			if stream.Application == app && stream.Name == name {
				found = true
				if stream.Active {
					stream.Active = false
					changed = true
				}
			}
		}
		if !found {
			return fmt.Errorf("stream %s/%s: %w", app, name, common.ErrNotFound)
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
}

// SetBlocked changes whether the stream with id may publish. It returns the
// updated stream.
func (s *Store) SetBlocked(ctx context.Context, id string, blocked bool) (*models.Stream, error) {
	var out models.Stream
	err := s.mutate(ctx, func(state *models.State) error {
		stream, _ := state.FindByID(id)
		if stream == nil {
			return fmt.Errorf("stream %s: %w", id, common.ErrNotFound)
		}
		out = *stream
		if stream.Blocked == blocked {
			return errUnchanged
		}
		stream.Blocked = blocked
		out.Blocked = blocked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddStream validates stream, assigns a new id and stores it unblocked.
func (s *Store) AddStream(ctx context.Context, stream *models.Stream) (*models.Stream, error) {
	if err := s.validate(stream); err != nil {
		return nil, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	added := *stream
	added.ID = id.String()
	added.Blocked = false
	added.Active = false

	err = s.mutate(ctx, func(state *models.State) error {
		c := added
		state.Streams = append(state.Streams, &c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "stream added", "id", added.ID, "stream", added.Path())
	return &added, nil
}

func (s *Store) validate(stream *models.Stream) error {
	var errs []error
	if stream.Name == "" {
		errs = append(errs, fmt.Errorf("%w: stream name must be set", common.ErrValidation))
	}
	if len(s.apps) > 0 && !slices.Contains(s.apps, stream.Application) {
		errs = append(errs, fmt.Errorf("%w: unknown application %q", common.ErrValidation, stream.Application))
	}
	if stream.AuthExpire < models.NeverExpires {
		errs = append(errs, fmt.Errorf("%w: %d", common.ErrInvalidExpiry, stream.AuthExpire))
	}
	return errors.Join(errs...)
}

// RemoveStream deletes the stream with id.
func (s *Store) RemoveStream(ctx context.Context, id string) error {
	return s.mutate(ctx, func(state *models.State) error {
		_, idx := state.FindByID(id)
		if idx < 0 {
			return fmt.Errorf("stream %s: %w", id, common.ErrNotFound)
		}
		state.Streams = slices.Delete(state.Streams, idx, idx+1)
		return nil
	})
}

// Expire removes every stream whose key expired before now and returns the
// removed streams.
func (s *Store) Expire(ctx context.Context) ([]*models.Stream, error) {
	now := s.clock.Now().Unix()

	var removed []*models.Stream
	err := s.mutate(ctx, func(state *models.State) error {
		removed = removed[:0]
		kept := state.Streams[:0]
		for _, stream := range state.Streams {
			if stream.Expired(now) {
				removed = append(removed, stream)
				continue
			}
			kept = append(kept, stream)
		}
		if len(removed) == 0 {
			return errUnchanged
		}
		state.Streams = kept
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, stream := range removed {
		s.logger.Info(ctx, "stream expired", "id", stream.ID, "stream", stream.Path())
	}
	return removed, nil
}

// RunExpiry calls Expire every interval until ctx is done.
func (s *Store) RunExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultExpiryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Expire(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, "expire failed", "error", err)
			}
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot(ctx context.Context) (*models.State, error) {
	return s.read(ctx)
}

// Stream returns the stream with id.
func (s *Store) Stream(ctx context.Context, id string) (*models.Stream, error) {
	state, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	stream, _ := state.FindByID(id)
	if stream == nil {
		return nil, fmt.Errorf("stream %s: %w", id, common.ErrNotFound)
	}
	return stream, nil
}

// Secret returns the key that signs frontend tokens.
func (s *Store) Secret() []byte {
	return slices.Clone(s.secret)
}

// Applications returns the application names streams may be added to.
func (s *Store) Applications() []string {
	return slices.Clone(s.apps)
}
