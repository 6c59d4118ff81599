package backends

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dmitrijs2005/rtmp-auth/internal/filex"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
)

// FileConfig configures the file backend.
type FileConfig struct {
	Path string `toml:"path" env:"PATH"`
}

// FileBackend stores the state as a protobuf file. It is meant for a single
// rtmp-auth process and keeps the last written state cached.
type FileBackend struct {
	path  string
	mu    sync.RWMutex
	cache *models.State
}

// NewFileBackend loads the state from cfg.Path. A missing file is an empty
// state. Live flags are loaded as stored; store.New resets them on startup.
func NewFileBackend(cfg FileConfig) (*FileBackend, error) {
	fb := &FileBackend{path: cfg.Path}

	state, err := fb.load()
	if err != nil {
		return nil, err
	}
	fb.cache = state
	return fb, nil
}

func (fb *FileBackend) load() (*models.State, error) {
	data, err := os.ReadFile(fb.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &models.State{}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	state, err := DecodeState(data)
	if err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", fb.path, err)
	}
	return state, nil
}

func (fb *FileBackend) Read(ctx context.Context) (*models.State, error) {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	return fb.cache.Clone(), nil
}

func (fb *FileBackend) Write(ctx context.Context, state *models.State) error {
	if state == nil {
		return errors.New("state should not be nil")
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if err := filex.WriteAtomic(fb.path, EncodeState(state), 0o600); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	fb.cache = state.Clone()
	return nil
}

func (fb *FileBackend) Close() error {
	return nil
}
