package backends

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
)

// MemoryBackend keeps the encoded state in process memory. It applies the
// same version check as the shared backends, which makes it useful in tests.
type MemoryBackend struct {
	mu      sync.Mutex
	data    []byte
	version uint64
	seen    uint64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Read(ctx context.Context) (*models.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := DecodeState(m.data)
	if err != nil {
		return nil, err
	}
	m.seen = m.version
	return state, nil
}

func (m *MemoryBackend) Write(ctx context.Context, state *models.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen != m.version {
		return common.ErrConflict
	}
	m.data = EncodeState(state)
	m.version++
	m.seen = m.version
	return nil
}

// Version returns how many writes succeeded so far.
func (m *MemoryBackend) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

func (m *MemoryBackend) Close() error {
	return nil
}
