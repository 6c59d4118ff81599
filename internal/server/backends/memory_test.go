package backends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
)

func TestMemoryBackend_ReadWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	st, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Streams)

	require.NoError(t, m.Write(ctx, sampleState()))
	assert.Equal(t, uint64(1), m.Version())

	st, err = m.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), st)
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	require.NoError(t, m.Write(ctx, sampleState()))

	st, err := m.Read(ctx)
	require.NoError(t, err)
	st.Streams[0].Name = "changed"

	again, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", again.Streams[0].Name)
}

func TestMemoryBackend_ConflictAfterForeignWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	_, err := m.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Write(ctx, sampleState()))

	// simulate another writer moving the version
	m.mu.Lock()
	m.version++
	m.mu.Unlock()

	err = m.Write(ctx, sampleState())
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = m.Read(ctx)
	require.NoError(t, err)
	assert.NoError(t, m.Write(ctx, sampleState()))
}
