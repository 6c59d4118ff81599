package backends

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	fb, err := NewFileBackend(FileConfig{Path: filepath.Join(t.TempDir(), "state.pb")})
	require.NoError(t, err)

	st, err := fb.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Streams)
}

func TestFileBackend_PersistsAndKeepsActive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.pb")

	fb, err := NewFileBackend(FileConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, fb.Write(ctx, sampleState()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	st, err := fb.Read(ctx)
	require.NoError(t, err)
	assert.True(t, st.Streams[0].Active)

	reopened, err := NewFileBackend(FileConfig{Path: path})
	require.NoError(t, err)
	st, err = reopened.Read(ctx)
	require.NoError(t, err)
	require.Len(t, st.Streams, 2)
	assert.True(t, st.Streams[0].Active)
	assert.False(t, st.Streams[1].Active)
	assert.Equal(t, "first", st.Streams[0].Notes)
	assert.Equal(t, sampleState().Secret, st.Secret)
}

func TestFileBackend_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.pb")
	require.NoError(t, os.WriteFile(path, []byte{0x0a, 0xff}, 0o600))

	_, err := NewFileBackend(FileConfig{Path: path})
	assert.Error(t, err)
}

func TestFileBackend_WriteNil(t *testing.T) {
	fb, err := NewFileBackend(FileConfig{Path: filepath.Join(t.TempDir(), "state.pb")})
	require.NoError(t, err)
	assert.Error(t, fb.Write(context.Background(), nil))
}
