package backends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
)

func TestEtcdBackend_Defaults(t *testing.T) {
	b := newEtcdBackend("", nil)
	assert.Equal(t, common.StateKey, b.key)

	st, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Streams)
	assert.Zero(t, b.readRev)
}

func TestEtcdBackend_ApplyValue(t *testing.T) {
	b := newEtcdBackend("k", nil)

	require.NoError(t, b.applyValue(EncodeState(sampleState()), 10))
	st, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleState(), st)
	assert.Equal(t, int64(10), b.readRev)

	// older revisions never replace newer data
	require.NoError(t, b.applyValue(EncodeState(&models.State{}), 5))
	st, err = b.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Streams, 2)

	assert.Error(t, b.applyValue([]byte{0x0a, 0xff}, 11))
	assert.Equal(t, int64(10), b.cacheRev)
}

func TestEtcdBackend_ApplyDelete(t *testing.T) {
	b := newEtcdBackend("k", nil)
	require.NoError(t, b.applyValue(EncodeState(sampleState()), 3))

	b.applyDelete()
	st, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Streams)
	assert.Zero(t, b.readRev)
}

func TestEtcdBackend_ReadReturnsCopy(t *testing.T) {
	b := newEtcdBackend("k", nil)
	require.NoError(t, b.applyValue(EncodeState(sampleState()), 3))

	st, err := b.Read(context.Background())
	require.NoError(t, err)
	st.Streams[0].Name = "changed"

	st, err = b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", st.Streams[0].Name)
}

func TestEtcdBackend_CloseWithoutClient(t *testing.T) {
	assert.NoError(t, newEtcdBackend("k", nil).Close())
}
