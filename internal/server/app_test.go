package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/backends"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/config"
)

func testConfig() *config.Config {
	c := config.Default()
	c.API.Address = "127.0.0.1:0"
	c.Frontend.Address = "127.0.0.1:0"
	c.Health.Address = "127.0.0.1:0"
	c.Store = backends.Config{Backend: backends.KindMemory}
	return c
}

func TestNewApp_LoadsStore(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(), logging.Nop())
	require.NoError(t, err)
	assert.Len(t, app.Store().Secret(), 32)
	assert.Equal(t, []string{"stream"}, app.Store().Applications())
}

func TestNewApp_BadBackend(t *testing.T) {
	c := testConfig()
	c.Store = backends.Config{Backend: backends.KindFile}
	_, err := NewApp(context.Background(), c, logging.Nop())
	assert.Error(t, err)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(), logging.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("app exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsListenError(t *testing.T) {
	c := testConfig()
	c.API.Address = "127.0.0.1:99999"
	app, err := NewApp(context.Background(), c, logging.Nop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not fail on a bad address")
	}
}
