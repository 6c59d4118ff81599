package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/cryptox"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/backends"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
	"github.com/dmitrijs2005/rtmp-auth/internal/timex"
)

type fakeClipboard struct {
	text string
	err  error
}

func (f *fakeClipboard) WriteAll(text string) error {
	if f.err != nil {
		return f.err
	}
	f.text = text
	return nil
}

var testNow = time.Unix(1_700_000_000, 0)

// writeConfig stores streams in a file backend and returns a config file
// pointing at it.
func writeConfig(t *testing.T, streams ...*models.Stream) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "store.db")

	fb, err := backends.NewFileBackend(backends.FileConfig{Path: dbPath})
	require.NoError(t, err)
	require.NoError(t, fb.Write(context.Background(), &models.State{Streams: streams}))
	require.NoError(t, fb.Close())

	cfgPath := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("[store]\nbackend = \"file\"\n\n[store.file]\npath = %q\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath
}

func newTestApp(clip *fakeClipboard, opts ...Option) (*App, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	opts = append([]Option{
		WithOutput(out, errOut),
		WithClipboard(clip),
		WithClock(timex.FixedClock(testNow)),
	}, opts...)
	return NewApp(opts...), out, errOut
}

func run(a *App, args ...string) error {
	return a.Execute(context.Background(), append(args, "--env-file", ""))
}

func TestVersion(t *testing.T) {
	a, out, _ := newTestApp(&fakeClipboard{})
	require.NoError(t, run(a, "version"))
	assert.Equal(t, "rtmp-auth dev (commit: none)\n", out.String())
}

func TestKeygen(t *testing.T) {
	clip := &fakeClipboard{}
	a, out, _ := newTestApp(clip)
	require.NoError(t, run(a, "keygen"))

	key := strings.TrimSpace(out.String())
	assert.Len(t, key, 16)
	assert.NotContains(t, key, "+")
	assert.NotContains(t, key, "/")
	assert.Empty(t, clip.text)
}

func TestKeygen_Copy(t *testing.T) {
	clip := &fakeClipboard{}
	a, out, errOut := newTestApp(clip)
	require.NoError(t, run(a, "keygen", "--copy"))

	assert.Equal(t, strings.TrimSpace(out.String()), clip.text)
	assert.Contains(t, errOut.String(), "copied")
}

func TestKeygen_CopyFails(t *testing.T) {
	clip := &fakeClipboard{err: errors.New("no display")}
	a, _, _ := newTestApp(clip)
	err := run(a, "keygen", "--copy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no display")
}

func TestHashPassword(t *testing.T) {
	a, out, _ := newTestApp(&fakeClipboard{}, WithPasswordReader(func() ([]byte, error) {
		return []byte("hunter2"), nil
	}))
	require.NoError(t, run(a, "hash-password"))

	hash := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(hash, "$2"))
	assert.True(t, cryptox.CheckPassword(hash, []byte("hunter2")))
}

func TestHashPassword_Empty(t *testing.T) {
	a, _, _ := newTestApp(&fakeClipboard{}, WithPasswordReader(func() ([]byte, error) {
		return nil, nil
	}))
	assert.Error(t, run(a, "hash-password"))
}

func TestStreamsList(t *testing.T) {
	cfg := writeConfig(t,
		&models.Stream{ID: "a1", Application: "stream", Name: "main", AuthKey: "key-main", AuthExpire: models.NeverExpires, Notes: "studio"},
		&models.Stream{ID: "b2", Application: "stream", Name: "guest", AuthKey: "key-guest", AuthExpire: testNow.Unix() + 3*3600, Blocked: true},
	)

	a, out, _ := newTestApp(&fakeClipboard{})
	require.NoError(t, run(a, "streams", "list", "--config", cfg))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "STREAM", "KEY", "EXPIRES", "STATUS", "NOTES"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"a1", "stream/main", "key-main", "never", "-", "studio"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"b2", "stream/guest", "key-guest", "in", "3", "hours", "blocked"}, strings.Fields(lines[2]))
}

func TestStreamsList_ShowsLiveFromFile(t *testing.T) {
	cfg := writeConfig(t,
		&models.Stream{ID: "a1", Application: "stream", Name: "main", AuthKey: "k", AuthExpire: models.NeverExpires, Active: true, Blocked: true},
	)

	a, out, _ := newTestApp(&fakeClipboard{})
	require.NoError(t, run(a, "streams", "list", "--config", cfg))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"a1", "stream/main", "k", "never", "live,blocked"}, strings.Fields(lines[1]))
}

func TestStreamsList_Watch(t *testing.T) {
	cfg := writeConfig(t,
		&models.Stream{ID: "a1", Application: "stream", Name: "main", AuthKey: "k", AuthExpire: testNow.Unix() + 125},
	)

	a, out, _ := newTestApp(&fakeClipboard{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := a.Execute(ctx, []string{"streams", "list", "--watch", "--interval", "20ms", "--config", cfg, "--env-file", ""})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, strings.Count(out.String(), clearScreen), 2)
	assert.Contains(t, out.String(), "in 2 minutes")
}

func TestStreamsCopy(t *testing.T) {
	cfg := writeConfig(t,
		&models.Stream{ID: "a1", Application: "stream", Name: "main", AuthKey: "key-main", AuthExpire: models.NeverExpires},
	)

	clip := &fakeClipboard{}
	a, _, errOut := newTestApp(clip)
	require.NoError(t, run(a, "streams", "copy", "a1", "--config", cfg))
	assert.Equal(t, "key-main", clip.text)
	assert.Contains(t, errOut.String(), "stream/main")
}

func TestStreamsCopy_UnknownID(t *testing.T) {
	cfg := writeConfig(t)

	a, _, _ := newTestApp(&fakeClipboard{})
	err := run(a, "streams", "copy", "missing", "--config", cfg)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStreams_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[store]\nbackend = \"tape\"\n"), 0o600))

	a, _, _ := newTestApp(&fakeClipboard{})
	err := run(a, "streams", "list", "--config", cfgPath)
	assert.ErrorIs(t, err, common.ErrValidation)
}
