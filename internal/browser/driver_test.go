package browser

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimRunes(t *testing.T) {
	assert.Equal(t, "abc", trimRunes("abc", 10))
	assert.Equal(t, "ab", trimRunes("abc", 2))
	assert.Equal(t, "登录", trimRunes("登录页面", 2))
	assert.Equal(t, "abc", trimRunes("abc", 0))
}

func TestOpenStartsOnLongLivedContext(t *testing.T) {
	var started context.Context
	restore := startBrowser
	startBrowser = func(ctx context.Context) error {
		started = ctx
		return nil
	}
	defer func() { startBrowser = restore }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	c, err := Open(ctx, Options{ProfileDir: t.TempDir(), Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	cancel()

	// Neither the caller's ctx nor the startup watchdog may end the browser.
	time.Sleep(60 * time.Millisecond)
	require.NotNil(t, started)
	assert.NoError(t, started.Err())
	_, hasDeadline := started.Deadline()
	assert.False(t, hasDeadline)

	require.NoError(t, c.Close())
	assert.Error(t, started.Err())
}

func TestOpenStartupTimeout(t *testing.T) {
	restore := startBrowser
	startBrowser = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	defer func() { startBrowser = restore }()

	_, err := Open(context.Background(), Options{ProfileDir: t.TempDir(), Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not start within")
}

func TestOpenStartupCancelled(t *testing.T) {
	restore := startBrowser
	startBrowser = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	defer func() { startBrowser = restore }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, Options{ProfileDir: t.TempDir(), Timeout: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
}

func findChrome() string {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// Runs only when WEBSWARM_CHROME_TESTS is set and a Chrome binary is on PATH.
func TestChromeSnapshotDataURL(t *testing.T) {
	if os.Getenv("WEBSWARM_CHROME_TESTS") == "" || findChrome() == "" {
		t.Skip("chrome integration tests disabled")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := Open(ctx, Options{ProfileDir: t.TempDir(), Headless: true})
	require.NoError(t, err)
	defer c.Close()

	page := `data:text/html,<title>Login</title><form><input name="username"><button id="go">Sign in</button></form>`
	require.NoError(t, c.Navigate(ctx, page))
	snap, err := c.Snapshot(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, "Login", snap.Title)
	require.Len(t, snap.Elements, 2)
	assert.Equal(t, "input", snap.Elements[0].Tag)
	assert.Equal(t, "Sign in", snap.Elements[1].Label)

	require.NoError(t, c.Type(ctx, snap.Elements[0].Selector, "admin"))
	require.NoError(t, c.Close())
	assert.Error(t, c.Navigate(ctx, page))
}
