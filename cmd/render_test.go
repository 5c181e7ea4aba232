// File: cmd/render_test.go
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/network"
	"github.com/xkilldash9x/rendercore/internal/config"
)

// stubFetcher serves fixed pages.
type stubFetcher map[string]string

func (s stubFetcher) Request(_ context.Context, rawURL, _ string, _ []byte) (*network.Response, error) {
	body, ok := s[rawURL]
	if !ok {
		return nil, fmt.Errorf("no route to %s", rawURL)
	}
	return &network.Response{URL: rawURL, Status: http.StatusOK, Headers: http.Header{}, Body: []byte(body)}, nil
}

// useFetcher installs f for the test and returns the network config the
// command passed when building it.
func useFetcher(t *testing.T, f network.Fetcher) *config.NetworkConfig {
	t.Helper()
	orig := newFetcher
	t.Cleanup(func() { newFetcher = orig })
	var seen config.NetworkConfig
	newFetcher = func(cfg config.NetworkConfig, _ *zap.Logger) network.Fetcher {
		seen = cfg
		return f
	}
	return &seen
}

func decodeDump(t *testing.T, data []byte) renderDump {
	t.Helper()
	var d renderDump
	require.NoError(t, json.Unmarshal(data, &d))
	return d
}

func findItem(items []dumpItem, substr string) bool {
	for _, it := range items {
		if strings.Contains(it.Item, substr) || findItem(it.Children, substr) {
			return true
		}
	}
	return false
}

func TestResolveTarget(t *testing.T) {
	path := writeFile(t, "page.html", "<p>x</p>")
	abs, err := filepath.Abs(path)
	require.NoError(t, err)

	assert.Equal(t, "http://a.test/", resolveTarget("http://a.test/"))
	assert.Equal(t, "data:text/html,<p>x</p>", resolveTarget("data:text/html,<p>x</p>"))
	assert.Equal(t, "file://"+filepath.ToSlash(abs), resolveTarget(path))
	assert.Equal(t, "https://example.org", resolveTarget("example.org"))
}

func TestBrowserOptions(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SetRenderViewport(1000, 700)
	cfg.SetRenderZoom(2)
	cfg.SetScriptEnabled(false)

	opts := browserOptions(cfg)
	assert.Equal(t, 1000.0, opts.Width)
	assert.Equal(t, 700.0, opts.Height)
	assert.Equal(t, 1000.0, opts.Tab.Width)
	assert.Equal(t, 700.0-cfg.Render().ChromeHeight, opts.Tab.Height, "tabs get the content area")
	assert.Equal(t, 2.0, opts.Tab.Zoom)
	assert.False(t, opts.Tab.ScriptEnabled)
	assert.Equal(t, cfg.Script().Timeout, opts.Tab.ScriptTimeout)
}

func TestRenderCmd(t *testing.T) {
	t.Run("prints a summary", func(t *testing.T) {
		useFetcher(t, stubFetcher{"http://a.test/": "<p>hello world</p>"})
		out, err := executeCommand(t, "render", "--frames", "2", "http://a.test/")
		require.NoError(t, err)
		assert.Contains(t, out, "Rendered http://a.test/:")
		assert.Contains(t, out, "layers")
	})

	t.Run("dumps to stdout", func(t *testing.T) {
		useFetcher(t, stubFetcher{"http://a.test/": "<p>hello world</p>"})
		out, err := executeCommand(t, "render", "--dump", "-", "--accessibility", "http://a.test/")
		require.NoError(t, err)

		d := decodeDump(t, []byte(out))
		assert.Equal(t, "http://a.test/", d.URL)
		assert.Equal(t, 3, d.Frames)
		assert.True(t, findItem(d.DisplayList, "hello"), "text is in the display list")
		assert.NotEmpty(t, d.Layers)
		assert.Positive(t, d.Stats.Draws)
		require.NotNil(t, d.Accessibility)
		assert.Equal(t, "document", d.Accessibility.Role)
		assert.NotEmpty(t, d.Ops, "the recording backend reports its canvas calls")
	})

	t.Run("dumps to a file", func(t *testing.T) {
		useFetcher(t, stubFetcher{"http://a.test/": "<p>hi</p>"})
		path := filepath.Join(t.TempDir(), "dump.json")
		out, err := executeCommand(t, "render", "--dump", path, "http://a.test/")
		require.NoError(t, err)
		assert.Empty(t, out)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Nil(t, decodeDump(t, data).Accessibility, "accessibility is off by default")
	})

	t.Run("network config reaches the fetcher", func(t *testing.T) {
		seen := useFetcher(t, stubFetcher{"http://a.test/": "<p>hi</p>"})
		t.Setenv("RENDERCORE_NETWORK_USER_AGENT", "rendercore-test/1.0")
		_, err := executeCommand(t, "render", "-n", "1", "http://a.test/")
		require.NoError(t, err)
		assert.Equal(t, "rendercore-test/1.0", seen.UserAgent)
	})

	t.Run("reads local files", func(t *testing.T) {
		path := writeFile(t, "page.html", "<p>from disk</p>")
		out, err := executeCommand(t, "render", "--dump", "-", path)
		require.NoError(t, err)
		assert.True(t, findItem(decodeDump(t, []byte(out)).DisplayList, "disk"))
	})

	t.Run("fails when nothing loads", func(t *testing.T) {
		useFetcher(t, stubFetcher{})
		_, err := executeCommand(t, "render", "-n", "1", "http://missing.test/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nothing was committed")
	})

	t.Run("rejects zero frames", func(t *testing.T) {
		_, err := executeCommand(t, "render", "--frames", "0", "http://a.test/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--frames must be at least 1")
	})

	t.Run("requires a target", func(t *testing.T) {
		_, err := executeCommand(t, "render")
		require.Error(t, err)
	})
}
