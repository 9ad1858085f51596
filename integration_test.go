package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singlet-dev/singlet/internal/config"
	"github.com/singlet-dev/singlet/internal/runtime"
	"github.com/singlet-dev/singlet/internal/server"
)

const integrationCounter = `
<div class="counter">
  <p>Count: {count}</p>
  <button id="inc" onclick="increment()">+1</button>
</div>
<script>
  let count = 0;
  function increment() {
    count++;
  }
</script>
<style>
  .counter { padding: 1em; }
</style>
`

func writeComponent(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestIntegration_DiscoverRegisterRender(t *testing.T) {
	tempDir := t.TempDir()
	writeComponent(t, tempDir, "my-counter.html", integrationCounter)

	viper.Reset()
	viper.Set("components.scan_paths", []string{tempDir})

	cfg, err := config.Load()
	require.NoError(t, err)

	entries, err := cfg.DiscoverComponents()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "my-counter", entries[0].Name)

	reg := runtime.NewRegistry()
	regs := make([]runtime.Registration, 0, len(entries))
	for _, e := range entries {
		regs = append(regs, runtime.Registration{Name: e.Name, Path: e.Path})
	}
	for _, res := range reg.RegisterComponents(context.Background(), regs, cfg.Components.Concurrency) {
		require.NoError(t, res.Err, res.Name)
	}

	inst, err := reg.NewInstance("my-counter")
	require.NoError(t, err)

	rendered, err := inst.HTML()
	require.NoError(t, err)
	assert.Contains(t, rendered, "Count: 0")
	assert.Contains(t, rendered, ".counter { padding: 1em; }")

	inst.Click("#inc")
	rendered, err = inst.HTML()
	require.NoError(t, err)
	assert.Contains(t, rendered, "Count: 1")
}

func TestIntegration_ServerServesComponents(t *testing.T) {
	tempDir := t.TempDir()
	path := writeComponent(t, tempDir, "my-counter.html", integrationCounter)

	viper.Reset()
	cfg := config.DefaultConfig()
	cfg.Server.Port = freePort(t)
	cfg.Components.ScanPaths = nil
	cfg.Development.HotReload = false

	reg := runtime.NewRegistry()
	require.NoError(t, reg.RegisterComponent(context.Background(), "my-counter", path, false))

	srv, err := server.New(cfg, reg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	base := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	waitForServer(t, base+"/api/components")

	resp, err := http.Get(base + "/api/components")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	resp.Body.Close()
	assert.Equal(t, []string{"my-counter"}, names)

	resp, err = http.Get(base + "/component/my-counter?count=3")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Count: 3")

	resp, err = http.Post(base+"/api/render", "application/json",
		strings.NewReader(`{"name":"my-counter"}`))
	require.NoError(t, err)
	body = readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Count: 0")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server never became reachable at %s", url)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
