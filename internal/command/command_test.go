package command

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setup(t *testing.T) (cfgPath string, srv *httptest.Server, hits *atomic.Int32) {
	t.Helper()
	hits = &atomic.Int32{}
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logo.png" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "chunkcache.yml")
	cfg := "chunk-size: 4B\nstore:\n  kind: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "cache.db") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, srv, hits
}

func TestGetPopulatesThenHits(t *testing.T) {
	cfgPath, srv, hits := setup(t)
	uri := srv.URL + "/logo.png"

	out, err := run(t, "-f", cfgPath, "get", uri)
	require.NoError(t, err)
	require.Equal(t, "PNGDATA", out)

	out, err = run(t, "-f", cfgPath, "get", uri)
	require.NoError(t, err)
	require.Equal(t, "PNGDATA", out)
	require.EqualValues(t, 1, hits.Load())

	out, err = run(t, "-f", cfgPath, "ls")
	require.NoError(t, err)
	require.Contains(t, out, uri)
	require.Contains(t, out, "KEY")

	_, err = run(t, "-f", cfgPath, "rm", uri)
	require.NoError(t, err)
	out, err = run(t, "-f", cfgPath, "ls")
	require.NoError(t, err)
	require.NotContains(t, out, uri)
}

func TestGetWritesOutputFile(t *testing.T) {
	cfgPath, srv, _ := setup(t)
	dst := filepath.Join(t.TempDir(), "out.txt")

	_, err := run(t, "-f", cfgPath, "get", "--data-uri", "-o", dst, srv.URL+"/logo.png")
	require.NoError(t, err)

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "data:image/png;base64,UE5HREFUQQ==", string(b))
}

func TestGetFetchFailure(t *testing.T) {
	cfgPath, srv, _ := setup(t)
	_, err := run(t, "-f", cfgPath, "get", srv.URL+"/missing")
	require.ErrorContains(t, err, "nothing cached")
}

func TestPurge(t *testing.T) {
	cfgPath, srv, _ := setup(t)
	_, err := run(t, "-f", cfgPath, "get", srv.URL+"/logo.png")
	require.NoError(t, err)

	out, err := run(t, "-f", cfgPath, "purge", "--expired", "--orphans")
	require.NoError(t, err)
	require.Equal(t, "scanned 1, expired 0, corrupt 0, orphans 0\n", out)

	_, err = run(t, "-f", cfgPath, "purge")
	require.NoError(t, err)
	out, err = run(t, "-f", cfgPath, "ls")
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "\n"), out)

	_, err = run(t, "-f", cfgPath, "purge", "--orphans")
	require.ErrorContains(t, err, "--orphans requires --expired")
}

func TestConfigErrors(t *testing.T) {
	_, err := run(t, "-f", filepath.Join(t.TempDir(), "absent.yml"), "ls")
	require.ErrorContains(t, err, "failed to read configuration file")

	t.Setenv("CHUNKCACHE_STORE_KIND", "floppy")
	_, err = run(t, "ls")
	require.ErrorContains(t, err, `unsupported store kind "floppy"`)
}
