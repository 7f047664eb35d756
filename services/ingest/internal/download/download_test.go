package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestFetchDownloadsAndHashes(t *testing.T) {
	body := []byte("postcode data payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "data", "extract.zip")
	digests, err := Fetch(context.Background(), srv.Client(), map[string]Source{
		"codepoint": {URL: srv.URL, Dest: dest},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, sha256Hex(body), digests["codepoint"])

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	// The temp sibling must not survive a successful download.
	_, err = os.Stat(dest + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFetchSkipsExistingFile(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "extract.zip")
	existing := []byte("already here")
	require.NoError(t, os.WriteFile(dest, existing, 0o644))

	digests, err := Fetch(context.Background(), srv.Client(), map[string]Source{
		"codepoint": {URL: srv.URL, Dest: dest},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 0, hits)
	// Digest of the file on disk, not the remote content.
	assert.Equal(t, sha256Hex(existing), digests["codepoint"])
}

func TestFetchForceRedownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "extract.zip")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))

	digests, err := Fetch(context.Background(), srv.Client(), map[string]Source{
		"codepoint": {URL: srv.URL, Dest: dest},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, sha256Hex([]byte("fresh")), digests["codepoint"])
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "extract.zip")
	_, err := Fetch(context.Background(), srv.Client(), map[string]Source{
		"codepoint": {URL: srv.URL, Dest: dest},
	}, false)
	require.Error(t, err)

	var dlErr *fault.DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, http.StatusNotFound, dlErr.StatusCode)
	assert.Equal(t, "codepoint", dlErr.Source)

	// Nothing was written.
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchPartialSuccess(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("good"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	dir := t.TempDir()
	digests, err := Fetch(context.Background(), http.DefaultClient, map[string]Source{
		"ok":     {URL: good.URL, Dest: filepath.Join(dir, "ok.zip")},
		"broken": {URL: bad.URL, Dest: filepath.Join(dir, "broken.zip")},
	}, false)

	// The failure is reported but the sibling download still settled.
	require.Error(t, err)
	assert.Equal(t, sha256Hex([]byte("good")), digests["ok"])
	assert.NotContains(t, digests, "broken")

	_, statErr := os.Stat(filepath.Join(dir, "ok.zip"))
	assert.NoError(t, statErr)
}
