// Package download materialises remote source files on disk with integrity
// hashing. A destination is only ever visible once fully written: bytes are
// streamed to a .tmp sibling and renamed into place on success.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
)

// Source names a remote file and where it lands on disk.
type Source struct {
	URL  string
	Dest string
}

// Fetch downloads every source concurrently over one shared client and
// returns source name -> SHA-256 hex digest. When a destination already
// exists and force is false the network is skipped and the existing file is
// hashed instead.
//
// Fetch blocks until every download has settled. On failure the first error
// is returned together with the digests of the sources that did succeed;
// their files stay on disk so a re-run can skip them.
func Fetch(ctx context.Context, client *http.Client, sources map[string]Source, force bool) (map[string]string, error) {
	digests := make(map[string]string, len(sources))
	var mu sync.Mutex

	// Deliberately not errgroup.WithContext: one source failing must not
	// cancel its siblings mid-stream.
	var g errgroup.Group
	for name, src := range sources {
		name, src := name, src
		g.Go(func() error {
			digest, err := fetchOne(ctx, client, name, src, force)
			if err != nil {
				log.Printf("download failed: source=%s err=%v", name, err)
				return err
			}
			mu.Lock()
			digests[name] = digest
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return digests, err
}

func fetchOne(ctx context.Context, client *http.Client, name string, src Source, force bool) (string, error) {
	if _, err := os.Stat(src.Dest); err == nil && !force {
		log.Printf("file exists, skipping download: source=%s path=%s", name, src.Dest)
		return hashFile(src.Dest)
	}

	if err := os.MkdirAll(filepath.Dir(src.Dest), 0o755); err != nil {
		return "", &fault.DownloadError{Source: name, URL: src.URL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", &fault.DownloadError{Source: name, URL: src.URL, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", &fault.DownloadError{Source: name, URL: src.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &fault.DownloadError{Source: name, URL: src.URL, StatusCode: resp.StatusCode}
	}

	tmp := src.Dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", &fault.DownloadError{Source: name, URL: src.URL, Err: err}
	}

	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, hash), resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", &fault.DownloadError{Source: name, URL: src.URL, Err: err}
	}

	if err := os.Rename(tmp, src.Dest); err != nil {
		os.Remove(tmp)
		return "", &fault.DownloadError{Source: name, URL: src.URL, Err: err}
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	log.Printf("download complete: source=%s path=%s sha256=%s", name, src.Dest, digest)
	return digest, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
