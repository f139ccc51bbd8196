// file: internal/enrichment/imagecache.go
// version: 1.3.0
// guid: 5b9e3c7d-1a4f-46b8-92e0-8d6c4a7f3b25

package enrichment

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jdfalk/music-catalog/internal/database"
	"github.com/jdfalk/music-catalog/internal/metrics"
)

// ImageCache downloads artist images to a deterministic local path,
// serializing concurrent writers per path. Locks are created on demand
// and never evicted; the registry stays small because paths are one
// per artist.
type ImageCache struct {
	cacheDir string
	client   *http.Client

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	written map[string]string // dest path -> URL of the last successful write
}

// NewImageCache creates an image cache rooted at cacheDir.
func NewImageCache(cacheDir string) *ImageCache {
	return &ImageCache{
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 30 * time.Second},
		locks:    make(map[string]*sync.Mutex),
		written:  make(map[string]string),
	}
}

// ImagePath returns the deterministic cache path for an artist.
func (c *ImageCache) ImagePath(artistID int) string {
	return filepath.Join(c.cacheDir, "artists", fmt.Sprintf("%d.jpg", artistID))
}

func (c *ImageCache) pathLock(path string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[path] = lock
	}
	return lock
}

// DownloadAndCache fetches imageURL into the artist's cache path and
// returns the local path, or "" when the download failed. Failures are
// logged, never propagated. A file already cached from the same remote
// URL is reused without touching the network.
func (c *ImageCache) DownloadAndCache(ctx context.Context, artist *database.Artist, imageURL string) string {
	if imageURL == "" {
		return ""
	}

	destPath := c.ImagePath(artist.ID)

	// Fast path: cached file from the same URL
	if c.cachedFrom(destPath, imageURL, artist) {
		return destPath
	}

	lock := c.pathLock(destPath)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have written the file while we waited. The
	// caller's artist row is a pre-lock snapshot, so the check consults
	// the cache's own record of what was written, not just the row.
	if c.cachedFrom(destPath, imageURL, artist) {
		return destPath
	}

	if err := c.download(ctx, imageURL, destPath); err != nil {
		log.Printf("Warning: image download for artist %d failed: %v", artist.ID, err)
		return ""
	}

	c.mu.Lock()
	c.written[destPath] = imageURL
	c.mu.Unlock()

	metrics.IncImageCached()
	return destPath
}

// cachedFrom reports whether destPath already holds the image fetched
// from imageURL, either per the artist row or per this cache's record
// of its own writes.
func (c *ImageCache) cachedFrom(destPath, imageURL string, artist *database.Artist) bool {
	if !fileExists(destPath) {
		return false
	}
	if artist.RemoteImageURL != nil && *artist.RemoteImageURL == imageURL {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written[destPath] == imageURL
}

func (c *ImageCache) download(ctx context.Context, imageURL, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create image cache directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("unexpected content type: %s", contentType)
	}

	// Limit to 10 MB
	limitedReader := io.LimitReader(resp.Body, 10*1024*1024)

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, limitedReader); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to write image file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
