// file: internal/enrichment/enrichment_test.go
// version: 1.3.0
// guid: 9d4a7e2b-3c8f-41d6-a0b5-6f2e9c7d4a18

package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	ulid "github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfalk/music-catalog/internal/database"
	"github.com/jdfalk/music-catalog/internal/metadata"
)

type fakeBioService struct {
	mu    sync.Mutex
	calls int
	info  map[string]*metadata.ArtistInfo
	fail  bool
	block chan struct{} // when set, GetArtistInfo waits on it
}

func (f *fakeBioService) Name() string { return "audiodb" }

func (f *fakeBioService) GetArtistInfo(ctx context.Context, name string) (*metadata.ArtistInfo, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, assert.AnError
	}
	return f.info[name], nil
}

type fakeImageService struct {
	mu    sync.Mutex
	calls int
	urls  map[string]string
	fail  bool
}

func (f *fakeImageService) Name() string { return "deezer" }

func (f *fakeImageService) GetArtistImageURL(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return "", assert.AnError
	}
	return f.urls[name], nil
}

func setupEnrichment(t *testing.T) (database.Store, *fakeBioService, *fakeImageService, func()) {
	t.Helper()
	tmpfile := os.TempDir() + "/test_enrichment_" + ulid.Make().String() + ".db"
	store, err := database.NewSQLiteStore(tmpfile)
	require.NoError(t, err)

	bio := &fakeBioService{info: make(map[string]*metadata.ArtistInfo)}
	images := &fakeImageService{urls: make(map[string]string)}

	cleanup := func() {
		store.Close()
		os.Remove(tmpfile)
	}
	return store, bio, images, cleanup
}

func imageServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg bytes"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestWorkerEnrichesArtist(t *testing.T) {
	store, bio, images, cleanup := setupEnrichment(t)
	defer cleanup()

	server := imageServer(t, nil)

	artist, err := store.CreateArtist("Portishead")
	require.NoError(t, err)

	bio.info["Portishead"] = &metadata.ArtistInfo{Biography: "Bristol trip hop group."}
	images.urls["Portishead"] = server.URL + "/portishead.jpg"

	cache := NewImageCache(t.TempDir())
	worker := NewWorker(store, bio, images, cache, 50)
	require.True(t, worker.Start(context.Background()))
	worker.Wait()

	updated, err := store.GetArtistByID(artist.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Biography)
	assert.Equal(t, "Bristol trip hop group.", *updated.Biography)
	require.NotNil(t, updated.RemoteImageURL)
	assert.Equal(t, server.URL+"/portishead.jpg", *updated.RemoteImageURL)
	require.NotNil(t, updated.LocalImagePath)
	assert.FileExists(t, *updated.LocalImagePath)
}

func TestWorkerStartWhileRunningIsNoOp(t *testing.T) {
	store, bio, images, cleanup := setupEnrichment(t)
	defer cleanup()

	_, err := store.CreateArtist("Slowdive")
	require.NoError(t, err)

	// Block the first run inside its remote fetch so the second Start
	// hits the guard.
	bio.block = make(chan struct{})

	cache := NewImageCache(t.TempDir())
	worker := NewWorker(store, bio, images, cache, 50)

	require.True(t, worker.Start(context.Background()))
	assert.False(t, worker.Start(context.Background()))
	assert.True(t, worker.IsRunning())

	close(bio.block)
	worker.Wait()
	assert.False(t, worker.IsRunning())

	// Guard released, a new run may start
	bio.block = nil
	assert.True(t, worker.Start(context.Background()))
	worker.Wait()
}

func TestWorkerBiographyNotOverwritten(t *testing.T) {
	store, bio, images, cleanup := setupEnrichment(t)
	defer cleanup()

	artist, err := store.CreateArtist("Low")
	require.NoError(t, err)
	existing := "Hand-written biography."
	require.NoError(t, store.UpdateArtistEnrichment(artist.ID, &existing, nil, nil))

	server := imageServer(t, nil)
	bio.info["Low"] = &metadata.ArtistInfo{Biography: "Remote biography."}
	images.urls["Low"] = server.URL + "/low.jpg"

	cache := NewImageCache(t.TempDir())
	worker := NewWorker(store, bio, images, cache, 50)
	require.True(t, worker.Start(context.Background()))
	worker.Wait()

	updated, err := store.GetArtistByID(artist.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Biography)
	assert.Equal(t, "Hand-written biography.", *updated.Biography)
	require.NotNil(t, updated.LocalImagePath)
}

func TestWorkerFailureIsolation(t *testing.T) {
	store, bio, images, cleanup := setupEnrichment(t)
	defer cleanup()

	artist, err := store.CreateArtist("Bark Psychosis")
	require.NoError(t, err)

	// Biography service down, image service fine
	server := imageServer(t, nil)
	bio.fail = true
	images.urls["Bark Psychosis"] = server.URL + "/bp.jpg"

	cache := NewImageCache(t.TempDir())
	worker := NewWorker(store, bio, images, cache, 50)
	require.True(t, worker.Start(context.Background()))
	worker.Wait()

	updated, err := store.GetArtistByID(artist.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.Biography)
	require.NotNil(t, updated.LocalImagePath)
	assert.FileExists(t, *updated.LocalImagePath)
}

func TestWorkerTerminatesWhenFetchesKeepFailing(t *testing.T) {
	store, bio, images, cleanup := setupEnrichment(t)
	defer cleanup()

	_, err := store.CreateArtist("Unfetchable")
	require.NoError(t, err)

	bio.fail = true
	images.fail = true

	cache := NewImageCache(t.TempDir())
	worker := NewWorker(store, bio, images, cache, 50)
	require.True(t, worker.Start(context.Background()))
	worker.Wait()

	// One attempt per artist per run, not an endless loop
	assert.Equal(t, 1, bio.calls)
	assert.Equal(t, 1, images.calls)
}

func TestWorkerReachesArtistsBeyondFailedWindow(t *testing.T) {
	store, bio, images, cleanup := setupEnrichment(t)
	defer cleanup()

	// First artist has no remote data and stays incomplete; it fills the
	// whole query window when the batch size is one.
	_, err := store.CreateArtist("Alpha")
	require.NoError(t, err)
	beta, err := store.CreateArtist("Beta")
	require.NoError(t, err)

	server := imageServer(t, nil)
	bio.info["Beta"] = &metadata.ArtistInfo{Biography: "Second in line."}
	images.urls["Beta"] = server.URL + "/beta.jpg"

	cache := NewImageCache(t.TempDir())
	worker := NewWorker(store, bio, images, cache, 1)
	require.True(t, worker.Start(context.Background()))
	worker.Wait()

	updated, err := store.GetArtistByID(beta.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Biography)
	assert.Equal(t, "Second in line.", *updated.Biography)
}

func TestImageCacheConcurrentDownloadsCollapse(t *testing.T) {
	var hits int32
	server := imageServer(t, &hits)

	url := server.URL + "/artist.jpg"
	artist := &database.Artist{ID: 7, Name: "Shared", RemoteImageURL: &url}

	cache := NewImageCache(t.TempDir())

	const goroutines = 8
	results := make([]string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = cache.DownloadAndCache(context.Background(), artist, url)
		}(i)
	}
	wg.Wait()

	for _, path := range results {
		require.NotEmpty(t, path)
		assert.Equal(t, cache.ImagePath(artist.ID), path)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestImageCacheFirstDownloadCollapses(t *testing.T) {
	var hits int32
	server := imageServer(t, &hits)

	// Never-enriched artist: no stored remote URL to compare against,
	// so deduplication must come from the cache itself.
	url := server.URL + "/first.jpg"
	artist := &database.Artist{ID: 42, Name: "Fresh"}

	cache := NewImageCache(t.TempDir())

	const goroutines = 4
	results := make([]string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = cache.DownloadAndCache(context.Background(), artist, url)
		}(i)
	}
	wg.Wait()

	for _, path := range results {
		require.NotEmpty(t, path)
		assert.Equal(t, cache.ImagePath(artist.ID), path)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestImageCacheRedownloadsOnURLChange(t *testing.T) {
	var hits int32
	server := imageServer(t, &hits)

	oldURL := server.URL + "/old.jpg"
	newURL := server.URL + "/new.jpg"
	artist := &database.Artist{ID: 9, Name: "Renamed", RemoteImageURL: &oldURL}

	cache := NewImageCache(t.TempDir())

	require.NotEmpty(t, cache.DownloadAndCache(context.Background(), artist, oldURL))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// Different remote URL fetches once, then is served from cache even
	// though the artist row still holds the old URL.
	require.NotEmpty(t, cache.DownloadAndCache(context.Background(), artist, newURL))
	require.NotEmpty(t, cache.DownloadAndCache(context.Background(), artist, newURL))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestImageCacheRejectsNonImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer server.Close()

	artist := &database.Artist{ID: 3, Name: "Bad"}
	cache := NewImageCache(t.TempDir())

	path := cache.DownloadAndCache(context.Background(), artist, server.URL+"/x")
	assert.Empty(t, path)
	assert.NoFileExists(t, cache.ImagePath(artist.ID))
}
