// file: internal/enrichment/worker.go
// version: 1.5.0
// guid: 0c6f2b8d-7e3a-49c1-b5f4-2a9d8e0c4b73

package enrichment

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/jdfalk/music-catalog/internal/database"
	"github.com/jdfalk/music-catalog/internal/metadata"
	"github.com/jdfalk/music-catalog/internal/metrics"
	"github.com/jdfalk/music-catalog/internal/realtime"
)

// Worker fills in artist biographies and images from remote services.
// At most one run exists process-wide; Start while a run is active is a
// silent no-op.
type Worker struct {
	store     database.Store
	bio       metadata.BiographyService
	images    metadata.ImageLookupService
	cache     *ImageCache
	batchSize int

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewWorker creates an enrichment worker.
func NewWorker(store database.Store, bio metadata.BiographyService, images metadata.ImageLookupService, cache *ImageCache, batchSize int) *Worker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Worker{
		store:     store,
		bio:       bio,
		images:    images,
		cache:     cache,
		batchSize: batchSize,
	}
}

// Start launches a background enrichment run. Returns false when a run
// is already active.
func (w *Worker) Start(ctx context.Context) bool {
	if !w.running.CompareAndSwap(false, true) {
		return false
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return true
}

// IsRunning reports whether a run is active.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// Wait blocks until the current run finishes.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	// Release the guard even if a batch panics or errors out
	defer w.running.Store(false)

	log.Println("Artist enrichment started")
	processed := make(map[int]bool)
	enriched := 0

	for {
		select {
		case <-ctx.Done():
			log.Println("Artist enrichment canceled")
			return
		default:
		}

		// Artists that stayed incomplete after a failed fetch come back
		// on every query; widen the window by the number already
		// attempted so artists beyond them are still reached, and skip
		// the attempted ones so the loop terminates.
		batch, err := w.store.GetArtistsMissingEnrichment(w.batchSize + len(processed))
		if err != nil {
			log.Printf("Warning: enrichment batch query failed: %v", err)
			return
		}

		var todo []database.Artist
		for _, artist := range batch {
			if !processed[artist.ID] {
				todo = append(todo, artist)
			}
		}
		if len(todo) > w.batchSize {
			todo = todo[:w.batchSize]
		}
		if len(todo) == 0 {
			break
		}

		for i := range todo {
			select {
			case <-ctx.Done():
				log.Println("Artist enrichment canceled")
				return
			default:
			}
			processed[todo[i].ID] = true
			if w.enrichArtist(ctx, todo[i].ID) {
				enriched++
			}
		}
	}

	log.Printf("Artist enrichment finished, %d artists updated", enriched)
}

// enrichArtist fetches biography and image for one artist and persists
// whatever was obtained. Returns whether anything changed.
func (w *Worker) enrichArtist(ctx context.Context, artistID int) bool {
	// Re-read: another path may have filled both fields since the
	// batch was selected.
	artist, err := w.store.GetArtistByID(artistID)
	if err != nil || artist == nil {
		return false
	}
	hasBio := artist.Biography != nil && *artist.Biography != ""
	hasImage := artist.LocalImagePath != nil && *artist.LocalImagePath != ""
	if hasBio && hasImage {
		return false
	}

	// The two remote lookups run concurrently; either may fail without
	// affecting the other.
	var (
		wg       sync.WaitGroup
		info     *metadata.ArtistInfo
		imageURL string
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		metrics.IncEnrichmentFetch(w.bio.Name())
		result, err := w.bio.GetArtistInfo(ctx, artist.Name)
		if err != nil {
			metrics.IncEnrichmentFailure(w.bio.Name())
			log.Printf("Warning: biography lookup for %q failed: %v", artist.Name, err)
			return
		}
		info = result
	}()
	go func() {
		defer wg.Done()
		metrics.IncEnrichmentFetch(w.images.Name())
		url, err := w.images.GetArtistImageURL(ctx, artist.Name)
		if err != nil {
			metrics.IncEnrichmentFailure(w.images.Name())
			log.Printf("Warning: image lookup for %q failed: %v", artist.Name, err)
			return
		}
		imageURL = url
	}()
	wg.Wait()

	// Merge policy: biography fills in only when blank, image URL
	// always updates to the latest value.
	biography := artist.Biography
	if !hasBio && info != nil && info.Biography != "" {
		biography = &info.Biography
	}

	if imageURL == "" && info != nil && info.ImageURL != "" {
		imageURL = info.ImageURL
	}

	remoteImageURL := artist.RemoteImageURL
	localImagePath := artist.LocalImagePath
	if imageURL != "" {
		if localPath := w.cache.DownloadAndCache(ctx, artist, imageURL); localPath != "" {
			localImagePath = &localPath
		} else {
			// Download failed; do not keep pointing at a stale file
			localImagePath = nil
		}
		remoteImageURL = &imageURL
	}

	changed := !ptrEqual(biography, artist.Biography) ||
		!ptrEqual(remoteImageURL, artist.RemoteImageURL) ||
		!ptrEqual(localImagePath, artist.LocalImagePath)
	if !changed {
		return false
	}

	if err := w.store.UpdateArtistEnrichment(artist.ID, biography, remoteImageURL, localImagePath); err != nil {
		log.Printf("Warning: enrichment update for %q failed: %v", artist.Name, err)
		return false
	}

	if realtime.GlobalHub != nil {
		local := ""
		if localImagePath != nil {
			local = *localImagePath
		}
		realtime.GlobalHub.SendArtistUpdated(artist.ID, local)
	}
	return true
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
