// file: internal/scanner/resolver.go
// version: 1.4.0
// guid: 9b2e7c1d-4f6a-48d3-a5b9-3e8c0d7f2a61

package scanner

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jdfalk/music-catalog/internal/database"
)

// Sentinel names for files whose tags carry no usable value
const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

const maxResolveAttempts = 3

// catalogWriter is the subset of store operations the resolver and
// batch writer need. Both database.Store and database.SyncTx satisfy
// it, so the same add path runs standalone or inside a rescan
// transaction.
type catalogWriter interface {
	GetArtistByName(name string) (*database.Artist, error)
	CreateArtist(name string) (*database.Artist, error)
	GetAlbumByTitleAndArtist(title string, artistID int) (*database.Album, error)
	CreateAlbum(album *database.Album) (*database.Album, error)
	FillAlbumFields(id int, year *int, coverArtPath *string) error
	GetGenreByName(name string) (*database.Genre, error)
	CreateGenre(name string) (*database.Genre, error)
	CreateSong(song *database.Song) (*database.Song, error)
	SetSongGenres(songID string, genreIDs []int) error
}

// Resolver deduplicates artist/album/genre rows for one scan session.
// Lookup order: session cache, rows staged since the last flush,
// storage. Another session can still commit the same name first; the
// resulting unique-constraint violation is retried with a fresh lookup
// so the loser reuses the winner's row.
type Resolver struct {
	store catalogWriter

	mu            sync.Mutex
	artists       map[string]*database.Artist
	albums        map[string]*database.Album
	genres        map[string]*database.Genre
	stagedArtists map[string]*database.Artist
	stagedAlbums  map[string]*database.Album
	stagedGenres  map[string]*database.Genre
}

// NewResolver creates a resolver bound to a store or transaction.
func NewResolver(store catalogWriter) *Resolver {
	return &Resolver{
		store:         store,
		artists:       make(map[string]*database.Artist),
		albums:        make(map[string]*database.Album),
		genres:        make(map[string]*database.Genre),
		stagedArtists: make(map[string]*database.Artist),
		stagedAlbums:  make(map[string]*database.Album),
		stagedGenres:  make(map[string]*database.Genre),
	}
}

// ClearStaged promotes rows staged during the current batch into the
// session cache. The batch writer calls it after every flush so staged
// tracking stays bounded by one batch.
func (r *Resolver) ClearStaged() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range r.stagedArtists {
		r.artists[k] = v
	}
	for k, v := range r.stagedAlbums {
		r.albums[k] = v
	}
	for k, v := range r.stagedGenres {
		r.genres[k] = v
	}
	r.stagedArtists = make(map[string]*database.Artist)
	r.stagedAlbums = make(map[string]*database.Album)
	r.stagedGenres = make(map[string]*database.Genre)
}

// ResolveOrCreateArtist returns the artist row for a tag value,
// creating it if needed. Blank names resolve to the Unknown Artist
// sentinel.
func (r *Resolver) ResolveOrCreateArtist(name string) (*database.Artist, error) {
	display := strings.TrimSpace(name)
	if display == "" {
		display = UnknownArtist
	}
	key := strings.ToLower(display)

	r.mu.Lock()
	defer r.mu.Unlock()

	if artist, ok := r.artists[key]; ok {
		return artist, nil
	}
	if artist, ok := r.stagedArtists[key]; ok {
		return artist, nil
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		existing, err := r.store.GetArtistByName(display)
		if err != nil {
			return nil, fmt.Errorf("artist lookup failed: %w", err)
		}
		if existing != nil {
			r.artists[key] = existing
			return existing, nil
		}

		created, err := r.store.CreateArtist(display)
		if err == nil {
			r.stagedArtists[key] = created
			return created, nil
		}
		if !database.IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("artist create failed: %w", err)
		}
		// Another session committed this name first; back off and
		// re-resolve so we pick up the winner's row.
		if attempt < maxResolveAttempts {
			time.Sleep(resolveBackoff(attempt))
		}
	}

	return nil, fmt.Errorf("artist %q still conflicting after %d attempts", display, maxResolveAttempts)
}

// ResolveOrCreateAlbum returns the album row for (title, artist),
// creating it if needed. Year and cover art fill in once, first
// non-nil value wins, never overwritten afterwards.
func (r *Resolver) ResolveOrCreateAlbum(title string, artist *database.Artist, year *int, coverArtPath *string) (*database.Album, error) {
	display := strings.TrimSpace(title)
	if display == "" {
		display = UnknownAlbum
	}
	key := fmt.Sprintf("%s\x00%d", strings.ToLower(display), artist.ID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if album, ok := r.albums[key]; ok {
		return album, r.fillAlbum(album, year, coverArtPath)
	}
	if album, ok := r.stagedAlbums[key]; ok {
		return album, r.fillAlbum(album, year, coverArtPath)
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		existing, err := r.store.GetAlbumByTitleAndArtist(display, artist.ID)
		if err != nil {
			return nil, fmt.Errorf("album lookup failed: %w", err)
		}
		if existing != nil {
			r.albums[key] = existing
			return existing, r.fillAlbum(existing, year, coverArtPath)
		}

		created, err := r.store.CreateAlbum(&database.Album{
			Title:        display,
			Year:         year,
			CoverArtPath: coverArtPath,
			ArtistID:     artist.ID,
		})
		if err == nil {
			r.stagedAlbums[key] = created
			return created, nil
		}
		if !database.IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("album create failed: %w", err)
		}
		if attempt < maxResolveAttempts {
			time.Sleep(resolveBackoff(attempt))
		}
	}

	return nil, fmt.Errorf("album %q still conflicting after %d attempts", display, maxResolveAttempts)
}

// fillAlbum applies the first-non-nil-wins policy to an already
// resolved album, keeping the cached struct in sync with storage.
func (r *Resolver) fillAlbum(album *database.Album, year *int, coverArtPath *string) error {
	needYear := year != nil && album.Year == nil
	needCover := coverArtPath != nil && album.CoverArtPath == nil
	if !needYear && !needCover {
		return nil
	}
	if err := r.store.FillAlbumFields(album.ID, year, coverArtPath); err != nil {
		return fmt.Errorf("album field fill failed: %w", err)
	}
	if needYear {
		album.Year = year
	}
	if needCover {
		album.CoverArtPath = coverArtPath
	}
	return nil
}

// ResolveOrCreateGenre returns the genre row for a tag value, creating
// it if needed. Blank names return nil without error.
func (r *Resolver) ResolveOrCreateGenre(name string) (*database.Genre, error) {
	display := strings.TrimSpace(name)
	if display == "" {
		return nil, nil
	}
	key := strings.ToLower(display)

	r.mu.Lock()
	defer r.mu.Unlock()

	if genre, ok := r.genres[key]; ok {
		return genre, nil
	}
	if genre, ok := r.stagedGenres[key]; ok {
		return genre, nil
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		existing, err := r.store.GetGenreByName(display)
		if err != nil {
			return nil, fmt.Errorf("genre lookup failed: %w", err)
		}
		if existing != nil {
			r.genres[key] = existing
			return existing, nil
		}

		created, err := r.store.CreateGenre(display)
		if err == nil {
			r.stagedGenres[key] = created
			return created, nil
		}
		if !database.IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("genre create failed: %w", err)
		}
		if attempt < maxResolveAttempts {
			time.Sleep(resolveBackoff(attempt))
		}
	}

	return nil, fmt.Errorf("genre %q still conflicting after %d attempts", display, maxResolveAttempts)
}

// resolveBackoff returns a short randomized delay before retrying a
// conflicting create.
func resolveBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 25 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(25 * time.Millisecond)))
	return base + jitter
}
