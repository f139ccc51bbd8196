// file: internal/scanner/batch.go
// version: 1.3.0
// guid: 4c8f2d6b-9a1e-47c5-b3d8-6e0a9f4c2d17

package scanner

import (
	"fmt"
	"log"

	"github.com/jdfalk/music-catalog/internal/database"
	"github.com/jdfalk/music-catalog/internal/metadata"
)

// pendingSong is one staged song insert plus the tag values its
// relational entities resolve from.
type pendingSong struct {
	folderID int
	path     string
	meta     *metadata.TrackMetadata
}

// BatchWriter accumulates staged song inserts and flushes them in
// bounded batches. The staging slice is cleared after every successful
// flush so peak memory is one batch, not the whole library. A record
// that keeps failing is dropped and logged; the batch continues and the
// scan finishes as "completed with errors".
type BatchWriter struct {
	store     catalogWriter
	resolver  *Resolver
	batchSize int

	pending  []pendingSong
	inserted int
	dropped  int
	errored  bool
}

// NewBatchWriter creates a batch writer over a store or rescan
// transaction.
func NewBatchWriter(store catalogWriter, batchSize int) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &BatchWriter{
		store:     store,
		resolver:  NewResolver(store),
		batchSize: batchSize,
	}
}

// Stage adds one song to the pending batch, flushing when the
// threshold is reached.
func (w *BatchWriter) Stage(folderID int, path string, meta *metadata.TrackMetadata) error {
	w.pending = append(w.pending, pendingSong{folderID: folderID, path: path, meta: meta})
	if len(w.pending) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// Flush writes all pending songs, resolving their entities first.
// Per-record failures are logged and dropped; only a store-level
// failure surfaces as an error.
func (w *BatchWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}

	for i := range w.pending {
		if err := w.writeSong(&w.pending[i]); err != nil {
			log.Printf("Warning: dropping %s: %v", w.pending[i].path, err)
			w.dropped++
			w.errored = true
		} else {
			w.inserted++
		}
	}

	w.pending = w.pending[:0]
	w.resolver.ClearStaged()
	return nil
}

func (w *BatchWriter) writeSong(p *pendingSong) error {
	meta := p.meta

	// Albums group under the album artist; the song keeps its own
	// track-level credit. Either falls back to the other when blank.
	albumArtistName := meta.AlbumArtist
	if albumArtistName == "" {
		albumArtistName = meta.Artist
	}
	albumArtist, err := w.resolver.ResolveOrCreateArtist(albumArtistName)
	if err != nil {
		return err
	}

	trackArtistName := meta.Artist
	if trackArtistName == "" {
		trackArtistName = meta.AlbumArtist
	}
	trackArtist, err := w.resolver.ResolveOrCreateArtist(trackArtistName)
	if err != nil {
		return err
	}

	var year *int
	if meta.Year > 0 {
		y := meta.Year
		year = &y
	}
	var cover *string
	if meta.CoverArtPath != "" {
		c := meta.CoverArtPath
		cover = &c
	}
	album, err := w.resolver.ResolveOrCreateAlbum(meta.Album, albumArtist, year, cover)
	if err != nil {
		return err
	}

	var genreIDs []int
	for _, name := range meta.Genres {
		genre, err := w.resolver.ResolveOrCreateGenre(name)
		if err != nil {
			return err
		}
		if genre != nil {
			genreIDs = append(genreIDs, genre.ID)
		}
	}

	title := meta.Title
	if title == "" {
		title = p.path
	}

	albumID := album.ID
	song := &database.Song{
		FolderID:        p.folderID,
		FilePath:        p.path,
		Title:           title,
		DurationMs:      meta.DurationMs,
		TrackNumber:     meta.TrackNumber,
		DiscNumber:      meta.DiscNumber,
		Year:            meta.Year,
		BitrateKbps:     meta.BitrateKbps,
		SampleRateHz:    meta.SampleRateHz,
		Channels:        meta.Channels,
		FileCreatedUTC:  meta.FileCreatedUTC,
		FileModifiedUTC: meta.FileModifiedUTC,
		ArtistID:        trackArtist.ID,
		AlbumID:         &albumID,
		CoverArtPath:    cover,
	}

	created, err := w.store.CreateSong(song)
	if err != nil {
		return fmt.Errorf("song create failed: %w", err)
	}

	if len(genreIDs) > 0 {
		if err := w.store.SetSongGenres(created.ID, genreIDs); err != nil {
			return fmt.Errorf("song genre link failed: %w", err)
		}
	}

	return nil
}

// Inserted returns the number of songs written so far.
func (w *BatchWriter) Inserted() int { return w.inserted }

// Dropped returns the number of records given up on.
func (w *BatchWriter) Dropped() int { return w.dropped }

// Errored reports whether any record was dropped, so callers can mark
// the scan as completed with errors.
func (w *BatchWriter) Errored() bool { return w.errored }
