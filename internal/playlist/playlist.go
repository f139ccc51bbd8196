// file: internal/playlist/playlist.go
// version: 2.0.0
// guid: 7c1d9e4f-2b6a-48f3-9d0e-5a8b3c7f1e62

package playlist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jdfalk/music-catalog/internal/database"
)

// Entry represents one song line in an exported playlist.
type Entry struct {
	SongID     string
	Title      string
	Artist     string
	FilePath   string
	DurationMs int64
	Position   int
}

// ExportM3U writes a stored playlist to an extended M3U file under
// outDir and returns the file path.
func ExportM3U(store database.Store, playlistID int, outDir string) (string, error) {
	pl, err := store.GetPlaylistByID(playlistID)
	if err != nil {
		return "", fmt.Errorf("failed to load playlist %d: %w", playlistID, err)
	}
	if pl == nil {
		return "", fmt.Errorf("playlist %d not found", playlistID)
	}

	entries, err := collectEntries(store, playlistID)
	if err != nil {
		return "", fmt.Errorf("failed to collect songs for playlist %s: %w", pl.Name, err)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(outDir, safeFilename(pl.Name)+".m3u")
	if err := writeM3U(path, entries); err != nil {
		return "", fmt.Errorf("failed to write playlist %s: %w", pl.Name, err)
	}
	return path, nil
}

// collectEntries loads the playlist members in stored order. Songs that
// no longer exist are skipped rather than failing the export.
func collectEntries(store database.Store, playlistID int) ([]Entry, error) {
	members, err := store.GetPlaylistSongs(playlistID)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	artistNames := make(map[int]string)
	for _, m := range members {
		song, err := store.GetSongByID(m.SongID)
		if err != nil {
			return nil, err
		}
		if song == nil {
			continue
		}

		artistName, ok := artistNames[song.ArtistID]
		if !ok {
			artist, err := store.GetArtistByID(song.ArtistID)
			if err != nil {
				return nil, err
			}
			if artist != nil {
				artistName = artist.Name
			}
			artistNames[song.ArtistID] = artistName
		}

		entries = append(entries, Entry{
			SongID:     song.ID,
			Title:      song.Title,
			Artist:     artistName,
			FilePath:   song.FilePath,
			DurationMs: song.DurationMs,
			Position:   m.Position,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Position == entries[j].Position {
			return entries[i].Title < entries[j].Title
		}
		return entries[i].Position < entries[j].Position
	})
	return entries, nil
}

// writeM3U writes an extended M3U file with one #EXTINF line per song.
func writeM3U(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString("#EXTM3U\n"); err != nil {
		return err
	}

	for _, e := range entries {
		seconds := int64(-1)
		if e.DurationMs > 0 {
			seconds = e.DurationMs / 1000
		}
		if _, err := f.WriteString(fmt.Sprintf("#EXTINF:%d,%s - %s\n", seconds, e.Artist, e.Title)); err != nil {
			return err
		}
		if _, err := f.WriteString(e.FilePath + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// safeFilename strips path separators and other characters that break
// filenames on common filesystems.
func safeFilename(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-")
	return replacer.Replace(name)
}
