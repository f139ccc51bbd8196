// file: internal/playlist/playlist_test.go
// version: 2.0.0
// guid: b4e8f2a6-1d3c-49e7-8b5f-0c9a7d2e6f41

package playlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfalk/music-catalog/internal/database"
)

func setupPlaylistStore(t *testing.T) (*database.SQLiteStore, func()) {
	t.Helper()
	tmpfile := os.TempDir() + "/test_playlist_" + ulid.Make().String() + ".db"
	store, err := database.NewSQLiteStore(tmpfile)
	require.NoError(t, err)
	return store, func() {
		store.Close()
		os.Remove(tmpfile)
	}
}

func addSong(t *testing.T, store *database.SQLiteStore, folderID, artistID int, title, path string, durationMs int64) *database.Song {
	t.Helper()
	song, err := store.CreateSong(&database.Song{
		FolderID:        folderID,
		FilePath:        path,
		Title:           title,
		DurationMs:      durationMs,
		ArtistID:        artistID,
		FileCreatedUTC:  time.Now().UTC(),
		FileModifiedUTC: time.Now().UTC(),
	})
	require.NoError(t, err)
	return song
}

func TestExportM3UOrdersByPosition(t *testing.T) {
	store, cleanup := setupPlaylistStore(t)
	defer cleanup()

	folder, err := store.CreateFolder("/music", "music", time.Now())
	require.NoError(t, err)
	artist, err := store.CreateArtist("Boards of Canada")
	require.NoError(t, err)

	first := addSong(t, store, folder.ID, artist.ID, "Roygbiv", "/music/roygbiv.mp3", 150000)
	second := addSong(t, store, folder.ID, artist.ID, "Dayvan Cowboy", "/music/dayvan.mp3", 300000)

	pl, err := store.CreatePlaylist("Chill")
	require.NoError(t, err)
	require.NoError(t, store.AddPlaylistSong(pl.ID, second.ID, 2))
	require.NoError(t, store.AddPlaylistSong(pl.ID, first.ID, 1))

	outDir := t.TempDir()
	path, err := ExportM3U(store, pl.ID, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "Chill.m3u"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "#EXTM3U", lines[0])
	assert.Equal(t, "#EXTINF:150,Boards of Canada - Roygbiv", lines[1])
	assert.Equal(t, "/music/roygbiv.mp3", lines[2])
	assert.Equal(t, "#EXTINF:300,Boards of Canada - Dayvan Cowboy", lines[3])
	assert.Equal(t, "/music/dayvan.mp3", lines[4])
}

func TestExportM3USanitizesNameAndUnknownDuration(t *testing.T) {
	store, cleanup := setupPlaylistStore(t)
	defer cleanup()

	folder, err := store.CreateFolder("/music", "music", time.Now())
	require.NoError(t, err)
	artist, err := store.CreateArtist("Autechre")
	require.NoError(t, err)

	song := addSong(t, store, folder.ID, artist.ID, "Bike", "/music/bike.mp3", 0)

	pl, err := store.CreatePlaylist("AM/PM Mix")
	require.NoError(t, err)
	require.NoError(t, store.AddPlaylistSong(pl.ID, song.ID, 1))

	path, err := ExportM3U(store, pl.ID, t.TempDir())
	require.NoError(t, err)

	// Name sanitized, unknown duration written as -1
	assert.Equal(t, "AM-PM Mix.m3u", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "#EXTINF:-1,Autechre - Bike", lines[1])
}

func TestExportM3UPlaylistNotFound(t *testing.T) {
	store, cleanup := setupPlaylistStore(t)
	defer cleanup()

	_, err := ExportM3U(store, 42, t.TempDir())
	assert.Error(t, err)
}
