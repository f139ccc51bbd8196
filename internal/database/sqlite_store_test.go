// file: internal/database/sqlite_store_test.go
// version: 1.2.0
// guid: 5d8c1a3e-9f2b-4e7d-8a6c-3b0e5f9d2c71

package database

import (
	"os"
	"sync"
	"testing"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a temporary SQLite database for testing
// Returns the store and a cleanup function
func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	tmpfile := os.TempDir() + "/test_catalog_" + ulid.Make().String() + ".db"

	store, err := NewSQLiteStore(tmpfile)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(tmpfile)
	}

	return store, cleanup
}

func testSong(folderID, artistID int, path string) *Song {
	return &Song{
		FolderID:        folderID,
		FilePath:        path,
		Title:           "Test Song",
		ArtistID:        artistID,
		FileCreatedUTC:  time.Now().UTC(),
		FileModifiedUTC: time.Now().UTC(),
	}
}

func mustFolder(t *testing.T, store *SQLiteStore, path string) *Folder {
	t.Helper()
	folder, err := store.CreateFolder(path, path, time.Now())
	require.NoError(t, err)
	return folder
}

func mustArtist(t *testing.T, store *SQLiteStore, name string) *Artist {
	t.Helper()
	artist, err := store.CreateArtist(name)
	require.NoError(t, err)
	return artist
}

func TestCreateAndGetSong(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	folder := mustFolder(t, store, "/music")
	artist := mustArtist(t, store, "Test Artist")

	created, err := store.CreateSong(testSong(folder.ID, artist.ID, "/music/song.mp3"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	fetched, err := store.GetSongByID(created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "Test Song", fetched.Title)
	assert.Equal(t, artist.ID, fetched.ArtistID)
}

func TestCreateSongDuplicatePathReturnsExisting(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	folder := mustFolder(t, store, "/music")
	artist := mustArtist(t, store, "Test Artist")

	first, err := store.CreateSong(testSong(folder.ID, artist.ID, "/music/dup.mp3"))
	require.NoError(t, err)

	second, err := store.CreateSong(testSong(folder.ID, artist.ID, "/music/dup.mp3"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "duplicate path insert must return the existing row")

	// Case-insensitive uniqueness
	third, err := store.CreateSong(testSong(folder.ID, artist.ID, "/MUSIC/DUP.MP3"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)

	count, err := store.CountSongs()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateSongDuplicatePathConcurrent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	folder := mustFolder(t, store, "/music")
	artist := mustArtist(t, store, "Test Artist")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateSong(testSong(folder.ID, artist.ID, "/music/race.mp3"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	count, err := store.CountSongs()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "concurrent inserts of the same path must result in one row")
}

func TestCreateArtistDuplicateSurfacesConstraint(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.CreateArtist("Foo")
	require.NoError(t, err)

	_, err = store.CreateArtist("foo")
	require.Error(t, err)
	assert.True(t, IsUniqueConstraintError(err),
		"duplicate artist insert must surface as a unique constraint violation")
}

func TestFillAlbumFieldsImmutableOnceSet(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	artist := mustArtist(t, store, "Test Artist")
	album, err := store.CreateAlbum(&Album{Title: "First Light", ArtistID: artist.ID})
	require.NoError(t, err)

	year := 1999
	require.NoError(t, store.FillAlbumFields(album.ID, &year, nil))

	otherYear := 2005
	cover := "/covers/a.jpg"
	require.NoError(t, store.FillAlbumFields(album.ID, &otherYear, &cover))

	fetched, err := store.GetAlbumByID(album.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.Year)
	assert.Equal(t, 1999, *fetched.Year, "year must not change once set")
	require.NotNil(t, fetched.CoverArtPath)
	assert.Equal(t, "/covers/a.jpg", *fetched.CoverArtPath, "first non-null cover path wins")
}

func TestDeleteOrphans(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	folder := mustFolder(t, store, "/music")
	referenced := mustArtist(t, store, "Referenced")
	orphan := mustArtist(t, store, "Orphan")

	album, err := store.CreateAlbum(&Album{Title: "Gone", ArtistID: orphan.ID})
	require.NoError(t, err)

	_, err = store.CreateSong(testSong(folder.ID, referenced.ID, "/music/keep.mp3"))
	require.NoError(t, err)

	report, err := store.DeleteOrphans([]int{album.ID}, []int{referenced.ID, orphan.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlbumsDeleted)
	assert.Equal(t, 1, report.ArtistsDeleted)

	still, err := store.GetArtistByID(referenced.ID)
	require.NoError(t, err)
	assert.NotNil(t, still, "artist with remaining songs must survive cleanup")

	gone, err := store.GetArtistByID(orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDeleteOrphansKeepsArtistReferencedByAlbum(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	folder := mustFolder(t, store, "/music")
	albumArtist := mustArtist(t, store, "Album Artist")
	trackArtist := mustArtist(t, store, "Track Artist")

	album, err := store.CreateAlbum(&Album{Title: "Shared", ArtistID: albumArtist.ID})
	require.NoError(t, err)

	song := testSong(folder.ID, trackArtist.ID, "/music/shared.mp3")
	song.AlbumID = &album.ID
	_, err = store.CreateSong(song)
	require.NoError(t, err)

	// Album still has a referencing song, so it survives; so must the
	// album artist even though no song references it directly.
	report, err := store.DeleteOrphans([]int{album.ID}, []int{albumArtist.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, report.AlbumsDeleted)
	assert.Equal(t, 0, report.ArtistsDeleted)
}

func TestRemoveFolderCascade(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	folder := mustFolder(t, store, "/music")
	other := mustFolder(t, store, "/other")
	soloArtist := mustArtist(t, store, "Solo")
	sharedArtist := mustArtist(t, store, "Shared")

	album, err := store.CreateAlbum(&Album{Title: "Only Here", ArtistID: soloArtist.ID})
	require.NoError(t, err)

	localImg := "/images/artists/1.jpg"
	require.NoError(t, store.UpdateArtistEnrichment(soloArtist.ID, nil, nil, &localImg))

	song := testSong(folder.ID, soloArtist.ID, "/music/a.mp3")
	song.AlbumID = &album.ID
	cover := "/covers/only-here.jpg"
	song.CoverArtPath = &cover
	created, err := store.CreateSong(song)
	require.NoError(t, err)

	_, err = store.CreateSong(testSong(other.ID, sharedArtist.ID, "/other/b.mp3"))
	require.NoError(t, err)
	_, err = store.CreateSong(testSong(folder.ID, sharedArtist.ID, "/music/c.mp3"))
	require.NoError(t, err)

	genre, err := store.CreateGenre("Ambient")
	require.NoError(t, err)
	require.NoError(t, store.SetSongGenres(created.ID, []int{genre.ID}))

	playlist, err := store.CreatePlaylist("faves")
	require.NoError(t, err)
	require.NoError(t, store.AddPlaylistSong(playlist.ID, created.ID, 0))

	removal, err := store.RemoveFolderCascade(folder.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, removal.SongsDeleted)
	assert.Equal(t, 1, removal.AlbumsDeleted)
	assert.Equal(t, 1, removal.ArtistsDeleted, "solo artist orphaned, shared artist survives")
	assert.Contains(t, removal.CoverArtPaths, "/covers/only-here.jpg")
	assert.Contains(t, removal.ArtistImagePaths, "/images/artists/1.jpg")

	gone, err := store.GetFolderByID(folder.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	shared, err := store.GetArtistByID(sharedArtist.ID)
	require.NoError(t, err)
	assert.NotNil(t, shared, "artist referenced from another folder must survive")

	items, err := store.GetPlaylistSongs(playlist.ID)
	require.NoError(t, err)
	assert.Empty(t, items, "playlist membership for deleted songs must be removed")
}

func TestRescanTxRollbackRestoresState(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	folder := mustFolder(t, store, "/music")
	artist := mustArtist(t, store, "Keeper")
	created, err := store.CreateSong(testSong(folder.ID, artist.ID, "/music/keep.mp3"))
	require.NoError(t, err)

	injected := assert.AnError
	err = store.RescanTx(folder.ID, func(tx SyncTx) error {
		if err := tx.DeleteSongsByID([]string{created.ID}); err != nil {
			return err
		}
		if _, err := tx.CreateSong(testSong(folder.ID, artist.ID, "/music/new.mp3")); err != nil {
			return err
		}
		return injected
	})
	require.ErrorIs(t, err, injected)

	// Rollback must restore the exact pre-rescan state.
	still, err := store.GetSongByFilePath("/music/keep.mp3")
	require.NoError(t, err)
	assert.NotNil(t, still)

	added, err := store.GetSongByFilePath("/music/new.mp3")
	require.NoError(t, err)
	assert.Nil(t, added)

	count, err := store.CountSongs()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetSongFileStatesChunked(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	folder := mustFolder(t, store, "/music")
	artist := mustArtist(t, store, "Test Artist")
	paths := []string{"/music/a.mp3", "/music/b.mp3", "/music/c.mp3", "/music/d.mp3"}
	for _, p := range paths {
		_, err := store.CreateSong(testSong(folder.ID, artist.ID, p))
		require.NoError(t, err)
	}

	first, err := store.GetSongFileStates(folder.ID, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "/music/a.mp3", first[0].FilePath)

	second, err := store.GetSongFileStates(folder.ID, first[1].FilePath, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "/music/c.mp3", second[0].FilePath)

	rest, err := store.GetSongFileStates(folder.ID, second[1].FilePath, 2)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestGetArtistsMissingEnrichment(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	missing := mustArtist(t, store, "No Bio")
	full := mustArtist(t, store, "Complete")
	bio := "a biography"
	img := "/images/artists/2.jpg"
	url := "https://example.com/img.jpg"
	require.NoError(t, store.UpdateArtistEnrichment(full.ID, &bio, &url, &img))

	artists, err := store.GetArtistsMissingEnrichment(10)
	require.NoError(t, err)
	require.Len(t, artists, 1)
	assert.Equal(t, missing.ID, artists[0].ID)
}
