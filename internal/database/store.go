// file: internal/database/store.go
// version: 2.5.0
// guid: 7f2a9c4d-1e8b-4f6a-9d3c-5b0e7a2f8c14

package database

import (
	"fmt"
	"time"
)

// Store defines the interface for catalog database operations.
type Store interface {
	// Lifecycle
	Close() error
	Reset() error

	// Folders
	GetAllFolders() ([]Folder, error)
	GetFolderByID(id int) (*Folder, error)
	GetFolderByPath(path string) (*Folder, error)
	CreateFolder(path, displayName string, lastModified time.Time) (*Folder, error)
	UpdateFolderModified(id int, lastModified time.Time) error

	// Songs
	GetSongByID(id string) (*Song, error) // ULID ID
	GetSongByFilePath(path string) (*Song, error)
	GetSongsByFolderID(folderID int, limit, offset int) ([]Song, error)
	GetSongFileStates(folderID int, afterPath string, limit int) ([]SongFileState, error)
	GetAllSongs(limit, offset int) ([]Song, error)
	CreateSong(song *Song) (*Song, error) // Generates ULID if ID is empty; duplicate path returns existing row
	DeleteSongsByID(ids []string) error
	CountSongs() (int, error)
	CountSongsByFolder(folderID int) (int, error)
	SearchSongs(query string, limit int) ([]Song, error)

	// Song genres
	SetSongGenres(songID string, genreIDs []int) error
	GetSongGenres(songID string) ([]Genre, error)

	// Artists
	GetArtistByID(id int) (*Artist, error)
	GetArtistByName(name string) (*Artist, error)
	GetAllArtists(limit, offset int) ([]Artist, error)
	CreateArtist(name string) (*Artist, error)
	UpdateArtistEnrichment(id int, biography, remoteImageURL, localImagePath *string) error
	GetArtistsMissingEnrichment(limit int) ([]Artist, error)
	CountArtists() (int, error)

	// Albums
	GetAlbumByID(id int) (*Album, error)
	GetAlbumByTitleAndArtist(title string, artistID int) (*Album, error)
	CreateAlbum(album *Album) (*Album, error)
	FillAlbumFields(id int, year *int, coverArtPath *string) error // first non-nil wins, never overwrites
	CountAlbums() (int, error)

	// Genres
	GetGenreByName(name string) (*Genre, error)
	CreateGenre(name string) (*Genre, error)

	// Transactional sync operations (all-or-nothing)
	RescanTx(folderID int, fn func(tx SyncTx) error) error
	RemoveFolderCascade(folderID int) (*FolderRemoval, error)

	// Orphan cleanup
	DeleteOrphans(albumIDs, artistIDs []int) (*OrphanReport, error)

	// Playlists
	CreatePlaylist(name string) (*Playlist, error)
	GetPlaylistByID(id int) (*Playlist, error)
	AddPlaylistSong(playlistID int, songID string, position int) error
	GetPlaylistSongs(playlistID int) ([]PlaylistSong, error)

	// Operations
	CreateOperation(id, opType string, folderPath *string) (*Operation, error)
	GetOperationByID(id string) (*Operation, error)
	GetRecentOperations(limit int) ([]Operation, error)
	UpdateOperationStatus(id, status string, progress, total int, message string) error
	UpdateOperationError(id, errorMessage string) error
	AddOperationLog(operationID, level, message string, details *string) error
	GetOperationLogs(operationID string) ([]OperationLog, error)
}

// SyncTx exposes the subset of store operations available inside a
// rescan transaction. Everything executed through it commits or rolls
// back together.
type SyncTx interface {
	GetSongFileStates(folderID int, afterPath string, limit int) ([]SongFileState, error)
	GetSongOwners(ids []string) ([]SongOwner, error)
	DeleteSongsByID(ids []string) error
	CreateSong(song *Song) (*Song, error)
	SetSongGenres(songID string, genreIDs []int) error
	GetArtistByName(name string) (*Artist, error)
	CreateArtist(name string) (*Artist, error)
	GetAlbumByTitleAndArtist(title string, artistID int) (*Album, error)
	CreateAlbum(album *Album) (*Album, error)
	FillAlbumFields(id int, year *int, coverArtPath *string) error
	GetGenreByName(name string) (*Genre, error)
	CreateGenre(name string) (*Genre, error)
	DeleteOrphans(albumIDs, artistIDs []int) (*OrphanReport, error)
	UpdateFolderModified(id int, lastModified time.Time) error
}

// Folder represents a user-selected scan root.
type Folder struct {
	ID              int       `json:"id"`
	Path            string    `json:"path"`
	DisplayName     string    `json:"display_name"`
	LastModifiedUTC time.Time `json:"last_modified_utc"`
}

// Song represents one audio file in the catalog.
type Song struct {
	ID              string     `json:"id"` // ULID format
	FolderID        int        `json:"folder_id"`
	FilePath        string     `json:"file_path"`
	Title           string     `json:"title"`
	DurationMs      int64      `json:"duration_ms"`
	TrackNumber     int        `json:"track_number"`
	DiscNumber      int        `json:"disc_number"`
	Year            int        `json:"year"`
	BitrateKbps     int        `json:"bitrate_kbps"`
	SampleRateHz    int        `json:"sample_rate_hz"`
	Channels        int        `json:"channels"`
	FileCreatedUTC  time.Time  `json:"file_created_utc"`
	FileModifiedUTC time.Time  `json:"file_modified_utc"`
	DateAddedUTC    time.Time  `json:"date_added_utc"`
	ArtistID        int        `json:"artist_id"`
	AlbumID         *int       `json:"album_id,omitempty"`
	CoverArtPath    *string    `json:"cover_art_path,omitempty"`
	PlayCount       int        `json:"play_count"`
	SkipCount       int        `json:"skip_count"`
	LastPlayedUTC   *time.Time `json:"last_played_utc,omitempty"`
	Rating          int        `json:"rating"`
	IsLoved         bool       `json:"is_loved"`
}

// SongFileState is the minimal per-song record used by the rescan diff.
type SongFileState struct {
	ID              string
	FilePath        string
	FileModifiedUTC time.Time
}

// SongOwner captures the relational entities a song references, read
// before a bulk delete bypasses row loading. AlbumArtistID carries the
// owning album's artist, which can differ from the track artist.
type SongOwner struct {
	ID            string
	ArtistID      int
	AlbumID       *int
	AlbumArtistID *int
	CoverArtPath  *string
}

// Artist represents a music artist.
type Artist struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Biography      *string `json:"biography,omitempty"`
	RemoteImageURL *string `json:"remote_image_url,omitempty"`
	LocalImagePath *string `json:"local_image_path,omitempty"`
}

// Album represents an album owned by an artist.
type Album struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Year         *int    `json:"year,omitempty"`
	CoverArtPath *string `json:"cover_art_path,omitempty"`
	ArtistID     int     `json:"artist_id"`
}

// Genre represents a music genre, many-to-many with songs.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Playlist represents an ordered song collection.
type Playlist struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PlaylistSong represents ordered playlist membership.
type PlaylistSong struct {
	PlaylistID int    `json:"playlist_id"`
	SongID     string `json:"song_id"`
	Position   int    `json:"position"`
}

// FolderRemoval reports what a folder cascade delete removed, plus the
// local files the caller must delete after commit.
type FolderRemoval struct {
	SongsDeleted     int
	AlbumsDeleted    int
	ArtistsDeleted   int
	GenresDeleted    int
	CoverArtPaths    []string
	ArtistImagePaths []string
}

// OrphanReport reports what an orphan cleanup pass removed.
type OrphanReport struct {
	AlbumsDeleted    int
	ArtistsDeleted   int
	GenresDeleted    int
	ArtistImagePaths []string
}

// Operation represents an async operation.
type Operation struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	Total        int        `json:"total"`
	Message      string     `json:"message"`
	FolderPath   *string    `json:"folder_path,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// OperationLog represents a log entry for an operation.
type OperationLog struct {
	ID          int       `json:"id"`
	OperationID string    `json:"operation_id"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	Details     *string   `json:"details,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Global store instance
var GlobalStore Store

// InitializeStore initializes the global database store.
func InitializeStore(path string) error {
	store, err := NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	GlobalStore = store
	return nil
}

// CloseStore closes the global store.
func CloseStore() error {
	if GlobalStore != nil {
		return GlobalStore.Close()
	}
	return nil
}
