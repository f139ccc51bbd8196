// file: internal/database/sqlite_store.go
// version: 2.7.0
// guid: 3e1f8b2c-7a4d-4c9e-b0a6-2f5d8e1c7b39

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	ulid "github.com/oklog/ulid/v2"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// dbtx abstracts *sql.DB and *sql.Tx so the same query helpers serve
// both the store and in-flight rescan transactions.
type dbtx interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

const songSelectColumns = `
	id, folder_id, file_path, title, duration_ms, track_number, disc_number,
	year, bitrate_kbps, sample_rate_hz, channels,
	file_created_utc, file_modified_ns, date_added_utc,
	artist_id, album_id, cover_art_path,
	play_count, skip_count, last_played_utc, rating, is_loved
`

func scanSong(scanner rowScanner, song *Song) error {
	var modNs int64
	err := scanner.Scan(
		&song.ID, &song.FolderID, &song.FilePath, &song.Title,
		&song.DurationMs, &song.TrackNumber, &song.DiscNumber,
		&song.Year, &song.BitrateKbps, &song.SampleRateHz, &song.Channels,
		&song.FileCreatedUTC, &modNs, &song.DateAddedUTC,
		&song.ArtistID, &song.AlbumID, &song.CoverArtPath,
		&song.PlayCount, &song.SkipCount, &song.LastPlayedUTC,
		&song.Rating, &song.IsLoved,
	)
	if err != nil {
		return err
	}
	song.FileModifiedUTC = time.Unix(0, modNs).UTC()
	return nil
}

// IsUniqueConstraintError reports whether err is a SQLite unique
// constraint violation. The scanner's retry-on-conflict policy keys
// off this.
func IsUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// SQLiteStore implements the Store interface using SQLite3
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates all required tables
func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE COLLATE NOCASE,
		display_name TEXT NOT NULL,
		last_modified_ns INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_folders_path ON folders(path);

	CREATE TABLE IF NOT EXISTS artists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		biography TEXT,
		remote_image_url TEXT,
		local_image_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_artists_name ON artists(name);

	CREATE TABLE IF NOT EXISTS albums (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL COLLATE NOCASE,
		year INTEGER,
		cover_art_path TEXT,
		artist_id INTEGER NOT NULL,
		FOREIGN KEY (artist_id) REFERENCES artists(id),
		UNIQUE(title, artist_id)
	);

	CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist_id);

	CREATE TABLE IF NOT EXISTS genres (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE
	);

	CREATE TABLE IF NOT EXISTS songs (
		id TEXT PRIMARY KEY,
		folder_id INTEGER NOT NULL,
		file_path TEXT NOT NULL UNIQUE COLLATE NOCASE,
		title TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		track_number INTEGER NOT NULL DEFAULT 0,
		disc_number INTEGER NOT NULL DEFAULT 0,
		year INTEGER NOT NULL DEFAULT 0,
		bitrate_kbps INTEGER NOT NULL DEFAULT 0,
		sample_rate_hz INTEGER NOT NULL DEFAULT 0,
		channels INTEGER NOT NULL DEFAULT 0,
		file_created_utc DATETIME NOT NULL,
		file_modified_ns INTEGER NOT NULL DEFAULT 0,
		date_added_utc DATETIME NOT NULL,
		artist_id INTEGER NOT NULL,
		album_id INTEGER,
		cover_art_path TEXT,
		play_count INTEGER NOT NULL DEFAULT 0,
		skip_count INTEGER NOT NULL DEFAULT 0,
		last_played_utc DATETIME,
		rating INTEGER NOT NULL DEFAULT 0,
		is_loved BOOLEAN NOT NULL DEFAULT 0,
		FOREIGN KEY (folder_id) REFERENCES folders(id),
		FOREIGN KEY (artist_id) REFERENCES artists(id),
		FOREIGN KEY (album_id) REFERENCES albums(id)
	);

	CREATE INDEX IF NOT EXISTS idx_songs_folder ON songs(folder_id);
	CREATE INDEX IF NOT EXISTS idx_songs_file_path ON songs(file_path);
	CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist_id);
	CREATE INDEX IF NOT EXISTS idx_songs_album ON songs(album_id);

	CREATE TABLE IF NOT EXISTS song_genres (
		song_id TEXT NOT NULL,
		genre_id INTEGER NOT NULL,
		PRIMARY KEY (song_id, genre_id),
		FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE,
		FOREIGN KEY (genre_id) REFERENCES genres(id)
	);

	CREATE INDEX IF NOT EXISTS idx_song_genres_genre ON song_genres(genre_id);

	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playlist_songs (
		playlist_id INTEGER NOT NULL,
		song_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (playlist_id, song_id),
		FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE,
		FOREIGN KEY (song_id) REFERENCES songs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_playlist_songs_song ON playlist_songs(song_id);

	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		folder_path TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status);

	CREATE TABLE IF NOT EXISTS operation_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		details TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (operation_id) REFERENCES operations(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_operation_logs_operation ON operation_logs(operation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Reset drops all catalog data. Used by tests and the reset endpoint.
func (s *SQLiteStore) Reset() error {
	tables := []string{
		"playlist_songs", "playlists", "song_genres", "songs",
		"albums", "artists", "genres", "folders",
		"operation_logs", "operations",
	}
	for _, table := range tables {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to reset table %s: %w", table, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Folders

func scanFolder(scanner rowScanner, folder *Folder) error {
	var modNs int64
	if err := scanner.Scan(&folder.ID, &folder.Path, &folder.DisplayName, &modNs); err != nil {
		return err
	}
	folder.LastModifiedUTC = time.Unix(0, modNs).UTC()
	return nil
}

func (s *SQLiteStore) GetAllFolders() ([]Folder, error) {
	rows, err := s.db.Query("SELECT id, path, display_name, last_modified_ns FROM folders ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var folder Folder
		if err := scanFolder(rows, &folder); err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

func (s *SQLiteStore) GetFolderByID(id int) (*Folder, error) {
	var folder Folder
	err := scanFolder(s.db.QueryRow(
		"SELECT id, path, display_name, last_modified_ns FROM folders WHERE id = ?", id), &folder)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (s *SQLiteStore) GetFolderByPath(path string) (*Folder, error) {
	var folder Folder
	err := scanFolder(s.db.QueryRow(
		"SELECT id, path, display_name, last_modified_ns FROM folders WHERE path = ?", path), &folder)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (s *SQLiteStore) CreateFolder(path, displayName string, lastModified time.Time) (*Folder, error) {
	result, err := s.db.Exec(
		"INSERT INTO folders (path, display_name, last_modified_ns) VALUES (?, ?, ?)",
		path, displayName, lastModified.UnixNano())
	if err != nil {
		if IsUniqueConstraintError(err) {
			return s.GetFolderByPath(path)
		}
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Folder{ID: int(id), Path: path, DisplayName: displayName, LastModifiedUTC: lastModified.UTC()}, nil
}

func (s *SQLiteStore) UpdateFolderModified(id int, lastModified time.Time) error {
	return updateFolderModified(s.db, id, lastModified)
}

func updateFolderModified(q dbtx, id int, lastModified time.Time) error {
	_, err := q.Exec("UPDATE folders SET last_modified_ns = ? WHERE id = ?", lastModified.UnixNano(), id)
	return err
}

// ---------------------------------------------------------------------------
// Songs

func (s *SQLiteStore) GetSongByID(id string) (*Song, error) {
	return getSongByID(s.db, id)
}

func getSongByID(q dbtx, id string) (*Song, error) {
	var song Song
	err := scanSong(q.QueryRow("SELECT "+songSelectColumns+" FROM songs WHERE id = ?", id), &song)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &song, nil
}

func (s *SQLiteStore) GetSongByFilePath(path string) (*Song, error) {
	return getSongByFilePath(s.db, path)
}

func getSongByFilePath(q dbtx, path string) (*Song, error) {
	var song Song
	err := scanSong(q.QueryRow("SELECT "+songSelectColumns+" FROM songs WHERE file_path = ?", path), &song)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &song, nil
}

func (s *SQLiteStore) GetSongsByFolderID(folderID int, limit, offset int) ([]Song, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		"SELECT "+songSelectColumns+" FROM songs WHERE folder_id = ? ORDER BY file_path LIMIT ? OFFSET ?",
		folderID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSongs(rows)
}

func (s *SQLiteStore) GetAllSongs(limit, offset int) ([]Song, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		"SELECT "+songSelectColumns+" FROM songs ORDER BY file_path LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSongs(rows)
}

func collectSongs(rows *sql.Rows) ([]Song, error) {
	var songs []Song
	for rows.Next() {
		var song Song
		if err := scanSong(rows, &song); err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// GetSongFileStates returns (path, mtime) pairs for a folder in path
// order, starting strictly after afterPath. The rescan diff walks the
// stored set in these bounded chunks.
func (s *SQLiteStore) GetSongFileStates(folderID int, afterPath string, limit int) ([]SongFileState, error) {
	return getSongFileStates(s.db, folderID, afterPath, limit)
}

func getSongFileStates(q dbtx, folderID int, afterPath string, limit int) ([]SongFileState, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := q.Query(
		`SELECT id, file_path, file_modified_ns FROM songs
		 WHERE folder_id = ? AND file_path > ?
		 ORDER BY file_path LIMIT ?`,
		folderID, afterPath, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []SongFileState
	for rows.Next() {
		var state SongFileState
		var modNs int64
		if err := rows.Scan(&state.ID, &state.FilePath, &modNs); err != nil {
			return nil, err
		}
		state.FileModifiedUTC = time.Unix(0, modNs).UTC()
		states = append(states, state)
	}
	return states, rows.Err()
}

func (s *SQLiteStore) CreateSong(song *Song) (*Song, error) {
	return createSong(s.db, song)
}

func createSong(q dbtx, song *Song) (*Song, error) {
	if song.ID == "" {
		song.ID = ulid.Make().String()
	}
	if song.DateAddedUTC.IsZero() {
		song.DateAddedUTC = time.Now().UTC()
	}

	_, err := q.Exec(`
		INSERT INTO songs (
			id, folder_id, file_path, title, duration_ms, track_number, disc_number,
			year, bitrate_kbps, sample_rate_hz, channels,
			file_created_utc, file_modified_ns, date_added_utc,
			artist_id, album_id, cover_art_path,
			play_count, skip_count, last_played_utc, rating, is_loved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		song.ID, song.FolderID, song.FilePath, song.Title,
		song.DurationMs, song.TrackNumber, song.DiscNumber,
		song.Year, song.BitrateKbps, song.SampleRateHz, song.Channels,
		song.FileCreatedUTC, song.FileModifiedUTC.UnixNano(), song.DateAddedUTC,
		song.ArtistID, song.AlbumID, song.CoverArtPath,
		song.PlayCount, song.SkipCount, song.LastPlayedUTC,
		song.Rating, song.IsLoved,
	)
	if err != nil {
		// Duplicate file path is a no-op that returns the existing row.
		if IsUniqueConstraintError(err) {
			existing, lookupErr := getSongByFilePath(q, song.FilePath)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to create song: %w", err)
	}
	return song, nil
}

func (s *SQLiteStore) DeleteSongsByID(ids []string) error {
	return deleteSongsByID(s.db, ids)
}

func deleteSongsByID(q dbtx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inClause(ids)
	if _, err := q.Exec("DELETE FROM song_genres WHERE song_id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete song genres: %w", err)
	}
	if _, err := q.Exec("DELETE FROM playlist_songs WHERE song_id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete playlist songs: %w", err)
	}
	if _, err := q.Exec("DELETE FROM songs WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete songs: %w", err)
	}
	return nil
}

// getSongOwners reads the entity references for songs before a bulk
// delete removes the rows themselves.
func getSongOwners(q dbtx, ids []string) ([]SongOwner, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	rows, err := q.Query(
		`SELECT s.id, s.artist_id, s.album_id, al.artist_id, s.cover_art_path
		 FROM songs s
		 LEFT JOIN albums al ON s.album_id = al.id
		 WHERE s.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []SongOwner
	for rows.Next() {
		var owner SongOwner
		if err := rows.Scan(&owner.ID, &owner.ArtistID, &owner.AlbumID, &owner.AlbumArtistID, &owner.CoverArtPath); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func (s *SQLiteStore) CountSongs() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM songs").Scan(&count)
	return count, err
}

func (s *SQLiteStore) CountSongsByFolder(folderID int) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM songs WHERE folder_id = ?", folderID).Scan(&count)
	return count, err
}

func (s *SQLiteStore) SearchSongs(query string, limit int) ([]Song, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ReplaceAll(query, "%", "\\%") + "%"
	rows, err := s.db.Query(
		"SELECT "+songSelectColumns+" FROM songs WHERE title LIKE ? ESCAPE '\\' ORDER BY title LIMIT ?",
		pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSongs(rows)
}

// ---------------------------------------------------------------------------
// Song genres

func (s *SQLiteStore) SetSongGenres(songID string, genreIDs []int) error {
	return setSongGenres(s.db, songID, genreIDs)
}

func setSongGenres(q dbtx, songID string, genreIDs []int) error {
	if _, err := q.Exec("DELETE FROM song_genres WHERE song_id = ?", songID); err != nil {
		return err
	}
	for _, genreID := range genreIDs {
		if _, err := q.Exec(
			"INSERT OR IGNORE INTO song_genres (song_id, genre_id) VALUES (?, ?)", songID, genreID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetSongGenres(songID string) ([]Genre, error) {
	rows, err := s.db.Query(
		`SELECT g.id, g.name FROM genres g
		 JOIN song_genres sg ON sg.genre_id = g.id
		 WHERE sg.song_id = ? ORDER BY g.name`, songID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var genres []Genre
	for rows.Next() {
		var genre Genre
		if err := rows.Scan(&genre.ID, &genre.Name); err != nil {
			return nil, err
		}
		genres = append(genres, genre)
	}
	return genres, rows.Err()
}

// ---------------------------------------------------------------------------
// Artists

func scanArtist(scanner rowScanner, artist *Artist) error {
	return scanner.Scan(&artist.ID, &artist.Name, &artist.Biography,
		&artist.RemoteImageURL, &artist.LocalImagePath)
}

const artistSelectColumns = "id, name, biography, remote_image_url, local_image_path"

func (s *SQLiteStore) GetArtistByID(id int) (*Artist, error) {
	var artist Artist
	err := scanArtist(s.db.QueryRow(
		"SELECT "+artistSelectColumns+" FROM artists WHERE id = ?", id), &artist)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &artist, nil
}

func (s *SQLiteStore) GetArtistByName(name string) (*Artist, error) {
	return getArtistByName(s.db, name)
}

func getArtistByName(q dbtx, name string) (*Artist, error) {
	var artist Artist
	err := scanArtist(q.QueryRow(
		"SELECT "+artistSelectColumns+" FROM artists WHERE name = ?", name), &artist)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &artist, nil
}

func (s *SQLiteStore) GetAllArtists(limit, offset int) ([]Artist, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		"SELECT "+artistSelectColumns+" FROM artists ORDER BY name LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []Artist
	for rows.Next() {
		var artist Artist
		if err := scanArtist(rows, &artist); err != nil {
			return nil, err
		}
		artists = append(artists, artist)
	}
	return artists, rows.Err()
}

func (s *SQLiteStore) CreateArtist(name string) (*Artist, error) {
	return createArtist(s.db, name)
}

func createArtist(q dbtx, name string) (*Artist, error) {
	result, err := q.Exec("INSERT INTO artists (name) VALUES (?)", name)
	if err != nil {
		// Surface unique violations to the caller; the batch writer's
		// retry policy re-resolves and reuses the committed row.
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Artist{ID: int(id), Name: name}, nil
}

func (s *SQLiteStore) UpdateArtistEnrichment(id int, biography, remoteImageURL, localImagePath *string) error {
	_, err := s.db.Exec(
		"UPDATE artists SET biography = ?, remote_image_url = ?, local_image_path = ? WHERE id = ?",
		biography, remoteImageURL, localImagePath, id)
	return err
}

func (s *SQLiteStore) GetArtistsMissingEnrichment(limit int) ([]Artist, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+artistSelectColumns+` FROM artists
		 WHERE biography IS NULL OR biography = '' OR local_image_path IS NULL
		 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []Artist
	for rows.Next() {
		var artist Artist
		if err := scanArtist(rows, &artist); err != nil {
			return nil, err
		}
		artists = append(artists, artist)
	}
	return artists, rows.Err()
}

func (s *SQLiteStore) CountArtists() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM artists").Scan(&count)
	return count, err
}

// ---------------------------------------------------------------------------
// Albums

func scanAlbum(scanner rowScanner, album *Album) error {
	return scanner.Scan(&album.ID, &album.Title, &album.Year, &album.CoverArtPath, &album.ArtistID)
}

const albumSelectColumns = "id, title, year, cover_art_path, artist_id"

func (s *SQLiteStore) GetAlbumByID(id int) (*Album, error) {
	var album Album
	err := scanAlbum(s.db.QueryRow(
		"SELECT "+albumSelectColumns+" FROM albums WHERE id = ?", id), &album)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &album, nil
}

func (s *SQLiteStore) GetAlbumByTitleAndArtist(title string, artistID int) (*Album, error) {
	return getAlbumByTitleAndArtist(s.db, title, artistID)
}

func getAlbumByTitleAndArtist(q dbtx, title string, artistID int) (*Album, error) {
	var album Album
	err := scanAlbum(q.QueryRow(
		"SELECT "+albumSelectColumns+" FROM albums WHERE title = ? AND artist_id = ?",
		title, artistID), &album)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &album, nil
}

func (s *SQLiteStore) CreateAlbum(album *Album) (*Album, error) {
	return createAlbum(s.db, album)
}

func createAlbum(q dbtx, album *Album) (*Album, error) {
	result, err := q.Exec(
		"INSERT INTO albums (title, year, cover_art_path, artist_id) VALUES (?, ?, ?, ?)",
		album.Title, album.Year, album.CoverArtPath, album.ArtistID)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := *album
	created.ID = int(id)
	return &created, nil
}

func (s *SQLiteStore) FillAlbumFields(id int, year *int, coverArtPath *string) error {
	return fillAlbumFields(s.db, id, year, coverArtPath)
}

// fillAlbumFields sets year/cover_art_path only where currently NULL.
// Once set, the stored values are immutable under later scans.
func fillAlbumFields(q dbtx, id int, year *int, coverArtPath *string) error {
	if year != nil {
		if _, err := q.Exec(
			"UPDATE albums SET year = ? WHERE id = ? AND year IS NULL", *year, id); err != nil {
			return err
		}
	}
	if coverArtPath != nil {
		if _, err := q.Exec(
			"UPDATE albums SET cover_art_path = ? WHERE id = ? AND cover_art_path IS NULL",
			*coverArtPath, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CountAlbums() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM albums").Scan(&count)
	return count, err
}

// ---------------------------------------------------------------------------
// Genres

func (s *SQLiteStore) GetGenreByName(name string) (*Genre, error) {
	return getGenreByName(s.db, name)
}

func getGenreByName(q dbtx, name string) (*Genre, error) {
	var genre Genre
	err := q.QueryRow("SELECT id, name FROM genres WHERE name = ?", name).
		Scan(&genre.ID, &genre.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &genre, nil
}

func (s *SQLiteStore) CreateGenre(name string) (*Genre, error) {
	return createGenre(s.db, name)
}

func createGenre(q dbtx, name string) (*Genre, error) {
	result, err := q.Exec("INSERT INTO genres (name) VALUES (?)", name)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Genre{ID: int(id), Name: name}, nil
}

// ---------------------------------------------------------------------------
// Orphan cleanup

func (s *SQLiteStore) DeleteOrphans(albumIDs, artistIDs []int) (*OrphanReport, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	report, err := deleteOrphans(tx, albumIDs, artistIDs)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return report, nil
}

// deleteOrphans removes albums in albumIDs with no remaining songs,
// artists in artistIDs unreferenced by both songs and albums, and any
// genres with zero referencing songs. Cached artist image paths are
// captured so the caller can delete the files after commit.
func deleteOrphans(q dbtx, albumIDs, artistIDs []int) (*OrphanReport, error) {
	report := &OrphanReport{}

	if len(albumIDs) > 0 {
		placeholders, args := inClauseInts(albumIDs)
		result, err := q.Exec(
			`DELETE FROM albums WHERE id IN (`+placeholders+`)
			 AND NOT EXISTS (SELECT 1 FROM songs WHERE songs.album_id = albums.id)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to delete orphaned albums: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil {
			report.AlbumsDeleted = int(n)
		}
	}

	if len(artistIDs) > 0 {
		placeholders, args := inClauseInts(artistIDs)
		orphanCond := `id IN (` + placeholders + `)
			 AND NOT EXISTS (SELECT 1 FROM songs WHERE songs.artist_id = artists.id)
			 AND NOT EXISTS (SELECT 1 FROM albums WHERE albums.artist_id = artists.id)`

		rows, err := q.Query(
			"SELECT local_image_path FROM artists WHERE local_image_path IS NOT NULL AND "+orphanCond, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				rows.Close()
				return nil, err
			}
			report.ArtistImagePaths = append(report.ArtistImagePaths, path)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		result, err := q.Exec("DELETE FROM artists WHERE "+orphanCond, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to delete orphaned artists: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil {
			report.ArtistsDeleted = int(n)
		}
	}

	result, err := q.Exec(
		`DELETE FROM genres WHERE NOT EXISTS
		 (SELECT 1 FROM song_genres WHERE song_genres.genre_id = genres.id)`)
	if err != nil {
		return nil, fmt.Errorf("failed to delete orphaned genres: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		report.GenresDeleted = int(n)
	}

	return report, nil
}

// ---------------------------------------------------------------------------
// Transactional rescan

// sqliteTx adapts *sql.Tx to the SyncTx interface.
type sqliteTx struct {
	tx       *sql.Tx
	folderID int
}

func (t *sqliteTx) GetSongFileStates(folderID int, afterPath string, limit int) ([]SongFileState, error) {
	return getSongFileStates(t.tx, folderID, afterPath, limit)
}
func (t *sqliteTx) GetSongOwners(ids []string) ([]SongOwner, error) {
	return getSongOwners(t.tx, ids)
}
func (t *sqliteTx) DeleteSongsByID(ids []string) error { return deleteSongsByID(t.tx, ids) }
func (t *sqliteTx) CreateSong(song *Song) (*Song, error) {
	return createSong(t.tx, song)
}
func (t *sqliteTx) SetSongGenres(songID string, genreIDs []int) error {
	return setSongGenres(t.tx, songID, genreIDs)
}
func (t *sqliteTx) GetArtistByName(name string) (*Artist, error) {
	return getArtistByName(t.tx, name)
}
func (t *sqliteTx) CreateArtist(name string) (*Artist, error) { return createArtist(t.tx, name) }
func (t *sqliteTx) GetAlbumByTitleAndArtist(title string, artistID int) (*Album, error) {
	return getAlbumByTitleAndArtist(t.tx, title, artistID)
}
func (t *sqliteTx) CreateAlbum(album *Album) (*Album, error) { return createAlbum(t.tx, album) }
func (t *sqliteTx) FillAlbumFields(id int, year *int, coverArtPath *string) error {
	return fillAlbumFields(t.tx, id, year, coverArtPath)
}
func (t *sqliteTx) GetGenreByName(name string) (*Genre, error) { return getGenreByName(t.tx, name) }
func (t *sqliteTx) CreateGenre(name string) (*Genre, error)    { return createGenre(t.tx, name) }
func (t *sqliteTx) DeleteOrphans(albumIDs, artistIDs []int) (*OrphanReport, error) {
	return deleteOrphans(t.tx, albumIDs, artistIDs)
}
func (t *sqliteTx) UpdateFolderModified(id int, lastModified time.Time) error {
	return updateFolderModified(t.tx, id, lastModified)
}

// RescanTx runs fn inside a single transaction. Any error rolls back
// every change fn made, leaving the catalog in its pre-rescan state.
func (s *SQLiteStore) RescanTx(folderID int, fn func(tx SyncTx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rescan transaction: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx, folderID: folderID}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rescan transaction: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Folder removal cascade

// RemoveFolderCascade deletes a folder and everything it owns in one
// transaction: playlist links, songs, newly orphaned albums/artists/
// genres, and the folder row. File paths owned by deleted rows are
// returned so the caller can remove them from disk after commit.
func (s *SQLiteStore) RemoveFolderCascade(folderID int) (*FolderRemoval, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin folder removal: %w", err)
	}

	removal, err := removeFolderCascade(tx, folderID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit folder removal: %w", err)
	}
	return removal, nil
}

func removeFolderCascade(tx *sql.Tx, folderID int) (*FolderRemoval, error) {
	removal := &FolderRemoval{}

	// Capture song ids, cover art paths, and owning entity ids before
	// any delete touches the rows.
	rows, err := tx.Query(
		"SELECT id, artist_id, album_id, cover_art_path FROM songs WHERE folder_id = ?", folderID)
	if err != nil {
		return nil, err
	}
	var songIDs []string
	albumIDSet := make(map[int]bool)
	artistIDSet := make(map[int]bool)
	for rows.Next() {
		var owner SongOwner
		if err := rows.Scan(&owner.ID, &owner.ArtistID, &owner.AlbumID, &owner.CoverArtPath); err != nil {
			rows.Close()
			return nil, err
		}
		songIDs = append(songIDs, owner.ID)
		artistIDSet[owner.ArtistID] = true
		if owner.AlbumID != nil {
			albumIDSet[*owner.AlbumID] = true
		}
		if owner.CoverArtPath != nil && *owner.CoverArtPath != "" {
			removal.CoverArtPaths = append(removal.CoverArtPaths, *owner.CoverArtPath)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Album artists may differ from track artists; include them so
	// the orphan pass can consider every artist the folder touched.
	if len(albumIDSet) > 0 {
		placeholders, args := inClauseInts(keys(albumIDSet))
		artistRows, err := tx.Query(
			"SELECT artist_id FROM albums WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, err
		}
		for artistRows.Next() {
			var artistID int
			if err := artistRows.Scan(&artistID); err != nil {
				artistRows.Close()
				return nil, err
			}
			artistIDSet[artistID] = true
		}
		artistRows.Close()
		if err := artistRows.Err(); err != nil {
			return nil, err
		}
	}

	if err := deleteSongsByID(tx, songIDs); err != nil {
		return nil, err
	}
	removal.SongsDeleted = len(songIDs)

	report, err := deleteOrphans(tx, keys(albumIDSet), keys(artistIDSet))
	if err != nil {
		return nil, err
	}
	removal.AlbumsDeleted = report.AlbumsDeleted
	removal.ArtistsDeleted = report.ArtistsDeleted
	removal.GenresDeleted = report.GenresDeleted
	removal.ArtistImagePaths = report.ArtistImagePaths

	if _, err := tx.Exec("DELETE FROM folders WHERE id = ?", folderID); err != nil {
		return nil, fmt.Errorf("failed to delete folder row: %w", err)
	}

	return removal, nil
}

// ---------------------------------------------------------------------------
// Playlists

func (s *SQLiteStore) CreatePlaylist(name string) (*Playlist, error) {
	result, err := s.db.Exec("INSERT INTO playlists (name) VALUES (?)", name)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Playlist{ID: int(id), Name: name}, nil
}

func (s *SQLiteStore) GetPlaylistByID(id int) (*Playlist, error) {
	var playlist Playlist
	err := s.db.QueryRow("SELECT id, name FROM playlists WHERE id = ?", id).
		Scan(&playlist.ID, &playlist.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &playlist, nil
}

func (s *SQLiteStore) AddPlaylistSong(playlistID int, songID string, position int) error {
	_, err := s.db.Exec(
		"INSERT INTO playlist_songs (playlist_id, song_id, position) VALUES (?, ?, ?)",
		playlistID, songID, position)
	return err
}

func (s *SQLiteStore) GetPlaylistSongs(playlistID int) ([]PlaylistSong, error) {
	rows, err := s.db.Query(
		"SELECT playlist_id, song_id, position FROM playlist_songs WHERE playlist_id = ? ORDER BY position",
		playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PlaylistSong
	for rows.Next() {
		var item PlaylistSong
		if err := rows.Scan(&item.PlaylistID, &item.SongID, &item.Position); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers

func inClause(ids []string) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

func inClauseInts(ids []int) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

func keys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
