// file: internal/config/config.go
// version: 1.3.0
// guid: 4c8e2a1b-9f3d-4e7a-8b5c-1d6f0a2e9c47

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	DatabasePath  string
	ImageCacheDir string
	PlaylistDir   string
	ServerPort    int

	// Scan tuning
	BatchSize       int // pending records per batch flush
	ConcurrentScans int // parallel metadata extractions per chunk
	ChunkSize       int // files per extraction chunk

	// Enrichment
	EnrichmentBatchSize int
	AudioDBBaseURL      string
	DeezerBaseURL       string

	// Folder roots watched for changes when serving
	RootDirs []string

	SupportedExtensions []string
}

var AppConfig Config

// InitConfig initializes the application configuration
func InitConfig() {
	viper.SetDefault("database_path", defaultDatabasePath())
	viper.SetDefault("image_cache_dir", defaultImageCacheDir())
	viper.SetDefault("playlist_dir", defaultPlaylistDir())
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("batch_size", 200)
	viper.SetDefault("concurrent_scans", 4)
	viper.SetDefault("chunk_size", 50)
	viper.SetDefault("enrichment_batch_size", 50)
	viper.SetDefault("audiodb_base_url", "https://www.theaudiodb.com/api/v1/json/2")
	viper.SetDefault("deezer_base_url", "https://api.deezer.com")

	AppConfig = Config{
		DatabasePath:        viper.GetString("database_path"),
		ImageCacheDir:       viper.GetString("image_cache_dir"),
		PlaylistDir:         viper.GetString("playlist_dir"),
		ServerPort:          viper.GetInt("server.port"),
		BatchSize:           viper.GetInt("batch_size"),
		ConcurrentScans:     viper.GetInt("concurrent_scans"),
		ChunkSize:           viper.GetInt("chunk_size"),
		EnrichmentBatchSize: viper.GetInt("enrichment_batch_size"),
		AudioDBBaseURL:      viper.GetString("audiodb_base_url"),
		DeezerBaseURL:       viper.GetString("deezer_base_url"),
		RootDirs:            viper.GetStringSlice("root_dirs"),
		SupportedExtensions: []string{
			".mp3", ".m4a", ".aac", ".flac", ".ogg", ".opus", ".wav", ".wma",
		},
	}

	if AppConfig.BatchSize < 1 {
		AppConfig.BatchSize = 200
	}
	if AppConfig.ConcurrentScans < 1 {
		AppConfig.ConcurrentScans = 1
	}
	if AppConfig.ChunkSize < 1 {
		AppConfig.ChunkSize = 50
	}
}

// IsSupportedAudioFile reports whether the path has a known audio extension.
func IsSupportedAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range AppConfig.SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "music-catalog.db"
	}
	return filepath.Join(home, ".music-catalog", "catalog.db")
}

func defaultImageCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "image-cache"
	}
	return filepath.Join(home, ".music-catalog", "images")
}

func defaultPlaylistDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "playlists"
	}
	return filepath.Join(home, ".music-catalog", "playlists")
}
