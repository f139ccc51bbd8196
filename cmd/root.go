// file: cmd/root.go
// version: 1.5.0
// guid: 9e3b6d1a-4c8f-42e5-b7a0-2d5f8c1e6b94

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdfalk/music-catalog/internal/config"
	"github.com/jdfalk/music-catalog/internal/database"
	"github.com/jdfalk/music-catalog/internal/enrichment"
	"github.com/jdfalk/music-catalog/internal/metadata"
	"github.com/jdfalk/music-catalog/internal/operations"
	"github.com/jdfalk/music-catalog/internal/realtime"
	"github.com/jdfalk/music-catalog/internal/scanner"
	"github.com/jdfalk/music-catalog/internal/server"
	"github.com/jdfalk/music-catalog/internal/watcher"

	ulid "github.com/oklog/ulid/v2"
)

var cfgFile string
var databasePath string
var imageCacheDir string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "music-catalog",
	Short: "Index music folders into a searchable catalog",
	Long: `Music Catalog scans your music folders, extracts tags and audio
properties, and keeps a deduplicated catalog of songs, artists, albums
and genres in sync with what is on disk.

Artist biographies and portraits are fetched in the background from
TheAudioDB and Deezer and cached locally.`,
}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [path...]",
	Short: "Scan music folders",
	Long:  `Scan one or more folders and add their audio files to the catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			paths = config.AppConfig.RootDirs
		}
		if len(paths) == 0 {
			return fmt.Errorf("no folder paths given and root_dirs not configured")
		}

		if err := database.InitializeStore(config.AppConfig.DatabasePath); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.CloseStore()

		fmt.Printf("Using database: %s\n", config.AppConfig.DatabasePath)

		syncer := newSynchronizer()
		for _, path := range paths {
			fmt.Printf("Scanning folder: %s\n", path)
			summary, err := syncer.ScanFolder(cmd.Context(), path, newCLIProgress())
			if err != nil {
				return fmt.Errorf("scan error: %w", err)
			}
			fmt.Printf("Added %d songs (%d extraction failures)\n", summary.SongsAdded, summary.ExtractionFailures)
			if summary.CompletedWithErrors {
				fmt.Println("Scan completed with errors, see log for details")
			}
		}
		return nil
	},
}

// rescanCmd represents the rescan command
var rescanCmd = &cobra.Command{
	Use:   "rescan <folder-id|path>",
	Short: "Rescan a stored folder",
	Long:  `Reconcile one stored folder with its on-disk contents: removed files are dropped, modified files re-read, new files added.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.InitializeStore(config.AppConfig.DatabasePath); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.CloseStore()

		folder, err := lookupFolder(args[0])
		if err != nil {
			return err
		}

		syncer := newSynchronizer()
		changed, summary, err := syncer.RescanFolder(cmd.Context(), folder.ID, newCLIProgress())
		if err != nil {
			return fmt.Errorf("rescan error: %w", err)
		}

		if !changed {
			fmt.Println("No changes")
			return nil
		}
		fmt.Printf("Added %d songs, removed %d\n", summary.SongsAdded, summary.SongsRemoved)
		return nil
	},
}

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rescan every stored folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.InitializeStore(config.AppConfig.DatabasePath); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.CloseStore()

		syncer := newSynchronizer()
		summary, err := syncer.RefreshAllFolders(cmd.Context(), newCLIProgress())
		if err != nil {
			return fmt.Errorf("refresh error: %w", err)
		}

		fmt.Printf("Refresh complete: %d songs added, %d removed\n", summary.SongsAdded, summary.SongsRemoved)
		if summary.CompletedWithErrors {
			fmt.Println("Refresh completed with errors, see log for details")
		}
		return nil
	},
}

// removeFolderCmd represents the remove-folder command
var removeFolderCmd = &cobra.Command{
	Use:   "remove-folder <folder-id|path>",
	Short: "Remove a folder and its songs from the catalog",
	Long:  `Remove a folder, its songs, and any artists, albums and genres nothing else references. Cached artist images and extracted cover art are deleted from disk. Audio files are left untouched.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.InitializeStore(config.AppConfig.DatabasePath); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.CloseStore()

		folder, err := lookupFolder(args[0])
		if err != nil {
			return err
		}

		syncer := newSynchronizer()
		removal, err := syncer.RemoveFolder(cmd.Context(), folder.ID)
		if err != nil {
			return fmt.Errorf("remove error: %w", err)
		}

		fmt.Printf("Removed %s: %d songs, %d albums, %d artists, %d genres\n",
			folder.Path, removal.SongsDeleted, removal.AlbumsDeleted, removal.ArtistsDeleted, removal.GenresDeleted)
		return nil
	},
}

// enrichCmd represents the enrich command
var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fetch missing artist biographies and images",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.InitializeStore(config.AppConfig.DatabasePath); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.CloseStore()

		worker := newEnrichmentWorker()
		if !worker.Start(cmd.Context()) {
			return fmt.Errorf("enrichment already running")
		}
		fmt.Println("Enriching artists...")
		worker.Wait()
		fmt.Println("Done")
		return nil
	},
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog web server",
	Long:  `Start the HTTP API, the background operation queue, and per-folder filesystem watchers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.InitializeStore(config.AppConfig.DatabasePath); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.CloseStore()

		fmt.Printf("Using database: %s\n", config.AppConfig.DatabasePath)

		realtime.InitializeEventHub()
		fmt.Println("Real-time event hub initialized")

		workers, _ := cmd.Flags().GetInt("workers")
		if workers <= 0 {
			workers = 2
		}
		operations.InitializeQueue(database.GlobalStore, workers)
		defer func() {
			fmt.Println("Shutting down operation queue...")
			if err := operations.ShutdownQueue(30 * time.Second); err != nil {
				fmt.Printf("Warning: operation queue shutdown error: %v\n", err)
			}
		}()
		fmt.Printf("Operation queue initialized with %d workers\n", workers)

		syncer := newSynchronizer()
		enricher := newEnrichmentWorker()

		watchers, err := startFolderWatchers(syncer)
		if err != nil {
			fmt.Printf("Warning: could not start folder watchers: %v\n", err)
		}
		defer func() {
			for _, w := range watchers {
				w.Stop()
			}
		}()

		srv := server.NewServer(database.GlobalStore, syncer, enricher)
		cfg := server.ServerConfig{
			Port:         config.AppConfig.ServerPort,
			Host:         "localhost",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		if host := cmd.Flag("host").Value.String(); host != "" {
			cfg.Host = host
		}
		if port := cmd.Flag("port").Value.String(); port != "" {
			if p, err := strconv.Atoi(port); err == nil && p > 0 {
				cfg.Port = p
			}
		}

		return srv.Start(cfg)
	},
}

// startFolderWatchers watches every stored folder and queues a rescan
// when its contents settle after a change.
func startFolderWatchers(syncer *scanner.Synchronizer) ([]*watcher.Watcher, error) {
	folders, err := database.GlobalStore.GetAllFolders()
	if err != nil {
		return nil, err
	}

	var watchers []*watcher.Watcher
	for _, folder := range folders {
		folderID := folder.ID
		folderPath := folder.Path

		w := watcher.New(func(rootDir string) {
			id := ulid.Make().String()
			if _, err := database.GlobalStore.CreateOperation(id, operations.TypeRescan, &folderPath); err != nil {
				log.Printf("Warning: could not create rescan operation for %s: %v", folderPath, err)
				return
			}
			err := operations.GlobalQueue.Enqueue(id, operations.TypeRescan, operations.PriorityLow,
				func(ctx context.Context, progress operations.ProgressReporter) error {
					_, _, err := syncer.RescanFolder(ctx, folderID, progress)
					return err
				})
			if err != nil {
				log.Printf("Warning: could not enqueue rescan for %s: %v", folderPath, err)
			}
		}, watcher.DefaultDebounce)

		if err := w.Start(folder.Path); err != nil {
			log.Printf("Warning: could not watch %s: %v", folder.Path, err)
			continue
		}
		watchers = append(watchers, w)
	}

	log.Printf("Watching %d folders for changes", len(watchers))
	return watchers, nil
}

func newSynchronizer() *scanner.Synchronizer {
	coverDir := filepath.Join(config.AppConfig.ImageCacheDir, "covers")
	return scanner.NewSynchronizer(database.GlobalStore, metadata.NewTagExtractor(coverDir))
}

func newEnrichmentWorker() *enrichment.Worker {
	return enrichment.NewWorker(
		database.GlobalStore,
		metadata.NewAudioDBClient(config.AppConfig.AudioDBBaseURL),
		metadata.NewDeezerClient(config.AppConfig.DeezerBaseURL),
		enrichment.NewImageCache(config.AppConfig.ImageCacheDir),
		config.AppConfig.EnrichmentBatchSize,
	)
}

// lookupFolder resolves a CLI argument as a folder id or path.
func lookupFolder(arg string) (*database.Folder, error) {
	if id, err := strconv.Atoi(arg); err == nil {
		folder, err := database.GlobalStore.GetFolderByID(id)
		if err != nil {
			return nil, err
		}
		if folder != nil {
			return folder, nil
		}
	}

	abs, err := filepath.Abs(arg)
	if err != nil {
		abs = arg
	}
	folder, err := database.GlobalStore.GetFolderByPath(abs)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("folder %q not found in catalog", arg)
	}
	return folder, nil
}

// cliProgress renders scan progress as a terminal progress bar.
type cliProgress struct {
	bar *progressbar.ProgressBar
}

func newCLIProgress() *cliProgress {
	return &cliProgress{}
}

func (p *cliProgress) UpdateProgress(current, total int, message string) error {
	return p.UpdateProgressPath(current, total, message, "")
}

func (p *cliProgress) UpdateProgressPath(current, total int, message, currentPath string) error {
	if p.bar == nil || p.bar.GetMax() != total {
		p.bar = progressbar.Default(int64(total))
	}
	_ = p.bar.Set(current)
	return nil
}

func (p *cliProgress) Log(level, message string, details *string) error {
	if level == "error" || level == "warn" {
		log.Printf("[%s] %s", level, message)
	}
	return nil
}

func (p *cliProgress) IsCanceled() bool { return false }

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.music-catalog.yaml)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "db", "", "path to the catalog database")
	rootCmd.PersistentFlags().StringVar(&imageCacheDir, "image-cache", "", "directory for cached artist images and cover art")

	viper.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("image_cache_dir", rootCmd.PersistentFlags().Lookup("image-cache"))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rescanCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(removeFolderCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "port to run the web server on")
	serveCmd.Flags().String("host", "localhost", "host to bind the web server to")
	serveCmd.Flags().Int("workers", 2, "number of background operation workers")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".music-catalog")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	config.InitConfig()

	// Ensure database and image cache directories exist
	if dir := filepath.Dir(config.AppConfig.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("Error creating database directory: %v\n", err)
		}
	}
	if config.AppConfig.ImageCacheDir != "" {
		if err := os.MkdirAll(config.AppConfig.ImageCacheDir, 0755); err != nil {
			fmt.Printf("Error creating image cache directory: %v\n", err)
		}
	}
}
