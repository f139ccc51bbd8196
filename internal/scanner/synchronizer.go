// file: internal/scanner/synchronizer.go
// version: 2.2.0
// guid: 2e9c5a7f-1d3b-46e8-8f40-7c6b2d9e0a53

package scanner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jdfalk/music-catalog/internal/config"
	"github.com/jdfalk/music-catalog/internal/database"
	"github.com/jdfalk/music-catalog/internal/metadata"
	"github.com/jdfalk/music-catalog/internal/metrics"
	"github.com/jdfalk/music-catalog/internal/operations"
)

// ScanSummary reports what one scan or rescan changed.
type ScanSummary struct {
	SongsAdded          int
	SongsRemoved        int
	ExtractionFailures  int
	CompletedWithErrors bool
}

// Synchronizer reconciles folder contents on disk with the catalog.
type Synchronizer struct {
	store     database.Store
	extractor metadata.Extractor
	batchSize int
	workers   int
	chunkSize int
}

// NewSynchronizer creates a synchronizer using configured sizes.
func NewSynchronizer(store database.Store, extractor metadata.Extractor) *Synchronizer {
	batchSize := config.AppConfig.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	workers := config.AppConfig.ConcurrentScans
	if workers <= 0 {
		workers = 4
	}
	chunkSize := config.AppConfig.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50
	}
	return &Synchronizer{
		store:     store,
		extractor: extractor,
		batchSize: batchSize,
		workers:   workers,
		chunkSize: chunkSize,
	}
}

// ScanFolder indexes every audio file under path that the catalog does
// not already hold. The folder row is created on first scan.
func (s *Synchronizer) ScanFolder(ctx context.Context, path string, progress operations.ProgressReporter) (*ScanSummary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("folder path not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", path)
	}

	folder, err := s.store.GetFolderByPath(path)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		folder, err = s.store.CreateFolder(path, filepath.Base(path), info.ModTime())
		if err != nil {
			return nil, fmt.Errorf("folder create failed: %w", err)
		}
	}

	files, err := DiscoverAudioFiles(path, s.workers)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}

	stored, err := s.storedFileStates(s.store, folder.ID)
	if err != nil {
		return nil, err
	}

	var newFiles []DiscoveredFile
	for _, f := range files {
		if _, ok := stored[strings.ToLower(f.Path)]; !ok {
			newFiles = append(newFiles, f)
		}
	}

	writer := NewBatchWriter(s.store, s.batchSize)
	summary := &ScanSummary{}
	if err := s.addFiles(ctx, folder.ID, newFiles, writer, progress, 0, len(newFiles), summary); err != nil {
		return summary, err
	}
	if err := writer.Flush(); err != nil {
		return summary, err
	}

	summary.SongsAdded = writer.Inserted()
	summary.CompletedWithErrors = summary.CompletedWithErrors || writer.Errored()

	if err := s.store.UpdateFolderModified(folder.ID, info.ModTime()); err != nil {
		return summary, err
	}

	metrics.AddSongsIndexed(summary.SongsAdded)
	s.updateLibraryGauges()
	return summary, nil
}

// RescanFolder reconciles a previously scanned folder. Files gone from
// disk are removed, files with a changed modification time are
// re-created with fresh metadata, new files are added. The whole
// reconcile runs in one transaction; a failure leaves the catalog
// unchanged. A folder whose path vanished entirely is removed from the
// catalog. Returns whether anything changed.
func (s *Synchronizer) RescanFolder(ctx context.Context, folderID int, progress operations.ProgressReporter) (bool, *ScanSummary, error) {
	folder, err := s.store.GetFolderByID(folderID)
	if err != nil {
		return false, nil, err
	}
	if folder == nil {
		return false, nil, fmt.Errorf("folder %d not found", folderID)
	}

	info, err := os.Stat(folder.Path)
	if os.IsNotExist(err) {
		log.Printf("Folder %s no longer exists, removing from catalog", folder.Path)
		removal, rerr := s.RemoveFolder(ctx, folderID)
		if rerr != nil {
			return false, nil, rerr
		}
		return true, &ScanSummary{SongsRemoved: removal.SongsDeleted}, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("folder path not accessible: %w", err)
	}

	files, err := DiscoverAudioFiles(folder.Path, s.workers)
	if err != nil {
		return false, nil, fmt.Errorf("discovery failed: %w", err)
	}
	diskByPath := make(map[string]DiscoveredFile, len(files))
	for _, f := range files {
		diskByPath[strings.ToLower(f.Path)] = f
	}

	summary := &ScanSummary{}
	changed := false

	err = s.store.RescanTx(folderID, func(tx database.SyncTx) error {
		// Three-way diff in path-range chunks
		var removeIDs []string
		var toProcess []DiscoveredFile
		seen := make(map[string]bool)

		afterPath := ""
		for {
			states, err := tx.GetSongFileStates(folderID, afterPath, s.chunkSize)
			if err != nil {
				return err
			}
			for _, st := range states {
				key := strings.ToLower(st.FilePath)
				df, onDisk := diskByPath[key]
				switch {
				case !onDisk:
					removeIDs = append(removeIDs, st.ID)
				case st.FileModifiedUTC.UnixNano() != df.ModTime:
					// Modified file: delete then treat as new
					removeIDs = append(removeIDs, st.ID)
					toProcess = append(toProcess, df)
					seen[key] = true
				default:
					seen[key] = true
				}
			}
			if len(states) < s.chunkSize {
				break
			}
			afterPath = states[len(states)-1].FilePath
		}

		for _, f := range files {
			if !seen[strings.ToLower(f.Path)] {
				toProcess = append(toProcess, f)
			}
		}

		// Capture owning entities before the bulk delete bypasses
		// row loading.
		var albumIDs, artistIDs []int
		if len(removeIDs) > 0 {
			owners, err := tx.GetSongOwners(removeIDs)
			if err != nil {
				return err
			}
			albumSet := make(map[int]bool)
			artistSet := make(map[int]bool)
			for _, o := range owners {
				artistSet[o.ArtistID] = true
				if o.AlbumArtistID != nil {
					artistSet[*o.AlbumArtistID] = true
				}
				if o.AlbumID != nil {
					albumSet[*o.AlbumID] = true
				}
			}
			for id := range albumSet {
				albumIDs = append(albumIDs, id)
			}
			for id := range artistSet {
				artistIDs = append(artistIDs, id)
			}

			if err := tx.DeleteSongsByID(removeIDs); err != nil {
				return err
			}
			summary.SongsRemoved = len(removeIDs)
			changed = true
		}

		writer := NewBatchWriter(tx, s.batchSize)
		if err := s.addFiles(ctx, folderID, toProcess, writer, progress, 0, len(toProcess), summary); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		summary.SongsAdded = writer.Inserted()
		summary.CompletedWithErrors = summary.CompletedWithErrors || writer.Errored()
		if writer.Inserted() > 0 {
			changed = true
		}

		if len(removeIDs) > 0 {
			if _, err := tx.DeleteOrphans(albumIDs, artistIDs); err != nil {
				return err
			}
		}

		return tx.UpdateFolderModified(folderID, info.ModTime())
	})
	if err != nil {
		return false, nil, fmt.Errorf("rescan of %s failed: %w", folder.Path, err)
	}

	metrics.AddSongsIndexed(summary.SongsAdded)
	metrics.AddSongsRemoved(summary.SongsRemoved)
	s.updateLibraryGauges()
	return changed, summary, nil
}

// RefreshAllFolders rescans every stored folder sequentially,
// aggregating sub-progress into an overall percentage. A folder-level
// failure is logged and the loop continues.
func (s *Synchronizer) RefreshAllFolders(ctx context.Context, progress operations.ProgressReporter) (*ScanSummary, error) {
	folders, err := s.store.GetAllFolders()
	if err != nil {
		return nil, err
	}

	total := &ScanSummary{}
	for i, folder := range folders {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		sub := &aggregateProgress{inner: progress, completed: i, total: len(folders)}
		_, summary, err := s.RescanFolder(ctx, folder.ID, sub)
		if err != nil {
			log.Printf("Warning: refresh of folder %s failed: %v", folder.Path, err)
			if progress != nil {
				_ = progress.Log("error", fmt.Sprintf("refresh of %s failed", folder.Path), nil)
			}
			total.CompletedWithErrors = true
			continue
		}
		total.SongsAdded += summary.SongsAdded
		total.SongsRemoved += summary.SongsRemoved
		total.ExtractionFailures += summary.ExtractionFailures
		total.CompletedWithErrors = total.CompletedWithErrors || summary.CompletedWithErrors
	}

	if progress != nil {
		_ = progress.UpdateProgress(len(folders), len(folders), "refresh complete")
	}
	return total, nil
}

// RemoveFolder deletes a folder and everything only it references in
// one transaction, then removes cached art files from disk. Disk
// deletions happen after commit and their failures are only logged.
func (s *Synchronizer) RemoveFolder(ctx context.Context, folderID int) (*database.FolderRemoval, error) {
	removal, err := s.store.RemoveFolderCascade(folderID)
	if err != nil {
		return nil, err
	}

	for _, path := range removal.CoverArtPaths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: could not remove cover art %s: %v", path, err)
		}
	}
	for _, path := range removal.ArtistImagePaths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: could not remove cached artist image %s: %v", path, err)
		}
	}

	metrics.AddSongsRemoved(removal.SongsDeleted)
	s.updateLibraryGauges()
	return removal, nil
}

// addFiles extracts metadata for files in bounded-concurrency chunks
// and stages them on the writer. Extraction failures are logged and
// skipped. Progress is reported after every chunk; cancellation is
// honored between chunks, not within one.
func (s *Synchronizer) addFiles(ctx context.Context, folderID int, files []DiscoveredFile, writer *BatchWriter, progress operations.ProgressReporter, processed, total int, summary *ScanSummary) error {
	for start := 0; start < len(files); start += s.chunkSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := start + s.chunkSize
		if end > len(files) {
			end = len(files)
		}
		chunk := files[start:end]

		results := make([]*metadata.TrackMetadata, len(chunk))
		errs := make([]error, len(chunk))

		var wg sync.WaitGroup
		semaphore := make(chan struct{}, s.workers)
		for i := range chunk {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				semaphore <- struct{}{}        // Acquire
				defer func() { <-semaphore }() // Release
				results[idx], errs[idx] = s.extractor.Extract(chunk[idx].Path)
			}(i)
		}
		wg.Wait()

		for i := range chunk {
			if errs[i] != nil {
				log.Printf("Warning: could not extract metadata from %s: %v", chunk[i].Path, errs[i])
				if progress != nil {
					_ = progress.Log("warn", fmt.Sprintf("metadata extraction failed for %s", chunk[i].Path), nil)
				}
				metrics.IncExtractionFailure()
				summary.ExtractionFailures++
				summary.CompletedWithErrors = true
				continue
			}
			if err := writer.Stage(folderID, chunk[i].Path, results[i]); err != nil {
				return err
			}
		}

		processed += len(chunk)
		if progress != nil {
			current := chunk[len(chunk)-1].Path
			msg := fmt.Sprintf("Indexed %d of %d files", processed, total)
			_ = progress.UpdateProgressPath(processed, total, msg, current)
		}
	}
	return nil
}

// storedFileStates loads every stored (path, mtime) pair for a folder
// in path-range chunks, keyed by lowercased path.
func (s *Synchronizer) storedFileStates(store database.Store, folderID int) (map[string]database.SongFileState, error) {
	stored := make(map[string]database.SongFileState)
	afterPath := ""
	for {
		states, err := store.GetSongFileStates(folderID, afterPath, s.chunkSize)
		if err != nil {
			return nil, err
		}
		for _, st := range states {
			stored[strings.ToLower(st.FilePath)] = st
		}
		if len(states) < s.chunkSize {
			break
		}
		afterPath = states[len(states)-1].FilePath
	}
	return stored, nil
}

func (s *Synchronizer) updateLibraryGauges() {
	if n, err := s.store.CountSongs(); err == nil {
		metrics.SetSongs(n)
	}
	if n, err := s.store.CountArtists(); err == nil {
		metrics.SetArtists(n)
	}
	if n, err := s.store.CountAlbums(); err == nil {
		metrics.SetAlbums(n)
	}
}

// aggregateProgress scales one folder's progress into the overall
// refresh percentage: (completed + folder fraction) / total.
type aggregateProgress struct {
	inner     operations.ProgressReporter
	completed int
	total     int
}

func (p *aggregateProgress) UpdateProgress(current, total int, message string) error {
	return p.UpdateProgressPath(current, total, message, "")
}

func (p *aggregateProgress) UpdateProgressPath(current, total int, message, currentPath string) error {
	if p.inner == nil {
		return nil
	}
	fraction := 0
	if total > 0 {
		fraction = current * 100 / total
	}
	return p.inner.UpdateProgressPath(p.completed*100+fraction, p.total*100, message, currentPath)
}

func (p *aggregateProgress) Log(level, message string, details *string) error {
	if p.inner == nil {
		return nil
	}
	return p.inner.Log(level, message, details)
}

func (p *aggregateProgress) IsCanceled() bool {
	if p.inner == nil {
		return false
	}
	return p.inner.IsCanceled()
}
