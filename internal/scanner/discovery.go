// file: internal/scanner/discovery.go
// version: 1.1.0
// guid: 6a3d9f2c-8b4e-41d7-95c2-0e7b3a8d6f49

package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jdfalk/music-catalog/internal/config"
)

// DiscoveredFile is one on-disk audio file found under a folder root.
type DiscoveredFile struct {
	Path    string
	ModTime int64 // UnixNano
}

// DiscoverAudioFiles walks rootDir and returns every supported audio
// file, sorted by path. Directories are listed in parallel with
// bounded workers.
func DiscoverAudioFiles(rootDir string, workers int) ([]DiscoveredFile, error) {
	if workers < 1 {
		workers = 1
	}

	// Collect all directories first
	var dirs []string
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var files []DiscoveredFile
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, workers)

	for _, dir := range dirs {
		wg.Add(1)
		go func(scanDir string) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			entries, err := os.ReadDir(scanDir)
			if err != nil {
				return
			}

			var local []DiscoveredFile
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				path := filepath.Join(scanDir, entry.Name())
				if !config.IsSupportedAudioFile(path) {
					continue
				}
				info, err := entry.Info()
				if err != nil {
					continue
				}
				local = append(local, DiscoveredFile{
					Path:    path,
					ModTime: info.ModTime().UnixNano(),
				})
			}

			if len(local) > 0 {
				mu.Lock()
				files = append(files, local...)
				mu.Unlock()
			}
		}(dir)
	}

	wg.Wait()

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
