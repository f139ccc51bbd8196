// file: internal/server/folder_service.go
// version: 1.3.0
// guid: 2d7b9f4e-0c5a-4831-ae6d-9b3f7c1e8a52

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jdfalk/music-catalog/internal/operations"
)

func (s *Server) listFolders(c *gin.Context) {
	folders, err := s.store.GetAllFolders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type folderInfo struct {
		ID          int    `json:"id"`
		Path        string `json:"path"`
		DisplayName string `json:"display_name"`
		SongCount   int    `json:"song_count"`
	}

	out := make([]folderInfo, 0, len(folders))
	for _, f := range folders {
		count, _ := s.store.CountSongsByFolder(f.ID)
		out = append(out, folderInfo{
			ID:          f.ID,
			Path:        f.Path,
			DisplayName: f.DisplayName,
			SongCount:   count,
		})
	}

	c.JSON(http.StatusOK, gin.H{"folders": out})
}

// addFolder registers a folder and queues its initial scan.
func (s *Server) addFolder(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := req.Path
	id, ok := s.enqueue(c, operations.TypeScan, &path, func(ctx context.Context, progress operations.ProgressReporter) error {
		_ = progress.Log("info", fmt.Sprintf("Starting scan of folder: %s", path), nil)
		summary, err := s.syncer.ScanFolder(ctx, path, progress)
		if err != nil {
			return err
		}
		_ = progress.Log("info", fmt.Sprintf("Scan finished: %d songs added, %d extraction failures", summary.SongsAdded, summary.ExtractionFailures), nil)
		if summary.CompletedWithErrors {
			_ = progress.Log("warn", "scan completed with errors", nil)
		}
		return nil
	})
	if !ok {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"operation_id": id})
}

// removeFolder queues a cascading folder removal.
func (s *Server) removeFolder(c *gin.Context) {
	folderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder id"})
		return
	}

	folder, err := s.store.GetFolderByID(folderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if folder == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "folder not found"})
		return
	}

	path := folder.Path
	id, ok := s.enqueue(c, operations.TypeRemove, &path, func(ctx context.Context, progress operations.ProgressReporter) error {
		removal, err := s.syncer.RemoveFolder(ctx, folderID)
		if err != nil {
			return err
		}
		_ = progress.Log("info", fmt.Sprintf("Removed folder %s: %d songs, %d albums, %d artists deleted",
			path, removal.SongsDeleted, removal.AlbumsDeleted, removal.ArtistsDeleted), nil)
		return nil
	})
	if !ok {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"operation_id": id})
}

// startRescan queues an incremental rescan of one folder.
func (s *Server) startRescan(c *gin.Context) {
	folderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder id"})
		return
	}

	folder, err := s.store.GetFolderByID(folderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if folder == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "folder not found"})
		return
	}

	path := folder.Path
	id, ok := s.enqueue(c, operations.TypeRescan, &path, func(ctx context.Context, progress operations.ProgressReporter) error {
		changed, summary, err := s.syncer.RescanFolder(ctx, folderID, progress)
		if err != nil {
			return err
		}
		_ = progress.Log("info", fmt.Sprintf("Rescan finished (changed=%v): %d added, %d removed",
			changed, summary.SongsAdded, summary.SongsRemoved), nil)
		return nil
	})
	if !ok {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"operation_id": id})
}

// startScan queues a scan of an arbitrary folder path.
func (s *Server) startScan(c *gin.Context) {
	var req struct {
		FolderPath string `json:"folder_path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := req.FolderPath
	id, ok := s.enqueue(c, operations.TypeScan, &path, func(ctx context.Context, progress operations.ProgressReporter) error {
		_, err := s.syncer.ScanFolder(ctx, path, progress)
		return err
	})
	if !ok {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"operation_id": id})
}

// startRefresh queues a rescan of every stored folder.
func (s *Server) startRefresh(c *gin.Context) {
	id, ok := s.enqueue(c, operations.TypeRefresh, nil, func(ctx context.Context, progress operations.ProgressReporter) error {
		summary, err := s.syncer.RefreshAllFolders(ctx, progress)
		if err != nil {
			return err
		}
		_ = progress.Log("info", fmt.Sprintf("Refresh finished: %d added, %d removed", summary.SongsAdded, summary.SongsRemoved), nil)
		return nil
	})
	if !ok {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"operation_id": id})
}
