// file: internal/server/song_service.go
// version: 1.2.0
// guid: 3b8d5f0a-7c2e-46b9-91d4-e6a0c8f5b273

package server

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/jdfalk/music-catalog/internal/config"
	"github.com/jdfalk/music-catalog/internal/playlist"
)

const maxSearchCandidates = 2000

func (s *Server) listSongs(c *gin.Context) {
	limit, offset := paging(c, 100)
	songs, err := s.store.GetAllSongs(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, _ := s.store.CountSongs()
	c.JSON(http.StatusOK, gin.H{"songs": songs, "total": total})
}

func (s *Server) getSong(c *gin.Context) {
	song, err := s.store.GetSongByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if song == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "song not found"})
		return
	}

	genres, err := s.store.GetSongGenres(song.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"song": song, "genres": genres})
}

// searchSongs ranks titles by fuzzy match quality, falling back to a
// substring match in storage for large result sets.
func (s *Server) searchSongs(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	limit, _ := paging(c, 50)

	candidates, err := s.store.GetAllSongs(maxSearchCandidates, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	titles := make([]string, len(candidates))
	for i, song := range candidates {
		titles[i] = song.Title
	}

	ranks := fuzzy.RankFindNormalizedFold(query, titles)
	sort.Sort(ranks)

	results := candidates[:0:0]
	for _, rank := range ranks {
		results = append(results, candidates[rank.OriginalIndex])
		if len(results) >= limit {
			break
		}
	}

	// Titles the fuzzy pass missed may still match on substring
	if len(results) < limit {
		seen := make(map[string]bool, len(results))
		for _, song := range results {
			seen[song.ID] = true
		}
		extra, err := s.store.SearchSongs(query, limit-len(results))
		if err == nil {
			for _, song := range extra {
				if !seen[song.ID] {
					results = append(results, song)
				}
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"songs": results})
}

func (s *Server) listArtists(c *gin.Context) {
	limit, offset := paging(c, 100)
	artists, err := s.store.GetAllArtists(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, _ := s.store.CountArtists()
	c.JSON(http.StatusOK, gin.H{"artists": artists, "total": total})
}

func (s *Server) getArtist(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artist id"})
		return
	}
	artist, err := s.store.GetArtistByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if artist == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artist not found"})
		return
	}
	c.JSON(http.StatusOK, artist)
}

func (s *Server) createPlaylist(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	playlist, err := s.store.CreatePlaylist(req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, playlist)
}

func (s *Server) addPlaylistSong(c *gin.Context) {
	playlistID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	var req struct {
		SongID   string `json:"song_id" binding:"required"`
		Position int    `json:"position"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.AddPlaylistSong(playlistID, req.SongID, req.Position); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "added"})
}

func (s *Server) listPlaylistSongs(c *gin.Context) {
	playlistID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}
	songs, err := s.store.GetPlaylistSongs(playlistID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": songs})
}

func (s *Server) exportPlaylist(c *gin.Context) {
	playlistID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid playlist id"})
		return
	}

	path, err := playlist.ExportM3U(s.store, playlistID, config.AppConfig.PlaylistDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func paging(c *gin.Context, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
