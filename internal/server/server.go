// file: internal/server/server.go
// version: 1.6.0
// guid: 8a5c3e1f-6d2b-49a7-b0e8-4f7c9d2a6b35

package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	ulid "github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdfalk/music-catalog/internal/database"
	"github.com/jdfalk/music-catalog/internal/enrichment"
	"github.com/jdfalk/music-catalog/internal/metrics"
	"github.com/jdfalk/music-catalog/internal/operations"
	"github.com/jdfalk/music-catalog/internal/realtime"
	"github.com/jdfalk/music-catalog/internal/scanner"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *gin.Engine

	store    database.Store
	syncer   *scanner.Synchronizer
	enricher *enrichment.Worker
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new server instance
func NewServer(store database.Store, syncer *scanner.Synchronizer, enricher *enrichment.Worker) *Server {
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Register metrics (idempotent)
	metrics.Register()

	server := &Server{
		router:   router,
		store:    store,
		syncer:   syncer,
		enricher: enricher,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until an interrupt signal.
func (s *Server) Start(cfg ServerConfig) error {
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if realtime.GlobalHub != nil {
		realtime.GlobalHub.Broadcast(&realtime.Event{
			Type: "system.shutdown",
			Data: map[string]interface{}{
				"message": "Server is shutting down",
			},
		})
		// Give clients a moment to receive the event
		time.Sleep(500 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server exited")
	return nil
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/api/health", s.healthCheck)

	// Real-time event stream
	s.router.GET("/api/events", s.handleEvents)

	api := s.router.Group("/api/v1")
	{
		// Folder management
		api.GET("/folders", s.listFolders)
		api.POST("/folders", s.addFolder)
		api.DELETE("/folders/:id", s.removeFolder)
		api.POST("/folders/:id/rescan", s.startRescan)

		// Scan operations
		api.POST("/operations/scan", s.startScan)
		api.POST("/operations/refresh", s.startRefresh)
		api.GET("/operations/:id/status", s.getOperationStatus)
		api.GET("/operations/:id/logs", s.getOperationLogs)
		api.DELETE("/operations/:id", s.cancelOperation)
		api.GET("/operations/active", s.listActiveOperations)
		api.GET("/operations/recent", s.listRecentOperations)

		// Songs
		api.GET("/songs", s.listSongs)
		api.GET("/songs/search", s.searchSongs)
		api.GET("/songs/:id", s.getSong)

		// Artists and enrichment
		api.GET("/artists", s.listArtists)
		api.GET("/artists/:id", s.getArtist)
		api.POST("/enrichment/start", s.startEnrichment)

		// Playlists
		api.GET("/playlists/:id/songs", s.listPlaylistSongs)
		api.POST("/playlists", s.createPlaylist)
		api.POST("/playlists/:id/songs", s.addPlaylistSong)
		api.POST("/playlists/:id/export", s.exportPlaylist)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	status := gin.H{"status": "ok", "timestamp": time.Now().UTC()}
	if s.store != nil {
		if n, err := s.store.CountSongs(); err == nil {
			status["songs"] = n
		}
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleEvents(c *gin.Context) {
	if realtime.GlobalHub == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event hub not initialized"})
		return
	}
	realtime.GlobalHub.HandleSSE(c)
}

func (s *Server) startEnrichment(c *gin.Context) {
	if s.enricher == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrichment not configured"})
		return
	}
	started := s.enricher.Start(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"started": started, "running": s.enricher.IsRunning()})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// enqueue creates an operation row and queues its function, returning
// the operation id.
func (s *Server) enqueue(c *gin.Context, opType string, folderPath *string, fn operations.OperationFunc) (string, bool) {
	if operations.GlobalQueue == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation queue not initialized"})
		return "", false
	}

	id := ulid.Make().String()
	if _, err := s.store.CreateOperation(id, opType, folderPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return "", false
	}

	if err := operations.GlobalQueue.Enqueue(id, opType, operations.PriorityNormal, fn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return "", false
	}

	return id, true
}
