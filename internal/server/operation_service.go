// file: internal/server/operation_service.go
// version: 1.1.0
// guid: 6e1a4d8c-2f9b-4573-80ce-5d7a3b9f0e46

package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jdfalk/music-catalog/internal/operations"
)

func (s *Server) getOperationStatus(c *gin.Context) {
	op, err := s.store.GetOperationByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if op == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
		return
	}
	c.JSON(http.StatusOK, op)
}

func (s *Server) getOperationLogs(c *gin.Context) {
	logs, err := s.store.GetOperationLogs(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) cancelOperation(c *gin.Context) {
	if operations.GlobalQueue == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation queue not initialized"})
		return
	}
	if err := operations.GlobalQueue.Cancel(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceled"})
}

func (s *Server) listActiveOperations(c *gin.Context) {
	if operations.GlobalQueue == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation queue not initialized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": operations.GlobalQueue.ActiveOperations()})
}

func (s *Server) listRecentOperations(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	ops, err := s.store.GetRecentOperations(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}
