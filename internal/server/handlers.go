package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bdougie/livefeed/internal/extractor"
	"github.com/bdougie/livefeed/internal/normalizer"
	"github.com/bdougie/livefeed/internal/orchestrator"
)

var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to LiveFeed Server"})
}

func (s *Server) handleProcessImage(c *gin.Context) {
	blob, ok := s.readUpload(c)
	if !ok {
		return
	}
	if !supportedImageTypes[blob.ContentType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported file type: %s", blob.ContentType)})
		return
	}

	description, err := s.describer.Describe(c.Request.Context(), blob)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recognized_text": description})
}

func (s *Server) handleProcessVideo(c *gin.Context) {
	blob, ok := s.readUpload(c)
	if !ok {
		return
	}

	// Sampling interval is fixed server-side; the orchestrator applies the
	// configured default when 0 is passed.
	descriptions, err := s.describer.DescribeVideo(c.Request.Context(), blob, 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"descriptions": descriptions})
}

type speechRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSpeech(c *gin.Context) {
	var req speechRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No query provided"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": fmt.Sprintf("Received your query: %s", req.Query)})
}

// readUpload pulls the multipart file into a MediaBlob. Writes the error
// response itself and reports ok=false when the request is unusable.
func (s *Server) readUpload(c *gin.Context) (orchestrator.MediaBlob, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return orchestrator.MediaBlob{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("failed to read upload", "filename", header.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return orchestrator.MediaBlob{}, false
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty file received"})
		return orchestrator.MediaBlob{}, false
	}

	return orchestrator.MediaBlob{
		Data:        data,
		ContentType: contentType(header),
		Filename:    header.Filename,
	}, true
}

// fail maps pipeline errors onto client/server status codes. Validation
// failures carry their message; internal failures stay generic with the
// detail in the logs.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty file received"})
	case errors.Is(err, orchestrator.ErrInvalidType):
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid file type: %v", err)})
	case errors.Is(err, normalizer.ErrDecode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not decode image"})
	case errors.Is(err, extractor.ErrOpen):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not open video"})
	case errors.Is(err, orchestrator.ErrNoFrames):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No frames extracted"})
	default:
		s.logger.Error("request processing failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func contentType(header *multipart.FileHeader) string {
	return header.Header.Get("Content-Type")
}
