package controllers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/services"
	"wordpress-plugin-generator/utils"
)

const maxSessionFileBytes = 10 << 20

// ExportSession returns the project as a downloadable JSON file.
func (h *Handler) ExportSession(c *gin.Context) {
	var session models.SessionFile
	if !bindJSON(c, &session) {
		return
	}

	data, err := services.EncodeSession(session, time.Now())
	if err != nil {
		utils.LogError("Failed to encode session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export session."})
		return
	}

	name := services.PluginSlug(session.Artifact) + "-session.json"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/json", data)
}

// ImportSession parses an uploaded project file, either as the raw request
// body or as the "file" field of a multipart form.
func (h *Handler) ImportSession(c *gin.Context) {
	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Session file is required."})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read session file."})
			return
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSessionFileBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read session file."})
		return
	}
	if len(data) > maxSessionFileBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Session file is too large."})
		return
	}

	session, err := services.DecodeSession(data)
	if err != nil {
		utils.LogWarn("Rejected session file", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}
