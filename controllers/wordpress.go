package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/services"
	"wordpress-plugin-generator/utils"
)

type verifyAPIRequest struct {
	APIKey  string `json:"apiKey"`
	SiteURL string `json:"siteUrl"`
}

type deletePluginRequest struct {
	Connection models.ConnectionDescriptor `json:"connection"`
	PluginSlug string                      `json:"pluginSlug"`
}

type uploadFilesRequest struct {
	Artifact models.PluginArtifact `json:"artifact"`
	FTP      models.FTPCredentials `json:"ftp"`
}

type debugLogRequest struct {
	Connection models.ConnectionDescriptor `json:"connection"`
	Query      models.DebugLogQuery        `json:"query"`
	PreferRaw  bool                        `json:"preferRaw"`
}

// Health answers liveness probes.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// VerifyAPI checks a site URL and API key against the connector plugin.
func (h *Handler) VerifyAPI(c *gin.Context) {
	var req verifyAPIRequest
	if !bindJSON(c, &req) {
		return
	}

	result := h.verifier.VerifyAPI(c.Request.Context(), req.APIKey, req.SiteURL)
	h.recordVerification("API", req.SiteURL, result)
	c.JSON(http.StatusOK, result)
}

// VerifyFTP checks FTP/FTPS/SFTP credentials by listing the WordPress root.
func (h *Handler) VerifyFTP(c *gin.Context) {
	var creds models.FTPCredentials
	if !bindJSON(c, &creds) || !validate(c, creds) {
		return
	}

	result := h.verifier.VerifyFTP(c.Request.Context(), creds)
	h.recordVerification(services.ProtocolName(creds), creds.Host, result)
	c.JSON(http.StatusOK, result)
}

// SetupConnection validates a full descriptor and probes each transport.
func (h *Handler) SetupConnection(c *gin.Context) {
	var conn models.ConnectionDescriptor
	if !bindJSON(c, &conn) {
		return
	}

	result, err := h.verifier.SetupConnection(c.Request.Context(), conn)
	if err != nil {
		respondInvalid(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PackagePlugin returns the plugin ZIP for download.
func (h *Handler) PackagePlugin(c *gin.Context) {
	var artifact models.PluginArtifact
	if !bindJSON(c, &artifact) || !validate(c, artifact) {
		return
	}

	archive, err := services.Package(artifact)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to package the plugin: " + err.Error()})
		return
	}

	slug := services.PluginSlug(artifact)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", slug+".zip"))
	c.Data(http.StatusOK, "application/zip", archive)
}

// DeployPlugin installs, updates or deletes a plugin. Remote failures are
// reported in the outcome with status 200.
func (h *Handler) DeployPlugin(c *gin.Context) {
	var req models.DeploymentRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := validateDeployment(req); err != nil {
		respondInvalid(c, err)
		return
	}

	outcome := h.deployer.Deploy(c.Request.Context(), req)
	c.JSON(http.StatusOK, outcome)
}

// DeletePlugin removes a plugin through the delete fallback chain.
func (h *Handler) DeletePlugin(c *gin.Context) {
	var req deletePluginRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.PluginSlug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Plugin slug is required."})
		return
	}

	outcome := h.deployer.DeletePlugin(c.Request.Context(), req.Connection, req.PluginSlug)
	c.JSON(http.StatusOK, outcome)
}

// UploadPluginFiles copies the plugin files straight into wp-content/plugins.
func (h *Handler) UploadPluginFiles(c *gin.Context) {
	var req uploadFilesRequest
	if !bindJSON(c, &req) || !validate(c, req.Artifact) || !validate(c, req.FTP) {
		return
	}

	outcome := h.deployer.UploadPluginFiles(c.Request.Context(), req.Artifact, req.FTP)
	c.JSON(http.StatusOK, outcome)
}

// GetDebugLog returns the filtered WordPress debug log.
func (h *Handler) GetDebugLog(c *gin.Context) {
	var req debugLogRequest
	if !bindJSON(c, &req) || !validate(c, req.Query) {
		return
	}

	result, err := h.logs.Retrieve(c.Request.Context(), req.Query, req.Connection, req.PreferRaw)
	if err != nil {
		o := services.ClassifyTransportError(err)
		utils.LogWarn("Debug log retrieval failed", "site", req.Connection.SiteURL, "errorKind", o.ErrorKind, "error", err)
		c.JSON(http.StatusOK, gin.H{
			"success":              false,
			"errorKind":            o.ErrorKind,
			"message":              o.Message,
			"troubleshootingSteps": o.TroubleshootingSteps,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "debugLog": result})
}

// GetActivities retrieves a list of recent activities.
func (h *Handler) GetActivities(c *gin.Context) {
	activities, err := h.activity.List()
	if err != nil {
		utils.LogError("Failed to retrieve activities", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve activities."})
		return
	}
	c.JSON(http.StatusOK, activities)
}

// validateDeployment checks the fields the operation needs. The debugging
// invariant of the descriptor belongs to connection setup and is not
// re-checked here.
func validateDeployment(req models.DeploymentRequest) error {
	switch req.Operation {
	case models.OperationInstall, models.OperationUpdate:
		if err := models.Validate(req.Artifact); err != nil {
			return err
		}
	case models.OperationDelete:
		if req.Artifact.Slug == "" {
			return &models.ValidationErrors{Errors: []models.ValidationError{
				{Field: "artifact.slug", Message: "slug is required"},
			}}
		}
	default:
		return &models.ValidationErrors{Errors: []models.ValidationError{
			{Field: "operation", Message: "operation must be one of: install update delete"},
		}}
	}
	if req.Connection.FTP != nil {
		if err := models.Validate(*req.Connection.FTP); err != nil {
			return err
		}
	}
	if !req.Connection.HasREST() && !req.Connection.HasFTP() {
		return errors.New("a REST or FTP/SFTP connection is required")
	}
	return nil
}

func (h *Handler) recordVerification(kind, target string, result models.VerificationResult) {
	if result.OK {
		h.record(services.ActivityInfo, fmt.Sprintf("%s connection to %s verified.", kind, target), "")
		return
	}
	h.record(services.ActivityError, fmt.Sprintf("%s connection to %s failed: %s", kind, target, result.Message), "")
}
