package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wordpress-plugin-generator/config"
	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/services"
)

// PluginDeployer runs deployment requests.
type PluginDeployer interface {
	Deploy(ctx context.Context, req models.DeploymentRequest) models.DeploymentOutcome
	DeletePlugin(ctx context.Context, conn models.ConnectionDescriptor, slug string) models.DeploymentOutcome
	UploadPluginFiles(ctx context.Context, artifact models.PluginArtifact, creds models.FTPCredentials) models.DeploymentOutcome
}

// ConnectionVerifier runs pre-flight checks.
type ConnectionVerifier interface {
	VerifyAPI(ctx context.Context, apiKey, siteURL string) models.VerificationResult
	VerifyFTP(ctx context.Context, creds models.FTPCredentials) models.VerificationResult
	SetupConnection(ctx context.Context, conn models.ConnectionDescriptor) (services.SetupResult, error)
}

// DebugLogReader fetches the remote debug log.
type DebugLogReader interface {
	Retrieve(ctx context.Context, q models.DebugLogQuery, conn models.ConnectionDescriptor, preferRaw bool) (models.DebugLogResult, error)
}

// CodeGenerator streams an LLM reply for a conversation.
type CodeGenerator interface {
	Generate(ctx context.Context, conversation []models.ChatMessage, onDelta func(string)) (string, error)
}

// ActivityFeed records and lists activity entries.
type ActivityFeed interface {
	services.ActivityRecorder
	List() ([]models.Activity, error)
}

// Handler serves the HTTP API.
type Handler struct {
	auth      config.AuthConfig
	deployer  PluginDeployer
	verifier  ConnectionVerifier
	logs      DebugLogReader
	generator CodeGenerator
	activity  ActivityFeed
}

// NewHandler wires the API. generator may be nil when no LLM key is configured.
func NewHandler(auth config.AuthConfig, deployer PluginDeployer, verifier ConnectionVerifier,
	logs DebugLogReader, generator CodeGenerator, activity ActivityFeed) *Handler {
	return &Handler{
		auth:      auth,
		deployer:  deployer,
		verifier:  verifier,
		logs:      logs,
		generator: generator,
		activity:  activity,
	}
}

// bindJSON decodes the body into v and answers 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

// validate checks v and answers 400 with the field errors on failure.
func validate(c *gin.Context, v any) bool {
	err := models.Validate(v)
	if err == nil {
		return true
	}
	respondInvalid(c, err)
	return false
}

func respondInvalid(c *gin.Context, err error) {
	var verrs *models.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "errors": verrs.Errors})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *Handler) record(level, message, slug string) {
	if h.activity != nil {
		h.activity.Record(level, message, slug)
	}
}
