package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/services"
	"wordpress-plugin-generator/utils"
)

type generateRequest struct {
	Conversation []models.ChatMessage `json:"conversation"`
}

// Generate streams the LLM reply as server-sent events: "delta" events carry
// text fragments, then one "done" or "error" event closes the stream.
func (h *Handler) Generate(c *gin.Context) {
	if h.generator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Code generation is not configured."})
		return
	}

	var req generateRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Conversation) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Conversation is required."})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	reply, err := h.generator.Generate(c.Request.Context(), req.Conversation, func(text string) {
		c.SSEvent("delta", gin.H{"text": text})
		c.Writer.Flush()
	})
	if err != nil {
		utils.LogError("Code generation failed", "error", err, "requestID", c.GetString("requestID"))
		c.SSEvent("error", gin.H{"error": err.Error(), "partial": reply})
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", gin.H{"reply": reply, "code": services.ExtractCode(reply)})
	c.Writer.Flush()
}
