package models

import "time"

// ChatMessage is one turn of the plugin-design conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PluginVersion is a snapshot of MainCode kept in the version history.
type PluginVersion struct {
	Version     int       `json:"version"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SessionFile is the portable project file users download and re-upload.
// Credentials are included on purpose so a project can be resumed as-is.
type SessionFile struct {
	FormatVersion int                   `json:"formatVersion"`
	ID            string                `json:"id"`
	SavedAt       time.Time             `json:"savedAt"`
	Artifact      PluginArtifact        `json:"artifact"`
	Connection    *ConnectionDescriptor `json:"connection,omitempty"`
	Conversation  []ChatMessage         `json:"conversation"`
	Versions      []PluginVersion       `json:"versions"`
}
