package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wordpress-plugin-generator/models"
)

// SessionFormatVersion is the current project file format.
const SessionFormatVersion = 1

// EncodeSession renders a project file as indented JSON. A missing ID or
// save time is filled in.
func EncodeSession(s models.SessionFile, now time.Time) ([]byte, error) {
	s.FormatVersion = SessionFormatVersion
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.SavedAt = now.UTC()
	if s.Conversation == nil {
		s.Conversation = []models.ChatMessage{}
	}
	if s.Versions == nil {
		s.Versions = []models.PluginVersion{}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeSession parses a project file. Unknown fields are rejected so a
// wrong file is reported instead of silently loading as an empty project.
func DecodeSession(data []byte) (models.SessionFile, error) {
	var s models.SessionFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return models.SessionFile{}, fmt.Errorf("failed to parse session file: %w", err)
	}

	if s.FormatVersion == 0 {
		return models.SessionFile{}, fmt.Errorf("session file has no formatVersion")
	}
	if s.FormatVersion > SessionFormatVersion {
		return models.SessionFile{}, fmt.Errorf("session file format %d is newer than supported format %d", s.FormatVersion, SessionFormatVersion)
	}
	if s.Connection != nil {
		if err := models.Validate(*s.Connection); err != nil {
			return models.SessionFile{}, fmt.Errorf("session file connection is invalid: %w", err)
		}
	}
	return s, nil
}
