package models

import (
	"fmt"

	"github.com/dgrijalva/jwt-go"
)

// StructureKind selects the file layout of a packaged plugin.
type StructureKind string

const (
	StructureSimplified  StructureKind = "simplified"
	StructureTraditional StructureKind = "traditional"
)

// PluginArtifact is the logical plugin shipped to a site.
// Every revision replaces MainCode wholesale.
type PluginArtifact struct {
	Slug          string        `json:"slug" validate:"required"`
	DisplayName   string        `json:"displayName"`
	MainCode      string        `json:"mainCode" validate:"required"`
	StructureKind StructureKind `json:"structureKind" validate:"omitempty,oneof=simplified traditional"`
}

// Protocol is the file transport used for direct filesystem access.
type Protocol string

const (
	ProtocolFTP  Protocol = "ftp"
	ProtocolSFTP Protocol = "sftp"
)

// FTPCredentials holds the details for FTP, FTPS or SFTP access.
type FTPCredentials struct {
	Host     string   `json:"host" validate:"required"`
	Port     int      `json:"port" validate:"min=0,max=65535"`
	Username string   `json:"username" validate:"required"`
	Password string   `json:"password"`
	Protocol Protocol `json:"protocol" validate:"required,oneof=ftp sftp"`
	RootPath string   `json:"rootPath"`
	Secure   bool     `json:"secure"`
}

// Address returns host:port, filling in the protocol default port.
func (f FTPCredentials) Address() string {
	port := f.Port
	if port == 0 {
		if f.Protocol == ProtocolSFTP {
			port = 22
		} else {
			port = 21
		}
	}
	return fmt.Sprintf("%s:%d", f.Host, port)
}

// ConnectionDescriptor is everything needed to reach a target WordPress site.
type ConnectionDescriptor struct {
	APIKey           string          `json:"apiKey"`
	SiteURL          string          `json:"siteUrl" validate:"omitempty,url"`
	FTP              *FTPCredentials `json:"ftp,omitempty" validate:"required_if=DebuggingEnabled true"`
	DebuggingEnabled bool            `json:"debuggingEnabled"`
}

// HasREST reports whether the custom REST endpoints can be addressed.
func (c ConnectionDescriptor) HasREST() bool {
	return c.APIKey != "" && c.SiteURL != ""
}

// HasFTP reports whether direct filesystem access is configured.
func (c ConnectionDescriptor) HasFTP() bool {
	return c.FTP != nil && c.FTP.Host != ""
}

// User represents a user for authentication.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Claims represents the JWT claims.
type Claims struct {
	Username string `json:"username"`
	jwt.StandardClaims
}

// Activity represents a log entry for an action.
type Activity struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Level      string `json:"level"` // e.g., "info", "error"
	PluginSlug string `json:"pluginSlug,omitempty"`
}
