package models

import "time"

// Operation is the change a DeploymentRequest makes to remote plugin state.
type Operation string

const (
	OperationInstall Operation = "install"
	OperationUpdate  Operation = "update"
	OperationDelete  Operation = "delete"
)

// DeploymentRequest is one attempt to change remote plugin state.
// It is passed by value and never mutated by the engine.
type DeploymentRequest struct {
	Artifact    PluginArtifact       `json:"artifact"`
	Connection  ConnectionDescriptor `json:"connection"`
	Operation   Operation            `json:"operation" validate:"required,oneof=install update delete"`
	ForceUpdate bool                 `json:"forceUpdate"`
	DeleteFirst bool                 `json:"deleteFirst"`
}

// ErrorKind classifies a failure for the UI.
type ErrorKind string

const (
	ErrorKindNone                     ErrorKind = ""
	ErrorKindConnection               ErrorKind = "ConnectionError"
	ErrorKindAuthentication           ErrorKind = "AuthenticationError"
	ErrorKindSecureConnectionRequired ErrorKind = "SecureConnectionRequired"
	ErrorKindFilesystemConstants      ErrorKind = "FilesystemConstantsError"
	ErrorKindPHPSyntax                ErrorKind = "PHPSyntaxError"
	ErrorKindPHP                      ErrorKind = "PHPError"
	ErrorKindWordPressCritical        ErrorKind = "WordPressCriticalError"
	ErrorKindHTMLResponse             ErrorKind = "HtmlResponse"
	ErrorKindEmptyResponse            ErrorKind = "EmptyResponse"
	ErrorKindJSONParse                ErrorKind = "JSONParseError"
	ErrorKindParse                    ErrorKind = "ParseError"
	ErrorKindTimeout                  ErrorKind = "TimeoutError"
	ErrorKindActivationWarning        ErrorKind = "ActivationWarning"
	ErrorKindRemote                   ErrorKind = "RemoteError"
	ErrorKindValidation               ErrorKind = "ValidationError"
	ErrorKindPackaging                ErrorKind = "PackagingError"
)

// DeploymentStatus is the terminal status of a deployment.
type DeploymentStatus string

const (
	StatusSuccess DeploymentStatus = "success"
	StatusFailure DeploymentStatus = "failure"
)

// DeploymentOutcome is the immutable result returned for one DeploymentRequest.
type DeploymentOutcome struct {
	Status DeploymentStatus `json:"status"`

	Activated bool   `json:"activated"`
	PluginURL string `json:"pluginUrl,omitempty"`
	AdminURL  string `json:"adminUrl,omitempty"`

	ErrorKind            ErrorKind `json:"errorKind,omitempty"`
	Message              string    `json:"message"`
	Details              string    `json:"details,omitempty"`
	TroubleshootingSteps []string  `json:"troubleshootingSteps,omitempty"`
	WAFBlocked           bool      `json:"wafBlocked,omitempty"`

	// Transport names the transport that produced the final result.
	Transport string          `json:"transport,omitempty"`
	DebugLog  *DebugLogResult `json:"debugLog,omitempty"`
}

// Succeeded reports whether the outcome is a success (activation warnings included).
func (o DeploymentOutcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// DebugLogQuery selects and trims lines from a WordPress debug log.
type DebugLogQuery struct {
	PluginSlug    string    `json:"pluginSlug"`
	FilterByTime  bool      `json:"filterByTime"`
	TimeThreshold time.Time `json:"timeThreshold"`
	MaxLines      int       `json:"maxLines" validate:"min=0"`
}

// DebugLogResult carries the filtered log. PluginFilteredLog is nil when no
// slug filter was applied or when nothing matched.
type DebugLogResult struct {
	FullLog           string  `json:"fullLog"`
	PluginFilteredLog *string `json:"pluginFilteredLog"`
	Source            string  `json:"source,omitempty"`
}

// VerificationResult is the answer to a pre-flight connection probe.
type VerificationResult struct {
	OK                   bool      `json:"ok"`
	Message              string    `json:"message"`
	ErrorKind            ErrorKind `json:"errorKind,omitempty"`
	TroubleshootingSteps []string  `json:"troubleshootingSteps,omitempty"`
	SiteName             string    `json:"siteName,omitempty"`
	WordPressVersion     string    `json:"wordpressVersion,omitempty"`
}
