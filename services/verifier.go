package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/utils"
)

// Verifier runs pre-flight checks against a site. Only SetupConnection
// changes remote state, and only when debugging is requested.
type Verifier struct {
	rest          RESTPoster
	dialer        SessionDialer
	verifyTimeout time.Duration
}

func NewVerifier(rest RESTPoster, dialer SessionDialer, verifyTimeout time.Duration) *Verifier {
	return &Verifier{rest: rest, dialer: dialer, verifyTimeout: verifyTimeout}
}

// VerifyAPI checks the API key against the connector's validate endpoint.
func (v *Verifier) VerifyAPI(ctx context.Context, apiKey, siteURL string) models.VerificationResult {
	if apiKey == "" || siteURL == "" {
		return models.VerificationResult{
			Message:   "Site URL and API key are required",
			ErrorKind: models.ErrorKindValidation,
		}
	}

	resp, err := v.rest.PostJSON(ctx, siteURL, EndpointValidate, validateRequest{APIKey: apiKey, VerifyOnly: true}, v.verifyTimeout)
	var o Outcome
	if err != nil {
		o = ClassifyTransportError(err)
	} else {
		o = Classify(resp.Status, resp.Body)
	}

	if !o.Succeeded() {
		utils.LogWarn("API verification failed", "site", siteURL, "errorKind", o.ErrorKind, "message", o.Message)
		return failedVerification(o)
	}

	utils.LogInfo("API verification succeeded", "site", siteURL)
	return models.VerificationResult{
		OK:               true,
		Message:          orDefault(o.Message, "Connected to the site"),
		SiteName:         firstString(o, "site_name", "name"),
		WordPressVersion: firstString(o, "wp_version", "version"),
	}
}

// VerifyFTP opens a session and lists the WordPress root.
func (v *Verifier) VerifyFTP(ctx context.Context, creds models.FTPCredentials) models.VerificationResult {
	ctx, cancel := context.WithTimeout(ctx, v.verifyTimeout)
	defer cancel()

	root := WordPressPath(creds, "")
	var entries []RemoteEntry
	err := WithSession(ctx, v.dialer, creds, func(s FileSession) error {
		var err error
		entries, err = s.ListDirectory(root)
		return err
	})
	if errors.Is(err, ErrRemoteNotFound) {
		return models.VerificationResult{
			Message:              fmt.Sprintf("Connected, but %s does not exist", root),
			ErrorKind:            models.ErrorKindConnection,
			TroubleshootingSteps: []string{"Check the WordPress root path in the connection settings"},
		}
	}
	if err != nil {
		o := ClassifyTransportError(err)
		utils.LogWarn("FTP verification failed", "host", creds.Host, "errorKind", o.ErrorKind, "error", err)
		return failedVerification(o)
	}

	result := models.VerificationResult{
		OK:      true,
		Message: fmt.Sprintf("Connected over %s, %d entries in %s", ProtocolName(creds), len(entries), root),
	}
	if !containsEntry(entries, "wp-content") {
		result.Message += "; wp-content was not found, check the root path"
	}
	utils.LogInfo("FTP verification succeeded", "host", creds.Host, "protocol", creds.Protocol)
	return result
}

// SetupResult is the combined answer for a full connection setup.
type SetupResult struct {
	API       *models.VerificationResult `json:"api,omitempty"`
	FTP       *models.VerificationResult `json:"ftp,omitempty"`
	Debugging *models.VerificationResult `json:"debugging,omitempty"`
	OK        bool                       `json:"ok"`
}

// SetupConnection validates the descriptor and probes every configured
// transport. A *models.ValidationErrors is returned for invalid input.
func (v *Verifier) SetupConnection(ctx context.Context, conn models.ConnectionDescriptor) (SetupResult, error) {
	if err := models.Validate(conn); err != nil {
		return SetupResult{}, err
	}
	if !conn.HasREST() && !conn.HasFTP() {
		return SetupResult{}, &models.ValidationErrors{Errors: []models.ValidationError{
			{Field: "siteUrl", Message: "a REST or FTP/SFTP connection is required"},
		}}
	}

	result := SetupResult{OK: true}
	if conn.HasREST() {
		api := v.VerifyAPI(ctx, conn.APIKey, conn.SiteURL)
		result.API = &api
		result.OK = result.OK && api.OK
		if api.OK && conn.DebuggingEnabled {
			debugging := v.enableDebugging(ctx, conn)
			result.Debugging = &debugging
			result.OK = result.OK && debugging.OK
		}
	}
	if conn.HasFTP() {
		ftp := v.VerifyFTP(ctx, *conn.FTP)
		result.FTP = &ftp
		result.OK = result.OK && ftp.OK
	}
	return result, nil
}

// enableDebugging asks the connector to turn on WP_DEBUG_LOG.
func (v *Verifier) enableDebugging(ctx context.Context, conn models.ConnectionDescriptor) models.VerificationResult {
	body := validateRequest{APIKey: conn.APIKey, EnableDebugging: true}
	resp, err := v.rest.PostJSON(ctx, conn.SiteURL, EndpointValidate, body, v.verifyTimeout)
	var o Outcome
	if err != nil {
		o = ClassifyTransportError(err)
	} else {
		o = Classify(resp.Status, resp.Body)
	}
	if !o.Succeeded() {
		utils.LogWarn("Enabling debug logging failed", "site", conn.SiteURL, "errorKind", o.ErrorKind, "message", o.Message)
		return failedVerification(o)
	}
	utils.LogInfo("Debug logging enabled", "site", conn.SiteURL)
	return models.VerificationResult{OK: true, Message: orDefault(o.Message, "Debug logging enabled")}
}

func failedVerification(o Outcome) models.VerificationResult {
	return models.VerificationResult{
		Message:              o.Message,
		ErrorKind:            o.ErrorKind,
		TroubleshootingSteps: o.TroubleshootingSteps,
	}
}

func firstString(o Outcome, keys ...string) string {
	for _, k := range keys {
		if s := o.String(k); s != "" {
			return s
		}
	}
	return ""
}

func containsEntry(entries []RemoteEntry, name string) bool {
	for _, e := range entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// ProtocolName is the display name of the transport.
func ProtocolName(creds models.FTPCredentials) string {
	switch {
	case creds.Protocol == models.ProtocolSFTP:
		return "SFTP"
	case creds.Secure:
		return "FTPS"
	default:
		return "FTP"
	}
}
