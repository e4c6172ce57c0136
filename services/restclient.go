package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wordpress-plugin-generator/utils"
)

// RESTNamespace is the route namespace registered by the connector plugin.
const RESTNamespace = "plugin-generator/v1"

// maxResponseBytes bounds how much of a response body is kept.
const maxResponseBytes = 16 << 20

// Connector plugin endpoints.
const (
	EndpointValidate          = "validate"
	EndpointCheckPluginExists = "check-plugin-exists"
	EndpointDeletePlugin      = "delete-plugin"
	EndpointInstallPlugin     = "install-plugin"
	EndpointUpdatePlugin      = "update-plugin"
	EndpointCheckDebugLog     = "check-debug-log"
)

// RawResponse is an HTTP response with the body read fully as text.
type RawResponse struct {
	Status int
	Body   string
}

// RESTPoster sends JSON requests to the connector plugin.
type RESTPoster interface {
	PostJSON(ctx context.Context, siteURL, endpoint string, body any, timeout time.Duration) (RawResponse, error)
}

type RESTClient struct {
	httpClient *http.Client
}

func NewRESTClient(httpClient *http.Client) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RESTClient{httpClient: httpClient}
}

// EndpointURL builds the connector URL for an endpoint.
func EndpointURL(siteURL, endpoint string) string {
	return strings.TrimRight(siteURL, "/") + "/wp-json/" + RESTNamespace + "/" + endpoint
}

// PostJSON posts body as JSON and returns the status and raw body text. The
// body is never decoded here because failure bodies are frequently HTML.
// Non-2xx statuses are not errors; only transport failures are.
func (c *RESTClient) PostJSON(ctx context.Context, siteURL, endpoint string, body any, timeout time.Duration) (RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return RawResponse{}, fmt.Errorf("failed to encode %s request: %w", endpoint, err)
	}

	url := EndpointURL(siteURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return RawResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		utils.LogWarn("REST request failed", "endpoint", endpoint, "duration", time.Since(start), "error", err)
		return RawResponse{}, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return RawResponse{}, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	utils.LogDebug("REST request completed", "endpoint", endpoint, "status", resp.StatusCode,
		"bytes", len(data), "duration", time.Since(start))
	return RawResponse{Status: resp.StatusCode, Body: string(data)}, nil
}

type validateRequest struct {
	APIKey          string `json:"api_key"`
	EnableDebugging bool   `json:"enable_debugging,omitempty"`
	VerifyOnly      bool   `json:"verify_only,omitempty"`
}

type pluginRequest struct {
	APIKey     string `json:"api_key"`
	PluginSlug string `json:"plugin_slug"`
}

type installRequest struct {
	APIKey      string `json:"api_key"`
	PluginZip   string `json:"plugin_zip"`
	PluginSlug  string `json:"plugin_slug,omitempty"`
	ForceUpdate bool   `json:"force_update,omitempty"`
	DeleteFirst bool   `json:"delete_first,omitempty"`

	// update-plugin diagnostics hints
	CheckForErrors    bool `json:"check_for_errors,omitempty"`
	ReadDebugLog      bool `json:"read_debug_log,omitempty"`
	DetailedErrors    bool `json:"detailed_errors,omitempty"`
	CheckPluginHeader bool `json:"check_plugin_header,omitempty"`
}

type debugLogFilterOptions struct {
	FilterByTime  bool  `json:"filter_by_time"`
	TimeThreshold int64 `json:"time_threshold,omitempty"`
	MaxLines      int   `json:"max_lines,omitempty"`
}

type debugLogRequest struct {
	APIKey        string                `json:"api_key"`
	PluginSlug    string                `json:"plugin_slug,omitempty"`
	FilterOptions debugLogFilterOptions `json:"filter_options"`
}
