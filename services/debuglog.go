package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/utils"
)

var logTimestamp = regexp.MustCompile(`^\[(\d{2}-[A-Za-z]{3}-\d{4} \d{2}:\d{2}:\d{2})`)

const logTimeLayout = "02-Jan-2006 15:04:05"

// DebugLogRetriever fetches wp-content/debug.log over REST or FTP/SFTP.
type DebugLogRetriever struct {
	rest    RESTPoster
	dialer  SessionDialer
	timeout time.Duration
}

func NewDebugLogRetriever(rest RESTPoster, dialer SessionDialer, timeout time.Duration) *DebugLogRetriever {
	return &DebugLogRetriever{rest: rest, dialer: dialer, timeout: timeout}
}

// Retrieve returns the filtered debug log. REST is tried first unless
// preferRaw is set or REST is not configured; FTP/SFTP is the fallback.
func (r *DebugLogRetriever) Retrieve(ctx context.Context, q models.DebugLogQuery, conn models.ConnectionDescriptor, preferRaw bool) (models.DebugLogResult, error) {
	var restErr error
	if conn.HasREST() && !preferRaw {
		raw, err := r.viaREST(ctx, q, conn)
		if err == nil {
			result := FilterDebugLog(raw, q)
			result.Source = "rest"
			return result, nil
		}
		restErr = err
		utils.LogWarn("Debug log retrieval over REST failed", "site", conn.SiteURL, "error", err)
	}

	if !conn.HasFTP() {
		if restErr != nil {
			return models.DebugLogResult{}, restErr
		}
		return models.DebugLogResult{}, &TransportError{
			Kind:    models.ErrorKindConnection,
			Message: "FTP/SFTP credentials are required to read the debug log",
		}
	}

	raw, err := r.viaFile(ctx, *conn.FTP)
	if err != nil {
		return models.DebugLogResult{}, err
	}
	result := FilterDebugLog(raw, q)
	result.Source = string(conn.FTP.Protocol)
	if result.Source == "" {
		result.Source = string(models.ProtocolFTP)
	}
	return result, nil
}

func (r *DebugLogRetriever) viaREST(ctx context.Context, q models.DebugLogQuery, conn models.ConnectionDescriptor) (string, error) {
	body := debugLogRequest{
		APIKey:     conn.APIKey,
		PluginSlug: q.PluginSlug,
		FilterOptions: debugLogFilterOptions{
			FilterByTime: q.FilterByTime,
			MaxLines:     q.MaxLines,
		},
	}
	if q.FilterByTime && !q.TimeThreshold.IsZero() {
		body.FilterOptions.TimeThreshold = q.TimeThreshold.Unix()
	}

	resp, err := r.rest.PostJSON(ctx, conn.SiteURL, EndpointCheckDebugLog, body, r.timeout)
	if err != nil {
		o := ClassifyTransportError(err)
		return "", &TransportError{Kind: o.ErrorKind, Message: o.Message, Err: err}
	}
	o := Classify(resp.Status, resp.Body)
	if !o.Succeeded() {
		return "", &TransportError{Kind: o.ErrorKind, Message: o.Message}
	}
	return o.String("debug_log"), nil
}

func (r *DebugLogRetriever) viaFile(ctx context.Context, creds models.FTPCredentials) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logPath := DebugLogPath(creds)
	var data []byte
	err := WithSession(ctx, r.dialer, creds, func(s FileSession) error {
		var err error
		data, err = s.DownloadFile(logPath)
		return err
	})
	if errors.Is(err, ErrRemoteNotFound) {
		return "", &TransportError{
			Kind:    models.ErrorKindRemote,
			Message: fmt.Sprintf("%s does not exist; enable WP_DEBUG_LOG in wp-config.php", logPath),
			Err:     err,
		}
	}
	if err != nil {
		o := ClassifyTransportError(err)
		return "", &TransportError{Kind: o.ErrorKind, Message: o.Message, Err: err}
	}
	return string(data), nil
}

// FilterDebugLog applies the time filter, the plugin filter and the line cap.
// Lines whose timestamp cannot be parsed are always kept by the time filter.
// The cap keeps the most recent lines.
func FilterDebugLog(raw string, q models.DebugLogQuery) models.DebugLogResult {
	lines := splitLines(raw)

	if q.FilterByTime && !q.TimeThreshold.IsZero() {
		kept := lines[:0:0]
		for _, line := range lines {
			if ts, ok := lineTimestamp(line); !ok || !ts.Before(q.TimeThreshold) {
				kept = append(kept, line)
			}
		}
		lines = kept
	}

	result := models.DebugLogResult{FullLog: strings.Join(lastLines(lines, q.MaxLines), "\n")}

	if q.PluginSlug != "" {
		needle := strings.ToLower(q.PluginSlug)
		var matched []string
		for _, line := range lines {
			if strings.Contains(strings.ToLower(line), needle) {
				matched = append(matched, line)
			}
		}
		if len(matched) > 0 {
			filtered := strings.Join(lastLines(matched, q.MaxLines), "\n")
			result.PluginFilteredLog = &filtered
		}
	}
	return result
}

func splitLines(raw string) []string {
	raw = strings.TrimRight(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

func lineTimestamp(line string) (time.Time, bool) {
	m := logTimestamp.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(logTimeLayout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func lastLines(lines []string, n int) []string {
	if n <= 0 || len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
