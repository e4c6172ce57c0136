package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"unicode/utf8"

	"golang.org/x/crypto/ssh/knownhosts"

	"wordpress-plugin-generator/models"
)

// OutcomeKind is the closed set of shapes a remote response can take.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "Success"
	OutcomeStructuredError OutcomeKind = "StructuredError"
	OutcomeHTMLError       OutcomeKind = "HtmlError"
	OutcomeEmptyResponse   OutcomeKind = "EmptyResponse"
	OutcomeTimeout         OutcomeKind = "Timeout"
	OutcomeParseError      OutcomeKind = "ParseError"
	// OutcomeConnectionFailure is produced for transport errors only, never by Classify.
	OutcomeConnectionFailure OutcomeKind = "ConnectionFailure"
)

const (
	htmlSnippetLen  = 500
	parseSnippetLen = 1500
	maxDetailsLen   = 2000
)

// FSChmodSnippet is the wp-config.php fix for missing filesystem constants.
const FSChmodSnippet = "define('FS_CHMOD_DIR', (0755 & ~ umask()));\ndefine('FS_CHMOD_FILE', (0644 & ~ umask()));"

const criticalErrorText = "There has been a critical error on this website"

// Outcome is the typed result of one remote call.
type Outcome struct {
	Kind                 OutcomeKind
	ErrorKind            models.ErrorKind
	Message              string
	Details              string
	File                 string
	Line                 int
	WAFBlocked           bool
	TroubleshootingSteps []string
	// Payload is the decoded JSON object of a successful response.
	Payload map[string]any
}

func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSuccess }

// String returns the payload value for key when it is a string.
func (o Outcome) String(key string) string {
	s, _ := o.Payload[key].(string)
	return s
}

// Bool returns the payload value for key interpreted as a boolean.
func (o Outcome) Bool(key string) bool {
	return truthy(o.Payload[key])
}

var (
	phpErrorPattern = regexp.MustCompile(`(Parse error|Fatal error|Warning|Notice)\s*:\s*(.+?)\s+in\s+(\S+?)\s+on\s+line\s+(\d+)`)
	htmlTagPattern  = regexp.MustCompile(`<[^>]*>`)
	wafIndicators   = []string{"403 Forbidden", "ModSecurity", "Firewall", "WAF", "blocked", "security rule"}
)

var phpSeverity = map[string]int{"Parse error": 4, "Fatal error": 3, "Warning": 2, "Notice": 1}

// Classify turns a raw status and body into an Outcome. It is pure: the same
// input always yields the same result.
func Classify(status int, body string) Outcome {
	o := classify(status, body)
	if o.Kind != OutcomeSuccess {
		o.Details = truncate(o.Details, maxDetailsLen)
		o.WAFBlocked = o.WAFBlocked || hasWAFIndicator(o.Message) || hasWAFIndicator(o.Details)
		if o.TroubleshootingSteps == nil {
			o.TroubleshootingSteps = TroubleshootingSteps(o.ErrorKind)
		}
		if o.WAFBlocked {
			o.TroubleshootingSteps = append(o.TroubleshootingSteps, wafSteps...)
		}
	}
	return o
}

func classify(status int, body string) Outcome {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return Outcome{
			Kind:      OutcomeEmptyResponse,
			ErrorKind: models.ErrorKindEmptyResponse,
			Message:   fmt.Sprintf("The site returned an empty response (HTTP %d)", status),
		}
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		obj, ok := decoded.(map[string]any)
		if !ok {
			return Outcome{
				Kind:      OutcomeParseError,
				ErrorKind: models.ErrorKindJSONParse,
				Message:   "The site returned JSON in an unexpected shape",
				Details:   truncate(trimmed, parseSnippetLen),
			}
		}
		return classifyJSON(status, obj)
	}

	if o, ok := diagnoseText(status, trimmed); ok {
		return o
	}

	if isHTML(trimmed) {
		return Outcome{
			Kind:      OutcomeHTMLError,
			ErrorKind: models.ErrorKindHTMLResponse,
			Message:   fmt.Sprintf("The site returned an HTML page instead of JSON (HTTP %d)", status),
			Details:   truncate(trimmed, htmlSnippetLen),
		}
	}

	return Outcome{
		Kind:      OutcomeParseError,
		ErrorKind: models.ErrorKindParse,
		Message:   fmt.Sprintf("The site returned a response that could not be parsed (HTTP %d)", status),
		Details:   truncate(trimmed, parseSnippetLen),
	}
}

// classifyJSON inspects the success/status fields of a decoded object.
func classifyJSON(status int, obj map[string]any) Outcome {
	message := cleanMessage(stringField(obj, "message"))
	details := stringField(obj, "details")

	if jsonSucceeded(obj) {
		return Outcome{Kind: OutcomeSuccess, Message: message, Details: details, Payload: obj}
	}

	o := Outcome{
		Kind:      OutcomeStructuredError,
		ErrorKind: models.ErrorKindRemote,
		Message:   message,
		Details:   details,
	}

	// wp_die and fatal-error handler envelope
	if data, ok := obj["data"].(map[string]any); ok {
		if e, ok := data["error"].(map[string]any); ok {
			if m := stringField(e, "message"); m != "" {
				o.Details = joinNonEmpty("\n", m, o.Details)
				if o.Message == "" {
					o.Message = m
				}
			}
			o.File = stringField(e, "file")
			o.Line = intField(e, "line")
			if o.File != "" {
				o.ErrorKind = models.ErrorKindPHP
				if strings.Contains(strings.ToLower(o.Details), "syntax error") {
					o.ErrorKind = models.ErrorKindPHPSyntax
				}
			}
		}
	}

	code := stringField(obj, "code")
	lowerMsg := strings.ToLower(o.Message)
	switch {
	case strings.Contains(o.Message+o.Details, "FS_CHMOD"):
		o.ErrorKind = models.ErrorKindFilesystemConstants
		o.Details = joinNonEmpty("\n\n", o.Details, FSChmodSnippet)
	case status == 401 || code == "rest_forbidden" ||
		(status == 403 && strings.Contains(lowerMsg, "api key")) || strings.Contains(lowerMsg, "invalid api key"):
		o.ErrorKind = models.ErrorKindAuthentication
	case code == "rest_no_route":
		o.TroubleshootingSteps = append([]string(nil), connectorMissingSteps...)
	case strings.Contains(o.Message, criticalErrorText) && o.ErrorKind == models.ErrorKindRemote:
		o.ErrorKind = models.ErrorKindWordPressCritical
	}

	if o.Message == "" {
		o.Message = fmt.Sprintf("The site reported an error (HTTP %d)", status)
	}
	return o
}

// diagnoseText looks for known signatures in a body that is not JSON.
func diagnoseText(status int, body string) (Outcome, bool) {
	if strings.Contains(body, "FS_CHMOD_FILE") || strings.Contains(body, "FS_CHMOD_DIR") {
		return Outcome{
			Kind:      OutcomeHTMLError,
			ErrorKind: models.ErrorKindFilesystemConstants,
			Message:   "WordPress filesystem permission constants are not defined",
			Details:   "Add the following lines to wp-config.php:\n\n" + FSChmodSnippet,
		}, true
	}

	if obj, ok := embeddedJSON(body); ok {
		o := classifyJSON(status, obj)
		o.WAFBlocked = isHTML(body) && hasWAFIndicator(body)
		return o, true
	}

	text := htmlTagPattern.ReplaceAllString(body, " ")
	if m := mostSevere(phpErrorPattern.FindAllStringSubmatch(text, -1)); m != nil {
		line, _ := strconv.Atoi(m[4])
		o := Outcome{
			Kind:      OutcomeHTMLError,
			ErrorKind: models.ErrorKindPHP,
			Message:   fmt.Sprintf("PHP %s: %s", m[1], strings.TrimSpace(m[2])),
			Details:   fmt.Sprintf("%s in %s on line %d", strings.TrimSpace(m[2]), m[3], line),
			File:      m[3],
			Line:      line,
		}
		if m[1] == "Parse error" {
			o.ErrorKind = models.ErrorKindPHPSyntax
		}
		return o, true
	}

	if strings.Contains(text, criticalErrorText) {
		return Outcome{
			Kind:      OutcomeHTMLError,
			ErrorKind: models.ErrorKindWordPressCritical,
			Message:   "WordPress reported a critical error",
			Details:   truncate(body, htmlSnippetLen),
		}, true
	}
	return Outcome{}, false
}

func mostSevere(matches [][]string) []string {
	var best []string
	for _, m := range matches {
		if best == nil || phpSeverity[m[1]] > phpSeverity[best[1]] {
			best = m
		}
	}
	return best
}

// embeddedJSON finds the first JSON object inside a larger body that looks
// like a connector response.
func embeddedJSON(body string) (map[string]any, bool) {
	const maxCandidates = 20
	offset := 0
	for i := 0; i < maxCandidates; i++ {
		idx := strings.Index(body[offset:], `{"`)
		if idx < 0 {
			return nil, false
		}
		start := offset + idx

		var obj map[string]any
		dec := json.NewDecoder(strings.NewReader(body[start:]))
		if err := dec.Decode(&obj); err == nil {
			_, hasSuccess := obj["success"]
			_, hasMessage := obj["message"]
			if hasSuccess || hasMessage {
				return obj, true
			}
		}
		offset = start + 2
	}
	return nil, false
}

func jsonSucceeded(obj map[string]any) bool {
	if v, ok := obj["success"]; ok {
		return truthy(v)
	}
	if s, ok := obj["status"].(string); ok {
		s = strings.ToLower(s)
		return s == "success" || s == "ok"
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t == "1" || strings.EqualFold(t, "true") || strings.EqualFold(t, "success")
	default:
		return false
	}
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func intField(obj map[string]any, key string) int {
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func cleanMessage(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return strings.Join(strings.Fields(htmlTagPattern.ReplaceAllString(s, " ")), " ")
}

func isHTML(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype html")
}

func hasWAFIndicator(s string) bool {
	for _, ind := range wafIndicators {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}

// IsActivationFailure reports whether a success message says the plugin was
// installed but could not be activated.
func IsActivationFailure(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "activation failed") ||
		strings.Contains(lower, "valid header") ||
		strings.Contains(lower, "could not be activated")
}

// isDestinationConflict reports the install errors a forced retry can fix.
func isDestinationConflict(o Outcome) bool {
	lower := strings.ToLower(o.Message + " " + o.Details)
	return strings.Contains(lower, "destination already exists") ||
		strings.Contains(lower, "destination folder already exists") ||
		strings.Contains(lower, "could not create directory")
}

// ClassifyTransportError maps a failed call (no response received) onto the
// same taxonomy as Classify.
func ClassifyTransportError(err error) Outcome {
	o := classifyTransportError(err)
	if o.TroubleshootingSteps == nil {
		o.TroubleshootingSteps = TroubleshootingSteps(o.ErrorKind)
	}
	o.Details = truncate(err.Error(), maxDetailsLen)
	return o
}

func classifyTransportError(err error) Outcome {
	var te *TransportError
	if errors.As(err, &te) {
		kind := OutcomeConnectionFailure
		if te.Kind == models.ErrorKindTimeout {
			kind = OutcomeTimeout
		}
		return Outcome{Kind: kind, ErrorKind: te.Kind, Message: te.Message}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Outcome{Kind: OutcomeTimeout, ErrorKind: models.ErrorKindTimeout, Message: "The operation timed out"}
	}

	failure := func(kind models.ErrorKind, message string) Outcome {
		return Outcome{Kind: OutcomeConnectionFailure, ErrorKind: kind, Message: message}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failure(models.ErrorKindConnection, fmt.Sprintf("Could not resolve %s, check hostname", dnsErr.Name))
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return failure(models.ErrorKindConnection, "Connection refused, check host and port")
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return failure(models.ErrorKindConnection, "Connection reset by the server")
	}

	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return failure(models.ErrorKindConnection, "The server host key does not match known_hosts")
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if requiresTLS(protoErr.Msg) || protoErr.Code == 534 {
			return failure(models.ErrorKindSecureConnectionRequired, "The server requires a secure (FTPS) connection")
		}
		if protoErr.Code == 530 {
			return failure(models.ErrorKindAuthentication, "FTP login was rejected, check username and password")
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"):
		return failure(models.ErrorKindAuthentication, "SSH login was rejected, check username and password")
	case strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:"):
		return failure(models.ErrorKindConnection, "The TLS handshake with the server failed")
	case strings.Contains(msg, "no such host"):
		return failure(models.ErrorKindConnection, "Could not resolve the host, check hostname")
	}
	return failure(models.ErrorKindConnection, "Could not connect to the server")
}

func requiresTLS(msg string) bool {
	lower := strings.ToLower(msg)
	for _, s := range []string{"tls", "ssl", "encryption", "secure"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
