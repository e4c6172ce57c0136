package controllers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordpress-plugin-generator/config"
	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/services"
)

var testAuth = config.AuthConfig{
	AdminUsername:  "admin",
	AdminPassword:  "correct horse",
	JWTSecret:      "0123456789abcdef0123456789abcdef",
	JWTExpiryHours: 1,
}

type fakeDeployer struct {
	requests []models.DeploymentRequest
	outcome  models.DeploymentOutcome
}

func (f *fakeDeployer) Deploy(ctx context.Context, req models.DeploymentRequest) models.DeploymentOutcome {
	f.requests = append(f.requests, req)
	return f.outcome
}

func (f *fakeDeployer) DeletePlugin(ctx context.Context, conn models.ConnectionDescriptor, slug string) models.DeploymentOutcome {
	f.requests = append(f.requests, models.DeploymentRequest{
		Artifact:   models.PluginArtifact{Slug: slug},
		Connection: conn,
		Operation:  models.OperationDelete,
	})
	return f.outcome
}

func (f *fakeDeployer) UploadPluginFiles(ctx context.Context, artifact models.PluginArtifact, creds models.FTPCredentials) models.DeploymentOutcome {
	return f.outcome
}

type fakeVerifier struct {
	result models.VerificationResult
}

func (f *fakeVerifier) VerifyAPI(ctx context.Context, apiKey, siteURL string) models.VerificationResult {
	return f.result
}

func (f *fakeVerifier) VerifyFTP(ctx context.Context, creds models.FTPCredentials) models.VerificationResult {
	return f.result
}

func (f *fakeVerifier) SetupConnection(ctx context.Context, conn models.ConnectionDescriptor) (services.SetupResult, error) {
	return services.SetupResult{OK: f.result.OK, API: &f.result}, nil
}

type fakeLogs struct {
	result models.DebugLogResult
	err    error
}

func (f *fakeLogs) Retrieve(ctx context.Context, q models.DebugLogQuery, conn models.ConnectionDescriptor, preferRaw bool) (models.DebugLogResult, error) {
	return f.result, f.err
}

type fakeGenerator struct {
	chunks []string
	err    error
	delay  time.Duration
}

func (f *fakeGenerator) Generate(ctx context.Context, conversation []models.ChatMessage, onDelta func(string)) (string, error) {
	time.Sleep(f.delay)
	var reply string
	for _, c := range f.chunks {
		onDelta(c)
		reply += c
	}
	return reply, f.err
}

type fakeActivity struct {
	entries []models.Activity
}

func (f *fakeActivity) Record(level, message, slug string) {
	f.entries = append([]models.Activity{{Level: level, Message: message, PluginSlug: slug}}, f.entries...)
}

func (f *fakeActivity) List() ([]models.Activity, error) {
	return f.entries, nil
}

type testDeps struct {
	deployer  *fakeDeployer
	verifier  *fakeVerifier
	logs      *fakeLogs
	generator CodeGenerator
	activity  *fakeActivity
}

func newTestDeps() *testDeps {
	return &testDeps{
		deployer: &fakeDeployer{outcome: models.DeploymentOutcome{Status: models.StatusSuccess, Message: "ok"}},
		verifier: &fakeVerifier{result: models.VerificationResult{OK: true, Message: "Connected"}},
		logs:     &fakeLogs{},
		activity: &fakeActivity{},
	}
}

func (d *testDeps) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(testAuth, d.deployer, d.verifier, d.logs, d.generator, d.activity)
	return testRouter(h)
}

func testRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/health", h.Health)
	r.POST("/api/login", h.Login)

	api := r.Group("/api", h.AuthMiddleware())
	api.POST("/connection/verify-api", h.VerifyAPI)
	api.POST("/connection/verify-ftp", h.VerifyFTP)
	api.POST("/connection/setup", h.SetupConnection)
	api.POST("/plugins/package", h.PackagePlugin)
	api.POST("/plugins/deploy", h.DeployPlugin)
	api.POST("/plugins/delete", h.DeletePlugin)
	api.POST("/debug-log", h.GetDebugLog)
	api.POST("/generate", NoWriteDeadline(), h.Generate)
	api.POST("/session/export", h.ExportSession)
	api.POST("/session/import", h.ImportSession)
	api.GET("/activities", h.GetActivities)
	return r
}

func signedToken(t *testing.T, secret string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.Claims{
		Username:       "admin",
		StandardClaims: jwt.StandardClaims{ExpiresAt: expires.Unix()},
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if strings.HasPrefix(path, "/api/") && path != "/api/login" {
		req.Header.Set("Authorization", "Bearer "+signedToken(t, testAuth.JWTSecret, time.Now().Add(time.Hour)))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestLogin(t *testing.T) {
	r := newTestDeps().router()

	w := do(t, r, http.MethodPost, "/api/login", models.User{Username: "admin", Password: "correct horse"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	claims := &models.Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testAuth.JWTSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	w = do(t, r, http.MethodPost, "/api/login", models.User{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	r := newTestDeps().router()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signedToken(t, "another-secret-another-secret-xx", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "Bearer " + signedToken(t, testAuth.JWTSecret, time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"valid", "Bearer " + signedToken(t, testAuth.JWTSecret, time.Now().Add(time.Hour)), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/activities", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHealthIsPublic(t *testing.T) {
	w := do(t, newTestDeps().router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestDeployValidation(t *testing.T) {
	deps := newTestDeps()
	r := deps.router()

	rest := models.ConnectionDescriptor{APIKey: "k", SiteURL: "https://example.com"}
	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed json", "{", http.StatusBadRequest},
		{"unknown operation", models.DeploymentRequest{Operation: "upgrade", Connection: rest}, http.StatusBadRequest},
		{"install without code", models.DeploymentRequest{
			Operation: models.OperationInstall, Connection: rest,
			Artifact: models.PluginArtifact{Slug: "x"},
		}, http.StatusBadRequest},
		{"no connection", models.DeploymentRequest{
			Operation: models.OperationInstall,
			Artifact:  models.PluginArtifact{Slug: "x", MainCode: "<?php"},
		}, http.StatusBadRequest},
		{"delete without code", models.DeploymentRequest{
			Operation: models.OperationDelete, Connection: rest,
			Artifact: models.PluginArtifact{Slug: "x"},
		}, http.StatusOK},
		{"install", models.DeploymentRequest{
			Operation: models.OperationInstall, Connection: rest,
			Artifact: models.PluginArtifact{Slug: "x", MainCode: "<?php"},
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/plugins/deploy", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Len(t, deps.deployer.requests, 2)
}

func TestDeployReportsRemoteFailureAsOutcome(t *testing.T) {
	deps := newTestDeps()
	deps.deployer.outcome = models.DeploymentOutcome{
		Status:    models.StatusFailure,
		ErrorKind: models.ErrorKindPHPSyntax,
		Message:   "PHP Parse error: syntax error",
	}

	w := do(t, deps.router(), http.MethodPost, "/api/plugins/deploy", models.DeploymentRequest{
		Operation:  models.OperationInstall,
		Connection: models.ConnectionDescriptor{APIKey: "k", SiteURL: "https://example.com"},
		Artifact:   models.PluginArtifact{Slug: "x", MainCode: "<?php"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	outcome := decode[models.DeploymentOutcome](t, w)
	assert.Equal(t, models.ErrorKindPHPSyntax, outcome.ErrorKind)
}

func TestDeployAgainstSite(t *testing.T) {
	var endpoints []string
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoints = append(endpoints, r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["api_key"] != "secret" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"success":false,"message":"Invalid API key"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"message":"Plugin installed and activated successfully","activated":true}`))
	}))
	defer site.Close()

	rest := services.NewRESTClient(site.Client())
	dialer := services.NewDialer(time.Second, "")
	deployer := services.NewDeployer(rest, dialer, config.Default().Timeouts, 0)
	h := NewHandler(testAuth, deployer, services.NewVerifier(rest, dialer, time.Second), nil, nil, &fakeActivity{})
	gin.SetMode(gin.TestMode)
	r := testRouter(h)

	req := models.DeploymentRequest{
		Operation:  models.OperationInstall,
		Connection: models.ConnectionDescriptor{APIKey: "secret", SiteURL: site.URL},
		Artifact:   models.PluginArtifact{Slug: "hello-site", MainCode: "<?php\nadd_action( 'init', '__return_true' );"},
	}
	w := do(t, r, http.MethodPost, "/api/plugins/deploy", req)
	require.Equal(t, http.StatusOK, w.Code)
	outcome := decode[models.DeploymentOutcome](t, w)
	assert.True(t, outcome.Succeeded(), outcome.Message)
	assert.True(t, outcome.Activated)
	assert.Equal(t, site.URL+"/wp-admin/plugins.php", outcome.AdminURL)
	assert.Equal(t, []string{"/wp-json/plugin-generator/v1/install-plugin"}, endpoints)

	req.Connection.APIKey = "wrong"
	w = do(t, r, http.MethodPost, "/api/plugins/deploy", req)
	require.Equal(t, http.StatusOK, w.Code)
	outcome = decode[models.DeploymentOutcome](t, w)
	assert.False(t, outcome.Succeeded())
	assert.Equal(t, models.ErrorKindAuthentication, outcome.ErrorKind)
	assert.NotEmpty(t, outcome.TroubleshootingSteps)
}

func TestDeletePluginRequiresSlug(t *testing.T) {
	deps := newTestDeps()
	r := deps.router()

	w := do(t, r, http.MethodPost, "/api/plugins/delete", map[string]any{"connection": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/plugins/delete", map[string]any{"pluginSlug": "x"})
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, deps.deployer.requests, 1)
	assert.Equal(t, models.OperationDelete, deps.deployer.requests[0].Operation)
}

func TestPackagePlugin(t *testing.T) {
	w := do(t, newTestDeps().router(), http.MethodPost, "/api/plugins/package", models.PluginArtifact{
		Slug:     "zip-me",
		MainCode: "<?php\n/*\n * Plugin Name: Zip Me\n */",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="zip-me.zip"`)

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "zip-me/zip-me.php", zr.File[0].Name)
}

func TestVerifyFTPValidatesCredentials(t *testing.T) {
	deps := newTestDeps()
	r := deps.router()

	w := do(t, r, http.MethodPost, "/api/connection/verify-ftp", models.FTPCredentials{Host: "example.com"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.NotEmpty(t, body["errors"])

	w = do(t, r, http.MethodPost, "/api/connection/verify-ftp", models.FTPCredentials{
		Host: "example.com", Username: "u", Protocol: models.ProtocolSFTP,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, deps.activity.entries, 1)
	assert.Contains(t, deps.activity.entries[0].Message, "SFTP connection to example.com verified")
}

func TestGetDebugLog(t *testing.T) {
	deps := newTestDeps()
	filtered := "[01-Jan-2026 10:00:00 UTC] my-plugin notice"
	deps.logs.result = models.DebugLogResult{FullLog: filtered, PluginFilteredLog: &filtered, Source: "rest"}
	r := deps.router()

	w := do(t, r, http.MethodPost, "/api/debug-log", map[string]any{"query": map[string]any{"pluginSlug": "my-plugin"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["success"])

	deps.logs.err = &services.TransportError{Kind: models.ErrorKindConnection, Message: "FTP/SFTP credentials are required to read the debug log"}
	w = do(t, r, http.MethodPost, "/api/debug-log", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[map[string]any](t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, string(models.ErrorKindConnection), body["errorKind"])

	w = do(t, r, http.MethodPost, "/api/debug-log", map[string]any{"query": map[string]any{"maxLines": -1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateStreamsEvents(t *testing.T) {
	deps := newTestDeps()
	deps.generator = &fakeGenerator{chunks: []string{"Here:\n```php\n", "<?php echo 1;\n```"}}

	w := do(t, deps.router(), http.MethodPost, "/api/generate", generateRequest{
		Conversation: []models.ChatMessage{{Role: "user", Content: "a plugin that echoes 1"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	out := w.Body.String()
	assert.Equal(t, 2, strings.Count(out, "event:delta"))
	assert.Contains(t, out, "event:done")
	assert.Regexp(t, `"code":"(<|\\u003c)\?php echo 1;"`, out)
}

func TestGenerateOutlivesServerWriteTimeout(t *testing.T) {
	deps := newTestDeps()
	deps.generator = &fakeGenerator{chunks: []string{"<?php echo 1;"}, delay: 200 * time.Millisecond}

	srv := httptest.NewUnstartedServer(deps.router())
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	defer srv.Close()

	payload, err := json.Marshal(generateRequest{Conversation: []models.ChatMessage{{Role: "user", Content: "x"}}})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/generate", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testAuth.JWTSecret, time.Now().Add(time.Hour)))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(out), "event:done")
}

func TestGenerateReportsErrorEvent(t *testing.T) {
	deps := newTestDeps()
	deps.generator = &fakeGenerator{chunks: []string{"partial"}, err: errors.New("stream dropped")}

	w := do(t, deps.router(), http.MethodPost, "/api/generate", generateRequest{
		Conversation: []models.ChatMessage{{Role: "user", Content: "x"}},
	})
	out := w.Body.String()
	assert.Contains(t, out, "event:error")
	assert.Contains(t, out, "stream dropped")
	assert.NotContains(t, out, "event:done")
}

func TestGenerateWithoutLLM(t *testing.T) {
	w := do(t, newTestDeps().router(), http.MethodPost, "/api/generate", generateRequest{
		Conversation: []models.ChatMessage{{Role: "user", Content: "x"}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSessionExportImport(t *testing.T) {
	r := newTestDeps().router()

	session := models.SessionFile{
		Artifact:     models.PluginArtifact{Slug: "saved", MainCode: "<?php echo 1;"},
		Conversation: []models.ChatMessage{{Role: "user", Content: "hi"}},
	}
	w := do(t, r, http.MethodPost, "/api/session/export", session)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "saved-session.json")

	w = do(t, r, http.MethodPost, "/api/session/import", w.Body.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	imported := decode[models.SessionFile](t, w)
	assert.Equal(t, services.SessionFormatVersion, imported.FormatVersion)
	assert.NotEmpty(t, imported.ID)
	assert.Equal(t, session.Artifact, imported.Artifact)

	w = do(t, r, http.MethodPost, "/api/session/import", `{"formatVersion":1,"surprise":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetActivities(t *testing.T) {
	deps := newTestDeps()
	deps.activity.Record(services.ActivityInfo, "Plugin 'x' install succeeded via rest.", "x")

	w := do(t, deps.router(), http.MethodGet, "/api/activities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	activities := decode[[]models.Activity](t, w)
	require.Len(t, activities, 1)
	assert.Equal(t, "x", activities[0].PluginSlug)
}
