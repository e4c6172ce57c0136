package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wordpress-plugin-generator/config"
	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/utils"
)

// DeployState is a step of the deployment state machine.
type DeployState string

const (
	StatePackaging DeployState = "packaging"
	StateDeleting  DeployState = "deleting"
	StateSettling  DeployState = "settling"
	StateUploading DeployState = "uploading"
	StateVerifying DeployState = "verifying"
	StateDone      DeployState = "done"
)

// Delete chain step names, also reported as the outcome transport.
const (
	TransportREST        = "rest"
	TransportRESTThenFTP = "rest+ftp"
	TransportFTP         = "ftp"
)

const activationLogLines = 100

// Deployer runs install, update and delete requests against a site.
type Deployer struct {
	rest     RESTPoster
	dialer   SessionDialer
	logs     *DebugLogRetriever
	activity ActivityRecorder
	timeouts config.TimeoutConfig
	settle   time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

type DeployerOption func(*Deployer)

// WithActivity records every finished request in the activity feed.
func WithActivity(a ActivityRecorder) DeployerOption {
	return func(d *Deployer) { d.activity = a }
}

// WithClock replaces the clock used to stamp the start of a deployment.
func WithClock(now func() time.Time) DeployerOption {
	return func(d *Deployer) { d.now = now }
}

// WithSleep replaces the settle-delay wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) DeployerOption {
	return func(d *Deployer) { d.sleep = fn }
}

func NewDeployer(rest RESTPoster, dialer SessionDialer, timeouts config.TimeoutConfig, settle time.Duration, opts ...DeployerOption) *Deployer {
	d := &Deployer{
		rest:     rest,
		dialer:   dialer,
		logs:     NewDebugLogRetriever(rest, dialer, timeouts.DebugLog()),
		timeouts: timeouts,
		settle:   settle,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Deploy executes one request. Every failure is returned as a failed
// outcome; no error escapes.
func (d *Deployer) Deploy(ctx context.Context, req models.DeploymentRequest) models.DeploymentOutcome {
	slug := PluginSlug(req.Artifact)
	log := utils.Logger().With("slug", slug, "operation", req.Operation)

	var outcome models.DeploymentOutcome
	if req.Operation == models.OperationDelete {
		outcome = d.deletePlugin(ctx, log, req.Connection, slug)
	} else {
		outcome = d.upload(ctx, log, req, slug)
	}

	transition(log, StateDone, "status", outcome.Status, "transport", outcome.Transport, "errorKind", outcome.ErrorKind)
	d.record(req.Operation, slug, outcome)
	return outcome
}

// DeletePlugin runs the delete chain alone.
func (d *Deployer) DeletePlugin(ctx context.Context, conn models.ConnectionDescriptor, slug string) models.DeploymentOutcome {
	return d.Deploy(ctx, models.DeploymentRequest{
		Artifact:   models.PluginArtifact{Slug: slug},
		Connection: conn,
		Operation:  models.OperationDelete,
	})
}

func (d *Deployer) upload(ctx context.Context, log *slog.Logger, req models.DeploymentRequest, slug string) models.DeploymentOutcome {
	started := d.now()
	transition(log, StatePackaging)
	archive, err := Package(req.Artifact)
	if err != nil {
		return failure(models.ErrorKindPackaging, "Failed to package the plugin", err.Error(), "")
	}
	if !req.Connection.HasREST() {
		return failure(models.ErrorKindConnection, "A site URL and API key are required to install plugins", "", "")
	}

	replace := req.Operation == models.OperationUpdate || req.ForceUpdate || req.DeleteFirst
	body := installRequest{
		APIKey:      req.Connection.APIKey,
		PluginZip:   base64.StdEncoding.EncodeToString(archive),
		PluginSlug:  slug,
		ForceUpdate: req.ForceUpdate,
		DeleteFirst: replace,
	}

	endpoint := EndpointInstallPlugin
	if replace {
		transition(log, StateDeleting)
		if res := d.runDeleteChain(ctx, log, req.Connection, slug); !res.ok {
			// the install below overwrites in most cases
			log.Warn("Pre-update delete failed, continuing", "errorKind", res.outcome.ErrorKind, "message", res.outcome.Message)
		}

		transition(log, StateSettling, "delay", d.settle)
		if err := d.sleep(ctx, d.settle); err != nil {
			return failure(models.ErrorKindTimeout, "Deployment was cancelled", err.Error(), "")
		}

		if req.Operation == models.OperationUpdate {
			endpoint = EndpointUpdatePlugin
			body.CheckForErrors = true
			body.ReadDebugLog = true
			body.DetailedErrors = true
			body.CheckPluginHeader = true
		}
	}

	transition(log, StateUploading, "endpoint", endpoint, "bytes", len(archive))
	o := d.call(ctx, req.Connection, endpoint, body, d.timeouts.Install())

	if !o.Succeeded() && req.ForceUpdate && isDestinationConflict(o) {
		log.Info("Destination conflict, retrying forced install", "message", o.Message)
		retry := installRequest{
			APIKey:      body.APIKey,
			PluginZip:   body.PluginZip,
			PluginSlug:  slug,
			ForceUpdate: true,
			DeleteFirst: true,
		}
		transition(log, StateUploading, "endpoint", EndpointInstallPlugin, "retry", true)
		o = d.call(ctx, req.Connection, EndpointInstallPlugin, retry, d.timeouts.Install())
	}

	transition(log, StateVerifying, "outcome", o.Kind)
	if !o.Succeeded() {
		return fromOutcome(o, TransportREST)
	}
	return d.verifyActivation(ctx, log, req.Connection, slug, started, o)
}

func (d *Deployer) verifyActivation(ctx context.Context, log *slog.Logger, conn models.ConnectionDescriptor, slug string, started time.Time, o Outcome) models.DeploymentOutcome {
	activated := !IsActivationFailure(o.Message)
	if _, reported := o.Payload["activated"]; reported && !o.Bool("activated") {
		activated = false
	}

	outcome := models.DeploymentOutcome{
		Status:    models.StatusSuccess,
		Activated: activated,
		PluginURL: o.String("plugin_url"),
		AdminURL:  o.String("admin_url"),
		Message:   o.Message,
		Transport: TransportREST,
	}
	if outcome.AdminURL == "" {
		outcome.AdminURL = strings.TrimRight(conn.SiteURL, "/") + "/wp-admin/plugins.php"
	}
	if outcome.Message == "" {
		outcome.Message = "Plugin installed and activated"
	}
	if activated {
		return outcome
	}

	outcome.ErrorKind = models.ErrorKindActivationWarning
	outcome.Details = o.Details
	outcome.TroubleshootingSteps = TroubleshootingSteps(models.ErrorKindActivationWarning)
	if o.Message == "" {
		outcome.Message = "Plugin installed but could not be activated"
	}

	log.Warn("Plugin installed but not activated, reading debug log", "message", o.Message)
	query := models.DebugLogQuery{
		PluginSlug:    slug,
		FilterByTime:  true,
		TimeThreshold: started,
		MaxLines:      activationLogLines,
	}
	result, err := d.logs.Retrieve(ctx, query, conn, false)
	if err != nil {
		log.Warn("Debug log retrieval after activation failure failed", "error", err)
		return outcome
	}
	outcome.DebugLog = &result
	return outcome
}

// deleteStep is one entry of the delete fallback chain.
type deleteStep struct {
	name string
	run  func(ctx context.Context, a *deleteAttempt) stepResult
}

type deleteAttempt struct {
	conn         models.ConnectionDescriptor
	slug         string
	ftpAttempted bool
}

type stepResult struct {
	ok      bool
	skipped bool
	message string
	outcome Outcome
}

type chainResult struct {
	ok        bool
	transport string
	message   string
	outcome   Outcome
}

// deleteChain lists the delete strategies in priority order.
func (d *Deployer) deleteChain() []deleteStep {
	return []deleteStep{
		{name: TransportREST, run: d.deleteViaREST},
		{name: TransportRESTThenFTP, run: d.deleteViaRESTThenFTP},
		{name: TransportFTP, run: d.deleteViaFTP},
	}
}

// runDeleteChain evaluates the steps in order and stops at the first success.
func (d *Deployer) runDeleteChain(ctx context.Context, log *slog.Logger, conn models.ConnectionDescriptor, slug string) chainResult {
	attempt := &deleteAttempt{conn: conn, slug: slug}
	last := chainResult{outcome: Outcome{
		Kind:      OutcomeConnectionFailure,
		ErrorKind: models.ErrorKindConnection,
		Message:   "No REST or FTP/SFTP connection is configured",

		TroubleshootingSteps: TroubleshootingSteps(models.ErrorKindConnection),
	}}

	for _, step := range d.deleteChain() {
		res := step.run(ctx, attempt)
		if res.skipped {
			log.Debug("Delete step skipped", "step", step.name)
			continue
		}
		if res.ok {
			log.Info("Delete step succeeded", "step", step.name)
			return chainResult{ok: true, transport: step.name, message: res.message, outcome: res.outcome}
		}
		log.Warn("Delete step failed", "step", step.name, "errorKind", res.outcome.ErrorKind, "message", res.outcome.Message)
		last = chainResult{transport: step.name, outcome: res.outcome}
	}
	return last
}

func (d *Deployer) deletePlugin(ctx context.Context, log *slog.Logger, conn models.ConnectionDescriptor, slug string) models.DeploymentOutcome {
	transition(log, StateDeleting)
	res := d.runDeleteChain(ctx, log, conn, slug)
	if !res.ok {
		return fromOutcome(res.outcome, res.transport)
	}
	return models.DeploymentOutcome{
		Status:    models.StatusSuccess,
		Message:   res.message,
		Transport: res.transport,
	}
}

func (d *Deployer) deleteViaREST(ctx context.Context, a *deleteAttempt) stepResult {
	if !a.conn.HasREST() {
		return stepResult{skipped: true}
	}
	o := d.call(ctx, a.conn, EndpointDeletePlugin, pluginRequest{APIKey: a.conn.APIKey, PluginSlug: a.slug}, d.timeouts.Delete())
	return stepResult{ok: o.Succeeded(), message: orDefault(o.Message, "Plugin deleted"), outcome: o}
}

// deleteViaRESTThenFTP asks the site whether the plugin is still present and
// falls back to FTP when it is, or when the site cannot answer.
func (d *Deployer) deleteViaRESTThenFTP(ctx context.Context, a *deleteAttempt) stepResult {
	if !a.conn.HasREST() {
		return stepResult{skipped: true}
	}

	restOutcome := d.call(ctx, a.conn, EndpointCheckPluginExists, pluginRequest{APIKey: a.conn.APIKey, PluginSlug: a.slug}, d.timeouts.Verify())
	if restOutcome.Succeeded() && !restOutcome.Bool("exists") {
		return stepResult{ok: true, message: "Plugin is no longer installed", outcome: restOutcome}
	}

	if !a.conn.HasFTP() {
		if restOutcome.Succeeded() {
			restOutcome = Outcome{
				Kind:      OutcomeStructuredError,
				ErrorKind: models.ErrorKindRemote,
				Message:   "The plugin is still installed and no FTP/SFTP connection is configured",

				TroubleshootingSteps: TroubleshootingSteps(models.ErrorKindRemote),
			}
		}
		return stepResult{outcome: restOutcome}
	}
	return d.ftpDelete(ctx, a)
}

func (d *Deployer) deleteViaFTP(ctx context.Context, a *deleteAttempt) stepResult {
	if !a.conn.HasFTP() || a.ftpAttempted {
		return stepResult{skipped: true}
	}
	return d.ftpDelete(ctx, a)
}

func (d *Deployer) ftpDelete(ctx context.Context, a *deleteAttempt) stepResult {
	a.ftpAttempted = true

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Delete())
	defer cancel()

	creds := *a.conn.FTP
	dir := PluginDir(creds, a.slug)
	err := WithSession(ctx, d.dialer, creds, func(s FileSession) error {
		return s.DeleteDirectoryRecursive(dir)
	})
	if err != nil {
		return stepResult{outcome: ClassifyTransportError(err)}
	}
	return stepResult{
		ok:      true,
		message: fmt.Sprintf("Plugin files removed from %s; WordPress deactivation hooks did not run", dir),
		outcome: Outcome{Kind: OutcomeSuccess},
	}
}

// UploadPluginFiles writes the packaged files straight into the plugins
// directory over FTP/SFTP. It bypasses WordPress entirely: the plugin still
// has to be activated from the admin screen.
func (d *Deployer) UploadPluginFiles(ctx context.Context, artifact models.PluginArtifact, creds models.FTPCredentials) models.DeploymentOutcome {
	slug := PluginSlug(artifact)
	log := utils.Logger().With("slug", slug, "operation", "upload-files")

	transition(log, StatePackaging)
	files, err := PackageFiles(artifact)
	if err != nil {
		return failure(models.ErrorKindPackaging, "Failed to package the plugin", err.Error(), "")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Install())
	defer cancel()

	dir := PluginDir(creds, slug)
	transition(log, StateUploading, "dir", dir, "files", len(files))
	err = WithSession(ctx, d.dialer, creds, func(s FileSession) error {
		for _, rel := range sortedKeys(files) {
			if err := s.UploadFile([]byte(files[rel]), dir+"/"+rel); err != nil {
				return err
			}
		}
		return nil
	})

	transport := string(creds.Protocol)
	if transport == "" {
		transport = TransportFTP
	}

	var outcome models.DeploymentOutcome
	if err != nil {
		outcome = fromOutcome(ClassifyTransportError(err), transport)
	} else {
		outcome = models.DeploymentOutcome{
			Status:    models.StatusSuccess,
			Message:   fmt.Sprintf("Uploaded %d files to %s; activate the plugin from the WordPress admin", len(files), dir),
			Transport: transport,
		}
	}
	transition(log, StateDone, "status", outcome.Status)
	d.record("upload", slug, outcome)
	return outcome
}

func (d *Deployer) call(ctx context.Context, conn models.ConnectionDescriptor, endpoint string, body any, timeout time.Duration) Outcome {
	resp, err := d.rest.PostJSON(ctx, conn.SiteURL, endpoint, body, timeout)
	if err != nil {
		return ClassifyTransportError(err)
	}
	return Classify(resp.Status, resp.Body)
}

func (d *Deployer) record(op models.Operation, slug string, o models.DeploymentOutcome) {
	if d.activity == nil {
		return
	}
	if o.Succeeded() {
		d.activity.Record(ActivityInfo, fmt.Sprintf("Plugin '%s' %s succeeded via %s.", slug, op, o.Transport), slug)
		return
	}
	d.activity.Record(ActivityError, fmt.Sprintf("Plugin '%s' %s failed: %s", slug, op, o.Message), slug)
}

func transition(log *slog.Logger, state DeployState, args ...any) {
	log.Info("Deployment state", append([]any{"state", state}, args...)...)
}

func failure(kind models.ErrorKind, message, details, transport string) models.DeploymentOutcome {
	return models.DeploymentOutcome{
		Status:               models.StatusFailure,
		ErrorKind:            kind,
		Message:              message,
		Details:              truncate(details, maxDetailsLen),
		TroubleshootingSteps: TroubleshootingSteps(kind),
		Transport:            transport,
	}
}

func fromOutcome(o Outcome, transport string) models.DeploymentOutcome {
	return models.DeploymentOutcome{
		Status:               models.StatusFailure,
		ErrorKind:            o.ErrorKind,
		Message:              o.Message,
		Details:              o.Details,
		TroubleshootingSteps: o.TroubleshootingSteps,
		WAFBlocked:           o.WAFBlocked,
		Transport:            transport,
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
