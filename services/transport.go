package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/utils"
)

// ErrRemoteNotFound is wrapped by sessions when a remote path does not exist.
var ErrRemoteNotFound = errors.New("remote path not found")

// RemoteEntry is one item of a remote directory listing.
type RemoteEntry struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"isDir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// FileSession is an open FTP or SFTP connection. Sessions are only used
// through WithSession so that Close always runs.
type FileSession interface {
	ListDirectory(dir string) ([]RemoteEntry, error)
	// UploadFile writes content to remotePath, creating parent directories.
	UploadFile(content []byte, remotePath string) error
	DownloadFile(remotePath string) ([]byte, error)
	DeleteDirectoryRecursive(dir string) error
	Close() error
}

// SessionDialer opens file sessions.
type SessionDialer interface {
	Dial(ctx context.Context, creds models.FTPCredentials) (FileSession, error)
}

// Dialer dispatches to the FTP or SFTP adapter based on the credential protocol.
type Dialer struct {
	ConnectTimeout time.Duration
	// KnownHostsPath enables SFTP host key verification when set.
	KnownHostsPath string
}

func NewDialer(connectTimeout time.Duration, knownHostsPath string) *Dialer {
	return &Dialer{ConnectTimeout: connectTimeout, KnownHostsPath: knownHostsPath}
}

func (d *Dialer) Dial(ctx context.Context, creds models.FTPCredentials) (FileSession, error) {
	switch creds.Protocol {
	case models.ProtocolSFTP:
		return DialSFTP(ctx, creds, d.ConnectTimeout, d.KnownHostsPath)
	case models.ProtocolFTP, "":
		return DialFTP(ctx, creds, d.ConnectTimeout)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", creds.Protocol)
	}
}

// WithSession dials a session, runs fn with it and closes it exactly once,
// whether fn returns an error or panics. The session is also closed when ctx
// ends, which aborts a command still in flight.
func WithSession(ctx context.Context, dialer SessionDialer, creds models.FTPCredentials, fn func(FileSession) error) (err error) {
	session, err := dialer.Dial(ctx, creds)
	if err != nil {
		return err
	}

	var once sync.Once
	closeSession := func() {
		once.Do(func() {
			if cerr := session.Close(); cerr != nil {
				utils.LogWarn("Failed to close file session", "host", creds.Host, "error", cerr)
			}
		})
	}
	stop := context.AfterFunc(ctx, closeSession)
	defer func() {
		stop()
		closeSession()
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
	}()
	return fn(session)
}

// TransportError is a transport failure already mapped onto the error taxonomy.
type TransportError struct {
	Kind    models.ErrorKind
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// WordPressPath joins rel onto the WordPress root of the credentials.
func WordPressPath(creds models.FTPCredentials, rel string) string {
	root := strings.TrimSpace(creds.RootPath)
	if root == "" {
		root = "/"
	}
	return path.Join(root, rel)
}

// PluginDir is the remote directory of a plugin.
func PluginDir(creds models.FTPCredentials, slug string) string {
	return WordPressPath(creds, "wp-content/plugins/"+slug)
}

// DebugLogPath is the remote location of the WordPress debug log.
func DebugLogPath(creds models.FTPCredentials) string {
	return WordPressPath(creds, "wp-content/debug.log")
}

// treeFS is the subset of a session needed for recursive deletes.
type treeFS interface {
	ListDirectory(dir string) ([]RemoteEntry, error)
	removeFile(p string) error
	removeDir(p string) error
}

// deleteTree removes dir depth-first. With collect set, every child is
// attempted and failures are returned together; otherwise the first failure
// stops the walk. Paths that are already gone count as deleted.
func deleteTree(fs treeFS, dir string, collect bool) error {
	entries, err := fs.ListDirectory(dir)
	if errors.Is(err, ErrRemoteNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var errs []error
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child := path.Join(dir, e.Name)

		var err error
		if e.IsDir {
			err = deleteTree(fs, child, collect)
		} else if err = fs.removeFile(child); errors.Is(err, ErrRemoteNotFound) {
			err = nil
		}
		if err == nil {
			continue
		}
		if !collect {
			return err
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := fs.removeDir(dir); err != nil && !errors.Is(err, ErrRemoteNotFound) {
		return fmt.Errorf("failed to remove directory %s: %w", dir, err)
	}
	return nil
}

// parentDirs returns every ancestor directory of p, outermost first.
func parentDirs(p string) []string {
	var dirs []string
	for dir := path.Dir(p); dir != "/" && dir != "." && dir != ""; dir = path.Dir(dir) {
		dirs = append([]string{dir}, dirs...)
	}
	return dirs
}
