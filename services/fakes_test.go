package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"wordpress-plugin-generator/models"
)

// fakeSession is a FileSession whose behavior is set per test.
type fakeSession struct {
	trace *[]string

	ListDirectoryFunc            func(dir string) ([]RemoteEntry, error)
	UploadFileFunc               func(content []byte, remotePath string) error
	DownloadFileFunc             func(remotePath string) ([]byte, error)
	DeleteDirectoryRecursiveFunc func(dir string) error
	CloseFunc                    func() error

	uploaded   map[string][]byte
	closeCalls int
}

func (s *fakeSession) note(event string) {
	if s.trace != nil {
		*s.trace = append(*s.trace, event)
	}
}

func (s *fakeSession) ListDirectory(dir string) ([]RemoteEntry, error) {
	s.note("ftp:list " + dir)
	if s.ListDirectoryFunc != nil {
		return s.ListDirectoryFunc(dir)
	}
	return nil, nil
}

func (s *fakeSession) UploadFile(content []byte, remotePath string) error {
	s.note("ftp:upload " + remotePath)
	if s.UploadFileFunc != nil {
		return s.UploadFileFunc(content, remotePath)
	}
	if s.uploaded == nil {
		s.uploaded = map[string][]byte{}
	}
	s.uploaded[remotePath] = content
	return nil
}

func (s *fakeSession) DownloadFile(remotePath string) ([]byte, error) {
	s.note("ftp:download " + remotePath)
	if s.DownloadFileFunc != nil {
		return s.DownloadFileFunc(remotePath)
	}
	return nil, ErrRemoteNotFound
}

func (s *fakeSession) DeleteDirectoryRecursive(dir string) error {
	s.note("ftp:delete " + dir)
	if s.DeleteDirectoryRecursiveFunc != nil {
		return s.DeleteDirectoryRecursiveFunc(dir)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.closeCalls++
	if s.CloseFunc != nil {
		return s.CloseFunc()
	}
	return nil
}

// fakeDialer hands out one fakeSession or fails to connect.
type fakeDialer struct {
	session *fakeSession
	err     error
	dials   int
}

func (d *fakeDialer) Dial(ctx context.Context, creds models.FTPCredentials) (FileSession, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

type restCall struct {
	Endpoint string
	Body     any
}

// fakeREST records calls and answers through respond.
type fakeREST struct {
	trace   *[]string
	calls   []restCall
	respond func(endpoint string, body any) (RawResponse, error)
}

func (f *fakeREST) PostJSON(ctx context.Context, siteURL, endpoint string, body any, timeout time.Duration) (RawResponse, error) {
	f.calls = append(f.calls, restCall{Endpoint: endpoint, Body: body})
	if f.trace != nil {
		*f.trace = append(*f.trace, "rest:"+endpoint)
	}
	if f.respond == nil {
		return RawResponse{}, errUnreachable
	}
	return f.respond(endpoint, body)
}

func (f *fakeREST) endpoints() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Endpoint
	}
	return out
}

func jsonResponse(status int, v any) RawResponse {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return RawResponse{Status: status, Body: string(b)}
}

func okJSON(v map[string]any) RawResponse {
	v["success"] = true
	return jsonResponse(http.StatusOK, v)
}

func errJSON(status int, message string) RawResponse {
	return jsonResponse(status, map[string]any{"success": false, "message": message})
}

var errUnreachable = errors.New("dial tcp: connection refused")

func testConnection(withREST, withFTP bool) models.ConnectionDescriptor {
	var conn models.ConnectionDescriptor
	if withREST {
		conn.APIKey = "secret-key"
		conn.SiteURL = "https://example.com"
	}
	if withFTP {
		conn.FTP = &models.FTPCredentials{
			Host:     "example.com",
			Username: "deploy",
			Password: "pw",
			Protocol: models.ProtocolSFTP,
			RootPath: "/var/www/html",
		}
	}
	return conn
}
