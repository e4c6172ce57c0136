package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"time"

	"github.com/jlaffaye/ftp"

	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/utils"
)

// ftpSession is a FileSession over FTP or explicit FTPS.
type ftpSession struct {
	conn *ftp.ServerConn
	host string
}

// DialFTP connects and logs in. Explicit TLS is negotiated when creds.Secure is set.
func DialFTP(ctx context.Context, creds models.FTPCredentials, timeout time.Duration) (FileSession, error) {
	opts := []ftp.DialOption{
		ftp.DialWithTimeout(timeout),
		ftp.DialWithContext(ctx),
	}
	if creds.Secure {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: creds.Host,
			MinVersion: tls.VersionTLS12,
		}))
	}

	conn, err := ftp.Dial(creds.Address(), opts...)
	if err != nil {
		utils.LogError("Failed to dial FTP", "host", creds.Host, "error", err)
		return nil, fmt.Errorf("failed to dial FTP: %w", err)
	}

	if err := conn.Login(creds.Username, creds.Password); err != nil {
		_ = conn.Quit()
		utils.LogError("FTP login failed", "host", creds.Host, "user", creds.Username, "error", err)
		return nil, fmt.Errorf("failed to log in to FTP: %w", err)
	}

	utils.LogInfo("FTP connection established", "host", creds.Host, "secure", creds.Secure)
	return &ftpSession{conn: conn, host: creds.Host}, nil
}

func (s *ftpSession) ListDirectory(dir string) ([]RemoteEntry, error) {
	entries, err := s.conn.List(dir)
	if err != nil {
		return nil, ftpPathError(err, dir)
	}

	out := make([]RemoteEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, RemoteEntry{
			Name:    e.Name,
			IsDir:   e.Type == ftp.EntryTypeFolder,
			Size:    int64(e.Size),
			ModTime: e.Time,
		})
	}
	return out, nil
}

func (s *ftpSession) UploadFile(content []byte, remotePath string) error {
	for _, dir := range parentDirs(remotePath) {
		// existing directories answer 550; the Stor below reports real failures
		_ = s.conn.MakeDir(dir)
	}
	if err := s.conn.Stor(remotePath, bytes.NewReader(content)); err != nil {
		utils.LogError("Failed to upload file over FTP", "path", remotePath, "error", err)
		return fmt.Errorf("failed to upload %s: %w", remotePath, err)
	}
	utils.LogDebug("File uploaded over FTP", "path", remotePath, "bytes", len(content))
	return nil
}

func (s *ftpSession) DownloadFile(remotePath string) ([]byte, error) {
	resp, err := s.conn.Retr(remotePath)
	if err != nil {
		return nil, ftpPathError(err, remotePath)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", remotePath, err)
	}
	return data, nil
}

// DeleteDirectoryRecursive stops at the first failure. A half-deleted plugin
// directory is acceptable because it is replaced right after.
func (s *ftpSession) DeleteDirectoryRecursive(dir string) error {
	return deleteTree(s, dir, false)
}

func (s *ftpSession) removeFile(p string) error {
	if err := s.conn.Delete(p); err != nil {
		return ftpPathError(err, p)
	}
	return nil
}

func (s *ftpSession) removeDir(p string) error {
	if err := s.conn.RemoveDir(p); err != nil {
		return ftpPathError(err, p)
	}
	return nil
}

func (s *ftpSession) Close() error {
	if err := s.conn.Quit(); err != nil {
		return fmt.Errorf("failed to close FTP connection to %s: %w", s.host, err)
	}
	return nil
}

// ftpPathError marks "file unavailable" replies as ErrRemoteNotFound.
func ftpPathError(err error, p string) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable {
		return fmt.Errorf("%s: %w (%s)", p, ErrRemoteNotFound, protoErr.Msg)
	}
	return fmt.Errorf("%s: %w", p, err)
}
