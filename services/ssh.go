package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/utils"
)

// hostKeyCallback verifies against known_hosts when a path is configured.
func hostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// GetSSHClient establishes an SSH connection to the remote server.
func GetSSHClient(ctx context.Context, creds models.FTPCredentials, timeout time.Duration, knownHostsPath string) (*ssh.Client, error) {
	hostKeys, err := hostKeyCallback(knownHostsPath)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User: creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(creds.Password),
		},
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", creds.Address())
	if err != nil {
		utils.LogError("Failed to dial SSH", "host", creds.Host, "error", err)
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}

	// bound the handshake by the same timeout as the dial
	_ = conn.SetDeadline(time.Now().Add(timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, creds.Address(), sshConfig)
	if err != nil {
		conn.Close()
		utils.LogError("SSH handshake failed", "host", creds.Host, "user", creds.Username, "error", err)
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	utils.LogInfo("SSH connection established", "host", creds.Host)
	return ssh.NewClient(c, chans, reqs), nil
}

// GetSFTPClient creates an SFTP client from an SSH client.
func GetSFTPClient(client *ssh.Client) (*sftp.Client, error) {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		utils.LogError("Failed to create SFTP client", "error", err)
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	utils.LogDebug("SFTP client created")
	return sftpClient, nil
}

// sftpSession is a FileSession over SFTP.
type sftpSession struct {
	ssh  *ssh.Client
	sftp *sftp.Client
	host string
}

// DialSFTP opens an SSH connection and an SFTP subsystem on top of it.
func DialSFTP(ctx context.Context, creds models.FTPCredentials, timeout time.Duration, knownHostsPath string) (FileSession, error) {
	client, err := GetSSHClient(ctx, creds, timeout, knownHostsPath)
	if err != nil {
		return nil, err
	}
	sftpClient, err := GetSFTPClient(client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &sftpSession{ssh: client, sftp: sftpClient, host: creds.Host}, nil
}

func (s *sftpSession) ListDirectory(dir string) ([]RemoteEntry, error) {
	infos, err := s.sftp.ReadDir(dir)
	if err != nil {
		return nil, sftpPathError(err, dir)
	}
	out := make([]RemoteEntry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, RemoteEntry{
			Name:    fi.Name(),
			IsDir:   fi.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	return out, nil
}

// UploadFile uploads a file to the remote server via SFTP.
func (s *sftpSession) UploadFile(content []byte, remotePath string) error {
	if err := s.sftp.MkdirAll(path.Dir(remotePath)); err != nil {
		utils.LogError("Failed to create remote directory", "path", path.Dir(remotePath), "error", err)
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	remoteFile, err := s.sftp.Create(remotePath)
	if err != nil {
		utils.LogError("Failed to create remote file", "path", remotePath, "error", err)
		return fmt.Errorf("failed to create remote file: %w", err)
	}

	if err := writeAndClose(remoteFile, content); err != nil {
		utils.LogError("Failed to write to remote file", "path", remotePath, "error", err)
		return fmt.Errorf("failed to write to remote file: %w", err)
	}
	utils.LogDebug("File uploaded over SFTP", "path", remotePath, "bytes", len(content))
	return nil
}

func (s *sftpSession) DownloadFile(remotePath string) ([]byte, error) {
	f, err := s.sftp.Open(remotePath)
	if err != nil {
		return nil, sftpPathError(err, remotePath)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", remotePath, err)
	}
	return data, nil
}

// DeleteDirectoryRecursive attempts every child and reports all failures together.
func (s *sftpSession) DeleteDirectoryRecursive(dir string) error {
	return deleteTree(s, dir, true)
}

func (s *sftpSession) removeFile(p string) error {
	if err := s.sftp.Remove(p); err != nil {
		return sftpPathError(err, p)
	}
	return nil
}

func (s *sftpSession) removeDir(p string) error {
	if err := s.sftp.RemoveDirectory(p); err != nil {
		return sftpPathError(err, p)
	}
	return nil
}

func (s *sftpSession) Close() error {
	return errors.Join(s.sftp.Close(), s.ssh.Close())
}

func sftpPathError(err error, p string) error {
	var status *sftp.StatusError
	if errors.Is(err, os.ErrNotExist) || (errors.As(err, &status) && status.FxCode() == sftp.ErrSSHFxNoSuchFile) {
		return fmt.Errorf("%s: %w", p, ErrRemoteNotFound)
	}
	return fmt.Errorf("%s: %w", p, err)
}

// writeAndClose writes content and reports a failed close, which is where a
// buffered remote write surfaces its last error.
func writeAndClose(w io.WriteCloser, content []byte) error {
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
