package stage

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPConfig describes the SSH endpoint used for staging on targets that
// run an OpenSSH server instead of exposing the admin share.
type SFTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	KeyPath  string // optional private key; password auth is used when empty
}

// SFTPTransport stages files over SFTP.
type SFTPTransport struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
}

// NewSFTPTransport dials the target and opens an SFTP subsystem.
func NewSFTPTransport(cfg SFTPConfig) (*SFTPTransport, error) {
	var authMethods []ssh.AuthMethod

	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse SSH key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no SSH authentication methods available")
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}

	sshClient, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", cfg.Host, port), sshConfig)
	if err != nil {
		return nil, fmt.Errorf("dial SSH %s:%d: %w", cfg.Host, port, err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("open SFTP: %w", err)
	}

	return &SFTPTransport{sshClient: sshClient, sftpClient: sftpClient}, nil
}

// RemotePath converts a Windows drive path into the forward-slash form
// Windows OpenSSH expects (C:\Staging -> C:/Staging).
func (t *SFTPTransport) RemotePath(winPath string) string {
	return strings.ReplaceAll(winPath, `\`, "/")
}

// EnsureDir creates the directory tree if absent.
func (t *SFTPTransport) EnsureDir(path string) error {
	return t.sftpClient.MkdirAll(path)
}

// Exists reports whether the remote path is present.
func (t *SFTPTransport) Exists(path string) (bool, error) {
	_, err := t.sftpClient.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Copy uploads localPath to remotePath, overwriting any previous copy.
func (t *SFTPTransport) Copy(localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := t.sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("upload: %w", err)
	}
	return dst.Close()
}

// Remove deletes the remote path.
func (t *SFTPTransport) Remove(path string) error {
	return t.sftpClient.Remove(path)
}

// Close tears down the SFTP subsystem and the SSH connection.
func (t *SFTPTransport) Close() error {
	if t.sftpClient != nil {
		t.sftpClient.Close()
	}
	if t.sshClient != nil {
		return t.sshClient.Close()
	}
	return nil
}
