package stage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ShareTransport reaches the target's drive through its administrative
// share (C:\Staging -> \\host\C$\Staging). When the share is mounted
// locally (the usual setup on a non-Windows deploy host), MountPoint
// redirects paths under the mount instead of using UNC syntax.
type ShareTransport struct {
	Host       string
	MountPoint string // optional local mount of the admin share
}

// NewShareTransport creates a transport for the target's admin share.
func NewShareTransport(host, mountPoint string) *ShareTransport {
	return &ShareTransport{Host: host, MountPoint: mountPoint}
}

// RemotePath converts a Windows drive path into the share address.
func (t *ShareTransport) RemotePath(winPath string) string {
	drive := "C"
	rest := winPath
	if len(winPath) >= 2 && winPath[1] == ':' {
		drive = strings.ToUpper(winPath[:1])
		rest = winPath[2:]
	}
	rest = strings.Trim(rest, `\`)

	if t.MountPoint != "" {
		return filepath.Join(t.MountPoint, filepath.FromSlash(strings.ReplaceAll(rest, `\`, "/")))
	}
	return fmt.Sprintf(`\\%s\%s$\%s`, t.Host, drive, rest)
}

// EnsureDir creates the directory if absent. An existing directory is
// success, which keeps staging idempotent.
func (t *ShareTransport) EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Exists reports whether the path is present on the share.
func (t *ShareTransport) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Copy writes localPath to remotePath, overwriting any previous copy.
func (t *ShareTransport) Copy(localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy: %w", err)
	}
	return dst.Close()
}

// Remove deletes the path on the share.
func (t *ShareTransport) Remove(path string) error {
	return os.Remove(path)
}

// Close is a no-op; the share transport holds no connection.
func (t *ShareTransport) Close() error {
	return nil
}
