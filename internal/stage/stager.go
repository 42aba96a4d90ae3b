// Package stage places the installer artifact on the target before
// execution. The copy deliberately travels over a path independent of the
// remote command channel (administrative share or SFTP) so staging never
// hits the double-hop credential problem.
package stage

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Step identifies which staging step failed.
type Step int

const (
	StepNone Step = iota
	StepDirectory
	StepSource
	StepCopy
	StepVerify
)

func (s Step) String() string {
	switch s {
	case StepDirectory:
		return "directory"
	case StepSource:
		return "source"
	case StepCopy:
		return "copy"
	case StepVerify:
		return "verify"
	default:
		return "none"
	}
}

// StepError carries the failed step alongside the underlying error so the
// orchestrator can map each step to its own status code.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("staging %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// TransferResult records how far staging got. Each field is only
// meaningful if the ones before it are true.
type TransferResult struct {
	DestinationDirectoryReady bool
	SourceExists              bool
	CopySucceeded             bool
	DestinationVerified       bool
}

// Transport reaches the target's filesystem. Implementations must be
// independent of the WinRM command channel.
type Transport interface {
	// RemotePath translates a Windows path on the target (C:\Staging)
	// into the address this transport uses to reach it.
	RemotePath(winPath string) string
	EnsureDir(path string) error
	Exists(path string) (bool, error)
	Copy(localPath, remotePath string) error
	Remove(path string) error
	Close() error
}

// Stager copies the installer to the target's staging directory.
type Stager struct {
	transport Transport
}

// New creates a Stager over the given transport.
func New(t Transport) *Stager {
	return &Stager{transport: t}
}

// Stage runs the four staging steps in order, stopping at the first
// failure. Directory creation is idempotent and the copy overwrites, so
// a whole-pipeline retry is always safe. A reported copy success is not
// trusted; the post-copy existence check is the authoritative signal.
func (s *Stager) Stage(ctx context.Context, sourceDir, filename, stagingDir string) (TransferResult, error) {
	var result TransferResult

	select {
	case <-ctx.Done():
		return result, &StepError{Step: StepDirectory, Err: ctx.Err()}
	default:
	}

	remoteDir := s.transport.RemotePath(stagingDir)
	if err := s.transport.EnsureDir(remoteDir); err != nil {
		return result, &StepError{Step: StepDirectory, Err: err}
	}
	result.DestinationDirectoryReady = true
	log.Printf("[stage] Staging directory ready: %s", remoteDir)

	// Fail fast on a missing source rather than discovering it mid-copy.
	localPath := filepath.Join(sourceDir, filename)
	if _, err := os.Stat(localPath); err != nil {
		return result, &StepError{Step: StepSource, Err: fmt.Errorf("source artifact %s: %w", localPath, err)}
	}
	result.SourceExists = true

	remotePath := s.transport.RemotePath(WinJoin(stagingDir, filename))
	if err := s.transport.Copy(localPath, remotePath); err != nil {
		return result, &StepError{Step: StepCopy, Err: err}
	}
	result.CopySucceeded = true
	log.Printf("[stage] Copied %s -> %s", localPath, remotePath)

	ok, err := s.transport.Exists(remotePath)
	if err != nil {
		return result, &StepError{Step: StepVerify, Err: err}
	}
	if !ok {
		return result, &StepError{Step: StepVerify, Err: fmt.Errorf("staged file %s not found after copy", remotePath)}
	}
	result.DestinationVerified = true

	return result, nil
}

// WinJoin joins Windows path segments with backslashes. filepath.Join is
// unusable here because the tool may run on a non-Windows host while all
// staged paths are on the Windows target.
func WinJoin(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.Trim(p, `\`)
	}
	return strings.Join(parts, `\`)
}
