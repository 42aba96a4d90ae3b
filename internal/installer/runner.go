// Package installer runs the staged installer on the target and
// classifies its outcome. The remote side is driven by an explicit JSON
// request/response contract: the request is serialized into the generated
// PowerShell, and the script's only stdout is the serialized response.
// Nothing crosses the boundary implicitly.
package installer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/opsdeck/winstall/internal/winrm"
)

// Request describes one installer execution on the target.
type Request struct {
	InstallerPath     string `json:"installer_path"` // staged path on the target
	InstallDir        string `json:"install_dir"`
	AddToPath         bool   `json:"-"`
	RegisterAsDefault bool   `json:"-"`
	Args              string `json:"args"` // derived from the option flags, see BuildArgs
	VerifyRelPath     string `json:"verify_rel_path"`
}

// response is what the remote script prints as its final line.
type response struct {
	PreconditionOK  bool   `json:"precondition_ok"`
	ExitCode        int    `json:"exit_code"`
	ArtifactPresent bool   `json:"artifact_present"`
	CleanupOK       bool   `json:"cleanup_ok"`
	Error           string `json:"error,omitempty"`
}

// Status classifies the raw installer exit code.
type Status int

const (
	StatusSuccess Status = iota
	StatusUserCancelled
	StatusInstallerAborted
	StatusTimedOut
	StatusUnexpected
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUserCancelled:
		return "user-cancelled"
	case StatusInstallerAborted:
		return "installer-aborted"
	case StatusTimedOut:
		return "timed-out"
	default:
		return "unexpected"
	}
}

// Outcome is what execution produced. The raw exit code is preserved
// verbatim; operators depend on the distinction between a user cancel
// and an environmental abort.
type Outcome struct {
	PreconditionOK  bool
	RawExitCode     int
	Status          Status
	ArtifactPresent bool
	CleanupOK       bool
	RemoteError     string
}

// SessionError marks a failure to establish the remote session, as
// opposed to a failure of the installer itself.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("remote session: %v", e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// PreconditionError marks the staged installer missing at execution time.
// Staging and execution may be decoupled in time, so this is re-checked
// remotely even though the stager already verified it.
type PreconditionError struct {
	Path string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("installer not present at %s", e.Path)
}

// BuildArgs produces the installer's fixed argument contract. The /D=
// flag must be the final token and must not be quoted; that is a hard
// constraint of the installer format.
func BuildArgs(addToPath, registerAsDefault bool, installDir string) string {
	return fmt.Sprintf("/S /AddToPath=%d /RegisterPython=%d /D=%s",
		boolFlag(addToPath), boolFlag(registerAsDefault), installDir)
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Channel runs a script on the target. Satisfied by *winrm.Session.
type Channel interface {
	Run(ctx context.Context, script string) (*winrm.CommandResult, error)
	Close()
}

// Runner executes installers over a session-per-call channel.
type Runner struct {
	// connect is swapped out in tests; the default opens a WinRM session.
	connect func(target *winrm.Target) (Channel, error)
}

// NewRunner creates a Runner backed by WinRM.
func NewRunner() *Runner {
	return &Runner{
		connect: func(target *winrm.Target) (Channel, error) {
			return winrm.Connect(target)
		},
	}
}

// Execute stages nothing and retries nothing: it opens a session, drives
// one installer run to completion, and classifies the result. The session
// is released on every exit path. timeout of zero waits indefinitely,
// matching the original behavior; a positive timeout bounds the wait and
// classifies expiry as its own status.
func (r *Runner) Execute(ctx context.Context, target *winrm.Target, req Request, timeout time.Duration) (*Outcome, error) {
	if req.Args == "" {
		req.Args = BuildArgs(req.AddToPath, req.RegisterAsDefault, req.InstallDir)
	}

	sess, err := r.connect(target)
	if err != nil {
		return nil, &SessionError{Err: err}
	}
	defer sess.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	script, err := buildScript(req)
	if err != nil {
		return nil, fmt.Errorf("build install script: %w", err)
	}

	log.Printf("[installer] Running %s on %s (args: %s)", req.InstallerPath, target.Hostname, req.Args)
	cmdResult, err := sess.Run(ctx, script)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &Outcome{PreconditionOK: true, RawExitCode: -1, Status: StatusTimedOut, CleanupOK: false,
				RemoteError: fmt.Sprintf("installer did not finish within %s", timeout)}, nil
		}
		return nil, fmt.Errorf("run install script: %w", err)
	}

	resp, err := parseResponse(cmdResult.Stdout)
	if err != nil {
		return nil, fmt.Errorf("parse install response (stdout=%q stderr=%q): %w",
			cmdResult.Stdout, cmdResult.Stderr, err)
	}

	if !resp.PreconditionOK {
		return nil, &PreconditionError{Path: req.InstallerPath}
	}

	outcome := &Outcome{
		PreconditionOK:  true,
		RawExitCode:     resp.ExitCode,
		Status:          classify(resp.ExitCode),
		ArtifactPresent: resp.ArtifactPresent,
		CleanupOK:       resp.CleanupOK,
		RemoteError:     resp.Error,
	}

	log.Printf("[installer] %s: exit=%d status=%s artifact=%v cleanup_ok=%v",
		target.Hostname, outcome.RawExitCode, outcome.Status, outcome.ArtifactPresent, outcome.CleanupOK)
	return outcome, nil
}

func classify(exitCode int) Status {
	switch exitCode {
	case 0:
		return StatusSuccess
	case 1:
		return StatusUserCancelled
	default:
		return StatusInstallerAborted
	}
}

// buildScript generates the remote PowerShell. The request rides across
// as base64 JSON; the response comes back as the script's last stdout
// line. Cleanup of the staged installer is best effort and runs on every
// outcome except a failed precondition.
func buildScript(req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	b64 := base64.StdEncoding.EncodeToString(payload)

	return fmt.Sprintf(installScript, b64), nil
}

const installScript = `
$resp = @{ precondition_ok = $false; exit_code = -1; artifact_present = $false; cleanup_ok = $true; error = "" }
try {
    $req = [Text.Encoding]::UTF8.GetString([Convert]::FromBase64String('%s')) | ConvertFrom-Json
    if (-not (Test-Path -LiteralPath $req.installer_path)) {
        $resp.error = "installer not found at $($req.installer_path)"
    } else {
        $resp.precondition_ok = $true
        try {
            $p = Start-Process -FilePath $req.installer_path -ArgumentList $req.args -Wait -PassThru
            $resp.exit_code = $p.ExitCode
            if ($p.ExitCode -eq 0 -and $req.verify_rel_path) {
                $resp.artifact_present = Test-Path -LiteralPath (Join-Path $req.install_dir $req.verify_rel_path)
            }
        } finally {
            try { Remove-Item -LiteralPath $req.installer_path -Force -ErrorAction Stop } catch { $resp.cleanup_ok = $false }
        }
    }
} catch {
    $resp.error = $_.Exception.Message
}
$resp | ConvertTo-Json -Compress
`

// parseResponse extracts the JSON response from stdout. The response is
// the last non-empty line; installers occasionally splash text before it.
func parseResponse(stdout string) (*response, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var resp response
		if err := json.Unmarshal([]byte(line), &resp); err == nil {
			return &resp, nil
		}
	}
	return nil, fmt.Errorf("no JSON response found")
}
