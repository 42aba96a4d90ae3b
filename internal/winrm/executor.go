// Package winrm wraps the WinRM transport used to run PowerShell on
// Windows targets. It handles NTLM auth, the cmd.exe 8191 character limit
// via temp file chunking, and synchronous exit code capture. Sessions are
// scoped to a single connect/run/close cycle; the deployment pipeline does
// not retry at this layer.
package winrm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	gowinrm "github.com/masterzen/winrm"
)

// Target describes a Windows machine to execute scripts on.
type Target struct {
	Hostname  string `json:"hostname"`
	Port      int    `json:"port"`
	Username  string `json:"username"` // DOMAIN\user format
	Password  string `json:"password"`
	UseSSL    bool   `json:"use_ssl"`
	VerifySSL bool   `json:"verify_ssl"`
}

// Addr returns hostname:port with the WinRM default applied.
func (t *Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Hostname, t.resolvedPort())
}

func (t *Target) resolvedPort() int {
	if t.Port != 0 {
		return t.Port
	}
	if t.UseSSL {
		return 5986
	}
	return 5985
}

// CommandResult is the raw outcome of one remote script execution.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

const (
	inlineScriptLimit = 2000 // chars before switching to temp file mode
	chunkSize         = 6000 // base64 chunk size for cmd.exe echo safety
	operationTimeout  = 120 * time.Second
)

// Session is an open WinRM shell on a target. Close must be called on
// every exit path; a leaked shell holds a remote session slot.
type Session struct {
	target *Target
	client *gowinrm.Client
	shell  *gowinrm.Shell
}

// Connect establishes a WinRM session against the target. The shell open
// is a real round trip, so a successful Connect doubles as a remoting
// handshake.
func Connect(target *Target) (*Session, error) {
	port := target.resolvedPort()
	endpoint := gowinrm.NewEndpoint(target.Hostname, port, target.UseSSL, !target.VerifySSL, nil, nil, nil, operationTimeout)

	// NTLM auth; Basic is rarely enabled in domain environments.
	params := gowinrm.NewParameters("PT120S", "en-US", 153600)
	params.TransportDecorator = func() gowinrm.Transporter { return &gowinrm.ClientNTLM{} }

	client, err := gowinrm.NewClientWithParameters(endpoint, target.Username, target.Password, params)
	if err != nil {
		return nil, fmt.Errorf("create WinRM client for %s: %w", target.Hostname, err)
	}

	shell, err := client.CreateShell()
	if err != nil {
		return nil, fmt.Errorf("open shell on %s:%d: %w", target.Hostname, port, err)
	}

	log.Printf("[winrm] Session open on %s:%d (ssl=%v)", target.Hostname, port, target.UseSSL)
	return &Session{target: target, client: client, shell: shell}, nil
}

// Close releases the remote shell.
func (s *Session) Close() {
	if s.shell != nil {
		s.shell.Close()
		s.shell = nil
		log.Printf("[winrm] Session closed on %s", s.target.Hostname)
	}
}

// Run executes a PowerShell script and blocks until it exits, honoring
// ctx. Long scripts go through a temp file on the target to dodge the
// cmd.exe command length limit.
func (s *Session) Run(ctx context.Context, script string) (*CommandResult, error) {
	if s.shell == nil {
		return nil, fmt.Errorf("session on %s already closed", s.target.Hostname)
	}

	if len(script) > inlineScriptLimit {
		return s.runViaTempFile(ctx, script)
	}
	return s.runEncoded(ctx, encodePowerShell(script))
}

// runEncoded launches powershell.exe -EncodedCommand and waits.
func (s *Session) runEncoded(ctx context.Context, encoded string) (*CommandResult, error) {
	cmd, err := s.shell.Execute("powershell.exe", "-NoProfile", "-NonInteractive", "-EncodedCommand", encoded)
	if err != nil {
		return nil, fmt.Errorf("execute on %s: %w", s.target.Hostname, err)
	}
	defer cmd.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	go io.Copy(&stdoutBuf, cmd.Stdout)
	go io.Copy(&stderrBuf, cmd.Stderr)

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		cmd.Close()
		return nil, fmt.Errorf("execution on %s interrupted: %w", s.target.Hostname, ctx.Err())
	}

	return &CommandResult{
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		ExitCode: cmd.ExitCode(),
	}, nil
}

// runViaTempFile writes the script to the target as chunked base64,
// decodes it into a .ps1, runs it, and removes both files afterwards.
func (s *Session) runViaTempFile(ctx context.Context, script string) (*CommandResult, error) {
	scriptHash := fmt.Sprintf("%x", sha256.Sum256([]byte(script)))[:8]
	tempB64 := fmt.Sprintf(`C:\Windows\Temp\winstall_%s.b64`, scriptHash)
	tempPS1 := fmt.Sprintf(`C:\Windows\Temp\winstall_%s.ps1`, scriptHash)

	encoded := base64.StdEncoding.EncodeToString([]byte(script))

	for i, chunk := range splitString(encoded, chunkSize) {
		op := ">"
		if i > 0 {
			op = ">>"
		}
		cmdStr := fmt.Sprintf(`echo %s%s"%s"`, chunk, op, tempB64)
		cmd, err := s.shell.Execute("cmd.exe", "/c", cmdStr)
		if err != nil {
			return nil, fmt.Errorf("write chunk %d: %w", i, err)
		}
		cmd.Wait()
		exit := cmd.ExitCode()
		cmd.Close()
		if exit != 0 {
			return nil, fmt.Errorf("write chunk %d failed: exit %d", i, exit)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chunk upload to %s interrupted: %w", s.target.Hostname, ctx.Err())
		default:
		}
	}

	decodeAndRun := fmt.Sprintf(
		`$r=(Get-Content '%s' -Raw) -replace '\s',''; `+
			`$b=[Convert]::FromBase64String($r); `+
			`[IO.File]::WriteAllText('%s',[Text.Encoding]::UTF8.GetString($b)); `+
			`Remove-Item '%s' -Force -EA SilentlyContinue; `+
			`try { & '%s' } finally { Remove-Item '%s' -Force -EA SilentlyContinue }`,
		tempB64, tempPS1, tempB64, tempPS1, tempPS1,
	)

	return s.runEncoded(ctx, encodePowerShell(decodeAndRun))
}

// encodePowerShell encodes a script for PowerShell's -EncodedCommand
// parameter, which expects UTF-16LE base64.
func encodePowerShell(script string) string {
	utf16 := make([]byte, len(script)*2)
	for i, c := range []byte(script) {
		utf16[i*2] = c
		utf16[i*2+1] = 0
	}
	return base64.StdEncoding.EncodeToString(utf16)
}

func splitString(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		end := size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
