// Package deploy sequences a deployment attempt: pre-flight checks,
// artifact staging, installer execution with verification and cleanup,
// then aggregation into a single status code plus an ordered leveled
// message stream. Every stage gates the next; the first failure ends the
// attempt. Nothing here retries — retry is the caller re-invoking the
// whole pipeline.
package deploy

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/opsdeck/winstall/internal/installer"
	"github.com/opsdeck/winstall/internal/probe"
	"github.com/opsdeck/winstall/internal/stage"
	"github.com/opsdeck/winstall/internal/winrm"
)

// Prober runs the pre-flight connectivity checks.
type Prober interface {
	Probe(ctx context.Context, host string) probe.Report
}

// Stager places the installer on the target.
type Stager interface {
	Stage(ctx context.Context, sourceDir, filename, stagingDir string) (stage.TransferResult, error)
}

// Runner executes the staged installer.
type Runner interface {
	Execute(ctx context.Context, target *winrm.Target, req installer.Request, timeout time.Duration) (*installer.Outcome, error)
}

// Deployer owns one attempt's state machine. A Deployer is stateless
// between calls; concurrent Deploy calls against distinct hosts are safe.
// Deploying to the same host twice concurrently is the caller's bug.
type Deployer struct {
	prober Prober
	stager Stager
	runner Runner
}

// NewDeployer wires the pipeline stages together.
func NewDeployer(p Prober, s Stager, r Runner) *Deployer {
	return &Deployer{prober: p, stager: s, runner: r}
}

// Deploy drives one attempt end to end and never panics or propagates an
// unclassified error; every failure maps to a status code.
func (d *Deployer) Deploy(ctx context.Context, req Request) Result {
	msgs := &MessageLog{}

	// Precondition gates: nothing is attempted against the target.
	if req.TargetHost == "" {
		msgs.Errorf("no target host supplied")
		return Result{Code: CodeNoTarget, Messages: msgs.Messages()}
	}
	if req.Username == "" || req.Password == "" {
		msgs.Errorf("administrative credentials are required to deploy to %s", req.TargetHost)
		return Result{Code: CodeNotPrivileged, Messages: msgs.Messages()}
	}

	log.Printf("[deploy] Starting deployment of %s to %s", req.InstallerFilename, req.TargetHost)
	msgs.Infof("deploying %s to %s", req.InstallerFilename, req.TargetHost)

	if code, done := d.runProbe(ctx, req, msgs); done {
		return Result{Code: code, Messages: msgs.Messages()}
	}

	if code, done := d.runStage(ctx, req, msgs); done {
		return Result{Code: code, Messages: msgs.Messages()}
	}

	code := d.runInstall(ctx, req, msgs)
	result := Result{Code: code, Messages: msgs.Messages()}
	log.Printf("[deploy] Deployment to %s finished with code %d", req.TargetHost, result.Code)
	return result
}

// runProbe maps each pre-flight failure stage to its status code.
func (d *Deployer) runProbe(ctx context.Context, req Request, msgs *MessageLog) (int, bool) {
	report := d.prober.Probe(ctx, req.TargetHost)

	switch report.FailStage {
	case probe.FailDNS:
		msgs.Errorf("%s: %s", req.TargetHost, report.Detail)
		return CodeNameResolution, true
	case probe.FailPing:
		msgs.Errorf("%s: %s", req.TargetHost, report.Detail)
		return CodeUnreachable, true
	case probe.FailRemoting:
		msgs.Errorf("%s: %s", req.TargetHost, report.Detail)
		return CodeRemotingMissing, true
	}

	msgs.Infof("%s: resolved, reachable, remote execution available", req.TargetHost)
	return 0, false
}

// runStage maps each staging step failure to its status code.
func (d *Deployer) runStage(ctx context.Context, req Request, msgs *MessageLog) (int, bool) {
	_, err := d.stager.Stage(ctx, req.SourceDir, req.InstallerFilename, req.StagingDir)
	if err == nil {
		msgs.Infof("staged %s into %s", req.InstallerFilename, req.StagingDir)
		return 0, false
	}

	var stepErr *stage.StepError
	if !errors.As(err, &stepErr) {
		msgs.Errorf("staging failed: %v", err)
		return CodeUnexpected, true
	}

	msgs.Errorf("%v", stepErr)
	switch stepErr.Step {
	case stage.StepDirectory:
		return CodeStagingDirFailed, true
	case stage.StepSource:
		return CodeArtifactNotFound, true
	case stage.StepCopy:
		return CodeTransferFailed, true
	case stage.StepVerify:
		return CodeTransferUnverified, true
	default:
		return CodeUnexpected, true
	}
}

// runInstall executes the installer and aggregates the final code.
func (d *Deployer) runInstall(ctx context.Context, req Request, msgs *MessageLog) int {
	target := &winrm.Target{
		Hostname: req.TargetHost,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		UseSSL:   req.UseSSL,
	}

	installReq := installer.Request{
		InstallerPath:     stage.WinJoin(req.StagingDir, req.InstallerFilename),
		InstallDir:        req.InstallDir,
		AddToPath:         req.AddToPath,
		RegisterAsDefault: req.RegisterAsDefault,
		VerifyRelPath:     req.VerifyRelPath,
	}

	outcome, err := d.runner.Execute(ctx, target, installReq, req.InstallTimeout)
	if err != nil {
		var sessErr *installer.SessionError
		if errors.As(err, &sessErr) {
			msgs.Errorf("could not establish remote session on %s: %v", req.TargetHost, sessErr.Err)
			return CodeSessionFailed
		}
		var preErr *installer.PreconditionError
		if errors.As(err, &preErr) {
			msgs.Errorf("%v; staging may have been rolled back since", preErr)
			return CodeArtifactNotFound
		}
		msgs.Errorf("unexpected failure during remote execution: %v", err)
		return CodeUnexpected
	}

	return d.aggregate(req, outcome, msgs)
}

// aggregate turns an execution outcome into the final status code and the
// closing messages.
func (d *Deployer) aggregate(req Request, outcome *installer.Outcome, msgs *MessageLog) int {
	switch outcome.Status {
	case installer.StatusSuccess:
		msgs.Infof("installer finished with exit code 0")

	case installer.StatusUserCancelled:
		msgs.Errorf("installation cancelled by user on the target (exit code %d)", outcome.RawExitCode)
		d.warnCleanup(outcome, msgs)
		return InstallerCode(outcome.RawExitCode)

	case installer.StatusInstallerAborted:
		msgs.Errorf("installer aborted with exit code %d (environmental failure: disk, permissions, or path)", outcome.RawExitCode)
		d.warnCleanup(outcome, msgs)
		return InstallerCode(outcome.RawExitCode)

	case installer.StatusTimedOut:
		msgs.Errorf("%s", outcome.RemoteError)
		return CodeUnexpected

	default:
		msgs.Errorf("unclassified execution outcome (exit code %d): %s", outcome.RawExitCode, outcome.RemoteError)
		return CodeUnexpected
	}

	// Success path: post-install verification, then cleanup reporting.
	code := CodeSuccess
	if outcome.ArtifactPresent {
		msgs.Infof("post-install artifact %s present under %s", req.VerifyRelPath, req.InstallDir)
	} else {
		// A clean exit with no artifact is a silent failure. Whether it
		// escalates is a single explicit policy switch.
		if req.EscalateMissingArtifact {
			msgs.Errorf("installer exited 0 but %s is missing under %s", req.VerifyRelPath, req.InstallDir)
			code = CodeUnexpected
		} else {
			msgs.Warnf("installer exited 0 but %s is missing under %s; treating as success", req.VerifyRelPath, req.InstallDir)
		}
	}

	d.warnCleanup(outcome, msgs)
	return code
}

// warnCleanup reports a failed staged-file cleanup. Cleanup is best
// effort and never changes the final status code.
func (d *Deployer) warnCleanup(outcome *installer.Outcome, msgs *MessageLog) {
	if !outcome.CleanupOK {
		msgs.Warnf("could not remove staged installer from the target")
	}
}
