package deploy

import "time"

// Request describes one deployment attempt. It is built once by the CLI
// from config plus user input and never mutated afterwards.
type Request struct {
	TargetHost string

	// Artifact
	SourceDir         string // directory holding the installer at the source
	InstallerFilename string
	StagingDir        string // directory on the target, e.g. C:\Staging
	InstallDir        string // final install directory on the target

	// Installer options
	AddToPath         bool
	RegisterAsDefault bool

	// VerifyRelPath is the post-install artifact checked for, relative
	// to InstallDir (e.g. python.exe).
	VerifyRelPath string

	// Remote execution credentials
	Username string
	Password string
	Port     int
	UseSSL   bool

	// InstallTimeout bounds the blocking wait on the remote installer.
	// Zero means wait indefinitely, matching the original behavior.
	InstallTimeout time.Duration

	// EscalateMissingArtifact turns a clean installer exit with a missing
	// post-install artifact into a failure instead of a warning.
	EscalateMissingArtifact bool
}

// Result is the terminal outcome of a deployment attempt.
type Result struct {
	Code     int
	Messages []Message
}

// Succeeded reports whether the attempt finished with code 0.
func (r Result) Succeeded() bool {
	return r.Code == CodeSuccess
}
