package deploy

// Deployment status codes. These form the tool's exit status contract;
// operators key automation off them, so values are fixed.
const (
	CodeSuccess = 0

	// Precondition failures (nothing attempted against the target).
	CodeNotPrivileged = 1
	CodeNoTarget      = 2

	// Connectivity failures (no remote mutation has occurred).
	CodeUnreachable     = 10
	CodeNameResolution  = 11
	CodeRemotingMissing = 12
	CodeSessionFailed   = 13

	// Staging failures.
	CodeStagingDirFailed   = 20
	CodeArtifactNotFound   = 21
	CodeTransferFailed     = 22
	CodeTransferUnverified = 23

	// Anything we could not classify.
	CodeUnexpected = 99

	// Installer-reported failures are CodeInstallerBase + the raw
	// nonzero exit status (1 = user cancelled, 2 = environmental abort).
	CodeInstallerBase = 100
)

// InstallerCode maps a raw nonzero installer exit status to a final code.
func InstallerCode(rawExit int) int {
	return CodeInstallerBase + rawExit
}
