// winstall deploys a silent Windows installer onto a remote host: it
// verifies the host is resolvable, reachable, and accepts remote command
// execution, stages the installer over the admin share or SFTP, runs it
// silently via WinRM, verifies the install, and exits with a status code
// that identifies exactly which stage failed.
//
// Usage:
//
//	winstall --config winstall.yaml ws01.corp.local
package main

import "github.com/opsdeck/winstall/cmd/winstall/cmd"

func main() {
	cmd.Execute()
}
