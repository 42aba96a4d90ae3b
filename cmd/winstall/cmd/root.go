package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdeck/winstall/internal/config"
	"github.com/opsdeck/winstall/internal/deploy"
	"github.com/opsdeck/winstall/internal/installer"
	"github.com/opsdeck/winstall/internal/journal"
	"github.com/opsdeck/winstall/internal/probe"
	"github.com/opsdeck/winstall/internal/stage"
	"github.com/opsdeck/winstall/internal/winrm"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	rootCmd = &cobra.Command{
		Use:   "winstall <host>",
		Short: "Deploy a silent Windows installer to a remote host",
		Long: `winstall runs the full deployment pipeline against one host:
pre-flight connectivity checks, artifact staging, silent installer
execution, post-install verification, and cleanup. The process exit
status identifies the failed stage; 0 means the whole pipeline succeeded.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			os.Exit(runDeploy(args))
		},
	}
)

// Execute runs the winstall CLI. The process exit status is the
// deployment status code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(deploy.CodeUnexpected)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "winstall.yaml", "path to configuration file")
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(historyCmd)
}

// runDeploy executes the pipeline and returns the process exit code.
func runDeploy(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "no target host supplied")
		return deploy.CodeNoTarget
	}
	host := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return deploy.CodeUnexpected
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := &winrm.Target{
		Hostname: host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		UseSSL:   cfg.UseSSL,
	}

	transport, err := buildTransport(cfg, host)
	if err != nil {
		fmt.Fprintf(os.Stderr, "staging transport: %v\n", err)
		return deploy.CodeTransferFailed
	}
	defer transport.Close()

	req := deploy.Request{
		TargetHost:              host,
		SourceDir:               cfg.SourceDir,
		InstallerFilename:       cfg.InstallerFilename,
		StagingDir:              cfg.StagingDir,
		InstallDir:              cfg.InstallDir,
		AddToPath:               cfg.AddToPath,
		RegisterAsDefault:       cfg.RegisterAsDefault,
		VerifyRelPath:           cfg.VerifyRelPath,
		Username:                cfg.Username,
		Password:                cfg.Password,
		Port:                    cfg.Port,
		UseSSL:                  cfg.UseSSL,
		InstallTimeout:          time.Duration(cfg.InstallTimeoutSecs) * time.Second,
		EscalateMissingArtifact: cfg.EscalateMissingArtifact,
	}

	deployer := deploy.NewDeployer(probe.New(target), stage.New(transport), installer.NewRunner())

	started := time.Now()
	result := deployer.Deploy(ctx, req)

	renderResult(result)
	recordAttempt(cfg, host, result, started)

	return result.Code
}

// buildTransport selects the staging transport from config.
func buildTransport(cfg *config.Config, host string) (stage.Transport, error) {
	if cfg.Transport == "sftp" {
		return stage.NewSFTPTransport(stage.SFTPConfig{
			Host:     host,
			Port:     cfg.SSHPort,
			Username: cfg.Username,
			Password: cfg.Password,
			KeyPath:  cfg.SSHKeyPath,
		})
	}
	return stage.NewShareTransport(host, cfg.ShareMount), nil
}

// renderResult prints the message stream with severity prefixes,
// warnings and errors to stderr, the rest to stdout.
func renderResult(result deploy.Result) {
	for _, m := range result.Messages {
		out := os.Stdout
		if m.Severity != deploy.Info {
			out = os.Stderr
		}
		fmt.Fprintf(out, "[%s] %s\n", m.Severity, m.Text)
	}
}

// recordAttempt writes the journal entry. Best effort only.
func recordAttempt(cfg *config.Config, host string, result deploy.Result, started time.Time) {
	if cfg.JournalPath == "" {
		return
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Printf("[journal] open failed: %v", err)
		return
	}
	defer j.Close()

	if err := j.Record(host, result, started, time.Since(started)); err != nil {
		log.Printf("[journal] record failed: %v", err)
	}
}
