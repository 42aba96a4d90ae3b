package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opsdeck/winstall/internal/config"
	"github.com/opsdeck/winstall/internal/deploy"
	"github.com/opsdeck/winstall/internal/probe"
	"github.com/opsdeck/winstall/internal/winrm"
)

var probeCmd = &cobra.Command{
	Use:   "probe <host>",
	Short: "Run only the pre-flight connectivity checks against a host",
	Args:  cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(runProbe(args))
	},
}

func runProbe(args []string) int {
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

	report := probe.New(target).Probe(ctx, host)

	fmt.Printf("resolved:  %v\n", report.Resolved)
	fmt.Printf("reachable: %v\n", report.Reachable)
	fmt.Printf("remoting:  %v\n", report.RemotingAvailable)

	switch report.FailStage {
	case probe.FailDNS:
		fmt.Fprintf(os.Stderr, "[%s] %s\n", deploy.Error, report.Detail)
		return deploy.CodeNameResolution
	case probe.FailPing:
		fmt.Fprintf(os.Stderr, "[%s] %s\n", deploy.Error, report.Detail)
		return deploy.CodeUnreachable
	case probe.FailRemoting:
		fmt.Fprintf(os.Stderr, "[%s] %s\n", deploy.Error, report.Detail)
		return deploy.CodeRemotingMissing
	}
	return deploy.CodeSuccess
}
