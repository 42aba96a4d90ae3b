package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdeck/winstall/internal/config"
	"github.com/opsdeck/winstall/internal/deploy"
	"github.com/opsdeck/winstall/internal/journal"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent deployment attempts from the journal",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		os.Exit(runHistory())
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum attempts to list")
}

func runHistory() int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return deploy.CodeUnexpected
	}
	if cfg.JournalPath == "" {
		fmt.Fprintln(os.Stderr, "journal_path is not configured")
		return deploy.CodeUnexpected
	}

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "journal: %v\n", err)
		return deploy.CodeUnexpected
	}
	defer j.Close()

	entries, err := j.Recent(historyLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "journal: %v\n", err)
		return deploy.CodeUnexpected
	}

	if len(entries) == 0 {
		fmt.Println("no recorded attempts")
		return deploy.CodeSuccess
	}

	for _, e := range entries {
		status := "FAILED"
		if e.Code == deploy.CodeSuccess {
			status = "OK"
		}
		fmt.Printf("%s  %-30s code=%-3d %-6s %s\n",
			e.StartedAt.Format("2006-01-02 15:04:05"), e.Host, e.Code, status, e.Duration.Round(time.Millisecond))
	}
	return deploy.CodeSuccess
}
