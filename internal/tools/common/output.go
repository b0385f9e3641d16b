package common

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/tools/ui"
)

type CIResult struct {
	OK      bool     `json:"ok"`
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func PrintCIResult(ok bool, title string, details []string, err error) {
	result := CIResult{OK: ok, Title: title, Details: details}
	if err != nil {
		result.Error = err.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// Action is one tool subcommand body.
type Action func(ctx context.Context) ([]string, error)

// Execute runs fn under the TUI, or plainly with JSON output when ci is set,
// and records the tool metrics. A failure exits with status 3.
func Execute(tool, command string, ci bool, timeout time.Duration, fn Action) {
	title := tool + " " + command
	start := time.Now()
	var (
		details []string
		err     error
	)
	if ci {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		details, err = fn(ctx)
		cancel()
		PrintCIResult(err == nil, title, details, err)
	} else {
		details, err = ui.Run(title, timeout, fn)
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordToolCommandRun(context.Background(), tool, command, outcome)
	observability.RecordToolCommandDuration(context.Background(), tool, command, outcome, time.Since(start))
	if err != nil {
		os.Exit(3)
	}
}
