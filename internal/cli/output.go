package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/KasumiMercury/primind-bulk-operations/internal/client"
	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation finished with failed targets
	ExitCommandError = 2
	ExitRateLimited  = 75 // EX_TEMPFAIL
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error returned by a command.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// apiFailure maps a client error onto an exit code.
func apiFailure(action string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return WrapExitError(ExitRateLimited, action, err)
	}
	return WrapExitError(ExitCommandError, action, err)
}

type printer struct {
	format string
	w      io.Writer
}

func (p printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) operation(op *domain.Operation) error {
	if p.format == "json" {
		return p.json(op)
	}

	fmt.Fprintf(p.w, "ID:         %s\n", op.ID)
	fmt.Fprintf(p.w, "Type:       %s\n", op.Type)
	fmt.Fprintf(p.w, "Status:     %s\n", op.Status)
	fmt.Fprintf(p.w, "Progress:   %.1f%% (%d ok, %d failed, %d pending of %d)\n",
		op.ProgressPercentage, op.SuccessfulCount, op.FailedCount, op.PendingCount, op.TotalTargets)
	if op.CurrentTarget != "" {
		fmt.Fprintf(p.w, "Current:    %s\n", op.CurrentTarget)
	}
	if op.Degraded {
		fmt.Fprintln(p.w, "Degraded:   true")
	}
	if op.Summary != nil {
		fmt.Fprintf(p.w, "Success:    %.1f%%\n", 100*op.Summary.SuccessRate)
	}

	if len(op.Results) == 0 {
		return nil
	}

	fmt.Fprintln(p.w)
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tOUTCOME\tATTEMPTS\tDETAIL")
	for _, r := range op.Results {
		outcome := "success"
		if !r.Succeeded() {
			outcome = "failure"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Target, outcome, r.Attempts, r.Detail())
	}
	return tw.Flush()
}

func (p printer) list(resp *client.ListResponse) error {
	if p.format == "json" {
		return p.json(resp)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPROGRESS\tTARGETS\tCREATED")
	for _, op := range resp.Operations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%d\t%s\n",
			op.ID, op.Type, op.Status, op.ProgressPercentage, op.TotalTargets, op.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(p.w, "%d of %d operations\n", len(resp.Operations), resp.Total)
	return nil
}

func (p printer) kv(values map[string]any, order ...string) error {
	if p.format == "json" {
		return p.json(values)
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s=%v", k, values[k]))
	}
	_, err := fmt.Fprintln(p.w, strings.Join(parts, " "))
	return err
}
