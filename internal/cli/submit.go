package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KasumiMercury/primind-bulk-operations/internal/client"
	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type SubmitOptions struct {
	*RootOptions
	Type         string
	Targets      []string
	TargetsFile  string
	Description  string
	Author       string
	AuthorEmail  string
	Files        []string
	Params       map[string]string
	Concurrency  int
	Retries      int
	Wait         bool
	PollInterval time.Duration
}

func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a bulk operation",
		Long: `Submit one change to be applied to many targets.

Examples:
  bulkctl submit --target repo-a --target repo-b \
    --description "bump base image" --file Dockerfile=./Dockerfile
  bulkctl submit --type app_sync --targets-file apps.txt --param revision=v42 --wait`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", string(domain.OperationTypeBranchUpdate), "operation type (branch_update|app_sync)")
	cmd.Flags().StringArrayVar(&opts.Targets, "target", nil, "target to update (repeatable)")
	cmd.Flags().StringVar(&opts.TargetsFile, "targets-file", "", "file listing one target per line, - for stdin")
	cmd.Flags().StringVar(&opts.Description, "description", "", "change description")
	cmd.Flags().StringVar(&opts.Author, "author", "", "commit author name")
	cmd.Flags().StringVar(&opts.AuthorEmail, "author-email", "", "commit author email")
	cmd.Flags().StringArrayVar(&opts.Files, "file", nil, "repo path to write, as path=local-file (repeatable)")
	cmd.Flags().StringToStringVar(&opts.Params, "param", nil, "applier parameter as key=value")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "targets applied in parallel (server default when unset)")
	cmd.Flags().IntVar(&opts.Retries, "retries", 0, "retries per target (server default when unset)")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "poll until the operation finishes")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", time.Second, "poll interval with --wait")

	return cmd
}

func runSubmit(cmd *cobra.Command, opts *SubmitOptions) error {
	req, err := buildSubmitRequest(cmd, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid submit flags", err)
	}

	ctx := commandContext(cmd)
	c := opts.client()
	p := printer{format: opts.Format, w: cmd.OutOrStdout()}

	submitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	resp, err := c.Submit(submitCtx, *req)
	cancel()
	if err != nil {
		return apiFailure("submit failed", err)
	}

	if !opts.Wait {
		return p.kv(map[string]any{"operation_id": resp.OperationID, "status": resp.Status}, "operation_id", "status")
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "submitted %s, waiting...\n", resp.OperationID)
	op, err := c.Wait(ctx, resp.OperationID, opts.PollInterval, func(op *domain.Operation) {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s %.0f%% (%d/%d)\n", op.Status, op.ProgressPercentage, op.TotalTargets-op.PendingCount, op.TotalTargets)
	})
	if err != nil {
		return apiFailure("wait failed", err)
	}

	if err := p.operation(op); err != nil {
		return err
	}
	if op.Status != domain.StatusCompleted {
		return NewExitError(ExitFailure, fmt.Sprintf("operation %s finished %s", op.ID, op.Status))
	}
	return nil
}

func buildSubmitRequest(cmd *cobra.Command, opts *SubmitOptions) (*client.SubmitRequest, error) {
	targets := append([]string(nil), opts.Targets...)
	if opts.TargetsFile != "" {
		fromFile, err := readTargets(cmd.InOrStdin(), opts.TargetsFile)
		if err != nil {
			return nil, err
		}
		targets = append(targets, fromFile...)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one --target or --targets-file is required")
	}

	files := make([]domain.FileChange, 0, len(opts.Files))
	for _, pair := range opts.Files {
		repoPath, localPath, ok := strings.Cut(pair, "=")
		if !ok || repoPath == "" || localPath == "" {
			return nil, fmt.Errorf("--file %q: want path=local-file", pair)
		}
		content, err := os.ReadFile(localPath)
		if err != nil {
			return nil, fmt.Errorf("--file %q: %w", pair, err)
		}
		files = append(files, domain.FileChange{Path: repoPath, Content: string(content)})
	}

	req := &client.SubmitRequest{
		OperationType: domain.OperationType(opts.Type),
		Targets:       targets,
		Change: domain.ChangeDescriptor{
			Description: opts.Description,
			Author:      opts.Author,
			AuthorEmail: opts.AuthorEmail,
			Files:       files,
			Parameters:  opts.Params,
		},
	}
	if cmd.Flags().Changed("concurrency") {
		req.Concurrency = &opts.Concurrency
	}
	if cmd.Flags().Changed("retries") {
		req.Retries = &opts.Retries
	}
	return req, nil
}

// readTargets reads one target per line, skipping blanks and # comments.
func readTargets(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var targets []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	return targets, scanner.Err()
}
