package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/KasumiMercury/primind-bulk-operations/internal/client"
	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type ListOptions struct {
	*RootOptions
	Status string
	Type   string
	Limit  int
	Offset int
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List operations, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := client.ListOptions{
				Type:   domain.OperationType(opts.Type),
				Limit:  opts.Limit,
				Offset: opts.Offset,
			}
			if opts.Status != "" {
				status, err := domain.ParseStatus(opts.Status)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --status", err)
				}
				filter.Status = status
			}

			ctx, cancel := context.WithTimeout(commandContext(cmd), opts.Timeout)
			defer cancel()

			resp, err := opts.client().List(ctx, filter)
			if err != nil {
				return apiFailure("list failed", err)
			}
			return printer{format: opts.Format, w: cmd.OutOrStdout()}.list(resp)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only operations in this status")
	cmd.Flags().StringVar(&opts.Type, "type", "", "only operations of this type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")

	return cmd
}
