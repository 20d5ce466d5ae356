package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <operation-id>",
		Short: "Cancel an operation that has not started",
		Long: `Cancel an operation that is still pending.

Operations already in progress run to completion; cancel reports
cancelled=false for them.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(commandContext(cmd), rootOpts.Timeout)
			defer cancel()

			cancelled, err := rootOpts.client().Cancel(ctx, args[0])
			if err != nil {
				return apiFailure("cancel failed", err)
			}
			return printer{format: rootOpts.Format, w: cmd.OutOrStdout()}.kv(
				map[string]any{"operation_id": args[0], "cancelled": cancelled}, "operation_id", "cancelled")
		},
	}
}
