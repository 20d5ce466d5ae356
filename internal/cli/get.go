package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <operation-id>",
		Short:         "Show an operation and its per-target results",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(commandContext(cmd), rootOpts.Timeout)
			defer cancel()

			op, err := rootOpts.client().Get(ctx, args[0])
			if err != nil {
				return apiFailure("get failed", err)
			}
			return printer{format: rootOpts.Format, w: cmd.OutOrStdout()}.operation(op)
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
