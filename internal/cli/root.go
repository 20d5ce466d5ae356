// Package cli implements bulkctl, the command line client for the bulk
// operations API.
package cli

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/KasumiMercury/primind-bulk-operations/internal/client"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server    string
	ClientKey string
	Format    string // "json" | "text"
	Timeout   time.Duration
}

var ValidFormats = []string{"text", "json"}

func (o *RootOptions) client() *client.Client {
	return client.NewClient(o.Server, client.WithClientKey(o.ClientKey))
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bulkctl",
		Short: "Submit and inspect bulk operations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("BULKCTL_SERVER", "http://localhost:8080"), "operations API base URL")
	cmd.PersistentFlags().StringVar(&opts.ClientKey, "client-key", os.Getenv("BULKCTL_CLIENT_KEY"), "key the server rate limits this client under")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "overall command timeout")

	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))

	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
