package cmd

import (
	"github.com/spf13/cobra"
)

func newHTTPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http [URL] [--output OUTPUT_PATH]",
		Short: "Download file via HTTP/HTTPS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), "http", args[0], nil)
		},
	}
	return cmd
}
