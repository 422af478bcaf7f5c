package cmd

import (
	"github.com/spf13/cobra"
)

func newS3Cmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "s3 [BUCKET/KEY or s3://BUCKET/KEY]",
		Short: "Download a file from AWS S3",
		Long: `Download an object from AWS S3 through a presigned URL, using the same
parallel ranged download as http sources.

Examples:
  mtdown s3 mybucket/path/to/file.zip
  mtdown s3 s3://mybucket/path/to/file.zip -c 16
  mtdown s3 mybucket/file.zip --profile myprofile`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("profile") {
				cfg.S3.Profile = profile
			}
			metadata := map[string]any{
				"profile":       cfg.S3.Profile,
				"presignExpiry": cfg.S3.PresignExpiry,
			}
			return runJob(cmd.Context(), "s3", args[0], metadata)
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "default", "AWS profile to use")
	return cmd
}
