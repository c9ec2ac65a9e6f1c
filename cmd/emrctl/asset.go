package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MaheshReddy-s/emrcore/assets"
)

func assetCmd(a *app) *cobra.Command {
	var (
		fileKey  string
		output   string
		software bool
	)

	cmd := &cobra.Command{
		Use:   "asset <url>",
		Short: "Download and decrypt a medical report asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileKey == "" {
				fileKey = os.Getenv(envFileKey)
			}
			a.client.Session().SetWrappedFileKey(fileKey)

			unwrap, err := a.cfg.Unwrap()
			if err != nil {
				return err
			}

			opts := []assets.Option{
				assets.WithBlobOutput(false),
				assets.WithLogger(a.logger),
				assets.WithMetrics(a.client.Metrics()),
			}
			if software {
				opts = append(opts, assets.WithSoftwareCipher())
			}

			pipeline, err := assets.NewPipeline(a.client, a.client.Session(), unwrap, opts...)
			if err != nil {
				return err
			}

			asset, err := pipeline.FetchAndDecrypt(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "" {
				output = "report" + assets.FileExtension(asset.MIMEType)
			}
			if err := os.WriteFile(output, asset.Bytes, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d bytes encrypted=%t backend=%s\n",
				output, asset.MIMEType, len(asset.Bytes), asset.Encrypted, pipeline.Backend())
			return nil
		},
	}

	cmd.Flags().StringVar(&fileKey, "file-key", "", "wrapped file key from sign-in (default $"+envFileKey+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default report.<ext>)")
	cmd.Flags().BoolVar(&software, "software-cipher", false, "force the portable AES-GCM implementation")
	return cmd
}
