package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"media-quiz-service/internal/config"
	applog "media-quiz-service/internal/log"
)

// NewThumbnailCmd captures a still from one video file, the same way the
// setup screen does, so capture problems can be reproduced offline.
func NewThumbnailCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "thumbnail FILE",
		Short: "Capture a thumbnail from a video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			applog.Configure(applog.Config{Level: cfg.Log.Level, Output: os.Stderr})

			res, err := newCapturer(cfg).Capture(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("capture %s: %w", args[0], err)
			}
			if out == "" {
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".jpg"
			}
			if err := os.WriteFile(out, res.JPEG, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d at %.2fs (seek timed out: %t, retried: %t)\n",
				out, res.Width, res.Height, res.Timestamp, res.SeekTimedOut, res.Retried)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "where to write the JPEG (default FILE with .jpg)")
	return cmd
}
