package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/vqa-lens/backend/internal/client"
)

type clientFactory func() *client.Client

func withTimeout(cmd *cobra.Command, timeout func() time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout())
}

func initCMD(newClient clientFactory, timeout func() time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "init <image>",
		Short: "Upload an image, print its session id and caption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, timeout)
			defer cancel()

			res, err := newClient().Init(ctx, filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session: %s\ncaption: %s\n", res.SessionID, res.Caption)
			return nil
		},
	}
}

func askCMD(newClient clientFactory, timeout func() time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <session-id> <question>",
		Short: "Ask a question about a session's image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, timeout)
			defer cancel()

			answer, err := newClient().Ask(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func ocrCMD(newClient clientFactory, timeout func() time.Duration) *cobra.Command {
	var maxLength int
	cmd := &cobra.Command{
		Use:   "ocr <image>",
		Short: "Recognise text in an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, timeout)
			defer cancel()

			res, err := newClient().OCR(ctx, filepath.Base(args[0]), data, maxLength)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ocr id: %s\n%s\n", res.OCRID, res.Text)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxLength, "max-length", 256, "max_length sent to the server (1-2048)")
	return cmd
}

func downloadCMD(newClient clientFactory, timeout func() time.Duration) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <ocr-id>",
		Short: "Save a stored OCR result as a text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, timeout)
			defer cancel()

			dl, err := newClient().Download(ctx, args[0])
			if err != nil {
				return err
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(dl.Body)
				return err
			}
			path := output
			if path == "" {
				path = dl.Filename
			}
			if err := os.WriteFile(path, dl.Body, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", path, len(dl.Body))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file, "-" for stdout (default ocr_<id>.txt)`)
	return cmd
}
