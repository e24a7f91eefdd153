package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"vaultx/internal/domain"
)

var exportOut string

// historyCmd lists past generations
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past generations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openContainer(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return printHistory(cmd.OutOrStdout(), c.Orchestrator.History())
	},
}

// exportCmd writes the history and its media to a zip archive
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the history and its media as a zip archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openContainer(ctx, cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		n, err := c.Orchestrator.ExportHistory(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(exportOut)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d files to %s\n", n, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "vaultx-history.zip", "Archive path")
	rootCmd.AddCommand(historyCmd, exportCmd)
}

func printHistory(out io.Writer, items []domain.GenerationResult) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "No generations yet.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTYLE\tASPECT\tCREATED\tPROMPT")
	for _, r := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.MediaKind, r.StyleID, r.AspectRatio, r.CreatedAt.Local().Format(time.DateTime), r.DisplayPrompt)
	}
	return tw.Flush()
}
