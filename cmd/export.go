package main

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/session"
)

var exportThumbnail int

var exportCmd = &cobra.Command{
	Use:   "export <session> <image>",
	Short: "Export the flattened composite as PNG, BMP or TIFF",
	Long: `Write the composite of all visible layers to an image file. The format
follows the output extension. --thumbnail writes a PNG scaled so its longer
side is at most N pixels instead.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported file formats",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FORMAT\tEXTENSIONS\tREAD\tWRITE\tLAYERS")
		fmt.Fprintln(w, "------\t----------\t----\t-----\t------")
		for _, f := range session.Formats() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Name, strings.Join(f.Extensions, ","),
				yesNo(f.Decode != nil), yesNo(f.Encode != nil), yesNo(!f.Lossy))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, formatsCmd)
	exportCmd.Flags().IntVar(&exportThumbnail, "thumbnail", 0, "Write a PNG thumbnail with this longest side instead")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func runExport(cmd *cobra.Command, args []string) error {
	ed, err := openEditor(args[0])
	if err != nil {
		return err
	}
	defer ed.Close()

	dst := ed.Resolve(args[1])
	if exportThumbnail > 0 {
		if f, err := session.Lookup(dst); err != nil || f.Name != "png" {
			return fmt.Errorf("%w: thumbnails are written as PNG", session.ErrUnsupportedFormat)
		}
		th := ed.Thumbnail(exportThumbnail)
		var buf bytes.Buffer
		if err := png.Encode(&buf, th); err != nil {
			return fmt.Errorf("failed to encode thumbnail: %w", err)
		}
		if err := session.WriteFileAtomic(dst, buf.Bytes()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %dx%d thumbnail to %s\n", th.Bounds().Dx(), th.Bounds().Dy(), dst)
		return nil
	}

	if err := ed.ExportImage(dst); err != nil {
		return err
	}
	c := ed.Canvas()
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %dx%d composite of %d layers to %s\n", c.Width(), c.Height(), c.Len(), dst)
	return nil
}
