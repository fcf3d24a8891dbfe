package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/session"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <session>",
	Short: "Show session metadata",
	Long: `Print the header, metadata and layer stack of a session without
decoding its pixels. Image files are opened and summarized.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Print metadata as JSON")
}

func readSessionInfo(path string) (*session.Info, error) {
	format, err := session.Lookup(path)
	if err != nil {
		return nil, err
	}
	if format.Name != "ksp" {
		c, err := session.Open(path)
		if err != nil {
			return nil, err
		}
		meta := c.Meta()
		return &session.Info{
			Width:       c.Width(),
			Height:      c.Height(),
			Layout:      c.Layout().String(),
			Created:     meta.Created,
			Modified:    meta.Modified,
			ActiveLayer: c.ActiveLayer(),
			Layers:      c.Layers(),
		}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return session.ReadInfo(bufio.NewReader(f))
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]
	info, err := readSessionInfo(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if infoJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "File:     %s\n", path)
	if info.Version > 0 {
		fmt.Fprintf(out, "Version:  %d (%s, %s raster data)\n", info.Version, info.Compression, formatBytes(info.RasterBytes))
	}
	fmt.Fprintf(out, "Size:     %dx%d %s\n", info.Width, info.Height, info.Layout)
	if !info.Created.IsZero() {
		fmt.Fprintf(out, "Created:  %s\n", info.Created.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Modified: %s\n", info.Modified.Local().Format("2006-01-02 15:04:05"))
	}
	if len(info.Extensions) > 0 {
		fmt.Fprintf(out, "Extensions: %v\n", info.Extensions)
	}
	fmt.Fprintln(out)

	printLayers(out, info)
	return nil
}

func printLayers(out io.Writer, info *session.Info) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tNAME\tBLEND\tOPACITY\tFLAGS\tOFFSET")
	fmt.Fprintln(w, "-\t--\t----\t-----\t-------\t-----\t------")

	// Top of the stack first, like a layers panel.
	for i := len(info.Layers) - 1; i >= 0; i-- {
		l := info.Layers[i]
		displayID := string(l.ID)
		if len(displayID) > 12 {
			displayID = displayID[:12] + "..."
		}
		flags := ""
		if l.ID == info.ActiveLayer {
			flags += "*"
		}
		if !l.Visible {
			flags += "H"
		}
		if l.Locked {
			flags += "L"
		}
		if flags == "" {
			flags = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\t%d,%d\n",
			l.Index, displayID, l.Name, l.BlendMode, l.Opacity, flags, l.Offset.X, l.Offset.Y)
	}
	w.Flush()
}
