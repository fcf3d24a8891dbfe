package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/session"
)

var importForce bool

var importCmd = &cobra.Command{
	Use:   "import <source> <session>",
	Short: "Convert an image or legacy KSP1 file into a session",
	Long: `Read a PNG, BMP or TIFF image, or a first-generation KSP1 document, and
write it as a current-version layered session.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVarP(&importForce, "force", "f", false, "Overwrite an existing session")
}

func runImport(cmd *cobra.Command, args []string) error {
	ed, err := newEditor("")
	if err != nil {
		return err
	}
	defer ed.Close()

	dst := ed.Resolve(args[1])
	f, err := session.Lookup(dst)
	if err != nil {
		return err
	}
	if f.Lossy {
		return fmt.Errorf("%w: %s cannot hold layers, use export", session.ErrUnsupportedFormat, f.Name)
	}
	if exists(dst) && !importForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", dst)
	}

	if err := ed.OpenSession(args[0]); err != nil {
		return err
	}
	if err := ed.SaveSession(dst); err != nil {
		return err
	}

	c := ed.Canvas()
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s into %s (%dx%d %s, %d layers)\n",
		args[0], dst, c.Width(), c.Height(), c.Layout(), c.Len())
	return nil
}
