package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	newWidth  int
	newHeight int
	newLayout string
	newForce  bool
)

var newCmd = &cobra.Command{
	Use:   "new <session>",
	Short: "Create a blank session",
	Long: `Create a session holding one transparent layer. Width, height and
channel layout default to the canvas settings of the config file.`,
	Args: cobra.ExactArgs(1),
	RunE: runNew,
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().IntVar(&newWidth, "width", 0, "Canvas width (0 = config default)")
	newCmd.Flags().IntVar(&newHeight, "height", 0, "Canvas height (0 = config default)")
	newCmd.Flags().StringVar(&newLayout, "layout", "", "Channel layout: rgba8 or rgba16 (default from config)")
	newCmd.Flags().BoolVarP(&newForce, "force", "f", false, "Overwrite an existing file")
}

func runNew(cmd *cobra.Command, args []string) error {
	ed, err := newEditor(newLayout)
	if err != nil {
		return err
	}
	defer ed.Close()

	path := ed.Resolve(args[0])
	if exists(path) && !newForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	w, h := newWidth, newHeight
	if w == 0 {
		w = cfg.Canvas.Width
	}
	if h == 0 {
		h = cfg.Canvas.Height
	}
	if err := ed.NewCanvas(w, h); err != nil {
		return err
	}
	if err := ed.SaveSession(path); err != nil {
		return err
	}

	c := ed.Canvas()
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%dx%d %s)\n", path, c.Width(), c.Height(), c.Layout())
	return nil
}
