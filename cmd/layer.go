package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/blend"
	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/session"
)

var (
	layerIndex   int
	layerName    string
	layerImage   string
	layerOpacity float64
	layerBlend   string
	layerVisible bool
	layerLocked  bool
	layerOffset  string
	layerActive  bool
	mergeAll     bool
)

var layerCmd = &cobra.Command{
	Use:   "layer",
	Short: "Manage the layers of a session",
	Long: `Add, remove, reorder, edit and merge layers of a session file. Layers
are addressed by id, unique id prefix, stack index (0 = bottom) or name.
Every command saves the session in place.`,
}

var layerListCmd = &cobra.Command{
	Use:   "list <session>",
	Short: "List layers, top first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := readSessionInfo(args[0])
		if err != nil {
			return err
		}
		printLayers(cmd.OutOrStdout(), info)
		return nil
	},
}

var layerAddCmd = &cobra.Command{
	Use:   "add <session>",
	Short: "Add a layer",
	Long: `Add a transparent layer, or a layer holding a PNG image centered on
the canvas (--image). The new layer becomes active.`,
	Args: cobra.ExactArgs(1),
	RunE: runLayerAdd,
}

var layerRmCmd = &cobra.Command{
	Use:   "rm <session> <layer>",
	Short: "Remove a layer",
	Args:  cobra.ExactArgs(2),
	RunE:  runLayerRm,
}

var layerMoveCmd = &cobra.Command{
	Use:   "move <session> <layer> <index>",
	Short: "Move a layer to a stack index (clamped)",
	Args:  cobra.ExactArgs(3),
	RunE:  runLayerMove,
}

var layerSetCmd = &cobra.Command{
	Use:   "set <session> <layer>",
	Short: "Change layer properties",
	Args:  cobra.ExactArgs(2),
	RunE:  runLayerSet,
}

var layerMergeCmd = &cobra.Command{
	Use:   "merge <session> [layer]",
	Short: "Merge a layer into the one below it, or flatten with --all",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLayerMerge,
}

func init() {
	rootCmd.AddCommand(layerCmd)
	layerCmd.AddCommand(layerListCmd, layerAddCmd, layerRmCmd, layerMoveCmd, layerSetCmd, layerMergeCmd)

	layerAddCmd.Flags().IntVar(&layerIndex, "index", -1, "Stack index (default top)")
	layerAddCmd.Flags().StringVar(&layerName, "name", "", "Layer name")
	layerAddCmd.Flags().StringVar(&layerImage, "image", "", "PNG image to place on the layer")

	layerSetCmd.Flags().StringVar(&layerName, "name", "", "Layer name")
	layerSetCmd.Flags().Float64Var(&layerOpacity, "opacity", 1, "Opacity in [0,1]")
	layerSetCmd.Flags().StringVar(&layerBlend, "blend", "", "Blend mode ("+strings.Join(blendNames(), ", ")+")")
	layerSetCmd.Flags().BoolVar(&layerVisible, "visible", true, "Visibility")
	layerSetCmd.Flags().BoolVar(&layerLocked, "locked", false, "Pixel lock")
	layerSetCmd.Flags().StringVar(&layerOffset, "offset", "", "Offset as x,y")
	layerSetCmd.Flags().BoolVar(&layerActive, "active", false, "Make the layer active")

	layerMergeCmd.Flags().BoolVar(&mergeAll, "all", false, "Flatten every visible layer into one")
}

func blendNames() []string {
	var names []string
	for _, m := range blend.Modes() {
		names = append(names, m.String())
	}
	return names
}

// resolveLayer finds a layer by id, index, unique id prefix or name.
func resolveLayer(c *canvas.Canvas, ref string) (canvas.LayerID, error) {
	layers := c.Layers()
	for _, l := range layers {
		if string(l.ID) == ref {
			return l.ID, nil
		}
	}
	if i, err := strconv.Atoi(ref); err == nil {
		if i < 0 || i >= len(layers) {
			return "", fmt.Errorf("layer index %d out of range [0,%d)", i, len(layers))
		}
		return layers[i].ID, nil
	}

	var matches []canvas.LayerID
	for _, l := range layers {
		if strings.HasPrefix(string(l.ID), strings.TrimSuffix(ref, "...")) {
			matches = append(matches, l.ID)
		}
	}
	if len(matches) == 0 {
		for _, l := range layers {
			if l.Name == ref {
				matches = append(matches, l.ID)
			}
		}
	}
	switch len(matches) {
	case 0:
		return "", &canvas.LayerNotFoundError{ID: canvas.LayerID(ref)}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("layer %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// editSession opens path, applies fn to its canvas and saves it back.
func editSession(path string, fn func(c *canvas.Canvas) error) error {
	ed, err := openEditor(path)
	if err != nil {
		return err
	}
	defer ed.Close()

	if err := fn(ed.Canvas()); err != nil {
		return err
	}
	return ed.SaveSession("")
}

func runLayerAdd(cmd *cobra.Command, args []string) error {
	return editSession(args[0], func(c *canvas.Canvas) error {
		var id canvas.LayerID
		var err error
		if layerImage != "" {
			img, err := loadPNG(layerImage)
			if err != nil {
				return err
			}
			if id, err = session.ImportImage(c, img); err != nil {
				return err
			}
			if layerIndex >= 0 {
				if err := c.ReorderLayer(id, layerIndex); err != nil {
					return err
				}
			}
		} else if id, err = c.AddLayer(layerIndex, nil); err != nil {
			return err
		}
		if layerName != "" {
			if err := c.SetLayerName(id, layerName); err != nil {
				return err
			}
		}
		info, _ := c.Layer(id)
		fmt.Fprintf(cmd.OutOrStdout(), "Added layer %s %q at index %d\n", id, info.Name, info.Index)
		return nil
	})
}

func runLayerRm(cmd *cobra.Command, args []string) error {
	return editSession(args[0], func(c *canvas.Canvas) error {
		id, err := resolveLayer(c, args[1])
		if err != nil {
			return err
		}
		if err := c.RemoveLayer(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed layer %s\n", id)
		return nil
	})
}

func runLayerMove(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", args[2], err)
	}
	return editSession(args[0], func(c *canvas.Canvas) error {
		id, err := resolveLayer(c, args[1])
		if err != nil {
			return err
		}
		if err := c.ReorderLayer(id, index); err != nil {
			return err
		}
		info, _ := c.Layer(id)
		fmt.Fprintf(cmd.OutOrStdout(), "Moved layer %s to index %d\n", id, info.Index)
		return nil
	})
}

func parseOffset(s string) (image.Point, error) {
	x, y, ok := strings.Cut(s, ",")
	if !ok {
		return image.Point{}, fmt.Errorf("invalid offset %q: want x,y", s)
	}
	px, err := strconv.Atoi(strings.TrimSpace(x))
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid offset x %q: %w", x, err)
	}
	py, err := strconv.Atoi(strings.TrimSpace(y))
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid offset y %q: %w", y, err)
	}
	return image.Pt(px, py), nil
}

func runLayerSet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	return editSession(args[0], func(c *canvas.Canvas) error {
		id, err := resolveLayer(c, args[1])
		if err != nil {
			return err
		}

		if flags.Changed("name") {
			if err := c.SetLayerName(id, layerName); err != nil {
				return err
			}
		}
		if flags.Changed("opacity") {
			if err := c.SetLayerOpacity(id, layerOpacity); err != nil {
				return err
			}
		}
		if flags.Changed("blend") {
			mode, err := blend.Parse(layerBlend)
			if err != nil {
				return err
			}
			if err := c.SetLayerBlendMode(id, mode); err != nil {
				return err
			}
		}
		if flags.Changed("visible") {
			if err := c.SetLayerVisible(id, layerVisible); err != nil {
				return err
			}
		}
		if flags.Changed("locked") {
			if err := c.SetLayerLocked(id, layerLocked); err != nil {
				return err
			}
		}
		if flags.Changed("offset") {
			off, err := parseOffset(layerOffset)
			if err != nil {
				return err
			}
			if err := c.SetLayerOffset(id, off); err != nil {
				return err
			}
		}
		if layerActive {
			if err := c.SetActiveLayer(id); err != nil {
				return err
			}
		}

		info, _ := c.Layer(id)
		fmt.Fprintf(cmd.OutOrStdout(), "Layer %s: name=%q opacity=%.2f blend=%s visible=%v locked=%v offset=%d,%d\n",
			id, info.Name, info.Opacity, info.BlendMode, info.Visible, info.Locked, info.Offset.X, info.Offset.Y)
		return nil
	})
}

func runLayerMerge(cmd *cobra.Command, args []string) error {
	if mergeAll == (len(args) == 2) {
		return fmt.Errorf("give either a layer or --all")
	}
	return editSession(args[0], func(c *canvas.Canvas) error {
		if mergeAll {
			id := c.Flatten()
			fmt.Fprintf(cmd.OutOrStdout(), "Flattened into layer %s\n", id)
			return nil
		}
		id, err := resolveLayer(c, args[1])
		if err != nil {
			return err
		}
		if err := c.MergeDown(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Merged layer %s down, %d layers left\n", id, c.Len())
		return nil
	})
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG %s: %w", path, err)
	}
	return img, nil
}
