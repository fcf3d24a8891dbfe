package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/editor"
	"github.com/cwbudde/layerpaint/internal/raster"
	"github.com/cwbudde/layerpaint/internal/store"
	"github.com/cwbudde/layerpaint/internal/tool"
)

var (
	paintStroke    string
	paintTool      string
	paintColor     string
	paintSize      float64
	paintTolerance float64
	paintLayer     string
	paintRecord    string
	paintOut       string
)

var paintCmd = &cobra.Command{
	Use:   "paint <session> [journal]",
	Short: "Replay a stroke journal or paint a stroke onto a session",
	Long: `Apply pointer input to a session and save the result.

With a journal argument, every entry of the JSONL stroke journal is replayed
in order. With --stroke, one gesture is painted through the points
"x,y[,pressure] x,y ..." using the configured tool, adjusted by the tool
flags. --record appends the applied input to a journal.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPaint,
}

func init() {
	rootCmd.AddCommand(paintCmd)
	paintCmd.Flags().StringVar(&paintStroke, "stroke", "", "Points of one gesture: \"x,y[,pressure] x,y ...\"")
	paintCmd.Flags().StringVar(&paintTool, "tool", "", "Tool kind for --stroke (brush, spline-brush, eraser, fill-bucket)")
	paintCmd.Flags().StringVar(&paintColor, "color", "", "Tool color (#rrggbb[aa] or a color name)")
	paintCmd.Flags().Float64Var(&paintSize, "size", 0, "Brush diameter in pixels")
	paintCmd.Flags().Float64Var(&paintTolerance, "tolerance", 0, "Fill tolerance in [0,1]")
	paintCmd.Flags().StringVar(&paintLayer, "layer", "", "Layer to paint on (default active layer)")
	paintCmd.Flags().StringVar(&paintRecord, "record", "", "Append applied input to this journal")
	paintCmd.Flags().StringVarP(&paintOut, "output", "o", "", "Save to this path instead of the input session")
}

// parseStroke reads "x,y[,p]" points separated by spaces or semicolons.
func parseStroke(s string) ([]tool.Event, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ';' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("stroke has no points")
	}
	events := make([]tool.Event, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(f, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid point %q: want x,y[,pressure]", f)
		}
		var v [3]float64
		for i, p := range parts {
			n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid point %q: %w", f, err)
			}
			v[i] = n
		}
		events = append(events, tool.Event{X: v[0], Y: v[1], Pressure: v[2]})
	}
	return events, nil
}

// strokeTool merges the tool flags into the editor's current tool.
func strokeTool(cmd *cobra.Command, ed *editor.Editor) (tool.Kind, tool.Params, error) {
	kind, params := ed.ActiveTool()
	flags := cmd.Flags()
	if flags.Changed("tool") {
		k, err := tool.ParseKind(paintTool)
		if err != nil {
			return 0, params, err
		}
		kind = k
	}
	if flags.Changed("color") {
		col, err := raster.ParseColor(paintColor)
		if err != nil {
			return 0, params, err
		}
		params.Color = col
	}
	if flags.Changed("size") {
		params.Size = paintSize
	}
	if flags.Changed("tolerance") {
		params.Tolerance = paintTolerance
	}
	return kind, params, nil
}

func paintGesture(ed *editor.Editor, events []tool.Event) error {
	if err := ed.PointerDown(events[0]); err != nil {
		return err
	}
	for _, ev := range events[1:] {
		if err := ed.PointerMove(ev); err != nil {
			return err
		}
	}
	return ed.PointerUp(events[len(events)-1])
}

func runPaint(cmd *cobra.Command, args []string) error {
	if (len(args) == 2) == (paintStroke != "") {
		return fmt.Errorf("give either a journal or --stroke")
	}

	ed, err := openEditor(args[0])
	if err != nil {
		return err
	}
	defer ed.Close()

	if paintRecord != "" {
		jw, err := store.NewJournalWriter(paintRecord, true)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer jw.Close()
		ed.SetJournal(jw)
	}

	if paintLayer != "" {
		id, err := resolveLayer(ed.Canvas(), paintLayer)
		if err != nil {
			return err
		}
		if err := ed.SetActiveLayer(id); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if len(args) == 2 {
		jr, err := store.NewJournalReader(args[1])
		if err != nil {
			return err
		}
		defer jr.Close()

		n, err := ed.Replay(jr)
		if err != nil {
			return fmt.Errorf("replay stopped after %d entries: %w", n, err)
		}
		slog.Info("Journal replayed", "journal", args[1], "entries", n)
		fmt.Fprintf(out, "Replayed %d entries from %s\n", n, args[1])
	} else {
		events, err := parseStroke(paintStroke)
		if err != nil {
			return err
		}
		kind, params, err := strokeTool(cmd, ed)
		if err != nil {
			return err
		}
		if err := ed.SetActiveTool(kind, params); err != nil {
			return err
		}
		if err := paintGesture(ed, events); err != nil {
			return err
		}
		fmt.Fprintf(out, "Painted %d points with %s\n", len(events), kind)
	}

	if err := ed.SaveSession(paintOut); err != nil {
		return err
	}
	target := ed.Path()
	if paintOut != "" {
		target = ed.Resolve(paintOut)
	}
	fmt.Fprintf(out, "Saved %s\n", target)
	return nil
}
