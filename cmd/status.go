package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/canvas"
	"github.com/cwbudde/layerpaint/internal/session"
	"github.com/cwbudde/layerpaint/internal/tool"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running preview server",
	Long: `Queries the preview server for the open document and active tool and
prints the layer stack.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

type remoteCanvas struct {
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Layout   string             `json:"layout"`
	Path     string             `json:"path"`
	Active   canvas.LayerID     `json:"activeLayer"`
	Seq      uint64             `json:"seq"`
	Modified time.Time          `json:"modified"`
	Layers   []canvas.LayerInfo `json:"layers"`
}

type remoteTool struct {
	Kind   tool.Kind   `json:"kind"`
	Params tool.Params `json:"params"`
}

var statusClient = &http.Client{Timeout: 10 * time.Second}

func getJSON(url string, v any) error {
	resp, err := statusClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	var c remoteCanvas
	if err := getJSON(serverURL+"/api/v1/canvas", &c); err != nil {
		return err
	}
	var t remoteTool
	if err := getJSON(serverURL+"/api/v1/tool", &t); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	path := c.Path
	if path == "" {
		path = "(unsaved)"
	}
	fmt.Fprintf(out, "Document: %s\n", path)
	fmt.Fprintf(out, "Canvas:   %dx%d %s, revision %d\n", c.Width, c.Height, c.Layout, c.Seq)
	if !c.Modified.IsZero() {
		fmt.Fprintf(out, "Modified: %s\n", c.Modified.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "Tool:     %s (color %s, size %.1f)\n", t.Kind, t.Params.Color, t.Params.Size)
	fmt.Fprintln(out)

	printLayers(out, &session.Info{ActiveLayer: c.Active, Layers: c.Layers})
	return nil
}
