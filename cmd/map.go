package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andresmejia3/veil/internal/config"
	"github.com/andresmejia3/veil/internal/types"
	"github.com/andresmejia3/veil/internal/viewport"
	"github.com/spf13/cobra"
)

var mapBoxes []string

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Print where frame boxes land on the display",
	Example: `  veil map --frame-width 640 --frame-height 480 \
    --display-width 1080 --display-height 1920 --fit fill --box 160,120,160,120`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		boxes := make([]types.FaceBox, 0, len(mapBoxes))
		for _, s := range mapBoxes {
			b, err := parseBox(s)
			if err != nil {
				return err
			}
			boxes = append(boxes, b)
		}
		return printMapping(cmd.OutOrStdout(), Cfg, boxes)
	},
}

func init() {
	f := mapCmd.Flags()
	f.Int("frame-width", 0, "Frame width in pixels")
	f.Int("frame-height", 0, "Frame height in pixels")
	f.Int("display-width", 1080, "Display width in pixels")
	f.Int("display-height", 1920, "Display height in pixels")
	f.String("fit", "fill", "Fit mode: stretch, fit, fill")
	f.String("orient", "portrait", "Frame orientation: portrait or landscape")
	f.StringArrayVarP(&mapBoxes, "box", "b", nil, "Face box as x,y,w,h in frame pixels (repeatable)")

	mapCmd.MarkFlagRequired("frame-width")
	mapCmd.MarkFlagRequired("frame-height")
	rootCmd.AddCommand(mapCmd)
}

func printMapping(w io.Writer, cfg *config.Config, boxes []types.FaceBox) error {
	geom := types.ViewportGeometry{
		DisplayWidth:  float64(cfg.Display.Width),
		DisplayHeight: float64(cfg.Display.Height),
		FrameWidth:    float64(cfg.Source.Width),
		FrameHeight:   float64(cfg.Source.Height),
		FitMode:       cfg.Display.FitMode(),
		Orientation:   cfg.Display.Orient(),
	}
	fmt.Fprintf(w, "geometry: frame %dx%d, display %dx%d, %s, %s\n",
		cfg.Source.Width, cfg.Source.Height, cfg.Display.Width, cfg.Display.Height, geom.FitMode, geom.Orientation)
	fmt.Fprintf(w, "video box: %s\n", viewport.VideoBox(geom))
	for i, b := range boxes {
		fmt.Fprintf(w, "box %d: (%g,%g %gx%g) -> %s\n", i, b.X, b.Y, b.Width, b.Height, viewport.MapBox(b, geom))
	}
	return nil
}

// parseBox reads "x,y,w,h".
func parseBox(s string) (types.FaceBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.FaceBox{}, fmt.Errorf("invalid box '%s'. Expected x,y,w,h", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.FaceBox{}, fmt.Errorf("invalid box '%s': %w", s, err)
		}
		v[i] = f
	}
	return types.FaceBox{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}
