package cmd

import (
	"fmt"

	"github.com/andresmejia3/veil/internal/utils"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print the frame size and rate ffprobe reports for an input",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		w, h, fps, err := utils.ProbeVideo(cmd.Context(), Cfg.Source.Input, Cfg.Source.Format)
		if err != nil {
			return utils.ShowError("Probe failed", err, nil)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%dx%d @ %.3f fps\n", w, h, fps)
		return nil
	},
}

func init() {
	probeCmd.Flags().StringP("input", "i", "", "Input: video file, stream URL or device")
	probeCmd.Flags().StringP("format", "f", "", "ffmpeg input format, e.g. v4l2")
	probeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(probeCmd)
}
