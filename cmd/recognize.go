package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/facemood/internal/pipeline"
	"github.com/andresmejia3/facemood/internal/types"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var recognizeJSON bool

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image_path>",
	Short: "Identify the face and emotion in a captured photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateImagePath(args[0]); err != nil {
			return fmt.Errorf("invalid capture: %w", err)
		}

		orch, cleanup := newOrchestrator()
		defer cleanup()

		s := pipeline.NewSession(args[0], Cfg.CacheDir, Cfg.FilesDir, Cfg.AssetName)
		bar := newStageBar(os.Stderr)
		orch.OnTransition = func(_ string, state pipeline.State) {
			advance(bar, state)
		}

		fmt.Fprintf(os.Stderr, "📷 Session %s\n", s.ID)
		out := orch.RunAndPublish(cmd.Context(), s, &terminalSink{w: os.Stdout, json: recognizeJSON})
		recordHistory(cmd.Context(), s, out)

		if out.Err != nil && !errors.Is(out.Err, types.ErrResultParseFailure) {
			return runError{out: out}
		}
		fmt.Fprintf(os.Stderr, "🏁 Recognition complete in %s\n", out.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	recognizeCmd.Flags().BoolVar(&recognizeJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(recognizeCmd)
}

func validateImagePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("unable to access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected an image file", path)
	}
	return nil
}

func newStageBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(pipeline.Stages,
		progressbar.OptionSetDescription("🔍 Recognizing"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// advance moves the bar one step per working stage and finishes it on a terminal state.
func advance(bar *progressbar.ProgressBar, state pipeline.State) {
	switch {
	case state == pipeline.StateIdle:
	case state.Terminal():
		bar.Finish()
	default:
		bar.Describe("🔍 " + state.String())
		bar.Add(1)
	}
}

// runError reports a failed run once, with the user-facing message, while
// keeping the pipeline error reachable through errors.Is.
type runError struct {
	out pipeline.Outcome
}

func (e runError) Error() string { return e.out.Message() }
func (e runError) Unwrap() error { return e.out.Err }

// terminalSink prints the record for a single run. In text mode failures are left
// to the command's returned error, in JSON mode they are written as an object.
type terminalSink struct {
	w    io.Writer
	json bool
}

func (t *terminalSink) Publish(res types.Result) {
	if t.json {
		enc := json.NewEncoder(t.w)
		enc.SetIndent("", "  ")
		enc.Encode(res)
		return
	}

	tw := tabwriter.NewWriter(t.w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "STATUS\t%s\n", res.Status)
	fmt.Fprintf(tw, "NAME\t%s\n", res.Name)
	fmt.Fprintf(tw, "EMOTION\t%s\n", res.Emotion)
	fmt.Fprintf(tw, "TIME\t%s\n", res.Time)
	fmt.Fprintf(tw, "MESSAGE\t%s\n", res.Message)
	tw.Flush()
}

func (t *terminalSink) PublishError(msg string) {
	if t.json {
		json.NewEncoder(t.w).Encode(map[string]string{"error": msg})
	}
}
