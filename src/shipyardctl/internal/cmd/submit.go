package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bitswalk/shipyard/src/shipyardctl/internal/client"
	"github.com/bitswalk/shipyard/src/shipyardctl/internal/output"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <project> <archive.zip>",
	Short: "Submit a project archive for building",
	Long: `Uploads a zip archive as a new version of the project. The build runs
in the background on the server; use --wait to block until it finishes or
--watch to follow its progress.`,
	Args: cobra.ExactArgs(2),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().String("notes", "", "Version notes")
	submitCmd.Flags().Bool("wait", false, "Wait for the build to finish before returning")
	submitCmd.Flags().BoolP("watch", "w", false, "Follow build progress after submitting")
	submitCmd.Flags().String("submitted-by", "", "Submitter user ID (ignored when the server authenticates)")
	submitCmd.Flags().String("username", "", "Submitter display name")
	submitCmd.Flags().String("email", "", "Submitter email")
	submitCmd.MarkFlagsMutuallyExclusive("wait", "watch")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := &client.SubmitOptions{Archive: args[1]}
	opts.Notes, _ = cmd.Flags().GetString("notes")
	opts.Wait, _ = cmd.Flags().GetBool("wait")
	opts.SubmittedBy, _ = cmd.Flags().GetString("submitted-by")
	opts.Username, _ = cmd.Flags().GetString("username")
	opts.Email, _ = cmd.Flags().GetString("email")
	watch, _ := cmd.Flags().GetBool("watch")

	v, err := c.SubmitVersion(ctx, args[0], opts)
	if err != nil {
		return err
	}

	if watch {
		if getOutputFormat() == "table" {
			output.PrintMessage(fmt.Sprintf("Submitted version %d (%s)", v.VersionNumber, v.ID))
		}
		return watchVersion(ctx, c, args[0], v.ID, cmd.OutOrStdout())
	}

	if err := output.PrintFormatted(getOutputFormat(), v, func() error {
		printVersion(v)
		return nil
	}); err != nil {
		return err
	}

	if opts.Wait && v.Status == "failed" {
		return fmt.Errorf("build failed, see 'shipyardctl versions logs %s %s'", args[0], v.ID)
	}
	return nil
}

// watchVersion follows the event stream of a version until its build ends.
// Table output renders one line per event; json and yaml emit raw frames.
func watchVersion(ctx context.Context, c *client.Client, projectID, versionID string, w io.Writer) error {
	format := getOutputFormat()

	status, err := c.StreamEvents(ctx, projectID, versionID, func(ev client.StreamEvent) error {
		if format == "json" {
			_, err := fmt.Fprintf(w, "{\"event\":%q,\"data\":%s}\n", ev.Name, ev.Data)
			return err
		}
		line, err := renderEvent(ev)
		if err != nil || line == "" {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	})
	if err != nil {
		return err
	}

	if status == "failed" {
		return fmt.Errorf("build failed, see 'shipyardctl versions logs %s %s'", projectID, versionID)
	}
	return nil
}

// renderEvent formats one stream frame for the terminal
func renderEvent(ev client.StreamEvent) (string, error) {
	switch ev.Name {
	case client.EventStatus, client.EventDone:
		var f client.StatusFrame
		if err := json.Unmarshal(ev.Data, &f); err != nil {
			return "", fmt.Errorf("bad %s frame: %w", ev.Name, err)
		}
		parts := []string{"status: " + f.Status}
		if f.Stack != "" {
			parts = append(parts, "stack: "+f.Stack)
		}
		if f.ImageTag != "" {
			parts = append(parts, "image: "+f.ImageTag)
		}
		return strings.Join(parts, "  "), nil

	case client.EventProgress:
		var f client.ProgressFrame
		if err := json.Unmarshal(ev.Data, &f); err != nil {
			return "", fmt.Errorf("bad progress frame: %w", err)
		}
		return renderProgress(&f), nil
	}
	return "", nil
}

func renderProgress(f *client.ProgressFrame) string {
	step := fmt.Sprintf("[%d]", f.Step)
	if f.Total > 0 {
		step = fmt.Sprintf("[%d/%d]", f.Step, f.Total)
	}

	switch f.Kind {
	case "step_started":
		if f.Service != "" {
			return fmt.Sprintf("%s %s: %s", step, f.Service, f.Instruction)
		}
		return fmt.Sprintf("%s %s", step, f.Instruction)
	case "step_finished":
		return fmt.Sprintf("%s done in %s", step, formatDuration(f.Duration))
	case "cache_hit":
		return fmt.Sprintf("%s using cache", step)
	case "service_building":
		return fmt.Sprintf("building service %s", f.Service)
	case "build_complete":
		return fmt.Sprintf("image %s built (%d cached, %d built)", f.ImageID, f.CacheHits, f.CacheMisses)
	case "warning":
		return "warning: " + f.Message
	case "status":
		if f.Percent > 0 {
			return fmt.Sprintf("%s (%d%%)", f.Message, f.Percent)
		}
		return f.Message
	}
	return f.Message
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
