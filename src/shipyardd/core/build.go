package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bitswalk/shipyard/src/common/logs"
	"github.com/bitswalk/shipyard/src/common/paths"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var buildCmd = &cobra.Command{
	Use:   "build ARCHIVE.zip",
	Short: "Build a project archive locally",
	Long: `Run the submission pipeline against a local zip archive without the server.

The archive is extracted into a temporary workspace, its stack detected, a
Dockerfile generated when missing, the security policy applied and the image
built and tagged. The workspace is removed afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := localBuildOptions{
			Archive: args[0],
			Config:  buildConfig(),
		}
		opts.Tag, _ = cmd.Flags().GetString("tag")
		opts.User, _ = cmd.Flags().GetString("user")
		opts.Number, _ = cmd.Flags().GetInt("number")
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

		verbose, _ := cmd.Flags().GetBool("verbose")
		out := cmd.OutOrStdout()
		if verbose || isTerminal(out) {
			opts.Lines = out
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Progress goes to stderr so stdout carries only the result
		logger := newCommandLogger(cmd.ErrOrStderr(), viper.GetString("log.level"))
		build.SetLogger(logger)

		sc, err := runLocalBuild(ctx, opts, build.NewLogReporter(logger))
		if err != nil {
			return err
		}

		if opts.DryRun {
			fmt.Fprintln(out, strings.Join(sc.Result.Args, " "))
			return nil
		}
		fmt.Fprintln(out, sc.ImageTag)
		return nil
	},
}

func init() {
	buildCmd.Flags().String("tag", "", "Use this image tag verbatim")
	buildCmd.Flags().String("user", "", "Submitter name used in the generated tag")
	buildCmd.Flags().Int("number", 0, "Version number used in the generated tag (default: latest)")
	buildCmd.Flags().Bool("dry-run", false, "Stop before the engine runs and print its command")
	buildCmd.Flags().BoolP("verbose", "v", false, "Print engine output even when stdout is not a terminal")
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// localBuildOptions configures a server-less pipeline run
type localBuildOptions struct {
	Archive string
	Tag     string
	User    string
	Number  int
	DryRun  bool
	Config  build.Config

	// Lines receives raw engine output when set
	Lines io.Writer
}

// runLocalBuild runs the pipeline over a local archive. On a dry run the
// returned context carries the engine command in Result.Args.
func runLocalBuild(ctx context.Context, opts localBuildOptions, reporter build.Reporter) (*build.StageContext, error) {
	archive := paths.Expand(opts.Archive)
	if _, err := os.Stat(archive); err != nil {
		return nil, fmt.Errorf("archive not readable: %w", err)
	}

	cfg := opts.Config
	base := paths.Expand(cfg.WorkspaceBase)
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace base: %w", err)
	}
	workspace := filepath.Join(base, "local_"+uuid.New().String())
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Warn("Failed to cleanup workspace", "path", workspace, "error", err)
		}
	}()

	engine := build.NewEngine(cfg.Engine, cfg.Timeout)
	stages := build.DefaultStages(nil, engine, cfg)
	if opts.DryRun {
		stages = stages[:len(stages)-1]
	}

	sc := &build.StageContext{
		VersionNumber: opts.Number,
		ArchivePath:   archive,
		ArchiveName:   filepath.Base(archive),
		WorkspacePath: workspace,
		SubmitterName: opts.User,
		ExplicitTag:   opts.Tag,
		Reporter:      reporter,
	}
	if opts.Lines != nil {
		sc.OnLine = func(line string) {
			fmt.Fprintln(opts.Lines, line)
		}
	}

	if err := build.NewPipeline(stages...).Run(ctx, sc); err != nil {
		return sc, err
	}

	if opts.DryRun {
		args, _, err := engine.Command(build.BuildRequest{Stack: sc.Stack, Dir: sc.SourceDir, Tag: sc.ImageTag})
		if err != nil {
			return sc, err
		}
		sc.Result = &build.BuildResult{Args: append([]string{engine.Binary()}, args...)}
	}
	return sc, nil
}

// newCommandLogger returns a logger writing to w, for the local build output
func newCommandLogger(w io.Writer, level string) *logs.Logger {
	return logs.New(logs.Config{Writer: w, Level: level, Prefix: "shipyardd"})
}
