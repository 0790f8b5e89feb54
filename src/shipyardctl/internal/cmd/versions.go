package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/bitswalk/shipyard/src/shipyardctl/internal/client"
	"github.com/bitswalk/shipyard/src/shipyardctl/internal/output"
	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:     "versions",
	Aliases: []string{"ver"},
	Short:   "Inspect and operate on submitted versions",
}

var versionsListCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List the versions of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionsList,
}

var versionsGetCmd = &cobra.Command{
	Use:   "get <project> <version>",
	Short: "Get a version",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionsGet,
}

var versionsLogsCmd = &cobra.Command{
	Use:   "logs <project> <version>",
	Short: "Show the build log of a version",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionsLogs,
}

var versionsWatchCmd = &cobra.Command{
	Use:   "watch <project> <version>",
	Short: "Follow the build progress of a version",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionsWatch,
}

var versionsPromoteCmd = &cobra.Command{
	Use:   "promote <project> <version>",
	Short: "Tag the built image and push it",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionsPromote,
}

var versionsScanCmd = &cobra.Command{
	Use:   "scan <project> <version>",
	Short: "Scan the built image for vulnerabilities",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionsScan,
}

var versionsDeployCmd = &cobra.Command{
	Use:   "deploy <project> <version>",
	Short: "Start a container from the built image",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionsDeploy,
}

var versionsDeploymentsCmd = &cobra.Command{
	Use:   "deployments <project> <version>",
	Short: "List the deployments of a version",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionsDeployments,
}

func init() {
	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsGetCmd)
	versionsCmd.AddCommand(versionsLogsCmd)
	versionsCmd.AddCommand(versionsWatchCmd)
	versionsCmd.AddCommand(versionsPromoteCmd)
	versionsCmd.AddCommand(versionsScanCmd)
	versionsCmd.AddCommand(versionsDeployCmd)
	versionsCmd.AddCommand(versionsDeploymentsCmd)

	// List flags
	versionsListCmd.Flags().Int("limit", 0, "Maximum number of results")
	versionsListCmd.Flags().Int("offset", 0, "Number of results to skip")

	versionsLogsCmd.Flags().Bool("full", false, "Download the untruncated log")

	versionsPromoteCmd.Flags().String("target", "", "Target image reference (required)")
	_ = versionsPromoteCmd.MarkFlagRequired("target")

	// Deploy flags
	versionsDeployCmd.Flags().String("target", "", "Image reference to run (default: the built image)")
	versionsDeployCmd.Flags().String("name", "", "Container name")
	versionsDeployCmd.Flags().String("network", "", "Container network")
	versionsDeployCmd.Flags().Bool("pull", false, "Pull the image before starting")
	versionsDeployCmd.Flags().StringArray("label", nil, "Container label as key=value (repeatable)")
}

func runVersionsList(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	opts := &client.ListOptions{}
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	opts.Offset, _ = cmd.Flags().GetInt("offset")

	resp, err := c.ListVersions(ctx, args[0], opts)
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		if resp.Count == 0 {
			output.PrintMessage("No versions found.")
			return nil
		}

		rows := make([][]string, len(resp.Versions))
		for i, v := range resp.Versions {
			rows[i] = []string{strconv.Itoa(v.VersionNumber), v.ID, v.Status, v.Stack, v.ImageTag, v.CreatedAt}
		}
		output.PrintTable([]string{"#", "ID", "STATUS", "STACK", "IMAGE", "CREATED"}, rows)
		return nil
	})
}

func runVersionsGet(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	resp, err := c.GetVersion(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		printVersion(resp)
		return nil
	})
}

func runVersionsLogs(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	full, _ := cmd.Flags().GetBool("full")
	if full {
		return c.CopyFullBuildLog(ctx, args[0], args[1], cmd.OutOrStdout())
	}

	resp, err := c.GetBuildLogs(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		if resp.BuildLogs == "" {
			output.PrintMessage(fmt.Sprintf("No build log yet (status: %s).", resp.Status))
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), resp.BuildLogs)
		if !strings.HasSuffix(resp.BuildLogs, "\n") {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		if resp.FullLogAvailable {
			fmt.Fprintln(cmd.ErrOrStderr(), "Log truncated, use --full for the complete output.")
		}
		return nil
	})
}

func runVersionsWatch(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return watchVersion(ctx, c, args[0], args[1], cmd.OutOrStdout())
}

func runVersionsPromote(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	target, _ := cmd.Flags().GetString("target")

	resp, err := c.Promote(ctx, args[0], args[1], target)
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		output.PrintMessage(fmt.Sprintf("Promoted %s to %s", resp.VersionID, target))
		if resp.Output != "" {
			output.PrintMessage(strings.TrimRight(resp.Output, "\n"))
		}
		return nil
	})
}

func runVersionsScan(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	resp, err := c.Scan(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		output.PrintTable(
			[]string{"FIELD", "VALUE"},
			[][]string{
				{"Scan ID", resp.ID},
				{"Image", resp.ImageTag},
				{"Scanner", resp.Scanner},
				{"Exit Code", strconv.Itoa(resp.ExitCode)},
				{"Created", resp.CreatedAt},
			},
		)
		if resp.Output != "" {
			fmt.Println()
			output.PrintMessage(strings.TrimRight(resp.Output, "\n"))
		}
		return nil
	})
}

func runVersionsDeploy(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	req := &client.DeployRequest{}
	req.TargetTag, _ = cmd.Flags().GetString("target")
	req.ContainerName, _ = cmd.Flags().GetString("name")
	req.Network, _ = cmd.Flags().GetString("network")
	req.Pull, _ = cmd.Flags().GetBool("pull")

	labels, _ := cmd.Flags().GetStringArray("label")
	parsed, err := parseLabels(labels)
	if err != nil {
		return err
	}
	req.Labels = parsed

	resp, err := c.Deploy(ctx, args[0], args[1], req)
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		printDeployment(&resp.Deployment)
		return nil
	})
}

func runVersionsDeployments(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	resp, err := c.ListDeployments(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		if resp.Count == 0 {
			output.PrintMessage("No deployments found.")
			return nil
		}

		rows := make([][]string, len(resp.Deployments))
		for i, d := range resp.Deployments {
			rows[i] = []string{d.ID, d.TargetTag, d.ContainerName, d.Host, d.CreatedAt}
		}
		output.PrintTable([]string{"ID", "IMAGE", "CONTAINER", "HOST", "CREATED"}, rows)
		return nil
	})
}

// parseLabels turns key=value flags into a label map
func parseLabels(labels []string) (map[string]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(labels))
	for _, l := range labels {
		k, v, ok := strings.Cut(l, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid label %q, expected key=value", l)
		}
		out[k] = v
	}
	return out, nil
}

func printVersion(v *client.Version) {
	rows := [][]string{
		{"ID", v.ID},
		{"Project", v.ProjectID},
		{"Number", strconv.Itoa(v.VersionNumber)},
		{"Status", v.Status},
		{"Stack", v.Stack},
		{"Image", v.ImageTag},
		{"Submitted By", v.SubmitterName},
		{"Notes", v.VersionNotes},
		{"Created", v.CreatedAt},
	}
	if v.CompletedAt != "" {
		rows = append(rows, []string{"Completed", v.CompletedAt})
	}
	if v.FailureCode != "" {
		rows = append(rows, []string{"Failure", v.FailureCode})
	}
	output.PrintTable([]string{"FIELD", "VALUE"}, rows)
}

func printDeployment(d *client.Deployment) {
	rows := [][]string{
		{"ID", d.ID},
		{"Image", d.TargetTag},
		{"Container", d.ContainerName},
		{"Container ID", d.ContainerID},
		{"Network", d.Network},
		{"Host", d.Host},
	}

	keys := make([]string, 0, len(d.Labels))
	for k := range d.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []string{"Label " + k, d.Labels[k]})
	}
	output.PrintTable([]string{"FIELD", "VALUE"}, rows)
}
