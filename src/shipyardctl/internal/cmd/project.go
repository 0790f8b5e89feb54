package cmd

import (
	"context"

	"github.com/bitswalk/shipyard/src/shipyardctl/internal/client"
	"github.com/bitswalk/shipyard/src/shipyardctl/internal/output"
	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"proj"},
	Short:   "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE:  runProjectList,
}

var projectGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a project by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectGet,
}

var projectPutCmd = &cobra.Command{
	Use:   "put <id>",
	Short: "Create or rename a project",
	Long: `Registers a project under the given ID, or renames it when it already
exists. Project IDs are assigned by the hackathon platform.`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectPut,
}

func init() {
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectGetCmd)
	projectCmd.AddCommand(projectPutCmd)

	projectPutCmd.Flags().String("name", "", "Project name (required)")
	projectPutCmd.Flags().String("hackathon", "", "Hackathon ID")
	_ = projectPutCmd.MarkFlagRequired("name")
}

func runProjectList(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	resp, err := c.ListProjects(ctx)
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		if resp.Count == 0 {
			output.PrintMessage("No projects found.")
			return nil
		}

		rows := make([][]string, len(resp.Projects))
		for i, p := range resp.Projects {
			rows[i] = []string{p.ID, p.Name, p.HackathonID, p.UpdatedAt}
		}
		output.PrintTable([]string{"ID", "NAME", "HACKATHON", "UPDATED"}, rows)
		return nil
	})
}

func runProjectGet(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	resp, err := c.GetProject(ctx, args[0])
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		printProject(resp)
		return nil
	})
}

func runProjectPut(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	req := &client.PutProjectRequest{}
	req.Name, _ = cmd.Flags().GetString("name")
	req.HackathonID, _ = cmd.Flags().GetString("hackathon")

	resp, err := c.PutProject(ctx, args[0], req)
	if err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		printProject(resp)
		return nil
	})
}

func printProject(p *client.Project) {
	output.PrintTable(
		[]string{"FIELD", "VALUE"},
		[][]string{
			{"ID", p.ID},
			{"Name", p.Name},
			{"Hackathon", p.HackathonID},
			{"Created", p.CreatedAt},
			{"Updated", p.UpdatedAt},
		},
	)
}
