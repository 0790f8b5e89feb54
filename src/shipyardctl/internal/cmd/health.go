package cmd

import (
	"context"
	"sort"

	"github.com/bitswalk/shipyard/src/shipyardctl/internal/output"
	"github.com/spf13/cobra"
)

// HealthResponse matches the server's /v1/health response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Long:  `Checks the health status of the shipyard server and its dependencies.`,
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	var resp HealthResponse
	if err := c.Get(ctx, "/v1/health", &resp); err != nil {
		return err
	}

	return output.PrintFormatted(getOutputFormat(), resp, func() error {
		rows := [][]string{
			{"Status", resp.Status},
			{"Timestamp", resp.Timestamp},
		}

		names := make([]string, 0, len(resp.Checks))
		for name := range resp.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rows = append(rows, []string{"Check " + name, resp.Checks[name]})
		}

		output.PrintTable([]string{"FIELD", "VALUE"}, rows)
		return nil
	})
}
