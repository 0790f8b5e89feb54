package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

// completionProjectIDs returns a ValidArgsFunction that completes project IDs
func completionProjectIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return projectSuggestions()
}

// completionVersionArgs completes <project> then <version>
func completionVersionArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return projectSuggestions()
	case 1:
		c := getClient()
		resp, err := c.ListVersions(context.Background(), args[0], nil)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		suggestions := make([]string, len(resp.Versions))
		for i, v := range resp.Versions {
			suggestions[i] = v.ID + "\t#" + strconv.Itoa(v.VersionNumber) + " " + v.Status
		}
		return suggestions, cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// completionSubmitArgs completes the project ID then zip files
func completionSubmitArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return projectSuggestions()
	case 1:
		return []string{"zip"}, cobra.ShellCompDirectiveFilterFileExt
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func projectSuggestions() ([]string, cobra.ShellCompDirective) {
	c := getClient()
	resp, err := c.ListProjects(context.Background())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	suggestions := make([]string, len(resp.Projects))
	for i, p := range resp.Projects {
		suggestions[i] = p.ID + "\t" + p.Name
	}
	return suggestions, cobra.ShellCompDirectiveNoFileComp
}

// completionOutputFormat provides completion for --output flag
func completionOutputFormat(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
}
