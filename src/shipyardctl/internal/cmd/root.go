package cmd

import (
	"fmt"
	"os"

	"github.com/bitswalk/shipyard/src/common/cli"
	"github.com/bitswalk/shipyard/src/common/version"
	"github.com/bitswalk/shipyard/src/shipyardctl/internal/client"
	"github.com/bitswalk/shipyard/src/shipyardctl/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	// Configuration file path
	cfgFile string

	// Output format (table, json or yaml)
	outputFormat string

	// API client instance
	apiClient *client.Client
)

// Linker variables - set via ldflags at build time
var (
	Version        = "dev"
	ReleaseName    = "Dockside"
	ReleaseVersion = "0.0.0"
	BuildDate      = "unknown"
	GitCommit      = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "shipyardctl",
	Short: "Shipyard CLI Client",
	Long: `shipyardctl is the command-line client for the shipyard build server.

It talks to the shipyardd API to register projects, submit archives,
follow builds and promote, scan or deploy the resulting images.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config init for version command without --server flag
		if cmd.Name() == "version" && !cmd.Flags().Changed("server") {
			return nil
		}
		return initConfig()
	},
}

// Execute runs the root command
func Execute() {
	VersionInfo.For("shipyardctl", version.Linker{
		Version:        Version,
		ReleaseName:    ReleaseName,
		ReleaseVersion: ReleaseVersion,
		BuildDate:      BuildDate,
		GitCommit:      GitCommit,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cli.RegisterConfigFlag(rootCmd, &cfgFile, "~/.shipyardctl/shipyardctl.yaml")

	rootCmd.PersistentFlags().StringP("server", "s", "", "Shipyard server URL (default: http://localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")

	cli.RegisterLogFlags(rootCmd)

	_ = viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))

	viper.SetDefault("server.url", "http://localhost:8080")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(versionsCmd)

	registerCompletions()
}

func registerCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("output", completionOutputFormat)

	projectGetCmd.ValidArgsFunction = completionProjectIDs
	projectPutCmd.ValidArgsFunction = completionProjectIDs
	submitCmd.ValidArgsFunction = completionSubmitArgs
	versionsListCmd.ValidArgsFunction = completionProjectIDs

	for _, c := range []*cobra.Command{
		versionsGetCmd, versionsLogsCmd, versionsWatchCmd,
		versionsPromoteCmd, versionsScanCmd, versionsDeployCmd, versionsDeploymentsCmd,
	} {
		c.ValidArgsFunction = completionVersionArgs
	}
}

func initConfig() error {
	opts := cli.ConfigOptions{
		ConfigName: "shipyardctl",
		ConfigType: "yaml",
		EnvPrefix:  "SHIPYARDCTL",
		SearchPaths: []string{
			"/etc/shipyardctl",
			config.Dir,
		},
	}
	opts.ConfigFile = cfgFile

	return cli.InitConfig(opts)
}

// getClient returns the API client, creating it if needed.
// It loads the stored token for authentication.
func getClient() *client.Client {
	if apiClient == nil {
		serverURL := viper.GetString("server.url")
		apiClient = client.New(serverURL)

		tokenData, err := config.LoadToken()
		if err == nil && tokenData.AccessToken != "" {
			apiClient.Token = tokenData.AccessToken
		}
	}
	return apiClient
}

// getOutputFormat returns the current output format
func getOutputFormat() string {
	return outputFormat
}
